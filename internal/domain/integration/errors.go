package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the integration context
var (
	ErrConfiguration      = errors.New("integration: configuration error")
	ErrValidation         = errors.New("integration: validation error")
	ErrChannelUnavailable = errors.New("integration: channel unavailable")
	ErrRelationUnresolved = errors.New("integration: relation not yet synced")
	ErrDuplicateTaxonomy  = errors.New("integration: duplicate taxonomy detected")

	ErrTermExists          = errors.New("integration: taxonomy term already exists")
	ErrMappingNotFound     = errors.New("integration: external id mapping not found")
	ErrMappingKindMismatch = errors.New("integration: external id mapping belongs to another entity kind")
	ErrChannelNotFound     = errors.New("integration: channel not registered")
	ErrUnsupportedKind     = errors.New("integration: entity kind not supported by channel")
	ErrInvalidExternalID   = errors.New("integration: invalid external id")
	ErrInvalidResponseBody = errors.New("integration: invalid channel response")
)

// ErrorKind classifies a failure for run reporting
type ErrorKind string

const (
	ErrorKindNone               ErrorKind = ""
	ErrorKindConfiguration      ErrorKind = "ConfigurationError"
	ErrorKindValidation         ErrorKind = "ValidationError"
	ErrorKindChannelUnavailable ErrorKind = "ChannelUnavailable"
	ErrorKindRelationUnresolved ErrorKind = "RelationUnresolved"
	ErrorKindDuplicateTaxonomy  ErrorKind = "DuplicateTaxonomyDetected"
	ErrorKindCancelled          ErrorKind = "Cancelled"
	ErrorKindInternal           ErrorKind = "InternalError"
)

// String returns the string representation
func (k ErrorKind) String() string {
	return string(k)
}

// KindOf classifies err. Context cancellation is reported separately from channel
// failures so a cancelled run is not mistaken for an outage.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorKindNone
	case errors.Is(err, ErrConfiguration):
		return ErrorKindConfiguration
	case errors.Is(err, ErrValidation):
		return ErrorKindValidation
	case errors.Is(err, ErrChannelUnavailable):
		return ErrorKindChannelUnavailable
	case errors.Is(err, ErrRelationUnresolved):
		return ErrorKindRelationUnresolved
	case errors.Is(err, ErrDuplicateTaxonomy):
		return ErrorKindDuplicateTaxonomy
	case isCancellation(err):
		return ErrorKindCancelled
	default:
		return ErrorKindInternal
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// ---------------------------------------------------------------------------
// ConfigurationError
// ---------------------------------------------------------------------------

// ConfigurationError reports missing or invalid channel configuration.
// It is fatal at startup and never retried.
type ConfigurationError struct {
	Channel ChannelKey
	Field   string
	Reason  string
}

// NewConfigurationError creates a configuration error for a channel field
func NewConfigurationError(channel ChannelKey, field, reason string) *ConfigurationError {
	return &ConfigurationError{Channel: channel, Field: field, Reason: reason}
}

// Error implements the error interface
func (e *ConfigurationError) Error() string {
	if e.Channel == "" {
		return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("configuration: channel %q: %s: %s", e.Channel, e.Field, e.Reason)
}

// Unwrap returns the sentinel kind
func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// ---------------------------------------------------------------------------
// ValidationError
// ---------------------------------------------------------------------------

// ValidationError reports a canonical entity that cannot be synced as-is.
// It is fatal for that entity only.
type ValidationError struct {
	EntityID string
	Field    string
	Reason   string
}

// NewValidationError creates a validation error for an entity field
func NewValidationError(entityID, field, reason string) *ValidationError {
	return &ValidationError{EntityID: entityID, Field: field, Reason: reason}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: entity %q: %s %s", e.EntityID, e.Field, e.Reason)
}

// Unwrap returns the sentinel kind
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ---------------------------------------------------------------------------
// ChannelError
// ---------------------------------------------------------------------------

// ChannelError is returned by channel clients for any non-successful call.
// Kind is ErrorKindValidation for rejected requests (4xx other than 429) and
// ErrorKindChannelUnavailable once transient failures exhausted the retry budget.
type ChannelError struct {
	Kind       ErrorKind
	Channel    ChannelKey
	Method     string
	Path       string
	StatusCode int
	Body       []byte
	Attempts   int
	Err        error
}

// Error implements the error interface
func (e *ChannelError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "channel %s: %s %s", e.Channel, e.Method, e.Path)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": HTTP %d", e.StatusCode)
	}
	if e.Attempts > 1 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if body := strings.TrimSpace(string(e.Body)); body != "" {
		if len(body) > 256 {
			body = body[:256] + "..."
		}
		fmt.Fprintf(&b, ": %s", body)
	}
	return b.String()
}

// Unwrap exposes both the sentinel kind and the transport cause
func (e *ChannelError) Unwrap() []error {
	errs := make([]error, 0, 2)
	switch e.Kind {
	case ErrorKindValidation:
		errs = append(errs, ErrValidation)
	case ErrorKindChannelUnavailable:
		errs = append(errs, ErrChannelUnavailable)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// IsNotFound reports whether the channel rejected the call with 404
func (e *ChannelError) IsNotFound() bool {
	return e.StatusCode == 404
}

// ---------------------------------------------------------------------------
// DuplicateTaxonomyError
// ---------------------------------------------------------------------------

// DuplicateTaxonomyError is informational: raised by the reconciler only.
type DuplicateTaxonomyError struct {
	Channel ChannelKey
	Kind    TaxonomyKind
	Key     string
	Count   int
}

// Error implements the error interface
func (e *DuplicateTaxonomyError) Error() string {
	return fmt.Sprintf("channel %s: %d %s terms share key %q", e.Channel, e.Count, e.Kind, e.Key)
}

// Unwrap returns the sentinel kind
func (e *DuplicateTaxonomyError) Unwrap() error {
	return ErrDuplicateTaxonomy
}
