package dto

import (
	"net/http"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
)

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
)

// Request error codes
const (
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeConflict is used when a run of the same kind is already active
	ErrCodeConflict = "ERR_CONFLICT"
)

// Sync error codes, one per integration.ErrorKind
const (
	ErrCodeConfiguration      = "ERR_CONFIGURATION"
	ErrCodeValidation         = "ERR_VALIDATION"
	ErrCodeChannelUnavailable = "ERR_CHANNEL_UNAVAILABLE"
	ErrCodeRelationUnresolved = "ERR_RELATION_UNRESOLVED"
	ErrCodeDuplicateTaxonomy  = "ERR_DUPLICATE_TAXONOMY"
	ErrCodeCancelled          = "ERR_CANCELLED"
	ErrCodeUnavailable        = "ERR_UNAVAILABLE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeBadRequest: http.StatusBadRequest,
	ErrCodeNotFound:   http.StatusNotFound,
	ErrCodeConflict:   http.StatusConflict,

	ErrCodeConfiguration:      http.StatusInternalServerError,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeChannelUnavailable: http.StatusBadGateway,
	ErrCodeRelationUnresolved: http.StatusUnprocessableEntity,
	ErrCodeDuplicateTaxonomy:  http.StatusConflict,
	ErrCodeCancelled:          http.StatusServiceUnavailable,
	ErrCodeUnavailable:        http.StatusServiceUnavailable,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// kindCodes maps sync error kinds to error codes
var kindCodes = map[integration.ErrorKind]string{
	integration.ErrorKindConfiguration:      ErrCodeConfiguration,
	integration.ErrorKindValidation:         ErrCodeValidation,
	integration.ErrorKindChannelUnavailable: ErrCodeChannelUnavailable,
	integration.ErrorKindRelationUnresolved: ErrCodeRelationUnresolved,
	integration.ErrorKindDuplicateTaxonomy:  ErrCodeDuplicateTaxonomy,
	integration.ErrorKindCancelled:          ErrCodeCancelled,
	integration.ErrorKindInternal:           ErrCodeInternal,
}

// CodeForKind returns the error code of a sync error kind
func CodeForKind(kind integration.ErrorKind) string {
	if code, ok := kindCodes[kind]; ok {
		return code
	}
	return ErrCodeUnknown
}

// domainCodeMapping maps shared.DomainError codes to API error codes
var domainCodeMapping = map[string]string{
	"NOT_FOUND":      ErrCodeNotFound,
	"INVALID_INPUT":  ErrCodeBadRequest,
	"ALREADY_EXISTS": ErrCodeConflict,
	"UNAVAILABLE":    ErrCodeUnavailable,
	"INTERNAL_ERROR": ErrCodeInternal,
}

// NormalizeErrorCode converts a domain error code to the API format.
// Unknown codes are returned as-is.
func NormalizeErrorCode(code string) string {
	if apiCode, ok := domainCodeMapping[code]; ok {
		return apiCode
	}
	return code
}
