package integration

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// TaxonomyKind is the kind of shared vocabulary object on a channel
type TaxonomyKind string

const (
	TaxonomyKindAttribute     TaxonomyKind = "attribute"
	TaxonomyKindAttributeTerm TaxonomyKind = "attribute_term"
	TaxonomyKindBrand         TaxonomyKind = "brand"
	TaxonomyKindCategory      TaxonomyKind = "category"
)

// IsValid returns true if the kind is known
func (k TaxonomyKind) IsValid() bool {
	switch k {
	case TaxonomyKindAttribute, TaxonomyKindAttributeTerm, TaxonomyKindBrand, TaxonomyKindCategory:
		return true
	}
	return false
}

// NeedsParent reports whether terms of this kind are scoped to a parent attribute
func (k TaxonomyKind) NeedsParent() bool {
	return k == TaxonomyKindAttributeTerm
}

// String returns the string representation
func (k TaxonomyKind) String() string {
	return string(k)
}

// ParseTaxonomyKind parses a kind name, accepting plural forms
func ParseTaxonomyKind(s string) (TaxonomyKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "attribute", "attributes":
		return TaxonomyKindAttribute, nil
	case "attribute_term", "attribute_terms", "term", "terms":
		return TaxonomyKindAttributeTerm, nil
	case "brand", "brands":
		return TaxonomyKindBrand, nil
	case "category", "categories":
		return TaxonomyKindCategory, nil
	}
	return "", fmt.Errorf("unknown taxonomy kind %q", s)
}

// TaxonomyTerm is a named vocabulary value scoped to (channel, kind, parent attribute)
type TaxonomyTerm struct {
	Channel     ChannelKey
	Kind        TaxonomyKind
	ParentID    string
	ExternalID  string
	DisplayName string
	Key         string
	// Sequence is the channel's creation order when exposed (numeric IDs)
	Sequence    int64
	// ModifiedAt is zero when the channel exposes no modification timestamp
	ModifiedAt  time.Time
}

// NewTaxonomyTerm creates a term with its normalized key populated
func NewTaxonomyTerm(channel ChannelKey, kind TaxonomyKind, parentID, externalID, displayName string) TaxonomyTerm {
	return TaxonomyTerm{
		Channel:     channel,
		Kind:        kind,
		ParentID:    parentID,
		ExternalID:  externalID,
		DisplayName: displayName,
		Key:         NormalizeKey(displayName),
	}
}

// Scope returns the memo/cache scope of the term
func (t TaxonomyTerm) Scope() TermScope {
	return TermScope{Channel: t.Channel, Kind: t.Kind, ParentID: t.ParentID, Key: t.Key}
}

// TermScope identifies one normalized name within (channel, kind, parent)
type TermScope struct {
	Channel  ChannelKey
	Kind     TaxonomyKind
	ParentID string
	Key      string
}

// String renders the scope as a single cache key
func (s TermScope) String() string {
	return string(s.Channel) + "|" + string(s.Kind) + "|" + s.ParentID + "|" + s.Key
}

// NormalizeKey trims, collapses inner whitespace, NFC-normalizes and case-folds a
// display name. "Planeta" and "planeta " share a key.
func NormalizeKey(name string) string {
	name = norm.NFC.String(name)
	name = strings.Join(strings.FieldsFunc(name, unicode.IsSpace), " ")
	// Casers keep state and must not be shared between goroutines
	return cases.Fold().String(name)
}
