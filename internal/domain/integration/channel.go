package integration

import (
	"slices"
	"strings"
	"time"
)

// ChannelKey is the stable short name of a configured channel
type ChannelKey string

// String returns the string representation
func (k ChannelKey) String() string {
	return string(k)
}

// IsValid returns true if the key is non-empty and lower-case alphanumeric with '-' or '_'
func (k ChannelKey) IsValid() bool {
	if k == "" {
		return false
	}
	for _, r := range string(k) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// AuthScheme is how a channel authenticates requests
type AuthScheme string

const (
	AuthSchemeBasic  AuthScheme = "basic"
	AuthSchemeBearer AuthScheme = "bearer"
)

// IsValid returns true if the scheme is supported
func (s AuthScheme) IsValid() bool {
	return s == AuthSchemeBasic || s == AuthSchemeBearer
}

// Credentials holds the secret material for a channel.
// Key/Secret are used with basic auth, Token with bearer auth.
type Credentials struct {
	Scheme AuthScheme
	Key    string
	Secret string
	Token  string
}

// Capabilities is the declared taxonomy support of a channel
type Capabilities struct {
	Attributes bool
	Brands     bool
	Categories bool
}

// Supports reports whether the channel declares support for the taxonomy kind.
// Attribute terms ride on attribute support.
func (c Capabilities) Supports(kind TaxonomyKind) bool {
	switch kind {
	case TaxonomyKindAttribute, TaxonomyKindAttributeTerm:
		return c.Attributes
	case TaxonomyKindBrand:
		return c.Brands
	case TaxonomyKindCategory:
		return c.Categories
	default:
		return false
	}
}

// Channel is an external system instance entities are synced to.
// Channels are configured, never discovered.
type Channel struct {
	Key                ChannelKey
	BaseURL            string
	Credentials        Credentials
	Capabilities       Capabilities
	// Memberships lists the membership tags this channel accepts. Empty accepts all.
	Memberships        []string
	// Collections maps an entity kind to its REST collection path on the channel.
	// A kind without a collection is not synced to this channel.
	Collections        map[EntityKind]string
	// CategoryAliases maps a membership tag to the category display name used on the channel
	CategoryAliases    map[string]string
	// BrandFromPublisher attaches the resolved publisher name as a brand term
	BrandFromPublisher bool
	// MembershipRules derive extra memberships from entity attributes
	MembershipRules    []MembershipRule
	Timeout            time.Duration
	RateLimit          float64
}

// CollectionFor returns the channel collection for an entity kind
func (c Channel) CollectionFor(kind EntityKind) (string, bool) {
	col, ok := c.Collections[kind]
	if !ok || strings.TrimSpace(col) == "" {
		return "", false
	}
	return col, true
}

// Accepts reports whether the channel accepts a membership tag
func (c Channel) Accepts(tag string) bool {
	if len(c.Memberships) == 0 {
		return true
	}
	key := NormalizeKey(tag)
	return slices.ContainsFunc(c.Memberships, func(m string) bool {
		return NormalizeKey(m) == key
	})
}

// CategoryName returns the category display name for a membership tag
func (c Channel) CategoryName(tag string) string {
	if alias, ok := c.CategoryAliases[NormalizeKey(tag)]; ok && alias != "" {
		return alias
	}
	return tag
}

// Targets reports whether an entity should be pushed to this channel.
// Supporting kinds (authors, publishers...) are always eligible when the channel has a
// collection for them; books need at least one accepted membership unless the channel
// accepts everything.
func (c Channel) Targets(e *CanonicalEntity) bool {
	if _, ok := c.CollectionFor(e.Kind); !ok {
		return false
	}
	if e.Kind != EntityKindBook || len(c.Memberships) == 0 {
		return true
	}
	for _, tag := range EffectiveMemberships(e, c.MembershipRules) {
		if c.Accepts(tag) {
			return true
		}
	}
	return false
}

// DefaultStorefrontCollections returns the collection layout of a WooCommerce-style storefront
func DefaultStorefrontCollections() map[EntityKind]string {
	return map[EntityKind]string{
		EntityKindBook:       "products",
		EntityKindPublisher:  "products/brands",
		EntityKindAuthor:     "authors",
		EntityKindImprint:    "imprints",
		EntityKindCollection: "collections",
	}
}
