package integration

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EntityKind is the type of a canonical catalog entity
type EntityKind string

const (
	EntityKindBook       EntityKind = "book"
	EntityKindAuthor     EntityKind = "author"
	EntityKindPublisher  EntityKind = "publisher"
	EntityKindImprint    EntityKind = "imprint"
	EntityKindCollection EntityKind = "collection"
)

// AllEntityKinds returns every kind in dependency order: relation targets first
func AllEntityKinds() []EntityKind {
	return []EntityKind{
		EntityKindAuthor,
		EntityKindPublisher,
		EntityKindImprint,
		EntityKindCollection,
		EntityKindBook,
	}
}

// IsValid returns true if the kind is known
func (k EntityKind) IsValid() bool {
	return slices.Contains(AllEntityKinds(), k)
}

// String returns the string representation
func (k EntityKind) String() string {
	return string(k)
}

// Tier returns the scheduling tier of the kind. Lower tiers sync first so their
// mappings exist when dependents resolve relations.
func (k EntityKind) Tier() int {
	switch k {
	case EntityKindAuthor, EntityKindPublisher:
		return 0
	case EntityKindImprint, EntityKindCollection:
		return 1
	default:
		return 2
	}
}

// LifecycleState is the publication state of a content store document
type LifecycleState string

const (
	LifecycleDraft     LifecycleState = "draft"
	LifecyclePublished LifecycleState = "published"
)

// RelationName names a relation of a canonical entity
type RelationName string

const (
	RelationAuthor     RelationName = "author"
	RelationPublisher  RelationName = "publisher"
	RelationImprint    RelationName = "imprint"
	RelationCollection RelationName = "collection"
)

// Relation references another canonical entity by canonical ID
type Relation struct {
	Name        RelationName
	TargetID    string
	TargetKind  EntityKind
	DisplayName string
}

// CanonicalEntity is the source-of-truth record owned by the content store.
// The canonical ID never changes.
type CanonicalEntity struct {
	ID          string
	Kind        EntityKind
	Name        string
	SKU         string
	ISBN        string
	Description string
	Price       decimal.NullDecimal
	Stock       *int64
	// Fields holds free-text scalars that are mirrored as channel metadata
	Fields      map[string]string
	Relations   []Relation
	Memberships []string
	// Facets maps an attribute display name to its term display names
	Facets      map[string][]string
	State       LifecycleState
	UpdatedAt   time.Time
}

// Validate checks the scalar fields a channel needs.
// Only a missing display name is fatal.
func (e *CanonicalEntity) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return NewValidationError(e.ID, "id", "is required")
	}
	if !e.Kind.IsValid() {
		return NewValidationError(e.ID, "kind", "is not a known entity kind")
	}
	if strings.TrimSpace(e.Name) == "" {
		return NewValidationError(e.ID, "name", "is required")
	}
	if e.Price.Valid && e.Price.Decimal.IsNegative() {
		return NewValidationError(e.ID, "price", "must not be negative")
	}
	return nil
}

// IsPublished returns true if the revision is published
func (e *CanonicalEntity) IsPublished() bool {
	return e.State == LifecyclePublished
}

// RelationsNamed returns the relations with the given name
func (e *CanonicalEntity) RelationsNamed(name RelationName) []Relation {
	var out []Relation
	for _, r := range e.Relations {
		if r.Name == name {
			out = append(out, r)
		}
	}
	return out
}

// Identifier returns the channel-facing product identifier. An explicit SKU wins;
// otherwise the ISBN is used with separators removed.
func (e *CanonicalEntity) Identifier() string {
	if sku := strings.TrimSpace(e.SKU); sku != "" {
		return sku
	}
	return NormalizeISBN(e.ISBN)
}

// NormalizeISBN strips hyphens and spaces and upper-cases a trailing check 'x'
func NormalizeISBN(isbn string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(isbn) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == 'x' || r == 'X':
			b.WriteRune('X')
		}
	}
	return b.String()
}

// SelectRevision picks the revision that represents a document when the content store
// returns several for one canonical ID: published wins, otherwise the most recently
// updated. Returns false for an empty slice.
func SelectRevision(revisions []CanonicalEntity) (CanonicalEntity, bool) {
	if len(revisions) == 0 {
		return CanonicalEntity{}, false
	}
	best := revisions[0]
	for _, r := range revisions[1:] {
		if preferRevision(r, best) {
			best = r
		}
	}
	return best, true
}

func preferRevision(candidate, current CanonicalEntity) bool {
	if candidate.IsPublished() != current.IsPublished() {
		return candidate.IsPublished()
	}
	return candidate.UpdatedAt.After(current.UpdatedAt)
}

// CollapseRevisions partitions entities by kind and canonical ID, applying
// SelectRevision to each group. The first-seen order is kept.
func CollapseRevisions(entities []CanonicalEntity) []CanonicalEntity {
	type revisionKey struct {
		kind EntityKind
		id   string
	}
	groups := make(map[revisionKey][]CanonicalEntity, len(entities))
	order := make([]revisionKey, 0, len(entities))
	for _, e := range entities {
		key := revisionKey{kind: e.Kind, id: e.ID}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], e)
	}
	out := make([]CanonicalEntity, 0, len(order))
	for _, key := range order {
		if rev, ok := SelectRevision(groups[key]); ok {
			out = append(out, rev)
		}
	}
	return out
}
