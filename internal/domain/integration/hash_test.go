package integration

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func sampleBook() *CanonicalEntity {
	stock := int64(12)
	return &CanonicalEntity{
		ID:          "B1",
		Kind:        EntityKindBook,
		Name:        "Atlas",
		ISBN:        "978-84-08-12345-6",
		Price:       decimal.NewNullDecimal(decimal.RequireFromString("19.90")),
		Stock:       &stock,
		Fields:      map[string]string{"edition": "2", "pages": "120"},
		Memberships: []string{"escolar"},
		Facets:      map[string][]string{"Formato": {"Tapa dura"}},
		State:       LifecyclePublished,
		UpdatedAt:   time.Now(),
	}
}

func TestContentHash(t *testing.T) {
	rels := []ResolvedRelation{
		{Relation: Relation{Name: RelationAuthor, TargetID: "A1", DisplayName: "Ana"}, ExternalID: "7"},
	}

	t.Run("Deterministic and ignores timestamps", func(t *testing.T) {
		a := sampleBook()
		b := sampleBook()
		b.UpdatedAt = a.UpdatedAt.Add(time.Hour)
		b.State = LifecycleDraft
		assert.Equal(t,
			ContentHash(a, "tienda", rels, []string{"escolar"}),
			ContentHash(b, "tienda", rels, []string{"escolar"}))
	})

	t.Run("Order of relations and memberships does not matter", func(t *testing.T) {
		e := sampleBook()
		r1 := []ResolvedRelation{
			{Relation: Relation{Name: RelationAuthor, TargetID: "A1"}},
			{Relation: Relation{Name: RelationAuthor, TargetID: "A2"}},
		}
		r2 := []ResolvedRelation{r1[1], r1[0]}
		assert.Equal(t,
			ContentHash(e, "tienda", r1, []string{"b", "a"}),
			ContentHash(e, "tienda", r2, []string{"a", "b"}))
	})

	t.Run("Scalar change changes hash", func(t *testing.T) {
		a := sampleBook()
		b := sampleBook()
		b.Price = decimal.NewNullDecimal(decimal.RequireFromString("21.00"))
		assert.NotEqual(t, ContentHash(a, "tienda", rels, nil), ContentHash(b, "tienda", rels, nil))
	})

	t.Run("Relation becoming resolved changes hash", func(t *testing.T) {
		e := sampleBook()
		unresolved := []ResolvedRelation{{Relation: rels[0].Relation}}
		assert.NotEqual(t, ContentHash(e, "tienda", unresolved, nil), ContentHash(e, "tienda", rels, nil))
	})

	t.Run("Channel is part of the hash", func(t *testing.T) {
		e := sampleBook()
		assert.NotEqual(t, ContentHash(e, "tienda", rels, nil), ContentHash(e, "escolar", rels, nil))
	})
}
