package contentstore

import (
	"strconv"
	"strings"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
	"github.com/shopspring/decimal"
)

// RelationField describes how one named relation is stored
type RelationField struct {
	Name      integration.RelationName
	Field     string
	Kind      integration.EntityKind
	NameField string
}

// Schema maps a content store collection onto canonical entities of one kind
type Schema struct {
	Kind                integration.EntityKind
	Collection          string
	NameField           string
	SKUField            string
	ISBNField           string
	DescriptionField    string
	PriceField          string
	StockField          string
	// Fields lists extra scalar fields copied into CanonicalEntity.Fields
	Fields              []string
	Relations           []RelationField
	// MembershipField holds channel tags, either as strings or as related records
	MembershipField     string
	MembershipNameField string
	// Facets maps an attribute display name to the field holding its values
	Facets              map[string]string
}

// DefaultSchemas returns the catalog collections of the content store
func DefaultSchemas() map[integration.EntityKind]Schema {
	publisher := RelationField{Name: integration.RelationPublisher, Field: "editorial", Kind: integration.EntityKindPublisher, NameField: "nombre_editorial"}
	return map[integration.EntityKind]Schema{
		integration.EntityKindAuthor: {
			Kind:             integration.EntityKindAuthor,
			Collection:       "autores",
			NameField:        "nombre_completo_autor",
			DescriptionField: "resegna",
		},
		integration.EntityKindPublisher: {
			Kind:             integration.EntityKindPublisher,
			Collection:       "editoriales",
			NameField:        "nombre_editorial",
			DescriptionField: "descripcion",
		},
		integration.EntityKindImprint: {
			Kind:       integration.EntityKindImprint,
			Collection: "sellos",
			NameField:  "nombre_sello",
			Relations:  []RelationField{publisher},
		},
		integration.EntityKindCollection: {
			Kind:       integration.EntityKindCollection,
			Collection: "colecciones",
			NameField:  "nombre_coleccion",
			Relations:  []RelationField{publisher},
		},
		integration.EntityKindBook: {
			Kind:             integration.EntityKindBook,
			Collection:       "libros",
			NameField:        "nombre_libro",
			SKUField:         "sku",
			ISBNField:        "isbn_libro",
			DescriptionField: "descripcion",
			PriceField:       "precio",
			StockField:       "stock",
			Fields:           []string{"subtitulo_libro", "numero_edicion", "agno_edicion", "numero_paginas"},
			Relations: []RelationField{
				{Name: integration.RelationAuthor, Field: "autores", Kind: integration.EntityKindAuthor, NameField: "nombre_completo_autor"},
				publisher,
				{Name: integration.RelationImprint, Field: "sello", Kind: integration.EntityKindImprint, NameField: "nombre_sello"},
				{Name: integration.RelationCollection, Field: "coleccion", Kind: integration.EntityKindCollection, NameField: "nombre_coleccion"},
			},
			MembershipField:     "canales",
			MembershipNameField: "key",
			Facets: map[string]string{
				"Formato": "tipo_libro",
				"Idioma":  "idioma",
				"Estado":  "estado_edicion",
			},
		},
	}
}

// ToEntity maps a document onto a canonical entity. It does not validate; blank names
// and negative prices are rejected by the sync core per entity.
func (s Schema) ToEntity(doc Document) integration.CanonicalEntity {
	e := integration.CanonicalEntity{
		ID:          doc.CanonicalID(s.Kind),
		Kind:        s.Kind,
		Name:        doc.String(s.NameField),
		State:       integration.LifecycleDraft,
		UpdatedAt:   doc.Time("updatedAt"),
		Fields:      make(map[string]string),
		Facets:      make(map[string][]string),
		Memberships: s.memberships(doc),
	}
	if doc.Published() {
		e.State = integration.LifecyclePublished
	}
	if s.SKUField != "" {
		e.SKU = doc.String(s.SKUField)
	}
	if s.ISBNField != "" {
		e.ISBN = doc.String(s.ISBNField)
	}
	if s.DescriptionField != "" {
		e.Description = doc.String(s.DescriptionField)
	}
	if s.PriceField != "" {
		if v := doc.String(s.PriceField); v != "" {
			if d, err := decimal.NewFromString(v); err == nil {
				e.Price = decimal.NewNullDecimal(d)
			}
		}
	}
	if s.StockField != "" {
		if v := doc.String(s.StockField); v != "" {
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				stock := int64(n)
				e.Stock = &stock
			}
		}
	}
	for _, f := range s.Fields {
		if v := doc.String(f); v != "" {
			e.Fields[f] = v
		}
	}
	for name, field := range s.Facets {
		var values []string
		for _, v := range doc.Strings(field) {
			if v = strings.TrimSpace(v); v != "" {
				values = append(values, v)
			}
		}
		if len(values) > 0 {
			e.Facets[name] = values
		}
	}
	for _, rf := range s.Relations {
		for _, related := range doc.Relations[rf.Field] {
			id := related.CanonicalID(rf.Kind)
			if id == "" {
				continue
			}
			e.Relations = append(e.Relations, integration.Relation{
				Name:        rf.Name,
				TargetID:    id,
				TargetKind:  rf.Kind,
				DisplayName: related.String(rf.NameField),
			})
		}
	}
	return e
}

func (s Schema) memberships(doc Document) []string {
	if s.MembershipField == "" {
		return nil
	}
	if related, ok := doc.Relations[s.MembershipField]; ok {
		tags := make([]string, 0, len(related))
		for _, r := range related {
			if tag := r.String(s.MembershipNameField); tag != "" {
				tags = append(tags, tag)
			}
		}
		return tags
	}
	return doc.Strings(s.MembershipField)
}
