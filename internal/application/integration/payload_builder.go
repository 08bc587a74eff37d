package integration

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
)

// Metadata keys written on every synced object
const (
	MetaKeyEntityID = "_catalogsync_entity_id"
	MetaKeyISBN     = "_catalogsync_isbn"
	metaKeyRelation = "_catalogsync_%s_ids"
)

// taxonomyRefs is the channel-native taxonomy of one entity
type taxonomyRefs struct {
	categories []integration.TaxonomyTerm
	brands     []integration.TaxonomyTerm
	attributes []integration.AttributeValue
}

// resolveTaxonomy resolves facets, brands and categories. Books carry taxonomy;
// supporting kinds are written with scalars and metadata only.
func (o *Orchestrator) resolveTaxonomy(
	ctx context.Context,
	e *integration.CanonicalEntity,
	gw integration.ChannelGateway,
	relations []integration.ResolvedRelation,
) (taxonomyRefs, error) {
	var refs taxonomyRefs
	if e.Kind != integration.EntityKindBook {
		return refs, nil
	}
	var err error
	if refs.attributes, err = o.mapper.MapFacets(ctx, e, gw); err != nil {
		return refs, err
	}
	if refs.brands, err = o.mapper.MapBrands(ctx, gw, relations); err != nil {
		return refs, err
	}
	if refs.categories, err = o.mapper.MapChannelMemberships(ctx, e, gw); err != nil {
		return refs, err
	}
	return refs, nil
}

// buildPayload assembles the channel-independent payload. Resolved relations are
// written as metadata; unresolved ones are omitted.
func buildPayload(e *integration.CanonicalEntity, relations []integration.ResolvedRelation, refs taxonomyRefs) integration.EntityPayload {
	p := integration.EntityPayload{
		Kind:        e.Kind,
		Name:        strings.TrimSpace(e.Name),
		Description: e.Description,
		Stock:       e.Stock,
		Categories:  refs.categories,
		Brands:      refs.brands,
		Attributes:  refs.attributes,
	}
	if e.Kind == integration.EntityKindBook {
		p.SKU = e.Identifier()
	}
	if e.Price.Valid {
		price := e.Price.Decimal
		p.Price = &price
	}

	p.Metadata = append(p.Metadata, integration.MetaEntry{Key: MetaKeyEntityID, Value: e.ID})
	if isbn := integration.NormalizeISBN(e.ISBN); isbn != "" {
		p.Metadata = append(p.Metadata, integration.MetaEntry{Key: MetaKeyISBN, Value: isbn})
	}
	p.Metadata = append(p.Metadata, relationMetadata(relations)...)

	fields := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		fields = append(fields, k)
	}
	slices.Sort(fields)
	for _, k := range fields {
		p.Metadata = append(p.Metadata, integration.MetaEntry{Key: k, Value: e.Fields[k]})
	}
	return p
}

// relationMetadata groups resolved external IDs per relation name, in relation order
func relationMetadata(relations []integration.ResolvedRelation) []integration.MetaEntry {
	var names []integration.RelationName
	ids := make(map[integration.RelationName][]string)
	for _, r := range relations {
		if !r.Resolved() {
			continue
		}
		if _, ok := ids[r.Name]; !ok {
			names = append(names, r.Name)
		}
		ids[r.Name] = append(ids[r.Name], r.ExternalID)
	}
	entries := make([]integration.MetaEntry, 0, len(names))
	for _, n := range names {
		entries = append(entries, integration.MetaEntry{
			Key:   RelationMetaKey(n),
			Value: strings.Join(ids[n], ","),
		})
	}
	return entries
}

// RelationMetaKey returns the metadata key holding the external IDs of a relation
func RelationMetaKey(name integration.RelationName) string {
	return fmt.Sprintf(metaKeyRelation, name)
}

// describePayload renders a payload for dry-run reports and logs
func describePayload(collection, externalID string, p integration.EntityPayload) map[string]any {
	out := map[string]any{
		"collection": collection,
		"name":       p.Name,
	}
	if externalID != "" {
		out["external_id"] = externalID
	}
	if p.SKU != "" {
		out["sku"] = p.SKU
	}
	if p.Price != nil {
		out["price"] = p.Price.String()
	}
	if p.Stock != nil {
		out["stock"] = *p.Stock
	}
	if len(p.Categories) > 0 {
		out["categories"] = termNames(p.Categories)
	}
	if len(p.Brands) > 0 {
		out["brands"] = termNames(p.Brands)
	}
	if len(p.Attributes) > 0 {
		attrs := make(map[string][]string, len(p.Attributes))
		for _, a := range p.Attributes {
			attrs[a.Attribute.DisplayName] = termNames(a.Terms)
		}
		out["attributes"] = attrs
	}
	meta := make(map[string]string, len(p.Metadata))
	for _, m := range p.Metadata {
		meta[m.Key] = m.Value
	}
	out["metadata"] = meta
	return out
}

func termNames(terms []integration.TaxonomyTerm) []string {
	names := make([]string, 0, len(terms))
	for _, t := range terms {
		names = append(names, t.DisplayName)
	}
	return names
}

// payloadTerms lists every taxonomy term a payload references
func payloadTerms(p integration.EntityPayload) []integration.TaxonomyTerm {
	terms := make([]integration.TaxonomyTerm, 0, len(p.Categories)+len(p.Brands)+len(p.Attributes))
	terms = append(terms, p.Categories...)
	terms = append(terms, p.Brands...)
	for _, a := range p.Attributes {
		terms = append(terms, a.Attribute)
		terms = append(terms, a.Terms...)
	}
	return terms
}
