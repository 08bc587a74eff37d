package integration

import (
	"context"
	"slices"
	"strings"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
)

// ChannelMapper translates canonical grouping concepts into channel-native taxonomy
type ChannelMapper struct {
	resolver *TaxonomyResolver
}

// NewChannelMapper creates a mapper that resolves terms through resolver
func NewChannelMapper(resolver *TaxonomyResolver) *ChannelMapper {
	return &ChannelMapper{resolver: resolver}
}

// AcceptedMemberships returns the effective memberships of e that the channel accepts
func AcceptedMemberships(e *integration.CanonicalEntity, ch integration.Channel) []string {
	var accepted []string
	for _, tag := range integration.EffectiveMemberships(e, ch.MembershipRules) {
		if ch.Accepts(tag) {
			accepted = append(accepted, tag)
		}
	}
	return accepted
}

// MapChannelMemberships resolves one category per accepted membership of the entity,
// derived memberships included. Memberships whose category is absent on the channel
// are skipped. Two tags aliased to one category yield it once.
func (m *ChannelMapper) MapChannelMemberships(
	ctx context.Context,
	e *integration.CanonicalEntity,
	gw integration.ChannelGateway,
) ([]integration.TaxonomyTerm, error) {
	ch := gw.Channel()
	var categories []integration.TaxonomyTerm
	for _, tag := range AcceptedMemberships(e, ch) {
		term, found, err := m.resolver.ResolveTerm(ctx, gw, integration.TaxonomyKindCategory, ch.CategoryName(tag), "")
		if err != nil {
			return nil, err
		}
		if !found || containsTerm(categories, term) {
			continue
		}
		categories = append(categories, term)
	}
	return categories, nil
}

// MapFacets resolves each facet of the entity to an attribute and its terms.
// Facets are resolved in attribute name order.
func (m *ChannelMapper) MapFacets(
	ctx context.Context,
	e *integration.CanonicalEntity,
	gw integration.ChannelGateway,
) ([]integration.AttributeValue, error) {
	names := make([]string, 0, len(e.Facets))
	for name := range e.Facets {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		return strings.Compare(integration.NormalizeKey(a), integration.NormalizeKey(b))
	})

	var values []integration.AttributeValue
	for _, name := range names {
		attr, found, err := m.resolver.ResolveTerm(ctx, gw, integration.TaxonomyKindAttribute, name, "")
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		value := integration.AttributeValue{Attribute: attr}
		for _, v := range e.Facets[name] {
			term, found, err := m.resolver.ResolveTerm(ctx, gw, integration.TaxonomyKindAttributeTerm, v, attr.ExternalID)
			if err != nil {
				return nil, err
			}
			if found && !containsTerm(value.Terms, term) {
				value.Terms = append(value.Terms, term)
			}
		}
		if len(value.Terms) > 0 {
			values = append(values, value)
		}
	}
	return values, nil
}

// MapBrands resolves a brand per resolved publisher when the channel mirrors
// publishers as brands
func (m *ChannelMapper) MapBrands(
	ctx context.Context,
	gw integration.ChannelGateway,
	relations []integration.ResolvedRelation,
) ([]integration.TaxonomyTerm, error) {
	if !gw.Channel().BrandFromPublisher {
		return nil, nil
	}
	var brands []integration.TaxonomyTerm
	for _, rel := range relations {
		if rel.Name != integration.RelationPublisher || !rel.Resolved() {
			continue
		}
		term, found, err := m.resolver.ResolveTerm(ctx, gw, integration.TaxonomyKindBrand, rel.DisplayName, "")
		if err != nil {
			return nil, err
		}
		if found && !containsTerm(brands, term) {
			brands = append(brands, term)
		}
	}
	return brands, nil
}

func containsTerm(terms []integration.TaxonomyTerm, t integration.TaxonomyTerm) bool {
	return slices.ContainsFunc(terms, func(o integration.TaxonomyTerm) bool {
		return o.ExternalID == t.ExternalID
	})
}
