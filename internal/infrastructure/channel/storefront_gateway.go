package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
	"go.uber.org/zap"
)

const termPageSize = 100

// Storefront term collections
const (
	attributesCollection = "products/attributes"
	brandsCollection     = "products/brands"
	categoriesCollection = "products/categories"
)

// Ensure StorefrontGateway implements ChannelGateway
var _ integration.ChannelGateway = (*StorefrontGateway)(nil)

// StorefrontGateway speaks the WooCommerce-style REST API of a storefront channel
type StorefrontGateway struct {
	channel integration.Channel
	client  *Client
	logger  *zap.Logger
}

// NewStorefrontGateway creates a gateway for ch on top of client
func NewStorefrontGateway(ch integration.Channel, client *Client, logger *zap.Logger) *StorefrontGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StorefrontGateway{
		channel: ch,
		client:  client,
		logger:  logger.With(zap.String("channel", string(ch.Key))),
	}
}

// Channel returns the configured channel
func (g *StorefrontGateway) Channel() integration.Channel {
	return g.channel
}

// TermCollection returns the collection path for a taxonomy kind
func (g *StorefrontGateway) TermCollection(kind integration.TaxonomyKind, parentID string) string {
	switch kind {
	case integration.TaxonomyKindAttribute:
		return attributesCollection
	case integration.TaxonomyKindAttributeTerm:
		return attributesCollection + "/" + url.PathEscape(parentID) + "/terms"
	case integration.TaxonomyKindBrand:
		return brandsCollection
	case integration.TaxonomyKindCategory:
		return categoriesCollection
	default:
		return ""
	}
}

// ---------------------------------------------------------------------------
// Taxonomy terms
// ---------------------------------------------------------------------------

// SearchTerms searches terms by name. Attributes have no search endpoint and are
// listed in full.
func (g *StorefrontGateway) SearchTerms(ctx context.Context, kind integration.TaxonomyKind, parentID, name string) ([]integration.TaxonomyTerm, error) {
	collection, err := g.termCollection(kind, parentID)
	if err != nil {
		return nil, err
	}
	if kind == integration.TaxonomyKindAttribute {
		return g.ListTerms(ctx, kind, parentID)
	}

	q := url.Values{}
	q.Set("search", name)
	q.Set("per_page", strconv.Itoa(termPageSize))
	resp, err := g.client.Get(ctx, collection, q)
	if err != nil {
		return nil, err
	}
	var raw []storefrontTerm
	if err := resp.Decode(&raw); err != nil {
		return nil, err
	}
	terms := make([]integration.TaxonomyTerm, 0, len(raw))
	for _, r := range raw {
		terms = append(terms, g.toTerm(kind, parentID, r))
	}
	return terms, nil
}

// CreateTerm creates a term with the given display name
func (g *StorefrontGateway) CreateTerm(ctx context.Context, kind integration.TaxonomyKind, parentID, name string) (integration.TaxonomyTerm, error) {
	collection, err := g.termCollection(kind, parentID)
	if err != nil {
		return integration.TaxonomyTerm{}, err
	}
	resp, err := g.client.Create(ctx, collection, termBody{Name: name})
	if err != nil {
		if isTermConflict(err) {
			return integration.TaxonomyTerm{}, fmt.Errorf("%w: %w", integration.ErrTermExists, err)
		}
		return integration.TaxonomyTerm{}, err
	}
	var raw storefrontTerm
	if err := resp.Decode(&raw); err != nil {
		return integration.TaxonomyTerm{}, err
	}
	if raw.ID == "" {
		return integration.TaxonomyTerm{}, integration.ErrInvalidExternalID
	}
	if raw.Name == "" {
		raw.Name = name
	}
	g.logger.Info("created taxonomy term",
		zap.String("kind", kind.String()),
		zap.String("name", name),
		zap.String("external_id", string(raw.ID)),
	)
	return g.toTerm(kind, parentID, raw), nil
}

// ListTerms returns every term of a kind
func (g *StorefrontGateway) ListTerms(ctx context.Context, kind integration.TaxonomyKind, parentID string) ([]integration.TaxonomyTerm, error) {
	collection, err := g.termCollection(kind, parentID)
	if err != nil {
		return nil, err
	}
	var terms []integration.TaxonomyTerm
	for page, err := range g.client.Paginate(ctx, collection, nil, PageOptions{PerPage: termPageSize}) {
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			var raw storefrontTerm
			if err := json.Unmarshal(item, &raw); err != nil {
				return nil, fmt.Errorf("%w: %v", integration.ErrInvalidResponseBody, err)
			}
			terms = append(terms, g.toTerm(kind, parentID, raw))
		}
	}
	return terms, nil
}

// DeleteTerm permanently deletes a term
func (g *StorefrontGateway) DeleteTerm(ctx context.Context, kind integration.TaxonomyKind, parentID, externalID string) error {
	collection, err := g.termCollection(kind, parentID)
	if err != nil {
		return err
	}
	q := url.Values{}
	q.Set("force", "true")
	_, err = g.client.Delete(ctx, collection, externalID, q)
	return err
}

func (g *StorefrontGateway) termCollection(kind integration.TaxonomyKind, parentID string) (string, error) {
	if !kind.IsValid() {
		return "", fmt.Errorf("%w: taxonomy kind %q", integration.ErrUnsupportedKind, kind)
	}
	if kind.NeedsParent() && parentID == "" {
		return "", integration.NewValidationError("", "parent_id", "attribute terms need an attribute")
	}
	return g.TermCollection(kind, parentID), nil
}

func (g *StorefrontGateway) toTerm(kind integration.TaxonomyKind, parentID string, raw storefrontTerm) integration.TaxonomyTerm {
	term := integration.NewTaxonomyTerm(g.channel.Key, kind, parentID, string(raw.ID), html.UnescapeString(raw.Name))
	if n, err := strconv.ParseInt(string(raw.ID), 10, 64); err == nil {
		term.Sequence = n
	}
	if raw.DateModifiedGMT != "" {
		if ts, err := time.Parse("2006-01-02T15:04:05", raw.DateModifiedGMT); err == nil {
			term.ModifiedAt = ts.UTC()
		}
	}
	return term
}

// isTermConflict reports whether a create was rejected because the name is taken
func isTermConflict(err error) bool {
	ce, ok := AsChannelError(err)
	if !ok || ce.Kind != integration.ErrorKindValidation {
		return false
	}
	if ce.StatusCode == http.StatusConflict {
		return true
	}
	var body storefrontError
	if json.Unmarshal(ce.Body, &body) != nil {
		return false
	}
	switch body.Code {
	case "term_exists", "woocommerce_rest_term_exists":
		return true
	}
	msg := strings.ToLower(body.Message)
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "already in use")
}

// ---------------------------------------------------------------------------
// Entities
// ---------------------------------------------------------------------------

// CreateEntity creates the entity and returns its external ID
func (g *StorefrontGateway) CreateEntity(ctx context.Context, collection string, payload integration.EntityPayload) (string, error) {
	resp, err := g.client.Create(ctx, collection, encodePayload(payload))
	if err != nil {
		return "", err
	}
	var obj storefrontObject
	if err := resp.Decode(&obj); err != nil {
		return "", err
	}
	if obj.ID == "" {
		return "", integration.ErrInvalidExternalID
	}
	return string(obj.ID), nil
}

// UpdateEntity overwrites the entity
func (g *StorefrontGateway) UpdateEntity(ctx context.Context, collection, externalID string, payload integration.EntityPayload) error {
	_, err := g.client.Update(ctx, collection, externalID, encodePayload(payload))
	return err
}

// encodePayload builds the native request body for a payload
func encodePayload(p integration.EntityPayload) any {
	meta := make([]metaBody, 0, len(p.Metadata))
	for _, m := range p.Metadata {
		meta = append(meta, metaBody{Key: m.Key, Value: m.Value})
	}

	if p.Kind != integration.EntityKindBook {
		return entityBody{Name: p.Name, Description: p.Description, MetaData: meta}
	}

	body := productBody{
		Name:        p.Name,
		Type:        "simple",
		SKU:         p.SKU,
		Description: p.Description,
		MetaData:    meta,
	}
	if p.Price != nil {
		body.RegularPrice = p.Price.StringFixed(2)
	}
	if p.Stock != nil {
		manage := true
		body.ManageStock = &manage
		body.StockQuantity = p.Stock
	}
	for _, c := range p.Categories {
		body.Categories = append(body.Categories, termRef{ID: idValue(c.ExternalID)})
	}
	for _, b := range p.Brands {
		body.Brands = append(body.Brands, termRef{ID: idValue(b.ExternalID)})
	}
	for _, a := range p.Attributes {
		options := make([]string, 0, len(a.Terms))
		for _, t := range a.Terms {
			options = append(options, t.DisplayName)
		}
		body.Attributes = append(body.Attributes, attributeBody{
			ID:      idValue(a.Attribute.ExternalID),
			Options: options,
			Visible: true,
		})
	}
	return body
}
