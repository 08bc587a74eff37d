package contentstore

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/url"
	"strings"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/infrastructure/channel"
	"go.uber.org/zap"
)

// DefaultPageSize is the page size requested from the content store
const DefaultPageSize = 100

// Ensure Client implements the source and write-back ports
var (
	_ integration.EntitySource      = (*Client)(nil)
	_ integration.MetadataPublisher = (*Client)(nil)
)

// Client reads entities from the content store REST API
type Client struct {
	api      *channel.Client
	schemas  map[integration.EntityKind]Schema
	pageSize int
	logger   *zap.Logger
}

// NewClient creates a content store client over a retryable REST client.
// A nil schemas map uses DefaultSchemas.
func NewClient(api *channel.Client, schemas map[integration.EntityKind]Schema, pageSize int, logger *zap.Logger) *Client {
	if schemas == nil {
		schemas = DefaultSchemas()
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		api:      api,
		schemas:  schemas,
		pageSize: pageSize,
		logger:   logger.With(zap.String("component", "contentstore")),
	}
}

// listResponse is the envelope of a collection listing
type listResponse struct {
	Data []json.RawMessage `json:"data"`
	Meta struct {
		Pagination struct {
			Page      int `json:"page"`
			PageSize  int `json:"pageSize"`
			PageCount int `json:"pageCount"`
			Total     int `json:"total"`
		} `json:"pagination"`
	} `json:"meta"`
}

// decodeListPage reads items and meta.pagination.pageCount
func decodeListPage(resp *channel.Response) ([]json.RawMessage, int, error) {
	var body listResponse
	if err := resp.Decode(&body); err != nil {
		return nil, 0, err
	}
	return body.Data, body.Meta.Pagination.PageCount, nil
}

// Entities yields the entities of one kind page by page, drafts included.
// Breaking out of the sequence stops fetching.
func (c *Client) Entities(ctx context.Context, kind integration.EntityKind) iter.Seq2[[]integration.CanonicalEntity, error] {
	return func(yield func([]integration.CanonicalEntity, error) bool) {
		schema, ok := c.schemas[kind]
		if !ok {
			yield(nil, fmt.Errorf("%w: %s", integration.ErrUnsupportedKind, kind))
			return
		}

		q := url.Values{}
		q.Set("populate", "*")
		q.Set("publicationState", "preview")
		q.Set("status", "draft")
		opts := channel.PageOptions{
			PageParam: "pagination[page]",
			SizeParam: "pagination[pageSize]",
			PerPage:   c.pageSize,
			Decoder:   decodeListPage,
		}

		for page, err := range c.api.Paginate(ctx, schema.Collection, q, opts) {
			if err != nil {
				yield(nil, fmt.Errorf("listing %s: %w", schema.Collection, err))
				return
			}
			entities := make([]integration.CanonicalEntity, 0, len(page.Items))
			for _, item := range page.Items {
				doc, err := DecodeDocument(item)
				if err != nil {
					yield(nil, fmt.Errorf("decoding %s page %d: %w", schema.Collection, page.Number, err))
					return
				}
				entities = append(entities, schema.ToEntity(doc))
			}
			c.logger.Debug("fetched page",
				zap.String("collection", schema.Collection),
				zap.Int("page", page.Number),
				zap.Int("page_count", page.TotalPages),
				zap.Int("entities", len(entities)),
			)
			if !yield(entities, nil) {
				return
			}
		}
	}
}

// PublishSyncMetadata writes the external ID and content hash of a mapping onto the
// canonical record as sync_<channel>_id and sync_<channel>_hash
func (c *Client) PublishSyncMetadata(ctx context.Context, entity *integration.CanonicalEntity, mapping integration.ExternalIDMapping) error {
	schema, ok := c.schemas[entity.Kind]
	if !ok {
		return fmt.Errorf("%w: %s", integration.ErrUnsupportedKind, entity.Kind)
	}
	prefix := "sync_" + strings.ReplaceAll(string(mapping.Channel), "-", "_")
	body := map[string]any{
		"data": map[string]string{
			prefix + "_id":   mapping.ExternalID,
			prefix + "_hash": mapping.ContentHash,
		},
	}
	if _, err := c.api.Update(ctx, schema.Collection, RecordID(entity.Kind, entity.ID), body); err != nil {
		return fmt.Errorf("writing sync metadata for %s: %w", entity.ID, err)
	}
	return nil
}
