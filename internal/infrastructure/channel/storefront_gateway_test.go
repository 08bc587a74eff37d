package channel

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) (*StorefrontGateway, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	ch := integration.Channel{
		Key:          "tienda",
		BaseURL:      srv.URL,
		Capabilities: integration.Capabilities{Attributes: true, Brands: true, Categories: true},
		Collections:  integration.DefaultStorefrontCollections(),
	}
	return NewStorefrontGateway(ch, newTestClient(t, srv, RetryPolicy{}), nil), srv
}

func TestStorefrontGateway_TermCollection(t *testing.T) {
	g := NewStorefrontGateway(integration.Channel{Key: "tienda"}, nil, nil)
	assert.Equal(t, "products/categories", g.TermCollection(integration.TaxonomyKindCategory, ""))
	assert.Equal(t, "products/brands", g.TermCollection(integration.TaxonomyKindBrand, ""))
	assert.Equal(t, "products/attributes", g.TermCollection(integration.TaxonomyKindAttribute, ""))
	assert.Equal(t, "products/attributes/3/terms", g.TermCollection(integration.TaxonomyKindAttributeTerm, "3"))
}

func TestStorefrontGateway_SearchTerms(t *testing.T) {
	g, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wp-json/wc/v3/products/brands", r.URL.Path)
		assert.Equal(t, "Planeta & Co", r.URL.Query().Get("search"))
		_, _ = w.Write([]byte(`[{"id":12,"name":"Planeta &amp; Co","slug":"planeta-co"}]`))
	})

	terms, err := g.SearchTerms(context.Background(), integration.TaxonomyKindBrand, "", "Planeta & Co")
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, "12", terms[0].ExternalID)
	assert.Equal(t, "Planeta & Co", terms[0].DisplayName)
	assert.Equal(t, "planeta & co", terms[0].Key)
	assert.EqualValues(t, 12, terms[0].Sequence)
	assert.Equal(t, integration.ChannelKey("tienda"), terms[0].Channel)
}

func TestStorefrontGateway_CreateTerm(t *testing.T) {
	t.Run("Created", func(t *testing.T) {
		g, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/wp-json/wc/v3/products/attributes/4/terms", r.URL.Path)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"88","name":"Tapa dura"}`))
		})

		term, err := g.CreateTerm(context.Background(), integration.TaxonomyKindAttributeTerm, "4", "Tapa dura")
		require.NoError(t, err)
		assert.Equal(t, "88", term.ExternalID)
		assert.Equal(t, "4", term.ParentID)
	})

	t.Run("Duplicate name maps to ErrTermExists", func(t *testing.T) {
		g, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":"term_exists","message":"A term with the name provided already exists.","data":{"status":400,"resource_id":12}}`))
		})

		_, err := g.CreateTerm(context.Background(), integration.TaxonomyKindBrand, "", "Planeta")
		require.Error(t, err)
		assert.ErrorIs(t, err, integration.ErrTermExists)
	})

	t.Run("Other rejection is not a conflict", func(t *testing.T) {
		g, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":"rest_invalid_param","message":"Invalid parameter(s): name"}`))
		})

		_, err := g.CreateTerm(context.Background(), integration.TaxonomyKindBrand, "", "Planeta")
		require.Error(t, err)
		assert.NotErrorIs(t, err, integration.ErrTermExists)
		assert.ErrorIs(t, err, integration.ErrValidation)
	})

	t.Run("Attribute term without parent", func(t *testing.T) {
		g := NewStorefrontGateway(integration.Channel{Key: "tienda"}, nil, nil)
		_, err := g.CreateTerm(context.Background(), integration.TaxonomyKindAttributeTerm, "", "Tapa dura")
		assert.ErrorIs(t, err, integration.ErrValidation)
	})
}

func TestStorefrontGateway_ListAndDeleteTerms(t *testing.T) {
	var deleted string
	g, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("X-WP-TotalPages", "1")
			_, _ = w.Write([]byte(`[{"id":10,"name":"Planeta"},{"id":11,"name":"planeta "}]`))
		case http.MethodDelete:
			assert.Equal(t, "true", r.URL.Query().Get("force"))
			deleted = r.URL.Path
			_, _ = w.Write([]byte(`{"id":11}`))
		}
	})

	terms, err := g.ListTerms(context.Background(), integration.TaxonomyKindBrand, "")
	require.NoError(t, err)
	require.Len(t, terms, 2)
	assert.Equal(t, terms[0].Scope(), terms[1].Scope())

	require.NoError(t, g.DeleteTerm(context.Background(), integration.TaxonomyKindBrand, "", "11"))
	assert.Equal(t, "/wp-json/wc/v3/products/brands/11", deleted)
}

func TestStorefrontGateway_CreateEntity(t *testing.T) {
	var body map[string]any
	g, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wp-json/wc/v3/products", r.URL.Path)
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &body))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":501}`))
	})

	price := decimal.RequireFromString("19.9")
	stock := int64(3)
	payload := integration.EntityPayload{
		Kind:       integration.EntityKindBook,
		Name:       "Atlas",
		SKU:        "9788408123456",
		Price:      &price,
		Stock:      &stock,
		Categories: []integration.TaxonomyTerm{{ExternalID: "15"}},
		Brands:     []integration.TaxonomyTerm{{ExternalID: "12"}},
		Attributes: []integration.AttributeValue{{
			Attribute: integration.TaxonomyTerm{ExternalID: "4"},
			Terms:     []integration.TaxonomyTerm{{DisplayName: "Tapa dura"}},
		}},
		Metadata: []integration.MetaEntry{{Key: "autor_ids", Value: "7"}},
	}

	id, err := g.CreateEntity(context.Background(), "products", payload)
	require.NoError(t, err)
	assert.Equal(t, "501", id)

	assert.Equal(t, "Atlas", body["name"])
	assert.Equal(t, "19.90", body["regular_price"])
	assert.Equal(t, true, body["manage_stock"])
	assert.EqualValues(t, 3, body["stock_quantity"])
	assert.Equal(t, []any{map[string]any{"id": float64(15)}}, body["categories"])
	assert.Equal(t, []any{map[string]any{"id": float64(12)}}, body["brands"])
	attrs := body["attributes"].([]any)
	require.Len(t, attrs, 1)
	assert.Equal(t, []any{"Tapa dura"}, attrs[0].(map[string]any)["options"])
}

func TestStorefrontGateway_UpdateSupportingEntity(t *testing.T) {
	var body map[string]any
	g, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/wp-json/wc/v3/authors/7", r.URL.Path)
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &body))
		_, _ = w.Write([]byte(`{"id":7}`))
	})

	err := g.UpdateEntity(context.Background(), "authors", "7", integration.EntityPayload{
		Kind: integration.EntityKindAuthor,
		Name: "Ana",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Ana"}, body)
}

func TestFlexibleID(t *testing.T) {
	var v struct {
		A flexibleID `json:"a"`
		B flexibleID `json:"b"`
		C flexibleID `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":12,"b":"x9","c":null}`), &v))
	assert.Equal(t, flexibleID("12"), v.A)
	assert.Equal(t, flexibleID("x9"), v.B)
	assert.Equal(t, flexibleID(""), v.C)
}

func TestRegistry(t *testing.T) {
	reg, err := BuildRegistry([]integration.Channel{
		{Key: "tienda", BaseURL: "https://tienda.example/wp-json/wc/v3", Credentials: integration.Credentials{Scheme: integration.AuthSchemeBasic, Key: "ck", Secret: "cs"}},
		{Key: "escolar", BaseURL: "https://escolar.example/wp-json/wc/v3", Credentials: integration.Credentials{Scheme: integration.AuthSchemeBasic, Key: "ck", Secret: "cs"}},
	}, DefaultRetryPolicy(), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []integration.ChannelKey{"escolar", "tienda"}, reg.Keys())
	g, err := reg.Get("tienda")
	require.NoError(t, err)
	assert.Equal(t, integration.ChannelKey("tienda"), g.Channel().Key)

	_, err = reg.Get("crm")
	assert.ErrorIs(t, err, integration.ErrChannelNotFound)

	_, err = BuildRegistry([]integration.Channel{{Key: "bad"}}, DefaultRetryPolicy(), nil, nil)
	assert.ErrorIs(t, err, integration.ErrConfiguration)
}
