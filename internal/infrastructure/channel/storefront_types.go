package channel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// flexibleID accepts numeric and string identifiers. Storefront plugins disagree on
// which one they return.
type flexibleID string

// UnmarshalJSON implements json.Unmarshaler
func (f *flexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) || bytes.Equal(data, []byte("false")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*f = flexibleID(n.String())
	return nil
}

// idValue sends numeric identifiers as numbers
func idValue(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}

// storefrontTerm is a category, brand, attribute or attribute term
type storefrontTerm struct {
	ID              flexibleID `json:"id"`
	Name            string     `json:"name"`
	Slug            string     `json:"slug"`
	DateModifiedGMT string     `json:"date_modified_gmt,omitempty"`
}

// storefrontError is the error body returned by the REST API
type storefrontError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Status     int        `json:"status"`
		ResourceID flexibleID `json:"resource_id"`
	} `json:"data"`
}

// storefrontObject is the subset of a created object we read back
type storefrontObject struct {
	ID flexibleID `json:"id"`
}

type termRef struct {
	ID any `json:"id"`
}

type attributeBody struct {
	ID      any      `json:"id"`
	Options []string `json:"options"`
	Visible bool     `json:"visible"`
}

type metaBody struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type termBody struct {
	Name string `json:"name"`
}

// productBody is the product payload
type productBody struct {
	Name          string          `json:"name"`
	Type          string          `json:"type,omitempty"`
	SKU           string          `json:"sku,omitempty"`
	Description   string          `json:"description,omitempty"`
	RegularPrice  string          `json:"regular_price,omitempty"`
	ManageStock   *bool           `json:"manage_stock,omitempty"`
	StockQuantity *int64          `json:"stock_quantity,omitempty"`
	Categories    []termRef       `json:"categories,omitempty"`
	Brands        []termRef       `json:"brands,omitempty"`
	Attributes    []attributeBody `json:"attributes,omitempty"`
	MetaData      []metaBody      `json:"meta_data,omitempty"`
}

// entityBody is the payload for supporting entities (authors, brands, imprints...)
type entityBody struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	MetaData    []metaBody `json:"meta_data,omitempty"`
}
