// Package contentstore reads canonical catalog entities from the headless content store
// and writes sync metadata back onto them.
package contentstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
)

// Document is one content store record, normalized from either response shape:
//
//	{"id": 1, "attributes": {"nombre": "...", "editorial": {"data": {...}}}}
//	{"id": 1, "documentId": "abc", "nombre": "...", "editorial": {...}}
type Document struct {
	ID         string
	DocumentID string
	Fields     map[string]json.RawMessage
	Relations  map[string][]Document
}

// CanonicalID returns the stable identifier: documentId when present, else the numeric
// id qualified with the kind ("book:3"). Numeric ids are only unique within one
// collection; documentIds are unique across the store.
func (d Document) CanonicalID(kind integration.EntityKind) string {
	if d.DocumentID != "" {
		return d.DocumentID
	}
	if d.ID == "" {
		return ""
	}
	return kind.String() + ":" + d.ID
}

// RecordID returns the identifier the content store API addresses a record by. It
// reverses the kind qualification of CanonicalID.
func RecordID(kind integration.EntityKind, canonicalID string) string {
	return strings.TrimPrefix(canonicalID, kind.String()+":")
}

// String returns a scalar field as text. Numbers and booleans are formatted, null and
// missing fields are empty.
func (d Document) String(field string) string {
	return scalarString(d.Fields[field])
}

// Strings returns a field holding a string or a list of strings
func (d Document) Strings(field string) []string {
	raw, ok := d.Fields[field]
	if !ok {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	if s := scalarString(raw); s != "" {
		return []string{s}
	}
	return nil
}

// Time returns a timestamp field; the zero time when missing or malformed
func (d Document) Time(field string) time.Time {
	s := d.String(field)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// Published reports whether the record has a publication timestamp
func (d Document) Published() bool {
	return d.String("publishedAt") != ""
}

// DecodeDocument decodes one record in either shape
func DecodeDocument(data json.RawMessage) (Document, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return Document{}, fmt.Errorf("%w: %v", integration.ErrInvalidResponseBody, err)
	}
	if obj == nil {
		return Document{}, fmt.Errorf("%w: null record", integration.ErrInvalidResponseBody)
	}

	doc := Document{
		ID:         scalarString(obj["id"]),
		DocumentID: scalarString(obj["documentId"]),
		Fields:     make(map[string]json.RawMessage),
		Relations:  make(map[string][]Document),
	}

	body := obj
	if attrs, ok := obj["attributes"]; ok && isObject(attrs) {
		if err := json.Unmarshal(attrs, &body); err != nil {
			return Document{}, fmt.Errorf("%w: attributes: %v", integration.ErrInvalidResponseBody, err)
		}
		if doc.DocumentID == "" {
			doc.DocumentID = scalarString(body["documentId"])
		}
	}

	for key, raw := range body {
		switch key {
		case "id", "documentId", "attributes":
			continue
		}
		related, isRelation, err := decodeRelation(raw)
		if err != nil {
			return Document{}, fmt.Errorf("relation %s: %w", key, err)
		}
		if isRelation {
			doc.Relations[key] = related
			continue
		}
		doc.Fields[key] = raw
	}
	return doc, nil
}

// decodeRelation recognizes wrapped ({"data": ...}) and flat populated relations
func decodeRelation(raw json.RawMessage) ([]Document, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, false, nil
	}

	if isObject(raw) {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, false, err
		}
		if data, ok := obj["data"]; ok && len(obj) <= 2 {
			docs, err := decodeRelationData(data)
			return docs, true, err
		}
		if _, ok := obj["documentId"]; ok {
			doc, err := DecodeDocument(raw)
			if err != nil {
				return nil, false, err
			}
			return []Document{doc}, true, nil
		}
		return nil, false, nil
	}

	if raw[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, false, err
		}
		if len(items) == 0 || !isRecord(items[0]) {
			return nil, false, nil
		}
		docs := make([]Document, 0, len(items))
		for _, item := range items {
			doc, err := DecodeDocument(item)
			if err != nil {
				return nil, false, err
			}
			docs = append(docs, doc)
		}
		return docs, true, nil
	}
	return nil, false, nil
}

func decodeRelationData(data json.RawMessage) ([]Document, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	if data[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, err
		}
		docs := make([]Document, 0, len(items))
		for _, item := range items {
			doc, err := DecodeDocument(item)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}
		return docs, nil
	}
	doc, err := DecodeDocument(data)
	if err != nil {
		return nil, err
	}
	return []Document{doc}, nil
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

// isRecord reports whether raw is an object carrying an identifier
func isRecord(raw json.RawMessage) bool {
	if !isObject(raw) {
		return false
	}
	var probe struct {
		ID         json.RawMessage `json:"id"`
		DocumentID json.RawMessage `json:"documentId"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.ID != nil || probe.DocumentID != nil
}

func scalarString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	case '{', '[':
		return ""
	case 't', 'f':
		return strconv.FormatBool(raw[0] == 't')
	default:
		return strings.TrimSpace(string(raw))
	}
}
