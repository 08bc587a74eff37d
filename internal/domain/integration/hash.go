package integration

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"
	"strings"
)

// ResolvedRelation is a relation after the identifier map lookup.
// ExternalID is empty when the target has not been synced to the channel yet.
type ResolvedRelation struct {
	Relation
	ExternalID string
}

// Resolved returns true if the target has an external ID on the channel
func (r ResolvedRelation) Resolved() bool {
	return r.ExternalID != ""
}

type hashedRelation struct {
	Name       RelationName `json:"n"`
	TargetID   string       `json:"t"`
	Display    string       `json:"d"`
	ExternalID string       `json:"x,omitempty"`
}

type hashedFacet struct {
	Attribute string   `json:"a"`
	Terms     []string `json:"t"`
}

type hashedContent struct {
	Channel     ChannelKey        `json:"c"`
	Kind        EntityKind        `json:"k"`
	Name        string            `json:"n"`
	Identifier  string            `json:"i,omitempty"`
	Description string            `json:"d,omitempty"`
	Price       string            `json:"p,omitempty"`
	Stock       *int64            `json:"s,omitempty"`
	Fields      map[string]string `json:"f,omitempty"`
	Relations   []hashedRelation  `json:"r,omitempty"`
	Memberships []string          `json:"m,omitempty"`
	Facets      []hashedFacet     `json:"x,omitempty"`
}

// ContentHash fingerprints the fields that matter for one channel: scalars, the resolved
// relations (name and whether and where they resolved) and the effective memberships.
// Timestamps and lifecycle state are excluded so an unchanged entity hashes equally
// across runs. A relation that becomes resolvable changes the hash.
func ContentHash(e *CanonicalEntity, channel ChannelKey, relations []ResolvedRelation, memberships []string) string {
	content := hashedContent{
		Channel:     channel,
		Kind:        e.Kind,
		Name:        strings.TrimSpace(e.Name),
		Identifier:  e.Identifier(),
		Description: strings.TrimSpace(e.Description),
		Stock:       e.Stock,
		Fields:      e.Fields,
	}
	if e.Price.Valid {
		content.Price = e.Price.Decimal.String()
	}

	for _, r := range relations {
		content.Relations = append(content.Relations, hashedRelation{
			Name:       r.Name,
			TargetID:   r.TargetID,
			Display:    strings.TrimSpace(r.DisplayName),
			ExternalID: r.ExternalID,
		})
	}
	slices.SortFunc(content.Relations, func(a, b hashedRelation) int {
		if c := strings.Compare(string(a.Name), string(b.Name)); c != 0 {
			return c
		}
		return strings.Compare(a.TargetID, b.TargetID)
	})

	for _, m := range memberships {
		content.Memberships = append(content.Memberships, NormalizeKey(m))
	}
	slices.Sort(content.Memberships)

	for attr, terms := range e.Facets {
		sorted := make([]string, 0, len(terms))
		for _, t := range terms {
			sorted = append(sorted, NormalizeKey(t))
		}
		slices.Sort(sorted)
		content.Facets = append(content.Facets, hashedFacet{Attribute: NormalizeKey(attr), Terms: sorted})
	}
	slices.SortFunc(content.Facets, func(a, b hashedFacet) int {
		return strings.Compare(a.Attribute, b.Attribute)
	})

	// encoding/json writes map keys sorted, so Fields is deterministic
	data, _ := json.Marshal(content)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
