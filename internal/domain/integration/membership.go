package integration

import (
	"slices"
	"strings"
)

// MembershipRule adds Tag to any entity whose publisher matches one of the listed
// canonical IDs or (normalized) names.
type MembershipRule struct {
	Tag            string
	PublisherIDs   []string
	PublisherNames []string
}

func (r MembershipRule) matches(rel Relation) bool {
	if slices.Contains(r.PublisherIDs, rel.TargetID) {
		return true
	}
	key := NormalizeKey(rel.DisplayName)
	if key == "" {
		return false
	}
	return slices.ContainsFunc(r.PublisherNames, func(n string) bool {
		return NormalizeKey(n) == key
	})
}

// DeriveMemberships is the single rule that turns entity attributes into implicit
// memberships: a book published by a curated publisher belongs to that publisher's
// channel tag. It is a pure function of the entity and the rules.
func DeriveMemberships(e *CanonicalEntity, rules []MembershipRule) []string {
	var tags []string
	publishers := e.RelationsNamed(RelationPublisher)
	for _, rule := range rules {
		if strings.TrimSpace(rule.Tag) == "" {
			continue
		}
		for _, p := range publishers {
			if rule.matches(p) {
				tags = append(tags, rule.Tag)
				break
			}
		}
	}
	return normalizeTags(tags)
}

// EffectiveMemberships is the union of explicit and derived memberships, deduplicated by
// normalized key and sorted.
func EffectiveMemberships(e *CanonicalEntity, rules []MembershipRule) []string {
	all := make([]string, 0, len(e.Memberships)+len(rules))
	all = append(all, e.Memberships...)
	all = append(all, DeriveMemberships(e, rules)...)
	return normalizeTags(all)
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		key := NormalizeKey(t)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b string) int {
		return strings.Compare(NormalizeKey(a), NormalizeKey(b))
	})
	return out
}
