// Package classify buckets reference-parcel features into subject, comp and
// other groups by identifier matching. Parcel identifiers arrive under
// several historical property spellings and with inconsistent punctuation,
// so every comparison runs on a normalized form.
package classify

import (
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"
)

// DefaultIDFields are the property names checked for a parcel identifier,
// in priority order. Different source datasets carried different spellings.
func DefaultIDFields() []string {
	return []string{"apn", "parcel_id", "parcelid", "pin", "parcel_no", "parcel_num"}
}

// NormalizeID uppercases an identifier and strips every rune that is not a
// letter or digit. Normalizing an already-normalized value is a no-op.
func NormalizeID(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= 'a' && r <= 'z':
			b.WriteRune(r + 'A' - 'a')
		}
	}
	return b.String()
}

// Buckets is the disjoint three-way split of a reference-parcel collection.
type Buckets struct {
	Subject []*geojson.Feature
	Comp    []*geojson.Feature
	Other   []*geojson.Feature
}

func (b Buckets) Total() int {
	return len(b.Subject) + len(b.Comp) + len(b.Other)
}

// Partition classifies every feature of fc by its normalized identifiers.
// A feature is subject when any candidate identifier matches the normalized
// subject id, comp when any matches a member of the comp set, and other
// otherwise. Matching is per-feature symmetric: a feature matching on any
// identifier field classifies the same way regardless of field order. An
// empty subject id or comp set disables that bucket. Every input feature
// lands in exactly one bucket.
func Partition(fc *geojson.FeatureCollection, subjectID string, compIDs []string, fields []string) Buckets {
	if len(fields) == 0 {
		fields = DefaultIDFields()
	}
	subject := NormalizeID(subjectID)
	comps := make(map[string]struct{}, len(compIDs))
	for _, id := range compIDs {
		if n := NormalizeID(id); n != "" {
			comps[n] = struct{}{}
		}
	}

	var out Buckets
	if fc == nil {
		return out
	}
	for _, f := range fc.Features {
		ids := identifierValues(f, fields)
		switch {
		case subject != "" && containsID(ids, subject):
			out.Subject = append(out.Subject, f)
		case matchesAny(ids, comps):
			out.Comp = append(out.Comp, f)
		default:
			out.Other = append(out.Other, f)
		}
	}
	return out
}

// PrimaryID returns the first non-empty normalized identifier of a feature,
// used for feature-state addressing and toggle payloads.
func PrimaryID(f *geojson.Feature, fields []string) (string, bool) {
	if len(fields) == 0 {
		fields = DefaultIDFields()
	}
	ids := identifierValues(f, fields)
	if len(ids) == 0 {
		return "", false
	}
	return ids[0], true
}

func identifierValues(f *geojson.Feature, fields []string) []string {
	if f == nil || f.Properties == nil {
		return nil
	}
	var out []string
	for _, field := range fields {
		v, ok := f.Properties[field]
		if !ok {
			continue
		}
		n := NormalizeID(propertyString(v))
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}

// propertyString renders a raw property value. JSON numbers decode as
// float64; integral identifiers must not pick up an exponent or fraction.
func propertyString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		return ""
	}
}

func containsID(ids []string, want string) bool {
	for _, id := range ids {
		if id == want {
			return true
		}
	}
	return false
}

func matchesAny(ids []string, set map[string]struct{}) bool {
	if len(set) == 0 {
		return false
	}
	for _, id := range ids {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}
