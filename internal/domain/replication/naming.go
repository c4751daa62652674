package replication

import (
	"fmt"
	"strings"

	"github.com/ttacon/libphonenumber"
	"golang.org/x/text/cases"
)

// DefaultPhoneRegion is used for numbers written without a country prefix
const DefaultPhoneRegion = "BD"

// TrimName collapses surrounding whitespace in a record name
func TrimName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

// NameKey returns the case-folded form of a name used for local
// case-insensitive comparisons.
func NameKey(name string) string {
	// Casers carry state and must not be shared between goroutines
	return cases.Fold().String(TrimName(name))
}

// NormalizeMobile converts a mobile number into E.164 form
func NormalizeMobile(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	if region == "" {
		region = DefaultPhoneRegion
	}
	num, err := libphonenumber.Parse(raw, region)
	if err != nil {
		return "", fmt.Errorf("%w: mobile %q: %v", ErrMalformedNaturalKey, raw, err)
	}
	if !libphonenumber.IsValidNumber(num) {
		return "", fmt.Errorf("%w: mobile %q is not a valid number", ErrMalformedNaturalKey, raw)
	}
	return libphonenumber.Format(num, libphonenumber.E164), nil
}

// Normalize prepares a local payload for storage and key matching.
// Names are trimmed and partner mobiles are rewritten into E.164 form.
func Normalize(t EntityType, v Values) (Values, error) {
	out := v.Clone()
	if name, ok := out["name"].(string); ok {
		out["name"] = TrimName(name)
	}
	if t == EntityPartner && out.Has("mobile") {
		mobile, err := NormalizeMobile(out.String("mobile"), DefaultPhoneRegion)
		if err != nil {
			return nil, err
		}
		out["mobile"] = mobile
	}
	return out, nil
}
