package tenants

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxSlugLength bounds the base of a generated slug. Collision suffixes are
// appended after truncation.
const MaxSlugLength = 50

// maxSuffix bounds the collision search
const maxSuffix = 1000

// GenerateSlug derives a URL-safe slug from a display name: accents are
// folded, letters lower-cased, anything outside [a-z0-9], whitespace and '-'
// dropped, and whitespace runs joined with '-'. The result may be empty.
func GenerateSlug(name string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err != nil {
		folded = name
	}

	slug := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		if unicode.IsSpace(r) {
			return ' '
		}
		return -1
	}, strings.ToLower(folded))

	slug = strings.Join(strings.Fields(slug), "-")
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	slug = strings.Trim(slug, "-")

	if len(slug) > MaxSlugLength {
		slug = strings.TrimRight(slug[:MaxSlugLength], "-")
	}
	return slug
}

// ExistsFunc reports whether a candidate identifier is already taken
type ExistsFunc func(ctx context.Context, candidate string) (bool, error)

// UniqueName returns base if it is free, otherwise the first free of
// base-1, base-2, ... base-maxSuffix
func UniqueName(ctx context.Context, base string, exists ExistsFunc) (string, error) {
	for i := 0; i <= maxSuffix; i++ {
		candidate := base
		if i > 0 {
			candidate = fmt.Sprintf("%s-%d", base, i)
		}
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free name for %q after %d attempts", base, maxSuffix+1)
}
