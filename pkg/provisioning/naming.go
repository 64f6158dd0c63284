package provisioning

import (
	"context"
	"strings"

	"github.com/platinummonkey/warden/pkg/tenants"
)

const (
	fallbackSlug     = "tenant"
	fallbackUsername = "admin"
)

var usernameSeparators = strings.NewReplacer(".", " ", "_", " ", "+", " ")

// SlugBase derives the slug candidate of a company name
func SlugBase(companyName string) string {
	if slug := tenants.GenerateSlug(companyName); slug != "" {
		return slug
	}
	return fallbackSlug
}

// UsernameBase derives the username candidate of an email address from its
// local part. Dots, underscores and plus signs separate words.
func UsernameBase(email string) string {
	local := email
	if at := strings.LastIndex(email, "@"); at >= 0 {
		local = email[:at]
	}
	if name := tenants.GenerateSlug(usernameSeparators.Replace(local)); name != "" {
		return name
	}
	return fallbackUsername
}

func uniqueSlug(ctx context.Context, companyName string, exists tenants.ExistsFunc) (string, error) {
	return tenants.UniqueName(ctx, SlugBase(companyName), exists)
}

func uniqueUsername(ctx context.Context, email string, exists tenants.ExistsFunc) (string, error) {
	return tenants.UniqueName(ctx, UsernameBase(email), exists)
}
