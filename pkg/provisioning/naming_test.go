package provisioning

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugBase(t *testing.T) {
	assert.Equal(t, "cafe-ltda-123", SlugBase("Café Ltda 123"))
	assert.Equal(t, "acme-corp", SlugBase("  ACME   Corp "))
	assert.Equal(t, "tenant", SlugBase("!!!"))
}

func TestUsernameBase(t *testing.T) {
	tests := []struct {
		email string
		want  string
	}{
		{"john.doe@acme.com", "john-doe"},
		{"Maria_Silva+billing@acme.com", "maria-silva-billing"},
		{"joão@acme.com", "joao"},
		{"admin@acme.com", "admin"},
		{"...@acme.com", "admin"},
		{"no-at-sign", "no-at-sign"},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			assert.Equal(t, tt.want, UsernameBase(tt.email))
		})
	}
}
