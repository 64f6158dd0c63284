package tenants

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSlug(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "simple name", input: "MyOrg", expected: "myorg"},
		{name: "name with spaces", input: "My Organization", expected: "my-organization"},
		{name: "name with special chars", input: "My-Org-123", expected: "my-org-123"},
		{name: "accents folded", input: "Café Ltda 123", expected: "cafe-ltda-123"},
		{name: "cedilla and tilde", input: "Açaí São João", expected: "acai-sao-joao"},
		{name: "punctuation dropped", input: "Acme, Inc. (BR)", expected: "acme-inc-br"},
		{name: "whitespace collapsed", input: "  Big \t  Corp  ", expected: "big-corp"},
		{name: "dash runs collapsed", input: "a - b", expected: "a-b"},
		{name: "nothing usable", input: "!!!", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GenerateSlug(tt.input))
		})
	}
}

func TestGenerateSlug_Truncates(t *testing.T) {
	slug := GenerateSlug(strings.Repeat("abcde ", 20))
	assert.LessOrEqual(t, len(slug), MaxSlugLength)
	assert.False(t, strings.HasSuffix(slug, "-"))
	assert.True(t, strings.HasPrefix(slug, "abcde-abcde"))
}

func TestUniqueName(t *testing.T) {
	ctx := context.Background()
	taken := map[string]bool{"cafe-ltda-123": true, "acme": true, "acme-1": true}
	exists := func(_ context.Context, candidate string) (bool, error) {
		return taken[candidate], nil
	}

	name, err := UniqueName(ctx, "fresh", exists)
	require.NoError(t, err)
	assert.Equal(t, "fresh", name)

	name, err = UniqueName(ctx, "cafe-ltda-123", exists)
	require.NoError(t, err)
	assert.Equal(t, "cafe-ltda-123-1", name)

	name, err = UniqueName(ctx, "acme", exists)
	require.NoError(t, err)
	assert.Equal(t, "acme-2", name)
}

func TestUniqueName_Errors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := UniqueName(ctx, "x", func(context.Context, string) (bool, error) { return false, boom })
	assert.ErrorIs(t, err, boom)

	_, err = UniqueName(ctx, "x", func(context.Context, string) (bool, error) { return true, nil })
	assert.Error(t, err)
}

func TestUniqueName_LastSuffix(t *testing.T) {
	ctx := context.Background()
	last := fmt.Sprintf("x-%d", maxSuffix)

	var tried []string
	name, err := UniqueName(ctx, "x", func(_ context.Context, candidate string) (bool, error) {
		tried = append(tried, candidate)
		return candidate != last, nil
	})
	require.NoError(t, err)
	assert.Equal(t, last, name)
	assert.Len(t, tried, maxSuffix+1)

	tried = nil
	_, err = UniqueName(ctx, "x", func(_ context.Context, candidate string) (bool, error) {
		tried = append(tried, candidate)
		return true, nil
	})
	require.Error(t, err)
	assert.Len(t, tried, maxSuffix+1)
	assert.Equal(t, last, tried[len(tried)-1])
}
