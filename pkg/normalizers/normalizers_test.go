package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

func TestNormalizers(t *testing.T) {
	tests := []struct {
		name string
		fn   Normalizer
		in   string
		want string
	}{
		{"trim", Trim, "  a@x.com \t", "a@x.com"},
		{"none", Identity, "  A@x.com ", "  A@x.com "},
		{"lowercase", Lowercase, "A@X.com", "a@x.com"},
		{"email", NormalizeEmail, " Doc@Hill.Valley ", "doc@hill.valley"},
		{"phone digits", NormalizePhone, "(555) 123-4567", "5551234567"},
		{"phone keeps plus", NormalizePhone, " +1 555 123 ", "+1555123"},
		{"phone only plus", NormalizePhone, "+", ""},
		{"digits only", DigitsOnly, "a1b2c3", "123"},
		{"remove whitespace", RemoveWhitespace, " 12 34 ", "1234"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.fn(tt.in))
		})
	}
}

func TestChain(t *testing.T) {
	fn, err := Chain("trim", "lowercase")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", fn("  A@X.COM "))

	fn, err = Chain()
	require.NoError(t, err)
	assert.Equal(t, "MiXeD", fn(" MiXeD "))

	_, err = Chain("trim", "soundex")
	assert.Error(t, err)
}

func TestOptional(t *testing.T) {
	assert.Nil(t, Optional(nil, Trim))
	assert.Nil(t, Optional(ptr("   "), Trim))
	assert.Nil(t, Optional(ptr("+"), NormalizePhone))
	assert.Equal(t, "123", *Optional(ptr(" 123 "), nil))
	assert.Equal(t, "a@x.com", *Optional(ptr(" A@x.com"), NormalizeEmail))
}
