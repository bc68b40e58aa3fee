package instance

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateName(t *testing.T) {
	valid := []string{"a", "prod", "ledger-eu-2", "7", strings.Repeat("x", MaxNameLength)}
	for _, name := range valid {
		t.Run("accepts "+name[:min(len(name), 12)], func(t *testing.T) {
			assert.NoError(t, ValidateName(name))
		})
	}

	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"key separator", "prod:blue", "lowercase letters and digits"},
		{"glob star", "prod*", "lowercase letters and digits"},
		{"glob class", "prod[1]", "lowercase letters and digits"},
		{"uppercase", "Prod", "lowercase letters and digits"},
		{"leading hyphen", "-prod", "single hyphens"},
		{"trailing hyphen", "prod-", "single hyphens"},
		{"double hyphen", "prod--eu", "single hyphens"},
		{"whitespace", "prod eu", "lowercase letters and digits"},
		{"too long", strings.Repeat("x", MaxNameLength+1), "exceeds the limit of 63"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid instance name")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("empty", func(t *testing.T) {
		assert.ErrorIs(t, ValidateName(""), ErrEmptyName)
	})
}
