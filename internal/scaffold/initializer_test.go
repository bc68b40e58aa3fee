package scaffold

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/dyluth/cmdbus/internal/config"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name      string
		force     bool
		setupFunc func(string)
		wantWarn  bool
	}{
		{
			name:      "fresh initialization",
			setupFunc: func(dir string) {},
		},
		{
			name:  "force initialization replaces existing file",
			force: true,
			setupFunc: func(dir string) {
				os.WriteFile(filepath.Join(dir, ConfigFile), []byte("old content"), 0644)
			},
			wantWarn: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			tt.setupFunc(dir)

			var out bytes.Buffer
			require.NoError(t, Initialize(dir, tt.force, &out))

			content, err := os.ReadFile(filepath.Join(dir, ConfigFile))
			require.NoError(t, err)
			assert.NotContains(t, string(content), "old content")

			var cfg config.CmdbusConfig
			require.NoError(t, yaml.Unmarshal(content, &cfg))
			require.NoError(t, cfg.Validate())
			assert.Equal(t, "unexpected", cfg.Bus.Rollback)
			assert.Equal(t, config.Default().PendingCreates.TTL, cfg.PendingCreates.TTL)

			if tt.wantWarn {
				assert.Contains(t, out.String(), "Removing existing cmdbus.yml")
			}
		})
	}
}

func TestCheckExisting(t *testing.T) {
	t.Run("empty directory", func(t *testing.T) {
		assert.NoError(t, CheckExisting(t.TempDir()))
	})

	t.Run("existing config", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte("version: \"1.0\"\n"), 0644))

		err := CheckExisting(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cmdbus init --force")
	})
}

func TestPrintSuccess(t *testing.T) {
	var out bytes.Buffer
	PrintSuccess(&out)
	assert.Contains(t, out.String(), "✓ cmdbus.yml")
}
