package timespec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	now := time.Date(2025, 10, 29, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		spec     string
		expected time.Time
		wantErr  bool
	}{
		{"duration", "1h30m", now.Add(-90 * time.Minute), false},
		{"rfc3339", "2025-10-29T13:00:00Z", time.Date(2025, 10, 29, 13, 0, 0, 0, time.UTC), false},
		{"empty", "", time.Time{}, true},
		{"garbage", "yesterday", time.Time{}, true},
		{"negative duration", "-1h", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.spec, now)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.expected.Equal(got), "got %s, expected %s", got, tt.expected)
		})
	}
}

func TestParseRange(t *testing.T) {
	now := time.Date(2025, 10, 29, 12, 0, 0, 0, time.UTC)

	t.Run("open range", func(t *testing.T) {
		r, err := ParseRange("", "", now)
		require.NoError(t, err)
		assert.True(t, r.IsOpen())
		assert.True(t, r.Contains(now))
	})

	t.Run("bounded range", func(t *testing.T) {
		r, err := ParseRange("2h", "1h", now)
		require.NoError(t, err)
		assert.True(t, r.Contains(now.Add(-90*time.Minute)))
		assert.False(t, r.Contains(now.Add(-3*time.Hour)))
		assert.False(t, r.Contains(now))
	})

	t.Run("since after until", func(t *testing.T) {
		_, err := ParseRange("1h", "2h", now)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "--since must be before --until")
	})

	t.Run("invalid since", func(t *testing.T) {
		_, err := ParseRange("soon", "", now)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid --since")
	})
}
