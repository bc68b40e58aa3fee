package printer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects printer output for the duration of the test
func captureOutput(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	SetOutput(&stdout, &stderr)

	noColor := color.NoColor
	color.NoColor = true
	t.Cleanup(func() {
		SetOutput(nil, nil)
		color.NoColor = noColor
	})
	return &stdout, &stderr
}

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		_, stderr := captureOutput(t)
		err := Error("Test Error", "This is a test error", []string{})
		require.Error(t, err)
		require.Equal(t, "Test Error", err.Error())
		assert.Contains(t, stderr.String(), "This is a test error")
	})

	t.Run("single suggestion printed as-is", func(t *testing.T) {
		_, stderr := captureOutput(t)
		err := Error("Test Error", "Explanation", []string{"Try this fix"})
		require.Equal(t, "Test Error", err.Error())
		assert.Contains(t, stderr.String(), "Try this fix")
		assert.NotContains(t, stderr.String(), "Either:")
	})

	t.Run("multiple suggestions numbered", func(t *testing.T) {
		_, stderr := captureOutput(t)
		err := Error("Test Error", "Explanation", []string{
			"First option",
			"Second option",
		})
		require.Equal(t, "Test Error", err.Error())
		assert.Contains(t, stderr.String(), "Either:")
		assert.Contains(t, stderr.String(), "  2. Second option")
	})
}

func TestErrorWithContext(t *testing.T) {
	_, stderr := captureOutput(t)
	context := map[string]string{
		"Redis URL": "redis://localhost:6379",
		"Instance":  "test-instance",
	}
	err := ErrorWithContext("Test Error", "Explanation", context, nil)
	require.Equal(t, "Test Error", err.Error())

	output := stderr.String()
	assert.Less(t, strings.Index(output, "Instance"), strings.Index(output, "Redis URL"),
		"context keys are printed in sorted order")
}

func TestSuccessAndWarning(t *testing.T) {
	stdout, _ := captureOutput(t)

	Success("done\n")
	Success("✓ already marked\n")
	Warning("careful\n")

	assert.Contains(t, stdout.String(), "✓ done")
	assert.NotContains(t, stdout.String(), "✓ ✓")
	assert.Contains(t, stdout.String(), "⚠️  careful")
}
