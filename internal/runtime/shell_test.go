package runtime

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunShell(t *testing.T) {
	ctx := context.Background()

	t.Run("captures output", func(t *testing.T) {
		out, err := RunShell(ctx, "echo hello", nil)
		require.NoError(t, err)
		assert.Equal(t, "hello", strings.TrimSpace(out))
	})

	t.Run("non-zero exit includes output", func(t *testing.T) {
		out, err := RunShell(ctx, "echo oops && exit 3", nil)
		require.Error(t, err)
		assert.Contains(t, out, "oops")
		assert.Contains(t, err.Error(), "oops")
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		_, err := RunShell(ctx, "sleep 5", nil)
		assert.Error(t, err)
	})
}
