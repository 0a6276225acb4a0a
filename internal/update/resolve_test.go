package update

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveEnvironment(t *testing.T) {
	t.Run("explicit flag wins", func(t *testing.T) {
		assert.Equal(t, "qa", ResolveEnvironment("qa", false))
		assert.Equal(t, "qa", ResolveEnvironment("qa", true))
	})

	t.Run("plain run defaults to the preview environment", func(t *testing.T) {
		assert.Equal(t, PreviewEnvironment, ResolveEnvironment("", false))
	})

	t.Run("report run defaults to dev", func(t *testing.T) {
		assert.Equal(t, "dev", ResolveEnvironment("", true))
	})
}
