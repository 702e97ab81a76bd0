// File: internal/browser/browser_test.go
package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/clipsight/internal/config"
)

func TestPersonaFromConfig(t *testing.T) {
	t.Run("empty config keeps defaults", func(t *testing.T) {
		p := PersonaFromConfig(config.BrowserConfig{})
		assert.Equal(t, DefaultPersona, p)
	})

	t.Run("configured fields win", func(t *testing.T) {
		p := PersonaFromConfig(config.BrowserConfig{
			UserAgent: "TestAgent/1.0",
			Timezone:  "Europe/Berlin",
			Locale:    "de-DE",
		})
		assert.Equal(t, "TestAgent/1.0", p.UserAgent)
		assert.Equal(t, "Europe/Berlin", p.Timezone)
		assert.Equal(t, "de-DE", p.Locale)
		assert.Equal(t, DefaultPersona.Platform, p.Platform, "platform is not configurable")
	})
}

func TestDismissScript(t *testing.T) {
	script := dismissScript()
	for _, sel := range closeSelectors {
		assert.Contains(t, script, sel)
	}
}

func TestEvasionsScriptEmbedded(t *testing.T) {
	assert.Contains(t, evasionsScript, "webdriver")
}
