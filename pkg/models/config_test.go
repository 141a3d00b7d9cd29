package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func boolPtr(b bool) *bool    { return &b }
func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestConfigMerge(t *testing.T) {
	base := ConfigObject{
		Enabled:  boolPtr(true),
		Features: &FeaturesConfig{Snap: boolPtr(true), Tab: boolPtr(true)},
	}
	overlay := ConfigObject{
		Features: &FeaturesConfig{Tab: boolPtr(false)},
		Tabstrip: &TabstripConfig{Height: intPtr(48)},
	}

	merged := base.Merge(overlay)
	assert.True(t, *merged.Enabled)
	assert.True(t, *merged.Features.Snap)
	assert.False(t, *merged.Features.Tab)
	assert.Nil(t, merged.Features.Dock)
	assert.Equal(t, 48, *merged.Tabstrip.Height)

	// Merging never mutates the receiver's feature set.
	assert.True(t, *base.Features.Tab)
}

func TestConfigResolveDefaults(t *testing.T) {
	resolved := ConfigObject{}.Resolve()
	assert.True(t, resolved.Enabled)
	assert.True(t, resolved.Features.Snap)
	assert.True(t, resolved.Features.Tab)
	assert.True(t, resolved.Features.Dock)
	assert.Equal(t, DefaultTabstripURL, resolved.Tabstrip.URL)
	assert.Equal(t, DefaultTabstripHeight, resolved.Tabstrip.Height)

	resolved = ConfigObject{
		Enabled:  boolPtr(false),
		Tabstrip: &TabstripConfig{URL: strPtr("https://strip.local/tabs.html")},
	}.Resolve()
	assert.False(t, resolved.Enabled)
	assert.Equal(t, "https://strip.local/tabs.html", resolved.Tabstrip.URL)
	assert.Equal(t, DefaultTabstripHeight, resolved.Tabstrip.Height)
}

func TestMaskApply(t *testing.T) {
	resolved := ResolvedConfig{
		Enabled:  true,
		Features: ResolvedFeatures{Snap: true, Tab: true, Dock: true},
		Tabstrip: ResolvedTabstrip{URL: "u", Height: 99},
	}

	mask := ConfigMask{Enabled: true, Features: &FeaturesMask{Tab: true}}
	out := mask.Apply(resolved)
	assert.True(t, out.Enabled)
	assert.True(t, out.Features.Tab)
	// Unmasked leaves stay zero.
	assert.False(t, out.Features.Snap)
	assert.Empty(t, out.Tabstrip.URL)
	assert.Zero(t, out.Tabstrip.Height)

	full := FullMask.Apply(resolved)
	assert.Equal(t, resolved, full)
}
