package config

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pjbroadbent/layouts-service/pkg/faults"
	"github.com/pjbroadbent/layouts-service/pkg/models"
)

func newTestStore() *Store {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return NewStore(logger)
}

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

func TestQueryDefaults(t *testing.T) {
	store := newTestStore()
	rc := store.QueryFull(models.WindowScope(models.WindowID{UUID: "app", Name: "w1"}))
	assert.True(t, rc.Enabled)
	assert.True(t, rc.Features.Snap)
	assert.Equal(t, models.DefaultTabstripHeight, rc.Tabstrip.Height)
}

func TestNarrowerScopeOverrides(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()
	win := models.WindowID{UUID: "app", Name: "w1"}

	require.NoError(t, store.Add(ctx, models.ServiceScope, models.ConfigObject{
		Tabstrip: &models.TabstripConfig{Height: intPtr(40)},
	}))
	require.NoError(t, store.Add(ctx, models.ApplicationScope("app"), models.ConfigObject{
		Tabstrip: &models.TabstripConfig{Height: intPtr(80)},
	}))

	assert.Equal(t, 80, store.QueryFull(models.WindowScope(win)).Tabstrip.Height)
	assert.Equal(t, 80, store.QueryFull(models.ApplicationScope("app")).Tabstrip.Height)
	// Other applications only see the service-wide entry.
	assert.Equal(t, 40, store.QueryFull(models.ApplicationScope("other")).Tabstrip.Height)
	// The broader scope itself is unaffected by the narrower entry.
	assert.Equal(t, 40, store.QueryFull(models.DesktopScope).Tabstrip.Height)
}

func TestRuleTargeting(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	rule := models.Rule{
		Scope: models.ScopePattern{
			Level: models.LevelWindow,
			UUID:  models.Pattern{Literal: "app"},
			Name:  models.Pattern{Regex: &models.RegEx{Expression: "^w1$"}},
		},
		Config: models.ConfigObject{Enabled: boolPtr(false)},
	}
	require.NoError(t, store.AddRule(ctx, models.ServiceScope, rule))

	assert.False(t, store.QueryFull(models.WindowScope(models.WindowID{UUID: "app", Name: "w1"})).Enabled)
	assert.True(t, store.QueryFull(models.WindowScope(models.WindowID{UUID: "app", Name: "w2"})).Enabled)
	assert.True(t, store.QueryFull(models.WindowScope(models.WindowID{UUID: "other", Name: "w1"})).Enabled)
	// The rule never applies above its own level.
	assert.True(t, store.QueryFull(models.ApplicationScope("app")).Enabled)
}

func TestRuleLevelValidation(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	// A rule may not target a broader level than its source.
	err := store.AddRule(ctx, models.ApplicationScope("app"), models.Rule{
		Scope:  models.ScopePattern{Level: models.LevelDesktop},
		Config: models.ConfigObject{Enabled: boolPtr(false)},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, faults.ErrInvalidScope))

	// Same level is fine.
	require.NoError(t, store.AddRule(ctx, models.ApplicationScope("app"), models.Rule{
		Scope:  models.ScopePattern{Level: models.LevelApplication, UUID: models.Pattern{Literal: "app"}},
		Config: models.ConfigObject{Enabled: boolPtr(false)},
	}))
}

func TestQueryMonotoneUnderUnrelatedAddition(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()
	scope := models.WindowScope(models.WindowID{UUID: "app", Name: "w1"})

	before := store.QueryFull(scope)
	require.NoError(t, store.AddRule(ctx, models.ServiceScope, models.Rule{
		Scope:  models.ScopePattern{Level: models.LevelWindow, UUID: models.Pattern{Literal: "unrelated"}},
		Config: models.ConfigObject{Enabled: boolPtr(false)},
	}))
	assert.Equal(t, before, store.QueryFull(scope))
}

func TestRemoveFromSource(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()
	scope := models.WindowScope(models.WindowID{UUID: "app", Name: "w1"})

	require.NoError(t, store.Add(ctx, models.ApplicationScope("app"), models.ConfigObject{Enabled: boolPtr(false)}))
	require.False(t, store.QueryFull(scope).Enabled)

	store.RemoveFromSource(ctx, models.ApplicationScope("app"))
	assert.True(t, store.QueryFull(scope).Enabled)
}

func TestMaskedQuery(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()
	scope := models.WindowScope(models.WindowID{UUID: "app", Name: "w1"})

	require.NoError(t, store.Add(ctx, models.ServiceScope, models.ConfigObject{
		Enabled:  boolPtr(false),
		Tabstrip: &models.TabstripConfig{Height: intPtr(72)},
	}))

	out := store.Query(scope, models.ConfigMask{Tabstrip: &models.TabstripMask{Height: true}})
	assert.Equal(t, 72, out.Tabstrip.Height)
	assert.False(t, out.Enabled)
	assert.Empty(t, out.Tabstrip.URL)
}

func TestWatchFiresOnChange(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()
	scope := models.WindowScope(models.WindowID{UUID: "app", Name: "w1"})

	var fired []models.ResolvedConfig
	cancel := store.Watch(scope, models.FullMask, func(rc models.ResolvedConfig) {
		fired = append(fired, rc)
	})
	defer cancel()

	// An unrelated entry does not fire the watcher.
	require.NoError(t, store.Add(ctx, models.ApplicationScope("other"), models.ConfigObject{Enabled: boolPtr(false)}))
	assert.Empty(t, fired)

	require.NoError(t, store.Add(ctx, models.ApplicationScope("app"), models.ConfigObject{Enabled: boolPtr(false)}))
	require.Len(t, fired, 1)
	assert.False(t, fired[0].Enabled)

	store.RemoveFromSource(ctx, models.ApplicationScope("app"))
	require.Len(t, fired, 2)
	assert.True(t, fired[1].Enabled)

	cancel()
	require.NoError(t, store.Add(ctx, models.ApplicationScope("app"), models.ConfigObject{Enabled: boolPtr(false)}))
	assert.Len(t, fired, 2)
}

func TestManifestApplication(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	manifest := models.Manifest{
		Service: &models.ConfigObject{Features: &models.FeaturesConfig{Dock: boolPtr(false)}},
		Rules: []models.Rule{
			{
				Scope:  models.ScopePattern{Level: models.LevelApplication, UUID: models.Pattern{Literal: "app"}},
				Config: models.ConfigObject{Features: &models.FeaturesConfig{Tab: boolPtr(false)}},
			},
		},
	}
	require.NoError(t, store.AddManifest(ctx, models.ServiceScope, manifest))

	rc := store.QueryFull(models.WindowScope(models.WindowID{UUID: "app", Name: "w1"}))
	assert.False(t, rc.Features.Dock)
	assert.False(t, rc.Features.Tab)
	assert.True(t, rc.Features.Snap)

	other := store.QueryFull(models.WindowScope(models.WindowID{UUID: "other", Name: "w1"}))
	assert.False(t, other.Features.Dock)
	assert.True(t, other.Features.Tab)
}
