package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeCovers(t *testing.T) {
	win := WindowScope(WindowID{UUID: "app", Name: "w1"})

	tests := []struct {
		name    string
		broader Scope
		target  Scope
		want    bool
	}{
		{"service covers window", ServiceScope, win, true},
		{"desktop covers window", DesktopScope, win, true},
		{"application covers own window", ApplicationScope("app"), win, true},
		{"application misses other app", ApplicationScope("other"), win, false},
		{"window covers itself", win, win, true},
		{"window misses sibling", win, WindowScope(WindowID{UUID: "app", Name: "w2"}), false},
		{"narrower never covers broader", win, ApplicationScope("app"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.broader.Covers(tt.target))
		})
	}
}

func TestRegExMatch(t *testing.T) {
	assert.True(t, RegEx{Expression: "^app-.*$"}.Match("app-main"))
	assert.False(t, RegEx{Expression: "^app-.*$"}.Match("other"))
	assert.True(t, RegEx{Expression: "^APP$", Flags: "i"}.Match("app"))
	assert.True(t, RegEx{Expression: "^app$", Invert: true}.Match("other"))
	assert.False(t, RegEx{Expression: "^app$", Invert: true}.Match("app"))
	assert.False(t, RegEx{Expression: "("}.Match("anything"))
}

func TestPatternJSON(t *testing.T) {
	var p Pattern
	require.NoError(t, json.Unmarshal([]byte(`"literal"`), &p))
	assert.Equal(t, "literal", p.Literal)
	assert.True(t, p.Match("literal"))
	assert.False(t, p.Match("other"))

	require.NoError(t, json.Unmarshal([]byte(`{"expression":"^w[0-9]+$"}`), &p))
	require.NotNil(t, p.Regex)
	assert.True(t, p.Match("w12"))
	assert.False(t, p.Match("x12"))
}

func TestPatternWildcards(t *testing.T) {
	assert.True(t, Pattern{}.Match("anything"))
	assert.True(t, Pattern{Literal: "*"}.Match("anything"))
}

func TestScopePatternMatches(t *testing.T) {
	pattern := ScopePattern{
		Level: LevelWindow,
		UUID:  Pattern{Literal: "app"},
		Name:  Pattern{Regex: &RegEx{Expression: "^w[0-9]$"}},
	}

	assert.True(t, pattern.Matches(WindowScope(WindowID{UUID: "app", Name: "w1"})))
	assert.False(t, pattern.Matches(WindowScope(WindowID{UUID: "app", Name: "main"})))
	assert.False(t, pattern.Matches(WindowScope(WindowID{UUID: "other", Name: "w1"})))
	// A rule never applies above its own level.
	assert.False(t, pattern.Matches(ApplicationScope("app")))

	appPattern := ScopePattern{Level: LevelApplication, UUID: Pattern{Literal: "app"}}
	assert.True(t, appPattern.Matches(ApplicationScope("app")))
	assert.True(t, appPattern.Matches(WindowScope(WindowID{UUID: "app", Name: "w1"})))
}

func TestScopeLevelJSON(t *testing.T) {
	data, err := json.Marshal(LevelApplication)
	require.NoError(t, err)
	assert.Equal(t, `"application"`, string(data))

	var level ScopeLevel
	require.NoError(t, json.Unmarshal([]byte(`"window"`), &level))
	assert.Equal(t, LevelWindow, level)
	assert.Error(t, json.Unmarshal([]byte(`"galaxy"`), &level))
}

func TestManifestDecoding(t *testing.T) {
	raw := `{
		"service": {"features": {"dock": false}},
		"rules": [
			{
				"scope": {"level": "window", "uuid": "app", "name": {"expression": "^w1$"}},
				"config": {"enabled": false}
			}
		]
	}`
	var m Manifest
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	require.NotNil(t, m.Service)
	require.NotNil(t, m.Service.Features)
	require.NotNil(t, m.Service.Features.Dock)
	assert.False(t, *m.Service.Features.Dock)
	require.Len(t, m.Rules, 1)
	assert.Equal(t, LevelWindow, m.Rules[0].Scope.Level)
	require.NotNil(t, m.Rules[0].Config.Enabled)
	assert.False(t, *m.Rules[0].Config.Enabled)
}
