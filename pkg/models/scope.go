package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ScopeLevel orders the configuration hierarchy from broadest to narrowest.
type ScopeLevel int

const (
	LevelService ScopeLevel = iota
	LevelDesktop
	LevelApplication
	LevelWindow
)

var scopeLevelNames = map[ScopeLevel]string{
	LevelService:     "service",
	LevelDesktop:     "desktop",
	LevelApplication: "application",
	LevelWindow:      "window",
}

func (l ScopeLevel) String() string {
	if name, ok := scopeLevelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// MarshalJSON writes the level by name, matching the manifest format.
func (l ScopeLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON reads a level by name.
func (l *ScopeLevel) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for level, n := range scopeLevelNames {
		if n == name {
			*l = level
			return nil
		}
	}
	return fmt.Errorf("unknown scope level %q", name)
}

// Scope addresses one node of the configuration hierarchy. UUID is set for
// application and window scopes; Name only for window scopes.
type Scope struct {
	Level ScopeLevel `json:"level"`
	UUID  string     `json:"uuid,omitempty"`
	Name  string     `json:"name,omitempty"`
}

// ServiceScope is the root of the hierarchy.
var ServiceScope = Scope{Level: LevelService}

// DesktopScope addresses the whole desktop.
var DesktopScope = Scope{Level: LevelDesktop}

// ApplicationScope addresses every window of one application.
func ApplicationScope(uuid string) Scope {
	return Scope{Level: LevelApplication, UUID: uuid}
}

// WindowScope addresses a single window.
func WindowScope(id WindowID) Scope {
	return Scope{Level: LevelWindow, UUID: id.UUID, Name: id.Name}
}

func (s Scope) String() string {
	switch s.Level {
	case LevelApplication:
		return fmt.Sprintf("application(%s)", s.UUID)
	case LevelWindow:
		return fmt.Sprintf("window(%s,%s)", s.UUID, s.Name)
	default:
		return s.Level.String()
	}
}

// Covers reports whether s is broader-than-or-equal to target: equal at the
// components s specifies, with every finer component treated as a wildcard.
func (s Scope) Covers(target Scope) bool {
	if s.Level > target.Level {
		return false
	}
	if s.Level >= LevelApplication && s.UUID != target.UUID {
		return false
	}
	if s.Level >= LevelWindow && s.Name != target.Name {
		return false
	}
	return true
}

// RegEx is a serializable regular expression pattern with optional inversion.
type RegEx struct {
	Expression string `json:"expression"`
	Flags      string `json:"flags,omitempty"`
	Invert     bool   `json:"invert,omitempty"`
}

// Match applies the expression to the value with standard regex semantics;
// Invert negates the result. A malformed expression never matches.
func (r RegEx) Match(value string) bool {
	expr := r.Expression
	if strings.Contains(r.Flags, "i") {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return false
	}
	matched := re.MatchString(value)
	if r.Invert {
		return !matched
	}
	return matched
}

// Pattern matches one scope component: either a literal string (with "*"
// wildcarding) or a RegEx object, mirroring the manifest format.
type Pattern struct {
	Literal string
	Regex   *RegEx
}

// Match tests a value against the pattern. An empty pattern matches anything.
func (p Pattern) Match(value string) bool {
	if p.Regex != nil {
		return p.Regex.Match(value)
	}
	if p.Literal == "" || p.Literal == "*" {
		return true
	}
	if strings.Contains(p.Literal, "*") {
		expr := "^" + strings.ReplaceAll(regexp.QuoteMeta(p.Literal), `\*`, ".*") + "$"
		return regexp.MustCompile(expr).MatchString(value)
	}
	return p.Literal == value
}

// IsZero reports whether the pattern is unset.
func (p Pattern) IsZero() bool {
	return p.Literal == "" && p.Regex == nil
}

// MarshalJSON writes either the literal string or the RegEx object.
func (p Pattern) MarshalJSON() ([]byte, error) {
	if p.Regex != nil {
		return json.Marshal(p.Regex)
	}
	return json.Marshal(p.Literal)
}

// UnmarshalJSON accepts either a string or a RegEx object.
func (p *Pattern) UnmarshalJSON(data []byte) error {
	var literal string
	if err := json.Unmarshal(data, &literal); err == nil {
		*p = Pattern{Literal: literal}
		return nil
	}
	var re RegEx
	if err := json.Unmarshal(data, &re); err != nil {
		return err
	}
	*p = Pattern{Regex: &re}
	return nil
}

// ScopePattern selects a set of scopes at one level by uuid/name patterns.
type ScopePattern struct {
	Level ScopeLevel `json:"level"`
	UUID  Pattern    `json:"uuid,omitempty"`
	Name  Pattern    `json:"name,omitempty"`
}

// Matches reports whether the target scope is selected by the pattern. The
// pattern matches its own level and every narrower scope that satisfies the
// component patterns.
func (sp ScopePattern) Matches(target Scope) bool {
	if target.Level < sp.Level {
		return false
	}
	if sp.Level >= LevelApplication && !sp.UUID.Match(target.UUID) {
		return false
	}
	if sp.Level >= LevelWindow && !sp.Name.Match(target.Name) {
		return false
	}
	return true
}
