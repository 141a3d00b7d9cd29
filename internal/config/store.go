// Package config implements the scoped configuration store: a collection of
// partial configuration trees keyed by source scope and optional rules,
// resolved for a target scope by deep-merging every matching entry from
// broadest to narrowest.
package config

import (
	"context"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/pjbroadbent/layouts-service/pkg/faults"
	"github.com/pjbroadbent/layouts-service/pkg/models"
)

type entry struct {
	source  models.Scope
	pattern *models.ScopePattern
	config  models.ConfigObject
	seq     int
}

// effectiveLevel is the priority an entry merges at: the rule's target level
// when present, otherwise the source scope's own level.
func (e entry) effectiveLevel() models.ScopeLevel {
	if e.pattern != nil {
		return e.pattern.Level
	}
	return e.source.Level
}

// matches reports whether the entry contributes to the target scope: the
// source must be broader-than-or-equal to the target and the rule pattern,
// if any, must select it.
func (e entry) matches(target models.Scope) bool {
	if !e.source.Covers(target) {
		return false
	}
	if e.pattern != nil {
		return e.pattern.Matches(target)
	}
	return true
}

type watcher struct {
	scope models.Scope
	mask  models.ConfigMask
	cb    func(models.ResolvedConfig)
	last  models.ResolvedConfig
}

// Store is the layered scoped configuration store. Mutations are synchronous;
// watchers fire inline on the mutating call once their masked result changes.
type Store struct {
	logger *logrus.Logger
	tracer trace.Tracer

	mu          sync.RWMutex
	entries     []entry
	nextSeq     int
	watchers    map[int]*watcher
	nextWatcher int
}

// NewStore builds an empty store.
func NewStore(logger *logrus.Logger) *Store {
	return &Store{
		logger:   logger,
		tracer:   otel.Tracer("config-store"),
		watchers: make(map[int]*watcher),
	}
}

// Add inserts a plain entry: config applies at sourceScope and every scope
// it covers.
func (s *Store) Add(ctx context.Context, source models.Scope, config models.ConfigObject) error {
	_, span := s.tracer.Start(ctx, "configStore.Add")
	defer span.End()
	s.mu.Lock()
	s.insert(entry{source: source, config: config})
	s.mu.Unlock()
	s.fireWatchers()
	s.logger.WithField("source", source.String()).Debug("Config entry added")
	return nil
}

// AddRule inserts a rule entry from sourceScope. A rule may only target
// scopes at or below the level it was added at: a broader source cannot use
// a rule to masquerade as a narrower source than the rule names, and the
// rule's own level must not be broader than its source.
func (s *Store) AddRule(ctx context.Context, source models.Scope, rule models.Rule) error {
	_, span := s.tracer.Start(ctx, "configStore.AddRule")
	defer span.End()
	if rule.Scope.Level < source.Level {
		return faults.InvalidScope("rule level %s is broader than source %s", rule.Scope.Level, source.String())
	}
	pattern := rule.Scope
	s.mu.Lock()
	s.insert(entry{source: source, pattern: &pattern, config: rule.Config})
	s.mu.Unlock()
	s.fireWatchers()
	s.logger.WithFields(logrus.Fields{
		"source": source.String(),
		"level":  rule.Scope.Level.String(),
	}).Debug("Config rule added")
	return nil
}

// AddManifest applies a whole manifest from one source: the service section
// first, then each rule in declaration order.
func (s *Store) AddManifest(ctx context.Context, source models.Scope, m models.Manifest) error {
	if m.Service != nil {
		if err := s.Add(ctx, source, *m.Service); err != nil {
			return err
		}
	}
	for _, rule := range m.Rules {
		if err := s.AddRule(ctx, source, rule); err != nil {
			return err
		}
	}
	return nil
}

// RemoveFromSource drops every entry added from the given source scope.
func (s *Store) RemoveFromSource(ctx context.Context, source models.Scope) {
	_, span := s.tracer.Start(ctx, "configStore.RemoveFromSource")
	defer span.End()
	s.mu.Lock()
	kept := s.entries[:0]
	removed := 0
	for _, e := range s.entries {
		if e.source == source {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	s.mu.Unlock()
	if removed > 0 {
		s.fireWatchers()
	}
	s.logger.WithFields(logrus.Fields{
		"source":  source.String(),
		"removed": removed,
	}).Debug("Config source removed")
}

// Query resolves the effective configuration at a scope and returns the
// masked result.
func (s *Store) Query(scope models.Scope, mask models.ConfigMask) models.ResolvedConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return mask.Apply(s.resolveLocked(scope))
}

// QueryFull resolves the complete effective configuration at a scope.
func (s *Store) QueryFull(scope models.Scope) models.ResolvedConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolveLocked(scope)
}

// Watch registers a callback fired whenever the masked result at the scope
// changes. The cancel function detaches it.
func (s *Store) Watch(scope models.Scope, mask models.ConfigMask, cb func(models.ResolvedConfig)) (cancel func()) {
	s.mu.Lock()
	id := s.nextWatcher
	s.nextWatcher++
	s.watchers[id] = &watcher{
		scope: scope,
		mask:  mask,
		cb:    cb,
		last:  mask.Apply(s.resolveLocked(scope)),
	}
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

// resolveLocked merges every matching entry in ascending priority: broader
// levels first so narrower entries override, insertion order breaking ties.
func (s *Store) resolveLocked(scope models.Scope) models.ResolvedConfig {
	matched := make([]entry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.matches(scope) {
			matched = append(matched, e)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].effectiveLevel() < matched[j].effectiveLevel()
	})
	var merged models.ConfigObject
	for _, e := range matched {
		merged = merged.Merge(e.config)
	}
	return merged.Resolve()
}

func (s *Store) insert(e entry) {
	e.seq = s.nextSeq
	s.nextSeq++
	s.entries = append(s.entries, e)
}

// fireWatchers recomputes every watcher's masked result and invokes the
// callbacks whose value changed. Callbacks run without the store lock held.
func (s *Store) fireWatchers() {
	type firing struct {
		cb  func(models.ResolvedConfig)
		val models.ResolvedConfig
	}
	var fired []firing
	s.mu.Lock()
	ids := make([]int, 0, len(s.watchers))
	for id := range s.watchers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		w := s.watchers[id]
		now := w.mask.Apply(s.resolveLocked(w.scope))
		if now != w.last {
			w.last = now
			fired = append(fired, firing{cb: w.cb, val: now})
		}
	}
	s.mu.Unlock()
	for _, f := range fired {
		f.cb(f.val)
	}
}
