package model

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/pjbroadbent/layouts-service/internal/runtime"
	"github.com/pjbroadbent/layouts-service/pkg/faults"
	"github.com/pjbroadbent/layouts-service/pkg/models"
)

// DesktopModel is the registry of all managed windows, snap groups and tab
// groups. It enforces id uniqueness and referential invariants: every window
// belongs to exactly one registered snap group, and groups emptied by a
// removal are collected on the same turn.
type DesktopModel struct {
	logger *logrus.Logger
	rt     runtime.Runtime

	windows    map[models.WindowID]*ManagedWindow
	snapGroups map[int]*SnapGroup
	tabGroups  map[int]*TabGroup
	nextGroup  int

	// zorder lists window ids most-recently-raised first.
	zorder []models.WindowID

	OnSnapGroupCreated Signal[*SnapGroup]
	OnTabGroupCreated  Signal[*TabGroup]
}

// NewDesktopModel builds an empty registry over the given runtime.
func NewDesktopModel(rt runtime.Runtime, logger *logrus.Logger) *DesktopModel {
	return &DesktopModel{
		logger:     logger,
		rt:         rt,
		windows:    make(map[models.WindowID]*ManagedWindow),
		snapGroups: make(map[int]*SnapGroup),
		tabGroups:  make(map[int]*TabGroup),
	}
}

// Runtime returns the underlying window runtime.
func (m *DesktopModel) Runtime() runtime.Runtime { return m.rt }

// GetWindow looks a managed window up by id.
func (m *DesktopModel) GetWindow(id models.WindowID) (*ManagedWindow, bool) {
	w, ok := m.windows[id]
	return w, ok
}

// Windows lists all managed windows in no particular order.
func (m *DesktopModel) Windows() []*ManagedWindow {
	out := make([]*ManagedWindow, 0, len(m.windows))
	for _, w := range m.windows {
		out = append(out, w)
	}
	return out
}

// RegisterWindow wraps a runtime window in the model, placing it in a fresh
// singleton snap group. Registering an id twice is an error.
func (m *DesktopModel) RegisterWindow(ctx context.Context, opts runtime.WindowOptions) (*ManagedWindow, error) {
	if _, exists := m.windows[opts.ID]; exists {
		return nil, faults.InvalidState("window %s is already registered", opts.ID)
	}
	handle, ok := m.rt.Window(opts.ID)
	if !ok {
		return nil, faults.NotFound("window", opts.ID)
	}
	state := models.WindowState{
		Rect:    opts.Bounds,
		Frame:   opts.Frame,
		Hidden:  opts.Hidden,
		State:   opts.State,
		MinSize: opts.MinSize,
		MaxSize: opts.MaxSize,
		Opacity: opts.Opacity,
	}
	if state.State == "" {
		state.State = models.StateNormal
	}
	w := NewManagedWindow(opts.ID, state, handle, m.logger)
	m.windows[opts.ID] = w
	m.zorder = append([]models.WindowID{opts.ID}, m.zorder...)

	g := m.NewSnapGroup()
	g.AddWindow(ctx, w)

	m.logger.WithFields(logrus.Fields{
		"window":     opts.ID.String(),
		"snap_group": g.ID(),
	}).Debug("Window registered")
	return w, nil
}

// RemoveWindow tears a window down: it leaves its tab group first, then its
// snap group; a group emptied by the removal is destroyed before this call
// returns.
func (m *DesktopModel) RemoveWindow(ctx context.Context, id models.WindowID) error {
	w, ok := m.windows[id]
	if !ok {
		return faults.NotFound("window", id)
	}
	w.ready = false
	if tg := w.TabGroup(); tg != nil {
		tg.DetachForTeardown(ctx, w)
	}
	if sg := w.SnapGroup(); sg != nil {
		sg.RemoveWindow(ctx, w)
	}
	delete(m.windows, id)
	m.dropFromZOrder(id)
	w.OnTeardown.Emit(w)
	m.logger.WithField("window", id.String()).Debug("Window removed")
	return nil
}

// NewSnapGroup registers a fresh empty snap group.
func (m *DesktopModel) NewSnapGroup() *SnapGroup {
	m.nextGroup++
	g := newSnapGroup(m.nextGroup, m, m.logger)
	m.snapGroups[g.ID()] = g
	m.OnSnapGroupCreated.Emit(g)
	return g
}

// MoveToSingletonGroup pulls a window out of its current snap group into a
// fresh singleton group, preserving the prev-group pointer for split
// recovery.
func (m *DesktopModel) MoveToSingletonGroup(ctx context.Context, w *ManagedWindow) *SnapGroup {
	prev := w.SnapGroup()
	g := m.NewSnapGroup()
	g.SetPrevGroup(prev)
	g.AddWindow(ctx, w)
	return g
}

// SnapGroups lists registered snap groups ordered by id.
func (m *DesktopModel) SnapGroups() []*SnapGroup {
	out := make([]*SnapGroup, 0, len(m.snapGroups))
	for _, g := range m.snapGroups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// SnapGroupByID looks a snap group up.
func (m *DesktopModel) SnapGroupByID(id int) (*SnapGroup, bool) {
	g, ok := m.snapGroups[id]
	return g, ok
}

// TabGroups lists registered tab groups ordered by id.
func (m *DesktopModel) TabGroups() []*TabGroup {
	out := make([]*TabGroup, 0, len(m.tabGroups))
	for _, t := range m.tabGroups {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// TabGroupByID looks a tab group up.
func (m *DesktopModel) TabGroupByID(id int) (*TabGroup, bool) {
	t, ok := m.tabGroups[id]
	return t, ok
}

// CreateTabGroup opens a tab strip window and registers an empty tab group
// around it. The strip is created at a zero-size placeholder and takes
// its real bounds when the founding tab arrives; the group is only returned
// once the strip's initial state is known.
func (m *DesktopModel) CreateTabGroup(ctx context.Context, url string, stripHeight float64) (*TabGroup, error) {
	handle, err := m.rt.CreateWindow(ctx, runtime.WindowOptions{
		Frame: false,
		State: models.StateNormal,
		URL:   url,
	})
	if err != nil {
		return nil, faults.RuntimeFailure("create tab strip", err)
	}
	opts, err := handle.Options(ctx)
	if err != nil {
		return nil, faults.RuntimeFailure("fetch tab strip state", err)
	}
	strip, err := m.RegisterWindow(ctx, opts)
	if err != nil {
		return nil, err
	}
	m.nextGroup++
	t := newTabGroup(m.nextGroup, m, strip, url, stripHeight, m.logger)
	m.tabGroups[t.ID()] = t
	m.OnTabGroupCreated.Emit(t)
	m.logger.WithFields(logrus.Fields{
		"tab_group": t.ID(),
		"strip":     strip.ID().String(),
	}).Debug("Tab group created")
	return t, nil
}

// ForEachEntity visits every snap entity on the desktop.
func (m *DesktopModel) ForEachEntity(fn func(Entity)) {
	for _, g := range m.SnapGroups() {
		for _, e := range g.Entities() {
			fn(e)
		}
	}
}

// RecordFocus moves a window to the front of the stacking order.
func (m *DesktopModel) RecordFocus(id models.WindowID) {
	m.dropFromZOrder(id)
	m.zorder = append([]models.WindowID{id}, m.zorder...)
}

// StackingOrder lists window ids most-recently-raised first.
func (m *DesktopModel) StackingOrder() []models.WindowID {
	out := make([]models.WindowID, len(m.zorder))
	copy(out, m.zorder)
	return out
}

// StackRank returns a window's position in the stacking order; unknown
// windows rank last.
func (m *DesktopModel) StackRank(id models.WindowID) int {
	for i, zid := range m.zorder {
		if zid == id {
			return i
		}
	}
	return len(m.zorder)
}

func (m *DesktopModel) destroySnapGroup(g *SnapGroup) {
	delete(m.snapGroups, g.id)
}

func (m *DesktopModel) destroyTabGroup(t *TabGroup) {
	delete(m.tabGroups, t.id)
}

func (m *DesktopModel) dropFromZOrder(id models.WindowID) {
	for i, zid := range m.zorder {
		if zid == id {
			m.zorder = append(m.zorder[:i], m.zorder[i+1:]...)
			return
		}
	}
}
