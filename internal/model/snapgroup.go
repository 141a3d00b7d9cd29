package model

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/pjbroadbent/layouts-service/pkg/geometry"
	"github.com/pjbroadbent/layouts-service/pkg/models"
)

// SnapGroup is a set of managed windows currently snapped together and moved
// as a unit. A group always holds at least one window while registered; a
// group of size one is the degenerate "ungrouped" state the client API
// reports as not grouped.
type SnapGroup struct {
	id     int
	model  *DesktopModel
	logger *logrus.Logger

	windows  []*ManagedWindow
	entities []Entity
	root     *ManagedWindow

	// origin is the cached bounding-box midpoint relative to the root
	// window's center; halfSize its half-extents. Stale until recomputed.
	origin      geometry.Point
	halfSize    geometry.Point
	boundsStale bool

	// prevGroup is consulted during split recovery after an aborted move.
	prevGroup *SnapGroup

	subs map[models.WindowID]windowSubs

	OnWindowAdded   Signal[*ManagedWindow]
	OnWindowRemoved Signal[*ManagedWindow]
	OnTransform     Signal[Transform]
	OnCommit        Signal[Transform]
	OnModified      Signal[*ManagedWindow]
}

type windowSubs struct {
	transform, commit, modified int
}

func newSnapGroup(id int, m *DesktopModel, logger *logrus.Logger) *SnapGroup {
	return &SnapGroup{
		id:          id,
		model:       m,
		logger:      logger,
		subs:        make(map[models.WindowID]windowSubs),
		boundsStale: true,
	}
}

// ID returns the group's monotonically assigned id.
func (g *SnapGroup) ID() int { return g.id }

// Windows returns the member list in join order.
func (g *SnapGroup) Windows() []*ManagedWindow {
	out := make([]*ManagedWindow, len(g.windows))
	copy(out, g.windows)
	return out
}

// Size returns the member count.
func (g *SnapGroup) Size() int { return len(g.windows) }

// Grouped reports whether the client API considers the group grouped.
func (g *SnapGroup) Grouped() bool { return len(g.windows) >= 2 }

// RootWindow returns the group's reference window for origin-relative
// bounds: the first window, or its tab strip when that window is a tab in a
// multi-tab tab group.
func (g *SnapGroup) RootWindow() *ManagedWindow { return g.root }

// PrevGroup returns the group this group split from, if any.
func (g *SnapGroup) PrevGroup() *SnapGroup { return g.prevGroup }

// SetPrevGroup records the split-recovery pointer.
func (g *SnapGroup) SetPrevGroup(prev *SnapGroup) { g.prevGroup = prev }

// Entities returns the group's snap participants: each member window, except
// that a multi-tab tab group appears once in place of its tabs.
func (g *SnapGroup) Entities() []Entity {
	out := make([]Entity, len(g.entities))
	copy(out, g.entities)
	return out
}

// Contains reports membership.
func (g *SnapGroup) Contains(w *ManagedWindow) bool {
	for _, m := range g.windows {
		if m == w {
			return true
		}
	}
	return false
}

// AddWindow detaches w from its previous group and appends it to this one,
// wiring event forwarding, rebuilding entities and root, and announcing the
// membership change to the window's client when the group is now grouped.
func (g *SnapGroup) AddWindow(ctx context.Context, w *ManagedWindow) {
	if w.snapGroup == g {
		return
	}
	if prev := w.snapGroup; prev != nil {
		prev.RemoveWindow(ctx, w)
	}
	w.setSnapGroup(g)
	g.subscribe(w)
	g.windows = append(g.windows, w)
	g.refreshRoot()
	g.rebuildEntities()
	g.boundsStale = true

	if len(g.windows) >= 2 && w.Ready() {
		if err := w.handle.JoinGroup(ctx, g.root.ID()); err != nil {
			g.logger.WithError(err).WithField("window", w.ID().String()).Warn("Runtime group join failed")
		}
	}
	switch {
	case len(g.windows) == 2:
		// The group just became grouped: both members learn about it.
		g.notify(ctx, g.windows[0], models.MsgJoinSnapGroup)
		g.notify(ctx, w, models.MsgJoinSnapGroup)
	case len(g.windows) > 2:
		g.notify(ctx, w, models.MsgJoinSnapGroup)
	}
	g.OnWindowAdded.Emit(w)
}

// RemoveWindow is the inverse of AddWindow. The removed window is told it
// left the group only when the group remains non-empty afterwards; the
// survivor of a group collapsing to a single window is sent nothing because
// the client API already treats a solo window as ungrouped. An empty group
// is destroyed.
func (g *SnapGroup) RemoveWindow(ctx context.Context, w *ManagedWindow) {
	idx := -1
	for i, m := range g.windows {
		if m == w {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	g.unsubscribe(w)
	g.windows = append(g.windows[:idx], g.windows[idx+1:]...)
	if w.snapGroup == g {
		w.snapGroup = nil
		w.prevSnapGroup = g
	}
	if w.Ready() {
		if err := w.handle.LeaveGroup(ctx); err != nil {
			g.logger.WithError(err).WithField("window", w.ID().String()).Warn("Runtime group leave failed")
		}
	}
	g.refreshRoot()
	g.rebuildEntities()
	g.boundsStale = true

	if len(g.windows) >= 1 {
		g.notify(ctx, w, models.MsgLeaveSnapGroup)
	}
	g.OnWindowRemoved.Emit(w)
	if len(g.windows) == 0 {
		g.model.destroySnapGroup(g)
	}
}

// MarkBoundsStale forces a bounds recompute on next read.
func (g *SnapGroup) MarkBoundsStale() { g.boundsStale = true }

// Origin returns the cached bounding-box midpoint in the root window's frame.
func (g *SnapGroup) Origin() geometry.Point {
	g.recomputeBounds()
	return g.origin
}

// HalfSize returns the cached bounding-box half-extents.
func (g *SnapGroup) HalfSize() geometry.Point {
	g.recomputeBounds()
	return g.halfSize
}

// Bounds returns the group's absolute bounding box.
func (g *SnapGroup) Bounds() geometry.Rect {
	g.recomputeBounds()
	if g.root == nil {
		return geometry.Rect{}
	}
	return geometry.Rect{
		Center: g.root.Rect().Center.Add(g.origin),
		Half:   g.halfSize,
	}
}

// recomputeBounds rebuilds the cached box when stale. With two or more
// members only visible normal-state windows participate; a sole member
// defines the box outright.
func (g *SnapGroup) recomputeBounds() {
	if !g.boundsStale {
		return
	}
	g.boundsStale = false
	if g.root == nil || len(g.windows) == 0 {
		g.origin, g.halfSize = geometry.Point{}, geometry.Point{}
		return
	}
	if len(g.windows) == 1 {
		g.origin = geometry.Point{}
		g.halfSize = g.windows[0].Rect().Half
		return
	}
	min := geometry.Point{X: math.Inf(1), Y: math.Inf(1)}
	max := geometry.Point{X: math.Inf(-1), Y: math.Inf(-1)}
	visible := 0
	for _, w := range g.windows {
		if !w.State().Normal() {
			continue
		}
		visible++
		r := w.Rect()
		min.X = math.Min(min.X, r.Min().X)
		min.Y = math.Min(min.Y, r.Min().Y)
		max.X = math.Max(max.X, r.Max().X)
		max.Y = math.Max(max.Y, r.Max().Y)
	}
	switch visible {
	case 0:
		g.origin, g.halfSize = geometry.Point{}, geometry.Point{}
	case 1:
		g.origin = geometry.Point{}
		for _, w := range g.windows {
			if w.State().Normal() {
				g.halfSize = w.Rect().Half
				break
			}
		}
	default:
		mid := min.Add(max).Scale(0.5)
		g.origin = mid.Sub(g.root.Rect().Center)
		g.halfSize = max.Sub(min).Scale(0.5)
	}
}

// RefreshStructure rebuilds root and entities after a tab-state change on a
// member window.
func (g *SnapGroup) RefreshStructure() {
	g.refreshRoot()
	g.rebuildEntities()
	g.boundsStale = true
}

func (g *SnapGroup) refreshRoot() {
	var root *ManagedWindow
	if len(g.windows) > 0 {
		root = g.windows[0]
		if tg := root.TabGroup(); tg != nil && tg.TabCount() >= 2 {
			root = tg.TabStrip()
		}
	}
	if root != g.root {
		// origin is root-relative, so a root change invalidates the cache.
		g.root = root
		g.boundsStale = true
	}
}

func (g *SnapGroup) rebuildEntities() {
	g.entities = g.entities[:0]
	seen := make(map[int]bool)
	for _, w := range g.windows {
		tg := w.TabGroup()
		if tg == nil {
			tg = w.StripOf()
		}
		if tg != nil && tg.TabCount() >= 2 {
			if !seen[tg.ID()] {
				seen[tg.ID()] = true
				g.entities = append(g.entities, TabGroupEntity(tg))
			}
			continue
		}
		g.entities = append(g.entities, WindowEntity(w))
	}
}

func (g *SnapGroup) subscribe(w *ManagedWindow) {
	subs := windowSubs{
		transform: w.OnTransform.Connect(func(t Transform) {
			g.boundsStale = true
			// Transforms propagated through group cohesion are dropped so
			// the group fires once per transform, from the originator only.
			if t.Originated {
				g.OnTransform.Emit(t)
			}
		}),
		commit: w.OnCommit.Connect(func(t Transform) {
			g.boundsStale = true
			g.OnCommit.Emit(t)
		}),
		modified: w.OnModified.Connect(func(w *ManagedWindow) {
			g.boundsStale = true
			g.OnModified.Emit(w)
		}),
	}
	g.subs[w.ID()] = subs
}

func (g *SnapGroup) unsubscribe(w *ManagedWindow) {
	subs, ok := g.subs[w.ID()]
	if !ok {
		return
	}
	delete(g.subs, w.ID())
	w.OnTransform.Disconnect(subs.transform)
	w.OnCommit.Disconnect(subs.commit)
	w.OnModified.Disconnect(subs.modified)
}

func (g *SnapGroup) notify(ctx context.Context, w *ManagedWindow, kind models.MessageKind) {
	if !w.Ready() {
		return
	}
	if err := w.SendMessage(ctx, kind, map[string]interface{}{"groupId": g.id}); err != nil {
		g.logger.WithError(err).WithFields(logrus.Fields{
			"window": w.ID().String(),
			"kind":   kind,
		}).Warn("Group notification failed")
	}
}
