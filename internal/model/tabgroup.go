package model

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/pjbroadbent/layouts-service/pkg/faults"
	"github.com/pjbroadbent/layouts-service/pkg/geometry"
	"github.com/pjbroadbent/layouts-service/pkg/models"
)

// TabGroup is a set of managed windows sharing a tab strip window. All tabs
// share identical body bounds; only the active tab's body is shown. A tab
// group with fewer than two tabs tears itself down.
type TabGroup struct {
	id     int
	model  *DesktopModel
	logger *logrus.Logger

	tabStrip *ManagedWindow
	tabs     []*ManagedWindow
	active   *ManagedWindow

	url         string
	stripHeight float64
	// bodyHalf is the shared half-extent of every tab body.
	bodyHalf geometry.Point

	// preTabBounds remembers each tab's standalone bounds for restoration
	// when it leaves the group.
	preTabBounds map[models.WindowID]geometry.Rect

	OnTabAdded   Signal[*ManagedWindow]
	OnTabRemoved Signal[*ManagedWindow]
	OnActivated  Signal[*ManagedWindow]
	OnDestroyed  Signal[*TabGroup]
}

func newTabGroup(id int, m *DesktopModel, strip *ManagedWindow, url string, stripHeight float64, logger *logrus.Logger) *TabGroup {
	t := &TabGroup{
		id:           id,
		model:        m,
		logger:       logger,
		tabStrip:     strip,
		url:          url,
		stripHeight:  stripHeight,
		preTabBounds: make(map[models.WindowID]geometry.Rect),
	}
	strip.stripOf = t
	return t
}

// ID returns the group's monotonically assigned id.
func (t *TabGroup) ID() int { return t.id }

// TabStrip returns the managed window hosting the strip UI.
func (t *TabGroup) TabStrip() *ManagedWindow { return t.tabStrip }

// URL returns the strip's UI location.
func (t *TabGroup) URL() string { return t.url }

// StripHeight returns the strip's full height in pixels.
func (t *TabGroup) StripHeight() float64 { return t.stripHeight }

// Tabs returns the ordered tab list.
func (t *TabGroup) Tabs() []*ManagedWindow {
	out := make([]*ManagedWindow, len(t.tabs))
	copy(out, t.tabs)
	return out
}

// TabIDs returns the ordered tab identities.
func (t *TabGroup) TabIDs() []models.WindowID {
	out := make([]models.WindowID, len(t.tabs))
	for i, w := range t.tabs {
		out[i] = w.ID()
	}
	return out
}

// TabCount returns the number of tabs.
func (t *TabGroup) TabCount() int { return len(t.tabs) }

// ActiveTab returns the currently shown tab.
func (t *TabGroup) ActiveTab() *ManagedWindow { return t.active }

// IndexOf returns a tab's position in the ordered list, or -1.
func (t *TabGroup) IndexOf(w *ManagedWindow) int {
	for i, tab := range t.tabs {
		if tab == w {
			return i
		}
	}
	return -1
}

// BodyRect returns the shared tab body region derived from the strip's
// current position.
func (t *TabGroup) BodyRect() geometry.Rect {
	strip := t.tabStrip.Rect()
	return geometry.Rect{
		Center: geometry.Point{
			X: strip.Center.X,
			Y: strip.Center.Y + strip.Half.Y + t.bodyHalf.Y,
		},
		Half: t.bodyHalf,
	}
}

// EntityRect returns the bounds the snap resolver sees: the union of the tab
// strip and the active tab body.
func (t *TabGroup) EntityRect() geometry.Rect {
	if t.active == nil {
		return t.tabStrip.Rect()
	}
	body := t.active.Rect()
	stripHalf := t.tabStrip.Rect().Half
	return geometry.Rect{
		Center: geometry.Point{X: body.Center.X, Y: body.Center.Y - stripHalf.Y},
		Half:   geometry.Point{X: body.Half.X, Y: body.Half.Y + stripHalf.Y},
	}
}

// ActiveVisible reports whether the active tab's body is currently shown.
func (t *TabGroup) ActiveVisible() bool {
	return t.active != nil && t.active.State().Normal()
}

// AddTab inserts w into the ordered tab list at index (clamped; negative
// appends). The first tab defines the shared body region and stays visible;
// later tabs are repositioned onto the body region and hidden. Adding a tab
// that is already present is a no-op; a tab owned by another group is
// refused.
func (t *TabGroup) AddTab(ctx context.Context, w *ManagedWindow, index int) error {
	if w.TabGroup() == t {
		return nil
	}
	if w.TabGroup() != nil {
		return faults.InvalidState("window %s is already tabbed in group %d", w.ID(), w.TabGroup().ID())
	}
	if w == t.tabStrip {
		return faults.InvalidState("tab strip %s cannot be its own tab", w.ID())
	}

	t.preTabBounds[w.ID()] = w.Rect()
	if index < 0 || index > len(t.tabs) {
		index = len(t.tabs)
	}
	t.tabs = append(t.tabs, nil)
	copy(t.tabs[index+1:], t.tabs[index:])
	t.tabs[index] = w
	w.setTabGroup(t)

	first := len(t.tabs) == 1
	if first {
		// The founding tab defines the shared body region; the strip moves
		// above it.
		t.bodyHalf = w.Rect().Half
		t.active = w
		if err := t.alignStripToBody(ctx, w.Rect()); err != nil {
			return err
		}
	} else {
		if err := w.SetBounds(ctx, t.BodyRect()); err != nil {
			return err
		}
		if err := w.Hide(ctx); err != nil {
			return err
		}
	}

	// Every tab shares the strip's snap group.
	if sg := t.tabStrip.SnapGroup(); sg != nil && !sg.Contains(w) {
		sg.AddWindow(ctx, w)
	}
	if sg := w.SnapGroup(); sg != nil {
		sg.RefreshStructure()
	}

	t.sendToTabs(ctx, models.MsgJoinTabGroup, map[string]interface{}{"tabGroupId": t.id, "tab": w.ID()})
	t.OnTabAdded.Emit(w)
	t.logger.WithFields(logrus.Fields{
		"tab_group": t.id,
		"window":    w.ID().String(),
		"index":     index,
		"tab_count": len(t.tabs),
	}).Debug("Tab added")
	return nil
}

// RemoveTab detaches w: it is restored to its pre-tab bounds in a fresh
// singleton snap group. Removing the active tab activates the next tab in
// order, wrapping to the previous one when the last tab is removed. A group
// left with fewer than two tabs is torn down.
func (t *TabGroup) RemoveTab(ctx context.Context, w *ManagedWindow) error {
	idx := t.IndexOf(w)
	if idx < 0 {
		return faults.NotFound("tab", w.ID())
	}
	t.tabs = append(t.tabs[:idx], t.tabs[idx+1:]...)

	if t.active == w && len(t.tabs) > 0 {
		next := idx
		if next >= len(t.tabs) {
			next = len(t.tabs) - 1
		}
		if err := t.SwitchTab(ctx, t.tabs[next]); err != nil {
			t.logger.WithError(err).Warn("Tab activation after removal failed")
		}
	}

	t.release(ctx, w, true)
	t.sendToWindow(ctx, w, models.MsgLeaveTabGroup, map[string]interface{}{"tabGroupId": t.id, "tab": w.ID()})
	t.OnTabRemoved.Emit(w)

	if len(t.tabs) < 2 {
		t.destroy(ctx, false)
	}
	return nil
}

// SwitchTab makes w the active tab: the previous active body is hidden and
// w's body shown in the shared region. Switching to the already active tab
// is a no-op.
func (t *TabGroup) SwitchTab(ctx context.Context, w *ManagedWindow) error {
	if t.IndexOf(w) < 0 {
		return faults.NotFound("tab", w.ID())
	}
	if t.active == w {
		return nil
	}
	prev := t.active
	t.active = w
	if err := w.SetBounds(ctx, t.BodyRect()); err != nil {
		return err
	}
	if err := w.Show(ctx); err != nil {
		return err
	}
	if prev != nil {
		if err := prev.Hide(ctx); err != nil {
			t.logger.WithError(err).Warn("Hiding previous active tab failed")
		}
	}
	if sg := t.tabStrip.SnapGroup(); sg != nil {
		sg.MarkBoundsStale()
	}
	t.sendToTabs(ctx, models.MsgTabActivated, map[string]interface{}{"tabGroupId": t.id, "tab": w.ID()})
	t.OnActivated.Emit(w)
	return nil
}

// RealignApps repositions every tab body to match the strip's current
// position, keeping the shared body region invariant.
func (t *TabGroup) RealignApps(ctx context.Context) error {
	body := t.BodyRect()
	for _, tab := range t.tabs {
		if err := tab.SetBounds(ctx, body); err != nil {
			return err
		}
		if tab != t.active {
			if err := tab.Hide(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close tears the group down. With closeApps the tab windows are closed
// along with the strip; otherwise they are released back to standalone
// windows restored to their pre-tab bounds.
func (t *TabGroup) Close(ctx context.Context, closeApps bool) {
	t.destroy(ctx, closeApps)
}

// DetachForTeardown removes a window that is being torn down, without
// issuing any runtime commands against it.
func (t *TabGroup) DetachForTeardown(ctx context.Context, w *ManagedWindow) {
	idx := t.IndexOf(w)
	if idx < 0 {
		return
	}
	t.tabs = append(t.tabs[:idx], t.tabs[idx+1:]...)
	delete(t.preTabBounds, w.ID())
	w.setTabGroup(nil)
	if t.active == w {
		t.active = nil
		if len(t.tabs) > 0 {
			next := idx
			if next >= len(t.tabs) {
				next = len(t.tabs) - 1
			}
			if err := t.SwitchTab(ctx, t.tabs[next]); err != nil {
				t.logger.WithError(err).Warn("Tab activation after teardown failed")
			}
		}
	}
	t.OnTabRemoved.Emit(w)
	if len(t.tabs) < 2 {
		t.destroy(ctx, false)
	}
}

// alignStripToBody positions the strip flush above the given body rect.
func (t *TabGroup) alignStripToBody(ctx context.Context, body geometry.Rect) error {
	strip := geometry.Rect{
		Center: geometry.Point{
			X: body.Center.X,
			Y: body.Min().Y - t.stripHeight/2,
		},
		Half: geometry.Point{X: body.Half.X, Y: t.stripHeight / 2},
	}
	return t.tabStrip.SetBounds(ctx, strip)
}

// release returns a tab to standalone life: body restored (optionally to its
// pre-tab bounds), shown, and detached into a fresh singleton snap group.
func (t *TabGroup) release(ctx context.Context, w *ManagedWindow, restoreBounds bool) {
	w.setTabGroup(nil)
	if restoreBounds {
		if prev, ok := t.preTabBounds[w.ID()]; ok {
			if err := w.SetBounds(ctx, prev); err != nil {
				t.logger.WithError(err).Warn("Restoring pre-tab bounds failed")
			}
		}
	}
	delete(t.preTabBounds, w.ID())
	if err := w.Show(ctx); err != nil {
		t.logger.WithError(err).Warn("Showing released tab failed")
	}
	if sg := w.SnapGroup(); sg != nil {
		if sg.Size() > 1 {
			t.model.MoveToSingletonGroup(ctx, w)
		}
		if sg := w.SnapGroup(); sg != nil {
			sg.RefreshStructure()
		}
	}
}

// destroy tears the whole group down: remaining tabs are released (or
// closed), the strip window is closed and the group unregistered.
func (t *TabGroup) destroy(ctx context.Context, closeApps bool) {
	remaining := t.Tabs()
	t.tabs = nil
	// The strip leaves the shared snap group first: a sole surviving tab
	// then sits in a singleton group already and is released silently.
	if sg := t.tabStrip.SnapGroup(); sg != nil && sg.Size() > 1 {
		sg.RemoveWindow(ctx, t.tabStrip)
	}
	for _, w := range remaining {
		if closeApps {
			w.setTabGroup(nil)
			delete(t.preTabBounds, w.ID())
			if err := w.Close(ctx, false); err != nil {
				t.logger.WithError(err).Warn("Closing tabbed app failed")
			}
			continue
		}
		t.release(ctx, w, true)
		t.sendToWindow(ctx, w, models.MsgLeaveTabGroup, map[string]interface{}{"tabGroupId": t.id, "tab": w.ID()})
	}
	t.active = nil
	t.tabStrip.stripOf = nil
	if t.tabStrip.Ready() {
		if err := t.tabStrip.Close(ctx, true); err != nil {
			t.logger.WithError(err).Warn("Closing tab strip failed")
		}
	}
	t.model.destroyTabGroup(t)
	t.OnDestroyed.Emit(t)
	t.logger.WithField("tab_group", t.id).Debug("Tab group destroyed")
}

func (t *TabGroup) sendToTabs(ctx context.Context, kind models.MessageKind, payload interface{}) {
	for _, w := range t.tabs {
		t.sendToWindow(ctx, w, kind, payload)
	}
}

func (t *TabGroup) sendToWindow(ctx context.Context, w *ManagedWindow, kind models.MessageKind, payload interface{}) {
	if !w.Ready() {
		return
	}
	if err := w.SendMessage(ctx, kind, payload); err != nil {
		t.logger.WithError(err).WithFields(logrus.Fields{
			"window": w.ID().String(),
			"kind":   kind,
		}).Warn("Tab notification failed")
	}
}
