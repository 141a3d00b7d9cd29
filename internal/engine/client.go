package engine

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/pjbroadbent/layouts-service/internal/model"
	"github.com/pjbroadbent/layouts-service/pkg/faults"
	"github.com/pjbroadbent/layouts-service/pkg/geometry"
	"github.com/pjbroadbent/layouts-service/pkg/models"
)

// WindowInfo is the engine's answer to a client membership query.
type WindowInfo struct {
	ID        models.WindowID `json:"id"`
	Grouped   bool            `json:"grouped"`
	SnapGroup int             `json:"snapGroup"`
	TabGroup  int             `json:"tabGroup,omitempty"`
	Enabled   bool            `json:"enabled"`
	Rect      geometry.Rect   `json:"rect"`
}

// Info reports a window's membership state. A snap group of size one is
// reported as not grouped.
func (e *Engine) Info(id models.WindowID) (WindowInfo, error) {
	e.lock()
	defer e.unlock()
	w, ok := e.desktop.GetWindow(id)
	if !ok {
		return WindowInfo{}, faults.NotFound("window", id)
	}
	info := WindowInfo{
		ID:      id,
		Enabled: w.Enabled(),
		Rect:    w.Rect(),
	}
	if sg := w.SnapGroup(); sg != nil {
		info.SnapGroup = sg.ID()
		info.Grouped = sg.Grouped()
	}
	if tg := w.TabGroup(); tg != nil {
		info.TabGroup = tg.ID()
	}
	return info, nil
}

// Undock pulls one window out of its snap group into a singleton, nudging it
// clear of its former neighbours. Undocking an ungrouped window is a no-op.
func (e *Engine) Undock(id models.WindowID) error {
	e.lock()
	defer e.unlock()
	w, ok := e.desktop.GetWindow(id)
	if !ok {
		return faults.NotFound("window", id)
	}
	if !w.Enabled() {
		return faults.Disabled("undock", id)
	}
	sg := w.SnapGroup()
	if sg == nil || !sg.Grouped() {
		return nil
	}
	if tg := w.TabGroup(); tg != nil {
		if err := tg.RemoveTab(e.ctx, w); err != nil {
			return err
		}
	} else {
		e.desktop.MoveToSingletonGroup(e.ctx, w)
		e.splitIfDisconnected(sg)
	}
	nudge := geometry.Point{X: e.config.UndockOffset, Y: e.config.UndockOffset}
	if err := w.TranslateBy(e.ctx, nudge); err != nil {
		return err
	}
	e.updateGauges()
	e.logger.WithField("window", id.String()).Info("Window undocked")
	return nil
}

// ExplodeGroup dissolves the snap group containing the window into singleton
// groups, leaving every window at its current bounds.
func (e *Engine) ExplodeGroup(id models.WindowID) error {
	e.lock()
	defer e.unlock()
	w, ok := e.desktop.GetWindow(id)
	if !ok {
		return faults.NotFound("window", id)
	}
	sg := w.SnapGroup()
	if sg == nil || !sg.Grouped() {
		return nil
	}
	for _, member := range sg.Windows() {
		if member.SnapGroup() == sg && sg.Size() > 1 {
			e.desktop.MoveToSingletonGroup(e.ctx, member)
		}
	}
	e.updateGauges()
	e.logger.WithFields(logrus.Fields{
		"window":     id.String(),
		"snap_group": sg.ID(),
	}).Info("Snap group exploded")
	return nil
}

// GetTabs lists the ordered tabs of the window's tab group.
func (e *Engine) GetTabs(id models.WindowID) ([]models.WindowID, error) {
	e.lock()
	defer e.unlock()
	w, ok := e.desktop.GetWindow(id)
	if !ok {
		return nil, faults.NotFound("window", id)
	}
	tg := w.TabGroup()
	if tg == nil {
		return nil, nil
	}
	return tg.TabIDs(), nil
}

// CreateTabGroup tabs the listed windows together in order, the first
// becoming active. The tab strip's appearance resolves from the first
// window's configuration scope.
func (e *Engine) CreateTabGroup(ids []models.WindowID) (int, error) {
	e.lock()
	defer e.unlock()
	if len(ids) < 2 {
		return 0, faults.InvalidState("a tab group needs at least 2 windows, got %d", len(ids))
	}
	windows := make([]*model.ManagedWindow, 0, len(ids))
	for _, id := range ids {
		w, ok := e.desktop.GetWindow(id)
		if !ok {
			return 0, faults.NotFound("window", id)
		}
		if !w.Enabled() || !w.Features().Tab {
			return 0, faults.Disabled("tab", id)
		}
		if w.TabGroup() != nil {
			return 0, faults.InvalidState("window %s is already tabbed", id)
		}
		windows = append(windows, w)
	}
	rc := e.store.QueryFull(models.WindowScope(ids[0]))
	tg, err := e.desktop.CreateTabGroup(e.ctx, rc.Tabstrip.URL, float64(rc.Tabstrip.Height))
	if err != nil {
		return 0, err
	}
	for _, w := range windows {
		if err := tg.AddTab(e.ctx, w, -1); err != nil {
			return 0, err
		}
	}
	if e.metrics != nil {
		e.metrics.TabJoins.Add(float64(len(windows)))
	}
	e.updateGauges()
	return tg.ID(), nil
}

// AddTab appends a window to an existing tab group.
func (e *Engine) AddTab(groupID int, id models.WindowID) error {
	e.lock()
	defer e.unlock()
	tg, ok := e.desktop.TabGroupByID(groupID)
	if !ok {
		return fmt.Errorf("tab group %d: %w", groupID, faults.ErrNotFound)
	}
	w, ok := e.desktop.GetWindow(id)
	if !ok {
		return faults.NotFound("window", id)
	}
	if !w.Enabled() || !w.Features().Tab {
		return faults.Disabled("tab", id)
	}
	if err := tg.AddTab(e.ctx, w, -1); err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.TabJoins.Inc()
	}
	e.updateGauges()
	return nil
}

// RemoveTab detaches a window from its tab group.
func (e *Engine) RemoveTab(id models.WindowID) error {
	e.lock()
	defer e.unlock()
	w, ok := e.desktop.GetWindow(id)
	if !ok {
		return faults.NotFound("window", id)
	}
	tg := w.TabGroup()
	if tg == nil {
		return faults.InvalidState("window %s is not tabbed", id)
	}
	err := tg.RemoveTab(e.ctx, w)
	e.updateGauges()
	return err
}

// SwitchTab activates a tab within a specific group.
func (e *Engine) SwitchTab(groupID int, id models.WindowID) error {
	e.lock()
	defer e.unlock()
	tg, ok := e.desktop.TabGroupByID(groupID)
	if !ok {
		return fmt.Errorf("tab group %d: %w", groupID, faults.ErrNotFound)
	}
	w, ok := e.desktop.GetWindow(id)
	if !ok {
		return faults.NotFound("window", id)
	}
	return tg.SwitchTab(e.ctx, w)
}

// SetActiveTab activates a window within whatever tab group it belongs to.
func (e *Engine) SetActiveTab(id models.WindowID) error {
	e.lock()
	defer e.unlock()
	w, ok := e.desktop.GetWindow(id)
	if !ok {
		return faults.NotFound("window", id)
	}
	tg := w.TabGroup()
	if tg == nil {
		return faults.InvalidState("window %s is not tabbed", id)
	}
	return tg.SwitchTab(e.ctx, w)
}
