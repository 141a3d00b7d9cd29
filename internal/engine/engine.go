// Package engine contains the layout engine orchestrator: it observes window
// runtime events through the desktop model, runs the snap and tab resolvers
// while the user drags, commits the winning target on release, and keeps
// group membership consistent with window state and configuration.
package engine

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/pjbroadbent/layouts-service/internal/config"
	"github.com/pjbroadbent/layouts-service/internal/model"
	"github.com/pjbroadbent/layouts-service/internal/resolver"
	"github.com/pjbroadbent/layouts-service/internal/runtime"
	"github.com/pjbroadbent/layouts-service/pkg/faults"
	"github.com/pjbroadbent/layouts-service/pkg/geometry"
	"github.com/pjbroadbent/layouts-service/pkg/models"
)

// Config tunes the engine.
type Config struct {
	Snap resolver.SnapConfig `json:"snap"`
	// TransformRate caps drag resolution frequency in frames per second.
	TransformRate float64 `json:"transformRate"`
	// CommandTimeout bounds every runtime command.
	CommandTimeout time.Duration `json:"commandTimeout"`
	// PreviewPoolSize is the number of pre-allocated preview surfaces.
	PreviewPoolSize int `json:"previewPoolSize"`
	// UndockOffset is the nudge applied to an undocked window.
	UndockOffset float64 `json:"undockOffset"`
	// AdjacencyEps is the edge-gap tolerance for the snap-adjacency graph
	// used by split detection.
	AdjacencyEps float64 `json:"adjacencyEps"`
}

// DefaultConfig returns the stock engine tuning.
func DefaultConfig() Config {
	return Config{
		Snap:            resolver.DefaultSnapConfig(),
		TransformRate:   30,
		CommandTimeout:  5 * time.Second,
		PreviewPoolSize: 3,
		UndockOffset:    25,
		AdjacencyEps:    5,
	}
}

// DragPhase names a state of the per-drag state machine.
type DragPhase string

const (
	PhaseIdle           DragPhase = "idle"
	PhaseDragging       DragPhase = "dragging"
	PhasePreviewValid   DragPhase = "preview-valid"
	PhasePreviewInvalid DragPhase = "preview-invalid"
)

// dragState tracks one window's in-flight drag.
type dragState struct {
	phase      DragPhase
	limiter    *rate.Limiter
	cancel     context.CancelFunc
	snapTarget *resolver.SnapTarget
	tabTarget  *model.TabGroup
}

// ClientEvent is pushed to API clients when group membership changes.
type ClientEvent struct {
	Kind   models.MessageKind `json:"kind"`
	Window models.WindowID    `json:"window"`
	Group  int                `json:"group"`
}

// Engine is the top-level orchestrator. All mutation runs under one lock,
// giving the single-queue scheduling the model types rely on.
type Engine struct {
	logger *logrus.Logger
	tracer trace.Tracer
	config Config

	mu      sync.Mutex
	ctx     context.Context
	desktop *model.DesktopModel
	store   *config.Store
	preview Preview
	metrics *Metrics

	snapResolver *resolver.SnapResolver
	tabResolver  *resolver.TabResolver

	drags        map[models.WindowID]*dragState
	watchCancels map[models.WindowID]func()
	unsubscribe  func()
	running      bool

	// queue holds runtime events awaiting dispatch. Commands issued while
	// the engine lock is held can surface new events inline; queueing them
	// keeps all mutation on one logical task queue and makes the intake
	// re-entrancy safe.
	qmu   sync.Mutex
	queue []runtime.Event

	// OnClientEvent fans group membership changes out to the API layer.
	OnClientEvent model.Signal[ClientEvent]
}

// New builds an engine over the runtime and configuration store. The preview
// collaborator and metrics are optional.
func New(logger *logrus.Logger, cfg Config, rt runtime.Runtime, store *config.Store, preview Preview, metrics *Metrics) *Engine {
	if preview == nil {
		preview = nopPreview{}
	}
	e := &Engine{
		logger:       logger,
		tracer:       otel.Tracer("layout-engine"),
		config:       cfg,
		ctx:          context.Background(),
		store:        store,
		preview:      preview,
		metrics:      metrics,
		snapResolver: resolver.NewSnapResolver(logger, cfg.Snap),
		tabResolver:  resolver.NewTabResolver(logger),
		drags:        make(map[models.WindowID]*dragState),
		watchCancels: make(map[models.WindowID]func()),
	}
	e.desktop = model.NewDesktopModel(rt, logger)
	e.desktop.OnSnapGroupCreated.Connect(e.wireSnapGroup)
	e.desktop.OnTabGroupCreated.Connect(e.wireTabGroup)
	return e
}

// Desktop exposes the model for the API layer and tests. Callers must not
// mutate it outside engine methods.
func (e *Engine) Desktop() *model.DesktopModel { return e.desktop }

// Store returns the configuration store the engine watches.
func (e *Engine) Store() *config.Store { return e.store }

// Start subscribes to runtime events and adopts every existing window.
func (e *Engine) Start(ctx context.Context) error {
	ctx, span := e.tracer.Start(ctx, "layoutEngine.Start")
	defer span.End()

	e.lock()
	defer e.unlock()
	if e.running {
		return faults.InvalidState("layout engine is already running")
	}
	e.running = true
	e.unsubscribe = e.desktop.Runtime().Subscribe(e.handleEvent)

	existing, err := e.desktop.Runtime().Windows(ctx)
	if err != nil {
		return faults.RuntimeFailure("enumerate windows", err)
	}
	for _, opts := range existing {
		if opts.ID.UUID == models.ServiceUUID {
			continue
		}
		e.register(opts.ID)
	}
	e.logger.WithField("windows", len(existing)).Info("Layout engine started")
	return nil
}

// Stop detaches from the runtime and cancels in-flight resolution.
func (e *Engine) Stop(ctx context.Context) error {
	_, span := e.tracer.Start(ctx, "layoutEngine.Stop")
	defer span.End()

	e.lock()
	defer e.unlock()
	if !e.running {
		return nil
	}
	e.running = false
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
	for id, d := range e.drags {
		if d.cancel != nil {
			d.cancel()
		}
		delete(e.drags, id)
	}
	for id, cancel := range e.watchCancels {
		cancel()
		delete(e.watchCancels, id)
	}
	e.logger.Info("Layout engine stopped")
	return nil
}

// --- event intake -------------------------------------------------------

// lock acquires the engine's task lock; unlock drains any events queued
// while it was held before releasing. Every mutating entry point uses this
// pair.
func (e *Engine) lock() { e.mu.Lock() }

func (e *Engine) unlock() {
	e.drainLocked()
	e.mu.Unlock()
}

func (e *Engine) drainLocked() {
	for {
		e.qmu.Lock()
		if len(e.queue) == 0 {
			e.qmu.Unlock()
			return
		}
		ev := e.queue[0]
		e.queue = e.queue[1:]
		e.qmu.Unlock()
		e.dispatch(ev)
	}
}

// handleEvent is the runtime subscription sink. Events are queued and
// dispatched by whichever goroutine holds the engine lock; if none does,
// this one takes it.
func (e *Engine) handleEvent(ev runtime.Event) {
	e.qmu.Lock()
	e.queue = append(e.queue, ev)
	e.qmu.Unlock()
	if !e.mu.TryLock() {
		// The current holder drains the queue on unlock.
		return
	}
	defer e.unlock()
	e.drainLocked()
}

func (e *Engine) dispatch(ev runtime.Event) {
	if !e.running {
		return
	}
	switch ev.Kind {
	case runtime.EventCreated:
		// Service-created windows (previews, tab strips) are registered
		// explicitly by their owners, not adopted here.
		if ev.Synthetic || ev.ID.UUID == models.ServiceUUID {
			return
		}
		e.register(ev.ID)
	case runtime.EventClosed:
		e.teardown(ev.ID)
	case runtime.EventFocused:
		e.desktop.RecordFocus(ev.ID)
	default:
		if w, ok := e.desktop.GetWindow(ev.ID); ok {
			w.HandleEvent(ev)
		}
	}
}

// register adopts a runtime window: model registration, signal wiring and
// configuration application plus a watch for future changes.
func (e *Engine) register(id models.WindowID) {
	handle, ok := e.desktop.Runtime().Window(id)
	if !ok {
		return
	}
	opts, err := handle.Options(e.ctx)
	if err != nil {
		e.logger.WithError(err).WithField("window", id.String()).Warn("Initial window state fetch failed")
		return
	}
	w, err := e.desktop.RegisterWindow(e.ctx, opts)
	if err != nil {
		e.logger.WithError(err).WithField("window", id.String()).Warn("Window registration failed")
		return
	}
	w.SetCommandTimeout(e.config.CommandTimeout)

	w.OnTransform.Connect(e.onTransform)
	w.OnCommit.Connect(e.onCommit)
	w.OnModified.Connect(e.onModified)
	w.OnTeardown.Connect(func(w *model.ManagedWindow) { e.teardown(w.ID()) })

	scope := models.WindowScope(id)
	e.applyResolved(w, e.store.QueryFull(scope))
	e.watchCancels[id] = e.store.Watch(scope, models.FullMask, func(rc models.ResolvedConfig) {
		e.lock()
		defer e.unlock()
		if w, ok := e.desktop.GetWindow(id); ok {
			e.applyResolved(w, rc)
		}
	})
	e.updateGauges()
}

// teardown removes a window from the model and cleans engine-side state. A
// group left behind may have lost connectivity and is split if so.
func (e *Engine) teardown(id models.WindowID) {
	if cancel, ok := e.watchCancels[id]; ok {
		cancel()
		delete(e.watchCancels, id)
	}
	if d, ok := e.drags[id]; ok {
		if d.cancel != nil {
			d.cancel()
		}
		delete(e.drags, id)
		e.preview.Hide(e.ctx)
	}
	w, ok := e.desktop.GetWindow(id)
	if !ok {
		return
	}
	old := w.SnapGroup()
	if err := e.desktop.RemoveWindow(e.ctx, id); err != nil {
		e.logger.WithError(err).WithField("window", id.String()).Warn("Window teardown failed")
	}
	if old != nil && old.Size() > 1 {
		e.splitIfDisconnected(old)
	}
	e.updateGauges()
}

// applyResolved applies a window's effective configuration. Disabling a
// window removes it from its snap and tab groups and bars participation
// until re-enabled; re-enabling leaves it registered in its singleton group
// awaiting the next user drag.
func (e *Engine) applyResolved(w *model.ManagedWindow, rc models.ResolvedConfig) {
	was := w.Enabled()
	w.SetEnabled(rc.Enabled)
	w.SetFeatures(rc.Features)
	if was == rc.Enabled {
		return
	}
	e.logger.WithFields(logrus.Fields{
		"window":  w.ID().String(),
		"enabled": rc.Enabled,
	}).Info("Window engine participation changed")
	if rc.Enabled {
		return
	}
	if tg := w.TabGroup(); tg != nil {
		if err := tg.RemoveTab(e.ctx, w); err != nil {
			e.logger.WithError(err).Warn("Removing disabled window from tab group failed")
		}
	}
	if sg := w.SnapGroup(); sg != nil && sg.Size() > 1 {
		old := sg
		e.desktop.MoveToSingletonGroup(e.ctx, w)
		e.splitIfDisconnected(old)
	}
	e.updateGauges()
}

// onModified re-validates group membership: a grouped window that was
// minimized, maximized, hidden or had its frame toggled leaves its snap
// group for a singleton. The reverse transition never re-snaps by itself.
func (e *Engine) onModified(w *model.ManagedWindow) {
	if w.TabGroup() != nil {
		// Tab visibility is orchestrated by the tab group itself.
		return
	}
	sg := w.SnapGroup()
	if sg == nil || sg.Size() < 2 {
		return
	}
	e.logger.WithFields(logrus.Fields{
		"window":     w.ID().String(),
		"snap_group": sg.ID(),
	}).Debug("Window mutated out of its snap group")
	e.desktop.MoveToSingletonGroup(e.ctx, w)
	e.splitIfDisconnected(sg)
	e.updateGauges()
}

// --- drag state machine -------------------------------------------------

func (e *Engine) onTransform(t model.Transform) {
	w := t.Window
	if !t.Originated || !w.Enabled() {
		return
	}
	d, ok := e.drags[w.ID()]
	if !ok {
		d = &dragState{
			phase:   PhaseDragging,
			limiter: rate.NewLimiter(rate.Limit(e.config.TransformRate), 1),
		}
		e.drags[w.ID()] = d
	}
	// Coalesce bursts: frames beyond the transform rate supersede silently,
	// keeping the last resolved target current.
	if !d.limiter.Allow() {
		return
	}
	if d.cancel != nil {
		d.cancel()
	}
	ctx, cancel := context.WithCancel(e.ctx)
	d.cancel = cancel

	moving := e.resolveTargets(ctx, d, w)

	switch {
	case d.tabTarget != nil:
		d.phase = PhasePreviewValid
		e.preview.ShowTab(ctx, d.tabTarget)
	case d.snapTarget != nil && d.snapTarget.Valid:
		d.phase = PhasePreviewValid
		e.preview.ShowSnap(ctx, moving, d.snapTarget)
	case d.snapTarget != nil:
		d.phase = PhasePreviewInvalid
		e.preview.ShowSnap(ctx, moving, d.snapTarget)
	default:
		d.phase = PhaseDragging
		e.preview.Hide(ctx)
	}
}

// resolveTargets runs both resolvers for the window's current position and
// stores the outcome on the drag state. A tab target is only sought for a
// standalone, untabbed window.
func (e *Engine) resolveTargets(ctx context.Context, d *dragState, w *model.ManagedWindow) *model.SnapGroup {
	cursor := e.desktop.Runtime().CursorPosition()
	moving := w.SnapGroup()
	d.snapTarget, d.tabTarget = nil, nil
	if !w.Enabled() {
		return moving
	}

	if w.Features().Tab && w.TabGroup() == nil && moving != nil && moving.Size() == 1 {
		d.tabTarget = e.tabResolver.Resolve(e.desktop, w, cursor)
	}
	if d.tabTarget == nil && w.Features().Snap && moving != nil {
		d.snapTarget = e.snapResolver.Resolve(ctx, e.desktop, moving, w, cursor)
	}
	return moving
}

func (e *Engine) onCommit(t model.Transform) {
	w := t.Window
	d, ok := e.drags[w.ID()]
	if !ok {
		return
	}
	delete(e.drags, w.ID())
	if d.cancel != nil {
		d.cancel()
	}
	defer e.preview.Hide(e.ctx)

	// Drag frames beyond the transform rate supersede silently, so the
	// preview's target can trail the window's true release position.
	// Resolution runs once more against the final bounds before committing.
	e.resolveTargets(e.ctx, d, w)

	// A valid tab target takes priority over a snap target.
	switch {
	case d.tabTarget != nil:
		e.commitTab(d, w)
	case d.snapTarget != nil && d.snapTarget.Valid:
		e.commitSnap(d, w)
	case d.snapTarget != nil:
		if e.metrics != nil {
			e.metrics.InvalidTargets.Inc()
		}
		e.logger.WithField("window", w.ID().String()).Debug("Drag released on invalid target")
	}
	e.updateGauges()
}

// commitTab adds the dragged window to the hovered tab group directly after
// its active tab; activation is unchanged.
func (e *Engine) commitTab(d *dragState, w *model.ManagedWindow) {
	t := d.tabTarget
	if _, ok := e.desktop.TabGroupByID(t.ID()); !ok {
		return
	}
	index := -1
	if active := t.ActiveTab(); active != nil {
		index = t.IndexOf(active) + 1
	}
	if err := t.AddTab(e.ctx, w, index); err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"window":    w.ID().String(),
			"tab_group": t.ID(),
		}).Warn("Tab commit failed")
		return
	}
	if e.metrics != nil {
		e.metrics.TabJoins.Inc()
	}
}

// commitSnap translates every window of the moving group by the snap offset
// and merges it into the target group. A runtime failure mid-translation
// rolls the already-moved windows back and abandons the merge, leaving every
// window where it was at drag end.
func (e *Engine) commitSnap(d *dragState, w *model.ManagedWindow) {
	target := d.snapTarget
	moving := w.SnapGroup()
	if moving == nil || moving == target.TargetGroup {
		return
	}
	if _, ok := e.desktop.SnapGroupByID(target.TargetGroup.ID()); !ok {
		return
	}

	if target.HalfSize != nil {
		half := *target.HalfSize
		if err := w.ResizeTo(e.ctx, 2*half.X, 2*half.Y, runtime.AnchorTopLeft); err != nil {
			e.logger.WithError(err).Warn("Pre-snap resize failed, aborting commit")
			return
		}
	}

	members := moving.Windows()
	var moved []*model.ManagedWindow
	for _, mw := range members {
		if err := mw.TranslateBy(e.ctx, target.SnapOffset); err != nil {
			e.logger.WithError(err).WithField("window", mw.ID().String()).Warn("Snap translation failed, rolling back")
			for _, back := range moved {
				if rerr := back.TranslateBy(e.ctx, target.SnapOffset.Scale(-1)); rerr != nil {
					e.logger.WithError(rerr).Warn("Snap rollback translation failed")
				}
			}
			return
		}
		moved = append(moved, mw)
	}
	for _, mw := range members {
		target.TargetGroup.AddWindow(e.ctx, mw)
	}
	if e.metrics != nil {
		e.metrics.SnapCommits.Inc()
	}
	e.logger.WithFields(logrus.Fields{
		"window":       w.ID().String(),
		"target_group": target.TargetGroup.ID(),
		"offset_x":     target.SnapOffset.X,
		"offset_y":     target.SnapOffset.Y,
	}).Info("Snap committed")
}

// --- split detection ----------------------------------------------------

// splitIfDisconnected recomputes connectivity over the group's
// snap-adjacency graph and peels every disconnected component into its own
// group.
func (e *Engine) splitIfDisconnected(g *model.SnapGroup) {
	if _, ok := e.desktop.SnapGroupByID(g.ID()); !ok {
		return
	}
	windows := g.Windows()
	if len(windows) < 2 {
		return
	}
	components := connectedComponents(windows, e.config.AdjacencyEps)
	if len(components) < 2 {
		return
	}
	e.logger.WithFields(logrus.Fields{
		"snap_group": g.ID(),
		"components": len(components),
	}).Info("Snap group lost connectivity, splitting")
	// The first component keeps the original group.
	for _, comp := range components[1:] {
		ng := e.desktop.NewSnapGroup()
		ng.SetPrevGroup(g)
		for _, w := range comp {
			ng.AddWindow(e.ctx, w)
		}
	}
	if e.metrics != nil {
		e.metrics.GroupSplits.Inc()
	}
}

// connectedComponents partitions windows by snap adjacency: two windows are
// adjacent when a pair of facing edges is flush within eps and the shared
// extent along that edge is positive.
func connectedComponents(windows []*model.ManagedWindow, eps float64) [][]*model.ManagedWindow {
	adjacent := func(a, b *model.ManagedWindow) bool {
		ra, rb := a.Rect(), b.Rect()
		for _, side := range geometry.Sides {
			if math.Abs(ra.EdgeGap(rb, side)) > eps {
				continue
			}
			if ra.Overlap(rb, side.Axis().Other()) > 0 {
				return true
			}
		}
		return false
	}
	assigned := make([]int, len(windows))
	for i := range assigned {
		assigned[i] = -1
	}
	var components [][]*model.ManagedWindow
	for i := range windows {
		if assigned[i] >= 0 {
			continue
		}
		comp := len(components)
		stack := []int{i}
		assigned[i] = comp
		var member []*model.ManagedWindow
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			member = append(member, windows[n])
			for j := range windows {
				if assigned[j] < 0 && adjacent(windows[n], windows[j]) {
					assigned[j] = comp
					stack = append(stack, j)
				}
			}
		}
		components = append(components, member)
	}
	return components
}

// --- client event fan-out -----------------------------------------------

func (e *Engine) wireSnapGroup(g *model.SnapGroup) {
	g.OnWindowAdded.Connect(func(w *model.ManagedWindow) {
		switch {
		case g.Size() == 2:
			for _, member := range g.Windows() {
				e.OnClientEvent.Emit(ClientEvent{Kind: models.MsgJoinSnapGroup, Window: member.ID(), Group: g.ID()})
			}
		case g.Size() > 2:
			e.OnClientEvent.Emit(ClientEvent{Kind: models.MsgJoinSnapGroup, Window: w.ID(), Group: g.ID()})
		}
	})
	g.OnWindowRemoved.Connect(func(w *model.ManagedWindow) {
		if g.Size() >= 1 {
			e.OnClientEvent.Emit(ClientEvent{Kind: models.MsgLeaveSnapGroup, Window: w.ID(), Group: g.ID()})
		}
	})
}

func (e *Engine) wireTabGroup(t *model.TabGroup) {
	// A dying tab strip takes its group down; the tabs are released back to
	// standalone windows.
	t.TabStrip().OnTeardown.Connect(func(w *model.ManagedWindow) {
		e.teardown(w.ID())
		if _, ok := e.desktop.TabGroupByID(t.ID()); ok {
			t.Close(e.ctx, false)
		}
	})
	t.OnTabAdded.Connect(func(w *model.ManagedWindow) {
		e.OnClientEvent.Emit(ClientEvent{Kind: models.MsgJoinTabGroup, Window: w.ID(), Group: t.ID()})
	})
	t.OnTabRemoved.Connect(func(w *model.ManagedWindow) {
		e.OnClientEvent.Emit(ClientEvent{Kind: models.MsgLeaveTabGroup, Window: w.ID(), Group: t.ID()})
	})
	t.OnActivated.Connect(func(w *model.ManagedWindow) {
		e.OnClientEvent.Emit(ClientEvent{Kind: models.MsgTabActivated, Window: w.ID(), Group: t.ID()})
	})
}

func (e *Engine) updateGauges() {
	if e.metrics == nil {
		return
	}
	e.metrics.ActiveSnapGroups.Set(float64(len(e.desktop.SnapGroups())))
	e.metrics.ActiveTabGroups.Set(float64(len(e.desktop.TabGroups())))
}
