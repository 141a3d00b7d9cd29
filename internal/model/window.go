// Package model holds the in-memory desktop model: managed windows, snap
// groups, tab groups and the registry tying them together. Model state is
// mutated only from the engine's event queue; the types carry no locks of
// their own.
package model

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pjbroadbent/layouts-service/internal/runtime"
	"github.com/pjbroadbent/layouts-service/pkg/faults"
	"github.com/pjbroadbent/layouts-service/pkg/geometry"
	"github.com/pjbroadbent/layouts-service/pkg/models"
)

// Transform describes one observed window transform.
type Transform struct {
	Window *ManagedWindow
	Type   models.TransformType
	// Originated is true when the user drove the transform directly, false
	// when the window moved because its snap group was translated.
	Originated bool
}

// ManagedWindow is the engine's model of one OS window: cached state, group
// membership pointers and lifecycle signals.
type ManagedWindow struct {
	id     models.WindowID
	handle runtime.WindowHandle
	logger *logrus.Logger

	state models.WindowState

	snapGroup     *SnapGroup
	prevSnapGroup *SnapGroup
	tabGroup      *TabGroup
	stripOf       *TabGroup

	ready   bool
	enabled bool
	// features caches the window's resolved feature gates alongside enabled.
	features models.ResolvedFeatures

	// commandTimeout bounds every runtime command issued for this window.
	commandTimeout time.Duration

	OnModified  Signal[*ManagedWindow]
	OnTransform Signal[Transform]
	OnCommit    Signal[Transform]
	OnTeardown  Signal[*ManagedWindow]
}

// NewManagedWindow wraps a runtime window in a model object. The window is
// enabled until configuration says otherwise and belongs to no group yet; the
// engine places it in a singleton snap group immediately after registration.
func NewManagedWindow(id models.WindowID, initial models.WindowState, handle runtime.WindowHandle, logger *logrus.Logger) *ManagedWindow {
	return &ManagedWindow{
		id:             id,
		handle:         handle,
		logger:         logger,
		state:          initial,
		ready:          true,
		enabled:        true,
		features:       models.ResolvedFeatures{Snap: true, Tab: true, Dock: true},
		commandTimeout: 5 * time.Second,
	}
}

// ID returns the window's identity.
func (w *ManagedWindow) ID() models.WindowID { return w.id }

// State returns the cached window state.
func (w *ManagedWindow) State() models.WindowState { return w.state }

// Rect returns the cached bounds.
func (w *ManagedWindow) Rect() geometry.Rect { return w.state.Rect }

// Ready reports whether runtime commands may still be issued.
func (w *ManagedWindow) Ready() bool { return w.ready }

// Enabled reports the window's effective engine participation.
func (w *ManagedWindow) Enabled() bool { return w.enabled }

// Features returns the window's resolved feature gates.
func (w *ManagedWindow) Features() models.ResolvedFeatures { return w.features }

// SnapGroup returns the owning snap group; non-nil for every registered
// window.
func (w *ManagedWindow) SnapGroup() *SnapGroup { return w.snapGroup }

// PrevSnapGroup returns the group the window belonged to before its current
// one, used to re-snap after an aborted move.
func (w *ManagedWindow) PrevSnapGroup() *SnapGroup { return w.prevSnapGroup }

// TabGroup returns the owning tab group, or nil.
func (w *ManagedWindow) TabGroup() *TabGroup { return w.tabGroup }

// StripOf returns the tab group this window hosts the strip UI for, or nil.
func (w *ManagedWindow) StripOf() *TabGroup { return w.stripOf }

// SetCommandTimeout overrides the runtime command timeout.
func (w *ManagedWindow) SetCommandTimeout(d time.Duration) { w.commandTimeout = d }

// SetEnabled records the window's effective config participation. Group
// membership consequences are the engine's job.
func (w *ManagedWindow) SetEnabled(enabled bool) { w.enabled = enabled }

// SetFeatures records the window's resolved feature gates.
func (w *ManagedWindow) SetFeatures(f models.ResolvedFeatures) { w.features = f }

func (w *ManagedWindow) setSnapGroup(g *SnapGroup) {
	if w.snapGroup != nil && w.snapGroup != g {
		w.prevSnapGroup = w.snapGroup
	}
	w.snapGroup = g
}

func (w *ManagedWindow) setTabGroup(g *TabGroup) { w.tabGroup = g }

// SendMessage delivers a client message through the window's handle.
func (w *ManagedWindow) SendMessage(ctx context.Context, kind models.MessageKind, payload interface{}) error {
	return w.command(ctx, "sendMessage", func(ctx context.Context) error {
		return w.handle.SendMessage(ctx, kind, payload)
	})
}

// ApplyProperties merges a delta into the cached state without touching the
// OS window.
func (w *ManagedWindow) ApplyProperties(delta models.PropertyDelta) {
	w.state = delta.Apply(w.state)
}

// MoveTo commands the OS window to a new center position.
func (w *ManagedWindow) MoveTo(ctx context.Context, center geometry.Point) error {
	return w.command(ctx, "moveTo", func(ctx context.Context) error {
		if err := w.handle.MoveTo(ctx, center); err != nil {
			return err
		}
		w.state.Rect.Center = center
		return nil
	})
}

// TranslateBy moves the OS window by delta.
func (w *ManagedWindow) TranslateBy(ctx context.Context, delta geometry.Point) error {
	return w.MoveTo(ctx, w.state.Rect.Center.Add(delta))
}

// SetBounds commands the OS window to the exact bounds.
func (w *ManagedWindow) SetBounds(ctx context.Context, bounds geometry.Rect) error {
	return w.command(ctx, "setBounds", func(ctx context.Context) error {
		if err := w.handle.SetBounds(ctx, bounds); err != nil {
			return err
		}
		w.state.Rect = bounds
		return nil
	})
}

// ResizeTo commands a resize with the given anchor.
func (w *ManagedWindow) ResizeTo(ctx context.Context, width, height float64, anchor runtime.ResizeAnchor) error {
	return w.command(ctx, "resizeTo", func(ctx context.Context) error {
		if err := w.handle.ResizeTo(ctx, width, height, anchor); err != nil {
			return err
		}
		bounds, err := w.handle.Bounds(ctx)
		if err == nil {
			w.state.Rect = bounds
		}
		return nil
	})
}

// Show makes the OS window visible.
func (w *ManagedWindow) Show(ctx context.Context) error {
	return w.command(ctx, "show", func(ctx context.Context) error {
		if err := w.handle.Show(ctx); err != nil {
			return err
		}
		w.state.Hidden = false
		return nil
	})
}

// Hide conceals the OS window.
func (w *ManagedWindow) Hide(ctx context.Context) error {
	return w.command(ctx, "hide", func(ctx context.Context) error {
		if err := w.handle.Hide(ctx); err != nil {
			return err
		}
		w.state.Hidden = true
		return nil
	})
}

// Close closes the OS window.
func (w *ManagedWindow) Close(ctx context.Context, force bool) error {
	return w.command(ctx, "close", func(ctx context.Context) error {
		return w.handle.Close(ctx, force)
	})
}

// command runs one runtime command under the window's timeout. A failure
// marks the window not-ready: the OS window is assumed gone and teardown is
// signalled so the engine removes the window on this turn.
func (w *ManagedWindow) command(ctx context.Context, op string, fn func(context.Context) error) error {
	if !w.ready {
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, w.commandTimeout)
	defer cancel()
	err := fn(cctx)
	if err == nil {
		return nil
	}
	if cctx.Err() != nil {
		err = faults.Timeout(op)
	}
	w.logger.WithFields(logrus.Fields{
		"window": w.id.String(),
		"op":     op,
	}).WithError(err).Warn("Runtime command failed, marking window not-ready")
	w.ready = false
	w.OnTeardown.Emit(w)
	return err
}

// HandleEvent folds one runtime event into the cached state and fires the
// matching signals. A synthetic bounds-changed event refreshes the cache
// without a commit; a synthetic bounds-changing frame (group cohesion) is
// emitted as a non-originated transform, which the owning snap group drops.
func (w *ManagedWindow) HandleEvent(ev runtime.Event) {
	switch ev.Kind {
	case runtime.EventBoundsChanging:
		w.state.Rect = ev.Bounds
		w.OnTransform.Emit(Transform{Window: w, Type: ev.Transform, Originated: !ev.Synthetic})
	case runtime.EventBoundsChanged:
		w.state.Rect = ev.Bounds
		if !ev.Synthetic {
			w.OnCommit.Emit(Transform{Window: w, Type: ev.Transform, Originated: true})
		}
	case runtime.EventStateChanged:
		if w.state.State != ev.State {
			w.state.State = ev.State
			w.OnModified.Emit(w)
		}
	case runtime.EventFrameChanged:
		if w.state.Frame != ev.Frame {
			w.state.Frame = ev.Frame
			w.OnModified.Emit(w)
		}
	case runtime.EventHiddenChanged:
		if w.state.Hidden != ev.Hidden {
			w.state.Hidden = ev.Hidden
			w.OnModified.Emit(w)
		}
	case runtime.EventClosed:
		w.ready = false
		w.OnTeardown.Emit(w)
	}
}
