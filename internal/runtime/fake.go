package runtime

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pjbroadbent/layouts-service/pkg/faults"
	"github.com/pjbroadbent/layouts-service/pkg/geometry"
	"github.com/pjbroadbent/layouts-service/pkg/models"
)

// Fake is an in-memory Runtime. All operations complete synchronously and
// events are dispatched inline to subscribers, matching the engine's
// single-queue scheduling model. Tests drive user interaction through the
// Drag*, Focus and Set* helpers.
type Fake struct {
	logger *logrus.Logger
	mu     sync.Mutex

	windows map[models.WindowID]*fakeWindow
	order   []models.WindowID

	subscribers map[int]func(Event)
	nextSub     int

	cursor     geometry.Point
	dragOffset geometry.Point

	// failNext maps an operation name to a pending injected failure.
	failNext map[string]error

	// messages records every message sent to a window's client.
	messages []models.WindowMessage
}

type fakeWindow struct {
	opts   WindowOptions
	closed bool
	group  models.WindowID // runtime-level group anchor, zero when ungrouped
}

// NewFake builds an empty fake runtime.
func NewFake(logger *logrus.Logger) *Fake {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	return &Fake{
		logger:      logger,
		windows:     make(map[models.WindowID]*fakeWindow),
		subscribers: make(map[int]func(Event)),
		failNext:    make(map[string]error),
	}
}

// Windows enumerates all open windows in creation order.
func (f *Fake) Windows(ctx context.Context) ([]WindowOptions, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]WindowOptions, 0, len(f.order))
	for _, id := range f.order {
		if w, ok := f.windows[id]; ok && !w.closed {
			out = append(out, w.opts)
		}
	}
	return out, nil
}

// Window returns the handle for an open window.
func (f *Fake) Window(id models.WindowID) (WindowHandle, bool) {
	f.mu.Lock()
	w, ok := f.windows[id]
	f.mu.Unlock()
	if !ok || w.closed {
		return nil, false
	}
	return &fakeHandle{rt: f, id: id}, true
}

// CreateWindow opens a new window owned by the service (tab strips, previews).
func (f *Fake) CreateWindow(ctx context.Context, opts WindowOptions) (WindowHandle, error) {
	if err := f.takeFailure("create"); err != nil {
		return nil, err
	}
	if opts.ID.IsZero() {
		opts.ID = models.WindowID{UUID: models.ServiceUUID, Name: uuid.NewString()}
	}
	if opts.State == "" {
		opts.State = models.StateNormal
	}
	if opts.Opacity == 0 {
		opts.Opacity = 1
	}
	f.mu.Lock()
	if _, exists := f.windows[opts.ID]; exists {
		f.mu.Unlock()
		return nil, fmt.Errorf("window %s already exists", opts.ID)
	}
	f.windows[opts.ID] = &fakeWindow{opts: opts}
	f.order = append(f.order, opts.ID)
	f.mu.Unlock()

	f.emit(Event{Kind: EventCreated, ID: opts.ID, Bounds: opts.Bounds, Synthetic: true})
	return &fakeHandle{rt: f, id: opts.ID}, nil
}

// Subscribe registers an event sink.
func (f *Fake) Subscribe(fn func(Event)) func() {
	f.mu.Lock()
	id := f.nextSub
	f.nextSub++
	f.subscribers[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.subscribers, id)
		f.mu.Unlock()
	}
}

// CursorPosition reports the simulated mouse position.
func (f *Fake) CursorPosition() geometry.Point {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cursor
}

// DragOffset reports the simulated cursor offset from the drag anchor.
func (f *Fake) DragOffset() geometry.Point {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dragOffset
}

// --- test drivers -------------------------------------------------------

// OpenWindow creates a user window and announces it, returning its id.
func (f *Fake) OpenWindow(opts WindowOptions) models.WindowID {
	if opts.ID.IsZero() {
		opts.ID = models.WindowID{UUID: uuid.NewString(), Name: "default"}
	}
	if opts.State == "" {
		opts.State = models.StateNormal
	}
	if opts.Opacity == 0 {
		opts.Opacity = 1
	}
	f.mu.Lock()
	f.windows[opts.ID] = &fakeWindow{opts: opts}
	f.order = append(f.order, opts.ID)
	f.mu.Unlock()
	f.emit(Event{Kind: EventCreated, ID: opts.ID, Bounds: opts.Bounds})
	return opts.ID
}

// SetCursor positions the simulated mouse.
func (f *Fake) SetCursor(p geometry.Point) {
	f.mu.Lock()
	f.cursor = p
	f.mu.Unlock()
}

// DragBy simulates a user drag of a window: a series of bounds-changing
// frames followed by a bounds-changed commit. Windows grouped with the
// dragged one at the runtime level move along, their frames marked synthetic
// the way native group cohesion reports them. The cursor follows the dragged
// window's center.
func (f *Fake) DragBy(id models.WindowID, delta geometry.Point, frames int) error {
	if frames < 1 {
		frames = 1
	}
	f.mu.Lock()
	w, ok := f.windows[id]
	if !ok || w.closed {
		f.mu.Unlock()
		return faults.NotFound("window", id)
	}
	start := w.opts.Bounds
	cohort := f.groupMembersLocked(id)
	cohortStart := make(map[models.WindowID]geometry.Rect, len(cohort))
	for _, cid := range cohort {
		cohortStart[cid] = f.windows[cid].opts.Bounds
	}
	f.mu.Unlock()

	for i := 1; i <= frames; i++ {
		step := delta.Scale(float64(i) / float64(frames))
		bounds := start.Translate(step)
		f.setBounds(id, bounds)
		f.SetCursor(bounds.Center)
		f.emit(Event{Kind: EventBoundsChanging, ID: id, Bounds: bounds, Transform: models.TransformMove})
		for _, cid := range cohort {
			cb := cohortStart[cid].Translate(step)
			f.setBounds(cid, cb)
			f.emit(Event{Kind: EventBoundsChanging, ID: cid, Bounds: cb, Transform: models.TransformMove, Synthetic: true})
		}
	}
	f.mu.Lock()
	final := f.windows[id].opts.Bounds
	f.mu.Unlock()
	for _, cid := range cohort {
		f.emit(Event{Kind: EventBoundsChanged, ID: cid, Bounds: f.BoundsOf(cid), Transform: models.TransformMove, Synthetic: true})
	}
	f.emit(Event{Kind: EventBoundsChanged, ID: id, Bounds: final, Transform: models.TransformMove})
	return nil
}

// groupMembersLocked lists the open windows runtime-grouped with id,
// excluding id itself.
func (f *Fake) groupMembersLocked(id models.WindowID) []models.WindowID {
	anchor := id
	if w, ok := f.windows[id]; ok && !w.group.IsZero() {
		anchor = w.group
	}
	var out []models.WindowID
	for wid, w := range f.windows {
		if w.closed || wid == id {
			continue
		}
		if w.group == anchor || (wid == anchor && !f.windows[id].group.IsZero()) {
			out = append(out, wid)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UUID != out[j].UUID {
			return out[i].UUID < out[j].UUID
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Focus simulates the user raising a window.
func (f *Fake) Focus(id models.WindowID) {
	f.emit(Event{Kind: EventFocused, ID: id})
}

// SetWindowState simulates the OS minimizing/maximizing/restoring a window.
func (f *Fake) SetWindowState(id models.WindowID, state models.WindowStateKind) {
	f.mu.Lock()
	if w, ok := f.windows[id]; ok {
		w.opts.State = state
	}
	f.mu.Unlock()
	f.emit(Event{Kind: EventStateChanged, ID: id, State: state})
}

// SetHidden simulates a window being hidden or shown by the user.
func (f *Fake) SetHidden(id models.WindowID, hidden bool) {
	f.mu.Lock()
	if w, ok := f.windows[id]; ok {
		w.opts.Hidden = hidden
	}
	f.mu.Unlock()
	f.emit(Event{Kind: EventHiddenChanged, ID: id, Hidden: hidden})
}

// SetFrame simulates a window's frame option toggling.
func (f *Fake) SetFrame(id models.WindowID, frame bool) {
	f.mu.Lock()
	if w, ok := f.windows[id]; ok {
		w.opts.Frame = frame
	}
	f.mu.Unlock()
	f.emit(Event{Kind: EventFrameChanged, ID: id, Frame: frame})
}

// CloseUserWindow simulates the user closing a window.
func (f *Fake) CloseUserWindow(id models.WindowID) {
	f.mu.Lock()
	if w, ok := f.windows[id]; ok {
		w.closed = true
	}
	f.mu.Unlock()
	f.emit(Event{Kind: EventClosed, ID: id})
}

// FailNext injects one failure for the named operation ("move", "resize",
// "bounds", "group", "close", "show", "hide", "create", "message").
func (f *Fake) FailNext(op string, err error) {
	f.mu.Lock()
	f.failNext[op] = err
	f.mu.Unlock()
}

// Messages returns every message sent to window clients so far.
func (f *Fake) Messages() []models.WindowMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.WindowMessage, len(f.messages))
	copy(out, f.messages)
	return out
}

// MessagesFor filters recorded messages by target window.
func (f *Fake) MessagesFor(id models.WindowID) []models.WindowMessage {
	var out []models.WindowMessage
	for _, m := range f.Messages() {
		if m.Target == id {
			out = append(out, m)
		}
	}
	return out
}

// BoundsOf returns a window's current bounds.
func (f *Fake) BoundsOf(id models.WindowID) geometry.Rect {
	f.mu.Lock()
	defer f.mu.Unlock()
	if w, ok := f.windows[id]; ok {
		return w.opts.Bounds
	}
	return geometry.Rect{}
}

// OpenWindowIDs lists open windows sorted by uuid/name, for assertions.
func (f *Fake) OpenWindowIDs() []models.WindowID {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.WindowID
	for id, w := range f.windows {
		if !w.closed {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UUID != out[j].UUID {
			return out[i].UUID < out[j].UUID
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// --- internals ----------------------------------------------------------

func (f *Fake) emit(ev Event) {
	f.mu.Lock()
	sinks := make([]func(Event), 0, len(f.subscribers))
	ids := make([]int, 0, len(f.subscribers))
	for id := range f.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		sinks = append(sinks, f.subscribers[id])
	}
	f.mu.Unlock()
	for _, fn := range sinks {
		fn(ev)
	}
}

func (f *Fake) takeFailure(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failNext[op]; ok {
		delete(f.failNext, op)
		return err
	}
	return nil
}

func (f *Fake) setBounds(id models.WindowID, bounds geometry.Rect) {
	f.mu.Lock()
	if w, ok := f.windows[id]; ok {
		w.opts.Bounds = bounds
	}
	f.mu.Unlock()
}

type fakeHandle struct {
	rt *Fake
	id models.WindowID
}

func (h *fakeHandle) ID() models.WindowID { return h.id }

func (h *fakeHandle) window() (*fakeWindow, error) {
	h.rt.mu.Lock()
	defer h.rt.mu.Unlock()
	w, ok := h.rt.windows[h.id]
	if !ok || w.closed {
		return nil, faults.NotFound("window", h.id)
	}
	return w, nil
}

func (h *fakeHandle) MoveTo(ctx context.Context, center geometry.Point) error {
	if err := h.rt.takeFailure("move"); err != nil {
		return faults.RuntimeFailure("moveTo", err)
	}
	w, err := h.window()
	if err != nil {
		return err
	}
	h.rt.mu.Lock()
	w.opts.Bounds.Center = center
	bounds := w.opts.Bounds
	h.rt.mu.Unlock()
	h.rt.emit(Event{Kind: EventBoundsChanged, ID: h.id, Bounds: bounds, Transform: models.TransformMove, Synthetic: true})
	return nil
}

func (h *fakeHandle) ResizeTo(ctx context.Context, width, height float64, anchor ResizeAnchor) error {
	if err := h.rt.takeFailure("resize"); err != nil {
		return faults.RuntimeFailure("resizeTo", err)
	}
	w, err := h.window()
	if err != nil {
		return err
	}
	h.rt.mu.Lock()
	old := w.opts.Bounds
	half := geometry.Point{X: width / 2, Y: height / 2}
	var center geometry.Point
	if anchor == AnchorBottomRight {
		center = old.Max().Sub(half)
	} else {
		center = old.Min().Add(half)
	}
	w.opts.Bounds = geometry.Rect{Center: center, Half: half}
	bounds := w.opts.Bounds
	h.rt.mu.Unlock()
	h.rt.emit(Event{Kind: EventBoundsChanged, ID: h.id, Bounds: bounds, Transform: models.TransformResize, Synthetic: true})
	return nil
}

func (h *fakeHandle) SetBounds(ctx context.Context, bounds geometry.Rect) error {
	if err := h.rt.takeFailure("bounds"); err != nil {
		return faults.RuntimeFailure("setBounds", err)
	}
	w, err := h.window()
	if err != nil {
		return err
	}
	h.rt.mu.Lock()
	transform := models.TransformMove
	if w.opts.Bounds.Half != bounds.Half {
		transform |= models.TransformResize
	}
	w.opts.Bounds = bounds
	h.rt.mu.Unlock()
	h.rt.emit(Event{Kind: EventBoundsChanged, ID: h.id, Bounds: bounds, Transform: transform, Synthetic: true})
	return nil
}

func (h *fakeHandle) JoinGroup(ctx context.Context, other models.WindowID) error {
	if err := h.rt.takeFailure("group"); err != nil {
		return faults.RuntimeFailure("joinGroup", err)
	}
	w, err := h.window()
	if err != nil {
		return err
	}
	h.rt.mu.Lock()
	w.group = other
	h.rt.mu.Unlock()
	return nil
}

func (h *fakeHandle) LeaveGroup(ctx context.Context) error {
	if err := h.rt.takeFailure("group"); err != nil {
		return faults.RuntimeFailure("leaveGroup", err)
	}
	w, err := h.window()
	if err != nil {
		return err
	}
	h.rt.mu.Lock()
	w.group = models.WindowID{}
	// If the departing window anchored a group, hand the anchor to the
	// first remaining member so cohesion survives.
	var members []models.WindowID
	for wid, fw := range h.rt.windows {
		if !fw.closed && fw.group == h.id {
			members = append(members, wid)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].UUID != members[j].UUID {
			return members[i].UUID < members[j].UUID
		}
		return members[i].Name < members[j].Name
	})
	if len(members) > 0 {
		newAnchor := members[0]
		h.rt.windows[newAnchor].group = models.WindowID{}
		for _, wid := range members[1:] {
			h.rt.windows[wid].group = newAnchor
		}
	}
	h.rt.mu.Unlock()
	return nil
}

func (h *fakeHandle) Close(ctx context.Context, force bool) error {
	if err := h.rt.takeFailure("close"); err != nil {
		return faults.RuntimeFailure("close", err)
	}
	w, err := h.window()
	if err != nil {
		return err
	}
	h.rt.mu.Lock()
	w.closed = true
	h.rt.mu.Unlock()
	h.rt.emit(Event{Kind: EventClosed, ID: h.id, Synthetic: true})
	return nil
}

func (h *fakeHandle) Show(ctx context.Context) error {
	if err := h.rt.takeFailure("show"); err != nil {
		return faults.RuntimeFailure("show", err)
	}
	w, err := h.window()
	if err != nil {
		return err
	}
	h.rt.mu.Lock()
	w.opts.Hidden = false
	h.rt.mu.Unlock()
	h.rt.emit(Event{Kind: EventHiddenChanged, ID: h.id, Hidden: false, Synthetic: true})
	return nil
}

func (h *fakeHandle) Hide(ctx context.Context) error {
	if err := h.rt.takeFailure("hide"); err != nil {
		return faults.RuntimeFailure("hide", err)
	}
	w, err := h.window()
	if err != nil {
		return err
	}
	h.rt.mu.Lock()
	w.opts.Hidden = true
	h.rt.mu.Unlock()
	h.rt.emit(Event{Kind: EventHiddenChanged, ID: h.id, Hidden: true, Synthetic: true})
	return nil
}

func (h *fakeHandle) SendMessage(ctx context.Context, kind models.MessageKind, payload interface{}) error {
	if err := h.rt.takeFailure("message"); err != nil {
		return faults.RuntimeFailure("sendMessage", err)
	}
	if _, err := h.window(); err != nil {
		return err
	}
	h.rt.mu.Lock()
	h.rt.messages = append(h.rt.messages, models.WindowMessage{Target: h.id, Kind: kind, Payload: payload})
	h.rt.mu.Unlock()
	return nil
}

func (h *fakeHandle) Bounds(ctx context.Context) (geometry.Rect, error) {
	w, err := h.window()
	if err != nil {
		return geometry.Rect{}, err
	}
	h.rt.mu.Lock()
	defer h.rt.mu.Unlock()
	return w.opts.Bounds, nil
}

func (h *fakeHandle) Options(ctx context.Context) (WindowOptions, error) {
	w, err := h.window()
	if err != nil {
		return WindowOptions{}, err
	}
	h.rt.mu.Lock()
	defer h.rt.mu.Unlock()
	return w.opts, nil
}
