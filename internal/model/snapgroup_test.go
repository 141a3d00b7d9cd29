package model

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pjbroadbent/layouts-service/internal/runtime"
	"github.com/pjbroadbent/layouts-service/pkg/geometry"
	"github.com/pjbroadbent/layouts-service/pkg/models"
)

func newTestModel(t *testing.T) (*DesktopModel, *runtime.Fake) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	rt := runtime.NewFake(logger)
	return NewDesktopModel(rt, logger), rt
}

func openManaged(t *testing.T, m *DesktopModel, rt *runtime.Fake, uuid, name string, rect geometry.Rect) *ManagedWindow {
	t.Helper()
	id := rt.OpenWindow(runtime.WindowOptions{
		ID:     models.WindowID{UUID: uuid, Name: name},
		Bounds: rect,
		Frame:  true,
		State:  models.StateNormal,
	})
	opts, err := mustHandle(t, rt, id).Options(context.Background())
	require.NoError(t, err)
	w, err := m.RegisterWindow(context.Background(), opts)
	require.NoError(t, err)
	return w
}

func mustHandle(t *testing.T, rt *runtime.Fake, id models.WindowID) runtime.WindowHandle {
	t.Helper()
	h, ok := rt.Window(id)
	require.True(t, ok)
	return h
}

func TestRegisterCreatesSingletonGroup(t *testing.T) {
	m, rt := newTestModel(t)
	w := openManaged(t, m, rt, "app", "w1", geometry.NewRect(100, 100, 50, 50))

	require.NotNil(t, w.SnapGroup())
	assert.Equal(t, 1, w.SnapGroup().Size())
	assert.False(t, w.SnapGroup().Grouped())
	assert.Same(t, w, w.SnapGroup().RootWindow())
	// No membership message for a singleton.
	assert.Empty(t, rt.MessagesFor(w.ID()))
}

func TestAddWindowMovesBetweenGroups(t *testing.T) {
	m, rt := newTestModel(t)
	ctx := context.Background()
	a := openManaged(t, m, rt, "app", "a", geometry.NewRect(100, 100, 50, 50))
	b := openManaged(t, m, rt, "app", "b", geometry.NewRect(200, 100, 50, 50))

	prevGroup := b.SnapGroup()
	a.SnapGroup().AddWindow(ctx, b)

	assert.Same(t, a.SnapGroup(), b.SnapGroup())
	assert.Equal(t, 2, a.SnapGroup().Size())
	assert.True(t, a.SnapGroup().Grouped())
	// The emptied previous group is collected immediately.
	_, alive := m.SnapGroupByID(prevGroup.ID())
	assert.False(t, alive)
	assert.Same(t, prevGroup, b.PrevSnapGroup())

	// Both windows learn they are grouped when the group reaches size 2.
	require.Len(t, rt.MessagesFor(a.ID()), 1)
	assert.Equal(t, models.MsgJoinSnapGroup, rt.MessagesFor(a.ID())[0].Kind)
	require.Len(t, rt.MessagesFor(b.ID()), 1)
	assert.Equal(t, models.MsgJoinSnapGroup, rt.MessagesFor(b.ID())[0].Kind)

	// A third member only notifies itself.
	c := openManaged(t, m, rt, "app", "c", geometry.NewRect(300, 100, 50, 50))
	a.SnapGroup().AddWindow(ctx, c)
	assert.Len(t, rt.MessagesFor(a.ID()), 1)
	require.Len(t, rt.MessagesFor(c.ID()), 1)
	assert.Equal(t, models.MsgJoinSnapGroup, rt.MessagesFor(c.ID())[0].Kind)
}

func TestRemoveWindowMessages(t *testing.T) {
	m, rt := newTestModel(t)
	ctx := context.Background()
	a := openManaged(t, m, rt, "app", "a", geometry.NewRect(100, 100, 50, 50))
	b := openManaged(t, m, rt, "app", "b", geometry.NewRect(200, 100, 50, 50))
	c := openManaged(t, m, rt, "app", "c", geometry.NewRect(300, 100, 50, 50))
	g := a.SnapGroup()
	g.AddWindow(ctx, b)
	g.AddWindow(ctx, c)

	g.RemoveWindow(ctx, c)
	msgs := rt.MessagesFor(c.ID())
	require.Len(t, msgs, 2)
	assert.Equal(t, models.MsgLeaveSnapGroup, msgs[1].Kind)

	// Collapsing to one window stays silent for the survivor.
	g.RemoveWindow(ctx, b)
	for _, msg := range rt.MessagesFor(a.ID()) {
		assert.NotEqual(t, models.MsgLeaveSnapGroup, msg.Kind)
	}
	assert.Equal(t, 1, g.Size())
	assert.False(t, g.Grouped())
}

func TestEveryWindowAlwaysInExactlyOneGroup(t *testing.T) {
	m, rt := newTestModel(t)
	ctx := context.Background()
	a := openManaged(t, m, rt, "app", "a", geometry.NewRect(100, 100, 50, 50))
	b := openManaged(t, m, rt, "app", "b", geometry.NewRect(200, 100, 50, 50))
	a.SnapGroup().AddWindow(ctx, b)

	count := func(w *ManagedWindow) int {
		n := 0
		for _, g := range m.SnapGroups() {
			if g.Contains(w) {
				n++
			}
		}
		return n
	}
	assert.Equal(t, 1, count(a))
	assert.Equal(t, 1, count(b))

	m.MoveToSingletonGroup(ctx, b)
	assert.Equal(t, 1, count(a))
	assert.Equal(t, 1, count(b))
}

func TestBoundsAggregation(t *testing.T) {
	m, rt := newTestModel(t)
	ctx := context.Background()
	a := openManaged(t, m, rt, "app", "a", geometry.NewRect(100, 100, 50, 50))
	b := openManaged(t, m, rt, "app", "b", geometry.NewRect(200, 100, 50, 50))
	g := a.SnapGroup()

	// A singleton's box equals its sole window's rect.
	assert.Equal(t, geometry.Point{}, g.Origin())
	assert.Equal(t, geometry.Point{X: 50, Y: 50}, g.HalfSize())
	assert.Equal(t, a.Rect(), g.Bounds())

	g.AddWindow(ctx, b)
	bounds := g.Bounds()
	assert.Equal(t, geometry.Point{X: 50, Y: 50}, bounds.Min())
	assert.Equal(t, geometry.Point{X: 250, Y: 150}, bounds.Max())
	assert.Equal(t, geometry.Point{X: 100, Y: 50}, g.HalfSize())
	// Origin is relative to the root (window a).
	assert.Equal(t, geometry.Point{X: 50, Y: 0}, g.Origin())
}

func TestBoundsExcludeNonNormalMembers(t *testing.T) {
	m, rt := newTestModel(t)
	ctx := context.Background()
	a := openManaged(t, m, rt, "app", "a", geometry.NewRect(100, 100, 50, 50))
	b := openManaged(t, m, rt, "app", "b", geometry.NewRect(200, 100, 50, 50))
	c := openManaged(t, m, rt, "app", "c", geometry.NewRect(300, 100, 50, 50))
	g := a.SnapGroup()
	g.AddWindow(ctx, b)
	g.AddWindow(ctx, c)

	c.ApplyProperties(models.PropertyDelta{Hidden: boolPtr(true)})
	g.MarkBoundsStale()
	bounds := g.Bounds()
	assert.Equal(t, geometry.Point{X: 250, Y: 150}, bounds.Max())

	// With a single visible member left, the box is that window's rect.
	minimized := models.StateMinimized
	b.ApplyProperties(models.PropertyDelta{State: &minimized})
	g.MarkBoundsStale()
	assert.Equal(t, geometry.Point{X: 50, Y: 50}, g.HalfSize())
	assert.Equal(t, geometry.Point{}, g.Origin())
}

func TestBoundsRecomputedLazilyAfterTransform(t *testing.T) {
	m, rt := newTestModel(t)
	ctx := context.Background()
	a := openManaged(t, m, rt, "app", "a", geometry.NewRect(100, 100, 50, 50))
	b := openManaged(t, m, rt, "app", "b", geometry.NewRect(200, 100, 50, 50))
	g := a.SnapGroup()
	g.AddWindow(ctx, b)
	_ = g.Bounds()

	b.HandleEvent(runtime.Event{
		Kind:      runtime.EventBoundsChanging,
		ID:        b.ID(),
		Bounds:    geometry.NewRect(260, 100, 50, 50),
		Transform: models.TransformMove,
	})
	assert.Equal(t, geometry.Point{X: 310, Y: 150}, g.Bounds().Max())
}

func TestGroupTransformDedup(t *testing.T) {
	m, rt := newTestModel(t)
	ctx := context.Background()
	a := openManaged(t, m, rt, "app", "a", geometry.NewRect(100, 100, 50, 50))
	b := openManaged(t, m, rt, "app", "b", geometry.NewRect(200, 100, 50, 50))
	g := a.SnapGroup()
	g.AddWindow(ctx, b)

	var transforms int
	g.OnTransform.Connect(func(Transform) { transforms++ })

	// The originator's frame is re-broadcast once; the cohesion frame for
	// the other member is dropped.
	a.HandleEvent(runtime.Event{Kind: runtime.EventBoundsChanging, ID: a.ID(), Bounds: geometry.NewRect(110, 100, 50, 50), Transform: models.TransformMove})
	b.HandleEvent(runtime.Event{Kind: runtime.EventBoundsChanging, ID: b.ID(), Bounds: geometry.NewRect(210, 100, 50, 50), Transform: models.TransformMove, Synthetic: true})
	assert.Equal(t, 1, transforms)
}

func TestRootFollowsTabStrip(t *testing.T) {
	m, rt := newTestModel(t)
	ctx := context.Background()
	a := openManaged(t, m, rt, "app", "a", geometry.NewRect(100, 200, 50, 50))
	b := openManaged(t, m, rt, "app", "b", geometry.NewRect(100, 200, 50, 50))

	tg, err := m.CreateTabGroup(ctx, "about:blank", 60)
	require.NoError(t, err)
	require.NoError(t, tg.AddTab(ctx, a, -1))
	require.NoError(t, tg.AddTab(ctx, b, -1))

	// Tab a is windows[0] of its group only after the strip; group root is
	// the strip either way once a is a tabbed tab.
	g := a.SnapGroup()
	assert.Same(t, tg.TabStrip(), g.RootWindow())

	// The tab set appears as one entity.
	entities := g.Entities()
	require.Len(t, entities, 1)
	assert.True(t, entities[0].IsTabGroup())
}

func boolPtr(b bool) *bool { return &b }
