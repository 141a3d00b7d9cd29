package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pjbroadbent/layouts-service/pkg/faults"
	"github.com/pjbroadbent/layouts-service/pkg/geometry"
	"github.com/pjbroadbent/layouts-service/pkg/models"
)

func TestTabGroupAssembly(t *testing.T) {
	m, rt := newTestModel(t)
	ctx := context.Background()
	a := openManaged(t, m, rt, "app", "a", geometry.NewRect(100, 200, 50, 50))
	b := openManaged(t, m, rt, "app", "b", geometry.NewRect(400, 300, 80, 60))

	tg, err := m.CreateTabGroup(ctx, "https://strip.local/tabs.html", 60)
	require.NoError(t, err)
	require.NoError(t, tg.AddTab(ctx, a, -1))
	require.NoError(t, tg.AddTab(ctx, b, -1))

	// The founding tab defines the body; the strip sits flush above it.
	strip := tg.TabStrip().Rect()
	assert.Equal(t, geometry.Point{X: 100, Y: 120}, strip.Center)
	assert.Equal(t, geometry.Point{X: 50, Y: 30}, strip.Half)

	// Every tab shares the body bounds; only the active tab is visible.
	assert.Equal(t, a.Rect(), b.Rect())
	assert.Same(t, a, tg.ActiveTab())
	assert.False(t, a.State().Hidden)
	assert.True(t, b.State().Hidden)

	// All tabs live in the strip's snap group.
	assert.Same(t, tg.TabStrip().SnapGroup(), a.SnapGroup())
	assert.Same(t, tg.TabStrip().SnapGroup(), b.SnapGroup())

	assert.Equal(t, []models.WindowID{a.ID(), b.ID()}, tg.TabIDs())
}

func TestAddTabIdempotent(t *testing.T) {
	m, rt := newTestModel(t)
	ctx := context.Background()
	a := openManaged(t, m, rt, "app", "a", geometry.NewRect(100, 200, 50, 50))
	b := openManaged(t, m, rt, "app", "b", geometry.NewRect(400, 300, 80, 60))

	tg, err := m.CreateTabGroup(ctx, "about:blank", 60)
	require.NoError(t, err)
	require.NoError(t, tg.AddTab(ctx, a, -1))
	require.NoError(t, tg.AddTab(ctx, b, -1))

	before := tg.TabIDs()
	active := tg.ActiveTab()
	require.NoError(t, tg.AddTab(ctx, b, -1))
	assert.Equal(t, before, tg.TabIDs())
	assert.Same(t, active, tg.ActiveTab())
}

func TestAddTabRefusesForeignTab(t *testing.T) {
	m, rt := newTestModel(t)
	ctx := context.Background()
	a := openManaged(t, m, rt, "app", "a", geometry.NewRect(100, 200, 50, 50))
	b := openManaged(t, m, rt, "app", "b", geometry.NewRect(400, 300, 80, 60))
	c := openManaged(t, m, rt, "app", "c", geometry.NewRect(700, 300, 80, 60))

	first, err := m.CreateTabGroup(ctx, "about:blank", 60)
	require.NoError(t, err)
	require.NoError(t, first.AddTab(ctx, a, -1))
	require.NoError(t, first.AddTab(ctx, b, -1))

	second, err := m.CreateTabGroup(ctx, "about:blank", 60)
	require.NoError(t, err)
	require.NoError(t, second.AddTab(ctx, c, -1))

	err = second.AddTab(ctx, a, -1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, faults.ErrInvalidState))
}

func TestSwitchTabIdempotent(t *testing.T) {
	m, rt := newTestModel(t)
	ctx := context.Background()
	a := openManaged(t, m, rt, "app", "a", geometry.NewRect(100, 200, 50, 50))
	b := openManaged(t, m, rt, "app", "b", geometry.NewRect(400, 300, 80, 60))

	tg, err := m.CreateTabGroup(ctx, "about:blank", 60)
	require.NoError(t, err)
	require.NoError(t, tg.AddTab(ctx, a, -1))
	require.NoError(t, tg.AddTab(ctx, b, -1))

	require.NoError(t, tg.SwitchTab(ctx, b))
	assert.Same(t, b, tg.ActiveTab())
	assert.True(t, a.State().Hidden)
	assert.False(t, b.State().Hidden)

	hiddenBefore := a.State().Hidden
	require.NoError(t, tg.SwitchTab(ctx, b))
	assert.Same(t, b, tg.ActiveTab())
	assert.Equal(t, hiddenBefore, a.State().Hidden)
}

func TestRemoveActiveTabActivatesNextInOrder(t *testing.T) {
	m, rt := newTestModel(t)
	ctx := context.Background()
	a := openManaged(t, m, rt, "app", "a", geometry.NewRect(100, 200, 50, 50))
	b := openManaged(t, m, rt, "app", "b", geometry.NewRect(400, 300, 80, 60))
	c := openManaged(t, m, rt, "app", "c", geometry.NewRect(700, 300, 80, 60))

	tg, err := m.CreateTabGroup(ctx, "about:blank", 60)
	require.NoError(t, err)
	for _, w := range []*ManagedWindow{a, b, c} {
		require.NoError(t, tg.AddTab(ctx, w, -1))
	}

	require.NoError(t, tg.RemoveTab(ctx, a))
	assert.Same(t, b, tg.ActiveTab())
	assert.Equal(t, []models.WindowID{b.ID(), c.ID()}, tg.TabIDs())
	assert.Nil(t, a.TabGroup())
}

func TestRemoveLastActiveTabWrapsToPrevious(t *testing.T) {
	m, rt := newTestModel(t)
	ctx := context.Background()
	a := openManaged(t, m, rt, "app", "a", geometry.NewRect(100, 200, 50, 50))
	b := openManaged(t, m, rt, "app", "b", geometry.NewRect(400, 300, 80, 60))
	c := openManaged(t, m, rt, "app", "c", geometry.NewRect(700, 300, 80, 60))

	tg, err := m.CreateTabGroup(ctx, "about:blank", 60)
	require.NoError(t, err)
	for _, w := range []*ManagedWindow{a, b, c} {
		require.NoError(t, tg.AddTab(ctx, w, -1))
	}
	require.NoError(t, tg.SwitchTab(ctx, c))

	require.NoError(t, tg.RemoveTab(ctx, c))
	assert.Same(t, b, tg.ActiveTab())
}

func TestTabGroupCollapse(t *testing.T) {
	m, rt := newTestModel(t)
	ctx := context.Background()
	a := openManaged(t, m, rt, "app", "a", geometry.NewRect(100, 200, 50, 50))
	bOriginal := geometry.NewRect(400, 300, 80, 60)
	b := openManaged(t, m, rt, "app", "b", bOriginal)

	tg, err := m.CreateTabGroup(ctx, "about:blank", 60)
	require.NoError(t, err)
	stripID := tg.TabStrip().ID()
	require.NoError(t, tg.AddTab(ctx, a, -1))
	require.NoError(t, tg.AddTab(ctx, b, -1))

	require.NoError(t, tg.RemoveTab(ctx, a))

	// The group is gone and the survivor restored.
	_, alive := m.TabGroupByID(tg.ID())
	assert.False(t, alive)
	assert.Nil(t, b.TabGroup())
	assert.Equal(t, bOriginal, b.Rect())
	assert.False(t, b.State().Hidden)

	// The survivor ends in a singleton group with no leave message.
	assert.Equal(t, 1, b.SnapGroup().Size())
	for _, msg := range rt.MessagesFor(b.ID()) {
		assert.NotEqual(t, models.MsgLeaveSnapGroup, msg.Kind)
	}

	// The strip window is closed.
	_, open := rt.Window(stripID)
	assert.False(t, open)
}

func TestTabEntityRect(t *testing.T) {
	m, rt := newTestModel(t)
	ctx := context.Background()
	a := openManaged(t, m, rt, "app", "a", geometry.NewRect(100, 200, 50, 50))
	b := openManaged(t, m, rt, "app", "b", geometry.NewRect(400, 300, 80, 60))

	tg, err := m.CreateTabGroup(ctx, "about:blank", 60)
	require.NoError(t, err)
	require.NoError(t, tg.AddTab(ctx, a, -1))
	require.NoError(t, tg.AddTab(ctx, b, -1))

	rect := tg.EntityRect()
	assert.Equal(t, geometry.Point{X: 100, Y: 170}, rect.Center)
	assert.Equal(t, geometry.Point{X: 50, Y: 80}, rect.Half)
}

func TestRealignApps(t *testing.T) {
	m, rt := newTestModel(t)
	ctx := context.Background()
	a := openManaged(t, m, rt, "app", "a", geometry.NewRect(100, 200, 50, 50))
	b := openManaged(t, m, rt, "app", "b", geometry.NewRect(400, 300, 80, 60))

	tg, err := m.CreateTabGroup(ctx, "about:blank", 60)
	require.NoError(t, err)
	require.NoError(t, tg.AddTab(ctx, a, -1))
	require.NoError(t, tg.AddTab(ctx, b, -1))

	require.NoError(t, tg.TabStrip().SetBounds(ctx, geometry.NewRect(500, 500, 50, 30)))
	require.NoError(t, tg.RealignApps(ctx))

	want := geometry.NewRect(500, 580, 50, 50)
	assert.Equal(t, want, a.Rect())
	assert.Equal(t, want, b.Rect())
	assert.True(t, b.State().Hidden)
}

func TestTeardownOfTabbedWindow(t *testing.T) {
	m, rt := newTestModel(t)
	ctx := context.Background()
	a := openManaged(t, m, rt, "app", "a", geometry.NewRect(100, 200, 50, 50))
	b := openManaged(t, m, rt, "app", "b", geometry.NewRect(400, 300, 80, 60))
	c := openManaged(t, m, rt, "app", "c", geometry.NewRect(700, 300, 80, 60))

	tg, err := m.CreateTabGroup(ctx, "about:blank", 60)
	require.NoError(t, err)
	for _, w := range []*ManagedWindow{a, b, c} {
		require.NoError(t, tg.AddTab(ctx, w, -1))
	}

	require.NoError(t, m.RemoveWindow(ctx, a.ID()))
	assert.Equal(t, []models.WindowID{b.ID(), c.ID()}, tg.TabIDs())
	assert.Same(t, b, tg.ActiveTab())

	_, found := m.GetWindow(a.ID())
	assert.False(t, found)
}
