package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pjbroadbent/layouts-service/internal/runtime"
	"github.com/pjbroadbent/layouts-service/pkg/geometry"
	"github.com/pjbroadbent/layouts-service/pkg/models"
)

func TestTransformClassification(t *testing.T) {
	m, rt := newTestModel(t)
	w := openManaged(t, m, rt, "app", "w", geometry.NewRect(100, 100, 50, 50))

	var transforms []Transform
	var commits []Transform
	w.OnTransform.Connect(func(tr Transform) { transforms = append(transforms, tr) })
	w.OnCommit.Connect(func(tr Transform) { commits = append(commits, tr) })

	// A user frame is an originated transform.
	w.HandleEvent(runtime.Event{Kind: runtime.EventBoundsChanging, Bounds: geometry.NewRect(110, 100, 50, 50), Transform: models.TransformMove})
	// A cohesion frame is received, not originated.
	w.HandleEvent(runtime.Event{Kind: runtime.EventBoundsChanging, Bounds: geometry.NewRect(120, 100, 50, 50), Transform: models.TransformMove, Synthetic: true})
	// A service-issued bounds change never commits.
	w.HandleEvent(runtime.Event{Kind: runtime.EventBoundsChanged, Bounds: geometry.NewRect(130, 100, 50, 50), Transform: models.TransformMove, Synthetic: true})
	// A user release commits.
	w.HandleEvent(runtime.Event{Kind: runtime.EventBoundsChanged, Bounds: geometry.NewRect(140, 100, 50, 50), Transform: models.TransformMove})

	require.Len(t, transforms, 2)
	assert.True(t, transforms[0].Originated)
	assert.False(t, transforms[1].Originated)
	require.Len(t, commits, 1)
	assert.Equal(t, 140.0, w.Rect().Center.X)
}

func TestModifiedFiresOnEligibilityChanges(t *testing.T) {
	m, rt := newTestModel(t)
	w := openManaged(t, m, rt, "app", "w", geometry.NewRect(100, 100, 50, 50))

	var modified int
	w.OnModified.Connect(func(*ManagedWindow) { modified++ })

	w.HandleEvent(runtime.Event{Kind: runtime.EventStateChanged, State: models.StateMinimized})
	w.HandleEvent(runtime.Event{Kind: runtime.EventStateChanged, State: models.StateMinimized})
	w.HandleEvent(runtime.Event{Kind: runtime.EventHiddenChanged, Hidden: true})
	w.HandleEvent(runtime.Event{Kind: runtime.EventFrameChanged, Frame: false})

	// The duplicate state event does not re-fire.
	assert.Equal(t, 3, modified)
}

func TestCommandFailureMarksNotReady(t *testing.T) {
	m, rt := newTestModel(t)
	w := openManaged(t, m, rt, "app", "w", geometry.NewRect(100, 100, 50, 50))

	var teardowns int
	w.OnTeardown.Connect(func(*ManagedWindow) { teardowns++ })

	rt.FailNext("move", errors.New("window vanished"))
	err := w.MoveTo(context.Background(), geometry.Point{X: 10, Y: 10})
	require.Error(t, err)
	assert.False(t, w.Ready())
	assert.Equal(t, 1, teardowns)

	// Subsequent commands are no-ops.
	assert.NoError(t, w.MoveTo(context.Background(), geometry.Point{X: 20, Y: 20}))
	assert.Equal(t, 100.0, w.Rect().Center.X)
}

func TestApplyProperties(t *testing.T) {
	m, rt := newTestModel(t)
	w := openManaged(t, m, rt, "app", "w", geometry.NewRect(100, 100, 50, 50))

	hidden := true
	opacity := 0.5
	w.ApplyProperties(models.PropertyDelta{Hidden: &hidden, Opacity: &opacity})
	assert.True(t, w.State().Hidden)
	assert.Equal(t, 0.5, w.State().Opacity)
	assert.Equal(t, 100.0, w.Rect().Center.X)
}

func TestFrameChangedTrue(t *testing.T) {
	m, rt := newTestModel(t)
	w := openManaged(t, m, rt, "app", "w", geometry.NewRect(100, 100, 50, 50))
	require.True(t, w.State().Frame)

	var modified int
	w.OnModified.Connect(func(*ManagedWindow) { modified++ })
	w.HandleEvent(runtime.Event{Kind: runtime.EventFrameChanged, Frame: false})
	w.HandleEvent(runtime.Event{Kind: runtime.EventFrameChanged, Frame: true})
	assert.Equal(t, 2, modified)
}
