package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRectCorners(t *testing.T) {
	r := NewRect(100, 100, 50, 40)

	assert.Equal(t, Point{X: 50, Y: 60}, r.Min())
	assert.Equal(t, Point{X: 150, Y: 140}, r.Max())
	assert.Equal(t, 100.0, r.Width())
	assert.Equal(t, 80.0, r.Height())

	round := FromCorners(r.Min(), r.Max())
	assert.Equal(t, r, round)
}

func TestRectEdges(t *testing.T) {
	r := NewRect(100, 100, 50, 40)

	assert.Equal(t, 50.0, r.Edge(SideLeft))
	assert.Equal(t, 150.0, r.Edge(SideRight))
	assert.Equal(t, 60.0, r.Edge(SideTop))
	assert.Equal(t, 140.0, r.Edge(SideBottom))
}

func TestSideHelpers(t *testing.T) {
	assert.Equal(t, SideRight, SideLeft.Opposite())
	assert.Equal(t, SideTop, SideBottom.Opposite())
	assert.Equal(t, AxisX, SideLeft.Axis())
	assert.Equal(t, AxisY, SideBottom.Axis())
	assert.Equal(t, -1.0, SideTop.Sign())
	assert.Equal(t, 1.0, SideRight.Sign())
	assert.Equal(t, AxisY, AxisX.Other())
}

func TestEdgeGap(t *testing.T) {
	a := NewRect(100, 100, 50, 50)

	tests := []struct {
		name string
		b    Rect
		side Side
		want float64
	}{
		{"separated to the right", NewRect(220, 100, 50, 50), SideRight, 20},
		{"flush to the right", NewRect(200, 100, 50, 50), SideRight, 0},
		{"overlapping to the right", NewRect(190, 100, 50, 50), SideRight, -10},
		{"separated below", NewRect(100, 230, 50, 50), SideBottom, 30},
		{"separated above", NewRect(100, -30, 50, 50), SideTop, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.EdgeGap(tt.b, tt.side))
		})
	}
}

func TestOverlap(t *testing.T) {
	a := NewRect(100, 100, 50, 50)
	b := NewRect(220, 130, 50, 50)

	assert.Equal(t, 70.0, a.Overlap(b, AxisY))
	assert.Equal(t, -20.0, a.Overlap(b, AxisX))
}

func TestUnion(t *testing.T) {
	a := NewRect(100, 100, 50, 50)
	b := NewRect(250, 100, 50, 50)

	u := a.Union(b)
	assert.Equal(t, Point{X: 50, Y: 50}, u.Min())
	assert.Equal(t, Point{X: 300, Y: 150}, u.Max())

	assert.Equal(t, a, a.Union(Rect{}))
	assert.Equal(t, b, Rect{}.Union(b))
}

func TestContainsAndIntersects(t *testing.T) {
	r := NewRect(100, 100, 50, 50)

	assert.True(t, r.Contains(Point{X: 100, Y: 100}))
	assert.True(t, r.Contains(Point{X: 50, Y: 50}))
	assert.False(t, r.Contains(Point{X: 49, Y: 100}))

	flush := NewRect(200, 100, 50, 50)
	assert.False(t, r.Intersects(flush, 0))
	overlapping := NewRect(190, 100, 50, 50)
	assert.True(t, r.Intersects(overlapping, 0))
	assert.False(t, r.Intersects(overlapping, 15))
}

func TestTranslate(t *testing.T) {
	r := NewRect(100, 100, 50, 50)
	moved := r.Translate(Point{X: -18, Y: 4})
	assert.Equal(t, Point{X: 82, Y: 104}, moved.Center)
	assert.Equal(t, r.Half, moved.Half)
}
