// Package resolver contains the hit-testing logic run on every drag frame:
// the snap resolver proposes the best validated edge-to-edge alignment for a
// moving snap group, and the tab resolver finds the tab strip under the
// cursor.
package resolver

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/pjbroadbent/layouts-service/internal/model"
	"github.com/pjbroadbent/layouts-service/pkg/geometry"
	"github.com/pjbroadbent/layouts-service/pkg/models"
)

// SnapConfig tunes the snap resolver.
type SnapConfig struct {
	// Radius is the maximum edge-to-edge distance, in pixels, at which two
	// groups attract.
	Radius float64 `json:"radius"`
	// MinOverlap is the minimum shared extent along the snapped edge. Pairs
	// where either window is smaller than this use the smaller side instead.
	MinOverlap float64 `json:"minOverlap"`
	// OverlapEps is the interior-overlap tolerance beyond which a proposed
	// snap is invalid.
	OverlapEps float64 `json:"overlapEps"`
	// SizeMatchTolerance controls opportunistic size matching: when the
	// moving window's parallel extent is within this many pixels of the
	// target's, the target carries a resize to the exact extent.
	SizeMatchTolerance float64 `json:"sizeMatchTolerance"`
}

// DefaultSnapConfig returns the stock tuning.
func DefaultSnapConfig() SnapConfig {
	return SnapConfig{
		Radius:             30,
		MinOverlap:         30,
		OverlapEps:         4,
		SizeMatchTolerance: 16,
	}
}

// SnapTarget is a proposed commit action: translate the moving group by
// SnapOffset so its ActiveWindow sits flush against the target group, then
// merge the two. Invalid targets are still produced so previews can render
// the rejection, but they are never committed.
type SnapTarget struct {
	TargetGroup  *model.SnapGroup
	ActiveWindow *model.ManagedWindow
	SnapOffset   geometry.Point
	// HalfSize, when set, resizes the active window before translation.
	HalfSize  *geometry.Point
	Direction geometry.Side
	Valid     bool

	movingEntity model.Entity
	targetEntity model.Entity
}

// SnapResolver scans candidate snap groups for the best validated
// edge-to-edge alignment.
type SnapResolver struct {
	logger *logrus.Logger
	tracer trace.Tracer
	config SnapConfig
}

// NewSnapResolver builds a resolver with the given tuning.
func NewSnapResolver(logger *logrus.Logger, config SnapConfig) *SnapResolver {
	return &SnapResolver{
		logger: logger,
		tracer: otel.Tracer("snap-resolver"),
		config: config,
	}
}

// pairScore ranks one edge pairing. Lower gap wins, then larger overlap,
// then the entity whose center sits closest to the cursor.
type pairScore struct {
	gap        float64
	overlap    float64
	cursorDist float64
}

func (s pairScore) better(o pairScore) bool {
	if s.gap != o.gap {
		return s.gap < o.gap
	}
	if s.overlap != o.overlap {
		return s.overlap > o.overlap
	}
	return s.cursorDist < o.cursorDist
}

// Resolve returns the best snap target for the moving group against every
// other group in the model, or nil when nothing is in range. The context
// cancels in-flight resolution when a newer drag frame supersedes this one.
func (r *SnapResolver) Resolve(ctx context.Context, desktop *model.DesktopModel, moving *model.SnapGroup, active *model.ManagedWindow, cursor geometry.Point) *SnapTarget {
	_, span := r.tracer.Start(ctx, "snapResolver.Resolve")
	defer span.End()

	movingBounds := moving.Bounds()
	var best *SnapTarget
	var bestScore pairScore

	for _, candidate := range desktop.SnapGroups() {
		if candidate == moving || candidate.Size() == 0 {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		if !r.withinRadius(movingBounds, candidate.Bounds()) {
			continue
		}
		for _, movingEnt := range moving.Entities() {
			for _, targetEnt := range candidate.Entities() {
				target, score, ok := r.bestPair(movingEnt, targetEnt, cursor)
				if !ok {
					continue
				}
				if best == nil || score.better(bestScore) {
					target.TargetGroup = candidate
					target.ActiveWindow = active
					best = target
					bestScore = score
				}
			}
		}
	}
	if best == nil {
		return nil
	}

	best.Valid = r.validate(desktop, moving, best)
	r.logger.WithFields(logrus.Fields{
		"moving_group": moving.ID(),
		"target_group": best.TargetGroup.ID(),
		"offset_x":     best.SnapOffset.X,
		"offset_y":     best.SnapOffset.Y,
		"direction":    best.Direction.String(),
		"valid":        best.Valid,
	}).Debug("Snap target resolved")
	return best
}

// withinRadius filters candidates by bounding-box edge distance: the gap
// between the two boxes must be at most the radius on both axes (overlap
// counts as a negative gap).
func (r *SnapResolver) withinRadius(a, b geometry.Rect) bool {
	gapX := -a.Overlap(b, geometry.AxisX)
	gapY := -a.Overlap(b, geometry.AxisY)
	return gapX <= r.config.Radius && gapY <= r.config.Radius
}

// bestPair scores all four edge pairings of one moving entity against one
// target entity and returns the best admissible one.
func (r *SnapResolver) bestPair(movingEnt, targetEnt model.Entity, cursor geometry.Point) (*SnapTarget, pairScore, bool) {
	mRect := movingEnt.Rect()
	tRect := targetEnt.Rect()

	var best *SnapTarget
	var bestScore pairScore
	for _, side := range geometry.Sides {
		gap := mRect.EdgeGap(tRect, side)
		if math.Abs(gap) > r.config.Radius {
			continue
		}
		parallel := side.Axis().Other()
		ov := mRect.Overlap(tRect, parallel)
		minOv := r.config.MinOverlap
		smaller := math.Min(2*mRect.Half.Component(parallel), 2*tRect.Half.Component(parallel))
		if smaller < minOv {
			minOv = smaller
		}
		if ov < minOv {
			continue
		}

		offset := geometry.Point{}
		if side.Axis() == geometry.AxisX {
			offset.X = side.Sign() * gap
		} else {
			offset.Y = side.Sign() * gap
		}

		target := &SnapTarget{
			SnapOffset: offset,
			Direction:  side,
		}
		if half, ok := r.sizeMatch(movingEnt, tRect, parallel); ok {
			target.HalfSize = half
		}
		score := pairScore{
			gap:        math.Abs(gap),
			overlap:    ov,
			cursorDist: tRect.Center.DistanceTo(cursor),
		}
		if best == nil || score.better(bestScore) {
			best = target
			bestScore = score
		}
	}
	if best == nil {
		return nil, pairScore{}, false
	}
	best.targetEntity = targetEnt
	best.movingEntity = movingEnt
	return best, bestScore, true
}

// sizeMatch proposes a resize of a standalone moving window when its extent
// along the snapped edge is within tolerance of the target's.
func (r *SnapResolver) sizeMatch(movingEnt model.Entity, tRect geometry.Rect, parallel geometry.Axis) (*geometry.Point, bool) {
	if movingEnt.IsTabGroup() {
		return nil, false
	}
	mHalf := movingEnt.Rect().Half
	diff := math.Abs(mHalf.Component(parallel)-tRect.Half.Component(parallel)) * 2
	if diff == 0 || diff > r.config.SizeMatchTolerance {
		return nil, false
	}
	half := mHalf
	if parallel == geometry.AxisX {
		half.X = tRect.Half.X
	} else {
		half.Y = tRect.Half.Y
	}
	return &half, true
}

// validate applies the commit-blocking checks: interior overlap with the
// target group, crossing minimized/maximized bounds, config-disabled
// participants and incompatible tab group stacking.
func (r *SnapResolver) validate(desktop *model.DesktopModel, moving *model.SnapGroup, target *SnapTarget) bool {
	// Config gates: every involved window must be enabled for snapping.
	for _, w := range append(moving.Windows(), target.TargetGroup.Windows()...) {
		if !w.Enabled() || !w.Features().Snap {
			return false
		}
	}
	// Tab strips stay on top: two tab groups never stack vertically.
	if target.movingEntity.IsTabGroup() && target.targetEntity.IsTabGroup() && target.Direction.Axis() == geometry.AxisY {
		return false
	}
	// A minimized or maximized window in the target group blocks the merge.
	for _, w := range target.TargetGroup.Windows() {
		if w.State().State != models.StateNormal {
			return false
		}
	}
	// Applying the offset must not overlap any target interior, nor cross a
	// maximized window's bounds anywhere on the desktop.
	for _, mw := range moving.Windows() {
		if !mw.State().Normal() {
			continue
		}
		translated := mw.Rect().Translate(target.SnapOffset)
		for _, tw := range target.TargetGroup.Windows() {
			if !tw.State().Normal() {
				continue
			}
			if translated.Intersects(tw.Rect(), r.config.OverlapEps) {
				return false
			}
		}
		blocked := false
		for _, other := range desktop.Windows() {
			if other.State().State == models.StateMaximized && translated.Intersects(other.Rect(), r.config.OverlapEps) {
				blocked = true
				break
			}
		}
		if blocked {
			return false
		}
	}
	return true
}
