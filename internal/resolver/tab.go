package resolver

import (
	"github.com/sirupsen/logrus"

	"github.com/pjbroadbent/layouts-service/internal/model"
	"github.com/pjbroadbent/layouts-service/pkg/geometry"
)

// TabResolver hit-tests a drag position against existing tab strips.
type TabResolver struct {
	logger *logrus.Logger
}

// NewTabResolver builds a tab resolver.
func NewTabResolver(logger *logrus.Logger) *TabResolver {
	return &TabResolver{logger: logger}
}

// Resolve returns the tab group whose strip-plus-active-body region contains
// the point. Groups whose active tab is not visible are skipped, as is the
// group the dragged window already belongs to (drop-on-self is a no-op).
// When several regions overlap, the topmost group in the stacking order
// wins.
func (r *TabResolver) Resolve(desktop *model.DesktopModel, dragged *model.ManagedWindow, p geometry.Point) *model.TabGroup {
	var best *model.TabGroup
	bestRank := int(^uint(0) >> 1)
	for _, t := range desktop.TabGroups() {
		if !t.ActiveVisible() {
			continue
		}
		if dragged != nil && dragged.TabGroup() == t {
			continue
		}
		if !t.EntityRect().Contains(p) {
			continue
		}
		rank := desktop.StackRank(t.TabStrip().ID())
		if active := t.ActiveTab(); active != nil {
			if ar := desktop.StackRank(active.ID()); ar < rank {
				rank = ar
			}
		}
		if rank < bestRank {
			best = t
			bestRank = rank
		}
	}
	if best != nil {
		r.logger.WithFields(logrus.Fields{
			"tab_group": best.ID(),
			"x":         p.X,
			"y":         p.Y,
		}).Debug("Tab target resolved")
	}
	return best
}
