package engine

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/pjbroadbent/layouts-service/internal/model"
	"github.com/pjbroadbent/layouts-service/pkg/geometry"
	"github.com/pjbroadbent/layouts-service/pkg/models"
)

// GetSaveInfo serializes every tab group on the desktop.
func (e *Engine) GetSaveInfo() models.SaveBlob {
	e.lock()
	defer e.unlock()
	blob := models.SaveBlob{}
	for _, tg := range e.desktop.TabGroups() {
		if tg.TabCount() < 2 || tg.ActiveTab() == nil {
			continue
		}
		strip := tg.TabStrip().Rect()
		body := tg.BodyRect()
		blob = append(blob, models.TabBlob{
			Tabs: tg.TabIDs(),
			GroupInfo: models.TabGroupInfo{
				URL:    tg.URL(),
				Active: tg.ActiveTab().ID(),
				Dimensions: models.TabGroupDimensions{
					X:              int(math.Round(strip.Min().X)),
					Y:              int(math.Round(strip.Min().Y)),
					Width:          int(math.Round(body.Width())),
					TabGroupHeight: int(math.Round(strip.Height())),
					AppHeight:      int(math.Round(body.Height())),
				},
			},
		})
	}
	return blob
}

// Restore reconstructs tab groups from a save blob. For each entry the
// listed windows are located, a tab group is created at the saved
// dimensions, tabs are added in listed order and the saved tab activated.
// Missing windows are skipped; an entry with fewer than two surviving tabs
// creates nothing.
func (e *Engine) Restore(blob models.SaveBlob) error {
	e.lock()
	defer e.unlock()
	for _, item := range blob {
		var survivors []*model.ManagedWindow
		for _, id := range item.Tabs {
			w, ok := e.desktop.GetWindow(id)
			if !ok {
				e.logger.WithField("window", id.String()).Debug("Saved tab missing, skipping")
				continue
			}
			if w.TabGroup() != nil {
				e.logger.WithField("window", id.String()).Debug("Saved tab already tabbed, skipping")
				continue
			}
			survivors = append(survivors, w)
		}
		if len(survivors) < 2 {
			e.logger.WithField("survivors", len(survivors)).Debug("Too few surviving tabs, group not restored")
			continue
		}
		dims := item.GroupInfo.Dimensions
		body := geometry.NewRect(
			float64(dims.X)+float64(dims.Width)/2,
			float64(dims.Y)+float64(dims.TabGroupHeight)+float64(dims.AppHeight)/2,
			float64(dims.Width)/2,
			float64(dims.AppHeight)/2,
		)
		tg, err := e.desktop.CreateTabGroup(e.ctx, item.GroupInfo.URL, float64(dims.TabGroupHeight))
		if err != nil {
			return err
		}
		// The founding tab defines the shared body region, so it takes the
		// saved bounds before joining.
		if err := survivors[0].SetBounds(e.ctx, body); err != nil {
			return err
		}
		for _, w := range survivors {
			if err := tg.AddTab(e.ctx, w, -1); err != nil {
				return err
			}
		}
		if active, ok := e.desktop.GetWindow(item.GroupInfo.Active); ok && tg.IndexOf(active) >= 0 {
			if err := tg.SwitchTab(e.ctx, active); err != nil {
				return err
			}
		}
		e.logger.WithFields(logrus.Fields{
			"tab_group": tg.ID(),
			"tabs":      len(survivors),
		}).Info("Tab group restored")
	}
	e.updateGauges()
	return nil
}
