package engine

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/pjbroadbent/layouts-service/internal/model"
	"github.com/pjbroadbent/layouts-service/internal/resolver"
	"github.com/pjbroadbent/layouts-service/internal/runtime"
	"github.com/pjbroadbent/layouts-service/pkg/geometry"
	"github.com/pjbroadbent/layouts-service/pkg/models"
)

// Preview is the external drag-preview collaborator: it renders snap and tab
// markers during a drag. The engine only commands show/hide/recolor; it does
// not own the marker windows' content.
type Preview interface {
	ShowSnap(ctx context.Context, moving *model.SnapGroup, target *resolver.SnapTarget)
	ShowTab(ctx context.Context, target *model.TabGroup)
	Hide(ctx context.Context)
}

// PreviewPool renders previews through pre-allocated runtime windows: a free
// list plus an active list. Surfaces are created up front and acquired per
// member of the moving group on show; hide returns every surface to the free
// list. Surfaces are never destroyed while the process runs, which keeps
// window-creation latency out of the first frame of a drag.
type PreviewPool struct {
	logger *logrus.Logger
	rt     runtime.Runtime
	url    string

	free   []runtime.WindowHandle
	active []runtime.WindowHandle
}

// NewPreviewPool pre-allocates size (minimum 3) hidden preview surfaces.
func NewPreviewPool(ctx context.Context, rt runtime.Runtime, size int, url string, logger *logrus.Logger) (*PreviewPool, error) {
	if size < 3 {
		size = 3
	}
	p := &PreviewPool{logger: logger, rt: rt, url: url}
	for i := 0; i < size; i++ {
		h, err := p.create(ctx)
		if err != nil {
			return nil, err
		}
		p.free = append(p.free, h)
	}
	return p, nil
}

// ShowSnap places one surface over each member window's post-snap position
// and recolors them by target validity.
func (p *PreviewPool) ShowSnap(ctx context.Context, moving *model.SnapGroup, target *resolver.SnapTarget) {
	p.Hide(ctx)
	for _, w := range moving.Windows() {
		if !w.State().Normal() {
			continue
		}
		rect := w.Rect().Translate(target.SnapOffset)
		if target.HalfSize != nil && w == target.ActiveWindow {
			rect.Half = *target.HalfSize
		}
		p.place(ctx, rect, target.Valid)
	}
}

// ShowTab highlights the hovered tab group's body region.
func (p *PreviewPool) ShowTab(ctx context.Context, target *model.TabGroup) {
	p.Hide(ctx)
	p.place(ctx, target.BodyRect(), true)
}

// Hide returns every active surface to the free list.
func (p *PreviewPool) Hide(ctx context.Context) {
	for _, h := range p.active {
		if err := h.Hide(ctx); err != nil {
			p.logger.WithError(err).Debug("Hiding preview surface failed")
		}
	}
	p.free = append(p.free, p.active...)
	p.active = nil
}

func (p *PreviewPool) place(ctx context.Context, rect geometry.Rect, valid bool) {
	h, err := p.acquire(ctx)
	if err != nil {
		p.logger.WithError(err).Warn("Preview surface unavailable")
		return
	}
	p.active = append(p.active, h)
	if err := h.SetBounds(ctx, rect); err != nil {
		p.logger.WithError(err).Debug("Positioning preview surface failed")
		return
	}
	if err := h.SendMessage(ctx, models.MsgPreviewState, map[string]interface{}{"valid": valid}); err != nil {
		p.logger.WithError(err).Debug("Recoloring preview surface failed")
	}
	if err := h.Show(ctx); err != nil {
		p.logger.WithError(err).Debug("Showing preview surface failed")
	}
}

func (p *PreviewPool) acquire(ctx context.Context) (runtime.WindowHandle, error) {
	if n := len(p.free); n > 0 {
		h := p.free[n-1]
		p.free = p.free[:n-1]
		return h, nil
	}
	return p.create(ctx)
}

func (p *PreviewPool) create(ctx context.Context) (runtime.WindowHandle, error) {
	return p.rt.CreateWindow(ctx, runtime.WindowOptions{
		Frame:   false,
		Hidden:  true,
		State:   models.StateNormal,
		Opacity: 0.6,
		URL:     p.url,
	})
}

// nopPreview is used when no preview collaborator is wired.
type nopPreview struct{}

func (nopPreview) ShowSnap(context.Context, *model.SnapGroup, *resolver.SnapTarget) {}
func (nopPreview) ShowTab(context.Context, *model.TabGroup)                         {}
func (nopPreview) Hide(context.Context)                                             {}
