package model

import (
	"fmt"

	"github.com/pjbroadbent/layouts-service/pkg/geometry"
)

// Entity is the snap resolver's uniform participant: either a standalone
// managed window or a whole tab group, which behaves geometrically as one
// object whose body is the tab strip plus the active tab body. Exactly one of
// the two fields is set.
type Entity struct {
	Window *ManagedWindow
	Tabs   *TabGroup
}

// WindowEntity wraps a standalone window.
func WindowEntity(w *ManagedWindow) Entity { return Entity{Window: w} }

// TabGroupEntity wraps a tab group.
func TabGroupEntity(g *TabGroup) Entity { return Entity{Tabs: g} }

// Key returns a stable identity for deduplication and logging.
func (e Entity) Key() string {
	if e.Tabs != nil {
		return fmt.Sprintf("tabgroup:%d", e.Tabs.ID())
	}
	return "window:" + e.Window.ID().String()
}

// Rect returns the entity's current bounds.
func (e Entity) Rect() geometry.Rect {
	if e.Tabs != nil {
		return e.Tabs.EntityRect()
	}
	return e.Window.Rect()
}

// Contains reports whether the point lies within the entity's bounds.
func (e Entity) Contains(p geometry.Point) bool {
	return e.Rect().Contains(p)
}

// IsTabGroup reports whether the entity is a tab group.
func (e Entity) IsTabGroup() bool { return e.Tabs != nil }

// Windows lists the managed windows the entity stands for.
func (e Entity) Windows() []*ManagedWindow {
	if e.Tabs != nil {
		return e.Tabs.Tabs()
	}
	return []*ManagedWindow{e.Window}
}
