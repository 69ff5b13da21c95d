// Package lifecycle is the observer interface between host integrations
// and the SDK. Hosts report application and page transitions to a Hub;
// the SDK registers a Listener with it.
package lifecycle

import "sync"

// Listener receives host lifecycle signals.
type Listener interface {
	OnForeground()
	OnBackground()
	OnScreenShown()
	OnScreenShared()
	OnScreenFavorited()
}

// Source accepts listener registrations. The returned function removes
// the registration.
type Source interface {
	Register(l Listener) (unregister func())
}

// Hub fans host signals out to registered listeners in registration
// order.
type Hub struct {
	mu        sync.RWMutex
	nextID    int
	listeners []registration
}

type registration struct {
	id       int
	listener Listener
}

func NewHub() *Hub {
	return &Hub{}
}

func (h *Hub) Register(l Listener) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.listeners = append(h.listeners, registration{id: id, listener: l})

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(id) })
	}
}

func (h *Hub) remove(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, r := range h.listeners {
		if r.id == id {
			h.listeners = append(h.listeners[:i], h.listeners[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered listeners.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

func (h *Hub) each(fn func(Listener)) {
	h.mu.RLock()
	snapshot := make([]registration, len(h.listeners))
	copy(snapshot, h.listeners)
	h.mu.RUnlock()

	for _, r := range snapshot {
		fn(r.listener)
	}
}

// Foreground reports the application coming to the foreground.
func (h *Hub) Foreground() { h.each(Listener.OnForeground) }

// Background reports the application going to the background.
func (h *Hub) Background() { h.each(Listener.OnBackground) }

// ScreenShown reports a page becoming visible.
func (h *Hub) ScreenShown() { h.each(Listener.OnScreenShown) }

// ScreenShared reports the current page being shared.
func (h *Hub) ScreenShared() { h.each(Listener.OnScreenShared) }

// ScreenFavorited reports the current page being added to favorites.
func (h *Hub) ScreenFavorited() { h.each(Listener.OnScreenFavorited) }
