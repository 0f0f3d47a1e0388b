package server

import (
	"github.com/xpra-project/session-core/internal/endpoint"
	"github.com/xpra-project/session-core/internal/wire"
	"github.com/xpra-project/session-core/internal/window"
)

// clientWindowListener translates window.Model events into wire packets
// for one attached client, implementing window.Listener. Sharing clients
// (§4.8) each get their own listener instance registered against the
// same Model, so every attached client observes the same surface set.
type clientWindowListener struct {
	ep *endpoint.Endpoint
}

func toValueMap(m map[string]wire.Value) wire.Value {
	if m == nil {
		return map[string]wire.Value{}
	}
	return m
}

func (l *clientWindowListener) NewWindow(s window.Snapshot) {
	l.ep.Enqueue(endpoint.PriorityEcho, wire.New(wire.PacketNewWindow,
		uint64(s.ID), s.Geometry.X, s.Geometry.Y, s.Geometry.W, s.Geometry.H,
		toValueMap(s.Metadata), s.Alpha))
}

func (l *clientWindowListener) NewOverrideRedirect(s window.Snapshot) {
	l.ep.Enqueue(endpoint.PriorityEcho, wire.New(wire.PacketNewOverrideRedirect,
		uint64(s.ID), s.Geometry.X, s.Geometry.Y, s.Geometry.W, s.Geometry.H,
		toValueMap(s.Metadata), s.Alpha))
}

func (l *clientWindowListener) WindowMetadata(id window.ID, changes map[string]wire.Value) {
	l.ep.Enqueue(endpoint.PriorityEcho, wire.New(wire.PacketWindowMetadata, uint64(id), toValueMap(changes)))
}

func (l *clientWindowListener) ConfigureOverrideRedirect(id window.ID, geom window.Geometry) {
	l.ep.Enqueue(endpoint.PriorityEcho, wire.New(wire.PacketConfigureOR, uint64(id), geom.X, geom.Y, geom.W, geom.H))
}

func (l *clientWindowListener) LostWindow(id window.ID) {
	l.ep.Enqueue(endpoint.PriorityEcho, wire.New(wire.PacketLostWindow, uint64(id)))
}
