package session

import "log/slog"

// Observer receives lifecycle events from a transport. Transports invoke it
// synchronously from their own event loop.
type Observer interface {
	NotifyClosed()
	NotifyError(err error)
}

// registryObserver closes a session in its registry on transport events.
type registryObserver struct {
	reg *Registry
	id  string
}

// Observe returns an Observer that closes id in the registry when the
// transport reports a close or an error.
func (r *Registry) Observe(id string) Observer {
	return &registryObserver{reg: r, id: id}
}

func (o *registryObserver) NotifyClosed() {
	o.reg.Close(o.id, OriginTransport)
}

func (o *registryObserver) NotifyError(err error) {
	slog.Warn("session transport error", "session_id", o.id, "error", err)
	o.reg.Close(o.id, OriginTransport)
}
