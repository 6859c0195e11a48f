package database

import (
	"context"
	"runtime/debug"

	"media-pipeline/internal/logging"
)

// LifecycleListener receives video record lifecycle events.
//
// VideoDeleted runs inside the delete transaction; implementations must not
// call back into the Database from it.
type LifecycleListener interface {
	VideoCreated(ctx context.Context, v *Video)
	VideoDeleted(ctx context.Context, v *Video)
}

// Subscribe registers a listener. Listeners run in registration order.
func (d *Database) Subscribe(l LifecycleListener) {
	d.listenersMu.Lock()
	defer d.listenersMu.Unlock()
	d.listeners = append(d.listeners, l)
}

func (d *Database) snapshotListeners() []LifecycleListener {
	d.listenersMu.RLock()
	defer d.listenersMu.RUnlock()
	return append([]LifecycleListener(nil), d.listeners...)
}

func (d *Database) notifyCreated(ctx context.Context, v *Video) {
	for _, l := range d.snapshotListeners() {
		safeNotify("created", v.ID, func() { l.VideoCreated(ctx, v) })
	}
}

func (d *Database) notifyDeleted(ctx context.Context, v *Video) {
	for _, l := range d.snapshotListeners() {
		safeNotify("deleted", v.ID, func() { l.VideoDeleted(ctx, v) })
	}
}

// safeNotify runs fn, converting a panic into a log line.
func safeNotify(event string, id int64, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("lifecycle listener panicked on video %d %s: %v\n%s", id, event, r, debug.Stack())
		}
	}()
	fn()
}
