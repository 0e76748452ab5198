package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"seatsync/shared"
)

type replyOutcome struct {
	data json.RawMessage
	err  error
}

// replyWaiter is one-shot request/response correlation over the broadcast
// channel: a listener for the success frame type and one for ERROR frames,
// settled by whichever accepting signal fires first (or the timeout).
// Exactly one of success, error, or timeout wins; wait removes both
// listeners before returning, so late signals are no-ops.
type replyWaiter struct {
	result chan replyOutcome
	once   sync.Once
	remove []func()
}

// armReply registers the listeners. Callers arm before emitting the
// request so an immediate acknowledgment cannot slip past.
func (m *Manager) armReply(
	successType string,
	accept func(json.RawMessage) bool,
	acceptErr func(shared.ErrorPayload) bool,
) *replyWaiter {
	w := &replyWaiter{result: make(chan replyOutcome, 1)}
	settle := func(o replyOutcome) {
		w.once.Do(func() { w.result <- o })
	}

	removeOK := m.Subscribe(successType, func(raw json.RawMessage) {
		if accept(raw) {
			settle(replyOutcome{data: raw})
		}
	})
	removeErr := m.Subscribe(shared.FrameError, func(raw json.RawMessage) {
		var payload shared.ErrorPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return
		}
		if acceptErr(payload) {
			settle(replyOutcome{err: errors.New(payload.Message)})
		}
	})
	w.remove = []func(){removeOK, removeErr}
	return w
}

// cancel removes the listeners without waiting. Safe to call repeatedly.
func (w *replyWaiter) cancel() {
	for _, remove := range w.remove {
		remove()
	}
}

// wait blocks for the first signal and always removes the listeners.
func (w *replyWaiter) wait(ctx context.Context, timeout time.Duration) (json.RawMessage, error) {
	defer w.cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case o := <-w.result:
		return o.data, o.err
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
