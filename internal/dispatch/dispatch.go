// Package dispatch delivers incident alerts to the configured notification
// channels. Delivery is best-effort: failures are reported per channel and
// logged by the caller, never retried here.
package dispatch

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"incident-service/internal/domain/incident"
)

// Notifier is one alert channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, ev incident.Event) error
}

// ChannelResult records the delivery outcome for one channel.
type ChannelResult struct {
	Channel string `json:"channel"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Dispatcher fans an event out to all channels concurrently.
type Dispatcher struct {
	notifiers []Notifier
	log       zerolog.Logger
}

func NewDispatcher(log zerolog.Logger, notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{notifiers: notifiers, log: log}
}

// Dispatch attempts every channel and returns per-channel results. It never
// returns an error: a failed alert does not undo a detected incident.
func (d *Dispatcher) Dispatch(ctx context.Context, ev incident.Event) []ChannelResult {
	results := make([]ChannelResult, len(d.notifiers))

	var wg sync.WaitGroup
	for i, n := range d.notifiers {
		wg.Add(1)
		go func(i int, n Notifier) {
			defer wg.Done()
			res := ChannelResult{Channel: n.Name(), Success: true}
			if err := n.Notify(ctx, ev); err != nil {
				res.Success = false
				res.Error = err.Error()
				d.log.Error().
					Err(err).
					Str("channel", n.Name()).
					Str("event_id", ev.ID.String()).
					Msg("alert delivery failed")
			}
			results[i] = res
		}(i, n)
	}
	wg.Wait()

	return results
}
