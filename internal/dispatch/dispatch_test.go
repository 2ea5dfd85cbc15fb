package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"incident-service/internal/domain/incident"
)

type fakeNotifier struct {
	name  string
	err   error
	calls int
}

func (f *fakeNotifier) Name() string { return f.name }

func (f *fakeNotifier) Notify(ctx context.Context, ev incident.Event) error {
	f.calls++
	return f.err
}

func TestDispatcherFanOut(t *testing.T) {
	sms := &fakeNotifier{name: "sms"}
	kafka := &fakeNotifier{name: "kafka", err: errors.New("broker unreachable")}

	d := NewDispatcher(zerolog.Nop(), sms, kafka)
	results := d.Dispatch(context.Background(), incident.Event{SourceID: "cam-1"})

	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}

	byChannel := map[string]ChannelResult{}
	for _, r := range results {
		byChannel[r.Channel] = r
	}

	if r := byChannel["sms"]; !r.Success || r.Error != "" {
		t.Errorf("sms result = %+v, want success", r)
	}
	if r := byChannel["kafka"]; r.Success || r.Error == "" {
		t.Errorf("kafka result = %+v, want recorded failure", r)
	}

	if sms.calls != 1 || kafka.calls != 1 {
		t.Errorf("calls = %d/%d, want one each", sms.calls, kafka.calls)
	}
}

func TestDispatcherNoChannels(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())
	results := d.Dispatch(context.Background(), incident.Event{})
	if len(results) != 0 {
		t.Errorf("results = %d, want 0", len(results))
	}
}
