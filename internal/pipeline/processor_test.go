package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"incident-service/internal/analyzer"
	"incident-service/internal/domain/incident"
	"incident-service/internal/metrics"
	"incident-service/internal/vision"
)

type stubLocator struct {
	detections []incident.Detection
	err        error
}

func (s *stubLocator) Detect(ctx context.Context, frameJPEG []byte, minConfidence float64) ([]incident.Detection, error) {
	return s.detections, s.err
}

type stubAnalyzer struct {
	judgment incident.Judgment
	err      error
	calls    int
}

func (s *stubAnalyzer) Analyze(ctx context.Context, frameJPEG []byte, sceneContext string) (incident.Judgment, error) {
	s.calls++
	return s.judgment, s.err
}

// blockingAnalyzer parks every Analyze call until release is closed, so a
// test can hold several confirmations in flight for one source at once.
type blockingAnalyzer struct {
	judgment incident.Judgment
	entered  chan struct{}
	release  chan struct{}
}

func (b *blockingAnalyzer) Analyze(ctx context.Context, frameJPEG []byte, sceneContext string) (incident.Judgment, error) {
	b.entered <- struct{}{}
	<-b.release
	return b.judgment, nil
}

func confirmingJudgment() incident.Judgment {
	return incident.Judgment{
		HasIncident:  true,
		IncidentType: incident.TypeCollision,
		Severity:     incident.SeverityHigh,
		Description:  "two vehicles collided",
		Confidence:   0.9,
		Vehicles:     2,
	}
}

// fireDetection forces the gate to escalate every eligible frame regardless of
// the heuristic score.
func fireDetection() []incident.Detection {
	return []incident.Detection{{Category: incident.CategoryIndicator, Label: "fire", Confidence: 0.8}}
}

type testHarness struct {
	processor *Processor
	clock     time.Time

	mu     sync.Mutex
	events []incident.Event
}

func newHarness(t *testing.T, loc *stubLocator, an analyzer.Analyzer) *testHarness {
	t.Helper()
	h := &testHarness{clock: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	sink := SinkFunc(func(ctx context.Context, ev incident.Event, frameJPEG []byte) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.events = append(h.events, ev)
		return nil
	})

	h.processor = NewProcessor(Config{
		Stride:            30,
		EscalateThreshold: 0.6,
		ConfirmThreshold:  0.4,
		Cooldown:          10 * time.Second,
	}, loc, an, sink, zerolog.Nop(), metrics.New())
	h.processor.now = func() time.Time { return h.clock }

	return h
}

func (h *testHarness) advance(d time.Duration) {
	h.clock = h.clock.Add(d)
}

func (h *testHarness) process(t *testing.T, sourceID string, frameIndex int64) Result {
	t.Helper()
	res, err := h.processor.ProcessFrame(context.Background(), sourceID, &vision.Frame{}, nil, frameIndex, "")
	require.NoError(t, err)
	return res
}

func TestProcessorCooldown(t *testing.T) {
	an := &stubAnalyzer{judgment: confirmingJudgment()}
	h := newHarness(t, &stubLocator{detections: fireDetection()}, an)

	// Confirming signals at t=0s, 3s, 7s, 12s with a 10 second cooldown:
	// only the first and the last may emit.
	res := h.process(t, "cam-1", 0)
	require.NotNil(t, res.Event)

	h.advance(3 * time.Second)
	res = h.process(t, "cam-1", 90)
	assert.Nil(t, res.Event)
	assert.True(t, res.Suppressed)

	h.advance(4 * time.Second)
	res = h.process(t, "cam-1", 210)
	assert.Nil(t, res.Event)
	assert.True(t, res.Suppressed)

	h.advance(5 * time.Second)
	res = h.process(t, "cam-1", 360)
	require.NotNil(t, res.Event)

	require.Len(t, h.events, 2)
	assert.Equal(t, int64(0), h.events[0].FrameIndex)
	assert.Equal(t, int64(360), h.events[1].FrameIndex)

	// Suppressed frames never reach the analyzer.
	assert.Equal(t, 2, an.calls)
}

func TestProcessorConcurrentConfirmationsEmitOnce(t *testing.T) {
	an := &blockingAnalyzer{
		judgment: confirmingJudgment(),
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	h := newHarness(t, &stubLocator{detections: fireDetection()}, an)

	// Two frames of the same source confirm while both analyzer calls are in
	// flight. The cooldown is only re-checked at emission time, so exactly one
	// may win the idle->suppressing transition.
	results := make([]Result, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := h.processor.ProcessFrame(context.Background(), "cam-1", &vision.Frame{}, nil, 30, "")
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}

	// Both calls are parked inside the analyzer before either can emit.
	<-an.entered
	<-an.entered
	close(an.release)
	wg.Wait()

	emitted := 0
	for _, res := range results {
		if res.Event != nil {
			emitted++
		} else {
			assert.True(t, res.Suppressed)
		}
	}
	assert.Equal(t, 1, emitted)
	assert.Len(t, h.events, 1)
}

func TestProcessorIndependentSources(t *testing.T) {
	h := newHarness(t, &stubLocator{detections: fireDetection()}, &stubAnalyzer{judgment: confirmingJudgment()})

	res := h.process(t, "cam-1", 0)
	require.NotNil(t, res.Event)

	// cam-1 is now suppressing, cam-2 has its own window.
	h.advance(2 * time.Second)
	res = h.process(t, "cam-2", 0)
	require.NotNil(t, res.Event)

	h.advance(1 * time.Second)
	res = h.process(t, "cam-1", 90)
	assert.True(t, res.Suppressed)

	require.Len(t, h.events, 2)
	assert.Equal(t, "cam-1", h.events[0].SourceID)
	assert.Equal(t, "cam-2", h.events[1].SourceID)
}

func TestProcessorOutOfOrderFrames(t *testing.T) {
	h := newHarness(t, &stubLocator{}, &stubAnalyzer{})

	h.process(t, "cam-1", 30)

	_, err := h.processor.ProcessFrame(context.Background(), "cam-1", &vision.Frame{}, nil, 10, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutOfOrder)

	// Other sources are unaffected by the violation.
	h.process(t, "cam-2", 0)
}

func TestProcessorStrideSkip(t *testing.T) {
	an := &stubAnalyzer{judgment: confirmingJudgment()}
	h := newHarness(t, &stubLocator{detections: fireDetection()}, an)

	res := h.process(t, "cam-1", 5)
	assert.Equal(t, DecisionSkip, res.Decision)
	assert.Nil(t, res.Event)
	assert.Zero(t, an.calls)
}

func TestProcessorAnalyzerFailure(t *testing.T) {
	an := &stubAnalyzer{err: errors.New("model endpoint down")}
	h := newHarness(t, &stubLocator{detections: fireDetection()}, an)

	res := h.process(t, "cam-1", 0)
	assert.Equal(t, DecisionEscalate, res.Decision)
	assert.Nil(t, res.Event)
	require.NotNil(t, res.Judgment)
	assert.False(t, res.Judgment.HasIncident)
	assert.Zero(t, res.Judgment.Confidence)
	assert.Empty(t, h.events)
}

func TestProcessorLocatorFailureDegrades(t *testing.T) {
	h := newHarness(t, &stubLocator{err: errors.New("predict service down")}, &stubAnalyzer{judgment: confirmingJudgment()})

	// With the locator failing and an all-zero heuristic score, the frame is
	// accepted on heuristics and nothing escalates.
	res := h.process(t, "cam-1", 0)
	assert.Equal(t, DecisionAcceptHeuristic, res.Decision)
	assert.Nil(t, res.Event)
}

func TestProcessorLowConfidenceNotEmitted(t *testing.T) {
	j := confirmingJudgment()
	j.Confidence = 0.3
	h := newHarness(t, &stubLocator{detections: fireDetection()}, &stubAnalyzer{judgment: j})

	res := h.process(t, "cam-1", 0)
	assert.Equal(t, DecisionEscalate, res.Decision)
	assert.Nil(t, res.Event)
	assert.Empty(t, h.events)
}

func TestProcessorEventFields(t *testing.T) {
	h := newHarness(t, &stubLocator{detections: fireDetection()}, &stubAnalyzer{judgment: confirmingJudgment()})

	res := h.process(t, "cam-7", 90)
	require.NotNil(t, res.Event)

	ev := *res.Event
	assert.Equal(t, "cam-7", ev.SourceID)
	assert.Equal(t, incident.TypeCollision, ev.Type)
	assert.Equal(t, incident.SeverityHigh, ev.Severity)
	assert.Equal(t, 0.9, ev.Confidence)
	assert.Equal(t, int64(90), ev.FrameIndex)
	assert.Equal(t, 3.0, ev.FrameTime) // 90 frames at the default 30 fps
	assert.Equal(t, h.clock, ev.CreatedAt)
}

func TestProcessorRemoveSource(t *testing.T) {
	h := newHarness(t, &stubLocator{}, &stubAnalyzer{})

	h.process(t, "cam-1", 0)
	assert.True(t, h.processor.RemoveSource("cam-1"))
	assert.False(t, h.processor.RemoveSource("cam-1"))
	assert.False(t, h.processor.RemoveSource("never-seen"))

	// A removed source starts over: an older frame index is fine again.
	h.process(t, "cam-1", 0)
}

func TestProcessorSweepIdle(t *testing.T) {
	h := newHarness(t, &stubLocator{}, &stubAnalyzer{})

	h.process(t, "cam-1", 0)
	h.advance(5 * time.Minute)
	h.process(t, "cam-2", 0)

	evicted := h.processor.SweepIdle(15 * time.Minute)
	assert.Zero(t, evicted)

	h.advance(12 * time.Minute)
	evicted = h.processor.SweepIdle(15 * time.Minute)
	assert.Equal(t, 1, evicted)

	assert.False(t, h.processor.RemoveSource("cam-1"))
	assert.True(t, h.processor.RemoveSource("cam-2"))
}
