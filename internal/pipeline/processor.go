// Package pipeline implements the two-stage incident detection pipeline:
// per-frame heuristic scoring, the escalation gate, and the per-source
// cooldown state machine that turns frame-level signals into incident events.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"incident-service/internal/analyzer"
	"incident-service/internal/domain/incident"
	"incident-service/internal/locator"
	"incident-service/internal/metrics"
	"incident-service/internal/vision"
)

// ErrOutOfOrder reports a caller contract violation: frames of one source
// must arrive in non-decreasing index order.
var ErrOutOfOrder = errors.New("frame index out of order")

const (
	sourceShards  = 32
	frameRingSize = 5
)

// Sink receives confirmed incident events. Implementations must return
// quickly and must not propagate collaborator failures: whatever happens
// downstream, the incident counts as detected.
type Sink interface {
	HandleIncident(ctx context.Context, ev incident.Event, frameJPEG []byte) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, ev incident.Event, frameJPEG []byte) error

func (f SinkFunc) HandleIncident(ctx context.Context, ev incident.Event, frameJPEG []byte) error {
	return f(ctx, ev, frameJPEG)
}

// Config carries the pipeline tuning. Zero values fall back to the shipped
// defaults.
type Config struct {
	Stride            int64
	CrashThreshold    float64
	EscalateThreshold float64
	ConfirmThreshold  float64
	Cooldown          time.Duration
	FPS               float64
	AnalyzerTimeout   time.Duration
	LocatorMinConf    float64
}

func (c *Config) applyDefaults() {
	if c.Stride <= 0 {
		c.Stride = 30
	}
	if c.CrashThreshold == 0 {
		c.CrashThreshold = vision.DefaultCrashThreshold
	}
	if c.EscalateThreshold == 0 {
		c.EscalateThreshold = 0.6
	}
	if c.ConfirmThreshold == 0 {
		c.ConfirmThreshold = 0.4
	}
	if c.Cooldown == 0 {
		c.Cooldown = 10 * time.Second
	}
	if c.FPS == 0 {
		c.FPS = 30
	}
	if c.AnalyzerTimeout == 0 {
		c.AnalyzerTimeout = 15 * time.Second
	}
	if c.LocatorMinConf == 0 {
		c.LocatorMinConf = 0.5
	}
}

// Result is the verdict for one processed frame.
type Result struct {
	SourceID    string             `json:"source_id"`
	FrameIndex  int64              `json:"frame_index"`
	Score       vision.CrashScore  `json:"score"`
	MotionRatio float64            `json:"motion_ratio"`
	ObjectCount int                `json:"object_count"`
	Decision    Decision           `json:"decision"`
	Suppressed  bool               `json:"suppressed"`
	Judgment    *incident.Judgment `json:"judgment,omitempty"`
	Event       *incident.Event    `json:"event,omitempty"`
}

// sourceState is the only cross-frame mutable state in the pipeline. One
// instance per source, guarded by its own mutex; the analyzer call is never
// made while the mutex is held.
type sourceState struct {
	mu            sync.Mutex
	lastIndex     int64
	seenFrame     bool
	frames        []*vision.Frame
	lastEmission  time.Time
	hasEmission   bool
	lastSeen      time.Time
}

func (s *sourceState) push(f *vision.Frame) {
	s.frames = append(s.frames, f)
	if len(s.frames) > frameRingSize {
		s.frames = s.frames[1:]
	}
}

func (s *sourceState) previous() *vision.Frame {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

// suppressing reports whether the cooldown window is still open at now.
func (s *sourceState) suppressing(now time.Time, cooldown time.Duration) bool {
	return s.hasEmission && now.Sub(s.lastEmission) < cooldown
}

type shard struct {
	mu      sync.Mutex
	sources map[string]*sourceState
}

// Processor runs the detection pipeline. Frame-level work is stateless and
// safe to run concurrently across sources; the per-source state is sharded so
// unrelated cameras never contend on one lock.
type Processor struct {
	cfg      Config
	gate     Gate
	locator  locator.Locator
	analyzer analyzer.Analyzer
	sink     Sink
	log      zerolog.Logger
	metrics  *metrics.Metrics

	now func() time.Time

	shards [sourceShards]shard
}

func NewProcessor(cfg Config, loc locator.Locator, an analyzer.Analyzer, sink Sink, log zerolog.Logger, m *metrics.Metrics) *Processor {
	cfg.applyDefaults()
	if loc == nil {
		loc = locator.Disabled{}
	}
	if an == nil {
		an = analyzer.Disabled{}
	}
	p := &Processor{
		cfg:      cfg,
		gate:     Gate{Stride: cfg.Stride, EscalateThreshold: cfg.EscalateThreshold},
		locator:  loc,
		analyzer: an,
		sink:     sink,
		log:      log,
		metrics:  m,
		now:      time.Now,
	}
	for i := range p.shards {
		p.shards[i].sources = make(map[string]*sourceState)
	}
	return p
}

func (p *Processor) shardFor(sourceID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(sourceID))
	return &p.shards[h.Sum32()%sourceShards]
}

func (p *Processor) source(sourceID string) *sourceState {
	sh := p.shardFor(sourceID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	st, ok := sh.sources[sourceID]
	if !ok {
		st = &sourceState{}
		sh.sources[sourceID] = st
		p.metrics.ActiveSources.Add(1)
	}
	return st
}

// ProcessFrame runs one frame through the pipeline. frameJPEG is the encoded
// form forwarded to the locator, the analyzer and the sink; frame is the
// decoded pixel grid. Frames of one source must arrive in non-decreasing
// index order.
func (p *Processor) ProcessFrame(ctx context.Context, sourceID string, frame *vision.Frame, frameJPEG []byte, frameIndex int64, sceneContext string) (Result, error) {
	res := Result{SourceID: sourceID, FrameIndex: frameIndex}

	st := p.source(sourceID)
	now := p.now()

	st.mu.Lock()
	if st.seenFrame && frameIndex < st.lastIndex {
		st.mu.Unlock()
		return res, fmt.Errorf("%w: got %d after %d for source %s", ErrOutOfOrder, frameIndex, st.lastIndex, sourceID)
	}
	prev := st.previous()
	st.push(frame)
	st.lastIndex = frameIndex
	st.seenFrame = true
	st.lastSeen = now
	cooldownOpen := st.suppressing(now, p.cfg.Cooldown)
	st.mu.Unlock()

	p.metrics.FramesProcessed.Add(1)

	features := vision.Extract(frame, prev)
	res.Score = vision.ScoreFeatures(features, p.cfg.CrashThreshold)
	res.MotionRatio = features.MotionRatio
	res.ObjectCount = features.ObjectCount()

	if frameIndex%p.cfg.Stride != 0 {
		res.Decision = DecisionSkip
		p.metrics.FramesSkipped.Add(1)
		return res, nil
	}

	// During an open cooldown nothing can be emitted, so the expensive
	// capability calls are skipped outright.
	if cooldownOpen {
		res.Decision = DecisionSkip
		res.Suppressed = true
		return res, nil
	}

	detections := p.detect(ctx, sourceID, frameJPEG)
	res.Decision = p.gate.Decide(res.Score, frameIndex, detections)
	if res.Decision != DecisionEscalate {
		return res, nil
	}

	p.metrics.Escalations.Add(1)
	judgment := p.analyze(ctx, sourceID, frameJPEG, sceneContext)
	res.Judgment = &judgment

	if !judgment.HasIncident || judgment.Confidence <= p.cfg.ConfirmThreshold {
		return res, nil
	}

	ev, emitted := p.tryEmit(sourceID, frameIndex, judgment)
	if !emitted {
		res.Suppressed = true
		p.metrics.Suppressed.Add(1)
		return res, nil
	}

	res.Event = &ev
	p.metrics.IncidentsEmitted.Add(1)
	p.log.Info().
		Str("source_id", sourceID).
		Int64("frame_index", frameIndex).
		Str("event_id", ev.ID.String()).
		Str("type", string(ev.Type)).
		Str("severity", string(ev.Severity)).
		Float64("confidence", ev.Confidence).
		Msg("incident confirmed")

	if p.sink != nil {
		if err := p.sink.HandleIncident(ctx, ev, frameJPEG); err != nil {
			p.log.Error().
				Err(err).
				Str("event_id", ev.ID.String()).
				Msg("incident sink failed")
		}
	}

	return res, nil
}

func (p *Processor) detect(ctx context.Context, sourceID string, frameJPEG []byte) []incident.Detection {
	detections, err := p.locator.Detect(ctx, frameJPEG, p.cfg.LocatorMinConf)
	if err != nil {
		p.metrics.LocatorFailures.Add(1)
		p.log.Warn().Err(err).Str("source_id", sourceID).Msg("locator unavailable, using heuristics only")
		return nil
	}
	return detections
}

func (p *Processor) analyze(ctx context.Context, sourceID string, frameJPEG []byte, sceneContext string) incident.Judgment {
	actx, cancel := context.WithTimeout(ctx, p.cfg.AnalyzerTimeout)
	defer cancel()

	judgment, err := p.analyzer.Analyze(actx, frameJPEG, sceneContext)
	if err != nil {
		p.metrics.AnalyzerFailures.Add(1)
		p.log.Warn().Err(err).Str("source_id", sourceID).Msg("semantic analysis failed, defaulting to no incident")
		return analyzer.DefaultJudgment()
	}
	return judgment
}

// tryEmit performs the idle->suppressing transition. The cooldown is
// re-checked under the source lock: the analyzer call happened without the
// lock, so a concurrent confirmation may have gotten there first.
func (p *Processor) tryEmit(sourceID string, frameIndex int64, j incident.Judgment) (incident.Event, bool) {
	st := p.source(sourceID)
	now := p.now()

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.suppressing(now, p.cfg.Cooldown) {
		return incident.Event{}, false
	}
	st.lastEmission = now
	st.hasEmission = true

	frameTime := float64(frameIndex) / p.cfg.FPS
	return incident.NewEvent(sourceID, frameIndex, frameTime, j, now), true
}

// RemoveSource drops all pipeline state for a source. Safe to call at any
// time; an in-flight analysis for the source finishes on its own.
func (p *Processor) RemoveSource(sourceID string) bool {
	sh := p.shardFor(sourceID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.sources[sourceID]; !ok {
		return false
	}
	delete(sh.sources, sourceID)
	p.metrics.ActiveSources.Add(-1)
	return true
}

// SweepIdle evicts sources not seen within ttl, keeping the state map from
// growing without bound as cameras churn. Returns the number evicted.
func (p *Processor) SweepIdle(ttl time.Duration) int {
	cutoff := p.now().Add(-ttl)
	evicted := 0
	for i := range p.shards {
		sh := &p.shards[i]
		sh.mu.Lock()
		for id, st := range sh.sources {
			st.mu.Lock()
			idle := st.lastSeen.Before(cutoff)
			st.mu.Unlock()
			if idle {
				delete(sh.sources, id)
				evicted++
			}
		}
		sh.mu.Unlock()
	}
	if evicted > 0 {
		p.metrics.ActiveSources.Add(int64(-evicted))
		p.log.Info().Int("evicted", evicted).Msg("evicted idle sources")
	}
	return evicted
}

// RunSweeper periodically evicts idle sources until ctx is cancelled.
func (p *Processor) RunSweeper(ctx context.Context, ttl time.Duration) {
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.SweepIdle(ttl)
		}
	}
}
