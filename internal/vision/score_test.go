package vision

import (
	"math"
	"testing"
)

func TestScoreFeaturesNoObjects(t *testing.T) {
	// Whatever the other signals say, a frame without candidate objects
	// scores zero.
	f := Features{
		MotionRatio: 0.5,
		DebrisScore: 1.0,
		MinDistance: math.Inf(1),
	}

	s := ScoreFeatures(f, DefaultCrashThreshold)
	if s.Probability != 0 {
		t.Errorf("probability = %v, want 0", s.Probability)
	}
	if s.Class != ClassNone {
		t.Errorf("class = %v, want %v", s.Class, ClassNone)
	}
}

func TestScoreFeaturesFusion(t *testing.T) {
	tests := []struct {
		name     string
		features Features
		wantProb float64
		wantCls  Class
	}{
		{
			name: "single object, no other signals",
			features: Features{
				Objects:     []Box{{X: 0, Y: 0, W: 60, H: 40}},
				MinDistance: math.Inf(1),
			},
			wantProb: 0.1,
			wantCls:  ClassNone,
		},
		{
			name: "two touching objects",
			features: Features{
				Objects:     []Box{{X: 0, Y: 0, W: 60, H: 40}, {X: 10, Y: 0, W: 60, H: 40}},
				MinDistance: 10,
			},
			// proximity (1-10/200)/3 + object boost 0.2
			wantProb: 0.95/3 + 0.2,
			wantCls:  ClassLow,
		},
		{
			name: "everything maxed clamps to 1",
			features: Features{
				Objects:      []Box{{W: 60, H: 40}, {W: 60, H: 40}, {W: 60, H: 40}, {W: 60, H: 40}},
				MinDistance:  0,
				MotionRatio:  1,
				AnomalyScore: 1,
				DebrisScore:  1,
			},
			wantProb: 1.0,
			wantCls:  ClassCollision,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ScoreFeatures(tt.features, DefaultCrashThreshold)
			if math.Abs(s.Probability-tt.wantProb) > 1e-9 {
				t.Errorf("probability = %v, want %v", s.Probability, tt.wantProb)
			}
			if s.Class != tt.wantCls {
				t.Errorf("class = %v, want %v", s.Class, tt.wantCls)
			}
		})
	}
}

func TestScoreFeaturesMonotonic(t *testing.T) {
	base := Features{
		Objects:     []Box{{W: 60, H: 40}, {X: 100, W: 60, H: 40}},
		MinDistance: 100,
		MotionRatio: 0.02,
		DebrisScore: 0.1,
	}
	prob := func(f Features) float64 { return ScoreFeatures(f, DefaultCrashThreshold).Probability }

	for ratio := 0.0; ratio <= 0.2; ratio += 0.01 {
		f := base
		f.MotionRatio = ratio
		g := f
		g.MotionRatio = ratio + 0.01
		if prob(g) < prob(f) {
			t.Fatalf("probability decreased when motion ratio rose from %v to %v", ratio, ratio+0.01)
		}
	}

	for n := 1; n < 6; n++ {
		f := base
		f.Objects = make([]Box, n)
		g := base
		g.Objects = make([]Box, n+1)
		for i := range f.Objects {
			f.Objects[i] = Box{X: i * 100, W: 60, H: 40}
		}
		for i := range g.Objects {
			g.Objects[i] = Box{X: i * 100, W: 60, H: 40}
		}
		if prob(g) < prob(f) {
			t.Fatalf("probability decreased when object count rose from %d to %d", n, n+1)
		}
	}

	for d := 0.0; d < 1.0; d += 0.1 {
		f := base
		f.DebrisScore = d
		g := f
		g.DebrisScore = d + 0.1
		if prob(g) < prob(f) {
			t.Fatalf("probability decreased when debris score rose from %v to %v", d, d+0.1)
		}
	}
}
