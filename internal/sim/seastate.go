package sim

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// SeaStateScript is a deterministic, keyframed sea state for the simulator.
//
// YAML schema (v1):
//
//	version: 1
//	duration: 10m
//	keyframes:
//	  - t: 0s
//	    height_m: 1.5
//	    period_s: 7
//	    heading_deg: 350
//	  - t: 5m
//	    height_m: 3.0
//	    period_s: 11
//	    heading_deg: 20
//
// Keyframes must use non-decreasing t values. Between keyframes, height and
// period are interpolated linearly and heading along the shortest arc.
type SeaStateScript struct {
	Version   int                `yaml:"version"`
	Duration  time.Duration      `yaml:"duration"`
	Keyframes []SeaStateKeyframe `yaml:"keyframes"`
}

type SeaStateKeyframe struct {
	T          time.Duration `yaml:"t"`
	HeightM    float64       `yaml:"height_m"`
	PeriodS    float64       `yaml:"period_s"`
	HeadingDeg float64       `yaml:"heading_deg"`
}

// SeaState is the validated, runtime representation of a script.
type SeaState struct {
	script   SeaStateScript
	duration time.Duration
}

func LoadSeaStateScript(path string) (SeaStateScript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return SeaStateScript{}, err
	}
	return ParseSeaStateYAML(b)
}

func ParseSeaStateYAML(b []byte) (SeaStateScript, error) {
	var s SeaStateScript
	if err := yaml.Unmarshal(b, &s); err != nil {
		return SeaStateScript{}, err
	}
	return s, nil
}

func NewSeaState(script SeaStateScript) (*SeaState, error) {
	if script.Version == 0 {
		script.Version = 1
	}
	if script.Version != 1 {
		return nil, fmt.Errorf("unsupported sea state version %d", script.Version)
	}
	if len(script.Keyframes) == 0 {
		return nil, fmt.Errorf("keyframes is required")
	}
	for i, kf := range script.Keyframes {
		if kf.T < 0 {
			return nil, fmt.Errorf("keyframes[%d].t must be >= 0", i)
		}
		if i > 0 && kf.T < script.Keyframes[i-1].T {
			return nil, fmt.Errorf("keyframes must be sorted by t (index %d)", i)
		}
		if kf.PeriodS <= 0 {
			return nil, fmt.Errorf("keyframes[%d].period_s must be > 0", i)
		}
		if kf.HeightM < 0 {
			return nil, fmt.Errorf("keyframes[%d].height_m must be >= 0", i)
		}
	}

	dur := script.Duration
	if dur <= 0 {
		dur = script.Keyframes[len(script.Keyframes)-1].T
	}
	return &SeaState{script: script, duration: dur}, nil
}

func (s *SeaState) Duration() time.Duration {
	if s == nil {
		return 0
	}
	return s.duration
}

// SwellAt returns the swell in effect at elapsed. With loop, elapsed wraps
// around Duration(); otherwise it is clamped to [0, Duration()].
// Sampling fields (SamplePeriod, Count) are left for the caller.
func (s *SeaState) SwellAt(elapsed time.Duration, loop bool) Swell {
	if s == nil {
		return Swell{}
	}
	if elapsed < 0 {
		elapsed = 0
	}
	if s.duration > 0 {
		if loop {
			elapsed = elapsed % s.duration
		} else if elapsed > s.duration {
			elapsed = s.duration
		}
	}

	k0, k1, alpha := selectSegment(s.script.Keyframes, elapsed)
	period := lerp(k0.PeriodS, k1.PeriodS, alpha)
	return Swell{
		HeightM:    lerp(k0.HeightM, k1.HeightM, alpha),
		Period:     time.Duration(period * float64(time.Second)),
		HeadingDeg: lerpAngleDeg(k0.HeadingDeg, k1.HeadingDeg, alpha),
	}
}

func selectSegment(kfs []SeaStateKeyframe, t time.Duration) (SeaStateKeyframe, SeaStateKeyframe, float64) {
	if len(kfs) == 1 {
		return kfs[0], kfs[0], 0
	}
	idx := sort.Search(len(kfs), func(i int) bool { return kfs[i].T > t })
	if idx <= 0 {
		return kfs[0], kfs[0], 0
	}
	if idx >= len(kfs) {
		last := kfs[len(kfs)-1]
		return last, last, 0
	}
	k0 := kfs[idx-1]
	k1 := kfs[idx]
	dt := k1.T - k0.T
	if dt <= 0 {
		return k1, k1, 0
	}
	alpha := float64(t-k0.T) / float64(dt)
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}
	return k0, k1, alpha
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// lerpAngleDeg interpolates along the shortest arc and returns [0, 360).
func lerpAngleDeg(a0, a1, t float64) float64 {
	norm := func(x float64) float64 {
		for x < 0 {
			x += 360
		}
		for x >= 360 {
			x -= 360
		}
		return x
	}
	a0 = norm(a0)
	a1 = norm(a1)
	delta := a1 - a0
	if delta > 180 {
		delta -= 360
	} else if delta < -180 {
		delta += 360
	}
	return norm(a0 + delta*t)
}
