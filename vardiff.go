package main

import (
	"math"
	"sync"
	"time"
)

// VarDiffConfig configures the per-client adaptive difficulty engine.
type VarDiffConfig struct {
	Enabled         bool
	TargetTime      float64 // desired seconds between shares
	RetargetTime    float64 // minimum seconds between difficulty changes
	VariancePercent float64 // +/- band around TargetTime that's left alone
	MinDiff         float64
	MaxDiff         float64
	UseProportional bool // false selects the legacy fixed-factor mode
}

func defaultVarDiffConfig() VarDiffConfig {
	return VarDiffConfig{
		Enabled:         true,
		TargetTime:      defaultVarDiffTargetTime,
		RetargetTime:    defaultVarDiffRetargetTime,
		VariancePercent: defaultVarDiffVariancePct,
		MinDiff:         0.001,
		MaxDiff:         1_000_000,
		UseProportional: true,
	}
}

// varDiffState tracks one client's recent share timing for the gating and
// compute steps below. timestamps is a small ring of share-arrival times.
type varDiffState struct {
	mu            sync.Mutex
	timestamps    []time.Time
	lastRetarget  time.Time
	currentDiff   float64
	sharesAtDiff  int
}

func newVarDiffState(initialDiff float64) *varDiffState {
	return &varDiffState{
		currentDiff:  initialDiff,
		lastRetarget: time.Now(),
	}
}

const varDiffSampleCap = 32

// recordShare appends a share-arrival timestamp, dropping the oldest
// sample once the ring fills.
func (s *varDiffState) recordShare(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timestamps = append(s.timestamps, now)
	if len(s.timestamps) > varDiffSampleCap {
		s.timestamps = s.timestamps[len(s.timestamps)-varDiffSampleCap:]
	}
	s.sharesAtDiff++
}

func (s *varDiffState) diff() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentDiff
}

// maybeRetarget applies the gated VarDiff evaluation and returns the new
// difficulty and whether it actually changed (post ignore-threshold).
// Gating: needs at least defaultVarDiffMinSamples timestamps and at least
// cfg.RetargetTime seconds since the last change.
func (s *varDiffState) maybeRetarget(cfg VarDiffConfig, now time.Time) (float64, bool) {
	if !cfg.Enabled {
		return s.diff(), false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.timestamps) < defaultVarDiffMinSamples {
		return s.currentDiff, false
	}
	if now.Sub(s.lastRetarget).Seconds() < cfg.RetargetTime {
		return s.currentDiff, false
	}

	// Average over only the most recent defaultVarDiffMinSamples arrivals:
	// a client that's been connected a while and accumulated the full
	// 32-sample ring shouldn't have its retarget decision smoothed by
	// share timing from many minutes ago.
	window := s.timestamps
	if len(window) > defaultVarDiffMinSamples {
		window = window[len(window)-defaultVarDiffMinSamples:]
	}
	span := now.Sub(window[0]).Seconds()
	if span <= 0 {
		return s.currentDiff, false
	}
	avgTime := span / float64(len(window)-1)
	if avgTime <= 0 {
		return s.currentDiff, false
	}

	lowBound := cfg.TargetTime * (1 - cfg.VariancePercent/100)
	highBound := cfg.TargetTime * (1 + cfg.VariancePercent/100)
	if avgTime >= lowBound && avgTime <= highBound {
		// Share timing is within the configured variance band around
		// TargetTime: leave the difficulty alone in either mode.
		return s.currentDiff, false
	}

	var newDiff float64
	if cfg.UseProportional {
		scale := cfg.TargetTime / avgTime
		if scale < varDiffMinScale {
			scale = varDiffMinScale
		}
		if scale > varDiffMaxScale {
			scale = varDiffMaxScale
		}
		newDiff = s.currentDiff * scale
	} else {
		// Fixed-factor legacy mode: halve or double depending on which side
		// of the variance band the observed share interval falls.
		switch {
		case avgTime < lowBound:
			newDiff = s.currentDiff * 2
		case avgTime > highBound:
			newDiff = s.currentDiff / 2
		default:
			newDiff = s.currentDiff
		}
	}

	newDiff = postProcessDiff(newDiff, cfg)

	if math.Abs(newDiff-s.currentDiff) < s.currentDiff*varDiffIgnoreChangeFrac {
		return s.currentDiff, false
	}

	s.currentDiff = newDiff
	s.lastRetarget = now
	s.timestamps = s.timestamps[:0]
	s.sharesAtDiff = 0
	return newDiff, true
}

// postProcessDiff clamps to [MinDiff, MaxDiff] and rounds to stable,
// human-legible values: 6 significant figures at or above 1, 6 decimal
// places below 1 (sig figs alone would round a sub-1 difficulty like
// 0.0000012 down to a single figure).
func postProcessDiff(diff float64, cfg VarDiffConfig) float64 {
	if cfg.MinDiff > 0 && diff < cfg.MinDiff {
		diff = cfg.MinDiff
	}
	if cfg.MaxDiff > 0 && diff > cfg.MaxDiff {
		diff = cfg.MaxDiff
	}
	if diff < 1 {
		return roundDecimalPlaces(diff, 6)
	}
	return roundSigFigs(diff, 6)
}

func roundSigFigs(v float64, sig int) float64 {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	mag := math.Ceil(math.Log10(math.Abs(v)))
	power := float64(sig) - mag
	shift := math.Pow(10, power)
	return math.Round(v*shift) / shift
}

func roundDecimalPlaces(v float64, places int) float64 {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	shift := math.Pow(10, float64(places))
	return math.Round(v*shift) / shift
}

// initialDifficulty picks a client's starting difficulty: the configured
// per-port difficulty, clamped to [MinDiff, MaxDiff], or the geometric
// mean of the bounds if none was configured.
func initialDifficulty(cfg VarDiffConfig, portDiff float64) float64 {
	if portDiff > 0 {
		return postProcessDiff(portDiff, cfg)
	}
	min, max := cfg.MinDiff, cfg.MaxDiff
	if min <= 0 {
		min = 0.001
	}
	if max <= 0 {
		max = 1_000_000
	}
	return postProcessDiff(math.Sqrt(min*max), cfg)
}

// estimateHashrate is a diagnostic-only figure, not used for any
// difficulty decision: hashes/sec implied by a client submitting
// shareCount shares at diff over timeSpan seconds.
func estimateHashrate(diff float64, shareCount int, timeSpan float64) float64 {
	if timeSpan <= 0 {
		return 0
	}
	return (diff * float64(shareCount) * math.Pow(2, 32)) / timeSpan
}
