package main

import (
	"testing"
	"time"
)

func TestMaybeRetargetGatedBySampleCount(t *testing.T) {
	cfg := defaultVarDiffConfig()
	cfg.RetargetTime = 0
	s := newVarDiffState(10)
	s.lastRetarget = time.Now().Add(-time.Hour)
	now := time.Now()
	for i := 0; i < defaultVarDiffMinSamples-1; i++ {
		s.recordShare(now.Add(time.Duration(i) * time.Second))
	}
	if _, changed := s.maybeRetarget(cfg, now); changed {
		t.Fatal("must not retarget with fewer than the minimum sample count")
	}
}

func TestMaybeRetargetGatedByRetargetTime(t *testing.T) {
	cfg := defaultVarDiffConfig()
	cfg.RetargetTime = 1000
	s := newVarDiffState(10)
	now := time.Now()
	s.lastRetarget = now
	for i := 0; i < defaultVarDiffMinSamples+5; i++ {
		s.recordShare(now.Add(time.Duration(i) * time.Second))
	}
	if _, changed := s.maybeRetarget(cfg, now.Add(time.Second)); changed {
		t.Fatal("must not retarget before RetargetTime has elapsed")
	}
}

func TestMaybeRetargetProportionalIncreasesDiffOnFastShares(t *testing.T) {
	cfg := defaultVarDiffConfig()
	cfg.RetargetTime = 0
	cfg.TargetTime = 15
	s := newVarDiffState(10)
	now := time.Now()
	s.lastRetarget = now.Add(-time.Hour)
	// Shares arriving every 1s, far faster than the 15s target: expect diff
	// to scale up toward the 4x clamp.
	for i := 0; i <= defaultVarDiffMinSamples; i++ {
		s.recordShare(now.Add(time.Duration(i) * time.Second))
	}
	newDiff, changed := s.maybeRetarget(cfg, now.Add(time.Duration(defaultVarDiffMinSamples)*time.Second))
	if !changed {
		t.Fatal("expected a retarget")
	}
	if newDiff <= 10 {
		t.Fatalf("expected difficulty to increase, got %v", newDiff)
	}
}

func TestMaybeRetargetClampsToScaleBounds(t *testing.T) {
	cfg := defaultVarDiffConfig()
	cfg.RetargetTime = 0
	cfg.TargetTime = 15
	cfg.MaxDiff = 1_000_000_000
	s := newVarDiffState(1)
	now := time.Now()
	s.lastRetarget = now.Add(-time.Hour)
	// Shares arriving every 0.01s: scale would far exceed varDiffMaxScale
	// without clamping.
	for i := 0; i <= defaultVarDiffMinSamples; i++ {
		s.recordShare(now.Add(time.Duration(i) * 10 * time.Millisecond))
	}
	newDiff, changed := s.maybeRetarget(cfg, now.Add(time.Duration(defaultVarDiffMinSamples)*10*time.Millisecond))
	if !changed {
		t.Fatal("expected a retarget")
	}
	if newDiff > 1*varDiffMaxScale {
		t.Fatalf("difficulty change exceeded the scale clamp: %v", newDiff)
	}
}

func TestMaybeRetargetIgnoresSmallChange(t *testing.T) {
	cfg := defaultVarDiffConfig()
	cfg.RetargetTime = 0
	cfg.TargetTime = 15
	s := newVarDiffState(10)
	now := time.Now()
	s.lastRetarget = now.Add(-time.Hour)
	// Shares arriving almost exactly at TargetTime: the computed scale is
	// near 1.0 and the change should be suppressed by the ignore threshold.
	for i := 0; i <= defaultVarDiffMinSamples; i++ {
		s.recordShare(now.Add(time.Duration(i) * 15 * time.Second))
	}
	_, changed := s.maybeRetarget(cfg, now.Add(time.Duration(defaultVarDiffMinSamples)*15*time.Second))
	if changed {
		t.Fatal("near-target share timing should not trigger a retarget")
	}
}

func TestMaybeRetargetProportionalRespectsVarianceBand(t *testing.T) {
	cfg := defaultVarDiffConfig()
	cfg.RetargetTime = 0
	cfg.TargetTime = 15
	cfg.VariancePercent = 30 // band is [10.5s, 19.5s]
	s := newVarDiffState(10)
	now := time.Now()
	s.lastRetarget = now.Add(-time.Hour)
	// Shares arriving every 18s: inside the variance band but far enough
	// from TargetTime that the raw scale factor alone would clear the
	// ignore-small-change threshold, so only the band gate can suppress it.
	for i := 0; i <= defaultVarDiffMinSamples; i++ {
		s.recordShare(now.Add(time.Duration(i) * 18 * time.Second))
	}
	_, changed := s.maybeRetarget(cfg, now.Add(time.Duration(defaultVarDiffMinSamples)*18*time.Second))
	if changed {
		t.Fatal("share timing inside the variance band must not retarget in proportional mode")
	}
}

func TestPostProcessDiffClampsToBounds(t *testing.T) {
	cfg := VarDiffConfig{MinDiff: 1, MaxDiff: 100}
	if got := postProcessDiff(0.1, cfg); got != 1 {
		t.Fatalf("expected clamp to MinDiff, got %v", got)
	}
	if got := postProcessDiff(1000, cfg); got != 100 {
		t.Fatalf("expected clamp to MaxDiff, got %v", got)
	}
}

func TestPostProcessDiffRoundsSubOneToDecimalPlaces(t *testing.T) {
	cfg := VarDiffConfig{}
	got := postProcessDiff(0.0000012345, cfg)
	want := roundDecimalPlaces(0.0000012345, 6)
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got != 0.000001 {
		t.Fatalf("got %v, want 0.000001", got)
	}
}

func TestPostProcessDiffAtOrAboveOneUsesSigFigs(t *testing.T) {
	cfg := VarDiffConfig{}
	got := postProcessDiff(123456.789, cfg)
	if got != 123457 {
		t.Fatalf("got %v, want 123457", got)
	}
}

func TestMaybeRetargetWindowIgnoresOldSamples(t *testing.T) {
	cfg := defaultVarDiffConfig()
	cfg.RetargetTime = 0
	cfg.TargetTime = 15
	s := newVarDiffState(10)
	now := time.Now()
	s.lastRetarget = now.Add(-time.Hour)
	// A burst of very old, slow shares fills the ring, then the most
	// recent defaultVarDiffMinSamples arrive in a fast burst. Only the
	// recent window should drive the retarget decision.
	for i := 0; i < varDiffSampleCap-defaultVarDiffMinSamples; i++ {
		s.recordShare(now.Add(time.Duration(i) * 120 * time.Second))
	}
	recentStart := now.Add(time.Duration(varDiffSampleCap-defaultVarDiffMinSamples) * 120 * time.Second)
	for i := 0; i <= defaultVarDiffMinSamples; i++ {
		s.recordShare(recentStart.Add(time.Duration(i) * time.Second))
	}
	evalAt := recentStart.Add(time.Duration(defaultVarDiffMinSamples) * time.Second)
	newDiff, changed := s.maybeRetarget(cfg, evalAt)
	if !changed {
		t.Fatal("expected a retarget driven by the recent fast burst")
	}
	if newDiff <= 10 {
		t.Fatalf("expected difficulty to increase from the recent window, got %v", newDiff)
	}
}

func TestRoundSigFigs(t *testing.T) {
	got := roundSigFigs(123456.789, 6)
	if got != 123457 {
		t.Fatalf("got %v, want 123457", got)
	}
}

func TestInitialDifficultyUsesPortDiffWhenConfigured(t *testing.T) {
	cfg := defaultVarDiffConfig()
	got := initialDifficulty(cfg, 32)
	if got != 32 {
		t.Fatalf("got %v, want 32", got)
	}
}

func TestInitialDifficultyFallsBackToGeometricMean(t *testing.T) {
	cfg := defaultVarDiffConfig()
	cfg.MinDiff = 1
	cfg.MaxDiff = 100
	got := initialDifficulty(cfg, 0)
	if got != 10 {
		t.Fatalf("got %v, want 10 (sqrt(1*100))", got)
	}
}

func TestEstimateHashrate(t *testing.T) {
	got := estimateHashrate(0, 10, 60)
	if got != 0 {
		t.Fatalf("zero difficulty should yield zero estimated hashrate, got %v", got)
	}
	got = estimateHashrate(1, 0, 60)
	if got != 0 {
		t.Fatalf("zero share count should yield zero estimated hashrate, got %v", got)
	}
}
