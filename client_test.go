package main

import (
	"testing"
	"time"
)

func TestObserveShareTickAcceptsStrictlyIncreasing(t *testing.T) {
	c := &Client{}
	now := time.Now()
	if !c.observeShareTick(now) {
		t.Fatal("first tick must always be accepted")
	}
	later := now.Add(time.Millisecond)
	if !c.observeShareTick(later) {
		t.Fatal("a strictly later tick must be accepted")
	}
}

func TestObserveShareTickRejectsNonIncreasing(t *testing.T) {
	c := &Client{}
	now := time.Now()
	if !c.observeShareTick(now) {
		t.Fatal("first tick must always be accepted")
	}
	if c.observeShareTick(now) {
		t.Fatal("a repeated tick must be dropped")
	}
	if c.observeShareTick(now.Add(-time.Second)) {
		t.Fatal("a tick that moved backward must be dropped")
	}
}
