package main

import (
	"bufio"
	"encoding/json"
	"math/big"
	"net"
	"testing"
	"time"
)

// TestWriteNotifySendsDifficultyTarget pipes a real net.Conn through
// writeNotify and decodes the wire line, confirming the 5-element shape
// SPEC_FULL.md §6 defines and that the target is derived from the client's
// assigned difficulty, not the job's network target.
func TestWriteNotifySendsDifficultyTarget(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	srv := &Server{cfg: &Config{}}
	srv.cfg.Port.Diff = 16
	c := newClient(serverConn, "test#1", srv)
	atomicStoreFloat64(&c.diffBits, 4)

	job := newJob("1", 7, [32]byte{0xaa}, [32]byte{0xbb}, big.NewInt(1), 0x1d00ffff, 0, true)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writeNotify(job)
	}()

	reader := bufio.NewReader(clientConn)
	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := reader.ReadBytes('\n')
	if err != nil {
		t.Fatalf("read notify line: %v", err)
	}
	<-done

	var req StratumRequest
	if err := json.Unmarshal(line, &req); err != nil {
		t.Fatalf("unmarshal notification: %v", err)
	}
	if req.Method != methodNotify {
		t.Fatalf("got method %q, want %q", req.Method, methodNotify)
	}
	if len(req.Params) != 5 {
		t.Fatalf("got %d params, want 5: %v", len(req.Params), req.Params)
	}
	if req.Params[0] != job.ID {
		t.Fatalf("params[0] = %v, want job id %v", req.Params[0], job.ID)
	}

	gotTarget := req.Params[3].(string)
	wantTarget := string(appendHexBytes(nil, targetFromDifficulty(c.currentDiff()).Bytes()))
	if gotTarget != wantTarget {
		t.Fatalf("target = %q, want difficulty-derived target %q", gotTarget, wantTarget)
	}
	networkTarget := string(appendHexBytes(nil, targetFromBits(job.Bits).Bytes()))
	if gotTarget == networkTarget {
		t.Fatal("notify target must be the client's difficulty-derived target, not the network target")
	}

	if clean, ok := req.Params[4].(bool); !ok || !clean {
		t.Fatalf("params[4] (clean_jobs) = %v, want true", req.Params[4])
	}
}
