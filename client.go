package main

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// connState is the Stratum client's lifecycle: CONNECT -> SUBSCRIBED ->
// READY (after authorize) -> CLOSED.
type connState int32

const (
	connStateConnected connState = iota
	connStateSubscribed
	connStateReady
	connStateClosed
)

// Client is one miner connection. Reads are sequential (one task per
// connection, no per-message fan-out); writes are serialized independently
// by writeMu so the read loop and any async job push never interleave a
// line. Grounded on the teacher's MinerConn in miner_conn.go, trimmed of
// pool-accounting/ban/wallet-persistence state that isn't part of this
// server's scope.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
	id     string

	server *Server

	extranonce1    []byte
	extranonce1Hex string

	writeMu     sync.Mutex
	writeScratch []byte

	state atomic.Int32

	diffBits atomic.Uint64 // float64 bit pattern, lock-free reads on the hot path
	vardiff  *varDiffState

	tickMu            sync.Mutex
	lastMonotonicTick time.Time

	workerMu sync.RWMutex
	worker   string

	violations     atomic.Int32
	acceptedShares atomic.Int32

	jobCh       chan *Job
	unsubscribe func()

	lastJobMu sync.Mutex
	lastJobID string

	closeOnce sync.Once
	done      chan struct{}
}

func atomicStoreFloat64(a *atomic.Uint64, v float64) {
	a.Store(math.Float64bits(v))
}

func atomicLoadFloat64(a *atomic.Uint64) float64 {
	return math.Float64frombits(a.Load())
}

func newClient(conn net.Conn, id string, srv *Server) *Client {
	c := &Client{
		conn:         conn,
		reader:       bufio.NewReaderSize(conn, 4096),
		id:           id,
		server:       srv,
		writeScratch: make([]byte, 0, 256),
		jobCh:        make(chan *Job, 4),
		done:         make(chan struct{}),
	}
	initial := initialDifficulty(srv.cfg.VarDiffConfig, srv.cfg.Port.Diff)
	c.vardiff = newVarDiffState(initial)
	atomicStoreFloat64(&c.diffBits, initial)
	c.extranonce1 = srv.nextExtranonce1()
	c.extranonce1Hex = string(appendHexBytes(nil, c.extranonce1))
	return c
}

func (c *Client) currentDiff() float64 { return atomicLoadFloat64(&c.diffBits) }

func (c *Client) setState(s connState) { c.state.Store(int32(s)) }
func (c *Client) getState() connState  { return connState(c.state.Load()) }

// observeShareTick pairs a share's wall-clock timestamp with the
// connection's last-seen tick and reports whether it's safe to feed into
// VarDiff. A tick that isn't strictly after the previous one (system clock
// stepped backward or an equal reading from clock coalescing) is dropped
// rather than risking a bogus, possibly-negative interval in the retarget
// average.
func (c *Client) observeShareTick(now time.Time) bool {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()
	if !c.lastMonotonicTick.IsZero() && !now.After(c.lastMonotonicTick) {
		return false
	}
	c.lastMonotonicTick = now
	return true
}

func (c *Client) currentWorker() string {
	c.workerMu.RLock()
	defer c.workerMu.RUnlock()
	return c.worker
}

func (c *Client) setWorker(w string) {
	c.workerMu.Lock()
	c.worker = w
	c.workerMu.Unlock()
}

// noteProtocolViolation bounds tolerance for malformed client input at
// maxProtocolViolations consecutive violations before forcing a
// disconnect, per spec.
func (c *Client) noteProtocolViolation() (shouldClose bool) {
	n := c.violations.Add(1)
	return n >= maxProtocolViolations
}

func (c *Client) resetProtocolViolations() { c.violations.Store(0) }

func (c *Client) idleTimeout() time.Duration {
	if c.acceptedShares.Load() >= provenShareThreshold {
		return minMinerTimeout
	}
	return initialReadTimeout
}

// run is the connection's main loop: sequential read, dispatch, repeat
// until the peer disconnects, the idle timeout fires, or protocol
// violations exceed the bound.
func (c *Client) run() {
	defer c.cleanup()
	go c.listenJobs()

	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout())); err != nil {
			return
		}
		line, err := c.reader.ReadBytes('\n')
		if len(line) > 0 {
			c.handleLine(line)
		}
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				logger.Debug("client idle timeout", "remote", c.id)
				return
			}
			return
		}
		if len(line) > maxStratumMessageSize {
			logger.Warn("oversized message, closing", "remote", c.id)
			return
		}
	}
}

func (c *Client) handleLine(line []byte) {
	var msg StratumMessage
	if err := fastJSONUnmarshal(line, &msg); err != nil {
		logger.Warn("malformed json", "remote", c.id, "error", err)
		if c.noteProtocolViolation() {
			logger.Warn("too many protocol violations, closing", "remote", c.id)
			c.Close()
		}
		return
	}
	c.resetProtocolViolations()

	var params []any
	if len(msg.Params) > 0 {
		if err := fastJSONUnmarshal(msg.Params, &params); err != nil {
			c.writeError(msg.ID, stratumErrOther, "invalid params")
			return
		}
	}
	req := StratumRequest{ID: msg.ID, Method: msg.Method, Params: params}
	c.dispatch(req)
}

func (c *Client) dispatch(req StratumRequest) {
	switch req.Method {
	case methodSubscribe:
		c.handleSubscribe(req)
	case methodAuthorize:
		c.handleAuthorize(req)
	case methodSubmit:
		c.handleSubmit(req)
	case methodExtranonceSubscribe:
		c.writeTrueResponse(req.ID)
	case methodPing:
		c.writePongResponse(req.ID)
	case methodGetTransactions:
		c.writeEmptySliceResponse(req.ID)
	case methodCapabilities:
		c.writeEmptySliceResponse(req.ID)
	default:
		c.writeError(req.ID, stratumErrOther, fmt.Sprintf("method not found: %s", req.Method))
	}
}

// listenJobs pushes newly published jobs to this client as mining.notify,
// preceded by mining.set_difficulty whenever VarDiff changed the client's
// difficulty since the last notify. Auto-restarts on panic so one bad
// push can't silently kill job delivery for the connection's lifetime.
func (c *Client) listenJobs() {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("listenJobs panic, restarting", "remote", c.id, "panic", r)
			if c.getState() != connStateClosed {
				go c.listenJobs()
			}
		}
	}()
	for {
		select {
		case job, ok := <-c.jobCh:
			if !ok {
				return
			}
			if c.getState() < connStateReady {
				continue
			}
			c.sendJob(job)
		case <-c.done:
			return
		}
	}
}

func (c *Client) sendJob(job *Job) {
	oldDiff := c.currentDiff()
	if newDiff, changed := c.vardiff.maybeRetarget(c.server.cfg.VarDiffConfig, time.Now()); changed {
		atomicStoreFloat64(&c.diffBits, newDiff)
		if c.server.metrics != nil {
			dir := "up"
			if newDiff < oldDiff {
				dir = "down"
			}
			c.server.metrics.VarDiffAdjustments.WithLabelValues(dir).Inc()
		}
		c.writeNotification(methodSetDifficulty, []any{newDiff})
	}
	c.lastJobMu.Lock()
	c.lastJobID = job.ID
	c.lastJobMu.Unlock()
	c.writeNotify(job)
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.setState(connStateClosed)
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *Client) cleanup() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	c.Close()
	c.server.removeClient(c)
	logger.Info("client disconnected", "remote", c.id, "worker", c.currentWorker())
}
