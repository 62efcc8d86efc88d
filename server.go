package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Server owns the listener, the set of connected clients, and the shared
// components (JobManager, ShareValidator, RPCClient) every connection
// dispatches into. Grounded on the teacher's pool-listener setup in
// main.go/miner_conn.go, stripped of the ban list, wallet cache and
// payout-accounting wiring that belong to a sharing pool, not a solo one.
type Server struct {
	cfg       *Config
	rpc       *RPCClient
	jm        *JobManager
	validator *ShareValidator
	metrics   *Metrics

	listener net.Listener

	clientsMu sync.RWMutex
	clients   map[string]*Client

	extranonceCounter atomic.Uint32
	extranonce1Size   int

	connSeq atomic.Uint64

	wg sync.WaitGroup
}

func NewServer(cfg *Config, rpc *RPCClient, jm *JobManager, validator *ShareValidator, metrics *Metrics) *Server {
	return &Server{
		cfg:             cfg,
		rpc:             rpc,
		jm:              jm,
		validator:       validator,
		metrics:         metrics,
		clients:         make(map[string]*Client),
		extranonce1Size: defaultExtranonce1Size,
	}
}

// nextExtranonce1 mints a unique, fixed-size extraNonce1 for a newly
// accepted connection. The counter never resets for the process lifetime,
// so two concurrently connected miners can never be assigned the same
// nonce-space prefix.
func (s *Server) nextExtranonce1() []byte {
	v := s.extranonceCounter.Add(1)
	buf := make([]byte, s.extranonce1Size)
	switch s.extranonce1Size {
	case 4:
		binary.BigEndian.PutUint32(buf, v)
	default:
		for i := len(buf) - 1; i >= 0 && v > 0; i-- {
			buf[i] = byte(v)
			v >>= 8
		}
	}
	return buf
}

// Start binds the listener and accepts connections until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.listenAddress())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.listener = ln
	logger.Info("stratum server listening", "addr", s.cfg.listenAddress())

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			logger.Warn("accept failed", "error", err)
			continue
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	id := fmt.Sprintf("%s#%d", conn.RemoteAddr(), s.connSeq.Add(1))
	c := newClient(conn, id, s)

	s.clientsMu.Lock()
	s.clients[id] = c
	s.clientsMu.Unlock()
	if s.metrics != nil {
		s.metrics.ConnectedMiners.Inc()
	}

	logger.Info("client connected", "remote", id)
	c.run()
}

func (s *Server) removeClient(c *Client) {
	s.clientsMu.Lock()
	delete(s.clients, c.id)
	s.clientsMu.Unlock()
	if s.metrics != nil {
		s.metrics.ConnectedMiners.Dec()
	}
}

// Stop closes the listener and every open connection, waiting up to grace
// for in-flight handleConn goroutines to return.
func (s *Server) Stop(grace time.Duration) {
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.clientsMu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.RUnlock()
	for _, c := range clients {
		c.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		logger.Warn("stop grace period elapsed with connections still closing")
	}
}

// submitBlock assembles the found block and submits it upstream.
// submitblock's own response (rpcError or a non-empty, non-"duplicate"
// result string) is treated as an upstream-logical rejection: a block
// another miner beat us to is downgraded to an accepted share, not a
// server fault.
func (s *Server) submitBlock(params submitParams, result ShareResult) {
	job, ok := s.jm.JobByID(params.jobID)
	if !ok {
		logger.Warn("block found but job vanished before submit", "job", params.jobID)
		return
	}
	blockHex := assembleBlockHex(job, result.Nonce, params.mixHash)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	resp, err := s.rpc.SubmitBlock(ctx, blockHex)
	if err != nil {
		logger.Error("submitblock failed", "job", params.jobID, "error", err)
		return
	}
	if resp != "" {
		logger.Warn("submitblock rejected", "job", params.jobID, "response", resp)
		return
	}
	if s.metrics != nil {
		s.metrics.BlocksFound.Inc()
	}

	// The node already has our block; don't wait out the poll interval to
	// notice it. A late-arriving share against the now-stale job would
	// otherwise still be handed out for a few more seconds.
	if err := s.jm.updateJob(ctx); err != nil {
		logger.Warn("post-submit job refresh failed", "job", params.jobID, "error", err)
	}

	result.BlockTxID = s.confirmBlock(ctx, job, result.Nonce)
	logger.Info("block found and accepted", "height", job.Height, "job", params.jobID, "tx", result.BlockTxID)
}

// confirmBlock looks up the just-submitted block via getblock and returns
// its coinbase txid for operator bookkeeping. A lookup failure doesn't
// change the outcome of the submission: submitblock already reported
// acceptance, this is purely informational.
func (s *Server) confirmBlock(ctx context.Context, job *Job, nonce uint64) string {
	hash := blockHashHex(job, nonce)
	if height, prevHash, ok := s.jm.blockState(); ok {
		logger.Debug("job manager state after submit", "height", height, "prevhash", prevHash)
	}
	raw, err := s.rpc.GetBlock(ctx, hash)
	if err != nil {
		logger.Warn("getblock confirmation failed", "hash", hash, "error", err)
		return ""
	}
	var parsed struct {
		Tx []string `json:"tx"`
	}
	if err := fastJSONUnmarshal(raw, &parsed); err != nil || len(parsed.Tx) == 0 {
		return ""
	}
	return parsed.Tx[0]
}

// jobHeaderBytes serializes the 80-byte fixed header for job at the given
// nonce. The KawPoW header wire format beyond the epoch/seed-hash
// derivation is treated as an opaque, coin-specific detail (kawpow.go);
// this assembles the fields this server does control and is the
// integration point a real deployment wires its node's exact serialization
// into.
func jobHeaderBytes(job *Job, nonce uint64) []byte {
	header := make([]byte, 0, 80)
	var v [4]byte
	binary.LittleEndian.PutUint32(v[:], job.version)
	header = append(header, v[:]...)
	header = append(header, job.prevHashLE[:]...)
	header = append(header, job.merkleRoot[:]...)
	var t [4]byte
	binary.LittleEndian.PutUint32(t[:], job.NTime)
	header = append(header, t[:]...)
	var bits [4]byte
	binary.LittleEndian.PutUint32(bits[:], job.Bits)
	header = append(header, bits[:]...)
	var h [4]byte
	binary.LittleEndian.PutUint32(h[:], job.Height)
	header = append(header, h[:]...)
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	header = append(header, n[:]...)
	return header
}

// BlockNotifyHandler wires spec.md §4.1 trigger #2 to HTTP: a coin
// daemon's -blocknotify hook (or any other external caller) POSTing here
// forces an immediate, out-of-band job refresh, equivalent to a poll
// firing right now instead of waiting out BlockPollInterval.
func (s *Server) BlockNotifyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()
		if err := s.jm.BlockNotify(ctx); err != nil {
			logger.Warn("block notify refresh failed", "error", err)
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// assembleBlockHex serializes the job's header fields plus the winning
// nonce and mix hash into the raw block hex the upstream node expects.
func assembleBlockHex(job *Job, nonce uint64, mixHashHex string) string {
	block := jobHeaderBytes(job, nonce)
	mixBytes, _ := hexDecodeLenient(mixHashHex)
	block = append(block, mixBytes...)

	block = appendVarInt(block, uint64(1+len(job.otherTxs)))
	block = append(block, job.coinbaseTx...)
	for _, tx := range job.otherTxs {
		raw, err := hexDecodeLenient(tx.Data)
		if err != nil {
			continue
		}
		block = append(block, raw...)
	}
	return string(appendHexBytes(nil, block))
}

// blockHashHex derives the block's display-order hash (Bitcoin-family
// double-SHA256 over the fixed header, byte-reversed) for the getblock
// confirmation lookup after a successful submitblock. The KawPoW proof
// itself is verified separately via the opaque kawpowVerifier; this hash
// only identifies the block to the node, matching how the rest of the
// coinbase/merkle plumbing in coinbase.go already computes txids.
func blockHashHex(job *Job, nonce uint64) string {
	sum := doubleSHA256(jobHeaderBytes(job, nonce))
	return string(appendHexBytes(nil, reverseBytes(sum[:])))
}

func hexDecodeLenient(s string) ([]byte, error) {
	out := make([]byte, len(s)/2)
	if err := decodeHexToFixedBytes(out, s); err != nil {
		return nil, err
	}
	return out, nil
}
