package main

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/remeh/sizedwaitgroup"
)

// blockTemplateResult mirrors the subset of BIP22/23 getblocktemplate
// fields a KawPoW solo pool needs to assemble a job.
type blockTemplateResult struct {
	Bits          string              `json:"bits"`
	CurTime       int64               `json:"curtime"`
	Height        int64               `json:"height"`
	Target        string              `json:"target"`
	Version       int32               `json:"version"`
	Previous      string              `json:"previousblockhash"`
	CoinbaseValue int64               `json:"coinbasevalue"`
	Transactions  []templateTx        `json:"transactions"`
	Mutable       []string            `json:"mutable"`
	Rules         []string            `json:"rules"`
}

type templateTx struct {
	Data string `json:"data"`
	Txid string `json:"txid"`
	Fee  int64  `json:"fee"`
}

// Job is an immutable unit of work advertised to miners via mining.notify.
// Once published, nothing about a Job changes except its submitSet, which
// is guarded independently so concurrent share submissions never race with
// each other or with broadcast.
type Job struct {
	ID         string // monotonic 8-hex-char wrapping counter
	Height     uint32
	HeaderHash [32]byte
	SeedHash   [32]byte
	Target     *big.Int // network target this job's shares are judged against
	Bits       uint32
	NTime      uint32
	CreatedAt  time.Time
	CleanJobs  bool

	version    uint32
	prevHashLE [32]byte
	merkleRoot [32]byte

	coinbaseTx []byte
	otherTxs   []templateTx
	prevHash   string

	submitMu  sync.Mutex
	submitSet map[string]struct{}
}

func newJob(id string, height uint32, hHash, sHash [32]byte, target *big.Int, bits, ntime uint32, clean bool) *Job {
	return &Job{
		ID:         id,
		Height:     height,
		HeaderHash: hHash,
		SeedHash:   sHash,
		Target:     target,
		Bits:       bits,
		NTime:      ntime,
		CreatedAt:  time.Now(),
		CleanJobs:  clean,
		submitSet:  make(map[string]struct{}),
	}
}

// recordSubmission atomically inserts the (nonce, extraNonce1) key for
// this job and reports whether it was new. Duplicate detection is scoped
// to one job so the same nonce is independently checkable across a
// refresh/new-block transition.
func (j *Job) recordSubmission(key string) bool {
	j.submitMu.Lock()
	defer j.submitMu.Unlock()
	if _, seen := j.submitSet[key]; seen {
		return false
	}
	j.submitSet[key] = struct{}{}
	return true
}

// JobManager polls the upstream node for new work, assembles Jobs, and
// fans them out to subscribed clients. It retains at most two jobs: the
// current one and the immediately preceding job of the same block height
// (Open Question #3 in SPEC_FULL.md), so a miner racing a vardiff-driven
// notify doesn't get its share rejected as stale purely from timing.
type JobManager struct {
	rpc *RPCClient
	cfg *Config

	mu       sync.RWMutex
	current  *Job
	previous *Job

	jobSeq atomic.Uint32

	subMu sync.RWMutex
	subs  map[uint64]chan *Job
	subID atomic.Uint64

	broadcastWG sizedwaitgroup.SizedWaitGroup

	metrics *Metrics
}

func NewJobManager(rpc *RPCClient, cfg *Config, metrics *Metrics) *JobManager {
	return &JobManager{
		rpc:         rpc,
		cfg:         cfg,
		subs:        make(map[uint64]chan *Job),
		broadcastWG: sizedwaitgroup.New(32),
		metrics:     metrics,
	}
}

// nextJobID returns a monotonically increasing 8-hex-character job ID that
// wraps at 2^32, per spec.
func (jm *JobManager) nextJobID() string {
	v := jm.jobSeq.Add(1)
	return fmt.Sprintf("%08x", v)
}

// Start runs the template-refresh loop until ctx is cancelled. It fires on
// both a fixed poll interval (to catch new blocks promptly) and a longer
// refresh interval (to rotate in new transactions/time on the current
// block), matching the two triggers named in spec.md §4.1.
func (jm *JobManager) Start(ctx context.Context) error {
	if err := jm.refresh(ctx, true); err != nil {
		return fmt.Errorf("initial template fetch: %w", err)
	}

	pollInterval := jm.cfg.BlockPollInterval
	if pollInterval <= 0 {
		pollInterval = defaultBlockPollInterval
	}
	refreshInterval := jm.cfg.JobUpdateInterval
	if refreshInterval <= 0 {
		refreshInterval = defaultJobUpdateInterval
	}

	pollTicker := time.NewTicker(pollInterval)
	refreshTicker := time.NewTicker(refreshInterval)
	defer pollTicker.Stop()
	defer refreshTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pollTicker.C:
			if err := jm.refresh(ctx, false); err != nil {
				logger.Warn("job refresh failed", "error", err)
			}
		case <-refreshTicker.C:
			if err := jm.refresh(ctx, false); err != nil {
				logger.Warn("job refresh failed", "error", err)
			}
		}
	}
}

func (jm *JobManager) refresh(ctx context.Context, initial bool) error {
	var tmpl blockTemplateResult
	if err := jm.rpc.callCtx(ctx, "getblocktemplate", []any{map[string]any{
		"rules": []string{"segwit"},
	}}, &tmpl); err != nil {
		return err
	}

	jm.mu.RLock()
	cur := jm.current
	jm.mu.RUnlock()

	newBlock := cur == nil || cur.prevHash != tmpl.Previous
	if !initial && !newBlock && !jm.templateChanged(cur, &tmpl) {
		return nil
	}

	job, err := jm.buildJob(&tmpl, newBlock || initial)
	if err != nil {
		return fmt.Errorf("build job: %w", err)
	}

	jm.mu.Lock()
	if newBlock || initial {
		// A new block evicts the prior block's job entirely: a late
		// submission naming it must come back stale immediately, not after
		// one more round.
		jm.previous = nil
	} else {
		// Refresh of the same block: keep the prior job retrievable for one
		// more round so in-flight shares aren't rejected purely on timing.
		jm.previous = jm.current
	}
	jm.current = job
	jm.mu.Unlock()

	if jm.metrics != nil {
		jm.metrics.JobsPublished.Inc()
	}
	logger.Info("published job", "id", job.ID, "height", job.Height, "clean", job.CleanJobs)
	jm.broadcast(job)
	return nil
}

// templateChanged reports whether anything worth re-notifying miners about
// changed since the current job was built (new transactions, curtime
// advance) even though the block height/prevhash are unchanged.
func (jm *JobManager) templateChanged(cur *Job, tmpl *blockTemplateResult) bool {
	if cur == nil {
		return true
	}
	if uint32(tmpl.CurTime) != cur.NTime {
		return true
	}
	return len(tmpl.Transactions) != len(cur.otherTxs)
}

func (jm *JobManager) buildJob(tmpl *blockTemplateResult, cleanJobs bool) (*Job, error) {
	bits, err := parseUint32BEHex(padBitsHex(tmpl.Bits))
	if err != nil {
		return nil, fmt.Errorf("parse bits: %w", err)
	}
	target := targetFromBits(bits)

	coinbaseTx, merkleRoot, err := buildCoinbaseAndMerkle(tmpl, jm.cfg.PayoutScript, uint32(tmpl.Height))
	if err != nil {
		return nil, fmt.Errorf("build coinbase: %w", err)
	}

	prevHashBytes, err := hexToLEBytes32(tmpl.Previous)
	if err != nil {
		return nil, fmt.Errorf("parse prevhash: %w", err)
	}

	fields := headerFields{
		Version:    uint32(tmpl.Version),
		PrevHash:   prevHashBytes,
		MerkleRoot: merkleRoot,
		Time:       uint32(tmpl.CurTime),
		Bits:       bits,
		Height:     uint32(tmpl.Height),
	}
	hHash := headerHash(fields)
	sHash := seedHash(epochOf(uint32(tmpl.Height)))

	job := newJob(jm.nextJobID(), uint32(tmpl.Height), hHash, sHash, target, bits, uint32(tmpl.CurTime), cleanJobs)
	job.coinbaseTx = coinbaseTx
	job.otherTxs = tmpl.Transactions
	job.prevHash = tmpl.Previous
	job.version = fields.Version
	job.prevHashLE = fields.PrevHash
	job.merkleRoot = fields.MerkleRoot
	return job, nil
}

// updateJob forces an immediate out-of-band template refresh, bypassing
// the poll/refresh tickers. Called right after a local block submission so
// the manager doesn't keep handing out a job for a height that's already
// gone until the next scheduled poll.
func (jm *JobManager) updateJob(ctx context.Context) error {
	return jm.refresh(ctx, false)
}

// BlockNotify is spec.md §4.1 trigger #2: an external blockNotify call
// (e.g. the coin daemon's -blocknotify hook posting to the HTTP endpoint
// server.go wires this into) forcing the same immediate, out-of-band
// refresh updateJob performs after our own submission, instead of waiting
// out the poll interval to notice another miner's block.
func (jm *JobManager) BlockNotify(ctx context.Context) error {
	return jm.updateJob(ctx)
}

// blockState reports the height and previous-block hash the job manager
// is currently building on, for confirmation logging alongside a getblock
// lookup after a submission.
func (jm *JobManager) blockState() (height uint32, prevHash string, ok bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()
	if jm.current == nil {
		return 0, "", false
	}
	return jm.current.Height, jm.current.prevHash, true
}

// CurrentJob returns the active job, or ok=false if none has been built yet.
func (jm *JobManager) CurrentJob() (*Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()
	if jm.current == nil {
		return nil, false
	}
	return jm.current, true
}

// JobByID looks up a job by ID among the retained 2-slot window (current
// and immediately previous), returning ok=false for anything older.
func (jm *JobManager) JobByID(id string) (*Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()
	if jm.current != nil && jm.current.ID == id {
		return jm.current, true
	}
	if jm.previous != nil && jm.previous.ID == id {
		return jm.previous, true
	}
	return nil, false
}

// Subscribe registers a channel that receives every newly published job.
// The returned unsubscribe func must be called on client teardown.
func (jm *JobManager) Subscribe(ch chan *Job) (unsubscribe func()) {
	id := jm.subID.Add(1)
	jm.subMu.Lock()
	jm.subs[id] = ch
	jm.subMu.Unlock()
	return func() {
		jm.subMu.Lock()
		delete(jm.subs, id)
		jm.subMu.Unlock()
	}
}

// ActiveMiners returns the number of currently subscribed job channels.
func (jm *JobManager) ActiveMiners() int {
	jm.subMu.RLock()
	defer jm.subMu.RUnlock()
	return len(jm.subs)
}

func (jm *JobManager) broadcast(job *Job) {
	jm.subMu.RLock()
	chans := make([]chan *Job, 0, len(jm.subs))
	for _, ch := range jm.subs {
		chans = append(chans, ch)
	}
	jm.subMu.RUnlock()

	for _, ch := range chans {
		jm.broadcastWG.Add()
		go func(c chan *Job) {
			defer jm.broadcastWG.Done()
			select {
			case c <- job:
			case <-time.After(5 * time.Second):
				logger.Warn("broadcast to subscriber timed out")
			}
		}(ch)
	}
}

func padBitsHex(bits string) string {
	for len(bits) < 8 {
		bits = "0" + bits
	}
	return bits
}
