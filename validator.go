package main

import (
	"bytes"
)

// submitParams is the parsed, not-yet-validated content of a mining.submit
// request: [worker, job_id, nonce, header_hash, mix_hash].
type submitParams struct {
	worker     string
	jobID      string
	nonceHex   string
	headerHash string
	mixHash    string
}

func parseSubmitParams(raw []any) (submitParams, bool) {
	if len(raw) != 5 {
		return submitParams{}, false
	}
	vals := make([]string, 5)
	for i, v := range raw {
		s, ok := v.(string)
		if !ok {
			return submitParams{}, false
		}
		vals[i] = s
	}
	return submitParams{
		worker:     vals[0],
		jobID:      vals[1],
		nonceHex:   vals[2],
		headerHash: vals[3],
		mixHash:    vals[4],
	}, true
}

// ShareResult is the outcome of validating one mining.submit.
type ShareResult struct {
	Accepted   bool
	IsBlock    bool
	ShareDiff  float64
	Reject     rejectReason
	RejectCode int
	RejectMsg  string
	ResultHash [32]byte
	Nonce      uint64

	// BlockTxID is set after the fact, by submitBlock's getblock
	// confirmation, for a share where IsBlock is true. Empty until then.
	BlockTxID string
}

func rejectResult(reason rejectReason) ShareResult {
	code, msg := stratumCodeForReject(reason)
	return ShareResult{Reject: reason, RejectCode: code, RejectMsg: msg}
}

// stratumCodeForReject maps a rejectReason onto the wire-level [code,
// message] pair by delegating to errors.go's stratumCodeFor, so the
// Stratum error codes have one source of truth instead of two switches
// that could drift apart.
func stratumCodeForReject(r rejectReason) (int, string) {
	switch r {
	case rejectStaleJob:
		return stratumCodeFor(ErrStaleJob)
	case rejectDuplicate:
		return stratumCodeFor(ErrDuplicateShare)
	case rejectLowDifficulty:
		return stratumCodeFor(ErrLowDifficulty)
	case rejectUnauthorized:
		return stratumCodeFor(ErrUnauthorized)
	default:
		return stratumCodeFor(ErrProtocol)
	}
}

// ShareValidator runs the ordered share-validation pipeline. Grounded on
// the teacher's prepareSubmissionTask*/isDuplicateShare family in
// miner_submit_parse.go, generalized from Bitcoin-style
// extranonce2/version-rolling checks to KawPoW's nonce-prefix binding and
// opaque-verifier call.
type ShareValidator struct {
	verifier          kawpowVerifier
	extranonce1Size   int
}

func NewShareValidator(verifier kawpowVerifier, extranonce1Size int) *ShareValidator {
	if verifier == nil {
		verifier = referenceVerifier{}
	}
	return &ShareValidator{verifier: verifier, extranonce1Size: extranonce1Size}
}

// Validate runs the pipeline in the order spec'd: shape -> job binding ->
// nonce-prefix constraint -> duplicate check -> KawPoW verify ->
// difficulty check -> block check.
func (v *ShareValidator) Validate(jm *JobManager, params submitParams, extranonce1 []byte, clientDiff float64) ShareResult {
	// 1. shape validation
	if len(params.nonceHex) != nonceHexLen || len(params.headerHash) != headerHashHexLen || len(params.mixHash) != mixHashHexLen {
		return rejectResult(rejectShape)
	}
	nonce, err := parseUint64BEHex(params.nonceHex)
	if err != nil {
		return rejectResult(rejectShape)
	}
	var hHash, mixHash [32]byte
	if err := decodeHexToFixedBytes(hHash[:], params.headerHash); err != nil {
		return rejectResult(rejectShape)
	}
	if err := decodeHexToFixedBytes(mixHash[:], params.mixHash); err != nil {
		return rejectResult(rejectShape)
	}

	// 2. job binding
	job, ok := jm.JobByID(params.jobID)
	if !ok {
		return rejectResult(rejectStaleJob)
	}
	if !bytes.Equal(hHash[:], job.HeaderHash[:]) {
		return rejectResult(rejectStaleJob)
	}

	// 3. nonce-prefix constraint: the top len(extranonce1) bytes of the
	// 8-byte big-endian nonce must equal this client's assigned
	// extraNonce1, so concurrent miners can never collide on nonce space.
	if v.extranonce1Size > 0 && v.extranonce1Size <= 8 {
		var nonceBytes [8]byte
		for i := 0; i < 8; i++ {
			nonceBytes[i] = byte(nonce >> (8 * (7 - i)))
		}
		if !bytes.Equal(nonceBytes[:v.extranonce1Size], extranonce1[:v.extranonce1Size]) {
			return rejectResult(rejectNonceRange)
		}
	}

	// 4. duplicate check: atomic insert into the job's submission set.
	dupKey := params.nonceHex + hex2(extranonce1)
	if !job.recordSubmission(dupKey) {
		return rejectResult(rejectDuplicate)
	}

	// 5. KawPoW verify (opaque primitive boundary).
	resultHash, ok := v.verifier.Verify(hHash, nonce, job.Height, mixHash)
	if !ok {
		return rejectResult(rejectInvalidPoW)
	}

	// 6. difficulty check: share must meet the client's currently assigned
	// difficulty.
	shareDiff := difficultyFromHash(resultHash)
	if shareDiff < clientDiff {
		return ShareResult{Reject: rejectLowDifficulty, RejectCode: stratumErrLowDifficulty, RejectMsg: "low difficulty share", ShareDiff: shareDiff, ResultHash: resultHash, Nonce: nonce}
	}

	// 7. block check: does the result meet the network target?
	resultInt := bytesToBigIntBE(resultHash[:])
	isBlock := resultInt.Cmp(job.Target) <= 0

	return ShareResult{
		Accepted:   true,
		IsBlock:    isBlock,
		ShareDiff:  shareDiff,
		ResultHash: resultHash,
		Nonce:      nonce,
	}
}

func hex2(b []byte) string {
	return string(appendHexBytes(nil, b))
}
