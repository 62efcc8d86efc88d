package main

import (
	"strings"
	"time"
)

const clientVersion = "kawpow-stratum/1.0"

// handleSubscribe replies with [subscriptions, extranonce1, extranonce1Size]
// and marks the connection SUBSCRIBED. Subscribing twice is tolerated (the
// second call just re-sends the same extranonce1) rather than treated as a
// protocol violation, matching common miner firmware that resubscribes on
// reconnect race conditions.
func (c *Client) handleSubscribe(req StratumRequest) {
	subscriptions := []any{
		[]any{methodSetDifficulty, c.id},
		[]any{methodNotify, c.id},
	}
	c.writeResult(req.ID, []any{subscriptions, c.extranonce1Hex, len(c.extranonce1)})
	if c.getState() < connStateSubscribed {
		c.setState(connStateSubscribed)
	}
}

// handleAuthorize marks the connection READY and pushes the initial
// set_difficulty + notify(cleanJobs=true) pair, in that order, so the miner
// always has a difficulty in hand before its first job.
func (c *Client) handleAuthorize(req StratumRequest) {
	if c.getState() < connStateSubscribed {
		c.writeError(req.ID, stratumErrOther, "must subscribe before authorize")
		return
	}
	worker := ""
	if len(req.Params) > 0 {
		if s, ok := req.Params[0].(string); ok {
			worker = s
		}
	}
	worker = strings.TrimSpace(worker)
	if worker == "" || len(worker) > maxWorkerNameLen {
		c.writeError(req.ID, stratumErrUnauthorizedWork, "invalid worker name")
		return
	}
	c.setWorker(worker)
	c.writeResult(req.ID, true)
	c.setState(connStateReady)

	c.unsubscribe = c.server.jm.Subscribe(c.jobCh)
	c.writeNotification(methodSetDifficulty, []any{c.currentDiff()})
	if job, ok := c.server.jm.CurrentJob(); ok {
		c.lastJobMu.Lock()
		c.lastJobID = job.ID
		c.lastJobMu.Unlock()
		c.writeNotify(job)
	}
	logger.Info("worker authorized", "remote", c.id, "worker", worker)
}

// handleSubmit runs the share through ShareValidator, records the result in
// metrics and VarDiff timing, and on a block-qualifying share submits it
// upstream.
func (c *Client) handleSubmit(req StratumRequest) {
	if c.getState() < connStateReady {
		c.writeError(req.ID, stratumErrUnauthorizedWork, "not authorized")
		return
	}
	params, ok := parseSubmitParams(req.Params)
	if !ok {
		c.writeError(req.ID, stratumErrOther, "malformed params")
		return
	}

	result := c.server.validator.Validate(c.server.jm, params, c.extranonce1, c.currentDiff())
	c.recordResultMetrics(result)

	if !result.Accepted {
		c.writeError(req.ID, result.RejectCode, result.RejectMsg)
		logger.Debug("share rejected", "remote", c.id, "worker", c.currentWorker(), "reason", result.Reject.String())
		return
	}

	c.writeResult(req.ID, true)
	c.acceptedShares.Add(1)

	now := time.Now()
	if c.observeShareTick(now) {
		c.vardiff.recordShare(now)
	}
	// VarDiff must be evaluated right after the share that may have
	// triggered it, not left to wait for the next job push: a miner whose
	// share rate just changed should see the new difficulty on its very
	// next submit, not several seconds later on the broadcast interval.
	oldDiff := c.currentDiff()
	if newDiff, changed := c.vardiff.maybeRetarget(c.server.cfg.VarDiffConfig, now); changed {
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

	if result.IsBlock {
		c.server.submitBlock(params, result)
	}
}

func (c *Client) recordResultMetrics(r ShareResult) {
	if c.server.metrics == nil {
		return
	}
	label := "accepted"
	if !r.Accepted {
		switch r.Reject {
		case rejectStaleJob:
			label = "stale"
		case rejectDuplicate:
			label = "duplicate"
		case rejectLowDifficulty:
			label = "low_difficulty"
		case rejectInvalidPoW:
			label = "invalid"
		case rejectUnauthorized:
			label = "unauthorized"
		default:
			label = "malformed"
		}
	}
	c.server.metrics.SharesTotal.WithLabelValues(label).Inc()
}
