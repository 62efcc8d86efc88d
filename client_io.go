package main

import (
	"time"
)

// Write path. Grounded on the teacher's miner_io.go: a single write mutex
// serializes the read loop's replies against the async job-push goroutine,
// and encode scratch buffers are reused per-connection to keep the hot
// submit/notify path allocation-light.

func (c *Client) writeRaw(v any) {
	data, err := fastJSONMarshal(v)
	if err != nil {
		logger.Error("encode failed", "remote", c.id, "error", err)
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.writeScratch = append(c.writeScratch[:0], data...)
	c.writeScratch = append(c.writeScratch, '\n')
	if err := c.conn.SetWriteDeadline(time.Now().Add(stratumWriteTimeout)); err != nil {
		return
	}
	if _, err := c.conn.Write(c.writeScratch); err != nil {
		logger.Debug("write failed, closing", "remote", c.id, "error", err)
		c.Close()
	}
}

func (c *Client) writeResult(id any, result any) {
	c.writeRaw(StratumResponse{ID: id, Result: result})
}

func (c *Client) writeError(id any, code int, msg string) {
	c.writeRaw(StratumResponse{ID: id, Result: nil, Error: newStratumError(code, msg)})
}

func (c *Client) writeTrueResponse(id any) { c.writeResult(id, true) }

func (c *Client) writePongResponse(id any) { c.writeResult(id, "pong") }

func (c *Client) writeEmptySliceResponse(id any) { c.writeResult(id, []any{}) }

func (c *Client) writeNotification(method string, params []any) {
	c.writeRaw(newNotification(method, params))
}

// writeNotify sends mining.notify for job. Coinbase is fully fixed for
// KawPoW (no extranonce2 grinding), so the params carry the job's header
// material directly rather than the Bitcoin-style coinb1/coinb2/merkle
// branch shape. The target is this client's difficulty-derived share
// target, not the network target: a miner filters its own work against
// what it was actually assigned, never against the (much harder) block
// target directly.
func (c *Client) writeNotify(job *Job) {
	params := []any{
		job.ID,
		string(appendHexBytes(nil, job.HeaderHash[:])),
		string(appendHexBytes(nil, job.SeedHash[:])),
		string(appendHexBytes(nil, targetFromDifficulty(c.currentDiff()).Bytes())),
		job.CleanJobs,
	}
	c.writeNotification(methodNotify, params)
}
