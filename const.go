package main

import "time"

const (
	// maxStratumMessageSize bounds a single inbound Stratum line so a
	// misbehaving client can't force unbounded buffering.
	maxStratumMessageSize = 64 * 1024

	stratumWriteTimeout = 60 * time.Second

	// minMinerTimeout is the idle-read timeout granted once a connection
	// has proven itself with accepted shares.
	minMinerTimeout = 10 * time.Minute
	// initialReadTimeout is the shorter idle-read timeout applied before a
	// connection has submitted its first accepted share. Keeps floods of
	// idle, never-mining connections from piling up.
	initialReadTimeout = 60 * time.Second
	// provenShareThreshold is the number of accepted shares after which a
	// connection is considered proven and gets the longer idle timeout.
	provenShareThreshold = 3

	maxProtocolViolations = 3

	maxWorkerNameLen = 256
	maxJobIDLen      = 32
	maxClientIDLen   = 256
	nonceHexLen      = 16 // 8-byte KawPoW nonce
	headerHashHexLen = 64 // 32-byte header hash
	mixHashHexLen    = 64 // 32-byte mix hash

	// kawpowEpochLength is the number of blocks per KawPoW DAG epoch.
	kawpowEpochLength = 7500

	defaultExtranonce1Size = 4

	defaultJobUpdateInterval    = 30 * time.Second
	defaultBlockPollInterval    = 1 * time.Second
	defaultStartupRetryAttempts = 10
	defaultStartupRetryDelay    = 2 * time.Second

	defaultVarDiffTargetTime   = 15.0 // seconds
	defaultVarDiffRetargetTime = 90.0 // seconds
	defaultVarDiffVariancePct  = 30.0
	defaultVarDiffMinSamples   = 10
	varDiffMinScale            = 0.25
	varDiffMaxScale            = 4.0
	varDiffIgnoreChangeFrac    = 0.01
)
