package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const rpcRetryDelay = 100 * time.Millisecond

var (
	rpcRetryMaxDelay       = 5 * time.Second
	rpcCookieWatchInterval = time.Second
	rpcRetryJitterFrac     = 0.2
)

type rpcRequest struct {
	Jsonrpc string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
	ID     int             `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

type httpStatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *httpStatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("rpc http status %s: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("rpc http status %s", e.Status)
}

// RPCClient talks JSON-RPC 1.0 over HTTP Basic Auth to the coin daemon.
// Transport-layer failures are retried with backoff; 401/403 auth failures
// and well-formed RPC-level errors never are (errors.go's taxonomy).
type RPCClient struct {
	url    string
	user   string
	pass   string
	client *http.Client
	lp     *http.Client

	idMu   sync.Mutex
	nextID int

	metrics *Metrics

	connected          atomic.Bool
	unhealthy          atomic.Bool
	disconnects        atomic.Uint64
	reconnects         atomic.Uint64
	cookieWatchStarted atomic.Bool

	authMu        sync.RWMutex
	cookiePath    string
	cookieModTime time.Time
	cookieSize    int64

	lastErrMu sync.RWMutex
	lastErr   error
}

func NewRPCClient(cfg *Config, metrics *Metrics) *RPCClient {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   60 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		IdleConnTimeout:       60 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	timeout := time.Duration(cfg.RPC.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &RPCClient{
		url:     cfg.rpcURL(),
		user:    cfg.RPC.User,
		pass:    cfg.RPC.Pass,
		metrics: metrics,
		client:  &http.Client{Timeout: timeout, Transport: transport},
		// submitblock/getblocktemplate longpoll variants may legitimately
		// block for a while waiting on the daemon; no client-side timeout.
		lp:         &http.Client{Timeout: 0, Transport: transport},
		nextID:     1,
		cookiePath: strings.TrimSpace(cfg.RPC.CookiePath),
	}
	c.initCookieStat()
	return c
}

func (c *RPCClient) initCookieStat() {
	if c.cookiePath == "" {
		return
	}
	info, err := os.Stat(c.cookiePath)
	if err != nil {
		return
	}
	c.authMu.Lock()
	c.cookieModTime, c.cookieSize = info.ModTime(), info.Size()
	c.authMu.Unlock()

	c.authMu.RLock()
	empty := strings.TrimSpace(c.user) == "" && strings.TrimSpace(c.pass) == ""
	c.authMu.RUnlock()
	if empty {
		c.reloadCookieIfChanged()
	}
}

func (c *RPCClient) reloadCookieIfChanged() {
	if c.cookiePath == "" {
		return
	}
	info, err := os.Stat(c.cookiePath)
	if err != nil {
		return
	}
	c.authMu.RLock()
	modTime, size, user, pass := c.cookieModTime, c.cookieSize, c.user, c.pass
	c.authMu.RUnlock()

	credsEmpty := strings.TrimSpace(user) == "" && strings.TrimSpace(pass) == ""
	changed := !info.ModTime().Equal(modTime) || info.Size() != size
	if !changed && !credsEmpty {
		return
	}
	newUser, newPass, err := readRPCCookie(c.cookiePath)
	if err != nil {
		logger.Warn("reload rpc cookie", "path", c.cookiePath, "error", err)
		return
	}
	c.authMu.Lock()
	c.user, c.pass = strings.TrimSpace(newUser), strings.TrimSpace(newPass)
	c.cookieModTime, c.cookieSize = info.ModTime(), info.Size()
	c.authMu.Unlock()
	logger.Info("rpc cookie reloaded", "path", c.cookiePath)
}

func readRPCCookie(path string) (user, pass string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	parts := strings.SplitN(strings.TrimSpace(string(data)), ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("malformed rpc cookie")
	}
	return parts[0], parts[1], nil
}

// StartCookieWatcher hot-reloads credentials when the daemon's auth cookie
// file appears or rotates, so daemons started with -rpccookiefile don't
// need a server restart after a credential change.
func (c *RPCClient) StartCookieWatcher(ctx context.Context) {
	if c == nil || strings.TrimSpace(c.cookiePath) == "" {
		return
	}
	if !c.cookieWatchStarted.CompareAndSwap(false, true) {
		return
	}
	go func() {
		ticker := time.NewTicker(rpcCookieWatchInterval)
		defer ticker.Stop()
		c.reloadCookieIfChanged()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.reloadCookieIfChanged()
			}
		}
	}()
}

func (c *RPCClient) callCtx(ctx context.Context, method string, params interface{}, out interface{}) error {
	return c.callWithClientCtx(ctx, c.client, method, params, out)
}

func (c *RPCClient) callLongPollCtx(ctx context.Context, method string, params interface{}, out interface{}) error {
	return c.callWithClientCtx(ctx, c.lp, method, params, out)
}

func (c *RPCClient) callWithClientCtx(ctx context.Context, client *http.Client, method string, params interface{}, out interface{}) error {
	retryCount := 0
	for {
		if ctx.Err() != nil {
			c.recordLastError(ctx.Err())
			return ctx.Err()
		}
		err := c.performCall(ctx, client, method, params, out)
		if err == nil {
			if c.unhealthy.Swap(false) {
				c.reconnects.Add(1)
			}
			c.connected.Store(true)
			c.recordLastError(nil)
			return nil
		}
		c.recordLastError(err)
		if c.metrics != nil {
			c.metrics.RPCErrorsTotal.WithLabelValues(method).Inc()
		}
		if isRPCConnectivityError(err) {
			if !c.unhealthy.Swap(true) {
				c.disconnects.Add(1)
			}
		}
		if c.shouldRetry(err) {
			retryCount++
			c.reloadCookieIfChanged()
			if err := sleepContext(ctx, rpcRetryDelayWithBackoff(retryCount)); err != nil {
				return err
			}
			continue
		}
		return err
	}
}

func (c *RPCClient) endpointLabel() string {
	raw := strings.TrimSpace(c.url)
	if raw == "" {
		return "(unknown)"
	}
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Host
	}
	return raw
}

func (c *RPCClient) Healthy() bool {
	return c != nil && c.connected.Load() && !c.unhealthy.Load()
}

func (c *RPCClient) Disconnects() uint64 {
	if c == nil {
		return 0
	}
	return c.disconnects.Load()
}

func (c *RPCClient) Reconnects() uint64 {
	if c == nil {
		return 0
	}
	return c.reconnects.Load()
}

func isRPCConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode >= 500
	}
	return false
}

// sanitizeNaNJSON rewrites the bare (non-JSON-standard) :nan and :-nan
// literals some coin daemons emit for difficulty/verificationprogress
// fields into :0, so the decoder doesn't choke on a response that is
// otherwise well-formed JSON-RPC.
func sanitizeNaNJSON(data []byte) []byte {
	if !bytes.Contains(data, []byte("nan")) {
		return data
	}
	var out []byte
	out = append(out, data...)
	out = bytes.ReplaceAll(out, []byte(":nan,"), []byte(":0,"))
	out = bytes.ReplaceAll(out, []byte(":nan}"), []byte(":0}"))
	out = bytes.ReplaceAll(out, []byte(":-nan,"), []byte(":0,"))
	out = bytes.ReplaceAll(out, []byte(":-nan}"), []byte(":0}"))
	return out
}

func (c *RPCClient) performCall(ctx context.Context, client *http.Client, method string, params interface{}, out interface{}) error {
	c.idMu.Lock()
	id := c.nextID
	c.nextID++
	c.idMu.Unlock()

	body, err := fastJSONMarshal(rpcRequest{Jsonrpc: "1.0", ID: id, Method: method, Params: params})
	if err != nil {
		return err
	}

	req, err := http.NewRequest("POST", c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req = req.WithContext(ctx)
	c.authMu.RLock()
	user, pass := c.user, c.pass
	c.authMu.RUnlock()
	if user != "" || pass != "" {
		req.SetBasicAuth(user, pass)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := client.Do(req)
	if c.metrics != nil {
		c.metrics.RPCCallDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return categorize(ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return categorize(ErrTransport, err)
	}
	data = sanitizeNaNJSON(data)

	if resp.StatusCode != http.StatusOK {
		var rpcResp rpcResponse
		if err := fastJSONUnmarshal(data, &rpcResp); err == nil && rpcResp.Error != nil {
			return categorize(ErrUpstreamLogical, rpcResp.Error)
		}
		statusErr := &httpStatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(bytes.TrimSpace(data))}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return categorize(ErrAuth, statusErr)
		}
		return categorize(ErrTransport, statusErr)
	}
	if len(data) == 0 {
		return categorize(ErrTransport, fmt.Errorf("rpc empty response body"))
	}

	var rpcResp rpcResponse
	if err := fastJSONUnmarshal(data, &rpcResp); err != nil {
		return fmt.Errorf("decode rpc response: %w", err)
	}
	if rpcResp.Error != nil {
		return categorize(ErrUpstreamLogical, rpcResp.Error)
	}
	if out == nil {
		return nil
	}
	return fastJSONUnmarshal(rpcResp.Result, out)
}

func (c *RPCClient) shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	// Any net.Error is a transport-layer failure worth retrying: connection
	// refused/reset, unreachable, broken pipe and timeouts alike, not just
	// the subset where Timeout() is true.
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusUnauthorized:
			return c.cookiePath != ""
		default:
			return statusErr.StatusCode >= 500
		}
	}
	// rpcError is a logical upstream error, never retried.
	return false
}

func (c *RPCClient) recordLastError(err error) {
	c.lastErrMu.Lock()
	c.lastErr = err
	c.lastErrMu.Unlock()
}

func (c *RPCClient) LastError() error {
	c.lastErrMu.RLock()
	defer c.lastErrMu.RUnlock()
	return c.lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func rpcRetryDelayWithBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		return rpcRetryDelay
	}
	delay := rpcRetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if rpcRetryMaxDelay > 0 && delay >= rpcRetryMaxDelay {
			delay = rpcRetryMaxDelay
			break
		}
	}
	if rpcRetryJitterFrac > 0 {
		low, high := 1-rpcRetryJitterFrac, 1+rpcRetryJitterFrac
		jitter := low + (high-low)*rand.Float64()
		delay = time.Duration(float64(delay) * jitter)
		if delay <= 0 {
			delay = time.Millisecond
		}
	}
	return delay
}

// blockchainInfo mirrors the subset of getblockchaininfo this server
// reads (for the metrics/status path).
type blockchainInfo struct {
	Blocks               int64   `json:"blocks"`
	Headers              int64   `json:"headers"`
	BestBlockHash        string  `json:"bestblockhash"`
	Difficulty           float64 `json:"difficulty"`
	VerificationProgress float64 `json:"verificationprogress"`
}

func (c *RPCClient) GetBlockchainInfo(ctx context.Context) (*blockchainInfo, error) {
	var info blockchainInfo
	if err := c.callCtx(ctx, "getblockchaininfo", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *RPCClient) GetBlockTemplate(ctx context.Context, params map[string]any) (*blockTemplateResult, error) {
	var tmpl blockTemplateResult
	if err := c.callCtx(ctx, "getblocktemplate", []any{params}, &tmpl); err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// SubmitBlock submits a fully assembled block (header+transactions, hex
// encoded) found by a miner. A non-nil, non-empty result string or
// rpcError return is an upstream-logical rejection (stale tip, invalid
// block) and is never retried: the caller downgrades this from "found
// block" to "accepted share".
func (c *RPCClient) SubmitBlock(ctx context.Context, blockHex string) (string, error) {
	var result *string
	if err := c.callCtx(ctx, "submitblock", []any{blockHex}, &result); err != nil {
		return "", err
	}
	if result == nil {
		return "", nil
	}
	return *result, nil
}

func (c *RPCClient) GetBlock(ctx context.Context, hash string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.callCtx(ctx, "getblock", []any{hash, 1}, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

type validateAddressResult struct {
	IsValid bool   `json:"isvalid"`
	Address string `json:"address"`
}

func (c *RPCClient) ValidateAddress(ctx context.Context, addr string) (*validateAddressResult, error) {
	var res validateAddressResult
	if err := c.callCtx(ctx, "validateaddress", []any{addr}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
