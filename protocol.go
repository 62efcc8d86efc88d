package main

import "encoding/json"

// StratumRequest is an inbound or outbound Stratum v1 request/notification:
// {"id": <id-or-null>, "method": "...", "params": [...]}. Notifications
// (server -> client pushes like mining.notify) carry id=null.
type StratumRequest struct {
	ID     any    `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

// StratumResponse is a reply to a client-originated request:
// {"id": <id>, "result": ..., "error": [code, message, data] | null}.
type StratumResponse struct {
	ID     any           `json:"id"`
	Result any           `json:"result"`
	Error  *StratumError `json:"error"`
}

// StratumError encodes the reserved [code, message, data] error array.
type StratumError struct {
	Code    int
	Message string
	Data    any
}

func (e *StratumError) MarshalJSON() ([]byte, error) {
	if e == nil {
		return []byte("null"), nil
	}
	return json.Marshal([3]any{e.Code, e.Message, e.Data})
}

func (e *StratumError) UnmarshalJSON(data []byte) error {
	var raw [3]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw[0], &e.Code); err != nil {
		return err
	}
	return json.Unmarshal(raw[1], &e.Message)
}

func newStratumError(code int, msg string) *StratumError {
	return &StratumError{Code: code, Message: msg}
}

// StratumMessage is the permissive shape used to sniff an inbound line's
// method/id before committing to a full params unmarshal, and as the
// catch-all type passed to sonic.Pretouch.
type StratumMessage struct {
	ID     any             `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// notifyMethod names. ping/get_transactions/capabilities are accepted as
// harmless no-ops for compatibility with common KawPoW miner firmware;
// anything else unrecognized gets a "method not found" Stratum error
// rather than being silently dropped.
const (
	methodSubscribe            = "mining.subscribe"
	methodAuthorize            = "mining.authorize"
	methodSubmit               = "mining.submit"
	methodExtranonceSubscribe  = "mining.extranonce.subscribe"
	methodSetDifficulty        = "mining.set_difficulty"
	methodNotify               = "mining.notify"
	methodSetExtranonce        = "mining.set_extranonce"
	methodPing                 = "mining.ping"
	methodGetTransactions      = "mining.get_transactions"
	methodCapabilities         = "mining.capabilities"
)

func newNotification(method string, params []any) StratumRequest {
	return StratumRequest{ID: nil, Method: method, Params: params}
}
