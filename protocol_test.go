package main

import "testing"

func TestStratumErrorMarshalsAsArray(t *testing.T) {
	e := newStratumError(stratumErrLowDifficulty, "low difficulty share")
	data, err := fastJSONMarshal(e)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	want := `[23,"low difficulty share",null]`
	if string(data) != want {
		t.Fatalf("got %s, want %s", data, want)
	}
}

func TestStratumErrorMarshalsNilAsNull(t *testing.T) {
	var e *StratumError
	data, err := fastJSONMarshal(e)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != "null" {
		t.Fatalf("got %s, want null", data)
	}
}

func TestStratumErrorUnmarshalRoundTrip(t *testing.T) {
	var e StratumError
	if err := fastJSONUnmarshal([]byte(`[20,"other",null]`), &e); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if e.Code != 20 || e.Message != "other" {
		t.Fatalf("got %+v", e)
	}
}

func TestStratumResponseRoundTrip(t *testing.T) {
	resp := StratumResponse{ID: 1, Result: true, Error: nil}
	data, err := fastJSONMarshal(resp)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded StratumResponse
	if err := fastJSONUnmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
}

func TestStratumMessageSniffsMethodWithoutFullParamsParse(t *testing.T) {
	line := []byte(`{"id":1,"method":"mining.submit","params":["worker","00000001","0000000000000000","` +
		hexOf32(1) + `","` + hexOf32(2) + `"]}`)
	var msg StratumMessage
	if err := fastJSONUnmarshal(line, &msg); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if msg.Method != methodSubmit {
		t.Fatalf("got method %q", msg.Method)
	}
	var params []any
	if err := fastJSONUnmarshal(msg.Params, &params); err != nil {
		t.Fatalf("params unmarshal failed: %v", err)
	}
	if len(params) != 5 {
		t.Fatalf("got %d params, want 5", len(params))
	}
}

func TestNewNotificationHasNilID(t *testing.T) {
	n := newNotification(methodSetDifficulty, []any{16.0})
	if n.ID != nil {
		t.Fatalf("notifications must carry a null id, got %v", n.ID)
	}
}
