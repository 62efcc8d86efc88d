//go:build !nojsonsimd

package main

import (
	"reflect"

	"github.com/bytedance/sonic"
)

func init() {
	// Sonic uses runtime codegen for best performance. Pretouching the hot
	// wire types at startup avoids first-hit latency spikes on the Stratum
	// and upstream RPC paths. Best-effort: falls back to normal behavior on
	// failure.
	_ = sonic.Pretouch(reflect.TypeOf(StratumMessage{}))
	_ = sonic.Pretouch(reflect.TypeOf(StratumResponse{}))
	_ = sonic.Pretouch(reflect.TypeOf(rpcRequest{}))
	_ = sonic.Pretouch(reflect.TypeOf(rpcResponse{}))
	_ = sonic.Pretouch(reflect.TypeOf(rpcError{}))
}
