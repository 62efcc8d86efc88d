package main

import "testing"

func TestDefaultConfigHasSaneValues(t *testing.T) {
	cfg := defaultConfig()
	if cfg.Port.Number != 3333 {
		t.Fatalf("got port %d", cfg.Port.Number)
	}
	if !cfg.VarDiff.UseProportional {
		t.Fatal("default vardiff mode should be proportional")
	}
	if cfg.StartupRetryAttempts != defaultStartupRetryAttempts {
		t.Fatalf("got %d", cfg.StartupRetryAttempts)
	}
}

func TestLoadConfigRequiresCoinbaseAddress(t *testing.T) {
	if _, err := loadConfig(""); err == nil {
		t.Fatal("expected error when coinbaseAddress is unset")
	}
}

func TestListenAddressFormat(t *testing.T) {
	cfg := defaultConfig()
	cfg.ListenAddr = "0.0.0.0"
	cfg.Port.Number = 3333
	if got := cfg.listenAddress(); got != "0.0.0.0:3333" {
		t.Fatalf("got %q", got)
	}
}

func TestRPCURLFormat(t *testing.T) {
	cfg := defaultConfig()
	cfg.RPC.Host = "127.0.0.1"
	cfg.RPC.Port = 8766
	if got := cfg.rpcURL(); got != "http://127.0.0.1:8766" {
		t.Fatalf("got %q", got)
	}
}
