package main

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml"
)

var secretsConfigExample = []byte(`# RPC credentials for the coin daemon.
rpc_user = "kawpowrpc"
rpc_pass = "password"
`)

// Config is the full runtime configuration surface, loaded from defaults
// and overlaid by a TOML file (pelletier/go-toml, the teacher's own config
// library).
type Config struct {
	ListenAddr string `toml:"host"`

	Port struct {
		Number int     `toml:"number"`
		Diff   float64 `toml:"diff"`
	} `toml:"port"`

	CoinbaseAddress       string `toml:"coinbaseAddress"`
	PubKeyHashVersion     int    `toml:"pubKeyHashVersion"`
	BlockBrand            string `toml:"blockBrand"`

	RPC struct {
		Host       string `toml:"host"`
		Port       int    `toml:"port"`
		User       string `toml:"user"`
		Pass       string `toml:"pass"`
		CookiePath string `toml:"cookiePath"`
		TimeoutMs  int    `toml:"timeoutMs"`
	} `toml:"rpc"`

	JobUpdateIntervalMs  int `toml:"jobUpdateIntervalMs"`
	BlockPollIntervalMs  int `toml:"blockPollIntervalMs"`
	StartupRetryAttempts int `toml:"startupRetryAttempts"`
	StartupRetryDelayMs  int `toml:"startupRetryDelayMs"`

	VarDiff struct {
		Enabled         bool    `toml:"enabled"`
		TargetTime      float64 `toml:"targetTime"`
		RetargetTime    float64 `toml:"retargetTime"`
		VariancePercent float64 `toml:"variancePercent"`
		MinDiff         float64 `toml:"minDiff"`
		MaxDiff         float64 `toml:"maxDiff"`
		UseProportional bool    `toml:"useProportional"`
	} `toml:"vardiff"`

	Debug        bool   `toml:"debug"`
	Verbose      bool   `toml:"verbose"`
	LogFile      string `toml:"logFile"`
	ErrorLogFile string `toml:"errorLogFile"`
	DebugLogFile string `toml:"debugLogFile"`
	LogToStdout  bool   `toml:"logToStdout"`

	MetricsAddr string `toml:"metricsAddr"`

	// BlockNotifyPath, if set, registers an HTTP endpoint on MetricsAddr
	// that a coin daemon's -blocknotify hook can POST to for an immediate
	// out-of-band job refresh (spec.md §4.1 trigger #2), instead of
	// relying solely on the poll ticker. Empty disables the endpoint.
	BlockNotifyPath string `toml:"blockNotifyPath"`

	StratumFastDecodeEnabled bool `toml:"stratumFastDecodeEnabled"`
	StratumFastEncodeEnabled bool `toml:"stratumFastEncodeEnabled"`

	// Derived at load time, not configured directly.
	PayoutScript      []byte             `toml:"-"`
	JobUpdateInterval time.Duration      `toml:"-"`
	BlockPollInterval time.Duration      `toml:"-"`
	StartupRetryDelay time.Duration      `toml:"-"`
	VarDiffConfig     VarDiffConfig      `toml:"-"`
}

func defaultConfig() *Config {
	cfg := &Config{
		ListenAddr:           "0.0.0.0",
		BlockBrand:           "KAWPOW-SOLO",
		PubKeyHashVersion:    0x3c, // Ravencoin mainnet P2PKH version byte
		JobUpdateIntervalMs:  int(defaultJobUpdateInterval / time.Millisecond),
		BlockPollIntervalMs:  int(defaultBlockPollInterval / time.Millisecond),
		StartupRetryAttempts: defaultStartupRetryAttempts,
		StartupRetryDelayMs:  int(defaultStartupRetryDelay / time.Millisecond),
		LogToStdout:          true,
	}
	cfg.Port.Number = 3333
	cfg.Port.Diff = 16
	cfg.RPC.Host = "127.0.0.1"
	cfg.RPC.Port = 8766
	cfg.RPC.TimeoutMs = 30_000
	v := defaultVarDiffConfig()
	cfg.VarDiff.Enabled = v.Enabled
	cfg.VarDiff.TargetTime = v.TargetTime
	cfg.VarDiff.RetargetTime = v.RetargetTime
	cfg.VarDiff.VariancePercent = v.VariancePercent
	cfg.VarDiff.MinDiff = v.MinDiff
	cfg.VarDiff.MaxDiff = v.MaxDiff
	cfg.VarDiff.UseProportional = v.UseProportional
	cfg.StratumFastDecodeEnabled = true
	cfg.StratumFastEncodeEnabled = true
	return cfg
}

// loadConfig reads and parses a TOML config file over the defaults, then
// derives the computed fields (payout script, durations).
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if cfg.CoinbaseAddress == "" {
		return nil, fmt.Errorf("coinbaseAddress is required")
	}
	script, err := payoutScriptForAddress(cfg.CoinbaseAddress, byte(cfg.PubKeyHashVersion))
	if err != nil {
		return nil, fmt.Errorf("invalid coinbaseAddress: %w", err)
	}
	cfg.PayoutScript = script

	cfg.JobUpdateInterval = time.Duration(cfg.JobUpdateIntervalMs) * time.Millisecond
	cfg.BlockPollInterval = time.Duration(cfg.BlockPollIntervalMs) * time.Millisecond
	cfg.StartupRetryDelay = time.Duration(cfg.StartupRetryDelayMs) * time.Millisecond

	cfg.VarDiffConfig = VarDiffConfig{
		Enabled:         cfg.VarDiff.Enabled,
		TargetTime:      cfg.VarDiff.TargetTime,
		RetargetTime:    cfg.VarDiff.RetargetTime,
		VariancePercent: cfg.VarDiff.VariancePercent,
		MinDiff:         cfg.VarDiff.MinDiff,
		MaxDiff:         cfg.VarDiff.MaxDiff,
		UseProportional: cfg.VarDiff.UseProportional,
	}

	return cfg, nil
}

func (c *Config) listenAddress() string {
	return fmt.Sprintf("%s:%d", c.ListenAddr, c.Port.Number)
}

func (c *Config) rpcURL() string {
	return fmt.Sprintf("http://%s:%d", c.RPC.Host, c.RPC.Port)
}
