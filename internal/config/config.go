// Package config loads session-core configuration from the environment.
package config

import "github.com/kelseyhightower/envconfig"

// Config is the top-level configuration for one xpra-session process.
type Config struct {
	Transport Transport
	Auth      Auth
	Damage    Damage
	Session   Session
	Metrics   Metrics
}

// Load reads configuration from the environment, applying defaults for
// anything not set.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Transport configures the framed transport and wire protocol (C1/C2/§6).
type Transport struct {
	BindAddr             string `envconfig:"XPRA_BIND_ADDR" default:":14500"`
	SocketDir            string `envconfig:"XPRA_SOCKET_DIR" default:"xpra"`
	TLSCertFile          string `envconfig:"XPRA_TLS_CERT"`
	TLSKeyFile           string `envconfig:"XPRA_TLS_KEY"`
	EnableWebSocket      bool   `envconfig:"XPRA_ENABLE_WEBSOCKET" default:"true"`
	EnableQUIC           bool   `envconfig:"XPRA_ENABLE_QUIC" default:"false"`
	MainChunkMaxBytes    int    `envconfig:"XPRA_MAIN_CHUNK_MAX" default:"262144"`   // 256 KiB
	AuxChunkMaxBytes     int    `envconfig:"XPRA_AUX_CHUNK_MAX" default:"4194304"`   // 4 MiB
	PreAuthChunkMaxBytes int    `envconfig:"XPRA_PREAUTH_CHUNK_MAX" default:"16384"` // 16 KiB
	LargeBinaryThreshold int    `envconfig:"XPRA_LARGE_BINARY_THRESHOLD" default:"512"`
	HighWaterMarkBytes   int    `envconfig:"XPRA_HIGH_WATER_MARK" default:"4194304"`
	LowWaterMarkBytes    int    `envconfig:"XPRA_LOW_WATER_MARK" default:"1048576"`
	PingInterval         int    `envconfig:"XPRA_PING_INTERVAL_SECONDS" default:"5"`
	LivenessTimeout      int    `envconfig:"XPRA_LIVENESS_TIMEOUT_SECONDS" default:"90"`
	ShutdownGraceSeconds int    `envconfig:"XPRA_SHUTDOWN_GRACE_SECONDS" default:"2"`
}

// Auth configures capability exchange and authentication (C4/§7).
type Auth struct {
	SharedSecret     string `envconfig:"XPRA_AUTH_SECRET"`
	MaxChallengeTries int   `envconfig:"XPRA_AUTH_MAX_RETRIES" default:"3"`
	PBKDF2Iterations int    `envconfig:"XPRA_PBKDF2_ITERATIONS" default:"100000"`
}

// Damage configures the damage/encoding scheduler (C6).
type Damage struct {
	MinBatchDelayMS        int     `envconfig:"XPRA_MIN_BATCH_DELAY_MS" default:"0"`
	MaxBatchDelayMS        int     `envconfig:"XPRA_MAX_BATCH_DELAY_MS" default:"250"`
	FullSurfaceThreshold   float64 `envconfig:"XPRA_FULL_SURFACE_THRESHOLD" default:"0.75"`
	ScrollMatchThreshold   float64 `envconfig:"XPRA_SCROLL_MATCH_THRESHOLD" default:"0.6"`
	DeltaCacheFramesPerWid int     `envconfig:"XPRA_DELTA_CACHE_FRAMES" default:"5"`
	AutoRefreshDelayMS     int     `envconfig:"XPRA_AUTO_REFRESH_DELAY_MS" default:"150"`
	MaxInFlightVideo       int     `envconfig:"XPRA_MAX_INFLIGHT_VIDEO" default:"3"`
	MaxInFlightStill       int     `envconfig:"XPRA_MAX_INFLIGHT_STILL" default:"10"`
	EncoderErrorBlacklistSeconds int `envconfig:"XPRA_ENCODER_BLACKLIST_SECONDS" default:"30"`
}

// Session configures per-client lifecycle policy (C8).
type Session struct {
	ReconnectWindowSeconds int  `envconfig:"XPRA_RECONNECT_WINDOW_SECONDS" default:"120"`
	AllowSharing           bool `envconfig:"XPRA_ALLOW_SHARING" default:"false"`
	IdleTimeoutSeconds     int  `envconfig:"XPRA_IDLE_TIMEOUT_SECONDS" default:"0"`
	RendezvousPath         string `envconfig:"XPRA_UPGRADE_RENDEZVOUS_PATH" default:"xpra-upgrade.state"`
}

// Metrics configures the Prometheus exporter.
type Metrics struct {
	Enabled    bool   `envconfig:"XPRA_METRICS_ENABLED" default:"true"`
	ListenAddr string `envconfig:"XPRA_METRICS_ADDR" default:":9876"`
}
