package config

import "time"

// Build-time defaults. Override with
// -ldflags "-X github.com/a-essam23/go-classroom/pkg/config.APIBaseURL=...".
var (
	APIBaseURL  = "http://localhost:5000/api"
	RealtimeURL = "http://localhost:5000/realtime"
)

type Config struct {
	API      APIConfig
	Realtime RealtimeConfig
	Session  SessionConfig
	Routes   RoutesConfig
	Log      LogConfig
	Stub     StubConfig
}

type APIConfig struct {
	BaseURL       string        `mapstructure:"baseURL"`
	Timeout       time.Duration `mapstructure:"timeout"`
	UploadTimeout time.Duration `mapstructure:"uploadTimeout"`
	RedirectDelay time.Duration `mapstructure:"redirectDelay"`
}

type RealtimeConfig struct {
	URL               string        `mapstructure:"url"`
	Transports        []string      `mapstructure:"transports"` // tried in order: "websocket", "polling"
	ReconnectAttempts int           `mapstructure:"reconnectAttempts"`
	ReconnectDelay    time.Duration `mapstructure:"reconnectDelay"`
	DialTimeout       time.Duration `mapstructure:"dialTimeout"`
	ReadTimeout       time.Duration `mapstructure:"readTimeout"`
	PollTimeout       time.Duration `mapstructure:"pollTimeout"`
}

type SessionConfig struct {
	StorePath  string `mapstructure:"storePath"`
	StorageKey string `mapstructure:"storageKey"`
}

type RoutesConfig struct {
	Login    string `mapstructure:"login"`
	Register string `mapstructure:"register"`
	Landing  string `mapstructure:"landing"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// StubConfig configures cmd/classroom-stub only.
type StubConfig struct {
	Address         string                `mapstructure:"address"`
	JWTSecret       string                `mapstructure:"jwtSecret"`
	TokenTTL        time.Duration         `mapstructure:"tokenTTL"`
	BcryptCost      int                   `mapstructure:"bcryptCost"`
	SeedDemoUsers   bool                  `mapstructure:"seedDemoUsers"`
	PollTimeout     time.Duration         `mapstructure:"pollTimeout"`
	PollSessionTTL  time.Duration         `mapstructure:"pollSessionTTL"`
	ConnectionLimit ConnectionLimitConfig `mapstructure:"connectionLimit"`
}

// ConnectionLimitConfig caps realtime connections per remote address.
// Mode is "reject" or "cycle"; MaxPerIP <= 0 disables the limit.
type ConnectionLimitConfig struct {
	MaxPerIP int    `mapstructure:"maxPerIP"`
	Mode     string `mapstructure:"mode"`
}
