package config

import "time"

type Config struct {
	Backend  BackendConfig  `yaml:"backend" json:"backend"`
	Exchange ExchangeConfig `yaml:"exchange" json:"exchange"`
	Identity IdentityConfig `yaml:"identity" json:"identity"`
	Gateway  GatewayConfig  `yaml:"gateway" json:"gateway"`
	Archive  ArchiveConfig  `yaml:"archive" json:"archive"`
	Console  ConsoleConfig  `yaml:"console" json:"console"`
	Locale   string         `yaml:"locale" json:"locale"` // en | es
	Log      LogConfig      `yaml:"log" json:"log"`
}

type BackendConfig struct {
	URL              string        `yaml:"url" json:"url"`               // ws:// or wss:// endpoint
	Action           string        `yaml:"action" json:"action"`         // route key in the outbound envelope
	TokenParam       string        `yaml:"tokenParam" json:"tokenParam"` // query parameter carrying the bearer token
	HandshakeTimeout time.Duration `yaml:"handshakeTimeout" json:"handshakeTimeout"`
}

type ExchangeConfig struct {
	Timeout          time.Duration `yaml:"timeout" json:"timeout"` // max time a reply may stay PROCESSING
	MaxPendingFrames int           `yaml:"maxPendingFrames" json:"maxPendingFrames"`
	MaxBufferBytes   int           `yaml:"maxBufferBytes" json:"maxBufferBytes"`
}

type IdentityConfig struct {
	Token     string `yaml:"token" json:"-"`
	TokenFile string `yaml:"tokenFile" json:"tokenFile"`
	Anonymous bool   `yaml:"anonymous" json:"anonymous"`
}

type GatewayConfig struct {
	Port          int           `yaml:"port" json:"port"`
	Auth          AuthConfig    `yaml:"auth" json:"auth"`
	IdleTimeout   time.Duration `yaml:"idleTimeout" json:"idleTimeout"`     // close conversations untouched this long
	SweepSchedule string        `yaml:"sweepSchedule" json:"sweepSchedule"` // cron spec for the idle sweep
}

type AuthConfig struct {
	Token string `yaml:"token" json:"-"`
}

// Archive drivers.
const (
	ArchiveNone  = "none"
	ArchiveFile  = "file"
	ArchiveRedis = "redis"
)

type ArchiveConfig struct {
	Driver      string        `yaml:"driver" json:"driver"`
	Dir         string        `yaml:"dir" json:"dir"` // file driver; default home/data/archive
	RedisURL    string        `yaml:"redisURL" json:"redisURL"`
	TTL         time.Duration `yaml:"ttl" json:"ttl"`
	MaxMessages int           `yaml:"maxMessages" json:"maxMessages"`
}

type ConsoleConfig struct {
	Markdown bool `yaml:"markdown" json:"markdown"` // render BOT replies as markdown
}

type LogConfig struct {
	Level string `yaml:"level" json:"level"` // debug | info | warn | error
}

func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:              "ws://localhost:19811/ws",
			Action:           "sendMessage",
			TokenParam:       "token",
			HandshakeTimeout: 10 * time.Second,
		},
		Exchange: ExchangeConfig{
			Timeout:          90 * time.Second,
			MaxPendingFrames: 64,
			MaxBufferBytes:   1 << 20,
		},
		Gateway: GatewayConfig{
			Port:          19810,
			IdleTimeout:   30 * time.Minute,
			SweepSchedule: "@every 1m",
		},
		Archive: ArchiveConfig{
			Driver:      ArchiveNone,
			TTL:         24 * time.Hour,
			MaxMessages: 50,
		},
		Console: ConsoleConfig{Markdown: true},
		Locale:  "en",
		Log:     LogConfig{Level: "info"},
	}
}
