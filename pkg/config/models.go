package config

import "time"

type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	Store     StoreConfig
	Metrics   MetricsConfig
	LogLevel  string `mapstructure:"logLevel"`
}

type ServerConfig struct {
	Address         string
	AllowedOrigins  []string              `mapstructure:"allowedOrigins"`
	Auth            AuthConfig            `mapstructure:"auth"`
	ConnectionLimit ConnectionLimitConfig `mapstructure:"connectionLimit"`
}

type AuthConfig struct {
	JWTSecret  string `mapstructure:"jwtSecret"`
	CookieName string `mapstructure:"cookieName"`
}

type ConnectionLimitConfig struct {
	MaxPerUser int    `mapstructure:"maxPerUser"`
	Mode       string `mapstructure:"mode"` // "reject" or "cycle"
}

type TransportConfig struct {
	// ReadTimeout doubles as the idle timeout: a connection that stays
	// silent for this long is closed as abandoned.
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	PingInterval time.Duration `mapstructure:"pingInterval"`
	SendBuffer   int           `mapstructure:"sendBuffer"`
}

type StoreConfig struct {
	Backend      string `mapstructure:"backend"` // "memory" or "redis"
	RedisAddr    string `mapstructure:"redisAddr"`
	HistoryLimit int    `mapstructure:"historyLimit"`
}

type MetricsConfig struct {
	Address string
}
