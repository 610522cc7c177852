package config

import "time"

// ClientConfig is the root configuration for a tradeline client.
type ClientConfig struct {
	API           APIConfig          `yaml:"api"`
	Auth          AuthConfig         `yaml:"auth"`
	Cache         CacheConfig        `yaml:"cache"`
	Connection    ConnectionConfig   `yaml:"connection"`
	Notifications NotificationConfig `yaml:"notifications"`
	Logging       LoggingConfig      `yaml:"logging"`
	Metrics       MetricsConfig      `yaml:"metrics"`
}

// APIConfig holds the trading server's HTTP settings.
type APIConfig struct {
	BaseURL      string        `yaml:"base_url"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RateLimit    float64       `yaml:"rate_limit"` // Requests per second, 0 = unlimited
	RateBurst    int           `yaml:"rate_burst"`
	SessionPath  string        `yaml:"session_path"`
	LoginPath    string        `yaml:"login_path"`
	RegisterPath string        `yaml:"register_path"`
	LogoutPath   string        `yaml:"logout_path"`
	VerifyPath   string        `yaml:"verify_path"` // Legacy bearer-token identity endpoint
}

// AuthConfig holds identity resolution settings.
type AuthConfig struct {
	RevalidateInterval time.Duration `yaml:"revalidate_interval"`
	// OnTransportError decides what a background validation does with a cached
	// identity when every step failed with a transport error: "retain" or "drop".
	OnTransportError string `yaml:"on_transport_error"`
}

// CacheConfig selects the local persistent key/value store.
type CacheConfig struct {
	Backend  string   `yaml:"backend"` // "file", "postgres" or "memory"
	Path     string   `yaml:"path"`    // File backend location
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
	Table    string `yaml:"table"`
}

// ConnectionConfig holds event channel settings.
type ConnectionConfig struct {
	WSURL              string        `yaml:"ws_url"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	MaxAttempts        int           `yaml:"max_attempts"`
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	PingTimeout        time.Duration `yaml:"ping_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	BufferSize         int           `yaml:"buffer_size"`
}

// NotificationConfig holds notification queue settings.
type NotificationConfig struct {
	MaxActive int `yaml:"max_active"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // text or json
	File       string `yaml:"file"`   // Empty = stderr
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// MetricsConfig holds Prometheus metrics and health endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}
