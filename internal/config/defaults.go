package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultBaseURL            = "http://127.0.0.1:5000"
	DefaultWSURL              = "ws://127.0.0.1:8765"
	DefaultAPITimeout         = 10 * time.Second
	DefaultRateBurst          = 5
	DefaultSessionPath        = "/auth/session-status"
	DefaultLoginPath          = "/api/v1/auth/login"
	DefaultRegisterPath       = "/api/v1/auth/register"
	DefaultLogoutPath         = "/api/v1/auth/logout"
	DefaultVerifyPath         = "/api/v1/auth/me"
	DefaultRevalidateInterval = 5 * time.Minute
	DefaultOnTransportError   = "retain"
	DefaultCacheBackend       = "file"
	DefaultCachePath          = ".tradeline/cache.json"
	DefaultCacheTable         = "tradeline_cache"
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 4
	DefaultMinConns           = 1
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 30 * time.Second
	DefaultMaxAttempts        = 5
	DefaultHandshakeTimeout   = 10 * time.Second
	DefaultPingInterval       = 25 * time.Second
	DefaultPingTimeout        = 60 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultBufferSize         = 1000
	DefaultMaxActive          = 50
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
	DefaultLogMaxSizeMB       = 20
	DefaultLogMaxBackups      = 3
	DefaultLogMaxAgeDays      = 14
	DefaultMetricsPort        = 9090
	DefaultMetricsPath        = "/metrics"
)

func (c *ClientConfig) applyDefaults() {
	// API defaults
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.RateBurst == 0 {
		c.API.RateBurst = DefaultRateBurst
	}
	if c.API.SessionPath == "" {
		c.API.SessionPath = DefaultSessionPath
	}
	if c.API.LoginPath == "" {
		c.API.LoginPath = DefaultLoginPath
	}
	if c.API.RegisterPath == "" {
		c.API.RegisterPath = DefaultRegisterPath
	}
	if c.API.LogoutPath == "" {
		c.API.LogoutPath = DefaultLogoutPath
	}
	if c.API.VerifyPath == "" {
		c.API.VerifyPath = DefaultVerifyPath
	}

	// Auth defaults
	if c.Auth.RevalidateInterval == 0 {
		c.Auth.RevalidateInterval = DefaultRevalidateInterval
	}
	if c.Auth.OnTransportError == "" {
		c.Auth.OnTransportError = DefaultOnTransportError
	}

	// Cache defaults
	if c.Cache.Backend == "" {
		c.Cache.Backend = DefaultCacheBackend
	}
	if c.Cache.Path == "" {
		c.Cache.Path = DefaultCachePath
	}
	if c.Cache.Backend == "postgres" {
		applyDBDefaults(&c.Cache.Postgres)
	}

	// Connection defaults
	if c.Connection.WSURL == "" {
		c.Connection.WSURL = DefaultWSURL
	}
	if c.Connection.ReconnectBaseDelay == 0 {
		c.Connection.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Connection.ReconnectMaxDelay == 0 {
		c.Connection.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Connection.MaxAttempts == 0 {
		c.Connection.MaxAttempts = DefaultMaxAttempts
	}
	if c.Connection.HandshakeTimeout == 0 {
		c.Connection.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Connection.PingInterval == 0 {
		c.Connection.PingInterval = DefaultPingInterval
	}
	if c.Connection.PingTimeout == 0 {
		c.Connection.PingTimeout = DefaultPingTimeout
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.BufferSize == 0 {
		c.Connection.BufferSize = DefaultBufferSize
	}

	if c.Notifications.MaxActive == 0 {
		c.Notifications.MaxActive = DefaultMaxActive
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = DefaultLogMaxBackups
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = DefaultLogMaxAgeDays
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
	if db.Table == "" {
		db.Table = DefaultCacheTable
	}
}
