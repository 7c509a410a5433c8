package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// If true, /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// Blob storage for attachments. Empty BlobDir leaves uploads unconfigured
	// and the HTTP send path rejects attachment-bearing requests.
	BlobDir     string
	BlobBaseURL string

	// Websocket gateway knobs.
	WSAllowedOrigins []string
	WSWriteTimeout   time.Duration
	WSReadIdle       time.Duration
	WSSendQueue      int
	WSRateFrames     int
	WSRateWindow     time.Duration

	// AllowGuests materializes transient identities for unknown websocket
	// user ids instead of rejecting with 4001.
	AllowGuests bool

	// Shutdown drain bounds.
	DrainCloseTimeout time.Duration
	DrainDeadline     time.Duration
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("RELAY_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: EnvString("RELAY_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("RELAY_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("RELAY_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("RELAY_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("RELAY_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    EnvInt("RELAY_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("RELAY_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("RELAY_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("RELAY_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("RELAY_READINESS_REQUIRE_DB", false),

		BlobDir:     EnvString("RELAY_BLOB_DIR", ""),
		BlobBaseURL: EnvString("RELAY_BLOB_BASE_URL", "/files"),

		WSAllowedOrigins: EnvCSV("RELAY_WS_ALLOWED_ORIGINS", "*"),
		WSWriteTimeout:   EnvDuration("RELAY_WS_WRITE_TIMEOUT", 5*time.Second),
		WSReadIdle:       EnvDuration("RELAY_WS_READ_IDLE_TIMEOUT", 2*time.Minute),
		WSSendQueue:      EnvInt("RELAY_WS_SEND_QUEUE", 256),
		WSRateFrames:     EnvInt("RELAY_WS_RATE_FRAMES", 120),
		WSRateWindow:     EnvDuration("RELAY_WS_RATE_WINDOW", 10*time.Second),

		AllowGuests: EnvBool("RELAY_ALLOW_GUESTS", false),

		DrainCloseTimeout: EnvDuration("RELAY_DRAIN_CLOSE_TIMEOUT", 500*time.Millisecond),
		DrainDeadline:     EnvDuration("RELAY_DRAIN_DEADLINE", 10*time.Second),
	}
}
