package config

// Config is the root document. Every section is optional; zero values fall
// back to defaults applied by the owning service.
type Config struct {
	HTTP        HTTPConfig        `json:"http"`
	Auth        AuthConfig        `json:"auth"`
	Mail        *MailConfig       `json:"mail,omitempty"`
	Storage     *StorageConfig    `json:"storage,omitempty"`
	Logging     LoggingConfig     `json:"logging"`
	Maintenance MaintenanceConfig `json:"maintenance"`
	Tracing     TracingConfig     `json:"tracing"`
	Dev         DevConfig         `json:"dev"`
}

// HTTPConfig controls the API listener.
//
// Durations are Go duration strings. Addr falls back to ":$PORT" and then ":5000".
type HTTPConfig struct {
	Addr         string   `json:"addr,omitempty"`
	ReadTimeout  string   `json:"read_timeout,omitempty"`
	WriteTimeout string   `json:"write_timeout,omitempty"`
	IdleTimeout  string   `json:"idle_timeout,omitempty"`
	MaxBodyBytes int64    `json:"max_body_bytes,omitempty"`
	CORSOrigins  []string `json:"cors_origins,omitempty"`
	// DevEndpoints exposes /api/dev/*. Never enable in production.
	DevEndpoints bool        `json:"dev_endpoints,omitempty"`
	Pprof        PprofConfig `json:"pprof,omitempty"`
}

// PprofConfig mounts net/http/pprof on the API listener.
type PprofConfig struct {
	Enabled bool   `json:"enabled"`
	Prefix  string `json:"prefix,omitempty"` // default: "/debug/pprof/"
	Token   string `json:"token,omitempty"`  // optional bearer token (do not log)
}

type AuthConfig struct {
	// JWTSecret signs access tokens. Empty falls back to $JWT_SECRET.
	JWTSecret       string `json:"jwt_secret,omitempty"`
	TokenTTL        string `json:"token_ttl,omitempty"` // default 168h
	CodeTTL         string `json:"code_ttl,omitempty"`  // default 10m
	BcryptCost      int    `json:"bcrypt_cost,omitempty"`
	RequireVerified bool   `json:"require_verified,omitempty"`

	// Login throttle per e-mail address. Zero rate disables throttling.
	LoginRatePerMin int `json:"login_rate_per_min,omitempty"`
	LoginBurst      int `json:"login_burst,omitempty"`
}

// MailConfig controls the async mail pipeline.
//
// If the whole section is omitted the mailer runs with the "log" transport,
// or "smtp" when $EMAIL_USER and $EMAIL_PASS are set.
type MailConfig struct {
	Enabled       bool   `json:"enabled"`
	Transport     string `json:"transport,omitempty"` // smtp | log
	From          string `json:"from,omitempty"`
	Username      string `json:"username,omitempty"`
	Password      string `json:"password,omitempty"` // do not log
	Host          string `json:"host,omitempty"`     // default: derived from sender domain
	Workers       int    `json:"workers,omitempty"`
	QueueSize     int    `json:"queue_size,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	SendTimeout   string `json:"send_timeout,omitempty"`
}

// StorageConfig selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./todoapp.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// MaintenanceConfig controls background housekeeping jobs.
// Schedules accept cron expressions, Go durations, "HH:MM" intervals and
// the "cron:" / "every:" prefixes.
type MaintenanceConfig struct {
	Enabled      bool   `json:"enabled"`
	Timezone     string `json:"timezone,omitempty"`
	PurgeCodes   string `json:"purge_codes,omitempty"`   // default "every:5m"
	CompactStore string `json:"compact_store,omitempty"` // default "cron:0 3 * * *"
	JobTimeout   string `json:"job_timeout,omitempty"`   // default 1m
	HistorySize  int    `json:"history_size,omitempty"`
}

type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"service_name,omitempty"` // default "todoapp"
	// Output is "stdout", "stderr" or a file path.
	Output string `json:"output,omitempty"`
}

// DevConfig holds the seed account served by /api/dev/create-test-user.
type DevConfig struct {
	TestUserName     string `json:"test_user_name,omitempty"`
	TestUserEmail    string `json:"test_user_email,omitempty"`
	TestUserPassword string `json:"test_user_password,omitempty"` // do not log
}
