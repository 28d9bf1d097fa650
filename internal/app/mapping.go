package app

import (
	"fmt"
	"strings"
	"time"

	"todoapp/internal/auth"
	"todoapp/internal/config"
	"todoapp/internal/httpapi"
	"todoapp/internal/mailer"
	"todoapp/internal/maintenance"
	"todoapp/internal/storage"
	"todoapp/internal/tracing"
	logx "todoapp/pkg/logx"
)

const (
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 60 * time.Second
	defaultIdleTimeout  = 120 * time.Second
	defaultMaxBodyBytes = 1 << 20

	defaultPurgeCodes   = "every:5m"
	defaultCompactStore = "cron:0 3 * * *"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// mapStorageConfig returns the in-memory driver when the section is omitted.
func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{Driver: "memory"}, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "", "memory", "mem":
		return storage.Config{Driver: "memory"}, nil
	case "file":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=file")
		}
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapHTTPConfig(cfg *config.Config) (httpapi.Config, error) {
	hc := cfg.HTTP
	read, err := config.ParseDurationOrDefault("http.read_timeout", hc.ReadTimeout, defaultReadTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	write, err := config.ParseDurationOrDefault("http.write_timeout", hc.WriteTimeout, defaultWriteTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("http.idle_timeout", hc.IdleTimeout, defaultIdleTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	maxBody := hc.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	return httpapi.Config{
		Addr:         strings.TrimSpace(hc.Addr),
		ReadTimeout:  read,
		WriteTimeout: write,
		IdleTimeout:  idle,
		MaxBodyBytes: maxBody,
		CORSOrigins:  append([]string(nil), hc.CORSOrigins...),
		DevEndpoints: hc.DevEndpoints,
		Pprof: httpapi.PprofConfig{
			Enabled: hc.Pprof.Enabled,
			Prefix:  hc.Pprof.Prefix,
			Token:   hc.Pprof.Token,
		},
	}, nil
}

func mapAuthConfig(cfg *config.Config) (auth.Config, error) {
	ac := cfg.Auth
	tokenTTL, err := config.ParseDurationField("auth.token_ttl", ac.TokenTTL)
	if err != nil {
		return auth.Config{}, err
	}
	codeTTL, err := config.ParseDurationField("auth.code_ttl", ac.CodeTTL)
	if err != nil {
		return auth.Config{}, err
	}
	var secret []byte
	if s := strings.TrimSpace(ac.JWTSecret); s != "" {
		secret = []byte(s)
	}
	return auth.Config{
		Secret:          secret,
		TokenTTL:        tokenTTL,
		CodeTTL:         codeTTL,
		BcryptCost:      ac.BcryptCost,
		RequireVerified: ac.RequireVerified,
		LoginRatePerMin: ac.LoginRatePerMin,
		LoginBurst:      ac.LoginBurst,
		TestUser: auth.TestUser{
			Name:     cfg.Dev.TestUserName,
			Email:    cfg.Dev.TestUserEmail,
			Password: cfg.Dev.TestUserPassword,
		},
	}, nil
}

func mapMailConfig(cfg *config.Config) (mailer.Config, error) {
	if cfg.Mail == nil {
		return mailer.Config{}, nil
	}
	mc := cfg.Mail
	base, err := config.ParseDurationField("mail.retry_base", mc.RetryBase)
	if err != nil {
		return mailer.Config{}, err
	}
	maxDelay, err := config.ParseDurationField("mail.retry_max_delay", mc.RetryMaxDelay)
	if err != nil {
		return mailer.Config{}, err
	}
	sendTimeout, err := config.ParseDurationField("mail.send_timeout", mc.SendTimeout)
	if err != nil {
		return mailer.Config{}, err
	}
	return mailer.Config{
		Enabled:       mc.Enabled,
		From:          strings.TrimSpace(mc.From),
		Workers:       mc.Workers,
		QueueSize:     mc.QueueSize,
		RatePerSec:    mc.RatePerSec,
		RetryMax:      mc.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
		SendTimeout:   sendTimeout,
	}, nil
}

// newMailTransport picks the delivery backend. SMTP without credentials
// falls back to logging.
func newMailTransport(cfg *config.Config, log logx.Logger) mailer.Transport {
	mc := cfg.Mail
	if mc == nil || !strings.EqualFold(strings.TrimSpace(mc.Transport), "smtp") ||
		strings.TrimSpace(mc.Username) == "" || mc.Password == "" {
		return mailer.LogTransport{Log: log}
	}
	host := strings.TrimSpace(mc.Host)
	if host == "" {
		host = mailer.HostForSender(mc.Username)
	}
	return mailer.NewSMTPTransport(host, strings.TrimSpace(mc.Username), mc.Password)
}

// mailTransportKey identifies transport settings; a changed key rebuilds the transport.
func mailTransportKey(cfg *config.Config) string {
	mc := cfg.Mail
	if mc == nil {
		return ""
	}
	return strings.Join([]string{strings.ToLower(strings.TrimSpace(mc.Transport)), strings.TrimSpace(mc.Host), strings.TrimSpace(mc.Username), mc.Password}, "\x00")
}

func mapMaintenanceConfig(cfg *config.Config) (maintenance.Config, error) {
	mc := cfg.Maintenance
	timeout, err := config.ParseDurationField("maintenance.job_timeout", mc.JobTimeout)
	if err != nil {
		return maintenance.Config{}, err
	}
	purge := strings.TrimSpace(mc.PurgeCodes)
	if purge == "" {
		purge = defaultPurgeCodes
	}
	compact := strings.TrimSpace(mc.CompactStore)
	if compact == "" {
		compact = defaultCompactStore
	}
	return maintenance.Config{
		Enabled:     mc.Enabled,
		Timezone:    strings.TrimSpace(mc.Timezone),
		JobTimeout:  timeout,
		HistorySize: mc.HistorySize,
		Schedules: map[string]string{
			maintenance.JobPurgeCodes:   purge,
			maintenance.JobCompactStore: compact,
		},
	}, nil
}

func mapTracingConfig(cfg *config.Config, version string) tracing.Config {
	name := strings.TrimSpace(cfg.Tracing.ServiceName)
	if name == "" {
		name = "todoapp"
	}
	return tracing.Config{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    name,
		ServiceVersion: version,
		Output:         strings.TrimSpace(cfg.Tracing.Output),
	}
}
