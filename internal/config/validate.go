package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate performs static checks that do not need any running service.
// Schedules are checked by the maintenance service validator.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(path, raw string) {
		_, err := ParseDurationField(path, raw)
		add(err)
	}

	if addr := strings.TrimSpace(c.HTTP.Addr); addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			add(fmt.Errorf("http.addr: %w", err))
		}
	}
	dur("http.read_timeout", c.HTTP.ReadTimeout)
	dur("http.write_timeout", c.HTTP.WriteTimeout)
	dur("http.idle_timeout", c.HTTP.IdleTimeout)
	if c.HTTP.MaxBodyBytes < 0 {
		add(errors.New("http.max_body_bytes must be >= 0"))
	}
	if p := strings.TrimSpace(c.HTTP.Pprof.Prefix); p != "" && !strings.HasPrefix(p, "/") {
		add(errors.New("http.pprof.prefix must start with /"))
	}

	dur("auth.token_ttl", c.Auth.TokenTTL)
	dur("auth.code_ttl", c.Auth.CodeTTL)
	if c.Auth.BcryptCost != 0 && (c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31) {
		add(fmt.Errorf("auth.bcrypt_cost: %d out of range [4,31]", c.Auth.BcryptCost))
	}
	if c.Auth.LoginRatePerMin < 0 || c.Auth.LoginBurst < 0 {
		add(errors.New("auth.login_rate_per_min and auth.login_burst must be >= 0"))
	}

	if m := c.Mail; m != nil {
		switch strings.ToLower(strings.TrimSpace(m.Transport)) {
		case "", "log":
		case "smtp":
			if m.Enabled && (strings.TrimSpace(m.Username) == "" || m.Password == "") {
				add(errors.New("mail: smtp transport requires username and password"))
			}
		default:
			add(fmt.Errorf("mail.transport: unknown transport %q", m.Transport))
		}
		if m.Workers < 0 || m.QueueSize < 0 || m.RatePerSec < 0 || m.RetryMax < 0 {
			add(errors.New("mail: workers, queue_size, rate_per_sec and retry_max must be >= 0"))
		}
		dur("mail.retry_base", m.RetryBase)
		dur("mail.retry_max_delay", m.RetryMaxDelay)
		dur("mail.send_timeout", m.SendTimeout)
	}

	if s := c.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "memory", "mem":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(s.Path) == "" {
				add(fmt.Errorf("storage.path is required when storage.driver=%s", strings.ToLower(strings.TrimSpace(s.Driver))))
			}
		default:
			add(fmt.Errorf("unknown storage.driver: %s", s.Driver))
		}
		dur("storage.busy_timeout", s.BusyTimeout)
	}

	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		add(fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}

	dur("maintenance.job_timeout", c.Maintenance.JobTimeout)
	if c.Maintenance.HistorySize < 0 {
		add(errors.New("maintenance.history_size must be >= 0"))
	}

	return errors.Join(errs...)
}
