package config

import (
	"reflect"
	"sort"
	"strings"

	logx "todoapp/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections and
// (2) safe structured attrs for logging (never includes secrets like passwords,
// tokens or the JWT secret).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)

	// HTTP (never log pprof token)
	oh, nh := oldCfg.HTTP, newCfg.HTTP
	if strings.TrimSpace(oh.Addr) != strings.TrimSpace(nh.Addr) ||
		strings.TrimSpace(oh.ReadTimeout) != strings.TrimSpace(nh.ReadTimeout) ||
		strings.TrimSpace(oh.WriteTimeout) != strings.TrimSpace(nh.WriteTimeout) ||
		strings.TrimSpace(oh.IdleTimeout) != strings.TrimSpace(nh.IdleTimeout) ||
		oh.MaxBodyBytes != nh.MaxBodyBytes ||
		!reflect.DeepEqual(oh.CORSOrigins, nh.CORSOrigins) ||
		oh.DevEndpoints != nh.DevEndpoints ||
		oh.Pprof.Enabled != nh.Pprof.Enabled ||
		strings.TrimSpace(oh.Pprof.Prefix) != strings.TrimSpace(nh.Pprof.Prefix) ||
		(strings.TrimSpace(oh.Pprof.Token) != "") != (strings.TrimSpace(nh.Pprof.Token) != "") {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.String("http.addr", strings.TrimSpace(nh.Addr)),
			logx.Int("http.cors_origins", len(nh.CORSOrigins)),
			logx.Bool("http.dev_endpoints", nh.DevEndpoints),
			logx.Bool("http.pprof.enabled", nh.Pprof.Enabled),
			logx.Bool("http.pprof.token_set", strings.TrimSpace(nh.Pprof.Token) != ""),
		)
	}

	// Auth (never log the secret itself)
	oa, na := oldCfg.Auth, newCfg.Auth
	secretChanged := oa.JWTSecret != na.JWTSecret
	oa.JWTSecret, na.JWTSecret = "", ""
	if secretChanged || oa != na {
		changed = append(changed, "auth")
		attrs = append(attrs,
			logx.Bool("auth.secret_changed", secretChanged),
			logx.String("auth.token_ttl", strings.TrimSpace(na.TokenTTL)),
			logx.String("auth.code_ttl", strings.TrimSpace(na.CodeTTL)),
			logx.Bool("auth.require_verified", na.RequireVerified),
			logx.Int("auth.login_rate_per_min", na.LoginRatePerMin),
		)
	}

	// Mail. Nil means env-derived defaults; compare on value.
	var om, nm MailConfig
	if oldCfg.Mail != nil {
		om = *oldCfg.Mail
	}
	if newCfg.Mail != nil {
		nm = *newCfg.Mail
	}
	if om != nm {
		changed = append(changed, "mail")
		attrs = append(attrs,
			logx.Bool("mail.enabled", nm.Enabled),
			logx.String("mail.transport", nm.Transport),
			logx.Bool("mail.credentials_set", nm.Username != "" && nm.Password != ""),
			logx.Int("mail.workers", nm.Workers),
			logx.Int("mail.queue_size", nm.QueueSize),
			logx.Int("mail.rate_per_sec", nm.RatePerSec),
			logx.Int("mail.retry_max", nm.RetryMax),
		)
	}

	// Storage (persistence). Nil means the in-memory default.
	var oDriver, nDriver, oBusy, nBusy, oPath, nPath string
	if s := oldCfg.Storage; s != nil {
		oDriver, oBusy, oPath = strings.TrimSpace(s.Driver), strings.TrimSpace(s.BusyTimeout), strings.TrimSpace(s.Path)
	}
	if s := newCfg.Storage; s != nil {
		nDriver, nBusy, nPath = strings.TrimSpace(s.Driver), strings.TrimSpace(s.BusyTimeout), strings.TrimSpace(s.Path)
	}
	if oDriver != nDriver || oBusy != nBusy || oPath != nPath {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nDriver),
			logx.Bool("storage.path_set", nPath != ""),
			logx.String("storage.busy_timeout", nBusy),
		)
	}

	// Logging
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Maintenance
	if oldCfg.Maintenance != newCfg.Maintenance {
		mc := newCfg.Maintenance
		changed = append(changed, "maintenance")
		attrs = append(attrs,
			logx.Bool("maintenance.enabled", mc.Enabled),
			logx.String("maintenance.timezone", strings.TrimSpace(mc.Timezone)),
			logx.String("maintenance.purge_codes", strings.TrimSpace(mc.PurgeCodes)),
			logx.String("maintenance.compact_store", strings.TrimSpace(mc.CompactStore)),
		)
	}

	if oldCfg.Tracing != newCfg.Tracing {
		changed = append(changed, "tracing")
		attrs = append(attrs,
			logx.Bool("tracing.enabled", newCfg.Tracing.Enabled),
			logx.String("tracing.output", newCfg.Tracing.Output),
		)
	}

	od, nd := oldCfg.Dev, newCfg.Dev
	if od != nd {
		changed = append(changed, "dev")
		attrs = append(attrs, logx.String("dev.test_user_email", nd.TestUserEmail))
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired reports sections whose changes only apply after a restart.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		switch s {
		case "storage", "tracing":
			out = append(out, s)
		}
	}
	return out
}
