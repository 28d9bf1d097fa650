package config

import (
	"strings"
)

// Environment fallbacks. They only fill fields the file leaves empty.
const (
	EnvPort      = "PORT"
	EnvJWTSecret = "JWT_SECRET"
	EnvEmailUser = "EMAIL_USER"
	EnvEmailPass = "EMAIL_PASS"
)

// ApplyEnv fills empty fields from the environment. getenv is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if c == nil || getenv == nil {
		return
	}
	env := func(k string) string { return strings.TrimSpace(getenv(k)) }

	if strings.TrimSpace(c.HTTP.Addr) == "" {
		if port := env(EnvPort); port != "" {
			c.HTTP.Addr = ":" + port
		}
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		c.Auth.JWTSecret = env(EnvJWTSecret)
	}

	user, pass := env(EnvEmailUser), env(EnvEmailPass)
	if c.Mail == nil {
		mc := &MailConfig{Enabled: true, Transport: "log"}
		if user != "" && pass != "" {
			mc.Transport = "smtp"
		}
		c.Mail = mc
	}
	if strings.TrimSpace(c.Mail.Username) == "" {
		c.Mail.Username = user
	}
	if c.Mail.Password == "" {
		c.Mail.Password = pass
	}
	if strings.TrimSpace(c.Mail.From) == "" {
		c.Mail.From = c.Mail.Username
	}
}
