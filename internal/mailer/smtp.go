package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"
)

// SMTPTransport delivers over SMTP with STARTTLS and PLAIN auth.
type SMTPTransport struct {
	// Addr is host:port. Empty derives it from the sender domain.
	Addr     string
	Username string
	Password string

	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

func NewSMTPTransport(addr, username, password string) *SMTPTransport {
	if strings.TrimSpace(addr) == "" {
		addr = HostForSender(username)
	}
	d := &net.Dialer{Timeout: 10 * time.Second}
	return &SMTPTransport{Addr: addr, Username: username, Password: password, dial: d.DialContext}
}

func (t *SMTPTransport) Name() string { return "smtp" }

// HostForSender picks the submission endpoint of the sender's provider.
// Unknown domains fall back to Gmail.
func HostForSender(from string) string {
	domain := strings.ToLower(from)
	if i := strings.LastIndexByte(domain, '@'); i >= 0 {
		domain = domain[i+1:]
	}
	switch domain {
	case "gmail.com", "googlemail.com":
		return "smtp.gmail.com:587"
	case "outlook.com", "hotmail.com", "live.com", "msn.com", "office365.com", "microsoft.com":
		return "smtp-mail.outlook.com:587"
	case "yahoo.com":
		return "smtp.mail.yahoo.com:587"
	default:
		return "smtp.gmail.com:587"
	}
}

func (t *SMTPTransport) Deliver(ctx context.Context, from string, m Message) error {
	if from == "" {
		from = t.Username
	}
	if from == "" {
		return errors.New("smtp: sender address is empty")
	}
	host, _, err := net.SplitHostPort(t.Addr)
	if err != nil {
		return fmt.Errorf("smtp: addr %q: %w", t.Addr, err)
	}
	body, err := buildMIME(from, m)
	if err != nil {
		return err
	}

	conn, err := t.dial(ctx, "tcp", t.Addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if t.Username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", t.Username, t.Password, host)); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(m.To); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}
	return c.Quit()
}

// buildMIME renders a multipart/alternative message (text + html).
func buildMIME(from string, m Message) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	hdr := func(k, v string) { fmt.Fprintf(&buf, "%s: %s\r\n", k, v) }
	hdr("From", from)
	hdr("To", m.To)
	hdr("Subject", mime.QEncoding.Encode("utf-8", m.Subject))
	hdr("Date", time.Now().Format(time.RFC1123Z))
	hdr("MIME-Version", "1.0")
	hdr("Content-Type", "multipart/alternative; boundary="+mw.Boundary())
	buf.WriteString("\r\n")

	parts := []struct{ ctype, body string }{
		{"text/plain; charset=utf-8", m.Text},
		{"text/html; charset=utf-8", m.HTML},
	}
	for _, p := range parts {
		if p.body == "" {
			continue
		}
		pw, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {p.ctype}})
		if err != nil {
			return nil, err
		}
		if _, err := pw.Write([]byte(p.body)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
