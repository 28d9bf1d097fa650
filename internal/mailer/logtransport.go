package mailer

import (
	"context"

	logx "todoapp/pkg/logx"
)

// LogTransport writes messages to the logger instead of sending them.
// Used when no mail credentials are configured.
type LogTransport struct {
	Log logx.Logger
}

func (t LogTransport) Name() string { return "log" }

func (t LogTransport) Deliver(_ context.Context, _ string, m Message) error {
	t.Log.Warn("mail not configured; message logged instead of sent",
		logx.String("to", m.To),
		logx.String("subject", m.Subject),
		logx.String("tag", m.Tag),
		logx.String("text", m.Text),
	)
	return nil
}
