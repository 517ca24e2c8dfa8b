package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"
)

type SMTPNotifier struct {
	host   string
	port   int
	from   string
	logger *zap.Logger
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPNotifier(host string, port int, from string, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{host: host, port: port, from: from, logger: logger, send: smtp.SendMail}
}

// NotifyFailure mails the requester that a dataset job of the given kind
// failed. Jobs are not retried, so the message asks for a resubmission.
func (n *SMTPNotifier) NotifyFailure(_ context.Context, userEmail, jobID, kind, errorMsg string) error {
	to := sanitizeHeader(userEmail)
	if to == "" {
		return fmt.Errorf("send email: empty recipient")
	}
	addr := fmt.Sprintf("%s:%d", n.host, n.port)

	err := n.send(addr, nil, n.from, []string{to}, buildMessage(n.from, to, jobID, kind, errorMsg))
	if err != nil {
		n.logger.Error("failed to send failure notification email",
			zap.String("to", to),
			zap.String("job_id", jobID),
			zap.Error(err),
		)
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("failure notification email sent",
		zap.String("to", to),
		zap.String("job_id", jobID),
		zap.String("kind", kind),
	)
	return nil
}

func buildMessage(from, to, jobID, kind, errorMsg string) []byte {
	subject := fmt.Sprintf("FIAP X - Dataset %s Failed [Job %s]", kind, sanitizeHeader(jobID))
	body := fmt.Sprintf(
		"Hello,\r\n\r\n"+
			"Your dataset %s job could not be completed.\r\n\r\n"+
			"Job ID: %s\r\n"+
			"Error: %s\r\n\r\n"+
			"Frames that were already written are kept. Submit the request again once the cause is fixed.\r\n\r\n"+
			"-- FIAP X Dataset Service",
		kind, jobID, errorMsg,
	)
	return []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", from, to, subject, body))
}

func sanitizeHeader(v string) string {
	return strings.TrimSpace(strings.NewReplacer("\r", "", "\n", "").Replace(v))
}
