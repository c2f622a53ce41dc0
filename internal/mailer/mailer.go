package mailer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

//go:generate mockgen -source=mailer.go -destination=mock/mailer_mock.go -package=mock
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

type smtpSender struct {
	dialer  *gomail.Dialer
	from    string
	timeout time.Duration
	logger  *zap.Logger
}

func NewSMTPSender(cfg SMTPConfig, logger ...*zap.Logger) Sender {
	l := zap.L().Named("mailer.smtp")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("mailer.smtp")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &smtpSender{
		dialer:  gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:    cfg.From,
		timeout: timeout,
		logger:  l,
	}
}

// Send dials, delivers one message and hangs up. gomail has no context
// support, so the dial runs on its own goroutine bounded by ctx and timeout.
func (s *smtpSender) Send(ctx context.Context, to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.dialer.DialAndSend(m) }()

	select {
	case err := <-done:
		if err != nil {
			s.logger.Error("smtp send failed", zap.String("to", to), zap.Error(err))
			return fmt.Errorf("send mail: %w", err)
		}
		s.logger.Debug("smtp send ok", zap.String("to", to), zap.String("subject", subject))
		return nil
	case <-ctx.Done():
		s.logger.Error("smtp send timed out", zap.String("to", to), zap.Error(ctx.Err()))
		return fmt.Errorf("send mail: %w", ctx.Err())
	}
}

type logSender struct {
	logger *zap.Logger
}

// NewLogSender returns a Sender that only logs the message. Used when no
// SMTP server is configured.
func NewLogSender(logger ...*zap.Logger) Sender {
	l := zap.L().Named("mailer.log")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("mailer.log")
	}
	return &logSender{logger: l}
}

func (s *logSender) Send(_ context.Context, to, subject, body string) error {
	s.logger.Info("mail not sent, log driver active",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("body", body),
	)
	return nil
}
