package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/wneessen/go-mail"
)

// ErrRejected marks a message the channel will never accept; it is not retried.
var ErrRejected = errors.New("notify: message rejected")

// Sender transmits a message over its channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the log instead of a real gateway.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send logs msg.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("%w: empty recipient", ErrRejected)
	}
	s.logger.InfoContext(ctx, "notification sent",
		slog.String("channel", string(msg.Channel)),
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject))
	return nil
}

// SMTPConfig configures SMTPSender.
type SMTPConfig struct {
	Addr     string
	From     string
	Username string
	Password string
}

// SMTPSender delivers EMAIL messages through an SMTP relay.
type SMTPSender struct {
	host    string
	from    string
	options []mail.Option
	deliver func(ctx context.Context, msg *mail.Msg) error
}

// NewSMTPSender constructs an SMTPSender. Auth is only used when a username
// is set; STARTTLS is used when the relay offers it.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	host, port := splitAddr(cfg.Addr)
	options := []mail.Option{mail.WithPort(port), mail.WithTLSPolicy(mail.TLSOpportunistic)}
	if cfg.Username != "" {
		options = append(options,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password))
	}
	s := &SMTPSender{host: host, from: cfg.From, options: options}
	s.deliver = s.dialAndSend
	return s
}

// Send delivers msg as a plain-text email.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if msg.Channel != ChannelEmail {
		return fmt.Errorf("%w: smtp cannot deliver %s", ErrRejected, msg.Channel)
	}
	m, err := s.compose(msg)
	if err != nil {
		return err
	}
	return s.deliver(ctx, m)
}

func (s *SMTPSender) compose(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(s.from); err != nil {
		return nil, fmt.Errorf("%w: sender address %q: %v", ErrRejected, s.from, err)
	}
	if err := m.To(strings.TrimSpace(msg.To)); err != nil {
		return nil, fmt.Errorf("%w: invalid email address %q: %v", ErrRejected, msg.To, err)
	}
	m.Subject(headerLine.Replace(msg.Subject))
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return m, nil
}

func (s *SMTPSender) dialAndSend(ctx context.Context, m *mail.Msg) error {
	client, err := mail.NewClient(s.host, s.options...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, m)
}

var headerLine = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

func splitAddr(addr string) (string, int) {
	host, rawPort, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 25
	}
	port, err := strconv.Atoi(rawPort)
	if err != nil || port <= 0 {
		return host, 25
	}
	return host, port
}

// MultiSender routes messages by channel.
type MultiSender struct {
	routes   map[Channel]Sender
	fallback Sender
}

// NewMultiSender routes unknown channels to fallback, which may be nil.
func NewMultiSender(fallback Sender) *MultiSender {
	return &MultiSender{routes: make(map[Channel]Sender), fallback: fallback}
}

// Route registers the sender of a channel.
func (m *MultiSender) Route(ch Channel, s Sender) *MultiSender {
	m.routes[ch] = s
	return m
}

// Send dispatches msg to the sender of its channel.
func (m *MultiSender) Send(ctx context.Context, msg Message) error {
	if s, ok := m.routes[msg.Channel]; ok {
		return s.Send(ctx, msg)
	}
	if m.fallback != nil {
		return m.fallback.Send(ctx, msg)
	}
	return fmt.Errorf("%w: no sender for %s", ErrRejected, msg.Channel)
}
