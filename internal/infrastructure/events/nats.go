package events

import (
	"time"

	"github.com/bytedance/sonic"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/fault"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/types"
)

// NATSSink publishes each event on <subject>.<op>
type NATSSink struct {
	conn    *nats.Conn
	subject string
	logger  *zap.Logger
}

// NewNATSSink connects to a NATS server
func NewNATSSink(url, subject string, logger *zap.Logger) (*NATSSink, error) {
	const op = "events.NewNATSSink"

	if url == "" || subject == "" {
		return nil, fault.New(fault.Configuration, op, "nats url and subject are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := nats.Connect(url,
		nats.Name("semantic-registry"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fault.Wrap(fault.Communication, op, err, "connect to %s", url)
	}

	return NewNATSSinkFromConn(conn, subject, logger), nil
}

// NewNATSSinkFromConn wraps an existing connection
func NewNATSSinkFromConn(conn *nats.Conn, subject string, logger *zap.Logger) *NATSSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSSink{conn: conn, subject: subject, logger: logger}
}

// Name implements Sink
func (s *NATSSink) Name() string { return "nats" }

// Subject returns the subject an event is published on
func (s *NATSSink) Subject(event types.IndexEvent) string {
	return Subject(s.subject, event.Op)
}

// Send implements Sink
func (s *NATSSink) Send(event types.IndexEvent) error {
	const op = "events.NATSSink.Send"

	data, err := sonic.Marshal(event)
	if err != nil {
		return fault.Wrap(fault.Internal, op, err, "encode event")
	}
	if err := s.conn.Publish(s.Subject(event), data); err != nil {
		return fault.Wrap(fault.Communication, op, err, "publish event")
	}
	return nil
}

// Close drains pending publishes and closes the connection
func (s *NATSSink) Close() error {
	if s.conn == nil || s.conn.IsClosed() {
		return nil
	}
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
		return fault.Wrap(fault.Communication, "events.NATSSink.Close", err, "drain")
	}
	return nil
}

// Subject joins a base subject and an index operation
func Subject(base string, op types.IndexOp) string {
	return base + "." + string(op)
}
