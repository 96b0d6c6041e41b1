package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/ent0n29/outreach/internal/protocol"
)

const DefaultSubjectPrefix = "outreach.events"

// NATSSink mirrors hub events onto "<prefix>.<type>" subjects so other
// services can observe intake and execution activity.
type NATSSink struct {
	nc     *nats.Conn
	prefix string
}

func NewNATSSink(url, prefix string, log *zap.Logger) (*NATSSink, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		url = nats.DefaultURL
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultSubjectPrefix
	}
	if log == nil {
		log = zap.NewNop()
	}
	nc, err := nats.Connect(
		url,
		nats.Name("outreach-events"),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.PingInterval(20*time.Second),
		nats.MaxPingsOutstanding(5),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats at %s: %w", url, err)
	}
	return &NATSSink{nc: nc, prefix: prefix}, nil
}

// Subject returns the subject an event type is published on.
func Subject(prefix string, typ protocol.MessageType) string {
	if typ == "" {
		typ = "unknown"
	}
	return prefix + "." + string(typ)
}

func (s *NATSSink) Publish(_ context.Context, typ protocol.MessageType, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return s.nc.Publish(Subject(s.prefix, typ), payload)
}

func (s *NATSSink) Close() error {
	if s.nc != nil && !s.nc.IsClosed() {
		if err := s.nc.Drain(); err != nil {
			s.nc.Close()
			return err
		}
	}
	return nil
}
