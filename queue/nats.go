package queue

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const DefaultSubject = "homeassistant.events.state_changed"

type NATSConfig struct {
	URL     string
	Subject string
	// connection name shown in server monitoring
	Name   string
	Logger *zap.SugaredLogger
	Bus    *Bus
}

// NATSQueue is the NATS counterpart of Queue
type NATSQueue struct {
	nc  *nats.Conn
	sub *nats.Subscription
	bus *Bus
	l   *zap.SugaredLogger
}

func NewNATS(cfg *NATSConfig) (*NATSQueue, error) {
	if cfg.Bus == nil {
		return nil, fmt.Errorf("bus is required")
	}
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if cfg.Name == "" {
		cfg.Name = "weatherstage"
	}
	q := &NATSQueue{bus: cfg.Bus, l: cfg.Logger}
	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				q.l.Warnf("nats disconnected: %s", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			q.l.Infof("nats reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("error connecting to nats %s: %w", cfg.URL, err)
	}
	q.nc = nc
	sub, err := nc.Subscribe(cfg.Subject, q.handleMessage)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("error subscribing to %s: %w", cfg.Subject, err)
	}
	q.sub = sub
	q.l.Infof("subscribed to nats subject %s", cfg.Subject)
	return q, nil
}

func (q *NATSQueue) handleMessage(m *nats.Msg) {
	ev, err := DecodeEvent(m.Data)
	if err != nil {
		q.l.Warnf("could not decode event %s: %s: %s", m.Subject, err, string(m.Data))
		return
	}
	q.bus.Publish(context.Background(), ev)
}

func (q *NATSQueue) Close() {
	if err := q.sub.Unsubscribe(); err != nil {
		q.l.Warnf("error unsubscribing: %s", err)
	}
	q.nc.Close()
}
