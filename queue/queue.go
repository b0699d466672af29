package queue

import (
	"context"
	"fmt"
	"net/url"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const DefaultTopic = "homeassistant/events/state_changed"

// events waiting for the worker; mqtt router is never blocked on delivery
const queueLength = 128

// Queue feeds state_changed events published on MQTT into the bus.
// Home Assistant side is either mqtt_eventstream or an automation publishing trigger.event
type Queue struct {
	client   mqtt.Client
	topic    string
	bus      *Bus
	l        *zap.SugaredLogger
	events   chan StateChangedEvent
	stop     chan struct{}
	finished chan struct{}
}

type Config struct {
	MQTTAddr string
	Topic    string
	ClientID string
	Logger   *zap.SugaredLogger
	Bus      *Bus
}

func New(cfg *Config) (*Queue, error) {
	if cfg.Bus == nil {
		return nil, fmt.Errorf("bus is required")
	}
	mqttURL, err := url.Parse(cfg.MQTTAddr)
	if err != nil {
		return nil, fmt.Errorf("cannot parse MQTT URL: %w", err)
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	cfg.ClientID = clientID(cfg.ClientID)
	q := newQueue(cfg.Topic, cfg.Bus, cfg.Logger)
	p, _ := mqttURL.User.Password()
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTAddr).
		SetUsername(mqttURL.User.Username()).
		SetPassword(p).
		SetClientID(cfg.ClientID).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetAutoReconnect(true).
		SetOrderMatters(true)
	// resubscribe on every (re)connect
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		token := c.Subscribe(q.topic, 1, q.handleMessage)
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			q.l.Errorf("error subscribing to %s: %s", q.topic, token.Error())
			return
		}
		q.l.Infof("subscribed to %s", q.topic)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		q.l.Warnf("mqtt connection lost: %s", err)
	})
	q.client = mqtt.NewClient(opts)
	if token := q.client.Connect(); token.Wait() && token.Error() != nil {
		close(q.stop)
		return nil, fmt.Errorf("error connecting to %s: %w", mqttURL.Host, token.Error())
	}
	return q, nil
}

// clientID returns id, or weatherstage-<random> when empty
func clientID(id string) string {
	if id != "" {
		return id
	}
	return "weatherstage-" + randomString(8)
}

func newQueue(topic string, bus *Bus, log *zap.SugaredLogger) *Queue {
	q := &Queue{
		topic:    topic,
		bus:      bus,
		l:        log,
		events:   make(chan StateChangedEvent, queueLength),
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	go q.worker()
	return q
}

// worker delivers events in arrival order; handlers may block on HTTP for as long as they need
func (q *Queue) worker() {
	defer close(q.finished)
	for {
		select {
		case ev := <-q.events:
			q.bus.Publish(context.Background(), ev)
		case <-q.stop:
			return
		}
	}
}

// handleMessage runs on paho's router goroutine (OrderMatters) so it must not block
func (q *Queue) handleMessage(_ mqtt.Client, m mqtt.Message) {
	ev, err := DecodeEvent(m.Payload())
	if err != nil {
		q.l.Warnf("could not decode event %s: %s: %s", m.Topic(), err, string(m.Payload()))
		return
	}
	select {
	case q.events <- ev:
	default:
		q.l.Warnf("event queue full, dropping %s update", ev.EntityID)
	}
}

func (q *Queue) Close() {
	if q.client != nil {
		q.client.Unsubscribe(q.topic).WaitTimeout(2 * time.Second)
		q.client.Disconnect(250)
	}
	close(q.stop)
	<-q.finished
}
