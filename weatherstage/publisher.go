package weatherstage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/XANi/weatherstage/queue"
	"go.uber.org/zap"
)

var (
	ErrNoNewState      = errors.New("event has no new state")
	ErrUnparsableState = errors.New("state is not a number")
)

// Options are user-editable settings of an entry
type Options struct {
	// report status of last transmission
	StatusReport      bool   `json:"status_report" yaml:"status_report"`
	TemperatureEntity string `json:"temperature_entity" yaml:"temperature_entity"`
	HumidityEntity    string `json:"humidity_entity" yaml:"humidity_entity"`
	PressureEntity    string `json:"pressure_entity" yaml:"pressure_entity"`
	// do not send anything until every channel got its first value
	RequireComplete bool `json:"require_complete" yaml:"require_complete"`
}

type Config struct {
	EndpointURL string
	Name        string
	Options     Options
	Client      *http.Client
	Logger      *zap.SugaredLogger
}

// Publisher keeps last known value of each channel and pushes whole payload
// to the endpoint on every update.
type Publisher struct {
	endpoint string
	name     string
	opts     Options
	client   *http.Client
	l        *zap.SugaredLogger

	mu      sync.Mutex
	payload Payload
	status  Status
}

func New(cfg Config) (*Publisher, error) {
	if cfg.EndpointURL == "" {
		return nil, fmt.Errorf("endpoint URL is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	p := &Publisher{
		endpoint: cfg.EndpointURL,
		name:     cfg.Name,
		opts:     cfg.Options,
		client:   cfg.Client,
		l:        cfg.Logger,
		payload:  NewPayload(),
	}
	p.l.Infof("publishing to %s", p.endpoint)
	return p, nil
}

func (p *Publisher) Name() string     { return p.name }
func (p *Publisher) Endpoint() string { return p.endpoint }
func (p *Publisher) Options() Options { return p.opts }

// Payload returns snapshot of current payload
func (p *Publisher) Payload() Payload {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.payload.Clone()
}

// parseState returns the new state rounded to one decimal with math.Round semantics:
// halves go away from zero and the rounding applies to the float64 closest to the
// decimal text, so "0.15" (stored as 0.1499...) can still end up as 0.2.
func parseState(ev queue.StateChangedEvent) (value float64, unit string, err error) {
	if ev.NewState == nil {
		return 0, "", fmt.Errorf("%s: %w", ev.EntityID, ErrNoNewState)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(ev.NewState.State), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, "", fmt.Errorf("%s [%s]: %w", ev.EntityID, ev.NewState.State, ErrUnparsableState)
	}
	return math.Round(v*10) / 10, NormalizeUnit(ev.NewState.Attributes.UnitOfMeasurement), nil
}

// checkDeviceClass warns when entity mapped to a channel reports a different device class.
// Value is used anyway, entities without device class are common.
func (p *Publisher) checkDeviceClass(ev queue.StateChangedEvent, want ...queue.DeviceClass) {
	if ev.NewState == nil || ev.NewState.Attributes.DeviceClass == "" {
		return
	}
	for _, dc := range want {
		if ev.NewState.Attributes.DeviceClass == dc {
			return
		}
	}
	p.l.Warnf("%s has device class [%s], expected %v", ev.EntityID, ev.NewState.Attributes.DeviceClass, want)
}

// update sets all given channels to the event value and sends payload.
// Mutation and snapshot happen under one lock so a send never sees half of an update.
func (p *Publisher) update(ctx context.Context, ev queue.StateChangedEvent, channels ...Channel) error {
	value, unit, err := parseState(ev)
	if err != nil {
		return err
	}
	p.mu.Lock()
	for _, ch := range channels {
		v := value
		m := p.payload.measurement(ch)
		m.Value = &v
		m.Unit = unit
	}
	snapshot := p.payload.Clone()
	p.mu.Unlock()
	for _, ch := range channels {
		updatesTotal.WithLabelValues(p.name, string(ch)).Inc()
	}
	p.l.Debugf("%s: %.1f %s", ev.EntityID, value, unit)
	p.send(ctx, snapshot)
	return nil
}

func (p *Publisher) send(ctx context.Context, payload Payload) {
	if p.opts.RequireComplete && !payload.Complete() {
		p.l.Debugf("payload incomplete, not sending")
		p.setStatus(Status{Time: time.Now(), Skipped: true})
		sendsTotal.WithLabelValues(p.name, resultSkipped).Inc()
		return
	}
	code, err := p.post(ctx, payload)
	st := Status{Time: time.Now(), StatusCode: code}
	if err != nil {
		st.Error = err.Error()
		p.l.Errorf("error sending data to %s: %s", p.endpoint, err)
		sendsTotal.WithLabelValues(p.name, resultFailed).Inc()
	} else {
		st.OK = true
		if p.opts.StatusReport {
			p.l.Infof("data sent to %s", p.endpoint)
		} else {
			p.l.Debugf("data sent to %s", p.endpoint)
		}
		sendsTotal.WithLabelValues(p.name, resultOK).Inc()
	}
	p.setStatus(st)
}

func (p *Publisher) post(ctx context.Context, payload Payload) (int, error) {
	body, err := json.Marshal(&payload)
	if err != nil {
		return 0, fmt.Errorf("error encoding payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode != http.StatusNoContent {
		return resp.StatusCode, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return resp.StatusCode, nil
}
