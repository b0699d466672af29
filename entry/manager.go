package entry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/XANi/weatherstage/queue"
	"github.com/XANi/weatherstage/weatherstage"
	"go.uber.org/zap"
)

var ErrMissingName = errors.New("display name is required")

type Config struct {
	Store  *Store
	Source queue.Source
	Client *http.Client
	Logger *zap.SugaredLogger
}

// Runtime is the live part of an entry; recreated on every reload
type Runtime struct {
	Entry       Entry
	Publisher   *weatherstage.Publisher
	unsubscribe []func()
}

// Manager owns entry lifecycle: setup, reload on change and unload
type Manager struct {
	store    *Store
	source   queue.Source
	client   *http.Client
	l        *zap.SugaredLogger
	runtimes map[uint]*Runtime
	// held for the whole store change + reload, so only one runtime per entry is ever subscribed
	lifecycle sync.Mutex
	sync.Mutex
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil || cfg.Source == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("store, source and logger are required")
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	return &Manager{
		store:    cfg.Store,
		source:   cfg.Source,
		client:   cfg.Client,
		l:        cfg.Logger,
		runtimes: map[uint]*Runtime{},
	}, nil
}

// Start sets up every stored entry. Entries failing setup are logged and skipped
func (m *Manager) Start(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	entries, err := m.store.List(ctx)
	if err != nil {
		return fmt.Errorf("error listing entries: %w", err)
	}
	for _, e := range entries {
		if err := m.setup(e); err != nil {
			m.l.Errorf("error setting up entry %d [%s]: %s", e.ID, e.Data.DisplayName, err)
		}
	}
	return nil
}

// Import creates entries from config that are not in the store yet. Endpoint is not probed
func (m *Manager) Import(ctx context.Context, seeds []Seed) error {
	for _, s := range seeds {
		_, err := m.store.FindByName(ctx, s.DisplayName)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		if s.DisplayName == "" {
			return ErrMissingName
		}
		e := Entry{Data: s.Data, Options: s.Options}
		if err := m.store.Create(ctx, &e); err != nil {
			return fmt.Errorf("error importing entry [%s]: %w", s.DisplayName, err)
		}
		m.l.Infof("imported entry %d [%s] from config", e.ID, e.Data.DisplayName)
	}
	return nil
}

func (m *Manager) validate(ctx context.Context, d Data) error {
	if strings.TrimSpace(d.DisplayName) == "" {
		return ErrMissingName
	}
	return weatherstage.ValidateEndpoint(ctx, m.client, d.EndpointURL)
}

// Create validates data, stores the entry and sets it up
func (m *Manager) Create(ctx context.Context, d Data) (Entry, error) {
	if err := m.validate(ctx, d); err != nil {
		return Entry{}, err
	}
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	e := Entry{Data: d}
	if err := m.store.Create(ctx, &e); err != nil {
		return e, fmt.Errorf("error saving entry: %w", err)
	}
	m.l.Infof("created entry %d [%s] with endpoint %s", e.ID, d.DisplayName, d.EndpointURL)
	return e, m.setup(e)
}

// Reconfigure replaces entry data (endpoint, name) and reloads it
func (m *Manager) Reconfigure(ctx context.Context, id uint, d Data) (Entry, error) {
	if _, err := m.store.Get(ctx, id); err != nil {
		return Entry{}, err
	}
	if err := m.validate(ctx, d); err != nil {
		return Entry{}, err
	}
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	e, err := m.store.UpdateData(ctx, id, d)
	if err != nil {
		return e, err
	}
	return e, m.setup(e)
}

// UpdateOptions stores new options and reloads the entry with them
func (m *Manager) UpdateOptions(ctx context.Context, id uint, o Options) (Entry, error) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	e, err := m.store.UpdateOptions(ctx, id, o)
	if err != nil {
		return e, err
	}
	m.l.Infof("options of entry %d changed, reloading", id)
	return e, m.setup(e)
}

func (m *Manager) Remove(ctx context.Context, id uint) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	m.unload(id)
	return m.store.Delete(ctx, id)
}

func (m *Manager) Get(ctx context.Context, id uint) (Entry, error) {
	return m.store.Get(ctx, id)
}

func (m *Manager) List(ctx context.Context) ([]Entry, error) {
	return m.store.List(ctx)
}

// Publisher returns publisher of a running entry
func (m *Manager) Publisher(id uint) (*weatherstage.Publisher, bool) {
	m.Lock()
	defer m.Unlock()
	rt, ok := m.runtimes[id]
	if !ok {
		return nil, false
	}
	return rt.Publisher, true
}

// Running returns IDs of entries that are set up
func (m *Manager) Running() []uint {
	m.Lock()
	ids := make([]uint, 0, len(m.runtimes))
	for id := range m.runtimes {
		ids = append(ids, id)
	}
	m.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Stop unloads all entries
func (m *Manager) Stop() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	for _, id := range m.Running() {
		m.unload(id)
	}
}

// setup (re)creates the runtime of an entry; old one, if any, is unloaded first.
// Caller holds lifecycle lock
func (m *Manager) setup(e Entry) error {
	m.unload(e.ID)
	p, err := weatherstage.New(weatherstage.Config{
		EndpointURL: e.Data.EndpointURL,
		Name:        e.Data.DisplayName,
		Options:     e.Options,
		Client:      m.client,
		Logger:      m.l.Named(fmt.Sprintf("entry-%d", e.ID)),
	})
	if err != nil {
		return err
	}
	rt := &Runtime{Entry: e, Publisher: p}
	bind := func(entityID string, h queue.Handler) {
		if entityID == "" {
			return
		}
		rt.unsubscribe = append(rt.unsubscribe, m.source.Subscribe(entityID, h))
	}
	bind(e.Options.TemperatureEntity, p.SetTemperature)
	bind(e.Options.HumidityEntity, p.SetHumidity)
	bind(e.Options.PressureEntity, p.SetPressure)
	m.Lock()
	old := m.runtimes[e.ID]
	m.runtimes[e.ID] = rt
	m.Unlock()
	if old != nil {
		old.close()
	}
	m.l.Infof("entry %d [%s] set up with %d sensors", e.ID, e.Data.DisplayName, len(rt.unsubscribe))
	return nil
}

func (m *Manager) unload(id uint) {
	m.Lock()
	rt, ok := m.runtimes[id]
	delete(m.runtimes, id)
	m.Unlock()
	if !ok {
		return
	}
	rt.close()
	m.l.Debugf("entry %d [%s] unloaded", id, rt.Entry.Data.DisplayName)
}

func (rt *Runtime) close() {
	for _, unsub := range rt.unsubscribe {
		unsub()
	}
}

// FormError translates setup errors to messages shown to the user
func FormError(err error) string {
	if errors.Is(err, ErrMissingName) {
		return "Display name is required"
	}
	return weatherstage.FormError(err)
}

// IsValidationError reports whether error was caused by user input
func IsValidationError(err error) bool {
	return errors.Is(err, ErrMissingName) ||
		errors.Is(err, weatherstage.ErrUnsupportedProtocol) ||
		errors.Is(err, weatherstage.ErrCannotConnect)
}
