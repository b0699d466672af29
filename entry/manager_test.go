package entry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/XANi/weatherstage/queue"
	"github.com/XANi/weatherstage/weatherstage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeAPI struct {
	probeStatus int
	mu          sync.Mutex
	posts       []string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		w.WriteHeader(f.probeStatus)
		return
	}
	b, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.posts = append(f.posts, string(b))
	f.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posts)
}

type fixture struct {
	api     *fakeAPI
	srv     *httptest.Server
	store   *Store
	bus     *queue.Bus
	manager *Manager
}

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite", filepath.Join(t.TempDir(), "entries.db"), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	return s
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{api: &fakeAPI{probeStatus: http.StatusNoContent}}
	f.srv = httptest.NewTLSServer(f.api)
	t.Cleanup(f.srv.Close)
	log := zaptest.NewLogger(t).Sugar()
	f.store = newStore(t)
	f.bus = queue.NewBus(log.Named("bus"))
	m, err := NewManager(Config{
		Store:  f.store,
		Source: f.bus,
		Client: f.srv.Client(),
		Logger: log,
	})
	require.NoError(t, err)
	f.manager = m
	t.Cleanup(m.Stop)
	return f
}

func tempEvent(entity, state string) queue.StateChangedEvent {
	return queue.StateChangedEvent{
		EntityID: entity,
		NewState: &queue.State{State: state, Attributes: queue.StateAttributes{UnitOfMeasurement: "°C"}},
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Create(ctx, Data{EndpointURL: "http://example.com", DisplayName: "home"})
	assert.ErrorIs(t, err, weatherstage.ErrUnsupportedProtocol)
	assert.True(t, IsValidationError(err))

	_, err = f.manager.Create(ctx, Data{EndpointURL: f.srv.URL, DisplayName: " "})
	assert.ErrorIs(t, err, ErrMissingName)
	assert.Equal(t, "Display name is required", FormError(err))

	f.api.probeStatus = http.StatusUnauthorized
	_, err = f.manager.Create(ctx, Data{EndpointURL: f.srv.URL, DisplayName: "home"})
	assert.ErrorIs(t, err, weatherstage.ErrCannotConnect)

	entries, err := f.manager.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, f.manager.Running())
}

func TestCreateAndDeliver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e, err := f.manager.Create(ctx, Data{EndpointURL: f.srv.URL, DisplayName: "home"})
	require.NoError(t, err)
	assert.NotZero(t, e.ID)
	assert.Equal(t, []uint{e.ID}, f.manager.Running())

	// no entities configured yet, nothing listens
	assert.Equal(t, 0, f.bus.Publish(ctx, tempEvent("sensor.t", "20")))

	_, err = f.manager.UpdateOptions(ctx, e.ID, Options{
		TemperatureEntity: "sensor.t",
		PressureEntity:    "sensor.p",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.bus.Publish(ctx, tempEvent("sensor.t", "20.04")))
	assert.Equal(t, 1, f.api.count())

	p, ok := f.manager.Publisher(e.ID)
	require.True(t, ok)
	v := p.Payload().Temperature.Value
	require.NotNil(t, v)
	assert.Equal(t, 20.0, *v)

	// bad state is logged by the bus, nothing sent
	f.bus.Publish(ctx, tempEvent("sensor.t", "unavailable"))
	assert.Equal(t, 1, f.api.count())
}

func TestUpdateOptionsReloads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e, err := f.manager.Create(ctx, Data{EndpointURL: f.srv.URL, DisplayName: "home"})
	require.NoError(t, err)
	_, err = f.manager.UpdateOptions(ctx, e.ID, Options{TemperatureEntity: "sensor.old"})
	require.NoError(t, err)
	f.bus.Publish(ctx, tempEvent("sensor.old", "10"))
	before, _ := f.manager.Publisher(e.ID)

	updated, err := f.manager.UpdateOptions(ctx, e.ID, Options{TemperatureEntity: "sensor.new", StatusReport: true})
	require.NoError(t, err)
	assert.True(t, updated.Options.StatusReport)

	after, _ := f.manager.Publisher(e.ID)
	assert.NotSame(t, before, after)
	assert.Nil(t, after.Payload().Temperature.Value, "values are not carried over a reload")
	assert.True(t, after.Options().StatusReport)
	assert.Equal(t, 0, f.bus.Subscriptions("sensor.old"))
	assert.Equal(t, 1, f.bus.Subscriptions("sensor.new"))

	stored, err := f.manager.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "sensor.new", stored.Options.TemperatureEntity)
}

func TestReconfigure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e, err := f.manager.Create(ctx, Data{EndpointURL: f.srv.URL, DisplayName: "home"})
	require.NoError(t, err)

	_, err = f.manager.Reconfigure(ctx, e.ID, Data{EndpointURL: "ftp://x", DisplayName: "home"})
	assert.ErrorIs(t, err, weatherstage.ErrUnsupportedProtocol)

	_, err = f.manager.Reconfigure(ctx, 999, Data{EndpointURL: f.srv.URL, DisplayName: "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	e, err = f.manager.Reconfigure(ctx, e.ID, Data{EndpointURL: f.srv.URL + "/v2", DisplayName: "garden"})
	require.NoError(t, err)
	p, ok := f.manager.Publisher(e.ID)
	require.True(t, ok)
	assert.Equal(t, f.srv.URL+"/v2", p.Endpoint())
	assert.Equal(t, "garden", p.Name())
}

func TestRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e, err := f.manager.Create(ctx, Data{EndpointURL: f.srv.URL, DisplayName: "home"})
	require.NoError(t, err)
	_, err = f.manager.UpdateOptions(ctx, e.ID, Options{HumidityEntity: "sensor.h"})
	require.NoError(t, err)

	require.NoError(t, f.manager.Remove(ctx, e.ID))
	assert.Equal(t, 0, f.bus.Subscriptions("sensor.h"))
	_, ok := f.manager.Publisher(e.ID)
	assert.False(t, ok)
	assert.ErrorIs(t, f.manager.Remove(ctx, e.ID), ErrNotFound)
}

func TestImportAndStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seeds := []Seed{
		{Data: Data{EndpointURL: f.srv.URL, DisplayName: "home"}, Options: Options{PressureEntity: "sensor.p"}},
		{Data: Data{EndpointURL: f.srv.URL + "/2", DisplayName: "cabin"}},
	}
	require.NoError(t, f.manager.Import(ctx, seeds))
	require.NoError(t, f.manager.Import(ctx, seeds))
	entries, err := f.manager.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Empty(t, f.manager.Running())

	require.NoError(t, f.manager.Start(ctx))
	assert.Len(t, f.manager.Running(), 2)
	assert.Equal(t, 1, f.bus.Subscriptions("sensor.p"))

	f.manager.Stop()
	assert.Empty(t, f.manager.Running())
	assert.Equal(t, 0, f.bus.Subscriptions("sensor.p"))

	assert.ErrorIs(t, f.manager.Import(ctx, []Seed{{}}), ErrMissingName)
}

func TestConcurrentReloadsKeepOneSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e, err := f.manager.Create(ctx, Data{EndpointURL: f.srv.URL, DisplayName: "home"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, err := f.manager.UpdateOptions(ctx, e.ID, Options{
					TemperatureEntity: "sensor.t",
					StatusReport:      (i+j)%2 == 0,
				})
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, f.bus.Subscriptions("sensor.t"))
	assert.Equal(t, 1, f.bus.Publish(ctx, tempEvent("sensor.t", "12")))
	assert.Equal(t, 1, f.api.count())
}

func TestRemoveDuringReload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e, err := f.manager.Create(ctx, Data{EndpointURL: f.srv.URL, DisplayName: "home"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, err := f.manager.UpdateOptions(ctx, e.ID, Options{TemperatureEntity: "sensor.t"})
				if err != nil {
					assert.ErrorIs(t, err, ErrNotFound)
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, f.manager.Remove(ctx, e.ID))
	}()
	wg.Wait()

	assert.Empty(t, f.manager.Running())
	assert.Equal(t, 0, f.bus.Subscriptions("sensor.t"))
	assert.Equal(t, 0, f.bus.Publish(ctx, tempEvent("sensor.t", "12")))
}
