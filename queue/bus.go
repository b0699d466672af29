package queue

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type Handler func(ctx context.Context, ev StateChangedEvent) error

// Source delivers state changes of a single entity to registered handlers.
type Source interface {
	Subscribe(entityID string, h Handler) (unsubscribe func())
}

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is in-memory Source; transports (mqtt, nats, webhook) feed it via Publish
type Bus struct {
	l      *zap.SugaredLogger
	nextID uint64
	subs   map[string][]subscription
	sync.RWMutex
}

func NewBus(log *zap.SugaredLogger) *Bus {
	return &Bus{
		l:    log,
		subs: map[string][]subscription{},
	}
}

func (b *Bus) Subscribe(entityID string, h Handler) func() {
	b.Lock()
	b.nextID++
	id := b.nextID
	b.subs[entityID] = append(b.subs[entityID], subscription{id: id, handler: h})
	b.Unlock()
	b.l.Debugf("subscribed to %s", entityID)
	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(entityID, id) })
	}
}

func (b *Bus) unsubscribe(entityID string, id uint64) {
	b.Lock()
	defer b.Unlock()
	subs := b.subs[entityID]
	for i, s := range subs {
		if s.id == id {
			// copy so Publish iterating over old slice is not affected
			n := make([]subscription, 0, len(subs)-1)
			n = append(n, subs[:i]...)
			n = append(n, subs[i+1:]...)
			subs = n
			break
		}
	}
	if len(subs) == 0 {
		delete(b.subs, entityID)
	} else {
		b.subs[entityID] = subs
	}
}

// Publish delivers event to every handler of its entity, in subscription order.
// Handler errors are logged and do not stop delivery. Returns number of handlers called.
func (b *Bus) Publish(ctx context.Context, ev StateChangedEvent) int {
	b.RLock()
	subs := b.subs[ev.EntityID]
	b.RUnlock()
	if len(subs) == 0 {
		return 0
	}
	unit := ""
	if ev.NewState != nil {
		unit = ev.NewState.Attributes.UnitOfMeasurement
	}
	b.l.Debugf("%s changed from %s to %s %s", ev.EntityID, ev.OldState.String(), ev.NewState.String(), unit)
	for _, s := range subs {
		if err := s.handler(ctx, ev); err != nil {
			b.l.Warnf("handler for %s failed: %s", ev.EntityID, err)
		}
	}
	return len(subs)
}

// Subscriptions returns number of handlers registered for entity
func (b *Bus) Subscriptions(entityID string) int {
	b.RLock()
	defer b.RUnlock()
	return len(b.subs[entityID])
}
