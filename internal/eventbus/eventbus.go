package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Envelope описывает универсальный контейнер события.
type Envelope struct {
	ID            string            `json:"id"`                       // UUID события.
	Timestamp     time.Time         `json:"timestamp"`                // Время создания события (UTC).
	Source        string            `json:"source"`                   // Имя мира-источника.
	EventType     string            `json:"event_type"`               // EntityCreated, ComponentAttached…
	Version       int               `json:"version"`                  // Схема полезной нагрузки.
	CorrelationID string            `json:"correlation_id,omitempty"` // Для связывания цепочек.
	Priority      int               `json:"priority"`                 // 0=Low … 9=Critical.
	Payload       []byte            `json:"payload"`                  // JSON полезной нагрузки.
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// NewEnvelope сериализует payload в JSON и заворачивает его в конверт.
func NewEnvelope(source, eventType string, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    source,
		EventType: eventType,
		Version:   1,
		Payload:   data,
	}, nil
}

// Decode разбирает полезную нагрузку в v.
func (ev *Envelope) Decode(v any) error {
	return json.Unmarshal(ev.Payload, v)
}

// Filter позволяет подписаться только на нужные события.
type Filter struct {
	Types   []string // Если пусто — все типы.
	Sources []string // Если пусто — все источники.
}

// Subscription возвращается при подписке; позволяет отписаться.
type Subscription interface {
	Unsubscribe()
}

// Handler потребляет события.
type Handler func(ctx context.Context, ev *Envelope)

// Stats агрегированные метрики шины.
type Stats struct {
	Published uint64
	Consumed  uint64
	Dropped   uint64
	InFlight  int
}

// EventBus определяет абстракцию шины событий.
type EventBus interface {
	Publish(ctx context.Context, ev *Envelope) error
	Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error)
	Metrics() Stats
}

//================ Synchronous implementation =================//

// syncBus доставляет событие подписчикам прямо в Publish, в порядке подписки.
// Мир однопоточный, так что порядок событий совпадает с порядком операций.
type syncBus struct {
	mu          sync.RWMutex
	subscribers map[int]subscriber
	nextID      int
	stats       Stats
}

type subscriber struct {
	id      int
	filter  Filter
	handler Handler
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewSyncBus создаёт синхронную in-process шину.
func NewSyncBus() EventBus {
	return &syncBus{subscribers: make(map[int]subscriber)}
}

func (sb *syncBus) Publish(ctx context.Context, ev *Envelope) error {
	if ev == nil {
		return fmt.Errorf("eventbus: nil envelope")
	}
	if err := ctx.Err(); err != nil {
		sb.mu.Lock()
		sb.stats.Dropped++
		sb.mu.Unlock()
		return err
	}

	sb.mu.Lock()
	sb.stats.Published++
	subs := make([]subscriber, 0, len(sb.subscribers))
	for _, sub := range sb.subscribers {
		subs = append(subs, sub)
	}
	sb.mu.Unlock()
	sort.Slice(subs, func(i, j int) bool { return subs[i].id < subs[j].id })

	for _, sub := range subs {
		if !matchFilter(ev, sub.filter) {
			continue
		}
		if sub.ctx.Err() != nil {
			continue
		}
		sub.handler(sub.ctx, ev)
		sb.mu.Lock()
		sb.stats.Consumed++
		sb.mu.Unlock()
	}
	return nil
}

func (sb *syncBus) Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error) {
	if h == nil {
		return nil, fmt.Errorf("eventbus: nil handler")
	}
	sb.mu.Lock()
	id := sb.nextID
	sb.nextID++
	cctx, cancel := context.WithCancel(ctx)
	sb.subscribers[id] = subscriber{id: id, filter: f, handler: h, ctx: cctx, cancel: cancel}
	sb.mu.Unlock()

	return &syncSub{bus: sb, id: id}, nil
}

func (sb *syncBus) Metrics() Stats {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	return sb.stats
}

func matchFilter(ev *Envelope, f Filter) bool {
	match := func(val string, arr []string) bool {
		if len(arr) == 0 {
			return true
		}
		for _, v := range arr {
			if v == val {
				return true
			}
		}
		return false
	}
	return match(ev.EventType, f.Types) && match(ev.Source, f.Sources)
}

type syncSub struct {
	bus *syncBus
	id  int
}

func (s *syncSub) Unsubscribe() {
	s.bus.mu.Lock()
	if sub, ok := s.bus.subscribers[s.id]; ok {
		sub.cancel()
		delete(s.bus.subscribers, s.id)
	}
	s.bus.mu.Unlock()
}

// Forward подписывается на все события from и публикует их в to.
// Ошибки публикации пишутся в лог и не прерывают пересылку. Отмена ctx
// пересылку не останавливает: события, опубликованные при завершении
// работы, тоже доходят до to. Остановить её можно только Unsubscribe.
func Forward(ctx context.Context, from, to EventBus) (Subscription, error) {
	log := busLogger()
	return from.Subscribe(context.WithoutCancel(ctx), Filter{}, func(ctx context.Context, ev *Envelope) {
		if err := to.Publish(ctx, ev); err != nil {
			log.Warn("failed to forward %s %s: %v", ev.EventType, ev.ID, err)
		}
	})
}
