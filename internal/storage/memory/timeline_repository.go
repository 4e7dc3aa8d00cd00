package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/caffe/internal/domain"
)

type timelineEntry struct {
	event domain.TimelineEvent
	seq   uint64
}

// timelineRepositoryInMemory держит историю каждого заказа отдельным срезом.
type timelineRepositoryInMemory struct {
	mu      sync.RWMutex
	seq     uint64
	byOrder map[string][]timelineEntry
}

// NewTimelineRepository создаёт in-memory реализацию TimelineRepository.
func NewTimelineRepository() domain.TimelineRepository {
	return &timelineRepositoryInMemory{byOrder: make(map[string][]timelineEntry)}
}

// Append сохраняет событие заказа. События с одинаковым временем
// остаются в порядке записи.
func (r *timelineRepositoryInMemory) Append(_ context.Context, event domain.TimelineEvent) error {
	if strings.TrimSpace(event.OrderID) == "" {
		return domain.ErrOrderNotFound
	}
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	entries := append(r.byOrder[event.OrderID], timelineEntry{event: event, seq: r.seq})
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].event.Occurred.Equal(entries[j].event.Occurred) {
			return entries[i].seq < entries[j].seq
		}
		return entries[i].event.Occurred.Before(entries[j].event.Occurred)
	})
	r.byOrder[event.OrderID] = entries
	return nil
}

func (r *timelineRepositoryInMemory) List(_ context.Context, orderID string) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.byOrder[orderID]
	events := make([]domain.TimelineEvent, 0, len(entries))
	for _, entry := range entries {
		events = append(events, entry.event)
	}
	return events, nil
}

var _ domain.TimelineRepository = (*timelineRepositoryInMemory)(nil)
