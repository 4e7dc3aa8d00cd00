package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/caffe/internal/domain"
)

const defaultStaleAfter = 5 * time.Minute

// BacklogProbe сообщает об ошибке, если самое старое pending-событие ждёт
// публикации дольше staleAfter: брокер недоступен или worker остановлен.
func BacklogProbe(repo domain.OutboxRepository, staleAfter time.Duration) func(context.Context) error {
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	return func(ctx context.Context) error {
		if repo == nil {
			return nil
		}
		stats, err := repo.Stats(ctx)
		if err != nil {
			return fmt.Errorf("outbox stats: %w", err)
		}
		if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() {
			return nil
		}
		if age := time.Since(stats.OldestPendingAt); age > staleAfter {
			return fmt.Errorf("%d events pending, oldest for %s", stats.PendingCount, age.Truncate(time.Second))
		}
		return nil
	}
}
