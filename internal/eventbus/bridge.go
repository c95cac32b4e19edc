package eventbus

import (
	"context"
	"time"

	"github.com/annel0/voxel-world/internal/logging"
)

// Bridge пересылает события локальной шины во внешнюю. Публикация в
// локальную шину не ждёт брокера: пересылка идёт в горутине подписчика.
type Bridge struct {
	sub     Subscription
	remote  EventBus
	timeout time.Duration
	logger  *logging.Logger
}

// NewBridge подписывается на local и пересылает подходящие события в remote
func NewBridge(local, remote EventBus, f Filter, timeout time.Duration) (*Bridge, error) {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	b := &Bridge{remote: remote, timeout: timeout, logger: logging.GetComponentLogger("eventbus")}
	sub, err := local.Subscribe(context.Background(), f, b.forward)
	if err != nil {
		return nil, err
	}
	b.sub = sub
	return b, nil
}

func (b *Bridge) forward(ctx context.Context, ev *Envelope) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	if err := b.remote.Publish(ctx, ev); err != nil {
		b.logger.Warn("Bridge: событие %s (%s) не переслано: %v", ev.ID, ev.EventType, err)
	}
}

// Stop прекращает пересылку
func (b *Bridge) Stop() { b.sub.Unsubscribe() }
