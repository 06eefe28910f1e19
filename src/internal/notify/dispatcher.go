package notify

import (
	"context"
	"time"

	"github.com/ce-fello/barter-service/src/internal/model"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"go.uber.org/zap"
)

const deliveryTimeout = 5 * time.Second

type Sink interface {
	Deliver(ctx context.Context, n model.Notification) error
}

type NotificationWriter interface {
	CreateNotification(ctx context.Context, n model.Notification) error
}

// StoreSink persists notifications into the recipient's inbox.
type StoreSink struct {
	repo NotificationWriter
}

func NewStoreSink(repo NotificationWriter) *StoreSink {
	return &StoreSink{repo: repo}
}

func (s *StoreSink) Deliver(ctx context.Context, n model.Notification) error {
	return s.repo.CreateNotification(ctx, n)
}

// Dispatcher queues notifications and delivers them on a fixed pool of
// workers. Notify never blocks; a full queue drops the notification.
type Dispatcher struct {
	queue   chan model.Notification
	sink    Sink
	workers int
	log     *zap.Logger
	now     func() time.Time
}

func NewDispatcher(sink Sink, workers, queueSize int, logger *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Dispatcher{
		queue:   make(chan model.Notification, queueSize),
		sink:    sink,
		workers: workers,
		log:     logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (d *Dispatcher) Notify(_ context.Context, userID, event string, payload map[string]string) {
	n := model.Notification{
		ID:        uuid.New().String(),
		UserID:    userID,
		Event:     event,
		Payload:   payload,
		CreatedAt: d.now(),
	}
	select {
	case d.queue <- n:
		d.log.Debug("Notify: queued", zap.String("user_id", userID), zap.String("event", event))
	default:
		d.log.Warn("Notify: queue full, dropping", zap.String("user_id", userID), zap.String("event", event))
	}
}

// Run delivers queued notifications until ctx is cancelled, then drains what
// is already queued and returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info("notification dispatcher started", zap.Int("workers", d.workers), zap.Int("queue_size", cap(d.queue)))
	g := new(errgroup.Group)
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			d.work(ctx)
			return nil
		})
	}
	err := g.Wait()
	d.log.Info("notification dispatcher stopped")
	return err
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case n := <-d.queue:
			d.deliver(ctx, n)
		case <-ctx.Done():
			d.drain(context.WithoutCancel(ctx))
			return
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case n := <-d.queue:
			d.deliver(ctx, n)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n model.Notification) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
	defer cancel()
	if err := d.sink.Deliver(ctx, n); err != nil {
		d.log.Error("deliver notification failed",
			zap.String("notification_id", n.ID),
			zap.String("user_id", n.UserID),
			zap.String("event", n.Event),
			zap.Error(err))
		return
	}
	d.log.Debug("deliver notification: success", zap.String("notification_id", n.ID), zap.String("user_id", n.UserID))
}
