package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/propfix/propfix-be/shared/rabbitmq"
)

// Config holds notifier configuration
type Config struct {
	Logger        *slog.Logger
	Storage       EventStore
	RabbitClient  *rabbitmq.Client
	Concurrency   int
	QueueSize     int
	PrefetchCount int
}

// Notifier consumes assignment transition events and materializes them
// into per-recipient notification rows.
type Notifier struct {
	logger        *slog.Logger
	storage       EventStore
	rabbitClient  *rabbitmq.Client
	concurrency   int
	prefetchCount int
	consumerID    string
	eventsChan    chan *eventMessage
	wg            sync.WaitGroup
	stopChan      chan struct{}
}

// eventMessage pairs a decoded delivery with its tag for ack/nack.
type eventMessage struct {
	Body        []byte
	DeliveryTag uint64
}

// NewNotifier creates a new notifier instance
func NewNotifier(cfg *Config) *Notifier {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 2 * cfg.Concurrency
	}

	return &Notifier{
		logger:        cfg.Logger,
		storage:       cfg.Storage,
		rabbitClient:  cfg.RabbitClient,
		concurrency:   cfg.Concurrency,
		prefetchCount: cfg.PrefetchCount,
		consumerID:    fmt.Sprintf("notifier-%s", uuid.New().String()[:8]),
		eventsChan:    make(chan *eventMessage, queueSize),
		stopChan:      make(chan struct{}),
	}
}

// Start subscribes to the event queue and begins processing.
func (n *Notifier) Start(ctx context.Context) error {
	n.logger.Info("Starting notifier",
		slog.Int("concurrency", n.concurrency),
		slog.String("consumer_id", n.consumerID),
	)

	deliveries, err := n.setupConsumer()
	if err != nil {
		return fmt.Errorf("failed to setup consumer: %w", err)
	}

	n.spawnPool(ctx)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.dispatch(ctx, deliveries)
	}()

	<-ctx.Done()
	n.logger.Info("Notifier context canceled, stopping...")

	return nil
}

// Stop gracefully stops the notifier
func (n *Notifier) Stop() {
	n.logger.Info("Stopping notifier...")
	close(n.stopChan)
	n.wg.Wait()
	n.logger.Info("Notifier stopped")
}

// spawnPool spawns the processing goroutines.
func (n *Notifier) spawnPool(ctx context.Context) {
	n.logger.Info("Spawning notifier pool",
		slog.Int("concurrency", n.concurrency),
	)

	for i := 0; i < n.concurrency; i++ {
		n.wg.Add(1)
		go n.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each pool goroutine.
func (n *Notifier) workerLoop(ctx context.Context, workerNum int) {
	defer n.wg.Done()

	workerName := fmt.Sprintf("%s-%d", n.consumerID, workerNum)
	n.logger.Info("Notifier goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-n.stopChan:
			n.logger.Info("Notifier goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			n.logger.Info("Notifier goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case msg, ok := <-n.eventsChan:
			if !ok {
				return
			}

			err := n.processEvent(ctx, msg.Body)

			channel := n.rabbitClient.GetChannel()
			if channel == nil {
				n.logger.Error("Failed to get RabbitMQ channel for ACK/NACK",
					slog.String("worker_name", workerName),
				)
				continue
			}

			if err != nil {
				requeue := n.shouldRequeue(err)
				n.logger.Error("Event processing failed",
					slog.String("worker_name", workerName),
					slog.Bool("requeue", requeue),
					slog.String("error", err.Error()),
				)
				if nackErr := channel.Nack(msg.DeliveryTag, false, requeue); nackErr != nil {
					n.logger.Error("Failed to NACK message",
						slog.String("worker_name", workerName),
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}

			if ackErr := channel.Ack(msg.DeliveryTag, false); ackErr != nil {
				n.logger.Error("Failed to ACK message",
					slog.String("worker_name", workerName),
					slog.String("error", ackErr.Error()),
				)
			}
		}
	}
}
