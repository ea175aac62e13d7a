package notifier

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// setupConsumer sets up the RabbitMQ consumer with QoS and returns the
// delivery channel.
func (n *Notifier) setupConsumer() (<-chan amqp.Delivery, error) {
	channel := n.rabbitClient.GetChannel()
	if channel == nil {
		return nil, fmt.Errorf("rabbitmq channel is nil")
	}

	// Per-consumer prefetch; unacked messages above this are not delivered.
	if err := channel.Qos(n.prefetchCount, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	n.logger.Info("RabbitMQ QoS configured",
		slog.Int("prefetch_count", n.prefetchCount),
	)

	deliveries, err := n.rabbitClient.Consume(n.consumerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	return deliveries, nil
}

// dispatch forwards deliveries to the pool until the context ends or the
// delivery channel closes.
func (n *Notifier) dispatch(ctx context.Context, deliveries <-chan amqp.Delivery) {
	n.logger.Info("Event dispatcher started",
		slog.String("consumer_id", n.consumerID),
	)

	for {
		select {
		case <-ctx.Done():
			n.logger.Info("Event dispatcher stopped - context canceled")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				n.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			msg := &eventMessage{
				Body:        delivery.Body,
				DeliveryTag: delivery.DeliveryTag,
			}

			select {
			case n.eventsChan <- msg:
				n.logger.Debug("Event dispatched to pool",
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				n.logger.Info("Event dispatcher stopped while dispatching")
				// Requeue so another consumer picks it up.
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					n.logger.Error("Failed to NACK message on shutdown",
						slog.String("error", nackErr.Error()),
					)
				}
				return
			}
		}
	}
}
