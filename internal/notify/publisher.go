package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/thetact/tact-backend/pkg/messagequeue"
)

const dispatchTimeout = 30 * time.Second

// InlineNotifier dispatches events in background goroutines of the current process.
type InlineNotifier struct {
	dispatcher *Dispatcher
	logger     *zap.Logger
	wg         sync.WaitGroup
}

// NewInlineNotifier creates an InlineNotifier.
func NewInlineNotifier(dispatcher *Dispatcher, logger *zap.Logger) *InlineNotifier {
	return &InlineNotifier{dispatcher: dispatcher, logger: logger}
}

// Notify sends the event without blocking the caller. The send outlives the request context.
func (n *InlineNotifier) Notify(ctx context.Context, event Event) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
		defer cancel()
		if err := n.dispatcher.Dispatch(sendCtx, event); err != nil {
			n.logger.Error("Failed to deliver notification",
				zap.String("type", string(event.Type)),
				zap.String("subscriber_id", event.SubscriberID),
				zap.String("order_reference", event.OrderReference),
				zap.Error(err))
		}
	}()
}

// Wait blocks until every pending send has finished.
func (n *InlineNotifier) Wait() {
	n.wg.Wait()
}

// QueueNotifier publishes events to a message queue for a consumer to dispatch.
type QueueNotifier struct {
	mq     messagequeue.MessageQueue
	queue  string
	logger *zap.Logger
}

// NewQueueNotifier creates a QueueNotifier publishing to queue.
func NewQueueNotifier(mq messagequeue.MessageQueue, queue string, logger *zap.Logger) *QueueNotifier {
	return &QueueNotifier{mq: mq, queue: queue, logger: logger}
}

// Notify publishes the event as JSON. Publish failures are logged.
func (n *QueueNotifier) Notify(ctx context.Context, event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("Failed to encode notification", zap.String("type", string(event.Type)), zap.Error(err))
		return
	}
	if err := n.mq.Publish(ctx, n.queue, body); err != nil {
		n.logger.Error("Failed to publish notification",
			zap.String("type", string(event.Type)),
			zap.String("queue", n.queue),
			zap.Error(err))
	}
}

// RunConsumer dispatches queued events until ctx is cancelled.
func RunConsumer(ctx context.Context, mq messagequeue.MessageQueue, queue string, dispatcher *Dispatcher, logger *zap.Logger) error {
	logger.Info("Starting notification consumer", zap.String("queue", queue))
	return mq.Consume(ctx, queue, func(ctx context.Context, body []byte) error {
		return HandleMessage(ctx, body, dispatcher, logger)
	})
}

// HandleMessage decodes and dispatches one queued event. Undecodable messages are
// acknowledged so they are not redelivered.
func HandleMessage(ctx context.Context, body []byte, dispatcher *Dispatcher, logger *zap.Logger) error {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil || event.Type == "" {
		logger.Error("Dropping undecodable notification", zap.ByteString("body", body), zap.Error(err))
		return nil
	}
	sendCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()
	if err := dispatcher.Dispatch(sendCtx, event); err != nil {
		logger.Error("Failed to deliver queued notification",
			zap.String("type", string(event.Type)),
			zap.String("subscriber_id", event.SubscriberID),
			zap.Error(err))
		return err
	}
	return nil
}
