package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"newsgraph/internal/content"
	"newsgraph/internal/logging"
	"newsgraph/internal/queue"
	"newsgraph/internal/services"
)

// Enqueue validates item, records it as queued and hands it to a worker
// without blocking. A full queue returns services.ErrBackpressure and the
// queued record is removed again. The request id is taken from ctx when
// present.
func (m *Manager) Enqueue(ctx context.Context, item *content.Item) error {
	if err := item.Validate(); err != nil {
		return err
	}
	if !m.isAccepting() {
		return services.Wrap(services.ErrShuttingDown, "workflow", "enqueue", "not accepting items", nil)
	}
	if m.queueFull() {
		return services.Wrap(services.ErrBackpressure, "workflow", "enqueue", fmt.Sprintf("queue at capacity %d", m.capacity), nil)
	}
	if item.ReceivedAt.IsZero() {
		item.ReceivedAt = time.Now().UTC()
	}
	requestID, ok := services.RequestIDFromContext(ctx)
	if !ok {
		requestID = uuid.NewString()
	}

	encoded, err := json.Marshal(item)
	if err != nil {
		return services.Wrap(services.ErrValidation, "workflow", "enqueue", "item not serializable", err)
	}
	record := &queue.Item{
		ID:         item.ID,
		Kind:       string(item.Kind),
		DocumentID: item.DocumentID(),
		ItemJSON:   string(encoded),
		RequestID:  requestID,
	}
	if err := m.store.Insert(ctx, record); err != nil {
		if errors.Is(err, queue.ErrDuplicate) {
			return err
		}
		return fmt.Errorf("record queued item: %w", err)
	}

	if err := m.offer(envelope{item: item, requestID: requestID}); err != nil {
		if delErr := m.store.Delete(context.WithoutCancel(ctx), item.ID); delErr != nil {
			m.logger.Warn("failed to remove rejected item record",
				logging.String(logging.FieldItemID, item.ID),
				logging.Error(delErr),
				logging.String(logging.FieldEventType, "enqueue_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
		}
		return err
	}

	logging.WithContext(services.WithItemID(services.WithRequestID(ctx, requestID), item.ID), m.logger).Info("item queued",
		logging.String(logging.FieldEventType, "item_queued"),
		logging.String("kind", string(item.Kind)),
		logging.String("document_id", item.DocumentID()),
	)
	return nil
}

// offer performs the non-blocking send. The read lock keeps Shutdown from
// closing the channel mid-send.
func (m *Manager) offer(env envelope) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.accepting {
		return services.Wrap(services.ErrShuttingDown, "workflow", "enqueue", "not accepting items", nil)
	}
	select {
	case m.queue <- env:
		return nil
	default:
		return services.Wrap(services.ErrBackpressure, "workflow", "enqueue", fmt.Sprintf("queue at capacity %d", m.capacity), nil)
	}
}

func (m *Manager) isAccepting() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accepting
}

func (m *Manager) queueFull() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queue != nil && len(m.queue) >= cap(m.queue)
}
