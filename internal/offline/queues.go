package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/krishishift/mandistream/internal/kv"
	"github.com/krishishift/mandistream/internal/metrics"
	"github.com/krishishift/mandistream/pkg/logger"
)

// Named sync queues and the endpoints their batches POST to. Each queue
// flushes in a single batch and is cleared only on a successful response,
// giving at-least-once delivery; dedup is the server's job, keyed on
// request content.
const (
	QueuePriceAlerts   = "price-alerts"
	QueueTransactions  = "offline-transactions"
	QueueAnalytics     = "user-analytics"
	QueueNotifications = "notification-queue"
)

// QueueNames returns the known queue names in a fixed order.
func QueueNames() []string {
	return []string{QueuePriceAlerts, QueueTransactions, QueueAnalytics, QueueNotifications}
}

var queueEndpoints = map[string]string{
	QueuePriceAlerts:   "/api/alerts/sync",
	QueueTransactions:  "/api/transactions/sync",
	QueueAnalytics:     "/api/analytics/sync",
	QueueNotifications: "/api/notifications/sync",
}

const queueKeyPrefix = "queue:"

// SyncQueues buffers actions performed while offline and flushes them
// opportunistically.
type SyncQueues struct {
	kv         kv.Store
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger
}

// NewSyncQueues creates the queue manager. httpClient should be the bare
// client: flushes must reach the network directly, not loop back through
// the caching layer.
func NewSyncQueues(store kv.Store, baseURL string, httpClient *http.Client, log *logger.Logger) *SyncQueues {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if log == nil {
		log = logger.NewDefault("sync")
	}
	return &SyncQueues{kv: store, baseURL: baseURL, httpClient: httpClient, log: log}
}

// Enqueue appends one action to the named queue.
func (s *SyncQueues) Enqueue(ctx context.Context, queue string, action any) error {
	if _, ok := queueEndpoints[queue]; !ok {
		return fmt.Errorf("unknown sync queue %q", queue)
	}
	data, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("encode queued action: %w", err)
	}
	return s.kv.Append(ctx, queueKeyPrefix+queue, data)
}

// Pending returns the number of actions waiting in the named queue.
func (s *SyncQueues) Pending(ctx context.Context, queue string) (int, error) {
	items, err := s.kv.List(ctx, queueKeyPrefix+queue)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// FlushAll flushes every named queue. A failed queue stays intact for the
// next trigger; other queues still flush.
func (s *SyncQueues) FlushAll(ctx context.Context) {
	for queue := range queueEndpoints {
		if err := s.Flush(ctx, queue); err != nil {
			s.log.WithError(err).Warn("queue flush failed", "queue", queue)
		}
	}
}

// Flush POSTs the named queue's contents as one batch and clears the queue
// only when the server accepts it.
func (s *SyncQueues) Flush(ctx context.Context, queue string) error {
	endpoint, ok := queueEndpoints[queue]
	if !ok {
		return fmt.Errorf("unknown sync queue %q", queue)
	}

	items, err := s.kv.List(ctx, queueKeyPrefix+queue)
	if err != nil {
		return fmt.Errorf("read queue: %w", err)
	}
	if len(items) == 0 {
		return nil
	}

	batch := make([]json.RawMessage, len(items))
	for i, item := range items {
		batch[i] = json.RawMessage(item)
	}
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create flush request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		metrics.QueueFlushes.WithLabelValues(queue, "network_error").Inc()
		return fmt.Errorf("flush %s: %w", queue, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.QueueFlushes.WithLabelValues(queue, "rejected").Inc()
		return fmt.Errorf("flush %s rejected with status %d", queue, resp.StatusCode)
	}

	if _, err := s.kv.Drain(ctx, queueKeyPrefix+queue); err != nil {
		return fmt.Errorf("clear queue after flush: %w", err)
	}
	metrics.QueueFlushes.WithLabelValues(queue, "ok").Inc()
	s.log.Info("queue flushed", "queue", queue, "actions", len(items))
	return nil
}
