// Package syncer implements the synchronization engine that drains the
// offline queue against the remote emergency endpoint.
//
// A drain delivers queued entries oldest-first. The first failed delivery
// stops the run: a failure usually means connectivity dropped again, and
// retrying later entries out of order would reorder an emergency feed.
// Delivered ids - and only those - are removed afterwards, so an entry is
// never dropped without a positive acknowledgment (at-least-once).
package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/dmoretti/lifeline/internal/logger"
	"github.com/dmoretti/lifeline/pkg/notify"
	"github.com/dmoretti/lifeline/pkg/queue"
)

// Trigger identifies what started a drain.
type Trigger string

const (
	TriggerOnline   Trigger = "online"   // offline->online edge
	TriggerInterval Trigger = "interval" // periodic schedule
	TriggerManual   Trigger = "manual"   // control channel / CLI
)

// SyncResult records one delivery attempt within a drain.
type SyncResult struct {
	ID        int64  `json:"id"`
	Delivered bool   `json:"delivered"`
	Error     string `json:"error,omitempty"`
}

// Report summarizes one drain run.
type Report struct {
	// Skipped is true when the trigger arrived while a drain was already
	// running and the run was elided.
	Skipped   bool         `json:"skipped,omitempty"`
	Trigger   Trigger      `json:"trigger"`
	Results   []SyncResult `json:"results,omitempty"`
	Delivered int          `json:"delivered"`
	Remaining int          `json:"remaining"`
}

// Metrics receives sync events. May be nil.
type Metrics interface {
	RecordDrain(trigger string)
	RecordDelivered(n int)
	RecordDeliveryFailure(reason string)
}

// Config holds engine configuration.
type Config struct {
	// Endpoint is the remote emergency endpoint URL.
	Endpoint string

	// Timeout bounds a single delivery attempt. Default 15s.
	Timeout time.Duration
}

// Engine drains the offline queue. At most one drain runs at a time;
// a trigger arriving mid-drain is a no-op (the next trigger picks up
// whatever was enqueued meanwhile).
type Engine struct {
	cfg      Config
	queue    *queue.Queue
	client   *http.Client
	notifier notify.Notifier
	metrics  Metrics

	draining atomic.Bool
}

// New creates a synchronization engine.
func New(cfg Config, q *queue.Queue, notifier notify.Notifier, m Metrics) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Engine{
		cfg:      cfg,
		queue:    q,
		client:   &http.Client{Timeout: cfg.Timeout},
		notifier: notifier,
		metrics:  m,
	}
}

// Drain runs one synchronization pass.
//
// It loads the full queue, attempts delivery in FIFO order, stops at the
// first failure, then removes exactly the delivered ids. The error return
// covers queue access only; per-entry delivery failures are reported in
// the Report and are not an error for the run.
func (e *Engine) Drain(ctx context.Context, trigger Trigger) (Report, error) {
	if !e.draining.CompareAndSwap(false, true) {
		logger.Debug("Drain already in flight, trigger ignored", logger.KeyTrigger, string(trigger))
		return Report{Skipped: true, Trigger: trigger}, nil
	}
	defer e.draining.Store(false)

	if e.metrics != nil {
		e.metrics.RecordDrain(string(trigger))
	}

	entries, err := e.queue.List(ctx)
	if err != nil {
		return Report{Trigger: trigger}, fmt.Errorf("failed to load queue for drain: %w", err)
	}
	if len(entries) == 0 {
		return Report{Trigger: trigger}, nil
	}

	logger.Info("Drain started",
		logger.KeyTrigger, string(trigger),
		logger.KeyQueueLen, len(entries),
		logger.KeyEndpoint, e.cfg.Endpoint)

	report := Report{Trigger: trigger}
	var delivered []int64

	for _, entry := range entries {
		err := e.deliver(ctx, entry.Payload)
		if err != nil {
			// Stop here: everything after this entry stays queued in
			// order for the next run.
			report.Results = append(report.Results, SyncResult{ID: entry.ID, Error: err.Error()})
			if e.metrics != nil {
				e.metrics.RecordDeliveryFailure(failureReason(err))
			}
			logger.Warn("Delivery failed, stopping drain",
				logger.KeyEntryID, entry.ID,
				"error", err)
			break
		}

		delivered = append(delivered, entry.ID)
		report.Results = append(report.Results, SyncResult{ID: entry.ID, Delivered: true})
		logger.Info("Queued alert delivered", logger.KeyEntryID, entry.ID)

		e.notifier.Notify(ctx, notify.Notification{
			Title: "Emergency alert delivered",
			Body:  "A queued emergency alert reached the authority.",
			Tag:   fmt.Sprintf("lifeline-delivered-%d", entry.ID),
		})
	}

	if len(delivered) > 0 {
		if err := e.queue.RemoveByIDs(ctx, delivered); err != nil {
			// Delivered entries stay queued and will be re-sent next run.
			// At-least-once: duplicates are preferred over loss.
			return report, fmt.Errorf("failed to reconcile delivered entries: %w", err)
		}
		if e.metrics != nil {
			e.metrics.RecordDelivered(len(delivered))
		}
	}

	report.Delivered = len(delivered)
	report.Remaining = len(entries) - len(delivered)

	logger.Info("Drain finished",
		logger.KeyTrigger, string(trigger),
		logger.KeyDelivered, report.Delivered,
		logger.KeyRemaining, report.Remaining)
	return report, nil
}

// deliver POSTs one payload to the remote endpoint. Any 2xx status is an
// acknowledgment; anything else leaves the entry queued.
func (e *Engine) deliver(ctx context.Context, payload json.RawMessage) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransientNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RemoteRejectionError{Status: resp.StatusCode}
	}
	return nil
}

func failureReason(err error) string {
	if IsRemoteRejection(err) {
		return "remote_rejection"
	}
	return "transient_network"
}
