package digest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/edgard/chatdigest/internal/errs"
	"github.com/edgard/chatdigest/internal/metrics"
)

// Defaults for Options fields left at zero.
const (
	DefaultWindow          = 24 * time.Hour
	DefaultMaxLength       = 3800
	DefaultRetentionDays   = 14
	DefaultStoreTimeout    = 30 * time.Second
	DefaultDeliveryTimeout = 10 * time.Second
)

// ErrRunInProgress is returned by Run when another run has not finished yet.
var ErrRunInProgress = errors.New("digest run already in progress")

// ConversationStore is the part of the message store the dispatcher drives.
type ConversationStore interface {
	ActiveConversations(ctx context.Context, since time.Time) ([]int64, error)
	PruneOlderThan(ctx context.Context, retentionDays int) (int64, error)
}

// ChatSummarizer produces the digest of one conversation.
type ChatSummarizer interface {
	Aggregate(ctx context.Context, chatID int64, since time.Time) (Result, bool, error)
}

// Deliverer sends a digest back to its conversation.
type Deliverer interface {
	Deliver(ctx context.Context, chatID int64, text string) error
}

// Options tunes a Dispatcher.
type Options struct {
	Window          time.Duration
	MaxLength       int
	RetentionDays   int
	StoreTimeout    time.Duration
	DeliveryTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	if o.MaxLength <= 0 {
		o.MaxLength = DefaultMaxLength
	}
	if o.RetentionDays <= 0 {
		o.RetentionDays = DefaultRetentionDays
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = DefaultStoreTimeout
	}
	if o.DeliveryTimeout <= 0 {
		o.DeliveryTimeout = DefaultDeliveryTimeout
	}
	return o
}

// Report summarizes one completed run.
type Report struct {
	Since         time.Time
	Conversations int
	Delivered     int
	Empty         int
	Failed        int
	Pruned        int64
	PruneErr      error
	Duration      time.Duration
}

// Dispatcher runs the daily digest: every active conversation is summarized
// and delivered in turn, then old messages are pruned. At most one run is in
// flight at a time.
type Dispatcher struct {
	store     ConversationStore
	summaries ChatSummarizer
	deliverer Deliverer
	clock     clockwork.Clock
	opts      Options
	logger    *slog.Logger

	running atomic.Bool
}

// NewDispatcher creates a Dispatcher. A nil clock means the real clock.
func NewDispatcher(
	store ConversationStore,
	summaries ChatSummarizer,
	deliverer Deliverer,
	clock clockwork.Clock,
	opts Options,
	logger *slog.Logger,
) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Dispatcher{
		store:     store,
		summaries: summaries,
		deliverer: deliverer,
		clock:     clock,
		opts:      opts.withDefaults(),
		logger:    logger.With("component", "digest_dispatcher"),
	}
}

// Running reports whether a run is in flight.
func (d *Dispatcher) Running() bool {
	return d.running.Load()
}

// Run performs one daily run. It returns ErrRunInProgress immediately if a
// run is already active. Once started, a run is not cancelled by ctx; every
// conversation is attempted and pruning is always attempted. The returned
// error is non-nil only when the conversation list itself could not be read.
func (d *Dispatcher) Run(ctx context.Context) (Report, error) {
	if !d.running.CompareAndSwap(false, true) {
		d.logger.WarnContext(ctx, "Digest run skipped, previous run still in progress")
		metrics.RunsTotal.WithLabelValues("skipped").Inc()
		return Report{}, ErrRunInProgress
	}
	defer d.running.Store(false)

	ctx = context.WithoutCancel(ctx)
	startTime := d.clock.Now()
	report := Report{Since: startTime.UTC().Add(-d.opts.Window)}
	log := d.logger.With("since", report.Since)

	log.InfoContext(ctx, "Starting digest run", "window", d.opts.Window)

	chatIDs, listErr := d.activeConversations(ctx, report.Since)
	if listErr != nil {
		log.ErrorContext(ctx, "Failed to list active conversations", "error", listErr)
	}
	report.Conversations = len(chatIDs)

	for _, chatID := range chatIDs {
		delivered, err := d.dispatchOne(ctx, chatID, report.Since)
		switch {
		case err != nil:
			report.Failed++
		case delivered:
			report.Delivered++
		default:
			report.Empty++
		}
	}

	report.Pruned, report.PruneErr = d.prune(ctx)
	report.Duration = d.clock.Since(startTime)

	metrics.RunsTotal.WithLabelValues("completed").Inc()
	metrics.RunDuration.Observe(report.Duration.Seconds())

	log.InfoContext(ctx, "Digest run finished",
		"conversations", report.Conversations,
		"delivered", report.Delivered,
		"empty", report.Empty,
		"failed", report.Failed,
		"pruned", report.Pruned,
		"duration", report.Duration)

	if listErr != nil {
		return report, fmt.Errorf("digest run: %w", listErr)
	}
	return report, nil
}

func (d *Dispatcher) activeConversations(ctx context.Context, since time.Time) ([]int64, error) {
	listCtx, cancel := context.WithTimeout(ctx, d.opts.StoreTimeout)
	defer cancel()
	return d.store.ActiveConversations(listCtx, since)
}

// dispatchOne summarizes and delivers a single conversation. Errors are
// logged here; the caller only counts them.
func (d *Dispatcher) dispatchOne(ctx context.Context, chatID int64, since time.Time) (bool, error) {
	log := d.logger.With("chat_id", chatID)

	res, ok, err := d.summaries.Aggregate(ctx, chatID, since)
	if err != nil {
		log.ErrorContext(ctx, "Digest generation failed", "error", err, "code", errs.Code(err))
		metrics.DigestFailures.WithLabelValues("aggregate", errs.Code(err)).Inc()
		return false, err
	}
	if !ok {
		log.InfoContext(ctx, "Nothing to deliver")
		return false, nil
	}

	text := Truncate(res.Text(), d.opts.MaxLength)

	deliverCtx, cancel := context.WithTimeout(ctx, d.opts.DeliveryTimeout)
	defer cancel()

	if err := d.deliverer.Deliver(deliverCtx, chatID, text); err != nil {
		if !errors.As(err, new(*errs.DeliveryError)) {
			err = errs.NewDeliveryError(chatID, "failed to deliver digest", err)
		}
		log.ErrorContext(ctx, "Digest delivery failed", "error", err)
		metrics.DigestFailures.WithLabelValues("deliver", errs.Code(err)).Inc()
		return false, err
	}

	kind := "single"
	if res.IsMerged() {
		kind = "merged"
	}
	metrics.DigestsDelivered.WithLabelValues(kind).Inc()
	log.InfoContext(ctx, "Digest delivered", "kind", kind, "length", len([]rune(text)))
	return true, nil
}

func (d *Dispatcher) prune(ctx context.Context) (int64, error) {
	pruneCtx, cancel := context.WithTimeout(ctx, d.opts.StoreTimeout)
	defer cancel()

	deleted, err := d.store.PruneOlderThan(pruneCtx, d.opts.RetentionDays)
	if err != nil {
		d.logger.ErrorContext(ctx, "Retention pruning failed", "retention_days", d.opts.RetentionDays, "error", err)
		return 0, err
	}
	metrics.MessagesPruned.Add(float64(deleted))
	if deleted > 0 {
		d.logger.InfoContext(ctx, "Removed old messages", "deleted", deleted, "retention_days", d.opts.RetentionDays)
	}
	return deleted, nil
}

// Truncate cuts text to at most max runes.
func Truncate(text string, max int) string {
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
