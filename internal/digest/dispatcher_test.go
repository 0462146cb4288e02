package digest_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/edgard/chatdigest/internal/digest"
	"github.com/edgard/chatdigest/internal/errs"
)

type fakeStore struct {
	mu        sync.Mutex
	chats     []int64
	listErr   error
	pruneErr  error
	pruned    int64
	since     time.Time
	pruneDays []int
}

func (f *fakeStore) ActiveConversations(_ context.Context, since time.Time) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.since = since
	return f.chats, f.listErr
}

func (f *fakeStore) PruneOlderThan(_ context.Context, days int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruneDays = append(f.pruneDays, days)
	return f.pruned, f.pruneErr
}

type fakeSummarizer struct {
	results map[int64]digest.Result
	errs    map[int64]error
	block   chan struct{}
	started chan struct{}
}

func (f *fakeSummarizer) Aggregate(ctx context.Context, chatID int64, _ time.Time) (digest.Result, bool, error) {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if err, ok := f.errs[chatID]; ok {
		return digest.Result{}, false, err
	}
	res, ok := f.results[chatID]
	return res, ok, nil
}

type delivery struct {
	chatID int64
	text   string
}

type fakeDeliverer struct {
	mu        sync.Mutex
	delivered []delivery
	failFor   map[int64]bool
}

func (f *fakeDeliverer) Deliver(ctx context.Context, chatID int64, text string) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("delivery without deadline")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[chatID] {
		return errors.New("chat not found")
	}
	f.delivered = append(f.delivered, delivery{chatID, text})
	return nil
}

func TestDispatcher_Run(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(now)
	store := &fakeStore{chats: []int64{100, 200, 300, 400}, pruned: 5}
	summaries := &fakeSummarizer{
		results: map[int64]digest.Result{
			100: digest.Single("digest for 100"),
			200: digest.Merged([]digest.Section{
				{Label: "Основной чат", Text: "main"},
				{Label: "Тема 7", Text: "seven"},
			}),
			400: digest.Single("digest for 400"),
		},
		errs: map[int64]error{300: errs.NewSummarizationError("model down", nil)},
	}
	deliverer := &fakeDeliverer{}

	d := digest.NewDispatcher(store, summaries, deliverer, clock, digest.Options{}, nil)
	report, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	wantSince := now.Add(-24 * time.Hour)
	if !store.since.Equal(wantSince) || !report.Since.Equal(wantSince) {
		t.Errorf("since = %v (report %v), want %v", store.since, report.Since, wantSince)
	}
	if report.Conversations != 4 || report.Delivered != 3 || report.Failed != 1 || report.Pruned != 5 {
		t.Errorf("report = %+v", report)
	}

	if len(deliverer.delivered) != 3 {
		t.Fatalf("delivered %d digests, want 3", len(deliverer.delivered))
	}
	if deliverer.delivered[0] != (delivery{100, "digest for 100"}) {
		t.Errorf("first delivery = %+v", deliverer.delivered[0])
	}
	if !strings.Contains(deliverer.delivered[1].text, "🔖 **Тема 7**\nseven") {
		t.Errorf("merged delivery = %q", deliverer.delivered[1].text)
	}
	if deliverer.delivered[2].chatID != 400 {
		t.Errorf("conversation after a failure was not delivered: %+v", deliverer.delivered)
	}

	if len(store.pruneDays) != 1 || store.pruneDays[0] != 14 {
		t.Errorf("prune calls = %v, want one call with 14 days", store.pruneDays)
	}
	if d.Running() {
		t.Error("dispatcher still running after Run returned")
	}
}

func TestDispatcher_Truncates(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("дайджест ", 1000)
	store := &fakeStore{chats: []int64{1}}
	summaries := &fakeSummarizer{results: map[int64]digest.Result{1: digest.Single(long)}}
	deliverer := &fakeDeliverer{}

	d := digest.NewDispatcher(store, summaries, deliverer, clockwork.NewFakeClockAt(now), digest.Options{}, nil)
	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got := []rune(deliverer.delivered[0].text)
	if len(got) != digest.DefaultMaxLength {
		t.Errorf("delivered %d runes, want %d", len(got), digest.DefaultMaxLength)
	}
	if string(got) != string([]rune(long)[:digest.DefaultMaxLength]) {
		t.Error("truncated digest is not a prefix of the original")
	}
}

func TestDispatcher_DeliveryFailureDoesNotStopRun(t *testing.T) {
	t.Parallel()

	store := &fakeStore{chats: []int64{1, 2}}
	summaries := &fakeSummarizer{results: map[int64]digest.Result{
		1: digest.Single("one"),
		2: digest.Single("two"),
	}}
	deliverer := &fakeDeliverer{failFor: map[int64]bool{1: true}}

	d := digest.NewDispatcher(store, summaries, deliverer, clockwork.NewFakeClockAt(now), digest.Options{}, nil)
	report, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Failed != 1 || report.Delivered != 1 {
		t.Errorf("report = %+v, want 1 failed and 1 delivered", report)
	}
	if len(deliverer.delivered) != 1 || deliverer.delivered[0].chatID != 2 {
		t.Errorf("deliveries = %+v", deliverer.delivered)
	}
	if len(store.pruneDays) != 1 {
		t.Errorf("prune called %d times, want 1", len(store.pruneDays))
	}
}

func TestDispatcher_EmptyConversationNotDelivered(t *testing.T) {
	t.Parallel()

	store := &fakeStore{chats: []int64{1}}
	deliverer := &fakeDeliverer{}

	d := digest.NewDispatcher(store, &fakeSummarizer{}, deliverer, clockwork.NewFakeClockAt(now), digest.Options{}, nil)
	report, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Empty != 1 || len(deliverer.delivered) != 0 {
		t.Errorf("report = %+v, deliveries = %+v", report, deliverer.delivered)
	}
}

func TestDispatcher_PruneFailureDoesNotFailRun(t *testing.T) {
	t.Parallel()

	pruneErr := errs.NewStorageError("database is locked", nil)
	store := &fakeStore{pruneErr: pruneErr}

	d := digest.NewDispatcher(store, &fakeSummarizer{}, &fakeDeliverer{}, clockwork.NewFakeClockAt(now),
		digest.Options{RetentionDays: 30}, nil)
	report, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
	if !errors.Is(report.PruneErr, pruneErr) {
		t.Errorf("PruneErr = %v, want %v", report.PruneErr, pruneErr)
	}
	if len(store.pruneDays) != 1 || store.pruneDays[0] != 30 {
		t.Errorf("prune calls = %v, want [30]", store.pruneDays)
	}
}

func TestDispatcher_ListFailureStillPrunes(t *testing.T) {
	t.Parallel()

	store := &fakeStore{listErr: errs.NewStorageError("no such table", nil)}

	d := digest.NewDispatcher(store, &fakeSummarizer{}, &fakeDeliverer{}, clockwork.NewFakeClockAt(now), digest.Options{}, nil)
	_, err := d.Run(context.Background())
	if errs.Code(err) != errs.CodeStorage {
		t.Errorf("Run() error = %v, want a storage error", err)
	}
	if len(store.pruneDays) != 1 {
		t.Errorf("prune called %d times, want 1", len(store.pruneDays))
	}
}

func TestDispatcher_RejectsOverlappingRun(t *testing.T) {
	t.Parallel()

	store := &fakeStore{chats: []int64{1}}
	summaries := &fakeSummarizer{
		results: map[int64]digest.Result{1: digest.Single("one")},
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	deliverer := &fakeDeliverer{}
	d := digest.NewDispatcher(store, summaries, deliverer, clockwork.NewFakeClockAt(now), digest.Options{}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := d.Run(context.Background())
		done <- err
	}()

	<-summaries.started
	if !d.Running() {
		t.Error("Running() = false during a run")
	}
	if _, err := d.Run(context.Background()); !errors.Is(err, digest.ErrRunInProgress) {
		t.Errorf("second Run() error = %v, want ErrRunInProgress", err)
	}

	close(summaries.block)
	if err := <-done; err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if len(deliverer.delivered) != 1 {
		t.Errorf("delivered %d digests, want 1", len(deliverer.delivered))
	}
	if len(store.pruneDays) != 1 {
		t.Errorf("prune called %d times, want 1", len(store.pruneDays))
	}
}

func TestDispatcher_RunIgnoresCancelledParent(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := &fakeStore{chats: []int64{1}}
	deliverer := &fakeDeliverer{}
	summaries := &fakeSummarizer{results: map[int64]digest.Result{1: digest.Single("one")}}

	d := digest.NewDispatcher(store, summaries, deliverer, clockwork.NewFakeClockAt(now), digest.Options{}, nil)
	if _, err := d.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(deliverer.delivered) != 1 {
		t.Errorf("delivered %d digests after parent cancellation, want 1", len(deliverer.delivered))
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		max  int
		want string
	}{
		{"shorter", "abc", 5, "abc"},
		{"exact", "abcde", 5, "abcde"},
		{"longer", "abcdef", 5, "abcde"},
		{"multibyte", "привет мир", 6, "привет"},
		{"no limit", "abc", 0, "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := digest.Truncate(tt.text, tt.max); got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.text, tt.max, got, tt.want)
			}
		})
	}
}
