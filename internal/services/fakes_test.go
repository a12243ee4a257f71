package services

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"gastos/internal/core"
	"gastos/internal/records"
)

type fetchFunc func(ctx context.Context, start, end time.Time) ([]core.Record, error)

func (f fetchFunc) FetchRecords(ctx context.Context, start, end time.Time) ([]core.Record, error) {
	return f(ctx, start, end)
}

// countingReader wraps a reader and counts fetches.
type countingReader struct {
	mu    sync.Mutex
	next  records.RecordReader
	calls int
}

func (c *countingReader) FetchRecords(ctx context.Context, start, end time.Time) ([]core.Record, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.next.FetchRecords(ctx, start, end)
}

func (c *countingReader) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeRenderer struct {
	mu      sync.Mutex
	calls   int
	labels  []string
	err     error
	block   bool
	panics  bool
	entered chan struct{}
	release chan struct{}
}

func (r *fakeRenderer) Render(ctx context.Context, agg core.Aggregation, label string) ([]byte, error) {
	r.mu.Lock()
	r.calls++
	r.labels = append(r.labels, label)
	r.mu.Unlock()

	if r.entered != nil {
		r.entered <- struct{}{}
		<-r.release
	}
	switch {
	case r.panics:
		panic("raster backend exploded")
	case r.block:
		<-ctx.Done()
		return nil, ctx.Err()
	case r.err != nil:
		return nil, r.err
	}
	return []byte("\x89PNG\r\n\x1a\nfake"), nil
}

func (r *fakeRenderer) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type sentMessage struct {
	ChatID  int64
	Text    string
	Photo   []byte
	Caption string
}

type fakeSender struct {
	mu       sync.Mutex
	texts    []sentMessage
	photos   []sentMessage
	textErr  error
	photoErr error
}

func (s *fakeSender) SendText(_ context.Context, chatID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.textErr != nil {
		return s.textErr
	}
	s.texts = append(s.texts, sentMessage{ChatID: chatID, Text: text})
	return nil
}

func (s *fakeSender) SendPhoto(_ context.Context, chatID int64, png []byte, caption string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.photoErr != nil {
		return s.photoErr
	}
	s.photos = append(s.photos, sentMessage{ChatID: chatID, Photo: png, Caption: caption})
	return nil
}

func (s *fakeSender) Texts() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.texts...)
}

func (s *fakeSender) Photos() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.photos...)
}

type fakeArchive struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (a *fakeArchive) ArchiveChart(_ context.Context, periodKey, runID string, _ []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, periodKey+"/"+runID)
	return a.err
}

func record(cat core.Category, amount string, createdAt time.Time, who string) core.Record {
	return core.Record{
		ID:          string(cat) + "-" + amount,
		Category:    cat,
		Amount:      decimal.RequireFromString(amount),
		Contributor: core.Contributor{Name: who},
		CreatedAt:   createdAt,
	}
}

func jan(day int) time.Time {
	return time.Date(2024, 1, day, 12, 0, 0, 0, time.UTC)
}

func feb(day int) time.Time {
	return time.Date(2024, 2, day, 12, 0, 0, 0, time.UTC)
}

// januaryRecords is the Food/Transport/Unknown scenario: totals 10, 5 and
// a grand total of 18.
func januaryRecords() []core.Record {
	return []core.Record{
		record(core.CategoryFood, "10", jan(5), "Ana"),
		record(core.CategoryTransport, "5", jan(10), "Luis"),
		record("Desconocida", "3", jan(20), "Ana"),
	}
}
