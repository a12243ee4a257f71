package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gastos/internal/core"
	"gastos/internal/records"
)

var _ records.Store = (*Store)(nil)
var _ records.RecordWriter = (*Store)(nil)

// Store keeps records, delivery marks and the chat binding in memory.
type Store struct {
	mu      sync.Mutex
	items   []core.Record
	marks   map[string]core.DeliveryMark
	binding *core.ChatBinding
}

func New(seed ...core.Record) *Store {
	s := &Store{marks: make(map[string]core.DeliveryMark)}
	s.items = append(s.items, seed...)
	return s
}

// NewFromFiles seeds the store from base/seed_records.txt. Each line is
// createdAt|category|amount|description|contributor; blank lines and lines
// starting with # are skipped, as are lines that do not parse.
func NewFromFiles(base string) *Store {
	var seed []core.Record
	for i, line := range readLines(filepath.Join(base, "seed_records.txt")) {
		r, err := parseSeedLine(line)
		if err != nil {
			continue
		}
		r.ID = fmt.Sprintf("seed:%d", i+1)
		seed = append(seed, r)
	}
	return New(seed...)
}

// AddRecord stores the record and assigns an id when it has none.
func (s *Store) AddRecord(_ context.Context, r core.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = fmt.Sprintf("mem:%d", len(s.items)+1)
	}
	s.items = append(s.items, r)
	return nil
}

// FetchRecords returns records created within [start, end], oldest first.
func (s *Store) FetchRecords(ctx context.Context, start, end time.Time) ([]core.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Record, 0, len(s.items))
	for _, r := range s.items {
		if r.CreatedAt.Before(start) || r.CreatedAt.After(end) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) LastDelivery(_ context.Context, periodKey string) (core.DeliveryMark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.marks[periodKey]
	if !ok {
		return core.DeliveryMark{}, records.ErrNotFound
	}
	return m, nil
}

func (s *Store) MarkDelivered(_ context.Context, mark core.DeliveryMark) error {
	if err := mark.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marks[mark.PeriodKey] = mark
	return nil
}

func (s *Store) ClaimDelivery(_ context.Context, mark core.DeliveryMark) (bool, error) {
	if err := mark.Validate(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.marks[mark.PeriodKey]; ok {
		return false, nil
	}
	s.marks[mark.PeriodKey] = mark
	return true, nil
}

func (s *Store) ReleaseDelivery(_ context.Context, periodKey, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.marks[periodKey]; ok && m.Claimed() && m.RunID == runID {
		delete(s.marks, periodKey)
	}
	return nil
}

func (s *Store) ChatBinding(_ context.Context) (core.ChatBinding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.binding == nil {
		return core.ChatBinding{}, records.ErrNotFound
	}
	return *s.binding, nil
}

func (s *Store) SaveChatBinding(_ context.Context, b core.ChatBinding) error {
	if err := b.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.binding = &b
	return nil
}

func parseSeedLine(line string) (core.Record, error) {
	parts := strings.Split(line, "|")
	if len(parts) < 3 {
		return core.Record{}, fmt.Errorf("want at least 3 fields, got %d", len(parts))
	}
	created, err := time.Parse(time.RFC3339, strings.TrimSpace(parts[0]))
	if err != nil {
		return core.Record{}, err
	}
	r := core.Record{
		Category:  core.Category(strings.TrimSpace(parts[1])),
		Amount:    core.CoerceAmount(strings.TrimSpace(parts[2])),
		CreatedAt: created,
	}
	if len(parts) > 3 {
		r.Description = strings.TrimSpace(parts[3])
	}
	if len(parts) > 4 {
		r.Contributor.Name = strings.TrimSpace(parts[4])
	}
	return r, r.Validate()
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
