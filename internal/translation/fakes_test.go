package translation

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/MimeLyc/dualsub/internal/apperr"
	"github.com/MimeLyc/dualsub/pkg/clock"
)

// testLoop runs posted closures on the test goroutine.
type testLoop struct {
	tasks chan func()
}

func newTestLoop() *testLoop {
	return &testLoop{tasks: make(chan func(), 1024)}
}

func (l *testLoop) Post(f func()) {
	l.tasks <- f
}

func (l *testLoop) drain() {
	for {
		select {
		case f := <-l.tasks:
			f()
		default:
			return
		}
	}
}

// waitFor runs posted closures until cond holds.
func (l *testLoop) waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		select {
		case f := <-l.tasks:
			f()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// settle gives background goroutines a moment and runs whatever they posted.
func (l *testLoop) settle() {
	for i := 0; i < 5; i++ {
		time.Sleep(5 * time.Millisecond)
		l.drain()
	}
}

type fakeLocal struct {
	mu       sync.Mutex
	records  map[string]Record
	capacity int
	gets     int
	puts     int
	prunes   int
	gate     chan struct{}
}

func newFakeLocal() *fakeLocal {
	return &fakeLocal{records: make(map[string]Record)}
}

func (s *fakeLocal) Get(ctx context.Context, key Key) (Record, bool, error) {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	rec, ok := s.records[key.Hash()]
	return rec, ok, nil
}

func (s *fakeLocal) Put(ctx context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if _, exists := s.records[record.Key.Hash()]; !exists && s.capacity > 0 && len(s.records) >= s.capacity {
		return apperr.QuotaExceeded("local store full")
	}
	s.records[record.Key.Hash()] = record
	return nil
}

func (s *fakeLocal) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records), nil
}

func (s *fakeLocal) PruneOldest(ctx context.Context, n int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prunes++

	all := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedAt.Before(all[j].UpdatedAt) })
	if n > len(all) {
		n = len(all)
	}
	for _, r := range all[:n] {
		delete(s.records, r.Key.Hash())
	}
	return n, nil
}

func (s *fakeLocal) snapshot() (gets, puts, prunes, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets, s.puts, s.prunes, len(s.records)
}

type fakeRemote struct {
	mu      sync.Mutex
	records map[string]Record
	finds   int
	upserts int
	err     error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{records: make(map[string]Record)}
}

func (s *fakeRemote) Find(ctx context.Context, key Key) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finds++
	if s.err != nil {
		return Record{}, false, s.err
	}
	rec, ok := s.records[key.Hash()]
	return rec, ok, nil
}

func (s *fakeRemote) Upsert(ctx context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if s.err != nil {
		return s.err
	}
	s.records[record.Key.Hash()] = record
	return nil
}

func (s *fakeRemote) counts() (finds, upserts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finds, s.upserts
}

type genCall struct {
	text string
	at   time.Time
}

type fakeGenerator struct {
	mu    sync.Mutex
	clock clock.Clock
	calls []genCall
	errs  []error
	gate  chan struct{}
}

func (g *fakeGenerator) Generate(ctx context.Context, text string, gc GenerateContext) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, genCall{text: text, at: g.clock.Now()})
	var err error
	if len(g.errs) > 0 {
		err, g.errs = g.errs[0], g.errs[1:]
	}
	gate := g.gate
	g.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return "", err
	}
	return "T(" + text + ")", nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (g *fakeGenerator) call(i int) genCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[i]
}
