package translation

import (
	"context"
	"strings"
	"time"

	"github.com/MimeLyc/dualsub/internal/lang"
	"github.com/MimeLyc/dualsub/pkg/clock"
	"github.com/MimeLyc/dualsub/pkg/log"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Options tunes the cache and its generation queue.
type Options struct {
	// MinChars is the shortest normalized text (non-space runes) worth
	// translating.
	MinChars int
	// Debounce coalesces bursts of misses before a dispatch.
	Debounce time.Duration
	// MinGap is the global minimum time between two generation requests.
	MinGap time.Duration
	// PruneTarget is the local row count kept after a quota prune.
	PruneTarget int
	// Timeout bounds each store round trip and generation call.
	Timeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.MinChars < 1 {
		o.MinChars = 1
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	return o
}

// Deps are the collaborators of a Cache. Remote, Local and Generator may be
// nil. Without a Generator a miss is remembered until the next reset.
type Deps struct {
	Loop      Poster
	Clock     clock.Clock
	Remote    RemoteStore
	Local     LocalStore
	Generator Generator
	Lookups   *Lookups
}

type job struct {
	key Key
	qc  QueryContext
}

// Cache is the three-tier translation cache with its single-slot generation
// queue. It is not safe for concurrent use: every method must run on the
// loop given in Deps, which is also where all completions land.
type Cache struct {
	opts Options
	deps Deps

	memory   map[Key]Entry
	pending  map[Key]struct{}
	inflight map[Key]struct{}
	slot     *job

	debounceTimer clock.Timer
	gapTimer      clock.Timer
	lastDispatch  time.Time
	dispatched    bool

	epoch uint64
}

func NewCache(opts Options, deps Deps) *Cache {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Lookups == nil {
		deps.Lookups = NewLookups()
	}
	return &Cache{
		opts:     opts.withDefaults(),
		deps:     deps,
		memory:   make(map[Key]Entry),
		pending:  make(map[Key]struct{}),
		inflight: make(map[Key]struct{}),
	}
}

// SetMinChars changes the minimum length threshold.
func (c *Cache) SetMinChars(n int) {
	if n >= 1 {
		c.opts.MinChars = n
	}
}

// Query returns the best known translation of text and starts a background
// resolution on a miss. It never blocks.
func (c *Cache) Query(text string, qc QueryContext) Result {
	norm := lang.NormalizeText(text)
	if norm == "" {
		return Result{}
	}

	key := qc.Key(norm)
	if e, ok := c.memory[key]; ok {
		return Result{Text: e.Translation, Tier: e.Tier}
	}

	if lang.Equivalent(qc.SourceLang, qc.TargetLang) {
		c.memory[key] = Entry{Translation: norm, Tier: TierSkip, UpdatedAt: c.deps.Clock.Now()}
		return Result{Text: norm, Tier: TierSkip}
	}

	if lang.CharCount(norm) < c.opts.MinChars {
		return Result{}
	}

	if _, ok := c.pending[key]; ok {
		return Result{}
	}
	c.pending[key] = struct{}{}
	c.startLookup(key, qc)
	return Result{}
}

// Peek returns the memory entry for key without side effects.
func (c *Cache) Peek(key Key) (Entry, bool) {
	e, ok := c.memory[key]
	return e, ok
}

// Reset cancels timers, clears the queue slot and invalidates every
// outstanding lookup and generation. Memory entries survive unless
// dropMemory is set.
func (c *Cache) Reset(dropMemory bool) {
	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
		c.debounceTimer = nil
	}
	if c.gapTimer != nil {
		c.gapTimer.Stop()
		c.gapTimer = nil
	}
	c.slot = nil
	c.pending = make(map[Key]struct{})
	c.inflight = make(map[Key]struct{})
	if dropMemory {
		c.memory = make(map[Key]Entry)
	}
	c.epoch++
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	Memory   int    `json:"memory"`
	Pending  int    `json:"pending"`
	InFlight int    `json:"in_flight"`
	Queued   bool   `json:"queued"`
	Epoch    uint64 `json:"epoch"`
}

func (c *Cache) Stats() Stats {
	return Stats{
		Memory:   len(c.memory),
		Pending:  len(c.pending),
		InFlight: len(c.inflight),
		Queued:   c.slot != nil,
		Epoch:    c.epoch,
	}
}

func (c *Cache) startLookup(key Key, qc QueryContext) {
	epoch := c.epoch
	if c.deps.Remote == nil && c.deps.Local == nil {
		c.completeLookup(epoch, job{key: key, qc: qc}, lookupHit{})
		return
	}

	timeout := c.opts.Timeout
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		hit := c.deps.Lookups.find(ctx, key, c.deps.Remote, c.deps.Local)
		c.deps.Loop.Post(func() {
			c.completeLookup(epoch, job{key: key, qc: qc}, hit)
		})
	}()
}

func (c *Cache) completeLookup(epoch uint64, j job, hit lookupHit) {
	if epoch != c.epoch {
		log.Debug("Discarding stale lookup for %q", j.key.Text)
		return
	}

	if hit.found {
		delete(c.pending, j.key)
		if _, ok := c.memory[j.key]; !ok {
			c.memory[j.key] = Entry{
				Translation: hit.record.Translation,
				Tier:        hit.tier,
				UpdatedAt:   hit.record.UpdatedAt,
			}
		}
		return
	}

	if c.deps.Generator == nil {
		return
	}
	c.enqueue(j)
}

func (c *Cache) enqueue(j job) {
	if _, ok := c.inflight[j.key]; ok {
		return
	}
	if c.slot != nil && c.slot.key != j.key {
		// The overwritten key gets a fresh lookup on its next query.
		delete(c.pending, c.slot.key)
		log.Debug("Queue slot overwritten: %q replaced by %q", c.slot.key.Text, j.key.Text)
	}
	c.slot = &j

	if c.opts.Debounce <= 0 {
		c.tryDispatch()
		return
	}

	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
	}
	epoch := c.epoch
	var timer clock.Timer
	timer = c.deps.Clock.AfterFunc(c.opts.Debounce, func() {
		c.deps.Loop.Post(func() {
			// A callback posted before the timer was re-armed is stale.
			if epoch != c.epoch || c.debounceTimer != timer {
				return
			}
			c.debounceTimer = nil
			c.tryDispatch()
		})
	})
	c.debounceTimer = timer
}

// tryDispatch sends the slot's request if the global gap has elapsed,
// otherwise it waits out the remainder. The slot is never dropped here.
func (c *Cache) tryDispatch() {
	if c.slot == nil || c.gapTimer != nil {
		return
	}

	now := c.deps.Clock.Now()
	if c.dispatched {
		if wait := c.lastDispatch.Add(c.opts.MinGap).Sub(now); wait > 0 {
			epoch := c.epoch
			c.gapTimer = c.deps.Clock.AfterFunc(wait, func() {
				c.deps.Loop.Post(func() {
					if epoch != c.epoch {
						return
					}
					c.gapTimer = nil
					c.tryDispatch()
				})
			})
			return
		}
	}

	j := *c.slot
	c.slot = nil
	c.lastDispatch = now
	c.dispatched = true
	c.inflight[j.key] = struct{}{}
	c.generate(j)
}

func (c *Cache) generate(j job) {
	epoch := c.epoch
	gc := GenerateContext{
		VideoID:    j.qc.VideoID,
		Model:      j.qc.Model,
		SourceLang: j.qc.SourceLang,
		TargetLang: j.qc.TargetLang,
	}

	timeout := c.opts.Timeout
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		var res fn.Result[string]
		text, err := c.deps.Generator.Generate(ctx, j.key.Text, gc)
		if err != nil {
			res = fn.Err[string](err)
		} else {
			res = fn.Ok(text)
		}

		c.deps.Loop.Post(func() {
			c.completeGeneration(epoch, j, res)
		})
	}()
}

func (c *Cache) completeGeneration(epoch uint64, j job, res fn.Result[string]) {
	if epoch != c.epoch {
		log.Debug("Discarding stale generation for %q", j.key.Text)
		return
	}

	delete(c.inflight, j.key)
	delete(c.pending, j.key)

	text, err := res.Unpack()
	if err != nil {
		log.Warn("Generation failed for %q: %v", j.key.Text, err)
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		log.Warn("Generation returned nothing for %q", j.key.Text)
		return
	}

	now := c.deps.Clock.Now()
	if _, ok := c.memory[j.key]; !ok {
		c.memory[j.key] = Entry{Translation: text, Tier: TierMemory, UpdatedAt: now}
	}

	c.persist(Record{
		ID:          uuid.NewString(),
		Key:         j.key,
		Translation: text,
		Provider:    j.qc.Provider,
		UpdatedAt:   now,
	})
}

// persist writes a generated record to both persistent tiers off the loop.
// Failures are logged only.
func (c *Cache) persist(rec Record) {
	remote, local := c.deps.Remote, c.deps.Local
	if remote == nil && local == nil {
		return
	}
	target, timeout := c.opts.PruneTarget, c.opts.Timeout

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if remote != nil {
			if err := remote.Upsert(ctx, rec); err != nil {
				log.Warn("Remote upsert failed for %q: %v", rec.Key.Text, err)
			}
		}
		if local != nil {
			if err := StoreWithPrune(ctx, local, rec, target); err != nil {
				log.Warn("Local write dropped for %q: %v", rec.Key.Text, err)
			}
		}
	}()
}
