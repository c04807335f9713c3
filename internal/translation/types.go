package translation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Key identifies one cached translation. Text is the normalized source text.
type Key struct {
	VideoID    string `json:"video_id"`
	Model      string `json:"model"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
	Text       string `json:"text"`
}

func (k Key) String() string {
	return strings.Join([]string{k.VideoID, k.Model, k.SourceLang, k.TargetLang, k.Text}, "|")
}

// Hash is a fixed-length digest of the key, used as the store primary key.
func (k Key) Hash() string {
	h := sha256.Sum256([]byte(k.String()))
	return hex.EncodeToString(h[:])
}

// Tier names the layer that satisfied a lookup.
type Tier string

const (
	TierMemory Tier = "memory"
	TierRemote Tier = "remote"
	TierLocal  Tier = "local"
	TierSkip   Tier = "skip"
)

// Entry is a resolved translation held in memory.
type Entry struct {
	Translation string
	Tier        Tier
	UpdatedAt   time.Time
}

// Record is the persisted form of a translation.
type Record struct {
	ID          string    `json:"id"`
	Key         Key       `json:"key"`
	Translation string    `json:"translation"`
	Provider    string    `json:"provider"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Result is what a query returns. An empty Text means nothing is known yet.
type Result struct {
	Text string
	Tier Tier
}

// QueryContext carries the translation identity for one query. The session
// owns it and rebuilds it whenever settings or the video change.
type QueryContext struct {
	VideoID    string
	Provider   string
	Model      string
	SourceLang string
	TargetLang string
}

// Key builds the cache key for normalized text.
func (q QueryContext) Key(text string) Key {
	return Key{
		VideoID:    q.VideoID,
		Model:      q.Model,
		SourceLang: q.SourceLang,
		TargetLang: q.TargetLang,
		Text:       text,
	}
}

// GenerateContext is passed to the generator alongside the text.
type GenerateContext struct {
	VideoID    string
	Model      string
	SourceLang string
	TargetLang string
}

// Generator produces a translation for one line.
type Generator interface {
	Generate(ctx context.Context, text string, gc GenerateContext) (string, error)
}

// LocalStore is the persistent per-device tier.
type LocalStore interface {
	Get(ctx context.Context, key Key) (Record, bool, error)
	Put(ctx context.Context, record Record) error
	Count(ctx context.Context) (int, error)
	PruneOldest(ctx context.Context, n int) (int, error)
}

// RemoteStore is the shared tier. Its errors never leave the cache.
type RemoteStore interface {
	Find(ctx context.Context, key Key) (Record, bool, error)
	Upsert(ctx context.Context, record Record) error
}

// Poster re-enters the owning loop. Completions and timer callbacks never
// touch cache state directly; they post a closure instead.
type Poster interface {
	Post(f func())
}
