package main

import (
	"context"
	"time"

	"github.com/MimeLyc/dualsub/internal/config"
	"github.com/MimeLyc/dualsub/internal/llm"
	"github.com/MimeLyc/dualsub/internal/persistence"
	"github.com/MimeLyc/dualsub/internal/recorder"
	"github.com/MimeLyc/dualsub/internal/remote"
	"github.com/MimeLyc/dualsub/internal/session"
	"github.com/MimeLyc/dualsub/internal/translation"
	"github.com/MimeLyc/dualsub/internal/translator"
	"github.com/MimeLyc/dualsub/pkg/clock"
	"github.com/MimeLyc/dualsub/pkg/log"
)

// engine is the fully wired server-side session.
type engine struct {
	loop    *session.Loop
	session *session.Session
	local   *persistence.SQLiteStore
	remote  *remote.RedisStore
}

func (e *engine) Close() {
	if e.remote != nil {
		if err := e.remote.Close(); err != nil {
			log.Warn("Failed to close remote store: %v", err)
		}
	}
	if e.local != nil {
		if err := e.local.Close(); err != nil {
			log.Warn("Failed to close local store: %v", err)
		}
	}
}

// newGenerator returns nil when no provider is configured; misses are then
// remembered until the next reset.
func newGenerator(cfg *config.Config) translation.Generator {
	if !cfg.LLM.Configured() {
		log.Warn("No LLM API key configured: missing lines will not be generated")
		return nil
	}

	client, err := llm.NewClient(&llm.Config{
		APIKey:      cfg.LLM.APIKey,
		APIURL:      cfg.LLM.APIURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		SiteURL:     cfg.LLM.SiteURL,
		AppName:     cfg.LLM.AppName,
	})
	if err != nil {
		log.Error("Failed to create LLM client: %v", err)
		return nil
	}
	return translator.NewLLMGenerator(client)
}

// openRemote connects to Redis when configured. The remote tier is optional,
// so a connection failure only disables it.
func openRemote(cfg *config.Config) *remote.RedisStore {
	if cfg.Store.RedisAddr == "" {
		return nil
	}
	store, err := remote.NewRedisStore(remote.RedisConfig{
		Addr:     cfg.Store.RedisAddr,
		Password: cfg.Store.RedisPassword,
		DB:       cfg.Store.RedisDB,
		Prefix:   cfg.Store.RedisPrefix,
		Timeout:  cfg.Store.RedisTimeout,
	})
	if err != nil {
		log.Warn("Remote store disabled: %v", err)
		return nil
	}
	return store
}

func initialSettings(cfg *config.Config) config.Settings {
	s := config.DefaultSettings()
	s.Model = cfg.LLM.Model
	s.MinChars = cfg.Cache.MinChars
	return s.Sanitize()
}

func buildEngine(cfg *config.Config) (*engine, error) {
	local, err := persistence.NewSQLiteStore(cfg.Store.DBPath(), cfg.Cache.LocalCapacity)
	if err != nil {
		return nil, err
	}

	settings, err := config.NewSettingsStore(cfg.Store.SettingsFile, initialSettings(cfg))
	if err != nil {
		_ = local.Close()
		return nil, err
	}

	e := &engine{
		loop:   session.NewLoop(256),
		local:  local,
		remote: openRemote(cfg),
	}

	deps := translation.Deps{
		Loop:  e.loop,
		Clock: clock.Real(),
		Local: local,
	}
	intervals := []recorder.Store{local}
	if e.remote != nil {
		deps.Remote = e.remote
		intervals = append(intervals, e.remote)
	}
	if gen := newGenerator(cfg); gen != nil {
		deps.Generator = gen
	}

	cache := translation.NewCache(translation.Options{
		MinChars:    settings.Get().MinChars,
		Debounce:    cfg.Cache.Debounce,
		MinGap:      cfg.Cache.MinGap,
		PruneTarget: cfg.Cache.PruneTarget,
		Timeout:     time.Duration(cfg.LLM.Timeout) * time.Second,
	}, deps)

	var tracks session.TrackProvider
	if cfg.Track.URLTemplate != "" {
		tracks = session.URLTracks(cfg.Track.URLTemplate)
	}

	orch := session.NewOrchestrator(settings.Get(), session.Options{
		Recorder: recorder.Options{
			MinDuration: cfg.Recorder.MinDuration,
			SeekGap:     cfg.Recorder.SeekGap,
			Capacity:    cfg.Recorder.Capacity,
		},
		BackoffBase: cfg.Track.BackoffBase,
		BackoffCap:  cfg.Track.BackoffCap,
		Timeout:     30 * time.Second,
	}, session.Deps{
		Loop:      e.loop,
		Clock:     deps.Clock,
		Cache:     cache,
		Tracks:    tracks,
		Intervals: intervals,
	})

	e.session = session.New(e.loop, orch, settings, local)
	return e, nil
}

// closeSession flushes the open interval before the stores are closed.
func closeSession(s *session.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		log.Warn("Failed to flush session: %v", err)
	}
}
