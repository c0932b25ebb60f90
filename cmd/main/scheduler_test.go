package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/CTAG07/Nepenthes/pkg/ejs"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCacheScheduler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("Empty schedule", func(t *testing.T) {
		s := NewCacheScheduler(ejs.NewRenderer(logger, nil, nil), logger)
		if err := s.Start(context.Background(), ""); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if s.IsRunning() {
			t.Error("scheduler is running without a schedule")
		}
	})

	t.Run("Invalid schedule", func(t *testing.T) {
		s := NewCacheScheduler(ejs.NewRenderer(logger, nil, nil), logger)
		if err := s.Start(context.Background(), "61 * * * *"); err == nil {
			t.Error("Start() succeeded with an invalid schedule")
		}
	})

	t.Run("Clear and stop", func(t *testing.T) {
		r := ejs.NewRenderer(logger, nil, nil)
		if _, err := r.Render("x", ejs.Options{Cache: true, Filename: "x"}); err != nil {
			t.Fatalf("Render() error = %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		s := NewCacheScheduler(r, logger)
		if err := s.Start(ctx, "@hourly"); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if !s.IsRunning() {
			t.Fatal("scheduler is not running")
		}
		if err := s.Start(ctx, "@hourly"); err == nil {
			t.Error("second Start() succeeded")
		}

		s.clear()
		if n := r.Cache().Len(); n != 0 {
			t.Errorf("cache has %d entries after clear", n)
		}

		cancel()
		deadline := time.Now().Add(2 * time.Second)
		for s.IsRunning() {
			if time.Now().After(deadline) {
				t.Fatal("scheduler did not stop after cancel")
			}
			time.Sleep(10 * time.Millisecond)
		}
	})
}

func TestMetricsObserveRender(t *testing.T) {
	m := NewMetrics()
	c := ejs.NewCache(ejs.WithObserver(m))
	m.WatchCache(c)

	m.ObserveRender("page", time.Millisecond, nil)
	m.ObserveRender("page", time.Millisecond, errors.New("boom"))
	m.ObserveRender("page", time.Millisecond, nil)

	if got := testutil.ToFloat64(m.renders.WithLabelValues("page", "ok")); got != 2 {
		t.Errorf("ok renders = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.renders.WithLabelValues("page", "error")); got != 1 {
		t.Errorf("error renders = %v, want 1", got)
	}

	if _, err := c.Compile("k", "<%= 1 %>", ejs.Options{}); err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if _, err := c.Compile("k", "<%= 1 %>", ejs.Options{}); err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if got := testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")); got != 1 {
		t.Errorf("misses = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")); got != 1 {
		t.Errorf("hits = %v, want 1", got)
	}
	if n, err := testutil.GatherAndCount(m.registry, "nepenthes_cache_entries"); err != nil || n != 1 {
		t.Errorf("GatherAndCount() = %d, %v", n, err)
	}
}
