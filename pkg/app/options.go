package app

import (
	"github.com/vedmemory/ved/pkg/cache"
	"github.com/vedmemory/ved/pkg/metrics"
	"github.com/vedmemory/ved/pkg/storage"
	"github.com/vedmemory/ved/pkg/summarizer"
)

// Option is a functional option for configuring the App.
type Option func(*App)

// WithStorage uses store instead of opening the configured backend. The
// App still closes it on shutdown.
func WithStorage(store storage.Storage) Option {
	return func(a *App) {
		if store != nil {
			a.store = store
		}
	}
}

// WithCache uses c as the retrieval cache regardless of cache.type.
func WithCache(c cache.Cache) Option {
	return func(a *App) {
		if c != nil {
			a.cache = c
		}
	}
}

// WithSummarizerClient sets the client used by the summary worker. It is
// required when summarizer.api_key is empty.
func WithSummarizerClient(client summarizer.Client) Option {
	return func(a *App) {
		if client != nil {
			a.summaryClient = client
		}
	}
}

// WithMetrics sets the metrics manager.
func WithMetrics(m *metrics.Manager) Option {
	return func(a *App) {
		if m != nil {
			a.metrics = m
		}
	}
}
