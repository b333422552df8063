package checkout

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

type configFetcher interface {
	Config(ctx context.Context) (*Config, error)
}

// Loader fetches the public checkout config once. Concurrent callers share
// one in-flight request. A failed fetch is not remembered.
type Loader struct {
	fetcher configFetcher
	group   singleflight.Group

	mu  sync.RWMutex
	cfg *Config
}

func NewLoader(client *Client) *Loader {
	return newLoader(client)
}

func newLoader(fetcher configFetcher) *Loader {
	return &Loader{fetcher: fetcher}
}

func (l *Loader) Ensure(ctx context.Context) (*Config, error) {
	if cfg := l.cached(); cfg != nil {
		return cfg, nil
	}

	ch := l.group.DoChan("config", func() (any, error) {
		if cfg := l.cached(); cfg != nil {
			return cfg, nil
		}
		// The shared fetch outlives any single caller's cancellation.
		cfg, err := l.fetcher.Config(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.cfg = cfg
		l.mu.Unlock()
		return cfg, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Config), nil
	}
}

func (l *Loader) cached() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}
