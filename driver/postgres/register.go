package postgres

import (
	"context"
	"time"

	"github.com/gobeaver/filescan"
)

func init() {
	filescan.RegisterStoreDriver("postgres", createStore)
}

func createStore(cfg *filescan.Config) (filescan.Store, error) {
	var opts []Option
	if cfg.DedupTTL != "" {
		ttl, err := time.ParseDuration(cfg.DedupTTL)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithCounterTTL(ttl))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return Open(ctx, cfg.PostgresDSN, opts...)
}
