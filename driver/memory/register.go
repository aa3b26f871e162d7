package memory

import (
	"time"

	"github.com/gobeaver/filescan"
)

func init() {
	filescan.RegisterStoreDriver("memory", func(cfg *filescan.Config) (filescan.Store, error) {
		ttl := time.Hour
		if cfg.DedupTTL != "" {
			d, err := time.ParseDuration(cfg.DedupTTL)
			if err != nil {
				return nil, err
			}
			ttl = d
		}
		return New(Config{TTL: ttl}), nil
	})
	filescan.RegisterPayloadDriver("memory", func(cfg *filescan.Config) (filescan.PayloadStore, error) {
		return NewPayloads(), nil
	})
}
