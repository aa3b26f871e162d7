package local

import "github.com/gobeaver/filescan"

func init() {
	filescan.RegisterPayloadDriver("local", func(cfg *filescan.Config) (filescan.PayloadStore, error) {
		return New(cfg.LocalPayloadPath)
	})
}
