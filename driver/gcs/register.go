package gcs

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"github.com/gobeaver/filescan"
	"google.golang.org/api/option"
)

func init() {
	filescan.RegisterPayloadDriver("gcs", func(cfg *filescan.Config) (filescan.PayloadStore, error) {
		if cfg.GCSBucket == "" {
			return nil, fmt.Errorf("gcs payload driver: bucket is required")
		}

		// Without a credentials file the client falls back to
		// GOOGLE_APPLICATION_CREDENTIALS or the default credentials.
		var clientOpts []option.ClientOption
		if cfg.GCSCredentialsFile != "" {
			clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.GCSCredentialsFile))
		}

		client, err := storage.NewClient(context.Background(), clientOpts...)
		if err != nil {
			return nil, err
		}

		var options []AdapterOption
		if cfg.GCSPrefix != "" {
			options = append(options, WithPrefix(cfg.GCSPrefix))
		}

		return New(client, cfg.GCSBucket, options...), nil
	})
}
