package minio

import "github.com/gobeaver/filescan"

func init() {
	filescan.RegisterPayloadDriver("minio", func(cfg *filescan.Config) (filescan.PayloadStore, error) {
		return New(Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	})
}
