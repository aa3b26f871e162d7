package sftp

import (
	"fmt"
	"os"

	"github.com/gobeaver/filescan"
)

func init() {
	filescan.RegisterPayloadDriver("sftp", func(cfg *filescan.Config) (filescan.PayloadStore, error) {
		if cfg.SFTPHost == "" {
			return nil, fmt.Errorf("SFTP host is required")
		}

		sftpConfig := Config{
			Host:           cfg.SFTPHost,
			Port:           cfg.SFTPPort,
			Username:       cfg.SFTPUsername,
			Password:       cfg.SFTPPassword,
			KnownHostsFile: cfg.SFTPKnownHosts,
			BasePath:       cfg.SFTPBasePath,
		}

		if cfg.SFTPPrivateKey != "" {
			keyData, err := os.ReadFile(cfg.SFTPPrivateKey)
			if err != nil {
				return nil, fmt.Errorf("failed to read private key: %w", err)
			}
			sftpConfig.PrivateKey = keyData
		}

		return New(sftpConfig)
	})
}
