package azure

import (
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/gobeaver/filescan"
)

func init() {
	filescan.RegisterPayloadDriver("azure", func(cfg *filescan.Config) (filescan.PayloadStore, error) {
		if cfg.AzureAccountName == "" || cfg.AzureAccountKey == "" {
			return nil, fmt.Errorf("azure account name and key are required")
		}

		if cfg.AzureContainerName == "" {
			return nil, fmt.Errorf("azure container name is required")
		}

		serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AzureAccountName)
		if cfg.AzureEndpoint != "" {
			serviceURL = cfg.AzureEndpoint
		}

		cred, err := azblob.NewSharedKeyCredential(cfg.AzureAccountName, cfg.AzureAccountKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create azure credential: %w", err)
		}

		client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create azure client: %w", err)
		}

		var options []AdapterOption
		if cfg.AzurePrefix != "" {
			options = append(options, WithPrefix(cfg.AzurePrefix))
		}

		return New(client, cfg.AzureContainerName, options...), nil
	})
}
