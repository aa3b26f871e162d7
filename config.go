package filescan

import (
	"fmt"
	"time"

	"github.com/gobeaver/beaver-kit/config"
)

type Config struct {
	// Worker pool
	Workers        int    `env:"FILESCAN_WORKERS,default:4"`
	DequeueTimeout string `env:"FILESCAN_DEQUEUE_TIMEOUT,default:1s"`
	InlineDepth    int    `env:"FILESCAN_INLINE_DEPTH,default:1"`

	// Submission defaults (per submission overridable)
	InspectorTimeout  string `env:"FILESCAN_INSPECTOR_TIMEOUT,default:10s"`
	SubmissionTimeout string `env:"FILESCAN_SUBMISSION_TIMEOUT,default:5m"`
	MaxDepth          int    `env:"FILESCAN_MAX_DEPTH,default:15"`
	MaxFiles          int64  `env:"FILESCAN_MAX_FILES,default:5000"`
	MaxBytes          int64  `env:"FILESCAN_MAX_BYTES,default:1073741824"` // 1GB
	DedupTTL          string `env:"FILESCAN_DEDUP_TTL,default:1h"`

	// Coordination store (memory, postgres)
	StoreDriver   string `env:"FILESCAN_STORE_DRIVER,default:memory"`
	PostgresDSN   string `env:"FILESCAN_POSTGRES_DSN"`
	RetryAttempts int    `env:"FILESCAN_RETRY_ATTEMPTS,default:4"`

	// Payload store for claim-checked children (none, local, s3, gcs, azure, sftp, minio)
	PayloadDriver      string `env:"FILESCAN_PAYLOAD_DRIVER,default:none"`
	ClaimThreshold     int64  `env:"FILESCAN_CLAIM_THRESHOLD,default:1048576"` // 1MB
	PayloadCompression string `env:"FILESCAN_PAYLOAD_COMPRESSION,default:zstd"`
	LocalPayloadPath   string `env:"FILESCAN_LOCAL_PAYLOAD_PATH,default:./payloads"`

	// Encryption of parked payloads
	EncryptionEnabled bool   `env:"FILESCAN_ENCRYPTION_ENABLED,default:false"`
	EncryptionKey     string `env:"FILESCAN_ENCRYPTION_KEY"` // base64, 32 bytes

	// S3 payload driver
	S3Region          string `env:"FILESCAN_S3_REGION,default:us-east-1"`
	S3Bucket          string `env:"FILESCAN_S3_BUCKET"`
	S3Prefix          string `env:"FILESCAN_S3_PREFIX"`
	S3Endpoint        string `env:"FILESCAN_S3_ENDPOINT"`
	S3AccessKeyID     string `env:"FILESCAN_S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"FILESCAN_S3_SECRET_ACCESS_KEY"`
	S3ForcePathStyle  bool   `env:"FILESCAN_S3_FORCE_PATH_STYLE,default:false"`

	// GCS payload driver
	GCSBucket          string `env:"FILESCAN_GCS_BUCKET"`
	GCSPrefix          string `env:"FILESCAN_GCS_PREFIX"`
	GCSCredentialsFile string `env:"FILESCAN_GCS_CREDENTIALS_FILE"` // Path to service account JSON

	// Azure Blob Storage payload driver
	AzureAccountName   string `env:"FILESCAN_AZURE_ACCOUNT_NAME"`
	AzureAccountKey    string `env:"FILESCAN_AZURE_ACCOUNT_KEY"`
	AzureContainerName string `env:"FILESCAN_AZURE_CONTAINER_NAME"`
	AzurePrefix        string `env:"FILESCAN_AZURE_PREFIX"`
	AzureEndpoint      string `env:"FILESCAN_AZURE_ENDPOINT"` // Optional custom endpoint

	// SFTP payload driver
	SFTPHost       string `env:"FILESCAN_SFTP_HOST"`
	SFTPPort       int    `env:"FILESCAN_SFTP_PORT,default:22"`
	SFTPUsername   string `env:"FILESCAN_SFTP_USERNAME"`
	SFTPPassword   string `env:"FILESCAN_SFTP_PASSWORD"`
	SFTPPrivateKey string `env:"FILESCAN_SFTP_PRIVATE_KEY"` // Path to private key file
	SFTPBasePath   string `env:"FILESCAN_SFTP_BASE_PATH"`
	SFTPKnownHosts string `env:"FILESCAN_SFTP_KNOWN_HOSTS"` // Path to known_hosts; empty skips host key checks

	// MinIO payload driver
	MinioEndpoint  string `env:"FILESCAN_MINIO_ENDPOINT"`
	MinioAccessKey string `env:"FILESCAN_MINIO_ACCESS_KEY"`
	MinioSecretKey string `env:"FILESCAN_MINIO_SECRET_KEY"`
	MinioBucket    string `env:"FILESCAN_MINIO_BUCKET"`
	MinioUseSSL    bool   `env:"FILESCAN_MINIO_USE_SSL,default:false"`

	// Tasting and routing
	RulesFile      string `env:"FILESCAN_RULES_FILE"`
	RoutesFile     string `env:"FILESCAN_ROUTES_FILE"`
	TasteCacheSize int    `env:"FILESCAN_TASTE_CACHE_SIZE,default:1024"`

	// Logging
	LogLevel  string `env:"FILESCAN_LOG_LEVEL,default:info"`
	LogFormat string `env:"FILESCAN_LOG_FORMAT,default:text"`
}

// GetConfig returns config loaded from environment
func GetConfig() (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Limits converts the submission defaults into Limits.
func (c *Config) Limits() (Limits, error) {
	timeout, err := parseDuration("inspector timeout", c.InspectorTimeout)
	if err != nil {
		return Limits{}, err
	}
	return Limits{
		InspectorTimeout: timeout,
		MaxDepth:         c.MaxDepth,
		MaxFiles:         c.MaxFiles,
		MaxBytes:         c.MaxBytes,
	}, nil
}

func parseDuration(name, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", name, value)
	}
	return d, nil
}
