package settings

import "github.com/cloudspool/cloudspool/pkg/store/models"

// Recognized setting keys. This is the closed set consumed by the core;
// operators may store additional keys but nothing reads them.
const (
	// KeyProcessingInterval is the supervisor tick period in seconds.
	KeyProcessingInterval = "App.ProcessingIntervalSeconds"

	// KeyMaxFileSizeMB rejects enqueue above this size.
	KeyMaxFileSizeMB = "Upload.MaxFileSizeMB"

	// KeyMaxConcurrentUploads is the processor worker count per tick.
	KeyMaxConcurrentUploads = "Upload.MaxConcurrentUploads"

	// KeyMaxRetries is the attempt cap before a job goes to failed.
	KeyMaxRetries = "Upload.MaxRetries"

	// KeyRetryDelaySeconds is the base of the exponential backoff.
	KeyRetryDelaySeconds = "Upload.RetryDelaySeconds"

	// KeyMaxRetryDelayMinutes is the upper clamp on the backoff.
	KeyMaxRetryDelayMinutes = "Upload.MaxRetryDelayMinutes"

	// KeyArchiveOnSuccess moves the file to the source archive folder on success.
	KeyArchiveOnSuccess = "Upload.ArchiveOnSuccess"

	// KeyDeleteOnSuccess deletes the file on success. Takes precedence over
	// archive when both are true.
	KeyDeleteOnSuccess = "Upload.DeleteOnSuccess"

	// KeyAzureConnectionString holds the blob storage credentials.
	KeyAzureConnectionString = "Azure.StorageConnectionString"

	// KeyAzureDefaultContainer is the target container when a job does not
	// specify one.
	KeyAzureDefaultContainer = "Azure.DefaultContainer"
)

// Built-in default values, used both for bootstrap seeding and as caller
// fallbacks when a key is missing or unparseable.
const (
	DefaultProcessingIntervalSeconds = 10
	DefaultMaxFileSizeMB             = 1024
	DefaultMaxConcurrentUploads      = 4
	DefaultMaxRetries                = 5
	DefaultRetryDelaySeconds         = 30
	DefaultMaxRetryDelayMinutes      = 30
	DefaultContainer                 = "cloudspool"
)

// Defaults returns the bootstrap defaults table. Seed inserts each row only
// if the key is absent; existing values are never overwritten.
func Defaults() []models.Setting {
	return []models.Setting{
		{
			Key:         KeyProcessingInterval,
			Value:       "10",
			Category:    "App",
			Description: "Seconds between supervisor passes (watcher reconcile + queue drain)",
		},
		{
			Key:         KeyMaxFileSizeMB,
			Value:       "1024",
			Category:    "Upload",
			Description: "Files larger than this are not enqueued",
		},
		{
			Key:         KeyMaxConcurrentUploads,
			Value:       "4",
			Category:    "Upload",
			Description: "Maximum parallel uploads per processor pass",
		},
		{
			Key:         KeyMaxRetries,
			Value:       "5",
			Category:    "Upload",
			Description: "Upload attempts before a job is marked failed",
		},
		{
			Key:         KeyRetryDelaySeconds,
			Value:       "30",
			Category:    "Upload",
			Description: "Base delay of the exponential retry backoff",
		},
		{
			Key:         KeyMaxRetryDelayMinutes,
			Value:       "30",
			Category:    "Upload",
			Description: "Upper clamp on the retry backoff",
		},
		{
			Key:         KeyArchiveOnSuccess,
			Value:       "false",
			Category:    "Upload",
			Description: "Move uploaded files to the source archive folder",
		},
		{
			Key:         KeyDeleteOnSuccess,
			Value:       "false",
			Category:    "Upload",
			Description: "Delete uploaded files (wins over archive when both are set)",
		},
		{
			Key:         KeyAzureConnectionString,
			Value:       "",
			Category:    "Azure",
			Description: "Connection string for the blob storage account",
		},
		{
			Key:         KeyAzureDefaultContainer,
			Value:       DefaultContainer,
			Category:    "Azure",
			Description: "Target container when a source does not specify one",
		},
	}
}
