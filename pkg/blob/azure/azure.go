// Package azure implements the blob uploader on Azure Blob Storage.
package azure

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/cloudspool/cloudspool/internal/logger"
	"github.com/cloudspool/cloudspool/pkg/blob"
)

// Config holds configuration for the Azure blob uploader.
type Config struct {
	// ConnectionString authenticates against the storage account. Read from
	// the Azure.StorageConnectionString setting at startup.
	ConnectionString string
}

// Uploader is an Azure Blob Storage implementation of blob.Uploader.
type Uploader struct {
	client *azblob.Client

	// ensured caches containers already created or confirmed to exist.
	ensured sync.Map // container name -> struct{}
}

var _ blob.Uploader = (*Uploader)(nil)

// New creates an Azure uploader from a storage connection string.
func New(cfg Config) (*Uploader, error) {
	if cfg.ConnectionString == "" {
		return nil, fmt.Errorf("azure connection string is required")
	}
	client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("create azure blob client: %w", err)
	}
	return &Uploader{client: client}, nil
}

// Upload streams the local file to container/objectName as a block blob.
// Re-uploading the same name overwrites the prior object, which is what
// makes job replays idempotent.
func (u *Uploader) Upload(ctx context.Context, localPath, container, objectName string) error {
	if err := u.ensureContainer(ctx, container); err != nil {
		return err
	}

	f, err := os.Open(localPath)
	if err != nil {
		// A vanished or unreadable local file will not fix itself by retrying.
		return blob.Permanent(fmt.Errorf("open %s: %w", localPath, err))
	}
	defer f.Close()

	// UploadStream reads the file in chunks; nothing is buffered whole.
	if _, err := u.client.UploadStream(ctx, container, objectName, f, nil); err != nil {
		return classify(fmt.Errorf("upload %s to %s/%s: %w", localPath, container, objectName, err))
	}
	return nil
}

// ensureContainer creates the container on first use. Existing containers
// are fine; the result is cached per container name.
func (u *Uploader) ensureContainer(ctx context.Context, container string) error {
	if _, ok := u.ensured.Load(container); ok {
		return nil
	}
	_, err := u.client.CreateContainer(ctx, container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return classify(fmt.Errorf("create container %s: %w", container, err))
	}
	u.ensured.Store(container, struct{}{})
	return nil
}

// ListContainers returns the container names in the storage account.
func (u *Uploader) ListContainers(ctx context.Context) ([]string, error) {
	var names []string
	pager := u.client.NewListContainersPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, classify(fmt.Errorf("list containers: %w", err))
		}
		for _, item := range page.ContainerItems {
			if item.Name != nil {
				names = append(names, *item.Name)
			}
		}
	}
	return names, nil
}

// Probe verifies the account is reachable with the configured credentials.
func (u *Uploader) Probe(ctx context.Context) error {
	pager := u.client.NewListContainersPager(&azblob.ListContainersOptions{
		MaxResults: ptr(int32(1)),
	})
	if pager.More() {
		if _, err := pager.NextPage(ctx); err != nil {
			return classify(fmt.Errorf("probe storage account: %w", err))
		}
	}
	logger.Debug("Azure blob storage reachable")
	return nil
}

// classify maps Azure SDK errors onto the transient/permanent taxonomy.
// Throttling (429), timeouts (408) and 5xx responses are retryable; other
// 4xx responses (auth, malformed names) are terminal. Network-level errors
// with no HTTP response are transient.
func classify(err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch {
		case respErr.StatusCode == 408, respErr.StatusCode == 429, respErr.StatusCode >= 500:
			return blob.Transient(err)
		case respErr.StatusCode >= 400:
			return blob.Permanent(err)
		}
	}
	return blob.Transient(err)
}

func ptr[T any](v T) *T { return &v }
