// Package azure stores objects in an Azure Blob Storage container. Picture URLs point at
// the CDN when one is configured, otherwise at the blob endpoint.
package azure

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"

	"github.com/xplorixa/portal/internal/config"
	"github.com/xplorixa/portal/internal/storage"
)

func init() {
	storage.Register("azure", func(cfg *config.Config) (storage.Storage, error) {
		return New(&cfg.Storage.Azure)
	})
}

const checksumMetaKey = "sha256"

// AzureStorage implements storage.Storage on one container.
type AzureStorage struct {
	client        *azblob.Client
	containerName string
	cdnURL        string
}

// New authenticates with the account's shared key.
func New(cfg *config.AzureStorageConfig) (*AzureStorage, error) {
	if cfg.AccountName == "" {
		return nil, fmt.Errorf("azure storage account name is required")
	}
	if cfg.AccountKey == "" {
		return nil, fmt.Errorf("azure storage account key is required")
	}
	if cfg.ContainerName == "" {
		return nil, fmt.Errorf("azure storage container name is required")
	}

	credential, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure Blob client: %w", err)
	}

	return &AzureStorage{
		client:        client,
		containerName: cfg.ContainerName,
		cdnURL:        strings.TrimSuffix(cfg.CDNURL, "/"),
	}, nil
}

func (s *AzureStorage) blob(key string) *blob.Client {
	return s.client.ServiceClient().NewContainerClient(s.containerName).NewBlobClient(key)
}

func (s *AzureStorage) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (*storage.Object, error) {
	data, checksum, err := storage.ReadAll(body)
	if err != nil {
		return nil, err
	}

	blockClient := s.client.ServiceClient().NewContainerClient(s.containerName).NewBlockBlobClient(key)
	_, err = blockClient.Upload(ctx, streaming.NopCloser(bytes.NewReader(data)), &blockblob.UploadOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
		Metadata:    map[string]*string{checksumMetaKey: &checksum},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to Azure Blob: %w", err)
	}

	return &storage.Object{
		Key:         key,
		Size:        int64(len(data)),
		ContentType: contentType,
		Checksum:    checksum,
	}, nil
}

func (s *AzureStorage) Open(ctx context.Context, key string) (io.ReadCloser, *storage.Object, error) {
	resp, err := s.blob(key).DownloadStream(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, nil, storage.ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to download from Azure Blob: %w", err)
	}

	obj := &storage.Object{Key: key}
	if resp.ContentLength != nil {
		obj.Size = *resp.ContentLength
	}
	if resp.ContentType != nil {
		obj.ContentType = *resp.ContentType
	}
	if resp.LastModified != nil {
		obj.LastModified = *resp.LastModified
	}
	for k, v := range resp.Metadata {
		if strings.EqualFold(k, checksumMetaKey) && v != nil {
			obj.Checksum = *v
		}
	}
	return resp.Body, obj, nil
}

func (s *AzureStorage) Delete(ctx context.Context, key string) error {
	_, err := s.blob(key).Delete(ctx, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
		return fmt.Errorf("failed to delete from Azure Blob: %w", err)
	}
	return nil
}

// URL prefers the CDN. The container is expected to allow anonymous blob reads.
func (s *AzureStorage) URL(ctx context.Context, key string) (string, error) {
	if s.cdnURL != "" {
		return s.cdnURL + "/" + key, nil
	}
	return s.blob(key).URL(), nil
}

func (s *AzureStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.blob(key).GetProperties(ctx, nil)
	if err == nil {
		return true, nil
	}
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check blob existence: %w", err)
}
