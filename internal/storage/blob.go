package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// BlobStore keeps objects as block blobs in one Azure Storage container.
type BlobStore struct {
	client    *azblob.Client
	container string
	location  string
}

// NewBlobStore authenticates with the SAS token or the account key in cfg.
func NewBlobStore(_ context.Context, cfg Config) (*BlobStore, error) {
	if cfg.Container == "" {
		return nil, errors.New("blob storage: container is required")
	}
	serviceURL := cfg.Endpoint
	if serviceURL == "" {
		if cfg.Account == "" {
			return nil, errors.New("blob storage: account or endpoint is required")
		}
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.Account)
	}
	if !strings.HasSuffix(serviceURL, "/") {
		serviceURL += "/"
	}

	var (
		client *azblob.Client
		err    error
	)
	switch {
	case cfg.SAS != "":
		client, err = azblob.NewClientWithNoCredential(serviceURL+"?"+strings.TrimPrefix(cfg.SAS, "?"), nil)
	case cfg.Key != "":
		var cred *azblob.SharedKeyCredential
		cred, err = azblob.NewSharedKeyCredential(cfg.Account, cfg.Key)
		if err == nil {
			client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
		}
	default:
		return nil, fmt.Errorf("blob storage: no SAS token or account key for %s mode", cfg.Mode)
	}
	if err != nil {
		return nil, fmt.Errorf("blob storage: create client: %w", err)
	}

	return &BlobStore{
		client:    client,
		container: cfg.Container,
		location:  strings.TrimSuffix(serviceURL, "/") + "/" + cfg.Container,
	}, nil
}

func (s *BlobStore) Exists(ctx context.Context, key string) (bool, error) {
	bc := s.client.ServiceClient().NewContainerClient(s.container).NewBlobClient(key)
	_, err := bc.GetProperties(ctx, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get properties %s: %w", key, err)
	}
	return true, nil
}

func (s *BlobStore) Read(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, key, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return nil, fmt.Errorf("download %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", key, err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, fmt.Errorf("download %s: %w", key, err)
	}
	return buf.Bytes(), nil
}

func (s *BlobStore) Write(ctx context.Context, key string, data []byte, opts WriteOptions) error {
	uploadOpts := &azblob.UploadBufferOptions{}
	if opts.Tier != "" {
		uploadOpts.AccessTier = to.Ptr(blob.AccessTier(opts.Tier))
	}
	if opts.ContentType != "" {
		uploadOpts.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: to.Ptr(opts.ContentType)}
	}
	if _, err := s.client.UploadBuffer(ctx, s.container, key, data, uploadOpts); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

func (s *BlobStore) List(ctx context.Context, prefix string) ([]string, error) {
	pager := s.client.NewListBlobsFlatPager(s.container, &azblob.ListBlobsFlatOptions{Prefix: to.Ptr(prefix)})

	var keys []string
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name != nil {
				keys = append(keys, *item.Name)
			}
		}
	}
	return keys, nil
}

func (s *BlobStore) Location() string { return s.location }

// CreateContainer creates the store's container, ignoring the error when it
// already exists. Used when provisioning a fresh account or an emulator.
func (s *BlobStore) CreateContainer(ctx context.Context) error {
	_, err := s.client.CreateContainer(ctx, s.container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("create container %s: %w", s.container, err)
	}
	return nil
}
