package azure

import (
	"context"
	"fmt"

	"gastos/internal/log"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/dustin/go-humanize"
)

// BlobArchive uploads rendered chart PNGs to a blob container.
type BlobArchive struct {
	client    *azblob.Client
	container string
	logger    *log.Logger
}

func NewBlobArchive(ctx context.Context, serviceURL, container string, logger *log.Logger) (*BlobArchive, error) {
	if serviceURL == "" {
		return nil, fmt.Errorf("blob service url is required")
	}
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentArchive)

	var client *azblob.Client
	if isLocal(serviceURL) {
		logger.InfoContext(ctx, "Using Azurite credentials for chart archive")
		name, key := azuriteCredentials()
		cred, err := azblob.NewSharedKeyCredential(name, key)
		if err != nil {
			return nil, fmt.Errorf("create shared key credential: %w", err)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("create blob client with shared key: %w", err)
		}
	} else {
		cred, err := newDefaultAzureCredential()
		if err != nil {
			return nil, fmt.Errorf("create default azure credential: %w", err)
		}
		client, err = azblob.NewClient(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("create blob client: %w", err)
		}
	}

	if _, err := client.CreateContainer(ctx, container, nil); err != nil && !hasErrorCode(err, "ContainerAlreadyExists") {
		logger.WarnContext(ctx, "Failed to create container (may already exist)", "container", container, log.FieldError, err)
	}

	return &BlobArchive{client: client, container: container, logger: logger}, nil
}

// ArchiveChart uploads png as {periodKey}/{runID}.png.
func (a *BlobArchive) ArchiveChart(ctx context.Context, periodKey, runID string, png []byte) error {
	name := BlobName(periodKey, runID)
	if _, err := a.client.UploadBuffer(ctx, a.container, name, png, nil); err != nil {
		return fmt.Errorf("upload blob %s/%s: %w", a.container, name, err)
	}
	a.logger.InfoContext(ctx, "Chart archived",
		"container", a.container,
		"blob_name", name,
		log.FieldImageSize, humanize.Bytes(uint64(len(png))))
	return nil
}

// BlobName returns the archive path of a chart.
func BlobName(periodKey, runID string) string {
	if runID == "" {
		runID = "chart"
	}
	return fmt.Sprintf("%s/%s.png", periodKey, runID)
}
