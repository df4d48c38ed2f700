package provider

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/service"

	"github.com/cloudorch/orchestrator/internal/model"
)

var azureTierClasses = map[model.Tier]string{
	model.TierHot:     "Hot",
	model.TierWarm:    "Cool",
	model.TierCold:    "Cold",
	model.TierArchive: "Archive",
}

// AzureAdapter implements Adapter against Azure Blob Storage.
type AzureAdapter struct {
	client  *service.Client
	account string
}

// NewAzureAdapter builds an AzureAdapter for the named storage account
// using the default Azure credential chain (managed identity, env vars,
// Azure CLI login).
func NewAzureAdapter(account string) (*AzureAdapter, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, translate(reasonUnavailable, "provider-azure", "connect", "failed to resolve Azure credentials", err)
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", account)
	client, err := service.NewClient(serviceURL, cred, nil)
	if err != nil {
		return nil, translate(reasonUnavailable, "provider-azure", "connect", "failed to create Azure client", err)
	}
	return &AzureAdapter{client: client, account: account}, nil
}

func (a *AzureAdapter) Name() Name { return Azure }

func (a *AzureAdapter) TierStorageClass(tier model.Tier) string {
	if class, ok := azureTierClasses[tier]; ok {
		return class
	}
	return "Hot"
}

func (a *AzureAdapter) StorageClassTier(storageClass string) model.Tier {
	switch storageClass {
	case "Cool":
		return model.TierWarm
	case "Cold":
		return model.TierCold
	case "Archive":
		return model.TierArchive
	default:
		return model.TierHot
	}
}

func (a *AzureAdapter) containerClient(name string) *container.Client {
	return a.client.NewContainerClient(name)
}

func (a *AzureAdapter) Enumerate(ctx context.Context, opts EnumerateOptions) (Page, error) {
	cc := a.containerClient(opts.Container)
	pager := cc.NewListBlobsFlatPager(&container.ListBlobsFlatOptions{
		Prefix: to.Ptr(opts.Prefix),
		Marker: to.Ptr(opts.PageToken),
	})

	if !pager.More() {
		return Page{}, nil
	}
	resp, err := pager.NextPage(ctx)
	if err != nil {
		return Page{}, translateAzureError(err, "provider-azure", "enumerate")
	}

	refs := make([]model.ObjectRef, 0, len(resp.Segment.BlobItems))
	for _, item := range resp.Segment.BlobItems {
		ref := model.ObjectRef{
			Provider:  string(Azure),
			Container: opts.Container,
		}
		if item.Name != nil {
			ref.Key = *item.Name
		}
		if props := item.Properties; props != nil {
			if props.ContentLength != nil {
				ref.SizeBytes = *props.ContentLength
			}
			if props.LastModified != nil {
				ref.LastModified = *props.LastModified
			}
			if props.ETag != nil {
				ref.ETag = string(*props.ETag)
			}
			if props.AccessTier != nil {
				ref.ProviderStorageClass = string(*props.AccessTier)
			}
		}
		refs = append(refs, ref)
	}

	page := Page{Objects: refs}
	if resp.NextMarker != nil && *resp.NextMarker != "" {
		page.NextToken = *resp.NextMarker
	}
	return page, nil
}

func (a *AzureAdapter) Stat(ctx context.Context, container, key string) (model.ObjectRef, error) {
	bc := a.containerClient(container).NewBlobClient(key)
	props, err := bc.GetProperties(ctx, nil)
	if err != nil {
		return model.ObjectRef{}, translateAzureError(err, "provider-azure", "stat")
	}
	ref := model.ObjectRef{
		Provider:  string(Azure),
		Container: container,
		Key:       key,
	}
	if props.ContentLength != nil {
		ref.SizeBytes = *props.ContentLength
	}
	if props.LastModified != nil {
		ref.LastModified = *props.LastModified
	}
	if props.ETag != nil {
		ref.ETag = string(*props.ETag)
	}
	if props.AccessTier != nil {
		ref.ProviderStorageClass = *props.AccessTier
	}
	return ref, nil
}

func (a *AzureAdapter) CopyObject(ctx context.Context, source Adapter, opts CopyOptions) (model.ObjectRef, error) {
	if src, ok := source.(*AzureAdapter); ok {
		srcURL := fmt.Sprintf("https://%s.blob.core.windows.net/%s/%s", src.account, opts.SourceContainer, opts.SourceKey)
		bc := a.containerClient(opts.DestContainer).NewBlobClient(opts.DestKey)
		resp, err := bc.StartCopyFromURL(ctx, srcURL, nil)
		if err != nil {
			return model.ObjectRef{}, translateAzureError(err, "provider-azure", "copy_object")
		}
		_ = resp
		if opts.StorageClass != "" {
			_ = a.SetStorageClass(ctx, opts.DestContainer, opts.DestKey, opts.StorageClass)
		}
		return a.Stat(ctx, opts.DestContainer, opts.DestKey)
	}
	return a.streamingCopy(ctx, source, opts)
}

func (a *AzureAdapter) streamingCopy(ctx context.Context, source Adapter, opts CopyOptions) (model.ObjectRef, error) {
	reader, ok := source.(interface {
		openReader(ctx context.Context, container, key string) (io.ReadCloser, error)
	})
	if !ok {
		return model.ObjectRef{}, translate(reasonInvalidArgument, "provider-azure", "copy_object", "source adapter does not support streaming reads", nil)
	}
	body, err := reader.openReader(ctx, opts.SourceContainer, opts.SourceKey)
	if err != nil {
		return model.ObjectRef{}, err
	}
	defer body.Close()

	bc := a.containerClient(opts.DestContainer).NewBlockBlobClient(opts.DestKey)
	uploadOpts := &azblob.UploadStreamOptions{}
	if opts.StorageClass != "" {
		tier := blob.AccessTier(opts.StorageClass)
		uploadOpts.AccessTier = &tier
	}
	if _, err := bc.UploadStream(ctx, body, uploadOpts); err != nil {
		return model.ObjectRef{}, translateAzureError(err, "provider-azure", "copy_object")
	}
	return a.Stat(ctx, opts.DestContainer, opts.DestKey)
}

func (a *AzureAdapter) openReader(ctx context.Context, container, key string) (io.ReadCloser, error) {
	bc := a.containerClient(container).NewBlobClient(key)
	resp, err := bc.DownloadStream(ctx, nil)
	if err != nil {
		return nil, translateAzureError(err, "provider-azure", "download")
	}
	return resp.Body, nil
}

func (a *AzureAdapter) Delete(ctx context.Context, container, key string) error {
	bc := a.containerClient(container).NewBlobClient(key)
	_, err := bc.Delete(ctx, nil)
	if err != nil {
		translated := translateAzureError(err, "provider-azure", "delete")
		if translated.Code == "NOT_FOUND" {
			return nil
		}
		return translated
	}
	return nil
}

func (a *AzureAdapter) SetStorageClass(ctx context.Context, containerName, key, storageClass string) error {
	bc := a.containerClient(containerName).NewBlobClient(key)
	tier := blob.AccessTier(storageClass)
	_, err := bc.SetTier(ctx, tier, nil)
	if err != nil {
		return translateAzureError(err, "provider-azure", "set_storage_class")
	}
	return nil
}

func (a *AzureAdapter) PresignGet(ctx context.Context, containerName, key string, ttl time.Duration) (string, error) {
	bc := a.containerClient(containerName).NewBlobClient(key)
	permissions := sas.BlobPermissions{Read: true}
	start := time.Now().Add(-5 * time.Minute)
	expiry := time.Now().Add(ttl)
	url, err := bc.GetSASURL(permissions, expiry, &blob.GetSASURLOptions{StartTime: &start})
	if err != nil {
		return "", translateAzureError(err, "provider-azure", "presign_get")
	}
	return url, nil
}
