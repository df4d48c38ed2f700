package provider

import (
	"context"
	"io"
	"time"

	gcsstorage "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/cloudorch/orchestrator/internal/model"
)

var gcpTierClasses = map[model.Tier]string{
	model.TierHot:     "STANDARD",
	model.TierWarm:    "NEARLINE",
	model.TierCold:    "COLDLINE",
	model.TierArchive: "ARCHIVE",
}

// GcpAdapter implements Adapter against Google Cloud Storage.
type GcpAdapter struct {
	client *gcsstorage.Client
}

// NewGcpAdapter builds a GcpAdapter using application default credentials.
func NewGcpAdapter(ctx context.Context) (*GcpAdapter, error) {
	client, err := gcsstorage.NewClient(ctx)
	if err != nil {
		return nil, translate(reasonUnavailable, "provider-gcp", "connect", "failed to create GCS client", err)
	}
	return &GcpAdapter{client: client}, nil
}

func (a *GcpAdapter) Name() Name { return GCP }

func (a *GcpAdapter) TierStorageClass(tier model.Tier) string {
	if class, ok := gcpTierClasses[tier]; ok {
		return class
	}
	return "STANDARD"
}

func (a *GcpAdapter) StorageClassTier(storageClass string) model.Tier {
	switch storageClass {
	case "NEARLINE":
		return model.TierWarm
	case "COLDLINE":
		return model.TierCold
	case "ARCHIVE":
		return model.TierArchive
	default:
		return model.TierHot
	}
}

func (a *GcpAdapter) Enumerate(ctx context.Context, opts EnumerateOptions) (Page, error) {
	bucket := a.client.Bucket(opts.Container)
	it := bucket.Objects(ctx, &gcsstorage.Query{Prefix: opts.Prefix})

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}

	pager := iterator.NewPager(it, pageSize, opts.PageToken)
	var objs []*gcsstorage.ObjectAttrs
	nextToken, err := pager.NextPage(&objs)
	if err != nil {
		return Page{}, translateGCPError(err, "provider-gcp", "enumerate")
	}

	refs := make([]model.ObjectRef, 0, len(objs))
	for _, obj := range objs {
		refs = append(refs, model.ObjectRef{
			Provider:             string(GCP),
			Container:            opts.Container,
			Key:                  obj.Name,
			SizeBytes:            obj.Size,
			LastModified:         obj.Updated,
			ProviderStorageClass: obj.StorageClass,
			ETag:                 obj.Etag,
		})
	}

	return Page{Objects: refs, NextToken: nextToken}, nil
}

func (a *GcpAdapter) Stat(ctx context.Context, container, key string) (model.ObjectRef, error) {
	obj := a.client.Bucket(container).Object(key)
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		return model.ObjectRef{}, translateGCPError(err, "provider-gcp", "stat")
	}
	return model.ObjectRef{
		Provider:             string(GCP),
		Container:            container,
		Key:                  key,
		SizeBytes:            attrs.Size,
		LastModified:         attrs.Updated,
		ProviderStorageClass: attrs.StorageClass,
		ETag:                 attrs.Etag,
	}, nil
}

func (a *GcpAdapter) CopyObject(ctx context.Context, source Adapter, opts CopyOptions) (model.ObjectRef, error) {
	if src, ok := source.(*GcpAdapter); ok {
		srcObj := src.client.Bucket(opts.SourceContainer).Object(opts.SourceKey)
		dstObj := a.client.Bucket(opts.DestContainer).Object(opts.DestKey)
		copier := dstObj.CopierFrom(srcObj)
		if opts.StorageClass != "" {
			copier.StorageClass = opts.StorageClass
		}
		if _, err := copier.Run(ctx); err != nil {
			return model.ObjectRef{}, translateGCPError(err, "provider-gcp", "copy_object")
		}
		return a.Stat(ctx, opts.DestContainer, opts.DestKey)
	}
	return a.streamingCopy(ctx, source, opts)
}

func (a *GcpAdapter) streamingCopy(ctx context.Context, source Adapter, opts CopyOptions) (model.ObjectRef, error) {
	reader, ok := source.(interface {
		openReader(ctx context.Context, container, key string) (io.ReadCloser, error)
	})
	if !ok {
		return model.ObjectRef{}, translate(reasonInvalidArgument, "provider-gcp", "copy_object", "source adapter does not support streaming reads", nil)
	}
	body, err := reader.openReader(ctx, opts.SourceContainer, opts.SourceKey)
	if err != nil {
		return model.ObjectRef{}, err
	}
	defer body.Close()

	obj := a.client.Bucket(opts.DestContainer).Object(opts.DestKey)
	w := obj.NewWriter(ctx)
	if opts.StorageClass != "" {
		w.StorageClass = opts.StorageClass
	}
	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return model.ObjectRef{}, translateGCPError(err, "provider-gcp", "copy_object")
	}
	if err := w.Close(); err != nil {
		return model.ObjectRef{}, translateGCPError(err, "provider-gcp", "copy_object")
	}
	return a.Stat(ctx, opts.DestContainer, opts.DestKey)
}

func (a *GcpAdapter) openReader(ctx context.Context, container, key string) (io.ReadCloser, error) {
	r, err := a.client.Bucket(container).Object(key).NewReader(ctx)
	if err != nil {
		return nil, translateGCPError(err, "provider-gcp", "get_object")
	}
	return r, nil
}

func (a *GcpAdapter) Delete(ctx context.Context, container, key string) error {
	err := a.client.Bucket(container).Object(key).Delete(ctx)
	if err != nil {
		translated := translateGCPError(err, "provider-gcp", "delete")
		if translated.Code == "NOT_FOUND" {
			return nil
		}
		return translated
	}
	return nil
}

func (a *GcpAdapter) SetStorageClass(ctx context.Context, container, key, storageClass string) error {
	obj := a.client.Bucket(container).Object(key)
	_, err := obj.Update(ctx, gcsstorage.ObjectAttrsToUpdate{StorageClass: storageClass})
	if err != nil {
		return translateGCPError(err, "provider-gcp", "set_storage_class")
	}
	return nil
}

func (a *GcpAdapter) PresignGet(ctx context.Context, container, key string, ttl time.Duration) (string, error) {
	url, err := a.client.Bucket(container).SignedURL(key, &gcsstorage.SignedURLOptions{
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", translateGCPError(err, "provider-gcp", "presign_get")
	}
	return url, nil
}
