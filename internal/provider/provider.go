// Package provider implements the uniform adapter each supported cloud
// storage provider exposes to the rest of the orchestrator. Every adapter
// translates its provider's native errors into the orcherr taxonomy at
// this boundary, so no component above it ever branches on a
// provider-specific error type.
package provider

import (
	"context"
	"time"

	"github.com/cloudorch/orchestrator/internal/model"
)

// Name identifies a supported provider. It is also the string stored on
// model.ObjectRef.Provider and used to key per-provider locks, circuit
// breakers, and metrics labels.
type Name string

const (
	AWS   Name = "aws"
	Azure Name = "azure"
	GCP   Name = "gcp"
	Mock  Name = "mock"
)

// Page is one page of an Enumerate listing: a batch of objects plus an
// opaque continuation token. A nil or empty NextToken means there is
// nothing more to fetch.
type Page struct {
	Objects   []model.ObjectRef
	NextToken string
}

// EnumerateOptions narrows an Enumerate call to a prefix and page size.
type EnumerateOptions struct {
	Container string
	Prefix    string
	PageSize  int
	PageToken string
}

// CopyOptions describes a single-object copy, optionally across
// containers or providers. Dest is always this adapter's provider; the
// caller reads from Source via the source adapter and streams into Dest
// via this adapter, or (when both ends are the same provider) the
// adapter may perform a server-side copy.
type CopyOptions struct {
	SourceContainer string
	SourceKey       string
	DestContainer   string
	DestKey         string
	StorageClass    string
}

// Adapter is the uniform operation set every provider backend implements.
// All methods return *orcherr.Error on failure, classified into the
// provider-independent taxonomy described in the error handling design.
type Adapter interface {
	Name() Name

	// Enumerate lists objects under opts.Prefix in opts.Container, one
	// page at a time. Callers page until Page.NextToken is empty.
	Enumerate(ctx context.Context, opts EnumerateOptions) (Page, error)

	// Stat fetches current metadata for one object.
	Stat(ctx context.Context, container, key string) (model.ObjectRef, error)

	// CopyObject copies an object, materializing it at opts.DestKey in
	// opts.DestContainer on this adapter's provider. The source side is
	// read through reader/writer streaming when source and dest
	// providers differ; same-provider copies may use a native
	// server-side copy.
	CopyObject(ctx context.Context, source Adapter, opts CopyOptions) (model.ObjectRef, error)

	// Delete removes an object. Deleting an object that does not exist
	// is not an error: Delete is idempotent.
	Delete(ctx context.Context, container, key string) error

	// SetStorageClass transitions an existing object to a new
	// provider-native storage class.
	SetStorageClass(ctx context.Context, container, key, storageClass string) error

	// PresignGet returns a time-limited URL a client can use to fetch an
	// object directly from the provider, bypassing the orchestrator.
	PresignGet(ctx context.Context, container, key string, ttl time.Duration) (string, error)
}

// TierStorageClass maps a temperature tier to this provider's native
// storage class name. StorageClassTier is its inverse, used when
// observing an object's current class during catalog refresh.
type TierMapper interface {
	TierStorageClass(tier model.Tier) string
	StorageClassTier(storageClass string) model.Tier
}
