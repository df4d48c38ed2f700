package provider

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cloudorch/orchestrator/internal/model"
	"github.com/cloudorch/orchestrator/pkg/orcherr"
)

var mockTierClasses = map[model.Tier]string{
	model.TierHot:     "STANDARD",
	model.TierWarm:    "WARM",
	model.TierCold:    "COLD",
	model.TierArchive: "ARCHIVE",
}

type mockObject struct {
	data         []byte
	ref          model.ObjectRef
	storageClass string
}

// MockAdapter is an in-memory Adapter used by tests and by local
// development without live cloud credentials. Failures are injected
// explicitly via FailNext rather than occurring spontaneously.
type MockAdapter struct {
	mu      sync.RWMutex
	objects map[string]map[string]*mockObject // container -> key -> object

	failNext adapterReason
	failOp   string
}

// NewMockAdapter returns an empty MockAdapter.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{objects: make(map[string]map[string]*mockObject)}
}

func (a *MockAdapter) Name() Name { return Mock }

func (a *MockAdapter) TierStorageClass(tier model.Tier) string {
	if class, ok := mockTierClasses[tier]; ok {
		return class
	}
	return "STANDARD"
}

func (a *MockAdapter) StorageClassTier(storageClass string) model.Tier {
	for tier, class := range mockTierClasses {
		if class == storageClass {
			return tier
		}
	}
	return model.TierHot
}

// FailNext arranges for the next call to the named operation to fail with
// reason. Consumed on first match; subsequent calls succeed normally.
func (a *MockAdapter) FailNext(operation string, reason adapterReason) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failOp = operation
	a.failNext = reason
}

func (a *MockAdapter) checkInjectedFailure(operation string) *orcherr.Error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failOp == operation && a.failNext != "" {
		reason := a.failNext
		a.failOp = ""
		a.failNext = ""
		return translate(reason, "provider-mock", operation, "injected failure", nil)
	}
	return nil
}

// Seed inserts an object directly, bypassing CopyObject, for test setup.
func (a *MockAdapter) Seed(container string, ref model.ObjectRef, data []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.objects[container] == nil {
		a.objects[container] = make(map[string]*mockObject)
	}
	ref.Provider = string(Mock)
	ref.Container = container
	if ref.LastModified.IsZero() {
		ref.LastModified = time.Now()
	}
	a.objects[container][ref.Key] = &mockObject{data: data, ref: ref, storageClass: ref.ProviderStorageClass}
}

func (a *MockAdapter) Enumerate(ctx context.Context, opts EnumerateOptions) (Page, error) {
	if err := a.checkInjectedFailure("enumerate"); err != nil {
		return Page{}, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()

	var keys []string
	for key := range a.objects[opts.Container] {
		if strings.HasPrefix(key, opts.Prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	start := 0
	if opts.PageToken != "" {
		for i, k := range keys {
			if k == opts.PageToken {
				start = i + 1
				break
			}
		}
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = len(keys)
	}

	end := start + pageSize
	if end > len(keys) {
		end = len(keys)
	}

	var refs []model.ObjectRef
	for _, k := range keys[start:end] {
		refs = append(refs, a.objects[opts.Container][k].ref)
	}

	page := Page{Objects: refs}
	if end < len(keys) {
		page.NextToken = keys[end-1]
	}
	return page, nil
}

func (a *MockAdapter) Stat(ctx context.Context, container, key string) (model.ObjectRef, error) {
	if err := a.checkInjectedFailure("stat"); err != nil {
		return model.ObjectRef{}, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	obj, ok := a.objects[container][key]
	if !ok {
		return model.ObjectRef{}, translate(reasonNotFound, "provider-mock", "stat", "object not found: "+container+"/"+key, nil)
	}
	return obj.ref, nil
}

func (a *MockAdapter) openReader(ctx context.Context, container, key string) (io.ReadCloser, error) {
	a.mu.RLock()
	obj, ok := a.objects[container][key]
	a.mu.RUnlock()
	if !ok {
		return nil, translate(reasonNotFound, "provider-mock", "get_object", "object not found: "+container+"/"+key, nil)
	}
	return io.NopCloser(strings.NewReader(string(obj.data))), nil
}

func (a *MockAdapter) CopyObject(ctx context.Context, source Adapter, opts CopyOptions) (model.ObjectRef, error) {
	if err := a.checkInjectedFailure("copy_object"); err != nil {
		return model.ObjectRef{}, err
	}

	var data []byte
	var srcRef model.ObjectRef
	var err error
	if src, ok := source.(*MockAdapter); ok {
		src.mu.RLock()
		obj, found := src.objects[opts.SourceContainer][opts.SourceKey]
		src.mu.RUnlock()
		if !found {
			return model.ObjectRef{}, translate(reasonNotFound, "provider-mock", "copy_object", "source object not found", nil)
		}
		data = obj.data
		srcRef = obj.ref
	} else {
		srcRef, err = source.Stat(ctx, opts.SourceContainer, opts.SourceKey)
		if err != nil {
			return model.ObjectRef{}, err
		}
		reader, ok := source.(interface {
			openReader(ctx context.Context, container, key string) (io.ReadCloser, error)
		})
		if !ok {
			return model.ObjectRef{}, translate(reasonInvalidArgument, "provider-mock", "copy_object", "source adapter does not support streaming reads", nil)
		}
		body, err := reader.openReader(ctx, opts.SourceContainer, opts.SourceKey)
		if err != nil {
			return model.ObjectRef{}, err
		}
		defer body.Close()
		data, err = io.ReadAll(body)
		if err != nil {
			return model.ObjectRef{}, translate(reasonTransient, "provider-mock", "copy_object", "failed to read source body", err)
		}
	}

	ref := model.ObjectRef{
		Provider:             string(Mock),
		Container:            opts.DestContainer,
		Key:                  opts.DestKey,
		SizeBytes:            srcRef.SizeBytes,
		LastModified:         time.Now(),
		ProviderStorageClass: opts.StorageClass,
		ETag:                 srcRef.ETag,
	}
	if ref.SizeBytes == 0 {
		ref.SizeBytes = int64(len(data))
	}
	if ref.ProviderStorageClass == "" {
		ref.ProviderStorageClass = a.TierStorageClass(model.TierHot)
	}

	a.mu.Lock()
	if a.objects[opts.DestContainer] == nil {
		a.objects[opts.DestContainer] = make(map[string]*mockObject)
	}
	a.objects[opts.DestContainer][opts.DestKey] = &mockObject{data: data, ref: ref, storageClass: ref.ProviderStorageClass}
	a.mu.Unlock()

	return ref, nil
}

func (a *MockAdapter) Delete(ctx context.Context, container, key string) error {
	if err := a.checkInjectedFailure("delete"); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.objects[container] != nil {
		delete(a.objects[container], key)
	}
	return nil
}

func (a *MockAdapter) SetStorageClass(ctx context.Context, container, key, storageClass string) error {
	if err := a.checkInjectedFailure("set_storage_class"); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	obj, ok := a.objects[container][key]
	if !ok {
		return translate(reasonNotFound, "provider-mock", "set_storage_class", "object not found", nil)
	}
	obj.storageClass = storageClass
	obj.ref.ProviderStorageClass = storageClass
	return nil
}

func (a *MockAdapter) PresignGet(ctx context.Context, container, key string, ttl time.Duration) (string, error) {
	if err := a.checkInjectedFailure("presign_get"); err != nil {
		return "", err
	}
	a.mu.RLock()
	_, ok := a.objects[container][key]
	a.mu.RUnlock()
	if !ok {
		return "", translate(reasonNotFound, "provider-mock", "presign_get", "object not found", nil)
	}
	return "mock://" + container + "/" + key + "?expires=" + time.Now().Add(ttl).Format(time.RFC3339), nil
}
