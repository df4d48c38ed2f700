// Package catalog implements the Object Catalog: a read-mostly map from
// (provider, container, key) to CatalogEntry, bulk-rewritten on refresh
// and single-entry updated on migration completion.
package catalog

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloudorch/orchestrator/internal/model"
	"github.com/cloudorch/orchestrator/internal/provider"
	"github.com/cloudorch/orchestrator/pkg/retry"
)

// snapshot is an immutable per-provider view of the catalog. A refresh
// builds a new snapshot and swaps it in; readers that grabbed the old
// pointer keep seeing a complete, consistent view until they look again.
type snapshot struct {
	entries map[string]model.CatalogEntry // keyed by container+"/"+key
}

func entryKey(container, key string) string {
	return container + "/" + key
}

func newSnapshot() *snapshot {
	return &snapshot{entries: make(map[string]model.CatalogEntry)}
}

// RefreshSummary reports what a refresh observed.
type RefreshSummary struct {
	Provider provider.Name
	Added    int
	Updated  int
	Removed  int
	Total    int
}

// providerSlot holds one provider's current snapshot plus the lock that
// serializes writers against it. Readers never take writeMu: they load
// the atomic pointer directly, so a refresh or a single-entry mutate
// never blocks a concurrent List or Get.
type providerSlot struct {
	ptr atomic.Pointer[snapshot]

	// writeMu serializes the load-copy-mutate-store sequence any writer
	// (Refresh, swap) performs against ptr. Without it, two concurrent
	// writers against the same slot (e.g. a RecordAccess racing an
	// ApplyMigration for the same provider) can both load the same
	// snapshot, each build a copy with only its own change applied, and
	// whichever stores last silently discards the other's update.
	writeMu sync.Mutex
}

func newProviderSlot() *providerSlot {
	s := &providerSlot{}
	s.ptr.Store(newSnapshot())
	return s
}

// Catalog holds one snapshot pointer per provider. Each provider's slot is
// swapped independently so a refresh of one provider never blocks, or is
// blocked by, reads or refreshes of another.
type Catalog struct {
	// mu guards only the providers map itself (adding a never-seen-before
	// provider name); it is never held while reading or building a
	// snapshot, so it is not a point of contention between refreshes.
	mu        sync.RWMutex
	providers map[provider.Name]*providerSlot
	retryer   *retry.Retryer
}

// New builds an empty Catalog. A transient Enumerate failure partway
// through a refresh (a single dropped connection on page 40 of 100)
// retries with pkg/retry's default policy (up to 3 attempts, exponential
// backoff with jitter), rather than discarding the whole refresh.
func New() *Catalog {
	return &Catalog{
		providers: make(map[provider.Name]*providerSlot),
		retryer:   retry.New(retry.DefaultConfig()),
	}
}

func (c *Catalog) providerSlot(name provider.Name) *providerSlot {
	c.mu.RLock()
	slot, ok := c.providers[name]
	c.mu.RUnlock()
	if ok {
		return slot
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if slot, ok := c.providers[name]; ok {
		return slot
	}
	slot = newProviderSlot()
	c.providers[name] = slot
	return slot
}

// Refresh rebuilds the subset of the catalog belonging to providerName by
// paging through adapter.Enumerate for every container, deriving
// current_tier from each object's provider_storage_class. Access stats
// for keys already present carry over unchanged; newly observed keys
// start with zero access stats. Entries present in the prior snapshot and
// absent from the new enumeration are dropped.
func (c *Catalog) Refresh(ctx context.Context, providerName provider.Name, adapter provider.Adapter, containers []string, now time.Time) (RefreshSummary, error) {
	slot := c.providerSlot(providerName)
	slot.writeMu.Lock()
	defer slot.writeMu.Unlock()

	previous := slot.ptr.Load()

	next := newSnapshot()
	for _, container := range containers {
		if err := c.refreshContainer(ctx, providerName, adapter, container, previous, next, now); err != nil {
			return RefreshSummary{}, err
		}
	}

	summary := RefreshSummary{Provider: providerName, Total: len(next.entries)}
	for key := range next.entries {
		if _, existed := previous.entries[key]; existed {
			summary.Updated++
		} else {
			summary.Added++
		}
	}
	for key := range previous.entries {
		if _, stillPresent := next.entries[key]; !stillPresent {
			summary.Removed++
		}
	}

	slot.ptr.Store(next)
	return summary, nil
}

func (c *Catalog) refreshContainer(ctx context.Context, providerName provider.Name, adapter provider.Adapter, container string, previous, next *snapshot, now time.Time) error {
	pageToken := ""
	for {
		var page provider.Page
		err := c.retryer.Do(ctx, func(ctx context.Context) error {
			var enumErr error
			page, enumErr = adapter.Enumerate(ctx, provider.EnumerateOptions{Container: container, PageToken: pageToken})
			return enumErr
		})
		if err != nil {
			return err
		}

		for _, ref := range page.Objects {
			key := entryKey(container, ref.Key)
			entry := model.CatalogEntry{
				Ref:         ref,
				CurrentTier: tierOf(adapter, ref),
			}
			if prior, existed := previous.entries[key]; existed {
				entry.Access = prior.Access
			}
			entry.Access.AgeDays = ageInDays(ref.LastModified, now)
			next.entries[key] = entry
		}

		if page.NextToken == "" {
			return nil
		}
		pageToken = page.NextToken

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func tierOf(adapter provider.Adapter, ref model.ObjectRef) model.Tier {
	if mapper, ok := adapter.(provider.TierMapper); ok {
		return mapper.StorageClassTier(ref.ProviderStorageClass)
	}
	return model.TierHot
}

func ageInDays(lastModified, now time.Time) int {
	if lastModified.IsZero() {
		return 0
	}
	days := int(now.Sub(lastModified).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// Filter narrows a List call by provider and/or tier. A zero value field
// means "no constraint on this dimension".
type Filter struct {
	Provider provider.Name
	Tier     *model.Tier
}

// List returns every CatalogEntry matching filter, sorted by container
// then key for stable pagination-free output.
func (c *Catalog) List(filter Filter) []model.CatalogEntry {
	var slots []*providerSlot
	c.mu.RLock()
	if filter.Provider != "" {
		if slot, ok := c.providers[filter.Provider]; ok {
			slots = []*providerSlot{slot}
		}
	} else {
		for _, slot := range c.providers {
			slots = append(slots, slot)
		}
	}
	c.mu.RUnlock()

	var out []model.CatalogEntry
	for _, slot := range slots {
		snap := slot.ptr.Load()
		for _, entry := range snap.entries {
			if filter.Tier != nil && entry.CurrentTier != *filter.Tier {
				continue
			}
			out = append(out, entry)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Ref.Container != out[j].Ref.Container {
			return out[i].Ref.Container < out[j].Ref.Container
		}
		return out[i].Ref.Key < out[j].Ref.Key
	})
	return out
}

// Get performs a point lookup. The second return is false if the object
// was not present as of the provider's last refresh.
func (c *Catalog) Get(providerName provider.Name, container, key string) (model.CatalogEntry, bool) {
	c.mu.RLock()
	slot, ok := c.providers[providerName]
	c.mu.RUnlock()
	if !ok {
		return model.CatalogEntry{}, false
	}
	snap := slot.ptr.Load()
	entry, ok := snap.entries[entryKey(container, key)]
	return entry, ok
}

// SetRecommendation attaches rec (which may be nil) to the entry for
// (providerName, container, key), if it exists. Used by the background
// classification pass; does not touch any other provider's snapshot.
func (c *Catalog) SetRecommendation(providerName provider.Name, container, key string, rec *model.Recommendation) {
	c.mutate(providerName, container, key, func(entry *model.CatalogEntry) {
		entry.Recommendation = rec
	})
}

// RecordAccess bumps the access stats for an observed access to
// (providerName, container, key) at now. The Access Predictor's features
// and the classifier's rule A both read these stats on the next pass.
func (c *Catalog) RecordAccess(providerName provider.Name, container, key string, now time.Time) {
	c.mutate(providerName, container, key, func(entry *model.CatalogEntry) {
		entry.Access.AccessCountWindow++
		entry.Access.LastAccessAt = now
	})
}

// ApplyMigration updates the catalog after a migration job completes, in
// whole or in part: each verified copy adds (or refreshes) a destination
// entry, and when the job's semantics delete the source, the source entry
// is removed. Entries for files that failed or were skipped are left
// untouched.
func (c *Catalog) ApplyMigration(job model.MigrationJob, deleteSource bool) {
	sourceProvider := provider.Name(job.SourceProvider)
	destProvider := provider.Name(job.DestProvider)

	for _, file := range job.Files {
		if file.State != model.TransferVerified {
			continue
		}

		srcRef, _ := c.Get(sourceProvider, job.SourceContainer, file.SourceKey)

		destKey := entryKey(job.DestContainer, file.DestKey)
		destSlot := c.providerSlot(destProvider)
		c.swap(destSlot, func(snap *snapshot) {
			entry := snap.entries[destKey]
			entry.Ref = model.ObjectRef{
				Provider:  string(destProvider),
				Container: job.DestContainer,
				Key:       file.DestKey,
				SizeBytes: srcRef.Ref.SizeBytes,
			}
			entry.CurrentTier = model.TierHot
			snap.entries[destKey] = entry
		})

		if deleteSource {
			srcKey := entryKey(job.SourceContainer, file.SourceKey)
			srcSlot := c.providerSlot(sourceProvider)
			c.swap(srcSlot, func(snap *snapshot) {
				delete(snap.entries, srcKey)
			})
		}
	}
}

func (c *Catalog) mutate(providerName provider.Name, container, key string, fn func(*model.CatalogEntry)) {
	slot := c.providerSlot(providerName)
	entryK := entryKey(container, key)
	c.swap(slot, func(snap *snapshot) {
		entry, ok := snap.entries[entryK]
		if !ok {
			return
		}
		fn(&entry)
		snap.entries[entryK] = entry
	})
}

// swap builds a shallow copy of slot's current snapshot, lets fn mutate
// the copy, then stores it, holding slot.writeMu for the duration so a
// concurrent swap against the same slot can't load the same pre-mutation
// snapshot and clobber this one's store. Readers mid-flight never take
// writeMu and keep seeing the pre-swap snapshot in full; there is no
// window where a reader sees half-applied changes.
func (c *Catalog) swap(slot *providerSlot, fn func(*snapshot)) {
	slot.writeMu.Lock()
	defer slot.writeMu.Unlock()

	current := slot.ptr.Load()
	next := &snapshot{entries: make(map[string]model.CatalogEntry, len(current.entries))}
	for k, v := range current.entries {
		next.entries[k] = v
	}
	fn(next)
	slot.ptr.Store(next)
}
