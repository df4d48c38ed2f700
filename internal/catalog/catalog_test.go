package catalog

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cloudorch/orchestrator/internal/model"
	"github.com/cloudorch/orchestrator/internal/provider"
)

func seedMock(t *testing.T, keys ...string) *provider.MockAdapter {
	t.Helper()
	adapter := provider.NewMockAdapter()
	for _, key := range keys {
		adapter.Seed("bucket", model.ObjectRef{
			Container:            "bucket",
			Key:                  key,
			SizeBytes:            1024,
			LastModified:         time.Now().AddDate(0, 0, -10),
			ProviderStorageClass: "STANDARD",
		}, []byte("data"))
	}
	return adapter
}

func TestRefreshPopulatesEntries(t *testing.T) {
	adapter := seedMock(t, "a.txt", "b.txt")
	c := New()

	summary, err := c.Refresh(context.Background(), provider.Mock, adapter, []string{"bucket"}, time.Now())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if summary.Added != 2 || summary.Total != 2 {
		t.Errorf("summary = %+v, want Added=2 Total=2", summary)
	}

	entries := c.List(Filter{Provider: provider.Mock})
	if len(entries) != 2 {
		t.Fatalf("List returned %d entries, want 2", len(entries))
	}
}

func TestRefreshRemovesEntriesMissingFromLatestEnumeration(t *testing.T) {
	adapter := seedMock(t, "a.txt", "b.txt")
	c := New()
	if _, err := c.Refresh(context.Background(), provider.Mock, adapter, []string{"bucket"}, time.Now()); err != nil {
		t.Fatalf("first refresh: %v", err)
	}

	if err := adapter.Delete(context.Background(), "bucket", "b.txt"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	summary, err := c.Refresh(context.Background(), provider.Mock, adapter, []string{"bucket"}, time.Now())
	if err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if summary.Removed != 1 || summary.Total != 1 {
		t.Errorf("summary = %+v, want Removed=1 Total=1", summary)
	}
	if _, ok := c.Get(provider.Mock, "bucket", "b.txt"); ok {
		t.Error("expected b.txt to be gone after refresh observed its removal")
	}
}

func TestRefreshPreservesAccessStatsAcrossRefreshes(t *testing.T) {
	adapter := seedMock(t, "a.txt")
	c := New()
	if _, err := c.Refresh(context.Background(), provider.Mock, adapter, []string{"bucket"}, time.Now()); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	c.RecordAccess(provider.Mock, "bucket", "a.txt", time.Now())

	if _, err := c.Refresh(context.Background(), provider.Mock, adapter, []string{"bucket"}, time.Now()); err != nil {
		t.Fatalf("second refresh: %v", err)
	}

	entry, ok := c.Get(provider.Mock, "bucket", "a.txt")
	if !ok {
		t.Fatal("expected a.txt to still be present")
	}
	if entry.Access.AccessCountWindow != 1 {
		t.Errorf("AccessCountWindow = %d, want 1 to survive a refresh", entry.Access.AccessCountWindow)
	}
}

func TestRefreshOfOneProviderDoesNotAffectAnother(t *testing.T) {
	awsAdapter := seedMock(t, "aws-1.txt")
	c := New()
	if _, err := c.Refresh(context.Background(), provider.AWS, awsAdapter, []string{"bucket"}, time.Now()); err != nil {
		t.Fatalf("aws refresh: %v", err)
	}

	azureAdapter := seedMock(t, "azure-1.txt")
	if _, err := c.Refresh(context.Background(), provider.Azure, azureAdapter, []string{"bucket"}, time.Now()); err != nil {
		t.Fatalf("azure refresh: %v", err)
	}

	if _, ok := c.Get(provider.AWS, "bucket", "aws-1.txt"); !ok {
		t.Error("expected the AWS entry to survive an Azure refresh")
	}
	if len(c.List(Filter{Provider: provider.AWS})) != 1 {
		t.Error("expected exactly one AWS entry")
	}
	if len(c.List(Filter{Provider: provider.Azure})) != 1 {
		t.Error("expected exactly one Azure entry")
	}
}

func TestListFiltersByTier(t *testing.T) {
	adapter := provider.NewMockAdapter()
	adapter.Seed("bucket", model.ObjectRef{Container: "bucket", Key: "hot.txt", ProviderStorageClass: "STANDARD"}, []byte("x"))
	adapter.Seed("bucket", model.ObjectRef{Container: "bucket", Key: "cold.txt", ProviderStorageClass: "ARCHIVE"}, []byte("x"))

	c := New()
	if _, err := c.Refresh(context.Background(), provider.Mock, adapter, []string{"bucket"}, time.Now()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	cold := model.TierArchive
	entries := c.List(Filter{Provider: provider.Mock, Tier: &cold})
	if len(entries) != 1 || entries[0].Ref.Key != "cold.txt" {
		t.Errorf("expected exactly cold.txt filtered by ARCHIVE tier, got %+v", entries)
	}
}

func TestApplyMigrationAddsDestinationAndRemovesSourceWhenRequested(t *testing.T) {
	srcAdapter := seedMock(t, "report.csv")
	c := New()
	if _, err := c.Refresh(context.Background(), provider.AWS, srcAdapter, []string{"bucket"}, time.Now()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	job := model.MigrationJob{
		SourceProvider:  string(provider.AWS),
		DestProvider:    string(provider.Azure),
		SourceContainer: "bucket",
		DestContainer:   "archive",
		Files: []model.FileTransfer{
			{SourceKey: "report.csv", DestKey: "report.csv", State: model.TransferVerified},
		},
	}

	c.ApplyMigration(job, true)

	if _, ok := c.Get(provider.AWS, "bucket", "report.csv"); ok {
		t.Error("expected the source entry to be removed after a delete-source migration")
	}
	dest, ok := c.Get(provider.Azure, "archive", "report.csv")
	if !ok {
		t.Fatal("expected a destination entry to be added")
	}
	if dest.Ref.SizeBytes != 1024 {
		t.Errorf("dest SizeBytes = %d, want 1024 carried over from the source ref", dest.Ref.SizeBytes)
	}
}

func TestApplyMigrationSkipsUnverifiedFiles(t *testing.T) {
	c := New()
	job := model.MigrationJob{
		SourceProvider:  string(provider.AWS),
		DestProvider:    string(provider.Azure),
		SourceContainer: "bucket",
		DestContainer:   "archive",
		Files: []model.FileTransfer{
			{SourceKey: "failed.csv", DestKey: "failed.csv", State: model.TransferFailed},
		},
	}
	c.ApplyMigration(job, true)
	if _, ok := c.Get(provider.Azure, "archive", "failed.csv"); ok {
		t.Error("expected no destination entry for a failed transfer")
	}
}

func TestRefreshIsSnapshotConsistentUnderConcurrentReaders(t *testing.T) {
	adapter := provider.NewMockAdapter()
	for i := 0; i < 50; i++ {
		adapter.Seed("bucket", model.ObjectRef{Container: "bucket", Key: fmt.Sprintf("key-%02d", i)}, []byte("x"))
	}
	c := New()
	if _, err := c.Refresh(context.Background(), provider.Mock, adapter, []string{"bucket"}, time.Now()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				entries := c.List(Filter{Provider: provider.Mock})
				if len(entries) != 50 {
					t.Errorf("torn read: saw %d entries mid-refresh, want a stable 50", len(entries))
				}
			}
		}
	}()

	if _, err := c.Refresh(context.Background(), provider.Mock, adapter, []string{"bucket"}, time.Now()); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	close(stop)
	wg.Wait()
}
