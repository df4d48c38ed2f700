package provider

import (
	"context"
	"testing"
	"time"

	"github.com/cloudorch/orchestrator/internal/model"
	"github.com/cloudorch/orchestrator/pkg/orcherr"
)

func TestMockAdapterStatNotFound(t *testing.T) {
	a := NewMockAdapter()
	_, err := a.Stat(context.Background(), "bucket-a", "missing.bin")
	if orcherr.CodeOf(err) != orcherr.CodeNotFound {
		t.Errorf("CodeOf(err) = %v, want NOT_FOUND", orcherr.CodeOf(err))
	}
}

func TestMockAdapterSeedAndStat(t *testing.T) {
	a := NewMockAdapter()
	a.Seed("bucket-a", model.ObjectRef{Key: "report.pdf", SizeBytes: 1048576}, []byte("x"))

	ref, err := a.Stat(context.Background(), "bucket-a", "report.pdf")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if ref.SizeBytes != 1048576 {
		t.Errorf("SizeBytes = %d, want 1048576", ref.SizeBytes)
	}
	if ref.Provider != string(Mock) {
		t.Errorf("Provider = %q, want %q", ref.Provider, Mock)
	}
}

func TestMockAdapterEnumeratePagination(t *testing.T) {
	a := NewMockAdapter()
	for i := 0; i < 5; i++ {
		a.Seed("bucket-a", model.ObjectRef{Key: string(rune('a' + i))}, nil)
	}

	page, err := a.Enumerate(context.Background(), EnumerateOptions{Container: "bucket-a", PageSize: 2})
	if err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}
	if len(page.Objects) != 2 {
		t.Fatalf("len(page.Objects) = %d, want 2", len(page.Objects))
	}
	if page.NextToken == "" {
		t.Fatal("expected a continuation token for a partial page")
	}

	var all []model.ObjectRef
	all = append(all, page.Objects...)
	for page.NextToken != "" {
		page, err = a.Enumerate(context.Background(), EnumerateOptions{Container: "bucket-a", PageSize: 2, PageToken: page.NextToken})
		if err != nil {
			t.Fatalf("Enumerate() error = %v", err)
		}
		all = append(all, page.Objects...)
	}
	if len(all) != 5 {
		t.Errorf("total objects enumerated = %d, want 5", len(all))
	}
}

func TestMockAdapterCopyObjectSameProvider(t *testing.T) {
	a := NewMockAdapter()
	a.Seed("bucket-a", model.ObjectRef{Key: "report.pdf", SizeBytes: 42, ETag: "etag-1"}, []byte("hello world"))

	ref, err := a.CopyObject(context.Background(), a, CopyOptions{
		SourceContainer: "bucket-a",
		SourceKey:       "report.pdf",
		DestContainer:   "bucket-b",
		DestKey:         "report.pdf",
	})
	if err != nil {
		t.Fatalf("CopyObject() error = %v", err)
	}
	if ref.Key != "report.pdf" || ref.Container != "bucket-b" {
		t.Errorf("unexpected dest ref: %+v", ref)
	}

	statRef, err := a.Stat(context.Background(), "bucket-b", "report.pdf")
	if err != nil {
		t.Fatalf("Stat(dest) error = %v", err)
	}
	if statRef.SizeBytes != 42 {
		t.Errorf("dest SizeBytes = %d, want 42 (copied from source)", statRef.SizeBytes)
	}
}

func TestMockAdapterCopyObjectCrossProvider(t *testing.T) {
	src := NewMockAdapter()
	dst := NewMockAdapter()
	src.Seed("bucket-a", model.ObjectRef{Key: "report.pdf"}, []byte("cross provider payload"))

	ref, err := dst.CopyObject(context.Background(), src, CopyOptions{
		SourceContainer: "bucket-a",
		SourceKey:       "report.pdf",
		DestContainer:   "bucket-b",
		DestKey:         "report.pdf",
	})
	if err != nil {
		t.Fatalf("CopyObject() error = %v", err)
	}
	if ref.SizeBytes != int64(len("cross provider payload")) {
		t.Errorf("SizeBytes = %d, want %d", ref.SizeBytes, len("cross provider payload"))
	}

	if _, err := dst.Stat(context.Background(), "bucket-b", "report.pdf"); err != nil {
		t.Fatalf("Stat(dest after cross-provider copy) error = %v", err)
	}
}

func TestMockAdapterCopyObjectIdempotent(t *testing.T) {
	a := NewMockAdapter()
	a.Seed("bucket-a", model.ObjectRef{Key: "a.bin", SizeBytes: 10}, []byte("0123456789"))

	opts := CopyOptions{SourceContainer: "bucket-a", SourceKey: "a.bin", DestContainer: "bucket-b", DestKey: "a.bin"}
	first, err := a.CopyObject(context.Background(), a, opts)
	if err != nil {
		t.Fatalf("first CopyObject() error = %v", err)
	}
	second, err := a.CopyObject(context.Background(), a, opts)
	if err != nil {
		t.Fatalf("second CopyObject() error = %v", err)
	}
	if first.SizeBytes != second.SizeBytes || first.ETag != second.ETag {
		t.Errorf("repeated copy_object produced different results: %+v vs %+v", first, second)
	}
}

func TestMockAdapterDeleteIsIdempotent(t *testing.T) {
	a := NewMockAdapter()
	a.Seed("bucket-a", model.ObjectRef{Key: "x.bin"}, nil)

	if err := a.Delete(context.Background(), "bucket-a", "x.bin"); err != nil {
		t.Fatalf("first Delete() error = %v", err)
	}
	if err := a.Delete(context.Background(), "bucket-a", "x.bin"); err != nil {
		t.Fatalf("second Delete() on an already-deleted object error = %v, want nil", err)
	}
}

func TestMockAdapterSetStorageClass(t *testing.T) {
	a := NewMockAdapter()
	a.Seed("bucket-a", model.ObjectRef{Key: "x.bin"}, nil)

	if err := a.SetStorageClass(context.Background(), "bucket-a", "x.bin", "ARCHIVE"); err != nil {
		t.Fatalf("SetStorageClass() error = %v", err)
	}
	ref, _ := a.Stat(context.Background(), "bucket-a", "x.bin")
	if ref.ProviderStorageClass != "ARCHIVE" {
		t.Errorf("ProviderStorageClass = %q, want ARCHIVE", ref.ProviderStorageClass)
	}
}

func TestMockAdapterPresignGet(t *testing.T) {
	a := NewMockAdapter()
	a.Seed("bucket-a", model.ObjectRef{Key: "x.bin"}, nil)

	url, err := a.PresignGet(context.Background(), "bucket-a", "x.bin", 15*time.Minute)
	if err != nil {
		t.Fatalf("PresignGet() error = %v", err)
	}
	if url == "" {
		t.Error("expected a non-empty presigned URL")
	}

	if _, err := a.PresignGet(context.Background(), "bucket-a", "missing.bin", time.Minute); orcherr.CodeOf(err) != orcherr.CodeNotFound {
		t.Errorf("PresignGet(missing) code = %v, want NOT_FOUND", orcherr.CodeOf(err))
	}
}

func TestMockAdapterFailNextInjection(t *testing.T) {
	a := NewMockAdapter()
	a.Seed("bucket-a", model.ObjectRef{Key: "x.bin"}, nil)
	a.FailNext("stat", reasonUnavailable)

	_, err := a.Stat(context.Background(), "bucket-a", "x.bin")
	if orcherr.CodeOf(err) != orcherr.CodeProviderUnavailable {
		t.Fatalf("CodeOf(err) = %v, want PROVIDER_UNAVAILABLE", orcherr.CodeOf(err))
	}

	// Injected failure is consumed; the next call succeeds.
	if _, err := a.Stat(context.Background(), "bucket-a", "x.bin"); err != nil {
		t.Fatalf("Stat() after injected failure was consumed, error = %v, want nil", err)
	}
}

func TestMockAdapterTierStorageClassRoundTrip(t *testing.T) {
	a := NewMockAdapter()
	for _, tier := range []model.Tier{model.TierHot, model.TierWarm, model.TierCold, model.TierArchive} {
		class := a.TierStorageClass(tier)
		if got := a.StorageClassTier(class); got != tier {
			t.Errorf("StorageClassTier(TierStorageClass(%v)) = %v, want %v", tier, got, tier)
		}
	}
}
