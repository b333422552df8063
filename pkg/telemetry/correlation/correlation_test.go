package correlation

import (
	"context"
	"testing"

	"github.com/oklog/ulid/v2"
)

func TestEnsureCorrelationIDGeneratesULID(t *testing.T) {
	ctx, cid := EnsureCorrelationID(context.Background())
	if _, err := ulid.ParseStrict(cid); err != nil {
		t.Fatalf("expected ulid, got %q: %v", cid, err)
	}
	if got := ExtractCorrelationID(ctx); got != cid {
		t.Fatalf("expected %q on context, got %q", cid, got)
	}

	_, again := EnsureCorrelationID(ctx)
	if again != cid {
		t.Fatalf("expected existing id to be kept, got %q", again)
	}
}

func TestMetadataOmitsMissingValues(t *testing.T) {
	meta := Metadata(context.Background())
	if len(meta) != 0 {
		t.Fatalf("expected empty metadata, got %v", meta)
	}

	ctx := ContextWithCorrelationID(context.Background(), "cid-1")
	meta = Metadata(ctx)
	if meta[HeaderName] != "cid-1" {
		t.Fatalf("expected correlation id header, got %v", meta)
	}
}
