package artifact

import "testing"

func TestNewComputesHash(t *testing.T) {
	a := New("func main() {}", "alpha", "model-1", "write main")
	if a.Version != 1 {
		t.Fatalf("version = %d, want 1", a.Version)
	}
	if a.Hash == "" || len(a.Hash) != 16 {
		t.Fatalf("hash = %q, want 16-char digest", a.Hash)
	}

	same := New("func main() {}", "alpha", "model-1", "write main")
	if same.Hash != a.Hash {
		t.Fatalf("identical content hashed differently: %s vs %s", same.Hash, a.Hash)
	}
	other := New("func main() {}", "beta", "model-1", "write main")
	if other.Hash == a.Hash {
		t.Fatal("provider should contribute to the hash")
	}
}

func TestNewVersionChainsLineage(t *testing.T) {
	a := New("draft", "alpha", "model-1", "write a draft")
	b := a.NewVersion("revised draft")

	if b.ID != a.ID {
		t.Fatalf("version chain broke the ID: %s vs %s", b.ID, a.ID)
	}
	if b.Version != 2 {
		t.Fatalf("version = %d, want 2", b.Version)
	}
	if b.Hash == a.Hash {
		t.Fatal("new content should produce a new hash")
	}
	if a.Content != "draft" {
		t.Fatalf("original mutated: %q", a.Content)
	}
}

func TestWithMetadataCopies(t *testing.T) {
	a := New("content", "alpha", "model-1", "prompt")
	b := a.WithMetadata("round", "r-1")

	if _, ok := a.Metadata["round"]; ok {
		t.Fatal("original metadata mutated")
	}
	if b.Metadata["round"] != "r-1" {
		t.Fatalf("metadata = %v", b.Metadata)
	}
	if b.Hash != a.Hash || b.Version != a.Version {
		t.Fatal("metadata must not change identity")
	}
}
