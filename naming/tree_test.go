package naming

import (
	"errors"
	"testing"

	"github.com/netfsd/netfsd/protocol"
)

func TestTreeCreateAndLookup(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"root is always present", "/", nil},
		{"single component", "docs", nil},
		{"nested components", "docs/guides/intro", nil},
		{"empty path rejected", "", protocol.InvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := NewTree()
			err := tree.Create(tt.path)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Create(%q) = %v, want %v", tt.path, err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			node, err := tree.Lookup(tt.path)
			if err != nil {
				t.Fatalf("Lookup(%q) after Create: %v", tt.path, err)
			}
			if node.Kind() != KindDirectory {
				t.Fatalf("Lookup(%q).Kind() = %v, want KindDirectory", tt.path, node.Kind())
			}
		})
	}
}

func TestTreeCreateIdempotentOnExistingDirectory(t *testing.T) {
	tree := NewTree()
	if err := tree.Create("a/b/c"); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if err := tree.Create("a/b/c"); err != nil {
		t.Fatalf("second Create on same path should be idempotent: %v", err)
	}
}

func TestTreeCreateRejectsExistingFilePath(t *testing.T) {
	tree := NewTree()
	if err := tree.RegisterFile("a/b.txt", FileMetadata{SSHost: "10.0.0.1", SSPort: 9100}); err != nil {
		t.Fatalf("RegisterFile: %v", err)
	}
	if err := tree.Create("a/b.txt"); !errors.Is(err, protocol.InvalidArgument) {
		t.Fatalf("Create on a file path = %v, want InvalidArgument", err)
	}
}

func TestTreeRegisterFileLastWriteWins(t *testing.T) {
	tree := NewTree()
	first := FileMetadata{SSHost: "10.0.0.1", SSPort: 9100, Size: 10}
	second := FileMetadata{SSHost: "10.0.0.2", SSPort: 9200, Size: 20}

	if err := tree.RegisterFile("data/file.bin", first); err != nil {
		t.Fatalf("first RegisterFile: %v", err)
	}
	if err := tree.RegisterFile("data/file.bin", second); err != nil {
		t.Fatalf("second RegisterFile: %v", err)
	}

	got, err := tree.GetMetadata("data/file.bin")
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if got != second {
		t.Fatalf("GetMetadata = %+v, want %+v (latest registration should win)", got, second)
	}
}

func TestTreeDeleteRefusesNonEmptyDirectory(t *testing.T) {
	tree := NewTree()
	if err := tree.RegisterFile("dir/file.txt", FileMetadata{SSHost: "h", SSPort: 1}); err != nil {
		t.Fatalf("RegisterFile: %v", err)
	}
	if err := tree.Delete("dir"); !errors.Is(err, protocol.InvalidArgument) {
		t.Fatalf("Delete non-empty dir = %v, want InvalidArgument", err)
	}
	if err := tree.Delete("dir/file.txt"); err != nil {
		t.Fatalf("Delete leaf: %v", err)
	}
	if err := tree.Delete("dir"); err != nil {
		t.Fatalf("Delete now-empty dir: %v", err)
	}
}

func TestTreeDeletePreservesSiblings(t *testing.T) {
	tree := NewTree()
	if err := tree.RegisterFile("dir/a.txt", FileMetadata{SSHost: "h", SSPort: 1}); err != nil {
		t.Fatal(err)
	}
	if err := tree.RegisterFile("dir/b.txt", FileMetadata{SSHost: "h", SSPort: 1}); err != nil {
		t.Fatal(err)
	}
	if err := tree.Delete("dir/a.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := tree.Lookup("dir/b.txt"); err != nil {
		t.Fatalf("sibling should survive deletion: %v", err)
	}
	if _, err := tree.Lookup("dir/a.txt"); !errors.Is(err, protocol.NotFound) {
		t.Fatalf("deleted node should be gone, got %v", err)
	}
}

func TestTreeLookupMissingReturnsNotFound(t *testing.T) {
	tree := NewTree()
	if _, err := tree.Lookup("nope"); !errors.Is(err, protocol.NotFound) {
		t.Fatalf("Lookup missing path = %v, want NotFound", err)
	}
}

func TestTreeGetMetadataRejectsDirectory(t *testing.T) {
	tree := NewTree()
	if err := tree.Create("dir"); err != nil {
		t.Fatal(err)
	}
	if _, err := tree.GetMetadata("dir"); !errors.Is(err, protocol.NotFound) {
		t.Fatalf("GetMetadata on directory = %v, want NotFound", err)
	}
}
