package vector

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestMemoryIndex_AddSearch(t *testing.T) {
	idx, err := NewMemoryIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	vecs := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}
	if err := idx.Add(ctx, []string{"a", "b", "c"}, vecs); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 3 {
		t.Errorf("Size=%d", idx.Size())
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "a" || results[1].ID != "b" {
		t.Errorf("order = %s, %s", results[0].ID, results[1].ID)
	}
}

func TestMemoryIndex_tiesKeepInsertionOrder(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	ids := []string{"z", "m", "a", "q"}
	vecs := [][]float32{{1, 0}, {1, 0}, {1, 0}, {1, 0}}
	if err := idx.Add(ctx, ids, vecs); err != nil {
		t.Fatal(err)
	}
	for run := 0; run < 5; run++ {
		hits, err := idx.Search(ctx, []float32{1, 0}, 4)
		if err != nil {
			t.Fatal(err)
		}
		for i, h := range hits {
			if h.ID != ids[i] {
				t.Fatalf("run %d: hit %d = %s, want %s", run, i, h.ID, ids[i])
			}
		}
	}
}

func TestMemoryIndex_rejectsBadBatch(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	if err := idx.Add(ctx, []string{"ok", "bad"}, [][]float32{{1, 0}, {1, 0, 0}}); err == nil {
		t.Fatal("expected dimension error")
	}
	if idx.Size() != 0 {
		t.Errorf("partial batch added: size %d", idx.Size())
	}
	if _, err := idx.Search(ctx, []float32{1}, 1); err == nil {
		t.Error("expected query dimension error")
	}
}

func TestMemoryIndex_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors", "incidents.idx")
	ctx := context.Background()

	idx, _ := NewMemoryIndex(2)
	if err := idx.Add(ctx, []string{"x", "y"}, [][]float32{{1, 0}, {0, 1}}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, _ := NewMemoryIndex(2)
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 2 {
		t.Fatalf("loaded size %d", loaded.Size())
	}
	hits, _ := loaded.Search(ctx, []float32{0, 1}, 1)
	if len(hits) != 1 || hits[0].ID != "y" {
		t.Errorf("hits = %+v", hits)
	}

	wrongDim, _ := NewMemoryIndex(3)
	if err := wrongDim.Load(path); err == nil {
		t.Error("expected dimension mismatch")
	}
}

func TestMemoryIndex_LoadMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	idx, _ := NewMemoryIndex(2)
	if err := idx.Load(filepath.Join(dir, "missing.idx")); err != nil {
		t.Errorf("missing file: %v", err)
	}
	bad := filepath.Join(dir, "bad.idx")
	if err := os.WriteFile(bad, []byte("junk"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := idx.Load(bad); err == nil {
		t.Error("expected error for corrupt file")
	}
}

func TestMemoryIndex_LoadRejectsOtherFingerprint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "risks.idx")
	idx, _ := NewMemoryIndex(2, WithFingerprint("hash/2"))
	if err := idx.Add(context.Background(), []string{"a", "b"}, [][]float32{{1, 0}, {0, 1}}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}

	same, _ := NewMemoryIndex(2, WithFingerprint("hash/2"))
	if err := same.Load(path); err != nil {
		t.Fatal(err)
	}
	if got := same.IDs(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("IDs() = %v", got)
	}

	other, _ := NewMemoryIndex(2, WithFingerprint("onnx/model.onnx/2"))
	err := other.Load(path)
	if !errors.Is(err, ErrFingerprintMismatch) {
		t.Fatalf("Load() error = %v, want ErrFingerprintMismatch", err)
	}
	if other.Size() != 0 {
		t.Errorf("rejected load left %d vectors", other.Size())
	}
}

func TestMemoryIndex_LoadRejectsOversizedLengths(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, parts ...any) string {
		var buf bytes.Buffer
		buf.WriteString(indexMagic)
		for _, p := range parts {
			if s, ok := p.(string); ok {
				buf.WriteString(s)
				continue
			}
			if err := binary.Write(&buf, binary.LittleEndian, p); err != nil {
				t.Fatal(err)
			}
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
			t.Fatal(err)
		}
		return path
	}

	idx, _ := NewMemoryIndex(2)
	// Fingerprint length of 4 GiB.
	if err := idx.Load(write("fp.idx", uint32(0xFFFFFFFF))); err == nil {
		t.Error("expected error for oversized fingerprint")
	}
	// Empty fingerprint, dimension 2, one vector whose id claims 4 GiB.
	if err := idx.Load(write("id.idx", uint32(0), uint32(2), uint32(1), uint32(0xFFFFFFFF))); err == nil {
		t.Error("expected error for oversized id")
	}
	// Claims 2^32-1 vectors but holds one.
	path := write("count.idx", uint32(0), uint32(2), uint32(0xFFFFFFFF),
		uint32(1), "a", []float32{1, 0})
	if err := idx.Load(path); err == nil {
		t.Error("expected error for truncated file")
	}
	if idx.Size() != 0 {
		t.Errorf("failed loads left %d vectors", idx.Size())
	}
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	if n := L2Norm(v); n < 0.9999 || n > 1.0001 {
		t.Errorf("norm = %f", n)
	}
	if got := InnerProduct(v, []float32{1, 0}); got < 0.5999 || got > 0.6001 {
		t.Errorf("inner product = %f", got)
	}
	zero := Normalize([]float32{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector changed: %v", zero)
	}
}
