package repository

import "testing"

func TestChunks(t *testing.T) {
	items := make([]int, 1234)
	for i := range items {
		items[i] = i
	}

	chunks := Chunks(items, 500)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	wantSizes := []int{500, 500, 234}
	total := 0
	for i, c := range chunks {
		if len(c) != wantSizes[i] {
			t.Errorf("chunk %d: expected %d items, got %d", i, wantSizes[i], len(c))
		}
		total += len(c)
	}
	if total != 1234 {
		t.Fatalf("expected 1234 items across chunks, got %d", total)
	}
	if chunks[0][0] != 0 || chunks[2][233] != 1233 {
		t.Fatalf("chunks do not preserve order: first=%d last=%d", chunks[0][0], chunks[2][233])
	}
}

func TestChunksSmallInput(t *testing.T) {
	chunks := Chunks([]string{"a", "b"}, 500)
	if len(chunks) != 1 || len(chunks[0]) != 2 {
		t.Fatalf("expected one chunk of 2, got %v", chunks)
	}
	if Chunks([]string{}, 500) != nil {
		t.Fatal("expected nil for empty input")
	}
}
