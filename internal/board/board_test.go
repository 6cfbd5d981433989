package board

import (
	"errors"
	"math/rand"
	"testing"
)

func newTestGenerator() *Generator {
	return NewGenerator(rand.New(rand.NewSource(1)))
}

func TestGenerate_CellAndPairCounts(t *testing.T) {
	g := newTestGenerator()

	b, err := g.Generate(9)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if len(b.Cells) != 18 {
		t.Fatalf("want 18 cells, got %d", len(b.Cells))
	}
	if b.PairCount() != 9 {
		t.Fatalf("want 9 pairs, got %d", b.PairCount())
	}
	if len(b.PairOf) != 18 {
		t.Fatalf("want 18 pair map entries, got %d", len(b.PairOf))
	}
}

func TestGenerate_PairMapIsBidirectional(t *testing.T) {
	g := newTestGenerator()

	b, err := g.Generate(9)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	for id, twin := range b.PairOf {
		if id == twin {
			t.Fatalf("cell %d is paired with itself", id)
		}
		if back, ok := b.PairOf[twin]; !ok || back != id {
			t.Fatalf("pair map not bidirectional: %d -> %d -> %d", id, twin, back)
		}
		if !b.IsPair(id, twin) {
			t.Fatalf("IsPair(%d, %d) = false", id, twin)
		}
	}
}

func TestGenerate_ShuffleKeepsEveryCell(t *testing.T) {
	g := newTestGenerator()

	b, err := g.Generate(9)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	seen := map[int]bool{}
	for _, c := range b.Cells {
		if seen[c.ID] {
			t.Fatalf("duplicate cell id %d", c.ID)
		}
		seen[c.ID] = true
	}
	for id := 1; id <= 18; id++ {
		if !seen[id] {
			t.Fatalf("missing cell id %d", id)
		}
	}
}

func TestGenerate_PairedCellsShareImage(t *testing.T) {
	g := newTestGenerator()

	b, err := g.Generate(6)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	images := map[int]string{}
	for _, c := range b.Cells {
		images[c.ID] = c.Image
	}
	for id, twin := range b.PairOf {
		if images[id] != images[twin] {
			t.Fatalf("cells %d and %d are paired but show %q and %q",
				id, twin, images[id], images[twin])
		}
	}
}

func TestGenerate_RejectsBadPairCounts(t *testing.T) {
	g := newTestGenerator()

	for _, pairs := range []int{0, -1, imagePool + 1} {
		if _, err := g.Generate(pairs); !errors.Is(err, ErrBadPairCount) {
			t.Fatalf("pairs=%d: want ErrBadPairCount, got %v", pairs, err)
		}
	}
}
