package board

import (
	"errors"
	"fmt"
	"math/rand"
	"time"
)

var ErrBadPairCount = errors.New("pair count out of range")

// imagePool is the number of distinct tile images available to the
// generator. Image paths are resolved by the client.
const imagePool = 32

// Cell is a single face-down tile on the board.
type Cell struct {
	ID    int    `json:"id"`
	Image string `json:"image"`
}

// Board is the full layout handed to both participants of a session.
// It is generated once at session creation and never regenerated, so
// owner and opponent play the identical board.
type Board struct {
	Cells  []Cell      `json:"cells"`
	PairOf map[int]int `json:"pair_of"`
}

// PairCount returns the number of tile pairs on the board.
func (b Board) PairCount() int { return len(b.Cells) / 2 }

// IsPair reports whether cells a and b form a matching pair.
func (b Board) IsPair(a, c int) bool {
	twin, ok := b.PairOf[a]
	return ok && twin == c
}

// Generator produces shuffled boards. It is pure apart from its random
// source and safe to share only if the source is.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator returns a board generator backed by rng. A nil rng gets
// a time-seeded source.
func NewGenerator(rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Generator{rng: rng}
}

// Generate builds a board of pairs tile pairs: 2*pairs cells with ids
// 1..2*pairs, a bidirectional pair map, and a shuffled cell order.
func (g *Generator) Generate(pairs int) (Board, error) {
	if pairs < 1 || pairs > imagePool {
		return Board{}, fmt.Errorf("%w: %d", ErrBadPairCount, pairs)
	}

	images := g.rng.Perm(imagePool)[:pairs]

	b := Board{
		Cells:  make([]Cell, 0, pairs*2),
		PairOf: make(map[int]int, pairs*2),
	}

	id := 1
	for _, img := range images {
		path := fmt.Sprintf("/images/tiles/%02d.png", img+1)
		first := Cell{ID: id, Image: path}
		second := Cell{ID: id + 1, Image: path}
		id += 2

		b.Cells = append(b.Cells, first, second)
		b.PairOf[first.ID] = second.ID
		b.PairOf[second.ID] = first.ID
	}

	g.rng.Shuffle(len(b.Cells), func(i, j int) {
		b.Cells[i], b.Cells[j] = b.Cells[j], b.Cells[i]
	})

	return b, nil
}
