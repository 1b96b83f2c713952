package graph

import (
	"math"

	"github.com/rendis/canvasflow/pkg/schema"
)

// Rect is an axis-aligned box in absolute canvas coordinates.
type Rect struct {
	Min schema.Position
	Max schema.Position
}

// Width of the box.
func (r Rect) Width() float64 { return r.Max.X - r.Min.X }

// Height of the box.
func (r Rect) Height() float64 { return r.Max.Y - r.Min.Y }

// Bounds returns the box enclosing the given nodes, using absolute positions
// and node sizes. Unknown IDs are skipped; ok is false if none were found.
func (g *Graph) Bounds(ids []string) (Rect, bool) {
	r := Rect{
		Min: schema.Position{X: math.Inf(1), Y: math.Inf(1)},
		Max: schema.Position{X: math.Inf(-1), Y: math.Inf(-1)},
	}
	found := false
	for _, id := range ids {
		n, ok := g.Node(id)
		if !ok {
			continue
		}
		pos, _ := g.AbsolutePosition(id)
		w, h := n.Size()
		r.Min.X = math.Min(r.Min.X, pos.X)
		r.Min.Y = math.Min(r.Min.Y, pos.Y)
		r.Max.X = math.Max(r.Max.X, pos.X+w)
		r.Max.Y = math.Max(r.Max.Y, pos.Y+h)
		found = true
	}
	if !found {
		return Rect{}, false
	}
	return r, true
}
