/*
Copyright © 2019 the Sprawl authors.
This file is part of Sprawl.

Sprawl is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Sprawl is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Sprawl.  If not, see <http://www.gnu.org/licenses/>.
*/

package sprawl

import (
	"math"
	"runtime"
	"sync"

	"github.com/ctessum/geom"
)

// NoCell marks a block slot without a corresponding grid cell.
const NoCell = -1

// Block is a square group of grid cells.
type Block struct {
	// Polygonal is the union of the member cells in summary mode
	// and the block footprint in conservative mode.
	geom.Polygonal

	// Center is the center of the block.
	Center geom.Point

	// Population is the total population of the member cells.
	Population float64

	// Cells holds, in conservative mode, the position in the input cell
	// slice of the cell at each slot, or NoCell. Slots are ordered by
	// northing offset, then easting offset, both ascending.
	Cells []int
}

// BlockGrid specifies the geometry of blocks of grid cells.
type BlockGrid struct {
	// CellSize is the edge length of the source grid cells.
	CellSize float64

	// Width is the number of cells along each edge of a block.
	Width int
}

// DefaultBlockGrid returns blocks of 5×5 cells of 200 m.
func DefaultBlockGrid() BlockGrid {
	return BlockGrid{CellSize: 200, Width: 5}
}

// Slots returns the number of cells in a block.
func (g BlockGrid) Slots() int { return g.Width * g.Width }

// Offsets returns the offsets of the slot cell centers from the block
// center along each axis, in ascending order.
func (g BlockGrid) Offsets() []float64 {
	o := make([]float64, g.Width)
	for i := range o {
		o[i] = (float64(i) - float64(g.Width-1)/2) * g.CellSize
	}
	return o
}

// geomSet is a GeometrySet identified by position. Nil entries
// are not indexed.
type geomSet []geom.Geom

func (s geomSet) Len() int             { return len(s) }
func (s geomSet) Geom(i int) geom.Geom { return s[i] }
func (s geomSet) ID(i int) int         { return i }

// Aggregate groups cells into blocks whose centers are step apart.
// In summary mode, each block holds the union of the cells whose centers
// fall within it and their total population; blocks without area are
// dropped. In conservative mode, each block records the cell found at
// each of its slots, with mesh centers aligned to cell centers. Cells
// whose identifiers do not hold coordinates belong to no block, and
// blocks without any cells are dropped.
func (g BlockGrid) Aggregate(cells []*Cell, step float64, conservative bool) []*Block {
	extent := coordinateExtent(cells)
	if extent == nil {
		return nil
	}
	half := g.CellSize / 2

	centers := make(geomSet, len(cells))
	positions := make(map[gridKey]int)
	for i, c := range cells {
		n, e, ok := ParseID(c.ID)
		if !ok {
			continue
		}
		centers[i] = geom.Point{X: e + half, Y: n + half}
		positions[keyOf(n, e)] = i
	}

	offset := step / 2
	if conservative {
		offset = half
	}
	ny := steps(extent.Min.Y, extent.Max.Y, step) + 1
	nx := steps(extent.Min.X, extent.Max.X, step) + 1

	var idx *Index
	if !conservative {
		idx = NewIndex(centers)
	}
	reach := float64(g.Width-1)/2*g.CellSize + 1.e-6*g.CellSize

	blocks := make([]*Block, ny*nx)
	ncpu := runtime.GOMAXPROCS(0)
	var wg sync.WaitGroup
	wg.Add(ncpu)
	for p := 0; p < ncpu; p++ {
		go func(p int) {
			for k := p; k < len(blocks); k += ncpu {
				center := geom.Point{
					X: extent.Min.X + float64(k%nx)*step + offset,
					Y: extent.Min.Y + float64(k/nx)*step + offset,
				}
				if conservative {
					blocks[k] = g.conservativeBlock(center, cells, positions)
				} else {
					blocks[k] = summaryBlock(center, reach, cells, idx)
				}
			}
			wg.Done()
		}(p)
	}
	wg.Wait()

	var o []*Block
	for _, b := range blocks {
		if b != nil {
			o = append(o, b)
		}
	}
	return o
}

func (g BlockGrid) conservativeBlock(center geom.Point, cells []*Cell, positions map[gridKey]int) *Block {
	b := &Block{
		Center: center,
		Cells:  make([]int, 0, g.Slots()),
	}
	half := g.CellSize / 2
	var found bool
	for _, dy := range g.Offsets() {
		for _, dx := range g.Offsets() {
			i, ok := positions[keyOf(center.Y+dy-half, center.X+dx-half)]
			if !ok {
				b.Cells = append(b.Cells, NoCell)
				continue
			}
			found = true
			b.Cells = append(b.Cells, i)
			if p := cells[i].Population; !math.IsNaN(p) {
				b.Population += p
			}
		}
	}
	if !found {
		return nil
	}
	w := float64(g.Width) * g.CellSize
	b.Polygonal = Square(center.X-w/2, center.Y-w/2, w)
	return b
}

func summaryBlock(center geom.Point, reach float64, cells []*Cell, idx *Index) *Block {
	box := &geom.Bounds{
		Min: geom.Point{X: center.X - reach, Y: center.Y - reach},
		Max: geom.Point{X: center.X + reach, Y: center.Y + reach},
	}
	members := idx.Search(box)
	if len(members) == 0 {
		return nil
	}
	b := &Block{Center: center}
	var union geom.Polygonal
	for _, i := range members {
		c := cells[i]
		if p := c.Population; !math.IsNaN(p) {
			b.Population += p
		}
		if c.Polygonal == nil {
			continue
		}
		if union == nil {
			union = c.Polygonal
		} else {
			union = union.Union(c.Polygonal)
		}
	}
	if union == nil || union.Area() == 0 {
		return nil
	}
	b.Polygonal = union
	return b
}
