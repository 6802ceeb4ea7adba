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
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/ctessum/geom"
	gogeom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

var idPattern = regexp.MustCompile(`N(\d+)E(\d+)`)

// ParseID extracts the northing and easting of the south-west corner of a
// grid cell from its identifier, e.g. "CRS3035RES200mN2029800E4254200".
// ok is false if the identifier does not hold coordinates.
func ParseID(id string) (north, east float64, ok bool) {
	m := idPattern.FindStringSubmatch(id)
	if m == nil {
		return math.NaN(), math.NaN(), false
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return math.NaN(), math.NaN(), false
	}
	e, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return math.NaN(), math.NaN(), false
	}
	return n, e, true
}

// idPrefix returns the part of id preceding its coordinates.
func idPrefix(id string) string {
	loc := idPattern.FindStringIndex(id)
	if loc == nil {
		return ""
	}
	return id[:loc[0]]
}

// gridKey identifies a grid position by its rounded coordinates.
type gridKey struct{ n, e int64 }

func keyOf(north, east float64) gridKey {
	return gridKey{n: int64(math.Round(north)), e: int64(math.Round(east))}
}

// Square returns a square polygon with the given south-west corner
// and edge length.
func Square(west, south, size float64) geom.Polygon {
	return geom.Polygon{{
		{X: west, Y: south},
		{X: west + size, Y: south},
		{X: west + size, Y: south + size},
		{X: west, Y: south + size},
	}}
}

// coordinateExtent returns the bounds of the south-west corner coordinates
// of the cells with parsable identifiers (X = easting, Y = northing),
// or nil if there are none.
func coordinateExtent(cells []*Cell) *geom.Bounds {
	var b *geom.Bounds
	for _, c := range cells {
		n, e, ok := ParseID(c.ID)
		if !ok {
			continue
		}
		if b == nil {
			b = &geom.Bounds{Min: geom.Point{X: e, Y: n}, Max: geom.Point{X: e, Y: n}}
			continue
		}
		b.Min.X = math.Min(b.Min.X, e)
		b.Min.Y = math.Min(b.Min.Y, n)
		b.Max.X = math.Max(b.Max.X, e)
		b.Max.Y = math.Max(b.Max.Y, n)
	}
	return b
}

// steps returns the number of mesh intervals of length step between
// min and max.
func steps(min, max, step float64) int {
	return int(math.Floor((max-min)/step + 1.e-9))
}

// FillEmpty adds zero-population cells to the grid at every mesh position
// between the observed cell coordinates that is not already occupied,
// keeping only those that intersect the convex hull of the observed cells.
// cellSize is the edge length of the cells.
func FillEmpty(cells []*Cell, cellSize float64) []*Cell {
	extent := coordinateExtent(cells)
	if extent == nil {
		return cells
	}
	return FillEmptyExtent(cells, cellSize, extent)
}

// FillEmptyExtent is the same as FillEmpty, but the mesh spans extent, which
// bounds the south-west corners of the cells (X = easting, Y = northing).
func FillEmptyExtent(cells []*Cell, cellSize float64, extent *geom.Bounds) []*Cell {
	occupied := make(map[gridKey]bool)
	var prefix string
	var prefixSet bool
	maxIndex := -1
	for _, c := range cells {
		if c.Index > maxIndex {
			maxIndex = c.Index
		}
		n, e, ok := ParseID(c.ID)
		if !ok {
			continue
		}
		occupied[keyOf(n, e)] = true
		if !prefixSet {
			prefix, prefixSet = idPrefix(c.ID), true
		}
	}
	h := convexHull(cells)
	if h == nil {
		return cells
	}

	o := append([]*Cell{}, cells...)
	nn := steps(extent.Min.Y, extent.Max.Y, cellSize)
	ne := steps(extent.Min.X, extent.Max.X, cellSize)
	for i := 0; i <= nn; i++ {
		n := extent.Min.Y + float64(i)*cellSize
		for j := 0; j <= ne; j++ {
			e := extent.Min.X + float64(j)*cellSize
			if occupied[keyOf(n, e)] {
				continue
			}
			sq := Square(e, n, cellSize)
			if !h.intersects(sq) {
				continue
			}
			maxIndex++
			o = append(o, &Cell{
				Polygonal:  sq,
				Index:      maxIndex,
				ID:         fmt.Sprintf("%sN%.0fE%.0f", prefix, n, e),
				Population: 0,
			})
		}
	}
	return o
}

// hull is a convex hull that may have collapsed to a line or a point.
type hull struct {
	poly geom.Polygon
	pts  []geom.Point
}

// convexHull returns the convex hull of the vertices of cells, or nil
// if there are no vertices.
func convexHull(cells []*Cell) *hull {
	var flat []float64
	for _, c := range cells {
		if c.Polygonal == nil {
			continue
		}
		for _, v := range vertices(c.Polygonal) {
			flat = append(flat, v.X, v.Y)
		}
	}
	if len(flat) == 0 {
		return nil
	}
	t := xy.ConvexHull(gogeom.NewMultiPointFlat(gogeom.XY, flat))
	h := new(hull)
	if p, ok := t.(*gogeom.Polygon); ok && p.NumLinearRings() > 0 {
		var path geom.Path
		for _, c := range p.LinearRing(0).Coords() {
			path = append(path, geom.Point{X: c.X(), Y: c.Y()})
		}
		if poly := (geom.Polygon{path}); poly.Area() > 0 {
			h.poly = poly
			return h
		}
	}
	fc := t.FlatCoords()
	for i := 0; i+1 < len(fc); i += 2 {
		h.pts = append(h.pts, geom.Point{X: fc[i], Y: fc[i+1]})
	}
	return h
}

// intersects returns whether sq shares at least one point with the hull.
func (h *hull) intersects(sq geom.Polygon) bool {
	if h.poly != nil {
		return intersects(h.poly, sq)
	}
	b := sq.Bounds()
	for _, p := range h.pts {
		if p.Within(sq) != geom.Outside {
			return true
		}
	}
	for i := 0; i+1 < len(h.pts); i++ {
		if segmentHitsBox(h.pts[i], h.pts[i+1], b) {
			return true
		}
	}
	return false
}

// segmentHitsBox returns whether the segment from p to q crosses
// the box b, using Liang-Barsky clipping.
func segmentHitsBox(p, q geom.Point, b *geom.Bounds) bool {
	t0, t1 := 0., 1.
	dx, dy := q.X-p.X, q.Y-p.Y
	clip := func(den, num float64) bool {
		if den == 0 {
			return num >= 0
		}
		t := num / den
		if den < 0 {
			if t > t1 {
				return false
			}
			if t > t0 {
				t0 = t
			}
		} else {
			if t < t0 {
				return false
			}
			if t < t1 {
				t1 = t
			}
		}
		return true
	}
	return clip(-dx, p.X-b.Min.X) && clip(dx, b.Max.X-p.X) &&
		clip(-dy, p.Y-b.Min.Y) && clip(dy, b.Max.Y-p.Y)
}
