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
	"runtime"
	"sort"
	"sync"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
)

// GeometrySet is a collection of geometries with stable identifiers.
type GeometrySet interface {
	Len() int
	Geom(i int) geom.Geom
	ID(i int) int
}

// Cells is a GeometrySet of grid cells.
type Cells []*Cell

func (c Cells) Len() int             { return len(c) }
func (c Cells) Geom(i int) geom.Geom { return c[i].Polygonal }
func (c Cells) ID(i int) int         { return c[i].Index }

// Buildings is a GeometrySet of building footprints.
type Buildings []*Building

func (b Buildings) Len() int             { return len(b) }
func (b Buildings) Geom(i int) geom.Geom { return b[i].Polygonal }
func (b Buildings) ID(i int) int         { return b[i].Index }

// POIs is a GeometrySet of points of interest.
type POIs []*POI

func (p POIs) Len() int             { return len(p) }
func (p POIs) Geom(i int) geom.Geom { return p[i].Point }
func (p POIs) ID(i int) int         { return p[i].Index }

// Predicate is a spatial relation between an encompassing and a
// contained geometry.
type Predicate int

const (
	// Intersects holds when the geometries share at least one point.
	Intersects Predicate = iota
	// Contains holds when the contained geometry lies in the interior
	// of the encompassing geometry.
	Contains
)

func (p Predicate) String() string {
	switch p {
	case Intersects:
		return "intersects"
	case Contains:
		return "contains"
	default:
		return fmt.Sprintf("Predicate(%d)", int(p))
	}
}

// indexItem is an entry in an Index, holding the position of
// the geometry in its GeometrySet.
type indexItem struct {
	geom.Geom
	i int
}

// Index is a spatial index over a GeometrySet. It is built once and is
// safe for concurrent queries.
type Index struct {
	set  GeometrySet
	tree *rtree.Rtree
}

// NewIndex builds a spatial index over set.
func NewIndex(set GeometrySet) *Index {
	x := &Index{
		set:  set,
		tree: rtree.NewTree(25, 50),
	}
	for i := 0; i < set.Len(); i++ {
		g := set.Geom(i)
		if g == nil {
			continue
		}
		x.tree.Insert(&indexItem{Geom: g, i: i})
	}
	return x
}

// Search returns the positions in the indexed set of the geometries whose
// bounding boxes overlap b, in ascending order.
func (x *Index) Search(b *geom.Bounds) []int {
	items := x.tree.SearchIntersect(b)
	o := make([]int, len(items))
	for j, it := range items {
		o[j] = it.(*indexItem).i
	}
	sort.Ints(o)
	return o
}

// Associate finds, for every geometry in contained, the geometries in
// encompassing that satisfy predicate p against it. The result maps the
// identifier of each encompassing geometry with at least one match to the
// sorted identifiers of its matches. Encompassing geometries without any
// match have no entry.
func Associate(encompassing, contained GeometrySet, p Predicate) (map[int][]int, error) {
	return NewIndex(encompassing).Associate(contained, p)
}

// Associate is the same as the package-level Associate function, but reuses
// the receiver as the index of the encompassing geometries.
func (x *Index) Associate(contained GeometrySet, p Predicate) (map[int][]int, error) {
	if p != Intersects && p != Contains {
		return nil, fmt.Errorf("sprawl: associate: invalid predicate %v", p)
	}
	type pair struct{ enc, cont int }

	ncpu := runtime.GOMAXPROCS(0)
	pairs := make([][]pair, ncpu)
	errs := make([]error, ncpu)
	var wg sync.WaitGroup
	wg.Add(ncpu)
	for w := 0; w < ncpu; w++ {
		go func(w int) {
			defer wg.Done()
			for j := w; j < contained.Len(); j += ncpu {
				g := contained.Geom(j)
				if g == nil {
					continue
				}
				for _, i := range x.Search(g.Bounds()) {
					enc, ok := x.set.Geom(i).(geom.Polygonal)
					if !ok {
						errs[w] = fmt.Errorf("sprawl: associate: encompassing geometry %d is %T, not a polygon",
							x.set.ID(i), x.set.Geom(i))
						return
					}
					var match bool
					if p == Contains {
						match = contains(enc, g)
					} else {
						match = intersects(enc, g)
					}
					if match {
						pairs[w] = append(pairs[w], pair{enc: x.set.ID(i), cont: contained.ID(j)})
					}
				}
			}
		}(w)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	o := make(map[int][]int)
	for _, wp := range pairs {
		for _, pp := range wp {
			o[pp.enc] = append(o[pp.enc], pp.cont)
		}
	}
	for _, ids := range o {
		sort.Ints(ids)
	}
	return o, nil
}

// vertices returns all of the vertices of a geometry.
func vertices(g geom.Geom) []geom.Point {
	switch t := g.(type) {
	case geom.Point:
		return []geom.Point{t}
	case *geom.Point:
		return []geom.Point{*t}
	case geom.Polygonal:
		var o []geom.Point
		for _, p := range t.Polygons() {
			for _, path := range p {
				o = append(o, path...)
			}
		}
		return o
	default:
		var o []geom.Point
		next := g.Points()
		for i := 0; i < g.Len(); i++ {
			o = append(o, next())
		}
		return o
	}
}

// contains returns whether g lies within the interior of poly. For
// polygonal geometries, the overlapping area must equal the area of g.
func contains(poly geom.Polygonal, g geom.Geom) bool {
	if !boundsTouch(poly.Bounds(), g.Bounds()) {
		return false
	}
	switch t := g.(type) {
	case geom.Point:
		return t.Within(poly) == geom.Inside
	case geom.Polygonal:
		a := t.Area()
		if a == 0 {
			for _, v := range vertices(t) {
				if v.Within(poly) != geom.Inside {
					return false
				}
			}
			return true
		}
		return poly.Intersection(t).Area() >= a*(1-overlapTolerance)
	default:
		for _, v := range vertices(g) {
			if v.Within(poly) != geom.Inside {
				return false
			}
		}
		return true
	}
}

// intersects returns whether g and poly share at least one point.
// Geometries that only touch count as intersecting.
func intersects(poly geom.Polygonal, g geom.Geom) bool {
	if !boundsTouch(poly.Bounds(), g.Bounds()) {
		return false
	}
	if pt, ok := g.(geom.Point); ok {
		return pt.Within(poly) != geom.Outside
	}
	for _, v := range vertices(g) {
		if v.Within(poly) != geom.Outside {
			return true
		}
	}
	if gp, ok := g.(geom.Polygonal); ok {
		for _, v := range vertices(poly) {
			if v.Within(gp) != geom.Outside {
				return true
			}
		}
		return poly.Intersection(gp).Area() > 0
	}
	return false
}

// boundsTouch returns whether a and b share at least one point.
func boundsTouch(a, b *geom.Bounds) bool {
	return a.Min.X <= b.Max.X && b.Min.X <= a.Max.X &&
		a.Min.Y <= b.Max.Y && b.Min.Y <= a.Max.Y
}

// overlapTolerance is the relative area tolerance used when deciding
// whether one polygon contains another.
const overlapTolerance = 1.e-9
