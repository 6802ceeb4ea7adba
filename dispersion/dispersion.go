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

// Package dispersion estimates how scattered the buildings around a location
// are, from the distances between neighbouring buildings.
package dispersion

import (
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"

	"github.com/ctessum/geom"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/sprawl"
	"gonum.org/v1/gonum/stat"
)

// Config holds dispersion estimation settings.
type Config struct {
	// RadiusSearch is the distance [m] around each location within which
	// buildings are considered when UseMedian is true.
	RadiusSearch float64

	// UseMedian specifies whether to take the median building dispersion
	// within RadiusSearch. Otherwise the mean over the KNearest nearest
	// buildings is used.
	UseMedian bool

	// KNearest is the number of buildings averaged when UseMedian is false.
	KNearest int
}

// DefaultConfig returns the default settings.
func DefaultConfig() Config {
	return Config{RadiusSearch: 750, UseMedian: true, KNearest: 50}
}

// Estimator calculates dispersion indices.
type Estimator struct {
	Config
	Log logrus.FieldLogger
}

// New returns an estimator with the given settings.
func New(cfg Config) *Estimator {
	return &Estimator{Config: cfg, Log: logrus.StandardLogger()}
}

// centroids is a GeometrySet of building centroids.
type centroids []geom.Point

func (c centroids) Len() int             { return len(c) }
func (c centroids) Geom(i int) geom.Geom { return c[i] }
func (c centroids) ID(i int) int         { return i }

// neighbours finds buildings near a point in order of distance.
type neighbours struct {
	pts    centroids
	idx    *sprawl.Index
	extent float64
}

func newNeighbours(pts []geom.Point) *neighbours {
	n := &neighbours{pts: centroids(pts), idx: sprawl.NewIndex(centroids(pts))}
	b := geom.NewBounds()
	for _, p := range pts {
		b.Extend(p.Bounds())
	}
	if len(pts) > 0 {
		n.extent = math.Hypot(b.Max.X-b.Min.X, b.Max.Y-b.Min.Y)
	}
	return n
}

type neighbour struct {
	i    int
	dist float64
}

// within returns the buildings whose centroids are at most r from p,
// other than skip, sorted by distance.
func (n *neighbours) within(p geom.Point, r float64, skip int) []neighbour {
	box := &geom.Bounds{
		Min: geom.Point{X: p.X - r, Y: p.Y - r},
		Max: geom.Point{X: p.X + r, Y: p.Y + r},
	}
	var o []neighbour
	for _, i := range n.idx.Search(box) {
		if i == skip {
			continue
		}
		if d := math.Hypot(n.pts[i].X-p.X, n.pts[i].Y-p.Y); d <= r {
			o = append(o, neighbour{i: i, dist: d})
		}
	}
	sort.Slice(o, func(a, b int) bool {
		if o[a].dist == o[b].dist {
			return o[a].i < o[b].i
		}
		return o[a].dist < o[b].dist
	})
	return o
}

// nearest returns the k buildings nearest to p, other than skip. The search
// radius starts at r and doubles until enough buildings are found or the
// whole set has been covered.
func (n *neighbours) nearest(p geom.Point, k int, r float64, skip int) []neighbour {
	available := len(n.pts)
	if skip >= 0 && skip < available {
		available--
	}
	if k > available {
		k = available
	}
	if k <= 0 {
		return nil
	}
	if !(r > 0) {
		r = 1
	}
	for {
		o := n.within(p, r, skip)
		if len(o) >= k {
			return o[:k]
		}
		if r > 2*n.extent+math.Hypot(p.X-n.pts[0].X, p.Y-n.pts[0].Y) {
			return o
		}
		r *= 2
	}
}

// Buildings returns the dispersion of each building: the distance from its
// centroid to the nearest other building centroid. Buildings without a
// geometry, and all buildings when there are fewer than two, have NaN
// dispersion.
func (e *Estimator) Buildings(buildings []*sprawl.Building) []float64 {
	pts, orig := e.centroids(buildings)
	o := make([]float64, len(buildings))
	for i := range o {
		o[i] = math.NaN()
	}
	n := newNeighbours(pts)
	ncpu := runtime.GOMAXPROCS(0)
	var wg sync.WaitGroup
	wg.Add(ncpu)
	for p := 0; p < ncpu; p++ {
		go func(p int) {
			for i := p; i < len(pts); i += ncpu {
				if nn := n.nearest(pts[i], 1, e.RadiusSearch, i); len(nn) == 1 {
					o[orig[i]] = nn[0].dist
				}
			}
			wg.Done()
		}(p)
	}
	wg.Wait()
	return o
}

// centroids returns the defined building centroids and the position of
// each one in buildings.
func (e *Estimator) centroids(buildings []*sprawl.Building) ([]geom.Point, []int) {
	var pts []geom.Point
	var orig []int
	for i, b := range buildings {
		if b == nil || b.Polygonal == nil {
			continue
		}
		c := b.Centroid()
		if math.IsNaN(c.X) || math.IsNaN(c.Y) {
			continue
		}
		pts = append(pts, c)
		orig = append(orig, i)
	}
	return pts, orig
}

// Dispersion calculates the dispersion index at each target location from
// the dispersion of the surrounding buildings. Locations without any
// building within range have NaN dispersion.
func (e *Estimator) Dispersion(targets []geom.Point, buildings []*sprawl.Building) ([]float64, error) {
	if e.UseMedian && !(e.RadiusSearch > 0) {
		return nil, fmt.Errorf("dispersion: invalid search radius %g", e.RadiusSearch)
	}
	if !e.UseMedian && e.KNearest <= 0 {
		return nil, fmt.Errorf("dispersion: invalid number of nearest buildings %d", e.KNearest)
	}
	log := e.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	values := e.Buildings(buildings)
	pts, orig := e.centroids(buildings)
	// Only buildings with a defined dispersion are summarized.
	var vpts []geom.Point
	var v []float64
	for i, p := range pts {
		if d := values[orig[i]]; !math.IsNaN(d) {
			vpts = append(vpts, p)
			v = append(v, d)
		}
	}
	n := newNeighbours(vpts)

	o := make([]float64, len(targets))
	ncpu := runtime.GOMAXPROCS(0)
	var wg sync.WaitGroup
	wg.Add(ncpu)
	for p := 0; p < ncpu; p++ {
		go func(p int) {
			buf := make([]float64, 0, e.KNearest)
			for i := p; i < len(targets); i += ncpu {
				var nn []neighbour
				if e.UseMedian {
					nn = n.within(targets[i], e.RadiusSearch, -1)
				} else {
					nn = n.nearest(targets[i], e.KNearest, e.RadiusSearch, -1)
				}
				if len(nn) == 0 {
					o[i] = math.NaN()
					continue
				}
				buf = buf[:0]
				for _, nb := range nn {
					buf = append(buf, v[nb.i])
				}
				if e.UseMedian {
					o[i] = Median(buf)
				} else {
					o[i] = stat.Mean(buf, nil)
				}
			}
			wg.Done()
		}(p)
	}
	wg.Wait()

	log.WithFields(logrus.Fields{
		"buildings": len(v),
		"targets":   len(targets),
		"median":    e.UseMedian,
	}).Info("calculated dispersion")
	return o, nil
}

// Median returns the median of x, averaging the two central values when
// len(x) is even. x is sorted in place. The median of an empty slice is NaN.
func Median(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	sort.Float64s(x)
	m := len(x) / 2
	if len(x)%2 == 1 {
		return x[m]
	}
	return (x[m-1] + x[m]) / 2
}
