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

package landusemix

import (
	"math"
	"runtime"
	"sync"

	"github.com/ctessum/geom"
	"github.com/spatialmodel/sprawl"
	"gonum.org/v1/gonum/floats"
)

// kernelCutoff is the distance, in bandwidths, beyond which points do not
// contribute to the density. exp(-cutoff²/2) is below float64 resolution
// relative to the kernel peak.
const kernelCutoff = 9

// points is a GeometrySet of points identified by their position.
type points []geom.Point

func (p points) Len() int             { return len(p) }
func (p points) Geom(i int) geom.Geom { return p[i] }
func (p points) ID(i int) int         { return i }

// Density evaluates a Gaussian kernel density estimate with the given
// bandwidth at each target location. Each point contributes in proportion to
// its weight; nil weights give every point unit mass. The density is not
// scaled to integrate to one.
func Density(targets, pts []geom.Point, weights []float64, bandwidth float64) []float64 {
	idx := sprawl.NewIndex(points(pts))
	reach := kernelCutoff * bandwidth
	c := -1 / (2 * bandwidth * bandwidth)

	o := make([]float64, len(targets))
	ncpu := runtime.GOMAXPROCS(0)
	var wg sync.WaitGroup
	wg.Add(ncpu)
	for p := 0; p < ncpu; p++ {
		go func(p int) {
			for i := p; i < len(targets); i += ncpu {
				t := targets[i]
				box := &geom.Bounds{
					Min: geom.Point{X: t.X - reach, Y: t.Y - reach},
					Max: geom.Point{X: t.X + reach, Y: t.Y + reach},
				}
				var d float64
				for _, j := range idx.Search(box) {
					w := 1.
					if weights != nil {
						w = weights[j]
					}
					if w == 0 {
						continue
					}
					dx, dy := t.X-pts[j].X, t.Y-pts[j].Y
					d += w * math.Exp(c*(dx*dx+dy*dy))
				}
				o[i] = d
			}
			wg.Done()
		}(p)
	}
	wg.Wait()
	return o
}

// scaleByMax divides v by its maximum value. If the maximum is not
// positive, v is set to NaN and false is returned.
func scaleByMax(v []float64) bool {
	if len(v) == 0 {
		return false
	}
	if max := floats.Max(v); max > 0 {
		for i := range v {
			v[i] /= max
		}
		return true
	}
	for i := range v {
		v[i] = math.NaN()
	}
	return false
}
