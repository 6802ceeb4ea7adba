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

// Package landusemix estimates the density of residential and activity
// land uses around a set of locations with kernel density estimation, and
// summarizes their balance with an entropy-based mixing index.
package landusemix

import (
	"fmt"
	"math"
	"sort"

	"github.com/ctessum/geom"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/sprawl"
)

// Names of the output columns.
const (
	ResidentialPDF   = "residential_pdf"
	ActivityPDF      = "activity_pdf"
	LandUseMix       = "landusemix"
	LandUseIntensity = "landuse_intensity"
)

// CategoryPDF returns the name of the density column of an activity category.
func CategoryPDF(category string) string { return category + "_pdf" }

// Config holds land use mix estimation settings.
type Config struct {
	// WalkableDistance is the kernel bandwidth [m].
	WalkableDistance float64

	// ActivityTypes specifies whether to estimate a density surface for
	// each activity category.
	ActivityTypes bool

	// Weighted specifies whether buildings are weighted by their floor
	// area and points of interest by POIWeight. Otherwise every location
	// has the same weight.
	Weighted bool

	// POIWeight is the floor area equivalent of a point of interest [m²].
	POIWeight float64

	// LogWeighted specifies whether to use the natural logarithm of
	// the weights.
	LogWeighted bool
}

// DefaultConfig returns the default settings.
func DefaultConfig() Config {
	return Config{
		WalkableDistance: 600,
		ActivityTypes:    true,
		Weighted:         true,
		POIWeight:        9,
		LogWeighted:      true,
	}
}

// Estimator calculates land use densities and mixing indices.
type Estimator struct {
	Config
	Log logrus.FieldLogger
}

// New returns an estimator with the given settings.
func New(cfg Config) *Estimator {
	return &Estimator{Config: cfg, Log: logrus.StandardLogger()}
}

// source is a set of weighted locations.
type source struct {
	pts     []geom.Point
	weights []float64
}

func (s *source) add(p geom.Point, w float64) {
	s.pts = append(s.pts, p)
	s.weights = append(s.weights, w)
}

// weight returns the weight of a location with the given floor area.
// Logarithms of areas of at most one m² are taken as zero.
func (e *Estimator) weight(area float64) float64 {
	if !e.Weighted {
		return 1
	}
	if e.LogWeighted {
		if area <= 1 {
			return 0
		}
		return math.Log(area)
	}
	return area
}

// LandUseMix calculates the residential, activity and, optionally, activity
// category densities at each target location, each scaled by its maximum
// value, along with the land use mix and intensity indices. Residential
// densities are estimated from residential and mixed buildings. Activity
// densities are estimated from activity and mixed buildings and from activity
// and mixed points of interest that are not inside a building, as are
// category densities. Densities without any weighted location are NaN.
func (e *Estimator) LandUseMix(targets []geom.Point, buildings []*sprawl.Building, pois []*sprawl.POI) ([]sprawl.Column, error) {
	if !(e.WalkableDistance > 0) {
		return nil, fmt.Errorf("landusemix: invalid walkable distance %g", e.WalkableDistance)
	}
	log := e.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	contained := make(map[int]bool)
	for _, b := range buildings {
		for _, p := range b.ContainingPOI {
			contained[p] = true
		}
	}
	var freePOIs []*sprawl.POI
	for _, p := range pois {
		if p.Class.IsActivity() && !contained[p.Index] {
			freePOIs = append(freePOIs, p)
		}
	}
	centroids := make([]geom.Point, len(buildings))
	valid := make([]bool, len(buildings))
	for i, b := range buildings {
		if b.Polygonal == nil {
			continue
		}
		c := b.Centroid()
		centroids[i], valid[i] = c, !math.IsNaN(c.X) && !math.IsNaN(c.Y)
	}

	// sourceFor collects the locations with the given land use.
	sourceFor := func(landUse string, useBuilding func(*sprawl.Building) bool, usePOI func(*sprawl.POI) bool) *source {
		s := new(source)
		for i, b := range buildings {
			if valid[i] && useBuilding(b) {
				s.add(centroids[i], e.weight(b.LandUses[landUse]))
			}
		}
		if usePOI != nil {
			for _, p := range freePOIs {
				if usePOI(p) {
					s.add(p.Point, e.weight(e.POIWeight))
				}
			}
		}
		return s
	}

	surface := func(name string, s *source) []float64 {
		var v []float64
		if len(s.pts) == 0 {
			v = make([]float64, len(targets))
		} else {
			v = Density(targets, s.pts, s.weights, e.WalkableDistance)
		}
		if !scaleByMax(v) && len(targets) > 0 {
			log.WithFields(logrus.Fields{
				"surface":   name,
				"locations": len(s.pts),
			}).Warn("land use density is undefined")
		}
		return v
	}

	res := surface(ResidentialPDF, sourceFor(string(sprawl.Residential),
		func(b *sprawl.Building) bool { return b.Class.IsResidential() }, nil))
	act := surface(ActivityPDF, sourceFor(string(sprawl.Activity),
		func(b *sprawl.Building) bool { return b.Class.IsActivity() },
		func(*sprawl.POI) bool { return true }))
	o := []sprawl.Column{{Name: ResidentialPDF, Values: res}, {Name: ActivityPDF, Values: act}}

	if e.ActivityTypes {
		for _, cat := range categories(buildings, freePOIs) {
			cat := cat
			v := surface(CategoryPDF(cat), sourceFor(cat,
				func(b *sprawl.Building) bool { return b.Class.IsActivity() && hasCategory(b.ActivityCategories, cat) },
				func(p *sprawl.POI) bool { return hasCategory(p.ActivityCategories, cat) }))
			o = append(o, sprawl.Column{Name: CategoryPDF(cat), Values: v})
		}
	}

	mix := make([]float64, len(targets))
	intensity := make([]float64, len(targets))
	for i := range targets {
		mix[i] = Entropy(act[i], res[i])
		intensity[i] = (act[i] + res[i]) / 2
	}
	o = append(o, sprawl.Column{Name: LandUseMix, Values: mix},
		sprawl.Column{Name: LandUseIntensity, Values: intensity})
	return o, nil
}

// categories returns the sorted activity categories of the buildings and
// points of interest.
func categories(buildings []*sprawl.Building, pois []*sprawl.POI) []string {
	set := make(map[string]bool)
	for _, b := range buildings {
		for _, c := range b.ActivityCategories {
			set[c] = true
		}
	}
	for _, p := range pois {
		for _, c := range p.ActivityCategories {
			set[c] = true
		}
	}
	o := make([]string, 0, len(set))
	for c := range set {
		if c != "" {
			o = append(o, c)
		}
	}
	sort.Strings(o)
	return o
}

func hasCategory(cats []string, c string) bool {
	for _, cc := range cats {
		if cc == c {
			return true
		}
	}
	return false
}

// Entropy returns the normalized Shannon entropy of two land use densities,
// which is one when they are equal and zero when either is absent. It is
// NaN if either density is negative or NaN.
func Entropy(x, y float64) float64 {
	if math.IsNaN(x) || math.IsNaN(y) || x < 0 || y < 0 {
		return math.NaN()
	}
	if x == 0 || y == 0 {
		return 0
	}
	a, b := x/(x+y), y/(x+y)
	return math.Min(1, -(a*math.Log(a)+b*math.Log(b))/math.Ln2)
}
