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

// Package sprawl derives urban sprawl indices for a city from a gridded
// population dataset, building footprints and points of interest.
// Building attributes are apportioned to grid cells by overlapping area,
// reduced per cell and combined with land-use-mix and dispersion indices.
// The resulting feature table can then be re-aggregated into blocks of
// cells to build training data for population downscaling models.
package sprawl

import (
	"encoding/gob"
	"errors"
	"math"

	"github.com/ctessum/geom"
)

// Version gives the version number.
const Version = "0.3.0"

// Class is a land use classification of a building or point of interest.
type Class string

// Land use classifications.
const (
	Residential Class = "residential"
	Activity    Class = "activity"
	Mixed       Class = "mixed"
	Other       Class = "other"
)

// IsActivity returns whether c hosts activities, i.e. whether it
// is either Activity or Mixed.
func (c Class) IsActivity() bool { return c == Activity || c == Mixed }

// IsResidential returns whether c is either Residential or Mixed.
func (c Class) IsResidential() bool { return c == Residential || c == Mixed }

var (
	// ErrDataSource is returned when the population data source is not
	// one of the recognized sources.
	ErrDataSource = errors.New("unrecognized population data source")

	// ErrMissingInput is returned when a required input layer
	// is not available.
	ErrMissingInput = errors.New("missing input layer")
)

// Population data sources.
const (
	// INSEE grids only hold populated squares, so empty squares are
	// reconstructed before features are calculated.
	INSEE = "insee"
	// GPW grids are complete and are used as is.
	GPW = "gpw"
)

// Cell is a population grid cell.
type Cell struct {
	geom.Polygonal

	// Index is the stable identifier of the cell.
	Index int

	// ID is the positional identifier of the cell, which embeds the
	// coordinates of its south-west corner, e.g. CRS3035RES200mN2029800E4254200.
	ID string

	// Population is the number of people living in the cell,
	// NaN when unknown.
	Population float64
}

// Building is a building footprint.
type Building struct {
	geom.Polygonal

	Index int

	// LandUses holds the floor area in m² for each land use: "residential",
	// "activity" and each of the activity categories.
	LandUses map[string]float64

	Levels float64
	Class  Class

	ActivityCategories []string

	// ContainingPOI holds the indices of the points of interest that are
	// located inside the building footprint.
	ContainingPOI []int
}

// POI is a point of interest.
type POI struct {
	geom.Point
	Index              int
	Class              Class
	ActivityCategories []string
}

// Column is a named feature column, with one value per cell.
type Column struct {
	Name   string
	Values []float64
}

// nanToZero replaces NaN values in v with zero.
func nanToZero(v []float64) {
	for i, x := range v {
		if math.IsNaN(x) {
			v[i] = 0
		}
	}
}

func init() {
	gob.Register(geom.Polygon{})
	gob.Register(geom.MultiPolygon{})
	gob.Register(FeatureTable{})
	gob.Register(TrainingSet{})
}
