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
	"sync"

	"github.com/ctessum/geom"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/sprawl/internal/hash"
)

// Names of the feature columns calculated from building footprints.
const (
	M2TotalResidential     = "m2_total_residential"
	M2TotalActivity        = "m2_total_activity"
	M2FootprintResidential = "m2_footprint_residential"
	M2FootprintActivity    = "m2_footprint_activity"
	M2FootprintMixed       = "m2_footprint_mixed"
	NumBuiltResidential    = "num_built_residential"
	NumBuiltActivity       = "num_built_activity"
	NumBuiltMixed          = "num_built_mixed"
	NumLevels              = "num_levels"
	NumBuildings           = "num_buildings"
	BuiltUpRelation        = "built_up_relation"
	NumActivityPOIs        = "num_activity_pois"
	Dispersion             = "dispersion"
)

// buildingColumns are the columns reduced by summing the contributions
// of every building overlapping a cell, in output order.
var buildingColumns = []string{
	M2TotalResidential, M2TotalActivity,
	M2FootprintResidential, M2FootprintActivity, M2FootprintMixed,
	NumBuiltResidential, NumBuiltActivity, NumBuiltMixed,
	NumLevels, NumBuildings,
}

// Indices of the per-cell accumulators.
const (
	iM2TotRes = iota
	iM2TotAct
	iM2FootRes
	iM2FootAct
	iM2FootMixed
	iBuiltRes
	iBuiltAct
	iBuiltMixed
	iLevels
	iBuildings
	iBuiltUpM2
	numAccumulators
)

// LandUseMixer calculates land use density surfaces and mixing indices
// at a set of target locations.
type LandUseMixer interface {
	LandUseMix(targets []geom.Point, buildings []*Building, pois []*POI) ([]Column, error)
}

// Disperser calculates a building dispersion index at a set of target
// locations.
type Disperser interface {
	Dispersion(targets []geom.Point, buildings []*Building) ([]float64, error)
}

// FeatureTable holds the urban features of each grid cell. Row i of
// every column corresponds to Cells[i].
type FeatureTable struct {
	Cells   []*Cell
	Columns []string
	Data    map[string][]float64
}

// NewFeatureTable returns an empty table for the given cells.
func NewFeatureTable(cells []*Cell) *FeatureTable {
	return &FeatureTable{
		Cells: cells,
		Data:  make(map[string][]float64),
	}
}

// Add appends a column to the table, replacing any existing column with
// the same name.
func (t *FeatureTable) Add(name string, values []float64) error {
	if len(values) != len(t.Cells) {
		return fmt.Errorf("sprawl: column %s has %d values but there are %d cells", name, len(values), len(t.Cells))
	}
	if _, ok := t.Data[name]; !ok {
		t.Columns = append(t.Columns, name)
	}
	t.Data[name] = values
	return nil
}

// Column returns the values of the named column, or nil if it does
// not exist.
func (t *FeatureTable) Column(name string) []float64 { return t.Data[name] }

// Row returns the feature values of row i, in column order.
func (t *FeatureTable) Row(i int) []float64 {
	o := make([]float64, len(t.Columns))
	for j, c := range t.Columns {
		o[j] = t.Data[c][i]
	}
	return o
}

// Fingerprint returns a hash of the table contents.
func (t *FeatureTable) Fingerprint() string {
	data := make([][]float64, len(t.Columns))
	for j, c := range t.Columns {
		data[j] = t.Data[c]
	}
	return hash.Hash(struct {
		Cells   []*Cell
		Columns []string
		Data    [][]float64
	}{Cells: t.Cells, Columns: t.Columns, Data: data})
}

// An Aggregator calculates urban features for each cell in a
// population grid.
type Aggregator struct {
	// DataSource is the population data source, either INSEE or GPW.
	DataSource string

	// CellSize is the edge length of the grid cells [m].
	CellSize float64

	// MaxDispersion is the upper limit of the dispersion index.
	MaxDispersion float64

	LandUseMix LandUseMixer
	Dispersion Disperser

	Log logrus.FieldLogger
}

// NewAggregator returns an aggregator with default settings for the
// given population data source.
func NewAggregator(dataSource string, lum LandUseMixer, d Disperser) *Aggregator {
	return &Aggregator{
		DataSource:    dataSource,
		CellSize:      200,
		MaxDispersion: 15,
		LandUseMix:    lum,
		Dispersion:    d,
		Log:           logrus.StandardLogger(),
	}
}

func (a *Aggregator) log() logrus.FieldLogger {
	if a.Log == nil {
		return logrus.StandardLogger()
	}
	return a.Log
}

// Aggregate calculates the urban features of each cell from the buildings
// and points of interest that overlap it. ContainingPOI is filled in
// for buildings when no building carries it yet. The returned table
// may hold more cells than the input when empty squares are reconstructed.
func (a *Aggregator) Aggregate(cells []*Cell, buildings []*Building, pois []*POI) (*FeatureTable, error) {
	switch a.DataSource {
	case INSEE, GPW:
	default:
		return nil, fmt.Errorf("sprawl: %w: %q", ErrDataSource, a.DataSource)
	}
	switch {
	case cells == nil:
		return nil, fmt.Errorf("sprawl: %w: population grid", ErrMissingInput)
	case buildings == nil:
		return nil, fmt.Errorf("sprawl: %w: buildings", ErrMissingInput)
	case pois == nil:
		return nil, fmt.Errorf("sprawl: %w: points of interest", ErrMissingInput)
	}
	log := a.log().WithField("data_source", a.DataSource)

	if a.DataSource == INSEE {
		n := len(cells)
		cells = FillEmpty(cells, a.CellSize)
		log.WithField("added", len(cells)-n).Info("reconstructed empty grid cells")
	}

	if err := a.associatePOIs(buildings, pois); err != nil {
		return nil, err
	}

	t := NewFeatureTable(cells)
	acc, placeholders := a.apportion(cells, buildings)
	log.WithFields(logrus.Fields{
		"cells":     len(cells),
		"buildings": len(buildings),
		"empty":     placeholders,
	}).Info("apportioned buildings to cells")

	for j, name := range buildingColumns {
		v := make([]float64, len(cells))
		for i := range cells {
			v[i] = acc[i][j]
		}
		if err := t.Add(name, v); err != nil {
			return nil, err
		}
	}
	builtUp := make([]float64, len(cells))
	for i, c := range cells {
		builtUp[i] = acc[i][iBuiltUpM2] / c.Area()
	}
	if err := t.Add(BuiltUpRelation, builtUp); err != nil {
		return nil, err
	}

	npois, err := countActivityPOIs(cells, pois)
	if err != nil {
		return nil, err
	}
	if err := t.Add(NumActivityPOIs, npois); err != nil {
		return nil, err
	}

	centroids := make([]geom.Point, len(cells))
	for i, c := range cells {
		centroids[i] = c.Centroid()
	}

	if a.LandUseMix != nil {
		cols, err := a.LandUseMix.LandUseMix(centroids, buildings, pois)
		if err != nil {
			return nil, fmt.Errorf("sprawl: land use mix: %w", err)
		}
		for _, c := range cols {
			if err := t.Add(c.Name, c.Values); err != nil {
				return nil, err
			}
		}
		log.WithField("columns", len(cols)).Info("calculated land use mix")
	}
	if a.Dispersion != nil {
		d, err := a.Dispersion.Dispersion(centroids, buildings)
		if err != nil {
			return nil, fmt.Errorf("sprawl: dispersion: %w", err)
		}
		for i, v := range d {
			if v > a.MaxDispersion {
				d[i] = a.MaxDispersion
			}
		}
		if err := t.Add(Dispersion, d); err != nil {
			return nil, err
		}
		log.Info("calculated dispersion")
	}

	for _, c := range t.Columns {
		nanToZero(t.Data[c])
	}
	return t, nil
}

// associatePOIs records the points of interest contained by each
// building, unless it has already been done.
func (a *Aggregator) associatePOIs(buildings []*Building, pois []*POI) error {
	for _, b := range buildings {
		if b.ContainingPOI != nil {
			return nil
		}
	}
	m, err := Associate(Buildings(buildings), POIs(pois), Contains)
	if err != nil {
		return err
	}
	for _, b := range buildings {
		b.ContainingPOI = m[b.Index]
	}
	return nil
}

// BuildingRatio returns the fraction of the area of building b that lies
// within cell c. It returns zero for buildings without area.
func BuildingRatio(c, b geom.Polygonal) float64 {
	area := b.Area()
	if area == 0 {
		return 0
	}
	r := c.Intersection(b).Area() / area
	if r > 1 {
		return 1
	}
	return r
}

// apportion distributes building attributes among the cells they
// overlap. It returns the summed contributions for each cell and
// the number of cells that no building overlaps.
func (a *Aggregator) apportion(cells []*Cell, buildings []*Building) ([][numAccumulators]float64, int) {
	idx := NewIndex(Buildings(buildings))
	acc := make([][numAccumulators]float64, len(cells))
	empty := make([]bool, len(cells))

	ncpu := runtime.GOMAXPROCS(0)
	var wg sync.WaitGroup
	wg.Add(ncpu)
	for p := 0; p < ncpu; p++ {
		go func(p int) {
			for i := p; i < len(cells); i += ncpu {
				c := cells[i]
				var n int
				for _, j := range idx.Search(c.Bounds()) {
					b := buildings[j]
					ratio := BuildingRatio(c, b)
					if ratio == 0 {
						continue
					}
					n++
					contribute(&acc[i], b, ratio)
				}
				if n == 0 {
					contribute(&acc[i], placeholder, 0)
					empty[i] = true
				}
			}
			wg.Done()
		}(p)
	}
	wg.Wait()

	var n int
	for _, e := range empty {
		if e {
			n++
		}
	}
	return acc, n
}

// placeholder stands in for a building in cells that are not
// overlapped by any building. It has no floor area or levels, so
// it contributes nothing.
var placeholder = &Building{
	Polygonal: geom.Polygon{{{X: 0, Y: 0}, {X: 1.e-6, Y: 0}, {X: 0, Y: 1.e-6}}},
	LandUses:  map[string]float64{string(Residential): 0, string(Activity): 0},
}

// contribute adds the share ratio of building b to the accumulators.
func contribute(acc *[numAccumulators]float64, b *Building, ratio float64) {
	footprint := ratio * b.Area()
	acc[iM2TotRes] += ratio * b.LandUses[string(Residential)]
	acc[iM2TotAct] += ratio * b.LandUses[string(Activity)]
	switch b.Class {
	case Residential:
		acc[iM2FootRes] += footprint
		acc[iBuiltRes] += ratio
	case Activity:
		acc[iM2FootAct] += footprint
		acc[iBuiltAct] += ratio
	case Mixed:
		acc[iM2FootMixed] += footprint
		acc[iBuiltMixed] += ratio
	}
	acc[iLevels] += ratio * b.Levels
	acc[iBuildings] += ratio
	acc[iBuiltUpM2] += footprint
}

// countActivityPOIs counts the activity and mixed points of interest
// within each cell.
func countActivityPOIs(cells []*Cell, pois []*POI) ([]float64, error) {
	var act POIs
	for _, p := range pois {
		if p.Class.IsActivity() {
			act = append(act, p)
		}
	}
	m, err := Associate(Cells(cells), act, Intersects)
	if err != nil {
		return nil, err
	}
	o := make([]float64, len(cells))
	for i, c := range cells {
		o[i] = float64(len(m[c.Index]))
	}
	return o, nil
}

// checkColumns makes sure that every column in t has one value per cell.
func (t *FeatureTable) checkColumns() error {
	for _, c := range t.Columns {
		v, ok := t.Data[c]
		if !ok {
			return fmt.Errorf("sprawl: missing data for column %s", c)
		}
		if len(v) != len(t.Cells) {
			return fmt.Errorf("sprawl: column %s has %d values but there are %d cells", c, len(v), len(t.Cells))
		}
	}
	return nil
}
