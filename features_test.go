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
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"

	"github.com/ctessum/geom"
)

func different(a, b, tolerance float64) bool {
	if 2*math.Abs(a-b)/math.Abs(a+b) > tolerance || math.IsNaN(a) || math.IsNaN(b) {
		if a == 0 && b == 0 {
			return false
		}
		if math.Abs(a-b) < 1.e-12 {
			return false
		}
		return true
	}
	return false
}

// testGrid returns a grid of square cells with the given number of rows and
// columns, ordered by row and then column, with the first cell at the origin.
func testGrid(rows, cols int, size float64) []*Cell {
	var o []*Cell
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			n, e := float64(r)*size, float64(c)*size
			o = append(o, &Cell{
				Polygonal:  Square(e, n, size),
				Index:      len(o),
				ID:         fmt.Sprintf("CRS3035RES200mN%.0fE%.0f", n, e),
				Population: 1,
			})
		}
	}
	return o
}

type fakeMixer struct{}

func (fakeMixer) LandUseMix(targets []geom.Point, _ []*Building, _ []*POI) ([]Column, error) {
	pdf := make([]float64, len(targets))
	for i := range pdf {
		pdf[i] = math.NaN()
	}
	x := make([]float64, len(targets))
	for i, p := range targets {
		x[i] = p.X
	}
	return []Column{{Name: "residential_pdf", Values: pdf}, {Name: "x", Values: x}}, nil
}

type fakeDisperser []float64

func (d fakeDisperser) Dispersion(targets []geom.Point, _ []*Building) ([]float64, error) {
	return append([]float64{}, d[:len(targets)]...), nil
}

func TestBuildingRatio(t *testing.T) {
	cells := testGrid(2, 2, 200)
	b := Square(150, 150, 100) // centered on the shared corner
	var sum float64
	for _, c := range cells {
		r := BuildingRatio(c, b)
		if different(r, 0.25, 1.e-9) {
			t.Errorf("cell %d: ratio %g != 0.25", c.Index, r)
		}
		sum += r
	}
	if different(sum, 1, 1.e-9) {
		t.Errorf("ratios sum to %g", sum)
	}

	irregular := geom.Polygon{{{X: 20, Y: 30}, {X: 370, Y: 90}, {X: 310, Y: 380}, {X: 60, Y: 250}}}
	sum = 0
	for _, c := range cells {
		sum += BuildingRatio(c, irregular)
	}
	if different(sum, 1, 1.e-9) {
		t.Errorf("irregular ratios sum to %g", sum)
	}

	if r := BuildingRatio(cells[0], geom.Polygon{{{X: 1, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 1}}}); r != 0 {
		t.Errorf("zero-area building ratio %g", r)
	}
	if r := BuildingRatio(cells[0], Square(50, 50, 10)); r != 1 {
		t.Errorf("contained building ratio %g", r)
	}
}

func TestAggregate(t *testing.T) {
	cells := testGrid(2, 2, 200)
	buildings := []*Building{{
		Polygonal: Square(50, 50, 10),
		LandUses:  map[string]float64{"residential": 100, "activity": 0},
		Levels:    2,
		Class:     Residential,
	}}
	a := NewAggregator(GPW, nil, nil)
	table, err := a.Aggregate(cells, buildings, []*POI{})
	if err != nil {
		t.Fatal(err)
	}
	wantCols := append(append([]string{}, buildingColumns...), BuiltUpRelation, NumActivityPOIs)
	if !reflect.DeepEqual(table.Columns, wantCols) {
		t.Errorf("columns: have %v, want %v", table.Columns, wantCols)
	}
	want := map[string][]float64{
		M2TotalResidential:     {100, 0, 0, 0},
		M2TotalActivity:        {0, 0, 0, 0},
		M2FootprintResidential: {100, 0, 0, 0},
		M2FootprintActivity:    {0, 0, 0, 0},
		M2FootprintMixed:       {0, 0, 0, 0},
		NumBuiltResidential:    {1, 0, 0, 0},
		NumBuiltActivity:       {0, 0, 0, 0},
		NumBuiltMixed:          {0, 0, 0, 0},
		NumLevels:              {2, 0, 0, 0},
		NumBuildings:           {1, 0, 0, 0},
		BuiltUpRelation:        {100. / 40000, 0, 0, 0},
		NumActivityPOIs:        {0, 0, 0, 0},
	}
	for name, w := range want {
		have := table.Column(name)
		if len(have) != len(w) {
			t.Fatalf("%s: have %v, want %v", name, have, w)
		}
		for i := range w {
			if different(have[i], w[i], 1.e-9) {
				t.Errorf("%s[%d]: have %g, want %g", name, i, have[i], w[i])
			}
		}
	}
}

func TestAggregateSplitBuildings(t *testing.T) {
	cells := testGrid(1, 2, 200)
	buildings := []*Building{
		{
			Polygonal: Square(150, 0, 100), // half in each cell
			Index:     0,
			LandUses:  map[string]float64{"residential": 500, "activity": 1000},
			Levels:    3,
			Class:     Mixed,
		},
		{
			Polygonal: Square(300, 100, 50),
			Index:     1,
			LandUses:  map[string]float64{"activity": 2500},
			Levels:    1,
			Class:     Activity,
		},
	}
	pois := []*POI{
		{Point: geom.Point{X: 320, Y: 120}, Index: 0, Class: Activity},
		{Point: geom.Point{X: 20, Y: 20}, Index: 1, Class: Mixed},
		{Point: geom.Point{X: 30, Y: 20}, Index: 2, Class: Residential},
		{Point: geom.Point{X: 40, Y: 20}, Index: 3, Class: Other},
	}
	a := NewAggregator(GPW, nil, nil)
	table, err := a.Aggregate(cells, buildings, pois)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string][]float64{
		M2TotalResidential:     {250, 250},
		M2TotalActivity:        {500, 3000},
		M2FootprintMixed:       {5000, 5000},
		M2FootprintActivity:    {0, 2500},
		NumBuiltMixed:          {0.5, 0.5},
		NumBuiltActivity:       {0, 1},
		NumLevels:              {1.5, 2.5},
		NumBuildings:           {0.5, 1.5},
		BuiltUpRelation:        {5000. / 40000, 7500. / 40000},
		NumActivityPOIs:        {1, 1},
		M2FootprintResidential: {0, 0},
	}
	for name, w := range want {
		have := table.Column(name)
		for i := range w {
			if different(have[i], w[i], 1.e-9) {
				t.Errorf("%s[%d]: have %g, want %g", name, i, have[i], w[i])
			}
		}
	}
	if !reflect.DeepEqual(buildings[1].ContainingPOI, []int{0}) {
		t.Errorf("containing POI: %v", buildings[1].ContainingPOI)
	}
	if buildings[0].ContainingPOI != nil {
		t.Errorf("building 0 should not contain POIs: %v", buildings[0].ContainingPOI)
	}
}

func TestAggregateErrors(t *testing.T) {
	cells := testGrid(1, 1, 200)
	t.Run("data source", func(t *testing.T) {
		a := NewAggregator("census", nil, nil)
		_, err := a.Aggregate(nil, nil, nil)
		if !errors.Is(err, ErrDataSource) {
			t.Errorf("have %v, want %v", err, ErrDataSource)
		}
	})
	for _, test := range []struct {
		name      string
		cells     []*Cell
		buildings []*Building
		pois      []*POI
	}{
		{name: "grid", buildings: []*Building{}, pois: []*POI{}},
		{name: "buildings", cells: cells, pois: []*POI{}},
		{name: "pois", cells: cells, buildings: []*Building{}},
	} {
		t.Run(test.name, func(t *testing.T) {
			a := NewAggregator(INSEE, nil, nil)
			_, err := a.Aggregate(test.cells, test.buildings, test.pois)
			if !errors.Is(err, ErrMissingInput) {
				t.Errorf("have %v, want %v", err, ErrMissingInput)
			}
		})
	}
}

func TestAggregateEstimators(t *testing.T) {
	cells := testGrid(2, 2, 200)
	a := NewAggregator(GPW, fakeMixer{}, fakeDisperser{20, 5, math.NaN(), 15})
	table, err := a.Aggregate(cells, []*Building{}, []*POI{})
	if err != nil {
		t.Fatal(err)
	}
	n := len(table.Columns)
	if want := []string{"residential_pdf", "x", Dispersion}; !reflect.DeepEqual(table.Columns[n-3:], want) {
		t.Errorf("columns: have %v, want %v", table.Columns[n-3:], want)
	}
	if have, want := table.Column(Dispersion), []float64{15, 5, 0, 15}; !reflect.DeepEqual(have, want) {
		t.Errorf("dispersion: have %v, want %v", have, want)
	}
	if have, want := table.Column("residential_pdf"), []float64{0, 0, 0, 0}; !reflect.DeepEqual(have, want) {
		t.Errorf("pdf: have %v, want %v", have, want)
	}
	// Estimators are evaluated at cell centroids.
	for i, want := range []float64{100, 300, 100, 300} {
		if have := table.Column("x")[i]; different(have, want, 1.e-9) {
			t.Errorf("centroid %d: have %g, want %g", i, have, want)
		}
	}
	if !reflect.DeepEqual(cells[0].Polygonal, Square(0, 0, 200)) {
		t.Errorf("cell geometry changed: %v", cells[0].Polygonal)
	}
}

func TestAggregateIdempotent(t *testing.T) {
	run := func() *FeatureTable {
		cells := testGrid(3, 3, 200)
		buildings := []*Building{
			{Polygonal: Square(150, 150, 120), Index: 0, LandUses: map[string]float64{"residential": 300}, Class: Residential, Levels: 2},
			{Polygonal: Square(420, 30, 60), Index: 1, LandUses: map[string]float64{"activity": 80, "shop": 80}, Class: Activity, Levels: 1},
		}
		pois := []*POI{{Point: geom.Point{X: 450, Y: 60}, Index: 0, Class: Activity}}
		a := NewAggregator(GPW, fakeMixer{}, fakeDisperser{1, 2, 3, 4, 5, 6, 7, 8, 9})
		table, err := a.Aggregate(cells, buildings, pois)
		if err != nil {
			t.Fatal(err)
		}
		return table
	}
	t1, t2 := run(), run()
	if !reflect.DeepEqual(t1, t2) {
		t.Error("tables are not identical")
	}
	if t1.Fingerprint() != t2.Fingerprint() {
		t.Errorf("fingerprints differ: %s != %s", t1.Fingerprint(), t2.Fingerprint())
	}
}

func TestAggregateINSEE(t *testing.T) {
	cells := []*Cell{
		{Polygonal: Square(0, 0, 200), Index: 0, ID: "CRS3035RES200mN0E0", Population: 3},
		{Polygonal: Square(400, 0, 200), Index: 1, ID: "CRS3035RES200mN0E400", Population: 5},
	}
	a := NewAggregator(INSEE, nil, nil)
	table, err := a.Aggregate(cells, []*Building{}, []*POI{})
	if err != nil {
		t.Fatal(err)
	}
	if len(table.Cells) != 3 {
		t.Fatalf("have %d cells, want 3", len(table.Cells))
	}
	c := table.Cells[2]
	if c.ID != "CRS3035RES200mN0E200" || c.Population != 0 || c.Index != 2 {
		t.Errorf("reconstructed cell %+v", c)
	}
	if len(table.Column(NumBuildings)) != 3 {
		t.Errorf("column length %d", len(table.Column(NumBuildings)))
	}
}

func TestFeatureTable(t *testing.T) {
	table := NewFeatureTable(testGrid(1, 2, 200))
	if err := table.Add("a", []float64{1, 2}); err != nil {
		t.Fatal(err)
	}
	if err := table.Add("b", []float64{3, 4}); err != nil {
		t.Fatal(err)
	}
	if err := table.Add("a", []float64{5, 6}); err != nil {
		t.Fatal(err)
	}
	if err := table.Add("c", []float64{1}); err == nil {
		t.Error("expected a length error")
	}
	if !reflect.DeepEqual(table.Columns, []string{"a", "b"}) {
		t.Errorf("columns %v", table.Columns)
	}
	if have, want := table.Row(1), []float64{6, 4}; !reflect.DeepEqual(have, want) {
		t.Errorf("row: have %v, want %v", have, want)
	}
}
