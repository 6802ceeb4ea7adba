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

package sprawlutil

import (
	"bytes"
	"image/png"
	"math"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/goccy/go-json"
	"github.com/spatialmodel/sprawl"
)

func testTable(t *testing.T) *sprawl.FeatureTable {
	t.Helper()
	cells := []*sprawl.Cell{
		{Polygonal: sprawl.Square(0, 0, 200), Index: 0, ID: "CRS3035RES200mN0E0", Population: 5},
		{Polygonal: sprawl.Square(200, 0, 200), Index: 1, ID: "CRS3035RES200mN0E200", Population: math.NaN()},
		{Polygonal: sprawl.Square(0, 200, 200), Index: 2, ID: "CRS3035RES200mN200E0", Population: 0},
	}
	table := sprawl.NewFeatureTable(cells)
	for _, c := range []sprawl.Column{
		{Name: sprawl.NumBuildings, Values: []float64{3, 0, 1}},
		{Name: "landusemix", Values: []float64{0.5, 0, 1}},
		{Name: "restaurant_pdf", Values: []float64{1, 0.25, 0}},
	} {
		if err := table.Add(c.Name, c.Values); err != nil {
			t.Fatal(err)
		}
	}
	return table
}

func TestShapefileFieldNames(t *testing.T) {
	have := ShapefileFieldNames([]string{
		sprawl.M2FootprintResidential, "landusemix", "shop_pdf",
		"verylongcategory_pdf", "verylongcategoryX_pdf", "id_pdf",
	})
	want := []string{"m2_ft_res", "lu_mix", "shop", "verylongca", "verylongc1", "id1"}
	if !reflect.DeepEqual(have, want) {
		t.Errorf("have %v, want %v", have, want)
	}
	for _, n := range have {
		if len(n) > maxFieldName {
			t.Errorf("%s is too long", n)
		}
	}
}

func TestWriteShapefile(t *testing.T) {
	table := testTable(t)
	path := filepath.Join(t.TempDir(), "features.geojs")
	if err := WriteShapefile(table, path); err != nil {
		t.Fatal(err)
	}
	cells, err := LoadGrid(filepath.Join(filepath.Dir(path), "features.shp"), "id", "pop")
	if err != nil {
		t.Fatal(err)
	}
	if len(cells) != len(table.Cells) {
		t.Fatalf("have %d cells, want %d", len(cells), len(table.Cells))
	}
	for i, c := range cells {
		if c.ID != table.Cells[i].ID {
			t.Errorf("cell %d: have ID %s, want %s", i, c.ID, table.Cells[i].ID)
		}
	}
	if cells[0].Population != 5 || !math.IsNaN(cells[1].Population) {
		t.Errorf("populations: %g, %g", cells[0].Population, cells[1].Population)
	}
}

func TestWriteGeoJSON(t *testing.T) {
	table := testTable(t)
	var b bytes.Buffer
	if err := WriteGeoJSON(&b, table); err != nil {
		t.Fatal(err)
	}
	var fc struct {
		Type     string
		Features []struct {
			Type       string
			ID         string
			Properties map[string]float64
			Geometry   struct {
				Type string
			}
		}
	}
	if err := json.Unmarshal(b.Bytes(), &fc); err != nil {
		t.Fatal(err)
	}
	if fc.Type != "FeatureCollection" || len(fc.Features) != 3 {
		t.Fatalf("%s with %d features", fc.Type, len(fc.Features))
	}
	want := map[string]float64{"population": 5, sprawl.NumBuildings: 3, "landusemix": 0.5, "restaurant_pdf": 1}
	if f := fc.Features[0]; !reflect.DeepEqual(f.Properties, want) {
		t.Errorf("properties: have %v, want %v", f.Properties, want)
	}
	if f := fc.Features[1]; f.ID != "CRS3035RES200mN0E200" || f.Geometry.Type != "Polygon" {
		t.Errorf("feature 1: %+v", f)
	}
	if _, ok := fc.Features[1].Properties["population"]; ok {
		t.Error("unknown population should be omitted")
	}
}

func TestDrawMap(t *testing.T) {
	table := testTable(t)
	var m, l bytes.Buffer
	if err := DrawMap(&m, &l, table, "landusemix", 100); err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(&m)
	if err != nil {
		t.Fatal(err)
	}
	if w := img.Bounds().Dx(); w != 100 {
		t.Errorf("map width: have %d, want 100", w)
	}
	if _, err := png.Decode(&l); err != nil {
		t.Errorf("legend: %v", err)
	}
	if err := DrawMap(&m, nil, table, "missing", 100); err == nil {
		t.Error("expected an error for a missing column")
	}
	if err := DrawMap(&m, nil, table, "landusemix", 0); err == nil {
		t.Error("expected an error for a zero width")
	}
}

func TestWriteTraining(t *testing.T) {
	ts := &sprawl.TrainingSet{
		Y:       [][]float64{{0.25, 0.75}},
		X:       [][][]float64{{{1, 0}, {0.5, 1}}},
		Columns: []string{"a", "b"},
	}
	path := filepath.Join(t.TempDir(), "training.gob")
	if err := WriteTraining(ts, path); err != nil {
		t.Fatal(err)
	}
	have, err := ReadTraining(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(have, ts) {
		t.Errorf("have %+v, want %+v", have, ts)
	}
}
