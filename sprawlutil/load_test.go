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
	"fmt"
	"math"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	goshp "github.com/jonas-p/go-shp"
	"github.com/spatialmodel/sprawl"
)

// writeTestInputs writes a 3x3 population grid without its center cell,
// three buildings and three points of interest to dir.
func writeTestInputs(t *testing.T, dir string) {
	t.Helper()
	g, err := shp.NewEncoderFromFields(filepath.Join(dir, "grid.shp"), goshp.POLYGON,
		goshp.StringField("id", 50), goshp.FloatField("pop", 14, 8))
	if err != nil {
		t.Fatal(err)
	}
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			if r == 1 && c == 1 {
				continue
			}
			n, e := 2000+r*200, 4000+c*200
			pop := 10.
			if r == 2 && c == 2 {
				pop = math.NaN()
			}
			id := fmt.Sprintf("CRS3035RES200mN%dE%d", n, e)
			if err := g.EncodeFields(sprawl.Square(float64(e), float64(n), 200), id, pop); err != nil {
				t.Fatal(err)
			}
		}
	}
	g.Close()

	b, err := shp.NewEncoderFromFields(filepath.Join(dir, "buildings.shp"), goshp.POLYGON,
		goshp.StringField("class", 20), goshp.FloatField("levels", 14, 8),
		goshp.StringField("act_cat", 50), goshp.StringField("cont_poi", 50),
		goshp.FloatField("m2_res", 14, 8), goshp.FloatField("m2_act", 14, 8),
		goshp.FloatField("m2_shop", 14, 8))
	if err != nil {
		t.Fatal(err)
	}
	for _, row := range []struct {
		g                    geom.Polygon
		class                string
		levels               float64
		cats, contains       string
		m2res, m2act, m2shop float64
	}{
		{g: sprawl.Square(4050, 2050, 40), class: "residential", levels: 2, m2res: 3200},
		{g: sprawl.Square(4250, 2250, 60), class: "activity", levels: 1, cats: "shop", contains: "0", m2act: 3600, m2shop: 3600},
		{g: sprawl.Square(4450, 2450, 50), class: "mixed", levels: 3, cats: "shop;leisure", m2res: 3750, m2act: 3750},
	} {
		if err := b.EncodeFields(row.g, row.class, row.levels, row.cats, row.contains, row.m2res, row.m2act, row.m2shop); err != nil {
			t.Fatal(err)
		}
	}
	b.Close()

	p, err := shp.NewEncoderFromFields(filepath.Join(dir, "pois.shp"), goshp.POINT,
		goshp.StringField("class", 20), goshp.StringField("act_cat", 50))
	if err != nil {
		t.Fatal(err)
	}
	for _, row := range []struct {
		p           geom.Point
		class, cats string
	}{
		{p: geom.Point{X: 4280, Y: 2280}, class: "activity", cats: "shop"},
		{p: geom.Point{X: 4150, Y: 2450}, class: "activity", cats: "leisure"},
		{p: geom.Point{X: 4500, Y: 2100}, class: "residential"},
	} {
		if err := p.EncodeFields(row.p, row.class, row.cats); err != nil {
			t.Fatal(err)
		}
	}
	p.Close()
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeTestInputs(t, dir)

	cells, err := LoadGrid(filepath.Join(dir, "grid.shp"), "id", "pop")
	if err != nil {
		t.Fatal(err)
	}
	if len(cells) != 8 {
		t.Fatalf("have %d cells, want 8", len(cells))
	}
	for i, c := range cells {
		if c.Index != i {
			t.Errorf("cell %d has index %d", i, c.Index)
		}
		if a := c.Area(); math.Abs(a-40000) > 1.e-6 {
			t.Errorf("cell %d area: have %g, want 40000", i, a)
		}
	}
	if cells[0].ID != "CRS3035RES200mN2000E4000" {
		t.Errorf("first cell ID: %q", cells[0].ID)
	}
	if cells[0].Population != 10 {
		t.Errorf("first cell population: %g", cells[0].Population)
	}
	if !math.IsNaN(cells[7].Population) {
		t.Errorf("last cell population: have %g, want NaN", cells[7].Population)
	}

	buildings, err := LoadBuildings(filepath.Join(dir, "buildings.shp"))
	if err != nil {
		t.Fatal(err)
	}
	if len(buildings) != 3 {
		t.Fatalf("have %d buildings, want 3", len(buildings))
	}
	classes := []sprawl.Class{sprawl.Residential, sprawl.Activity, sprawl.Mixed}
	levels := []float64{2, 1, 3}
	landUses := []map[string]float64{
		{"residential": 3200, "activity": 0, "shop": 0},
		{"residential": 0, "activity": 3600, "shop": 3600},
		{"residential": 3750, "activity": 3750, "shop": 0},
	}
	cats := [][]string{nil, {"shop"}, {"shop", "leisure"}}
	contains := [][]int{nil, {0}, nil}
	for i, b := range buildings {
		if b.Class != classes[i] {
			t.Errorf("building %d class: have %s, want %s", i, b.Class, classes[i])
		}
		if b.Levels != levels[i] {
			t.Errorf("building %d levels: have %g, want %g", i, b.Levels, levels[i])
		}
		if !reflect.DeepEqual(b.LandUses, landUses[i]) {
			t.Errorf("building %d land uses: have %v, want %v", i, b.LandUses, landUses[i])
		}
		if !reflect.DeepEqual(b.ActivityCategories, cats[i]) {
			t.Errorf("building %d categories: have %v, want %v", i, b.ActivityCategories, cats[i])
		}
		if !reflect.DeepEqual(b.ContainingPOI, contains[i]) {
			t.Errorf("building %d contained points: have %v, want %v", i, b.ContainingPOI, contains[i])
		}
	}

	pois, err := LoadPOIs(filepath.Join(dir, "pois.shp"))
	if err != nil {
		t.Fatal(err)
	}
	if len(pois) != 3 {
		t.Fatalf("have %d points of interest, want 3", len(pois))
	}
	if pois[1].Point != (geom.Point{X: 4150, Y: 2450}) || pois[1].Class != sprawl.Activity ||
		!reflect.DeepEqual(pois[1].ActivityCategories, []string{"leisure"}) {
		t.Errorf("point of interest 1: %+v", pois[1])
	}
	if pois[2].Class != sprawl.Residential || pois[2].ActivityCategories != nil {
		t.Errorf("point of interest 2: %+v", pois[2])
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	writeTestInputs(t, dir)
	if _, err := LoadGrid(filepath.Join(dir, "grid.shp"), "id", "population"); err == nil {
		t.Error("expected an error for a missing population field")
	}
	if _, err := LoadBuildings(filepath.Join(dir, "grid.shp")); err == nil {
		t.Error("expected an error for a missing class field")
	}
	if _, err := LoadPOIs(filepath.Join(dir, "buildings.shp")); err == nil {
		t.Error("expected an error for polygon points of interest")
	}
	if _, err := LoadGrid(filepath.Join(dir, "missing.shp"), "id", "pop"); err == nil {
		t.Error("expected an error for a missing file")
	}

	b, err := shp.NewEncoderFromFields(filepath.Join(dir, "badclass.shp"), goshp.POLYGON,
		goshp.StringField("class", 20))
	if err != nil {
		t.Fatal(err)
	}
	if err := b.EncodeFields(sprawl.Square(0, 0, 10), "industrial"); err != nil {
		t.Fatal(err)
	}
	b.Close()
	p, err := shp.NewEncoderFromFields(filepath.Join(dir, "badclass_pois.shp"), goshp.POINT,
		goshp.StringField("class", 20))
	if err != nil {
		t.Fatal(err)
	}
	if err := p.EncodeFields(geom.Point{X: 1, Y: 1}, "industrial"); err != nil {
		t.Fatal(err)
	}
	p.Close()

	_, err = LoadBuildings(filepath.Join(dir, "badclass.shp"))
	if err == nil || !strings.HasPrefix(err.Error(), "sprawlutil: building 0: ") {
		t.Errorf("invalid building class: %v", err)
	}
	_, err = LoadPOIs(filepath.Join(dir, "badclass_pois.shp"))
	if err == nil || !strings.HasPrefix(err.Error(), "sprawlutil: point of interest 0: ") {
		t.Errorf("invalid point of interest class: %v", err)
	}
}

func TestParseFloat(t *testing.T) {
	for _, test := range []struct {
		s    string
		want float64
	}{
		{s: "12.5", want: 12.5},
		{s: "  3 ", want: 3},
		{s: "7\x00\x00", want: 7},
	} {
		if have, err := parseFloat(test.s); err != nil || have != test.want {
			t.Errorf("parseFloat(%q) = %g, %v; want %g", test.s, have, err, test.want)
		}
	}
	for _, s := range []string{"", "   ", "*****", "NaN"} {
		if have, err := parseFloat(s); err != nil || !math.IsNaN(have) {
			t.Errorf("parseFloat(%q) = %g, %v; want NaN", s, have, err)
		}
	}
	if _, err := parseFloat("many"); err == nil {
		t.Error("expected an error")
	}
}

func TestParseClass(t *testing.T) {
	for s, want := range map[string]sprawl.Class{
		"residential": sprawl.Residential,
		"Activity":    sprawl.Activity,
		"mixed ":      sprawl.Mixed,
		"":            sprawl.Other,
		"other":       sprawl.Other,
	} {
		if have, err := parseClass(s); err != nil || have != want {
			t.Errorf("parseClass(%q) = %s, %v; want %s", s, have, err, want)
		}
	}
	if _, err := parseClass("industrial"); err == nil {
		t.Error("expected an error")
	}
}
