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
	"sort"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/spatialmodel/sprawl"
	"github.com/spf13/cast"
)

// Attribute fields of the input shapefiles.
const (
	classField    = "class"
	levelsField   = "levels"
	categoryField = "act_cat"
	containsField = "cont_poi"

	// landUsePrefix starts the names of building floor area fields.
	// m2_res and m2_act hold the residential and activity floor areas,
	// and m2_<category> the floor area of an activity category.
	landUsePrefix = "m2_"

	// listSeparator separates the elements of list fields.
	listSeparator = ";"
)

var landUseAbbreviations = map[string]string{
	"res": string(sprawl.Residential),
	"act": string(sprawl.Activity),
}

// clean removes the padding from a shapefile attribute.
func clean(s string) string {
	return strings.TrimSpace(strings.Trim(s, "\x00"))
}

// parseFloat parses a shapefile attribute. Empty and null attributes
// are NaN.
func parseFloat(s string) (float64, error) {
	s = clean(s)
	if s == "" || strings.Trim(s, "*") == "" || strings.EqualFold(s, "nan") {
		return math.NaN(), nil
	}
	return cast.ToFloat64E(s)
}

func parseList(s string) []string {
	var o []string
	for _, v := range strings.Split(clean(s), listSeparator) {
		if v = strings.TrimSpace(v); v != "" {
			o = append(o, v)
		}
	}
	return o
}

func parseClass(s string) (sprawl.Class, error) {
	switch c := sprawl.Class(strings.ToLower(clean(s))); c {
	case sprawl.Residential, sprawl.Activity, sprawl.Mixed, sprawl.Other:
		return c, nil
	case "":
		return sprawl.Other, nil
	default:
		return c, fmt.Errorf("sprawlutil: invalid land use class %q", s)
	}
}

// fieldNames returns the lower case names of the attribute fields of d.
func fieldNames(d *shp.Decoder) []string {
	fields := d.Fields()
	o := make([]string, len(fields))
	for i, f := range fields {
		o[i] = strings.ToLower(strings.TrimRight(string(f.Name[:]), "\x00"))
	}
	return o
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// LoadGrid reads population grid cells from the shapefile at path.
// idField holds the cell identifiers and popField the population
// counts. Cells are indexed in file order.
func LoadGrid(path, idField, popField string) ([]*sprawl.Cell, error) {
	d, err := shp.NewDecoder(path)
	if err != nil {
		return nil, fmt.Errorf("sprawlutil: opening population grid: %w", err)
	}
	defer d.Close()

	cells := make([]*sprawl.Cell, 0)
	for {
		g, fields, more := d.DecodeRowFields(idField, popField)
		if err := d.Error(); err != nil {
			return nil, fmt.Errorf("sprawlutil: reading population grid: %w", err)
		}
		if !more {
			break
		}
		p, ok := g.(geom.Polygonal)
		if !ok {
			return nil, fmt.Errorf("sprawlutil: grid cell %d has geometry type %T", len(cells), g)
		}
		pop, err := parseFloat(fields[popField])
		if err != nil {
			return nil, fmt.Errorf("sprawlutil: population of grid cell %d: %w", len(cells), err)
		}
		cells = append(cells, &sprawl.Cell{
			Polygonal:  p,
			Index:      len(cells),
			ID:         clean(fields[idField]),
			Population: pop,
		})
	}
	return cells, nil
}

// LoadBuildings reads building footprints from the shapefile at path.
// The class field is required. The levels, act_cat and cont_poi fields
// and any m2_ floor area fields are read when present. Buildings are
// indexed in file order.
func LoadBuildings(path string) ([]*sprawl.Building, error) {
	d, err := shp.NewDecoder(path)
	if err != nil {
		return nil, fmt.Errorf("sprawlutil: opening buildings: %w", err)
	}
	defer d.Close()

	names := fieldNames(d)
	if !contains(names, classField) {
		return nil, fmt.Errorf("sprawlutil: buildings file %s has no %s field", path, classField)
	}
	read := []string{classField}
	for _, n := range []string{levelsField, categoryField, containsField} {
		if contains(names, n) {
			read = append(read, n)
		}
	}
	var landUseFields []string
	for _, n := range names {
		if strings.HasPrefix(n, landUsePrefix) {
			landUseFields = append(landUseFields, n)
		}
	}
	sort.Strings(landUseFields)
	read = append(read, landUseFields...)

	buildings := make([]*sprawl.Building, 0)
	for {
		g, fields, more := d.DecodeRowFields(read...)
		if err := d.Error(); err != nil {
			return nil, fmt.Errorf("sprawlutil: reading buildings: %w", err)
		}
		if !more {
			break
		}
		i := len(buildings)
		p, ok := g.(geom.Polygonal)
		if !ok {
			return nil, fmt.Errorf("sprawlutil: building %d has geometry type %T", i, g)
		}
		b := &sprawl.Building{
			Polygonal:          p,
			Index:              i,
			LandUses:           make(map[string]float64),
			ActivityCategories: parseList(fields[categoryField]),
		}
		if b.Class, err = parseClass(fields[classField]); err != nil {
			return nil, fmt.Errorf("sprawlutil: building %d: %w", i, err)
		}
		if b.Levels, err = parseFloat(fields[levelsField]); err != nil {
			return nil, fmt.Errorf("sprawlutil: levels of building %d: %w", i, err)
		}
		if math.IsNaN(b.Levels) {
			b.Levels = 0
		}
		for _, n := range landUseFields {
			v, err := parseFloat(fields[n])
			if err != nil {
				return nil, fmt.Errorf("sprawlutil: %s of building %d: %w", n, i, err)
			}
			if math.IsNaN(v) {
				continue
			}
			use := strings.TrimPrefix(n, landUsePrefix)
			if full, ok := landUseAbbreviations[use]; ok {
				use = full
			}
			b.LandUses[use] = v
		}
		for _, s := range parseList(fields[containsField]) {
			j, err := cast.ToIntE(s)
			if err != nil {
				return nil, fmt.Errorf("sprawlutil: contained points of interest of building %d: %w", i, err)
			}
			b.ContainingPOI = append(b.ContainingPOI, j)
		}
		buildings = append(buildings, b)
	}
	return buildings, nil
}

// LoadPOIs reads points of interest from the shapefile at path.
// The class field is required and the act_cat field is read when present.
// Points are indexed in file order.
func LoadPOIs(path string) ([]*sprawl.POI, error) {
	d, err := shp.NewDecoder(path)
	if err != nil {
		return nil, fmt.Errorf("sprawlutil: opening points of interest: %w", err)
	}
	defer d.Close()

	names := fieldNames(d)
	if !contains(names, classField) {
		return nil, fmt.Errorf("sprawlutil: points of interest file %s has no %s field", path, classField)
	}
	read := []string{classField}
	if contains(names, categoryField) {
		read = append(read, categoryField)
	}

	pois := make([]*sprawl.POI, 0)
	for {
		g, fields, more := d.DecodeRowFields(read...)
		if err := d.Error(); err != nil {
			return nil, fmt.Errorf("sprawlutil: reading points of interest: %w", err)
		}
		if !more {
			break
		}
		i := len(pois)
		p, ok := g.(geom.Point)
		if !ok {
			return nil, fmt.Errorf("sprawlutil: point of interest %d has geometry type %T", i, g)
		}
		c, err := parseClass(fields[classField])
		if err != nil {
			return nil, fmt.Errorf("sprawlutil: point of interest %d: %w", i, err)
		}
		pois = append(pois, &sprawl.POI{
			Point:              p,
			Index:              i,
			Class:              c,
			ActivityCategories: parseList(fields[categoryField]),
		})
	}
	return pois, nil
}
