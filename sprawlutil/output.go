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
	"encoding/gob"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ctessum/geom/encoding/geojson"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/goccy/go-json"
	goshp "github.com/jonas-p/go-shp"
	"github.com/spatialmodel/sprawl"
	"github.com/spatialmodel/sprawl/landusemix"
)

// Shapefile attribute names are limited to ten characters.
const maxFieldName = 10

var shortColumnNames = map[string]string{
	sprawl.M2TotalResidential:     "m2_tot_res",
	sprawl.M2TotalActivity:        "m2_tot_act",
	sprawl.M2FootprintResidential: "m2_ft_res",
	sprawl.M2FootprintActivity:    "m2_ft_act",
	sprawl.M2FootprintMixed:       "m2_ft_mix",
	sprawl.NumBuiltResidential:    "n_blt_res",
	sprawl.NumBuiltActivity:       "n_blt_act",
	sprawl.NumBuiltMixed:          "n_blt_mix",
	sprawl.NumLevels:              "n_levels",
	sprawl.NumBuildings:           "n_bldgs",
	sprawl.BuiltUpRelation:        "blt_up_rel",
	sprawl.NumActivityPOIs:        "n_act_poi",
	sprawl.Dispersion:             "dispersion",
	landusemix.ResidentialPDF:     "res_pdf",
	landusemix.ActivityPDF:        "act_pdf",
	landusemix.LandUseMix:         "lu_mix",
	landusemix.LandUseIntensity:   "lu_intens",
}

// ShapefileFieldNames returns unique shapefile attribute names for the
// given columns. Columns without a standard abbreviation are truncated
// and, if necessary, numbered.
func ShapefileFieldNames(columns []string) []string {
	used := map[string]bool{"id": true, "pop": true}
	o := make([]string, len(columns))
	for i, c := range columns {
		name, ok := shortColumnNames[c]
		if !ok {
			name = strings.TrimSuffix(c, "_pdf")
			if len(name) > maxFieldName {
				name = name[:maxFieldName]
			}
		}
		for n := 1; used[name]; n++ {
			suffix := strconv.Itoa(n)
			base := name
			if len(base)+len(suffix) > maxFieldName {
				base = base[:maxFieldName-len(suffix)]
			}
			name = base + suffix
		}
		used[name] = true
		o[i] = name
	}
	return o
}

// WriteFeatures writes t to path as GeoJSON if path ends in .geojson or
// .json and as a shapefile otherwise.
func WriteFeatures(t *sprawl.FeatureTable, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("sprawlutil: creating output file: %w", err)
		}
		if err := WriteGeoJSON(f, t); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	default:
		return WriteShapefile(t, path)
	}
}

// WriteShapefile writes the cells of t to a polygon shapefile at path,
// with the cell identifier and population followed by the feature
// columns, whose attribute names are given by ShapefileFieldNames.
func WriteShapefile(t *sprawl.FeatureTable, path string) error {
	path = strings.TrimSuffix(path, filepath.Ext(path)) + ".shp"
	fields := []goshp.Field{goshp.StringField("id", 50), goshp.FloatField("pop", 14, 8)}
	for _, n := range ShapefileFieldNames(t.Columns) {
		fields = append(fields, goshp.FloatField(n, 14, 8))
	}
	e, err := shp.NewEncoderFromFields(path, goshp.POLYGON, fields...)
	if err != nil {
		return fmt.Errorf("sprawlutil: creating output shapefile: %w", err)
	}
	defer e.Close()
	for i, c := range t.Cells {
		vals := make([]interface{}, 0, len(fields))
		vals = append(vals, c.ID, c.Population)
		for _, v := range t.Row(i) {
			vals = append(vals, v)
		}
		if err := e.EncodeFields(c.Polygonal, vals...); err != nil {
			return fmt.Errorf("sprawlutil: writing output shapefile: %w", err)
		}
	}
	return nil
}

// copyProjection copies the .prj file accompanying the shapefile src,
// if there is one, to accompany dst.
func copyProjection(src, dst string) error {
	in, err := os.Open(strings.TrimSuffix(src, filepath.Ext(src)) + ".prj")
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(strings.TrimSuffix(dst, filepath.Ext(dst)) + ".prj")
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

type geoJSONFeature struct {
	Type       string             `json:"type"`
	ID         string             `json:"id,omitempty"`
	Geometry   *geojson.Geometry  `json:"geometry"`
	Properties map[string]float64 `json:"properties"`
}

type geoJSON struct {
	Type     string            `json:"type"`
	Features []*geoJSONFeature `json:"features"`
}

// WriteGeoJSON writes t to w as a GeoJSON feature collection. Each cell
// is a feature with its identifier, its population (when known) and
// its feature columns as properties.
func WriteGeoJSON(w io.Writer, t *sprawl.FeatureTable) error {
	o := geoJSON{
		Type:     "FeatureCollection",
		Features: make([]*geoJSONFeature, len(t.Cells)),
	}
	for i, c := range t.Cells {
		g, err := geojson.ToGeoJSON(c.Polygonal)
		if err != nil {
			return fmt.Errorf("sprawlutil: converting cell %s to GeoJSON: %w", c.ID, err)
		}
		props := make(map[string]float64, len(t.Columns)+1)
		if !math.IsNaN(c.Population) {
			props["population"] = c.Population
		}
		for _, col := range t.Columns {
			props[col] = t.Data[col][i]
		}
		o.Features[i] = &geoJSONFeature{
			Type:       "Feature",
			ID:         c.ID,
			Geometry:   g,
			Properties: props,
		}
	}
	return json.NewEncoder(w).Encode(o)
}

// WriteTraining writes ts to path in gob format.
func WriteTraining(ts *sprawl.TrainingSet, path string) error {
	return writeGob(ts, path)
}

func writeGob(v interface{}, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("sprawlutil: creating %s: %w", path, err)
	}
	if err := gob.NewEncoder(f).Encode(v); err != nil {
		f.Close()
		return fmt.Errorf("sprawlutil: writing %s: %w", path, err)
	}
	return f.Close()
}

// ReadTraining reads training data written by WriteTraining.
func ReadTraining(path string) (*sprawl.TrainingSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sprawlutil: opening training file: %w", err)
	}
	defer f.Close()
	ts := new(sprawl.TrainingSet)
	if err := gob.NewDecoder(f).Decode(ts); err != nil {
		return nil, fmt.Errorf("sprawlutil: reading training file: %w", err)
	}
	return ts, nil
}
