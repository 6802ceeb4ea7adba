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
	"io"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/carto"
	"github.com/spatialmodel/sprawl"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// DrawMap renders the named column of t as a PNG choropleth map that is
// width pixels wide and writes it to w. If legend is not nil, a PNG color
// legend is written to it.
func DrawMap(w, legend io.Writer, t *sprawl.FeatureTable, column string, width int) error {
	vals := t.Column(column)
	if vals == nil {
		return fmt.Errorf("sprawlutil: no feature column %q", column)
	}
	if width <= 0 {
		return fmt.Errorf("sprawlutil: invalid map width %d", width)
	}
	b := geom.NewBounds()
	for _, c := range t.Cells {
		if c.Polygonal != nil {
			b.Extend(c.Bounds())
		}
	}
	if !(b.Max.X > b.Min.X && b.Max.Y > b.Min.Y) {
		return fmt.Errorf("sprawlutil: the grid has no extent to map")
	}

	cmap := carto.NewColorMap(carto.LinCutoff)
	cmap.AddArray(vals)
	cmap.Set()

	m := carto.NewRasterMap(b.Max.Y, b.Min.Y, b.Max.X, b.Min.X, width)
	lineStyle := draw.LineStyle{Width: 0.1 * vg.Millimeter}
	var glyph draw.GlyphStyle
	for i, c := range t.Cells {
		color := cmap.GetColor(vals[i])
		lineStyle.Color = color
		if err := m.DrawVector(c.Polygonal, color, lineStyle, glyph); err != nil {
			return fmt.Errorf("sprawlutil: drawing cell %s: %w", c.ID, err)
		}
	}
	if err := m.WriteTo(w); err != nil {
		return fmt.Errorf("sprawlutil: writing map: %w", err)
	}
	if legend == nil {
		return nil
	}

	const LegendWidth = 6.2 * vg.Inch
	const LegendHeight = LegendWidth * 0.1067
	cmap.LegendWidth = LegendWidth
	cmap.LegendHeight = LegendHeight
	cmap.LineWidth = 0.5
	cmap.FontSize = 8

	c := vgimg.New(LegendWidth, LegendHeight)
	dc := draw.New(c)
	if err := cmap.Legend(&dc, column); err != nil {
		return fmt.Errorf("sprawlutil: drawing legend: %w", err)
	}
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(legend); err != nil {
		return fmt.Errorf("sprawlutil: writing legend: %w", err)
	}
	return nil
}
