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
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// scaledColumnPatterns select, by substring, the feature columns that
// are divided by their maximum before being used for training.
var scaledColumnPatterns = []string{"num_", "m2_", "dispersion", "accessibility"}

func isScaled(name string) bool {
	for _, p := range scaledColumnPatterns {
		if strings.Contains(name, p) {
			return true
		}
	}
	return false
}

// Normalized returns a copy of the table data in which count, area and
// dispersion columns are divided by their maximum value. Columns
// whose maximum is not positive are copied unchanged.
func (t *FeatureTable) Normalized() map[string][]float64 {
	o := make(map[string][]float64, len(t.Columns))
	for _, c := range t.Columns {
		v := append([]float64{}, t.Data[c]...)
		if isScaled(c) && len(v) > 0 {
			if max := floats.Max(v); max > 0 {
				floats.Scale(1/max, v)
			}
		}
		o[c] = v
	}
	return o
}

// TrainingSet holds training data for population downscaling: for each
// block, the features of its cells (X) and the share of the block
// population in each cell (Y).
type TrainingSet struct {
	// Y has one row per block and one population share per slot.
	Y [][]float64

	// X has one row per block, one row per slot and one value per column.
	X [][][]float64

	// Columns holds the feature names, in order.
	Columns []string
}

// blockFeatures returns the normalized features of each slot of b.
// Slots without a cell get zero values.
func blockFeatures(b *Block, data map[string][]float64, columns []string) [][]float64 {
	o := make([][]float64, len(b.Cells))
	for s, i := range b.Cells {
		o[s] = make([]float64, len(columns))
		if i == NoCell {
			continue
		}
		for j, c := range columns {
			o[s][j] = data[c][i]
		}
	}
	return o
}

// conservativeBlocks checks t and groups its cells into
// conservative blocks.
func conservativeBlocks(t *FeatureTable, g BlockGrid, step float64) ([]*Block, error) {
	if err := t.checkColumns(); err != nil {
		return nil, err
	}
	if g.Width < 1 || g.CellSize <= 0 {
		return nil, fmt.Errorf("sprawl: invalid block grid %+v", g)
	}
	if step <= 0 {
		return nil, fmt.Errorf("sprawl: invalid block step %g", step)
	}
	return g.Aggregate(t.Cells, step, true), nil
}

// NewTrainingSet creates training data from the blocks of cells in t whose
// centers are step apart. Blocks without population are skipped.
func NewTrainingSet(t *FeatureTable, g BlockGrid, step float64) (*TrainingSet, error) {
	blocks, err := conservativeBlocks(t, g, step)
	if err != nil {
		return nil, err
	}
	data := t.Normalized()
	o := &TrainingSet{Columns: append([]string{}, t.Columns...)}
	for _, b := range blocks {
		y := make([]float64, len(b.Cells))
		for s, i := range b.Cells {
			if i == NoCell {
				continue
			}
			if p := t.Cells[i].Population; !math.IsNaN(p) {
				y[s] = p
			}
		}
		total := floats.Sum(y)
		if total == 0 {
			continue
		}
		floats.Scale(1/total, y)
		o.Y = append(o.Y, y)
		o.X = append(o.X, blockFeatures(b, data, o.Columns))
	}
	return o, nil
}

// InferenceSet holds the features of every block of a city, for
// estimating the distribution of population within each block.
type InferenceSet struct {
	X       [][][]float64
	Blocks  []*Block
	Columns []string
}

// NewInferenceSet creates features for all of the blocks of cells in t
// whose centers are step apart.
func NewInferenceSet(t *FeatureTable, g BlockGrid, step float64) (*InferenceSet, error) {
	blocks, err := conservativeBlocks(t, g, step)
	if err != nil {
		return nil, err
	}
	data := t.Normalized()
	o := &InferenceSet{
		Blocks:  blocks,
		Columns: append([]string{}, t.Columns...),
		X:       make([][][]float64, len(blocks)),
	}
	for k, b := range blocks {
		o.X[k] = blockFeatures(b, data, o.Columns)
	}
	return o, nil
}
