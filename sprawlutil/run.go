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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/sprawl"
	"github.com/spatialmodel/sprawl/dispersion"
	"github.com/spatialmodel/sprawl/landusemix"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// checkOutputFile makes sure that the output file is specified and its
// directory exists, and expands any environment variables.
func checkOutputFile(f string) (string, error) {
	if f == "" {
		return "", fmt.Errorf("sprawlutil: an output file needs to be specified")
	}
	f = os.ExpandEnv(f)
	if _, err := os.Stat(filepath.Dir(f)); err != nil {
		return f, fmt.Errorf("sprawlutil: the output directory doesn't exist: %v", err)
	}
	return f, nil
}

// LandUseMixConfig returns the land use mix settings in cfg.
func LandUseMixConfig(cfg *viper.Viper) landusemix.Config {
	return landusemix.Config{
		WalkableDistance: cfg.GetFloat64("LandUseMix.WalkableDistance"),
		ActivityTypes:    cfg.GetBool("LandUseMix.ActivityTypes"),
		Weighted:         cfg.GetBool("LandUseMix.Weighted"),
		POIWeight:        cfg.GetFloat64("LandUseMix.POIWeight"),
		LogWeighted:      cfg.GetBool("LandUseMix.LogWeighted"),
	}
}

// DispersionConfig returns the dispersion settings in cfg.
func DispersionConfig(cfg *viper.Viper) (dispersion.Config, error) {
	k, err := cast.ToIntE(cfg.Get("Dispersion.KNearest"))
	if err != nil {
		return dispersion.Config{}, fmt.Errorf("sprawlutil: reading 'Dispersion.KNearest': %v", err)
	}
	return dispersion.Config{
		RadiusSearch: cfg.GetFloat64("Dispersion.RadiusSearch"),
		UseMedian:    cfg.GetBool("Dispersion.UseMedian"),
		KNearest:     k,
	}, nil
}

// BlockGrid returns the training block layout in cfg.
func BlockGrid(cfg *viper.Viper) (sprawl.BlockGrid, error) {
	w, err := cast.ToIntE(cfg.Get("BlockWidth"))
	if err != nil {
		return sprawl.BlockGrid{}, fmt.Errorf("sprawlutil: reading 'BlockWidth': %v", err)
	}
	return sprawl.BlockGrid{CellSize: cfg.GetFloat64("CellSize"), Width: w}, nil
}

// Aggregator returns an aggregator with the settings in cfg.
func Aggregator(cfg *viper.Viper) (*sprawl.Aggregator, error) {
	dcfg, err := DispersionConfig(cfg)
	if err != nil {
		return nil, err
	}
	a := sprawl.NewAggregator(dataSource(cfg),
		landusemix.New(LandUseMixConfig(cfg)), dispersion.New(dcfg))
	a.CellSize = cfg.GetFloat64("CellSize")
	a.MaxDispersion = cfg.GetFloat64("MaxDispersion")
	return a, nil
}

func dataSource(cfg *viper.Viper) string {
	return strings.ToLower(os.ExpandEnv(cfg.GetString("DataSource")))
}

// store opens the result store at the CacheDir location in cfg.
func store(ctx context.Context, cfg *viper.Viper) (*sprawl.Store, error) {
	return sprawl.NewStore(ctx, os.ExpandEnv(cfg.GetString("CacheDir")), 1)
}

// Features returns the urban features of the city described by cfg,
// reading them from the store at CacheDir if they have already been
// calculated.
func Features(ctx context.Context, cfg *viper.Viper) (*sprawl.FeatureTable, error) {
	s, err := store(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return features(ctx, cfg, s)
}

func features(ctx context.Context, cfg *viper.Viper, s *sprawl.Store) (*sprawl.FeatureTable, error) {
	ds := dataSource(cfg)
	switch ds {
	case sprawl.INSEE, sprawl.GPW:
	default:
		return nil, fmt.Errorf("sprawlutil: %w: %q", sprawl.ErrDataSource, ds)
	}
	a, err := Aggregator(cfg)
	if err != nil {
		return nil, err
	}
	city := os.ExpandEnv(cfg.GetString("CityRef"))
	return s.Features(ctx, city, ds, func(ctx context.Context) (*sprawl.FeatureTable, error) {
		cells, buildings, pois, err := loadInputs(cfg)
		if err != nil {
			return nil, err
		}
		return a.Aggregate(cells, buildings, pois)
	})
}

// loadInputs reads the population grid, buildings and points of interest
// named in cfg.
func loadInputs(cfg *viper.Viper) ([]*sprawl.Cell, []*sprawl.Building, []*sprawl.POI, error) {
	files := make(map[string]string)
	for _, name := range []string{"GridFile", "BuildingsFile", "POIsFile"} {
		f := os.ExpandEnv(cfg.GetString(name))
		if f == "" {
			return nil, nil, nil, fmt.Errorf("sprawlutil: %w: %s is not specified", sprawl.ErrMissingInput, name)
		}
		files[name] = f
	}
	cells, err := LoadGrid(files["GridFile"], cfg.GetString("GridIDField"), cfg.GetString("GridPopField"))
	if err != nil {
		return nil, nil, nil, err
	}
	buildings, err := LoadBuildings(files["BuildingsFile"])
	if err != nil {
		return nil, nil, nil, err
	}
	pois, err := LoadPOIs(files["POIsFile"])
	if err != nil {
		return nil, nil, nil, err
	}
	logrus.WithFields(logrus.Fields{
		"cells":     len(cells),
		"buildings": len(buildings),
		"pois":      len(pois),
	}).Info("loaded inputs")
	return cells, buildings, pois, nil
}

// Training returns the training data of the city described by cfg,
// reading the data and the underlying features from the store at
// CacheDir if they have already been calculated.
func Training(ctx context.Context, cfg *viper.Viper) (*sprawl.TrainingSet, error) {
	g, err := BlockGrid(cfg)
	if err != nil {
		return nil, err
	}
	s, err := store(ctx, cfg)
	if err != nil {
		return nil, err
	}
	city := os.ExpandEnv(cfg.GetString("CityRef"))
	return s.Training(ctx, city, func(ctx context.Context) (*sprawl.TrainingSet, error) {
		t, err := features(ctx, cfg, s)
		if err != nil {
			return nil, err
		}
		return sprawl.NewTrainingSet(t, g, cfg.GetFloat64("TrainingStep"))
	})
}

// Inference returns the features of every block of the city described
// by cfg.
func Inference(ctx context.Context, cfg *viper.Viper) (*sprawl.InferenceSet, error) {
	g, err := BlockGrid(cfg)
	if err != nil {
		return nil, err
	}
	t, err := Features(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return sprawl.NewInferenceSet(t, g, cfg.GetFloat64("TrainingStep"))
}

// WriteMap draws the named column of t to a PNG image at path and
// its legend to path with "_legend" appended to the file name.
func WriteMap(t *sprawl.FeatureTable, column string, width int, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("sprawlutil: creating map file: %w", err)
	}
	defer f.Close()
	ext := filepath.Ext(path)
	lf, err := os.Create(strings.TrimSuffix(path, ext) + "_legend" + ext)
	if err != nil {
		return fmt.Errorf("sprawlutil: creating legend file: %w", err)
	}
	defer lf.Close()
	if err := DrawMap(f, lf, t, column, width); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return lf.Close()
}
