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

// Package sprawlutil contains the command-line interface for calculating
// urban sprawl features from population grids, building footprints and
// points of interest.
package sprawlutil

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/sprawl"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to sprawl.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogLevel",
			usage: `
              LogLevel specifies the minimum severity of the log messages
              to print: one of trace, debug, info, warn, error, fatal or panic.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "GridFile",
			usage: `
              GridFile is the path to the population grid shapefile. Each
              cell is a square polygon with an identifier field and a
              population field.`,
			shorthand:  "g",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{featuresCmd.Flags(), trainingCmd.Flags(), mapCmd.Flags()},
		},
		{
			name: "GridIDField",
			usage: `
              GridIDField is the name of the grid cell identifier field.
              Identifiers in the format <prefix>N<northing>E<easting> give the
              position of the south-west corner of each cell.`,
			defaultVal: "id",
			flagsets:   []*pflag.FlagSet{featuresCmd.Flags(), trainingCmd.Flags(), mapCmd.Flags()},
		},
		{
			name: "GridPopField",
			usage: `
              GridPopField is the name of the grid cell population field.`,
			defaultVal: "pop",
			flagsets:   []*pflag.FlagSet{featuresCmd.Flags(), trainingCmd.Flags(), mapCmd.Flags()},
		},
		{
			name: "BuildingsFile",
			usage: `
              BuildingsFile is the path to the building footprint shapefile.
              Buildings have a class field (residential, activity, mixed or
              other), and optionally a levels field, an act_cat field listing
              activity categories separated by semicolons, a cont_poi field
              listing the indices of the points of interest they contain,
              and m2_res, m2_act and m2_<category> floor area fields.`,
			shorthand:  "b",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{featuresCmd.Flags(), trainingCmd.Flags(), mapCmd.Flags()},
		},
		{
			name: "POIsFile",
			usage: `
              POIsFile is the path to the point of interest shapefile.
              Points have a class field and optionally an act_cat field.`,
			shorthand:  "p",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{featuresCmd.Flags(), trainingCmd.Flags(), mapCmd.Flags()},
		},
		{
			name: "DataSource",
			usage: `
              DataSource is the population data source: insee, whose grids
              omit empty cells, which are then reconstructed, or gpw.`,
			defaultVal: sprawl.INSEE,
			flagsets:   []*pflag.FlagSet{featuresCmd.Flags(), trainingCmd.Flags(), mapCmd.Flags()},
		},
		{
			name: "CityRef",
			usage: `
              CityRef is the name of the city, which identifies its stored
              results.`,
			shorthand:  "c",
			defaultVal: "city",
			flagsets:   []*pflag.FlagSet{featuresCmd.Flags(), trainingCmd.Flags(), mapCmd.Flags()},
		},
		{
			name: "CacheDir",
			usage: `
              CacheDir is the location where calculated feature tables and
              training data are stored for reuse. It can be a local directory,
              an http address to read from, or a gs:// Google Cloud Storage
              location. If it is empty, results are not stored.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{featuresCmd.Flags(), trainingCmd.Flags(), mapCmd.Flags()},
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile is the path where the feature table is written: as
              GeoJSON if it ends in .geojson or .json and as a shapefile
              otherwise.`,
			shorthand:  "o",
			defaultVal: "sprawl_features.shp",
			flagsets:   []*pflag.FlagSet{featuresCmd.Flags()},
		},
		{
			name: "CellSize",
			usage: `
              CellSize is the edge length of the population grid cells [m].`,
			defaultVal: 200.0,
			flagsets:   []*pflag.FlagSet{featuresCmd.Flags(), trainingCmd.Flags(), mapCmd.Flags()},
		},
		{
			name: "MaxDispersion",
			usage: `
              MaxDispersion is the upper limit of the dispersion index.`,
			defaultVal: 15.0,
			flagsets:   []*pflag.FlagSet{featuresCmd.Flags(), trainingCmd.Flags(), mapCmd.Flags()},
		},
		{
			name: "LandUseMix.WalkableDistance",
			usage: `
              LandUseMix.WalkableDistance is the bandwidth of the land use
              density estimates [m].`,
			defaultVal: 600.0,
			flagsets:   []*pflag.FlagSet{featuresCmd.Flags(), trainingCmd.Flags(), mapCmd.Flags()},
		},
		{
			name: "LandUseMix.ActivityTypes",
			usage: `
              LandUseMix.ActivityTypes specifies whether to estimate a density
              for each activity category.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{featuresCmd.Flags(), trainingCmd.Flags(), mapCmd.Flags()},
		},
		{
			name: "LandUseMix.Weighted",
			usage: `
              LandUseMix.Weighted specifies whether to weight buildings by
              their floor area in the land use density estimates.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{featuresCmd.Flags(), trainingCmd.Flags(), mapCmd.Flags()},
		},
		{
			name: "LandUseMix.POIWeight",
			usage: `
              LandUseMix.POIWeight is the floor area equivalent of a point
              of interest [m²].`,
			defaultVal: 9.0,
			flagsets:   []*pflag.FlagSet{featuresCmd.Flags(), trainingCmd.Flags(), mapCmd.Flags()},
		},
		{
			name: "LandUseMix.LogWeighted",
			usage: `
              LandUseMix.LogWeighted specifies whether to use the logarithm
              of the floor area weights.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{featuresCmd.Flags(), trainingCmd.Flags(), mapCmd.Flags()},
		},
		{
			name: "Dispersion.RadiusSearch",
			usage: `
              Dispersion.RadiusSearch is the distance around each cell within
              which building dispersion is summarized [m].`,
			defaultVal: 750.0,
			flagsets:   []*pflag.FlagSet{featuresCmd.Flags(), trainingCmd.Flags(), mapCmd.Flags()},
		},
		{
			name: "Dispersion.UseMedian",
			usage: `
              Dispersion.UseMedian specifies whether to use the median building
              dispersion within Dispersion.RadiusSearch rather than the mean
              over the Dispersion.KNearest nearest buildings.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{featuresCmd.Flags(), trainingCmd.Flags(), mapCmd.Flags()},
		},
		{
			name: "Dispersion.KNearest",
			usage: `
              Dispersion.KNearest is the number of nearest buildings averaged
              when Dispersion.UseMedian is false.`,
			defaultVal: 50,
			flagsets:   []*pflag.FlagSet{featuresCmd.Flags(), trainingCmd.Flags(), mapCmd.Flags()},
		},
		{
			name: "BlockWidth",
			usage: `
              BlockWidth is the number of cells along each side of the blocks
              that training data are grouped into.`,
			defaultVal: 5,
			flagsets:   []*pflag.FlagSet{trainingCmd.Flags()},
		},
		{
			name: "TrainingStep",
			usage: `
              TrainingStep is the distance between the centers of consecutive
              training blocks [m]. Steps smaller than the block width give
              overlapping blocks.`,
			defaultVal: 200.0,
			flagsets:   []*pflag.FlagSet{trainingCmd.Flags()},
		},
		{
			name: "TrainingFile",
			usage: `
              TrainingFile is the path where the training data are written
              in gob format.`,
			defaultVal: "sprawl_training.gob",
			flagsets:   []*pflag.FlagSet{trainingCmd.Flags()},
		},
		{
			name: "InferenceFile",
			usage: `
              InferenceFile, if not empty, is the path where the features of
              every block, regardless of population, are written in gob format.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{trainingCmd.Flags()},
		},
		{
			name: "Map.Column",
			usage: `
              Map.Column is the feature to map.`,
			defaultVal: "landusemix",
			flagsets:   []*pflag.FlagSet{mapCmd.Flags()},
		},
		{
			name: "Map.Width",
			usage: `
              Map.Width is the width of the map image in pixels.`,
			defaultVal: 800,
			flagsets:   []*pflag.FlagSet{mapCmd.Flags()},
		},
		{
			name: "Map.File",
			usage: `
              Map.File is the path of the PNG map. Its legend is written
              alongside it, with "_legend" appended to the file name.`,
			defaultVal: "sprawl_map.png",
			flagsets:   []*pflag.FlagSet{mapCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("SPRAWL")
	Cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(featuresCmd)
	Root.AddCommand(trainingCmd)
	Root.AddCommand(mapCmd)
}

// setConfig finds and reads in the configuration file, if there is one,
// and sets the log level.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(os.ExpandEnv(cfgpath))
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("sprawlutil: problem reading configuration file: %v", err)
		}
	}
	level, err := logrus.ParseLevel(Cfg.GetString("LogLevel"))
	if err != nil {
		return fmt.Errorf("sprawlutil: %v", err)
	}
	logrus.SetLevel(level)
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "sprawl",
	Short: "Urban sprawl indices.",
	Long: `sprawl calculates indices of urban sprawl for the cells of a population
grid from building footprints and points of interest, and prepares them
for training models that distribute population within a city.
Use the subcommands specified below to access the functionality.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'SPRAWL_var' where 'var' is the
name of the variable to be set, with dots replaced by underscores.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of sprawl.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("sprawl v%s\n", sprawl.Version)
	},
	DisableAutoGenTag: true,
}

// featuresCmd calculates and writes the urban features of a city.
var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Calculate urban features",
	Long: `features calculates the urban features of each cell of a population
grid from the buildings and points of interest of the city and writes them
to OutputFile.

	Features:
	m2_total_residential, m2_total_activity: Floor area by land use [m²]
	m2_footprint_residential, m2_footprint_activity, m2_footprint_mixed: Footprint area by class [m²]
	num_built_residential, num_built_activity, num_built_mixed: Buildings by class
	num_levels, num_buildings: Building levels and number of buildings
	built_up_relation: Share of the cell covered by buildings
	num_activity_pois: Activity points of interest
	residential_pdf, activity_pdf, <category>_pdf: Land use densities
	landusemix, landuse_intensity: Land use mix and intensity
	dispersion: Building dispersion [m]`,
	RunE: func(cmd *cobra.Command, args []string) error {
		outputFile, err := checkOutputFile(Cfg.GetString("OutputFile"))
		if err != nil {
			return err
		}
		t, err := Features(context.Background(), Cfg)
		if err != nil {
			return err
		}
		if err := WriteFeatures(t, outputFile); err != nil {
			return err
		}
		return copyProjection(os.ExpandEnv(Cfg.GetString("GridFile")), outputFile)
	},
	DisableAutoGenTag: true,
}

// trainingCmd creates training data for population distribution models.
var trainingCmd = &cobra.Command{
	Use:   "training",
	Short: "Create training data",
	Long: `training groups the cells of the population grid into square blocks
of BlockWidth by BlockWidth cells and writes, for each populated block, the
normalized features of its cells and the share of the block population in
each cell to TrainingFile.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		trainingFile, err := checkOutputFile(Cfg.GetString("TrainingFile"))
		if err != nil {
			return err
		}
		ctx := context.Background()
		ts, err := Training(ctx, Cfg)
		if err != nil {
			return err
		}
		if err := WriteTraining(ts, trainingFile); err != nil {
			return err
		}
		if Cfg.GetString("InferenceFile") == "" {
			return nil
		}
		inferenceFile, err := checkOutputFile(Cfg.GetString("InferenceFile"))
		if err != nil {
			return err
		}
		is, err := Inference(ctx, Cfg)
		if err != nil {
			return err
		}
		return writeGob(is, inferenceFile)
	},
	DisableAutoGenTag: true,
}

// mapCmd draws a map of one urban feature.
var mapCmd = &cobra.Command{
	Use:   "map",
	Short: "Map an urban feature",
	Long: `map draws the urban feature named by Map.Column for each cell of the
population grid and writes it as a PNG image to Map.File.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mapFile, err := checkOutputFile(Cfg.GetString("Map.File"))
		if err != nil {
			return err
		}
		t, err := Features(context.Background(), Cfg)
		if err != nil {
			return err
		}
		return WriteMap(t, Cfg.GetString("Map.Column"), Cfg.GetInt("Map.Width"), mapFile)
	},
	DisableAutoGenTag: true,
}
