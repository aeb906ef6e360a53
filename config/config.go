// Package config decodes and validates the pose graph's tuning parameters:
// one Options struct covering every knob the pose graph, constraint
// builder and trimmer expose, loadable from a YAML/JSON file via viper
// the way a service's own attribute config is loaded elsewhere in this
// codebase.
package config

import (
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"go.viam.com/slam-backend/constraints"
	"go.viam.com/slam-backend/posegraph"
)

// Options is the full set of tuning parameters for a pose graph instance,
// decoded from a config file's "pose_graph" section.
type Options struct {
	OptimizeEveryN               int           `mapstructure:"optimize_every_n"`
	MatcherTranslationWeight     float64       `mapstructure:"matcher_translation_weight"`
	MatcherRotationWeight        float64       `mapstructure:"matcher_rotation_weight"`
	GlobalConstraintSearchAfterN time.Duration `mapstructure:"global_constraint_search_after_n"`
	GlobalSamplingRatio          float64       `mapstructure:"global_sampling_ratio"`
	MaxNumFinalIterations        int           `mapstructure:"max_num_final_iterations"`

	ConstraintBuilder ConstraintBuilderOptions `mapstructure:"constraint_builder"`
	Trimmer           TrimmerOptions           `mapstructure:"trimmer"`
}

// ConstraintBuilderOptions is the constraint builder's portion of Options.
type ConstraintBuilderOptions struct {
	SamplingRatio              float64 `mapstructure:"sampling_ratio"`
	MinScore                   float64 `mapstructure:"min_score"`
	GlobalLocalizationMinScore float64 `mapstructure:"global_localization_min_score"`
}

// TrimmerOptions is the overlapping-submaps trimmer's portion of Options.
type TrimmerOptions struct {
	FreshSubmapsCount    uint16  `mapstructure:"fresh_submaps_count"`
	MinCoveredCellsCount uint16  `mapstructure:"min_covered_cells_count"`
	CellSizeMeters       float64 `mapstructure:"cell_size_meters"`
}

// Default returns the baseline Options this package ships with: values
// chosen to be safe for a small, interactive test run (frequent
// optimization, generous sampling) rather than tuned for any particular
// production deployment.
func Default() Options {
	return Options{
		OptimizeEveryN:               10,
		MatcherTranslationWeight:     10,
		MatcherRotationWeight:        1,
		GlobalConstraintSearchAfterN: 10 * time.Second,
		GlobalSamplingRatio:          0.003,
		MaxNumFinalIterations:        200,
		ConstraintBuilder: ConstraintBuilderOptions{
			SamplingRatio:              0.3,
			MinScore:                   0.55,
			GlobalLocalizationMinScore: 0.6,
		},
		Trimmer: TrimmerOptions{
			FreshSubmapsCount:    3,
			MinCoveredCellsCount: 50,
			CellSizeMeters:       0.05,
		},
	}
}

// Load reads path (a YAML or JSON file) via viper, decodes its "pose_graph"
// section into Options seeded with Default, and validates the result.
func Load(path string) (Options, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Options{}, errors.Wrap(err, "reading pose graph config")
	}

	opts := Default()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "mapstructure",
		Result:  &opts,
	})
	if err != nil {
		return Options{}, errors.Wrap(err, "building config decoder")
	}
	section := v.Sub("pose_graph")
	if section != nil {
		if err := decoder.Decode(section.AllSettings()); err != nil {
			return Options{}, errors.Wrap(err, "decoding pose graph config")
		}
	}

	if err := Validate(opts); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Validate checks that every numeric tuning parameter is in a usable
// range, mirroring the "throw on invalid, don't silently clamp" discipline
// a service's own runtime config validation follows.
func Validate(opts Options) error {
	if opts.OptimizeEveryN < 0 {
		return errors.Errorf("optimize_every_n must be >= 0, got %d", opts.OptimizeEveryN)
	}
	if opts.MatcherTranslationWeight < 0 || opts.MatcherRotationWeight < 0 {
		return errors.New("matcher weights must be non-negative")
	}
	if opts.GlobalSamplingRatio < 0 || opts.GlobalSamplingRatio > 1 {
		return errors.Errorf("global_sampling_ratio must be in [0, 1], got %v", opts.GlobalSamplingRatio)
	}
	if opts.ConstraintBuilder.SamplingRatio < 0 || opts.ConstraintBuilder.SamplingRatio > 1 {
		return errors.Errorf("constraint_builder.sampling_ratio must be in [0, 1], got %v", opts.ConstraintBuilder.SamplingRatio)
	}
	if opts.ConstraintBuilder.MinScore < 0 || opts.ConstraintBuilder.MinScore > 1 {
		return errors.Errorf("constraint_builder.min_score must be in [0, 1], got %v", opts.ConstraintBuilder.MinScore)
	}
	if opts.ConstraintBuilder.GlobalLocalizationMinScore < 0 || opts.ConstraintBuilder.GlobalLocalizationMinScore > 1 {
		return errors.New("constraint_builder.global_localization_min_score must be in [0, 1]")
	}
	if opts.Trimmer.CellSizeMeters <= 0 {
		return errors.Errorf("trimmer.cell_size_meters must be > 0, got %v", opts.Trimmer.CellSizeMeters)
	}
	if opts.MaxNumFinalIterations < 0 {
		return errors.New("max_num_final_iterations must be >= 0")
	}
	return nil
}

// PoseGraphOptions projects Options down to the posegraph.Options subset.
func (o Options) PoseGraphOptions() posegraph.Options {
	return posegraph.Options{
		OptimizeEveryN:               o.OptimizeEveryN,
		MatcherTranslationWeight:     o.MatcherTranslationWeight,
		MatcherRotationWeight:        o.MatcherRotationWeight,
		GlobalConstraintSearchAfterN: o.GlobalConstraintSearchAfterN,
		GlobalSamplingRatio:          o.GlobalSamplingRatio,
		MaxNumFinalIterations:        o.MaxNumFinalIterations,
	}
}

// BuilderOptions projects Options down to the constraints.Options subset.
func (o Options) BuilderOptions() constraints.Options {
	return constraints.Options{
		SamplingRatio:              o.ConstraintBuilder.SamplingRatio,
		MinScore:                   o.ConstraintBuilder.MinScore,
		GlobalLocalizationMinScore: o.ConstraintBuilder.GlobalLocalizationMinScore,
		MatcherTranslationWeight:   o.MatcherTranslationWeight,
		MatcherRotationWeight:      o.MatcherRotationWeight,
	}
}
