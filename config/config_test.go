package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"go.viam.com/slam-backend/config"
)

func TestDefaultPassesValidation(t *testing.T) {
	test.That(t, config.Validate(config.Default()), test.ShouldBeNil)
}

func TestValidateRejectsOutOfRangeRatio(t *testing.T) {
	opts := config.Default()
	opts.GlobalSamplingRatio = 1.5
	test.That(t, config.Validate(opts), test.ShouldNotBeNil)
}

func TestValidateRejectsNonPositiveCellSize(t *testing.T) {
	opts := config.Default()
	opts.Trimmer.CellSizeMeters = 0
	test.That(t, config.Validate(opts), test.ShouldNotBeNil)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
pose_graph:
  optimize_every_n: 5
  global_sampling_ratio: 0.1
  trimmer:
    fresh_submaps_count: 7
`
	test.That(t, os.WriteFile(path, []byte(contents), 0o600), test.ShouldBeNil)

	opts, err := config.Load(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, opts.OptimizeEveryN, test.ShouldEqual, 5)
	test.That(t, opts.GlobalSamplingRatio, test.ShouldEqual, 0.1)
	test.That(t, opts.Trimmer.FreshSubmapsCount, test.ShouldEqual, uint16(7))
	// Untouched fields keep their defaults.
	test.That(t, opts.MatcherTranslationWeight, test.ShouldEqual, config.Default().MatcherTranslationWeight)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	test.That(t, err, test.ShouldNotBeNil)
}
