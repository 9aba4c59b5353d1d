// SPDX-License-Identifier: AGPL-3.0-only

package queryrunner

import (
	"flag"

	"github.com/grafana/dskit/multierror"
	"github.com/pkg/errors"
	"github.com/prometheus/common/model"
)

// Config holds the pipeline's tunables.
type Config struct {
	// DefaultMaxDataPoints is the point budget used when a run supplies
	// neither a budget nor a panel width.
	DefaultMaxDataPoints int64 `yaml:"default_max_data_points"`

	// DefaultMinInterval floors the computed interval for every request that
	// does not carry its own minimum. Zero disables the floor.
	DefaultMinInterval model.Duration `yaml:"default_min_interval"`
}

func (c *Config) RegisterFlags(f *flag.FlagSet) {
	f.Int64Var(&c.DefaultMaxDataPoints, "query-runner.default-max-data-points", 1000, "Point budget used when a query run specifies neither max data points nor a panel width.")
	f.Var(&c.DefaultMinInterval, "query-runner.default-min-interval", "Minimum query interval applied to requests without their own minimum. 0 disables the floor.")
}

func (c *Config) Validate() error {
	errs := multierror.New()
	if c.DefaultMaxDataPoints <= 0 {
		errs.Add(errors.New("default max data points must be positive"))
	}
	if c.DefaultMinInterval < 0 {
		errs.Add(errors.New("default min interval must not be negative"))
	}
	return errs.Err()
}
