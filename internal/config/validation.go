package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ValidationError names one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors collects every ValidationError found by Validate.
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("config validation failed with %d error(s):\n", len(ve)))
	for i, e := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, e.Field, e.Message))
	}
	return sb.String()
}

// Validate checks every field spec §6 constrains and returns all violations
// at once rather than failing on the first.
func (c *Config) Validate() error {
	var errs ValidationErrors

	errs = append(errs, c.validatePersona()...)
	errs = append(errs, c.validateRisk()...)
	errs = append(errs, c.validateLearning()...)
	errs = append(errs, c.validateDatabase()...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (c *Config) validatePersona() ValidationErrors {
	var errs ValidationErrors
	switch c.Trading.PersonaMode {
	case "AGGRESSIVE", "TRADING", "LONG_TERM", "DIVIDEND":
	default:
		errs = append(errs, ValidationError{"trading.persona_mode",
			fmt.Sprintf("must be one of AGGRESSIVE|TRADING|LONG_TERM|DIVIDEND, got %q", c.Trading.PersonaMode)})
	}
	return errs
}

func (c *Config) validateRisk() ValidationErrors {
	var errs ValidationErrors
	zero := decimal.Zero
	one := decimal.NewFromInt(1)

	if c.Risk.MaxPositionPct.LessThanOrEqual(zero) || c.Risk.MaxPositionPct.GreaterThan(one) {
		errs = append(errs, ValidationError{"risk.max_position_pct", "must be in (0, 1]"})
	}
	if c.Risk.PortfolioRiskCap.LessThanOrEqual(zero) || c.Risk.PortfolioRiskCap.GreaterThan(one) {
		errs = append(errs, ValidationError{"risk.portfolio_risk_cap", "must be in (0, 1]"})
	}
	if c.Risk.PositionCountCap <= 0 {
		errs = append(errs, ValidationError{"risk.position_count_cap", "must be positive"})
	}
	if c.Risk.MinSignalConfidence.LessThan(zero) || c.Risk.MinSignalConfidence.GreaterThan(one) {
		errs = append(errs, ValidationError{"risk.min_signal_confidence", "must be in [0, 1]"})
	}
	if c.Risk.DedupWindowMin <= 0 {
		errs = append(errs, ValidationError{"risk.dedup_window_min", "must be positive"})
	}
	return errs
}

func (c *Config) validateLearning() ValidationErrors {
	var errs ValidationErrors
	if c.Learning.NIAWindowDays <= 0 {
		errs = append(errs, ValidationError{"learning.nia_window_days", "must be positive"})
	}
	if c.Learning.NIAMinSample <= 0 {
		errs = append(errs, ValidationError{"learning.nia_min_sample", "must be positive"})
	}
	if _, err := decimal.NewFromString(c.Learning.NIADailyDeltaCap); err != nil {
		errs = append(errs, ValidationError{"learning.nia_daily_delta_cap", "must be a decimal string"})
	}
	for _, h := range c.Learning.HorizonOffsetsRaw {
		switch h {
		case "1d", "1w", "1m":
		default:
			errs = append(errs, ValidationError{"learning.horizon_offsets", fmt.Sprintf("unknown horizon %q", h)})
		}
	}
	return errs
}

func (c *Config) validateDatabase() ValidationErrors {
	var errs ValidationErrors
	if c.Database.Host == "" {
		errs = append(errs, ValidationError{"database.host", "required"})
	}
	if c.Database.Database == "" {
		errs = append(errs, ValidationError{"database.database", "required"})
	}
	return errs
}
