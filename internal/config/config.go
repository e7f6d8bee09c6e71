// Package config defines the service configuration and loads it from a YAML
// file, FIELDLOAN_* environment variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/mcclellann/fieldloan/pkg/amortization"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. FIELDLOAN_DATABASE_DSN.
const EnvPrefix = "FIELDLOAN"

// Configuration holds all configuration for fieldloan.
type Configuration struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Portfolio PortfolioConfig `mapstructure:"portfolio"`
	Loans     LoansConfig     `mapstructure:"loans"`
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite3, postgres, memory
	DSN    string `mapstructure:"dsn"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `mapstructure:"level"`      // debug, info, warn, error
	Format     string `mapstructure:"format"`     // json, console
	OutputFile string `mapstructure:"outputFile"` // optional file output
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// ScheduleConfig holds the cron specs of the daily jobs. An empty spec
// disables that job.
type ScheduleConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Timezone string `mapstructure:"timezone"`
	Tasks    string `mapstructure:"tasks"`
	Arrears  string `mapstructure:"arrears"`
	Snapshot string `mapstructure:"snapshot"`
	Health   string `mapstructure:"health"`
}

type PortfolioConfig struct {
	GoalFraction string `mapstructure:"goalFraction"`
	IncludePaid  bool   `mapstructure:"includePaid"`
}

type LoansConfig struct {
	DailyPenaltyRate string `mapstructure:"dailyPenaltyRate"` // percent per day
	InterestMethod   string `mapstructure:"interestMethod"`   // simple, amortized
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "fieldloan.db")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputFile", "")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("schedule.enabled", true)
	v.SetDefault("schedule.timezone", "UTC")
	v.SetDefault("schedule.tasks", "0 6 * * 1-6")
	v.SetDefault("schedule.arrears", "30 23 * * *")
	v.SetDefault("schedule.snapshot", "59 23 * * *")
	v.SetDefault("schedule.health", "0 * * * *")
	v.SetDefault("portfolio.goalFraction", "0.05")
	v.SetDefault("portfolio.includePaid", false)
	v.SetDefault("loans.dailyPenaltyRate", "2.00")
	v.SetDefault("loans.interestMethod", string(amortization.MethodSimple))
}

// LoadConfiguration loads the YAML configuration at configPath. With an
// empty path only defaults and environment overrides apply. A .env file in
// the working directory is loaded first when present.
func LoadConfiguration(configPath string) (*Configuration, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file, %s", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file, %s", err)
		}
	}

	var configuration Configuration
	if err := v.Unmarshal(&configuration); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %s", err)
	}
	if err := configuration.Validate(); err != nil {
		return nil, err
	}
	return &configuration, nil
}

// Validate checks every value that is parsed later.
func (c *Configuration) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "postgres", "memory":
	default:
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}
	if c.Database.Driver != "memory" && c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required for driver %s", c.Database.Driver)
	}

	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("invalid schedule timezone %q: %w", c.Schedule.Timezone, err)
	}
	for name, spec := range map[string]string{
		"tasks":    c.Schedule.Tasks,
		"arrears":  c.Schedule.Arrears,
		"snapshot": c.Schedule.Snapshot,
		"health":   c.Schedule.Health,
	} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("invalid %s schedule %q: %w", name, spec, err)
		}
	}

	fraction, err := decimal.NewFromString(c.Portfolio.GoalFraction)
	if err != nil || !fraction.IsPositive() || fraction.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("portfolio goal fraction must be in (0, 1], got %q", c.Portfolio.GoalFraction)
	}
	rate, err := decimal.NewFromString(c.Loans.DailyPenaltyRate)
	if err != nil || rate.IsNegative() {
		return fmt.Errorf("daily penalty rate must be a non-negative number, got %q", c.Loans.DailyPenaltyRate)
	}
	if _, err := amortization.ParseMethod(c.Loans.InterestMethod); err != nil {
		return err
	}
	return nil
}

// Location returns the time zone the schedule runs in.
func (s ScheduleConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Fraction returns the goal fraction, or 0.05 when unparsable.
func (p PortfolioConfig) Fraction() decimal.Decimal {
	f, err := decimal.NewFromString(p.GoalFraction)
	if err != nil {
		return decimal.RequireFromString("0.05")
	}
	return f
}

// PenaltyRate returns the default daily penalty rate, or 2.00 when unparsable.
func (l LoansConfig) PenaltyRate() decimal.Decimal {
	r, err := decimal.NewFromString(l.DailyPenaltyRate)
	if err != nil {
		return decimal.RequireFromString("2.00")
	}
	return r
}

// Method returns the interest method, simple when unparsable.
func (l LoansConfig) Method() amortization.Method {
	m, err := amortization.ParseMethod(l.InterestMethod)
	if err != nil {
		return amortization.MethodSimple
	}
	return m
}
