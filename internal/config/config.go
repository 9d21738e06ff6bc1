// Package config loads and validates quorum configuration.
//
// A configuration is read from YAML (unknown keys rejected), overlaid with
// QUORUM_* environment variables, then checked against the embedded CUE
// schema and finally against the owner registry rules.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/roach88/quorum/internal/ir"
	"github.com/roach88/quorum/internal/registry"
)

//go:embed schema.cue
var schemaCUE string

// Config describes one deployment: the committee, the initial role holders
// and the process settings.
type Config struct {
	Owners []string `yaml:"owners" json:"owners"`

	Operator      string `yaml:"operator" json:"operator"`
	Custodian     string `yaml:"custodian" json:"custodian"`
	Methodologist string `yaml:"methodologist,omitempty" json:"methodologist,omitempty"`

	RebalanceThreshold     int `yaml:"rebalance_threshold" json:"rebalance_threshold"`
	OperatorThreshold      int `yaml:"operator_threshold" json:"operator_threshold"`
	MethodologistThreshold int `yaml:"methodologist_threshold" json:"methodologist_threshold"`

	// CustodialBalance is minted to the custodian when the in-memory token
	// is used.
	CustodialBalance  string `yaml:"custodial_balance,omitempty" json:"custodial_balance,omitempty"`
	SubmitterConfirms bool   `yaml:"submitter_confirms,omitempty" json:"submitter_confirms,omitempty"`

	Database   string `yaml:"database,omitempty" json:"database,omitempty" env:"QUORUM_DB"`
	Listen     string `yaml:"listen,omitempty" json:"listen,omitempty" env:"QUORUM_LISTEN"`
	ManagerURL string `yaml:"manager_url,omitempty" json:"manager_url,omitempty" env:"QUORUM_MANAGER_URL"`
	LogLevel   string `yaml:"log_level,omitempty" json:"log_level,omitempty" env:"QUORUM_LOG_LEVEL"`

	// ManagerTimeout bounds each request to manager_url. Zero keeps
	// portfolio.DefaultManagerTimeout.
	ManagerTimeout time.Duration `yaml:"manager_timeout,omitempty" json:"manager_timeout,omitempty" env:"QUORUM_MANAGER_TIMEOUT"`
}

// Load reads path, applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML. Unknown keys are an error. The result is not
// validated.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// ApplyEnv overlays QUORUM_* environment variables. Unset variables leave
// the field unchanged.
func (c *Config) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks c against the CUE schema, then against the registry
// rules the schema cannot express (duplicate owners, identity
// normalization). Every problem is reported as a *registry.ConfigError;
// several are joined with errors.Join.
func (c *Config) Validate() error {
	if err := c.validateSchema(); err != nil {
		return err
	}

	owners, err := c.OwnerIdentities()
	if err != nil {
		return err
	}
	reg, err := registry.New(owners)
	if err != nil {
		return err
	}
	return errors.Join(
		reg.CheckThreshold("rebalance_threshold", c.RebalanceThreshold),
		reg.CheckThreshold("operator_threshold", c.OperatorThreshold),
		reg.CheckThreshold("methodologist_threshold", c.MethodologistThreshold),
	)
}

func (c *Config) validateSchema() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	value := ctx.Encode(c)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return schemaErrors(err)
	}
	return nil
}

// schemaErrors converts CUE validation errors to ConfigErrors.
func schemaErrors(err error) error {
	var errs []error
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		field := strings.Join(e.Path(), ".")
		if field == "" {
			field = "config"
		}
		errs = append(errs, &registry.ConfigError{Field: field, Message: fmt.Sprintf(format, args...)})
	}
	if len(errs) == 0 {
		return &registry.ConfigError{Field: "config", Message: err.Error()}
	}
	return errors.Join(errs...)
}

// OwnerIdentities parses the owner list.
func (c *Config) OwnerIdentities() ([]ir.Identity, error) {
	ids, err := ir.ParseIdentities(c.Owners)
	if err != nil {
		return nil, &registry.ConfigError{Field: "owners", Message: err.Error()}
	}
	return ids, nil
}

// Balance parses CustodialBalance. Empty means zero.
func (c *Config) Balance() (*big.Int, error) {
	if c.CustodialBalance == "" {
		return new(big.Int), nil
	}
	v, err := ir.ParseAmount(c.CustodialBalance)
	if err != nil {
		return nil, &registry.ConfigError{Field: "custodial_balance", Message: err.Error()}
	}
	return v, nil
}

// Level returns the slog level named by LogLevel, defaulting to Info.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Marshal renders c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return buf.Bytes(), nil
}
