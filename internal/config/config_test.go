package config

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quorum/internal/engine"
	"github.com/roach88/quorum/internal/ir"
	"github.com/roach88/quorum/internal/portfolio"
	"github.com/roach88/quorum/internal/registry"
	"github.com/roach88/quorum/internal/testutil"
)

func validConfig() *Config {
	return &Config{
		Owners:                 []string{"O1", "O2", "O3"},
		Operator:               "operator",
		Custodian:              "custodian",
		RebalanceThreshold:     2,
		OperatorThreshold:      3,
		MethodologistThreshold: 3,
	}
}

func configErrorFields(t *testing.T, err error) []string {
	t.Helper()
	var fields []string
	var walk func(error)
	walk = func(err error) {
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range joined.Unwrap() {
				walk(e)
			}
			return
		}
		var ce *registry.ConfigError
		if errors.As(err, &ce) {
			fields = append(fields, ce.Field)
		}
	}
	walk(err)
	return fields
}

func hasFieldPrefix(fields []string, prefix string) bool {
	for _, f := range fields {
		if strings.HasPrefix(f, prefix) {
			return true
		}
	}
	return false
}

func TestLoad_ValidFile(t *testing.T) {
	cfg, err := Load("testdata/valid.yaml")
	require.NoError(t, err)

	assert.Len(t, cfg.Owners, 6)
	assert.Equal(t, "operator", cfg.Operator)
	assert.Equal(t, "founder", cfg.Methodologist)
	assert.Equal(t, 3, cfg.RebalanceThreshold)
	assert.Equal(t, 5, cfg.OperatorThreshold)
	assert.Equal(t, slog.LevelDebug, cfg.Level())

	bal, err := cfg.Balance()
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1000), bal)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "read config")
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("owners: [a]\nquorum: 3\n"))
	assert.ErrorContains(t, err, "field quorum not found")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("QUORUM_DB", "/var/lib/quorum.db")
	t.Setenv("QUORUM_LOG_LEVEL", "warn")

	cfg, err := Load("testdata/valid.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/quorum.db", cfg.Database)
	assert.Equal(t, slog.LevelWarn, cfg.Level())
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen, "unset variables keep file values")
}

func TestParse_ManagerTimeout(t *testing.T) {
	cfg, err := Parse([]byte("manager_url: http://manager\nmanager_timeout: 5s\n"))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.ManagerTimeout)

	t.Setenv("QUORUM_MANAGER_TIMEOUT", "250ms")
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, 250*time.Millisecond, cfg.ManagerTimeout)
}

func TestLoad_EnvOverrideIsValidated(t *testing.T) {
	t.Setenv("QUORUM_LOG_LEVEL", "loud")

	_, err := Load("testdata/valid.yaml")
	require.Error(t, err)
	assert.True(t, hasFieldPrefix(configErrorFields(t, err), "log_level"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"no owners", func(c *Config) { c.Owners = nil }, "owners"},
		{"empty owner list", func(c *Config) { c.Owners = []string{} }, "owners"},
		{"owner with whitespace", func(c *Config) { c.Owners = []string{"O1", "O 2"} }, "owners"},
		{"duplicate owner", func(c *Config) { c.Owners = []string{"O1", "O2", "O1"} }, "owners"},
		{"missing operator", func(c *Config) { c.Operator = "" }, "operator"},
		{"rebalance threshold zero", func(c *Config) { c.RebalanceThreshold = 0 }, "rebalance_threshold"},
		{"operator threshold above owners", func(c *Config) { c.OperatorThreshold = 4 }, "operator_threshold"},
		{"methodologist threshold negative", func(c *Config) { c.MethodologistThreshold = -1 }, "methodologist_threshold"},
		{"bad balance", func(c *Config) { c.CustodialBalance = "-5" }, "custodial_balance"},
		{"bad manager url", func(c *Config) { c.ManagerURL = "ftp://x" }, "manager_url"},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, "log_level"},
		{"negative manager timeout", func(c *Config) { c.ManagerTimeout = -time.Second }, "manager_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, hasFieldPrefix(configErrorFields(t, err), tt.field), "error: %v", err)
		})
	}

	assert.NoError(t, validConfig().Validate())
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := validConfig()
	cfg.RebalanceThreshold = 0
	cfg.OperatorThreshold = 9

	err := cfg.Validate()
	require.Error(t, err)
	fields := configErrorFields(t, err)
	assert.Contains(t, fields, "rebalance_threshold")
	assert.Contains(t, fields, "operator_threshold")
}

func TestMarshal_RoundTrip(t *testing.T) {
	cfg := Sample([]string{"able-ant", "brave-bee", "calm-cat"})
	require.NoError(t, cfg.Validate())

	data, err := cfg.Marshal()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "quorum.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestSample_Thresholds(t *testing.T) {
	for n := 1; n <= 9; n++ {
		var owners []string
		for _, o := range testutil.Owners(n) {
			owners = append(owners, o.String())
		}
		assert.NoError(t, Sample(owners).Validate(), "n=%d", n)
	}
}

func TestBuild(t *testing.T) {
	ctx := context.Background()
	cfg := validConfig()
	cfg.SubmitterConfirms = true

	manager := portfolio.NewMemory("operator", "custodian")
	recorders := map[string]*testutil.Recorder{}
	gates, err := cfg.Build(Wiring{
		Manager: manager,
		Token:   portfolio.NewBalances(),
		Logger:  slogt.New(t),
		Sink: func(gate string) engine.EventSink {
			r := &testutil.Recorder{}
			recorders[gate] = r
			return r
		},
		IDs: func(gate string) engine.IDGenerator { return testutil.NewSequentialIDs(gate) },
	})
	require.NoError(t, err)

	assert.Equal(t, OperatorGate, gates.Operator.Name())
	assert.Equal(t, CustodianGate, gates.Custodian.Name())
	assert.Equal(t, ir.Identity("custodian"), gates.Custodian.Methodologist())

	require.NoError(t, gates.Operator.SubmitNewOperator(ctx, "O1", "next"))
	assert.Equal(t, []string{"SubmitNewOperator", "ConfirmNewOperator"}, recorders[OperatorGate].Names())
	ev, ok := recorders[OperatorGate].Last()
	require.True(t, ok)
	assert.Equal(t, "operator-0002", ev.ID)
	assert.Empty(t, recorders[CustodianGate].Events())

	// Only operator rotation auto-confirms; the methodologist submitter
	// confirms explicitly.
	require.NoError(t, gates.Custodian.SubmitNewMethodologist(ctx, "O1", "meth"))
	require.NoError(t, gates.Custodian.ConfirmNewMethodologist(ctx, "O1"))
	assert.Equal(t, []string{"SubmitNewMethodologist", "ConfirmNewMethodologist"}, recorders[CustodianGate].Names())
	assert.Equal(t, 1, gates.Custodian.Snapshot().Rotation.Count)
}

func TestBuild_JournaledGatesFailStop(t *testing.T) {
	ctx := context.Background()
	journal := &testutil.Recorder{}
	gates, err := validConfig().Build(Wiring{
		Manager: portfolio.NewMemory("operator", "custodian"),
		Token:   portfolio.NewBalances(),
		Logger:  slogt.New(t),
		Sink:    func(string) engine.EventSink { return journal },
	})
	require.NoError(t, err)

	journal.Fail(errors.New("disk full"))
	err = gates.Custodian.SubmitNewMethodologist(ctx, "O1", "meth")
	assert.True(t, engine.IsJournalError(err))

	journal.Fail(nil)
	err = gates.Custodian.ConfirmNewMethodologist(ctx, "O1")
	assert.True(t, engine.IsJournalError(err), "halted gate refuses later calls")
	assert.Empty(t, journal.Events())

	// Gates fail independently.
	require.NoError(t, gates.Operator.SubmitNewOperator(ctx, "O1", "next"))
}

func TestBuild_MissingToken(t *testing.T) {
	_, err := validConfig().Build(Wiring{Manager: portfolio.NewMemory("", "")})
	require.Error(t, err)
	assert.True(t, engine.IsConfigurationError(err))
	assert.ErrorContains(t, err, "build methodologist gate")
}
