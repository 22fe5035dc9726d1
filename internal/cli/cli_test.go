package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuongbtq/jobledger/internal/domain"
	"github.com/cuongbtq/jobledger/shared/database"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func assertGolden(t *testing.T, name string, report TextRenderer, format string) {
	t.Helper()

	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: format, Writer: buf}
	require.NoError(t, formatter.Success(report))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, buf.Bytes())
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "ledgerctl", cmd.Use)

	for _, path := range [][]string{{"migrate"}, {"grant"}, {"balance"}, {"audit"}, {"jobs", "stuck"}} {
		t.Run(fmt.Sprint(path), func(t *testing.T) {
			sub, _, err := cmd.Find(path)
			require.NoError(t, err)
			assert.Equal(t, path[len(path)-1], sub.Name())
		})
	}

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
}

func TestBalanceReport_Golden(t *testing.T) {
	txs := []domain.CreditTransaction{
		{ID: "tx-4", Type: domain.TransactionRefund, Amount: 1, Reason: domain.ReasonJobFailureFatal, JobID: ptr("job-2"), CreatedAt: t0.Add(3 * time.Minute)},
		{ID: "tx-3", Type: domain.TransactionDeduction, Amount: -1, Reason: domain.ReasonJobCharge, JobID: ptr("job-2"), CreatedAt: t0.Add(2 * time.Minute)},
		{ID: "tx-2", Type: domain.TransactionDeduction, Amount: -1, Reason: domain.ReasonJobCharge, JobID: ptr("job-1"), CreatedAt: t0.Add(time.Minute)},
		{ID: "tx-1", Type: domain.TransactionPurchase, Amount: 10, Reason: domain.ReasonPurchase, CreatedAt: t0},
	}
	report := NewBalanceReport("user-1", 9, txs)

	assertGolden(t, "balance_text", report, "text")
	assertGolden(t, "balance_json", report, "json")
}

func TestAuditReport_Golden(t *testing.T) {
	report := NewAuditReport([]domain.AuditResult{
		{UserID: "user-1", Balance: 9, LedgerSum: 9, Transactions: 4},
		{UserID: "user-2", Balance: 5, LedgerSum: 3, Transactions: 2},
	})
	assert.Equal(t, 1, report.Inconsistent)

	assertGolden(t, "audit_text", report, "text")
	assertGolden(t, "audit_json", report, "json")
}

func TestStuckReport_Golden(t *testing.T) {
	report := NewStuckReport(t0, []domain.Job{
		{
			ID:              "job-7",
			UserID:          "user-1",
			Type:            domain.JobTypeGeneratePDF,
			Status:          domain.JobStatusProcessing,
			Retries:         1,
			StartedAt:       ptr(t0.Add(-10 * time.Minute)),
			LastHeartbeatAt: ptr(t0.Add(-6 * time.Minute)),
		},
		{
			ID:        "job-8",
			UserID:    "user-2",
			Type:      domain.JobTypeAnalyze,
			Status:    domain.JobStatusProcessing,
			StartedAt: ptr(t0.Add(-20 * time.Minute)),
		},
	})

	assertGolden(t, "stuck_text", report, "text")
	assertGolden(t, "stuck_json", report, "json")
}

func TestOutputFormatter_Error(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, (&OutputFormatter{Format: "text", Writer: buf}).Error("boom"))
	assert.Equal(t, "Error: boom\n", buf.String())

	buf.Reset()
	require.NoError(t, (&OutputFormatter{Format: "json", Writer: buf}).Error("boom"))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "boom", resp.Error.Message)
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain error", errors.New("x"), ExitFailure},
		{"command error", NewExitError(ExitCommandError, "bad flag"), ExitCommandError},
		{"wrapped", fmt.Errorf("outer: %w", WrapExitError(ExitFailure, "drift", errors.New("x"))), ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

// sqliteConfig writes a config file pointing at a fresh SQLite database
func sqliteConfig(t *testing.T) (configPath, dbPath string) {
	t.Helper()

	dir := t.TempDir()
	dbPath = filepath.Join(dir, "ledger.db")
	configPath = filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf("database:\n  driver: sqlite3\n  path: %s\nworker:\n  stale_after: 1m\n", dbPath)
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))

	return configPath, dbPath
}

func execute(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func openDB(t *testing.T, path string) *database.Client {
	t.Helper()

	client, err := database.NewClient(&database.Config{
		Driver: database.DriverSQLite,
		Path:   path,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestCommands_EndToEnd(t *testing.T) {
	configPath, dbPath := sqliteConfig(t)

	out, err := execute(t, configPath, "migrate")
	require.NoError(t, err)
	assert.Equal(t, "schema up to date (sqlite3)\n", out)

	out, err = execute(t, configPath, "grant", "user-1", "10", "--session", "cs_1")
	require.NoError(t, err)
	assert.Equal(t, "granted 10 credits to user-1, balance 10\n", out)

	// replaying the same payment session is a no-op
	out, err = execute(t, configPath, "grant", "user-1", "10", "--session", "cs_1")
	require.NoError(t, err)
	assert.Equal(t, "session cs_1 already recorded for user-1, balance 10\n", out)

	out, err = execute(t, configPath, "--format", "json", "balance", "user-1")
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   BalanceReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, int64(10), resp.Data.Balance)
	require.Len(t, resp.Data.Transactions, 1)
	assert.Equal(t, "purchase", resp.Data.Transactions[0].Type)
	assert.Equal(t, domain.ReasonAdminGrant, resp.Data.Transactions[0].Reason)

	out, err = execute(t, configPath, "audit")
	require.NoError(t, err)
	assert.Contains(t, out, "user-1 balance=10 ledger=10 transactions=1 ok")
	assert.Contains(t, out, "1 users audited, 0 inconsistent")

	db := openDB(t, dbPath).GetDB()

	_, err = db.Exec(`UPDATE users SET credits = 99 WHERE id = 'user-1'`)
	require.NoError(t, err)

	out, err = execute(t, configPath, "audit", "user-1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "user-1 balance=99 ledger=10 transactions=1 MISMATCH")

	now := time.Now().UTC()
	_, err = db.Exec(db.Rebind(`
		INSERT INTO jobs (id, user_id, type, status, payload, retries, max_retries, created_at, updated_at, started_at)
		VALUES (?, ?, ?, ?, '{}', 0, 3, ?, ?, ?)
	`), "job-1", "user-1", domain.JobTypeAnalyze, domain.JobStatusProcessing, now, now, now)
	require.NoError(t, err)

	out, err = execute(t, configPath, "jobs", "stuck")
	require.NoError(t, err)
	assert.Contains(t, out, "job-1 user=user-1 type=analyze retries=0 heartbeat=never")
	assert.Contains(t, out, "1 stuck jobs")
}

func TestCommands_Errors(t *testing.T) {
	configPath, _ := sqliteConfig(t)

	tests := []struct {
		name string
		args []string
	}{
		{"invalid format", []string{"--format", "xml", "migrate"}},
		{"non numeric amount", []string{"grant", "user-1", "ten"}},
		{"zero amount", []string{"grant", "user-1", "0"}},
		{"unknown user balance", []string{"balance", "nobody"}},
		{"unknown user audit", []string{"audit", "nobody"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, configPath, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}

	_, err := execute(t, filepath.Join(t.TempDir(), "missing.yaml"), "migrate")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
