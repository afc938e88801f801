package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jnanayoni.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
data_dir: /tmp/jny
loan:
  period_days: 7
  fine_per_day: 5
sweep:
  interval: 15m
i18n:
  default: mr
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, filepath.Join("/tmp/jny", "jnanayoni.db"), cfg.DBPath)
	assert.Equal(t, filepath.Join("/tmp/jny", "uploads"), cfg.UploadsDir)
	assert.Equal(t, 7, cfg.Loan.PeriodDays)
	assert.Equal(t, 5, cfg.Loan.FinePerDay)
	assert.Equal(t, defaultMaxActive, cfg.Loan.MaxActive)
	assert.Equal(t, 15*time.Minute, cfg.Sweep.Interval)
	assert.Equal(t, "mr", cfg.I18n.Default)
	issued := time.Date(2024, 3, 30, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 4, 6, 10, 0, 0, 0, time.UTC), cfg.Loan.DueDate(issued))
	assert.Equal(t, defaultRemindHrs*time.Hour, cfg.Loan.RemindBefore())
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, "server:\n  addr: \":9090\"\n")
	t.Setenv("JNY_SERVER_ADDR", ":7070")
	t.Setenv("JNY_LOAN_MAX_ACTIVE", "2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, 2, cfg.Loan.MaxActive)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Run("clamps non-positive values", func(t *testing.T) {
		cfg := Config{Loan: LoanConfig{PeriodDays: -1, MaxActive: 0, FinePerDay: -3}}
		require.NoError(t, cfg.Validate())
		assert.Equal(t, defaultPeriodDays, cfg.Loan.PeriodDays)
		assert.Equal(t, defaultMaxActive, cfg.Loan.MaxActive)
		assert.Equal(t, defaultFinePerDay, cfg.Loan.FinePerDay)
		assert.Equal(t, "en", cfg.I18n.Default)
		assert.Equal(t, "jny_session", cfg.Session.Cookie)
	})
	t.Run("rejects unknown language", func(t *testing.T) {
		cfg := Defaults()
		cfg.I18n.Default = "fr"
		require.Error(t, cfg.Validate())
	})
	t.Run("requires tls pair", func(t *testing.T) {
		cfg := Defaults()
		cfg.Server.TLSCert = "cert.pem"
		require.Error(t, cfg.Validate())
	})
}

func TestReadMasterKey(t *testing.T) {
	hexKey := strings.Repeat("ab", 32)

	t.Run("from env", func(t *testing.T) {
		t.Setenv("MASTER_KEY_HEX", hexKey)
		key, err := ReadMasterKey(t.TempDir())
		require.NoError(t, err)
		assert.Len(t, key, 32)
	})
	t.Run("from data dir file", func(t *testing.T) {
		t.Setenv("MASTER_KEY_HEX", "")
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, masterKeyFile), []byte(hexKey+"\n"), 0o600))
		key, err := ReadMasterKey(dir)
		require.NoError(t, err)
		assert.Equal(t, byte(0xab), key[0])
	})
	t.Run("wrong length", func(t *testing.T) {
		t.Setenv("MASTER_KEY_HEX", "abcd")
		_, err := ReadMasterKey(t.TempDir())
		require.Error(t, err)
	})
}
