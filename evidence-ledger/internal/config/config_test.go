package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("EVIDENCE_LEDGER_DATABASE_URL", "")
	t.Setenv("EVIDENCE_LEDGER_CONFIG_FILE", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("EVIDENCE_LEDGER_CONFIG_FILE", "")
	t.Setenv("EVIDENCE_LEDGER_DATABASE_URL", "file:ledger.db")
	t.Setenv("EVIDENCE_LEDGER_DATABASE_DRIVER", "SQLite")
	t.Setenv("EVIDENCE_LEDGER_ALLOW_DEV_PRINCIPALS", "true")
	t.Setenv("EVIDENCE_LEDGER_AUDIT_MAX_ATTEMPTS", "5")
	t.Setenv("EVIDENCE_LEDGER_AUDIT_BACKOFF", "250ms")
	t.Setenv("EVIDENCE_LEDGER_KAFKA_BROKERS", "k1:9092, k2:9092,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.DatabaseDriver)
	assert.Equal(t, "file:ledger.db", cfg.DatabaseURL)
	assert.Equal(t, 5, cfg.AuditMaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.AuditBackoff)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, defaultAddr, cfg.Addr)
	assert.Equal(t, FileBackendLocal, cfg.FileBackend)
}

func TestLoadFileThenEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	content := []byte(`
addr: ":9000"
databaseDriver: postgres
databaseUrl: postgres://ledger@localhost/ledger?sslmode=disable
fileBackend: s3
fileBucket: evidence-bucket
fileReadTimeout: 5s
allowDevPrincipals: true
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	t.Setenv("EVIDENCE_LEDGER_CONFIG_FILE", path)
	t.Setenv("EVIDENCE_LEDGER_DATABASE_URL", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("EVIDENCE_LEDGER_ADDR", ":9100")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Addr)
	assert.Equal(t, FileBackendS3, cfg.FileBackend)
	assert.Equal(t, "evidence-bucket", cfg.FileBucket)
	assert.Equal(t, 5*time.Second, cfg.FileReadTimeout)
	assert.Equal(t, "postgres://ledger@localhost/ledger?sslmode=disable", cfg.DatabaseURL)
}

func TestValidate(t *testing.T) {
	base := Defaults()
	base.DatabaseURL = "postgres://x"
	base.AllowDevPrincipals = true
	require.NoError(t, base.Validate())

	noAuth := base
	noAuth.AllowDevPrincipals = false
	assert.Error(t, noAuth.Validate())

	badDriver := base
	badDriver.DatabaseDriver = "mysql"
	assert.Error(t, badDriver.Validate())

	s3NoBucket := base
	s3NoBucket.FileBackend = FileBackendS3
	assert.Error(t, s3NoBucket.Validate())

	streamerSQLite := base
	streamerSQLite.StreamerEnabled = true
	streamerSQLite.KafkaBrokers = []string{"k:9092"}
	streamerSQLite.ArchiveBucket = "archive"
	streamerSQLite.DatabaseDriver = DriverSQLite
	assert.Error(t, streamerSQLite.Validate())

	certOnly := base
	certOnly.TLSCertFile = "server.crt"
	assert.Error(t, certOnly.Validate())

	mtlsNoCA := base
	mtlsNoCA.TLSCertFile, mtlsNoCA.TLSKeyFile = "server.crt", "server.key"
	mtlsNoCA.RequireClientCert = true
	assert.Error(t, mtlsNoCA.Validate())
	mtlsNoCA.TLSClientCAFile = "ca.pem"
	assert.NoError(t, mtlsNoCA.Validate())
}
