package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
server:
  name: cms-test
  port: 9000
database:
  driver: postgres
  host: db
  port: 5432
  username: cms
  password: secret
  database: cms
payment:
  currency: eur
  success_url: https://shop.example/ok
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_ReadsYAMLAndDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "cms-test", cfg.Server.Name)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "eur", cfg.Payment.Currency)
	assert.Equal(t, "audit_logs", cfg.MongoDB.Collection)
	assert.Equal(t, []string{"stdout"}, cfg.Log.OutputPaths)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("CMSSHOP_SERVER_PORT", "7777")
	t.Setenv("CMSSHOP_PAYMENT_WEBHOOK_SECRET", "whsec_test")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "whsec_test", cfg.Payment.WebhookSecret)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	my := DatabaseConfig{Driver: "mysql", Host: "h", Port: 3306, Username: "u", Password: "p", Database: "d"}
	assert.Equal(t, "u:p@tcp(h:3306)/d?charset=utf8mb4&parseTime=True&loc=Local", my.DSN())

	pg := DatabaseConfig{Driver: "postgres", Host: "h", Port: 5432, Username: "u", Password: "p", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "host=h port=5432 user=u password=p dbname=d sslmode=disable", pg.DSN())
}
