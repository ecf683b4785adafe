package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/eventbot/core/database"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMergesSectionsAndEnv(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: from-file
database:
  driver: sqlite
  path: /tmp/events.db
shortener:
  enabled: true
  domain: https://s.test/
dialogue:
  validate_dates: true
`)
	t.Setenv("HASHIDS_SALT", "pepper")
	t.Setenv("HASHIDS_MIN_LENGTH", "8")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.CoreConfig().Telegram.Token)
	assert.Equal(t, database.DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, 1, cfg.Database.MaxConnections)
	assert.Equal(t, database.SchemaEnsure, cfg.Database.SchemaMode)
	assert.True(t, cfg.Shortener.Enabled)
	assert.Equal(t, "pepper", cfg.Shortener.Salt)
	assert.Equal(t, 8, cfg.Shortener.MinLength)
	assert.True(t, cfg.Dialogue.ValidateDates)
}

func TestLoadRejectsInvalidSections(t *testing.T) {
	cases := map[string]string{
		"no token": `
database:
  driver: sqlite
  path: x.db
`,
		"postgres without host": `
telegram:
  token: t
database:
  driver: postgres
  name: events
`,
		"shortener without domain": `
telegram:
  token: t
database:
  driver: sqlite
  path: x.db
shortener:
  enabled: true
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}
