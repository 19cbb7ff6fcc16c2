package migrate

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gfgkiit/trapped/db"
)

func TestEmbeddedMigrationsPresent(t *testing.T) {
	entries, err := fs.ReadDir(db.Migrations, embeddedDir)
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"00001_create_registrations.sql", "00002_create_teams.sql"}, names)
}

func TestEmbeddedMigrationsDeclareUniqueIndexes(t *testing.T) {
	regs, err := fs.ReadFile(db.Migrations, embeddedDir+"/00001_create_registrations.sql")
	require.NoError(t, err)
	assert.Contains(t, string(regs), "UNIQUE INDEX registrations_email_key")
	assert.Contains(t, string(regs), "UNIQUE INDEX registrations_device_id_key")

	teams, err := fs.ReadFile(db.Migrations, embeddedDir+"/00002_create_teams.sql")
	require.NoError(t, err)
	assert.Contains(t, string(teams), "UNIQUE INDEX teams_team_name_key")
}

func TestNewValidatesArguments(t *testing.T) {
	_, err := New(nil, "postgres://x", "", nil)
	require.Error(t, err)
}
