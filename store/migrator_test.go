package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/officialmortgage/livbridge/internal/profile"
)

func TestSplitSQL(t *testing.T) {
	script := `-- lead
CREATE TABLE lead (
  status TEXT NOT NULL DEFAULT 'NEW;OLD', -- trailing comment
  flags TEXT
);

CREATE INDEX idx_lead_status ON lead (status);
`
	statements := splitSQL(script)
	require.Len(t, statements, 2)
	assert.Contains(t, statements[0], "DEFAULT 'NEW;OLD'")
	assert.NotContains(t, statements[0], "trailing comment")
	assert.Equal(t, "CREATE INDEX idx_lead_status ON lead (status)", statements[1])
}

func TestMigrationFiles(t *testing.T) {
	for _, driver := range []string{"sqlite", "postgres"} {
		t.Run(driver, func(t *testing.T) {
			s := New(nil, &profile.Profile{Driver: driver})
			files, err := s.migrationFiles()
			require.NoError(t, err)
			require.NotEmpty(t, files)
			assert.Equal(t, 1, files[0].version)

			_, err = migrationFS.ReadFile(s.getMigrationBasePath() + LatestSchemaFileName)
			assert.NoError(t, err)
		})
	}
}

func TestParseMigrationVersion(t *testing.T) {
	v, err := parseMigrationVersion("12__add_column.sql")
	require.NoError(t, err)
	assert.Equal(t, 12, v)

	_, err = parseMigrationVersion("add_column.sql")
	assert.Error(t, err)
	_, err = parseMigrationVersion("x__add_column.sql")
	assert.Error(t, err)
}
