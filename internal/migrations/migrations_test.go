package migrations

import (
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrationFiles_UpAndDownForEveryVersion(t *testing.T) {
	files, err := fs.Glob(MigrationFiles, "*.sql")
	require.NoError(t, err)
	require.Len(t, files, 2*Version)

	for v := 1; v <= Version; v++ {
		up, err := fs.Glob(MigrationFiles, fmt.Sprintf("%06d_*.up.sql", v))
		require.NoError(t, err)
		require.Len(t, up, 1, "version %d up", v)

		down, err := fs.Glob(MigrationFiles, fmt.Sprintf("%06d_*.down.sql", v))
		require.NoError(t, err)
		require.Len(t, down, 1, "version %d down", v)
	}
}

func TestMigrationFiles_CreateAdapterTables(t *testing.T) {
	var schema string
	for _, name := range []string{"000001_telemetry.up.sql", "000002_actor_states.up.sql"} {
		data, err := MigrationFiles.ReadFile(name)
		require.NoError(t, err)
		schema += string(data)
	}
	for _, table := range []string{"telemetry", "actor_states", "output_values"} {
		require.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table+" (")
	}
	require.Contains(t, schema, "UNIQUE (twin_id, trend_id, external_id, connector_id, ts)")
}

func TestPreviousVersion(t *testing.T) {
	require.Equal(t, -1, previousVersion(1))
	require.Equal(t, 1, previousVersion(2))
}
