package db

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/loinc-coder/migrations"
)

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"010_tables.sql":   {Data: []byte("SELECT 10;")},
		"002_second.sql":   {Data: []byte("SELECT 2;")},
		"001_first.sql":    {Data: []byte("SELECT 1;")},
		"readme.sql":       {Data: []byte("-- no version prefix")},
		"abc_invalid.sql":  {Data: []byte("-- non-numeric prefix")},
		"notes.txt":        {Data: []byte("not a sql file")},
		"sub/003_skip.sql": {Data: []byte("SELECT 3;")},
	}

	migs, err := NewMigrator(nil, fsys).LoadMigrations()
	require.NoError(t, err)
	require.Len(t, migs, 3)

	assert.Equal(t, []int{1, 2, 10}, []int{migs[0].Version, migs[1].Version, migs[2].Version})
	assert.Equal(t, "001_first.sql", migs[0].Name)
	assert.Equal(t, "SELECT 1;", migs[0].SQL)
}

func TestLoadMigrations_Embedded(t *testing.T) {
	migs, err := NewMigrator(nil, migrations.FS).LoadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migs)
	assert.Equal(t, 1, migs[0].Version)
}

func TestSQLiteMigrator_UpAndStatus(t *testing.T) {
	ctx := context.Background()
	sqlDB, err := OpenSQLite(ctx, MemoryDSN)
	require.NoError(t, err)
	defer sqlDB.Close()

	m := NewSQLiteMigrator(sqlDB, migrations.FS)

	statuses, err := m.Status(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, statuses)
	for _, s := range statuses {
		assert.False(t, s.Applied, "migration %s should be pending", s.Name)
		assert.Nil(t, s.AppliedAt)
	}

	n, err := m.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(statuses), n)

	n, err = m.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	statuses, err = m.Status(ctx)
	require.NoError(t, err)
	for _, s := range statuses {
		assert.True(t, s.Applied, "migration %s should be applied", s.Name)
		assert.NotNil(t, s.AppliedAt)
	}

	var count int
	require.NoError(t, sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM loinc`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestSQLiteMigrator_FailedMigrationIsNotRecorded(t *testing.T) {
	ctx := context.Background()
	sqlDB, err := OpenSQLite(ctx, MemoryDSN)
	require.NoError(t, err)
	defer sqlDB.Close()

	m := NewSQLiteMigrator(sqlDB, fstest.MapFS{
		"001_ok.sql":     {Data: []byte("CREATE TABLE a (id INTEGER);")},
		"002_broken.sql": {Data: []byte("CREATE TABLE (;")},
	})

	n, err := m.Up(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, n)

	statuses, err := m.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].Applied)
	assert.False(t, statuses[1].Applied)
}
