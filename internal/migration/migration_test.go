package migration

import (
	"io/fs"
	"testing"

	dbpkg "github.com/smallbiznis/coursepay/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCreatesTablesOnSqlite(t *testing.T) {
	db := dbpkg.NewTest(t)

	require.NoError(t, Run(db, "sqlite"))
	require.NoError(t, Run(db, "sqlite"))

	for _, table := range []string{
		"orders", "users", "magic_links", "access_grants",
		"sessions", "promo_codes", "promo_usages", "payment_events",
	} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(embeddedMigrations, migrationsDir+"/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(embeddedMigrations, migrationsDir+"/*.down.sql")
	require.NoError(t, err)

	assert.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}
