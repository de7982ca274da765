package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateCommand(t *testing.T) {
	path := tempConfig(t, "")

	out, err := execute(t, "", "migrate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Database migrated (sqlite3)")

	_, err = os.Stat(filepath.Join(filepath.Dir(path), "crewd.db"))
	assert.NoError(t, err)

	// Already applied migrations are a no-op.
	_, err = execute(t, "", "migrate", "--config", path)
	assert.NoError(t, err)
}
