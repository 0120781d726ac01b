package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSQL_StripsComments(t *testing.T) {
	in := `-- header
CREATE TABLE a (id INT);

  -- indented comment
CREATE INDEX a_idx ON a (id);
`
	stmts := splitSQL(stripSQLComments(in))
	assert.Equal(t, []string{"CREATE TABLE a (id INT)", "CREATE INDEX a_idx ON a (id)"}, stmts)
}

func TestRepoRoot_FindsMigrations(t *testing.T) {
	root, err := RepoRoot()
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "migrations", "0001_init.sql"))
	assert.NoError(t, err)
}
