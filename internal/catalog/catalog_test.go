package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"reldb/internal/types"
)

func TestCreateTableThenReopenLoadsSchema(t *testing.T) {
	dir := t.TempDir()
	cols := []types.Column{{Name: "id", Type: types.Int32}, {Name: "name", Type: types.CharN, Length: 16}}
	cols, size := types.ComputeRecordSize(cols)

	c, err := Open(dir)
	require.NoError(t, err)
	tm, err := c.CreateTable("users", cols, size)
	require.NoError(t, err)
	require.Equal(t, "users", tm.Name)

	c2, err := Open(dir)
	require.NoError(t, err)
	require.True(t, c2.TableExists("users"))
	got, err := c2.Table("users")
	require.NoError(t, err)
	require.Equal(t, size, got.RecordSize)
	require.Len(t, got.Columns, 2)
	require.Equal(t, "name", got.Columns[1].Name)
	require.Equal(t, types.CharN, got.Columns[1].Type)
}

func TestCreateTableRejectsDuplicateName(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir)
	require.NoError(t, err)
	cols, size := types.ComputeRecordSize([]types.Column{{Name: "id", Type: types.Int32}})
	_, err = c.CreateTable("t", cols, size)
	require.NoError(t, err)
	_, err = c.CreateTable("t", cols, size)
	require.Error(t, err)
}

func TestCreateIndexPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir)
	require.NoError(t, err)
	cols, size := types.ComputeRecordSize([]types.Column{{Name: "id", Type: types.Int32}})
	_, err = c.CreateTable("t", cols, size)
	require.NoError(t, err)

	_, err = c.CreateIndex("t", []string{"id"}, true)
	require.NoError(t, err)

	c2, err := Open(dir)
	require.NoError(t, err)
	tm, err := c2.Table("t")
	require.NoError(t, err)
	require.Len(t, tm.Indexes, 1)
	require.Equal(t, 4, tm.Indexes[0].KeyLength)
}

func TestDropTableRemovesIt(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir)
	require.NoError(t, err)
	cols, size := types.ComputeRecordSize([]types.Column{{Name: "id", Type: types.Int32}})
	_, err = c.CreateTable("t", cols, size)
	require.NoError(t, err)

	require.NoError(t, c.DropTable("t"))
	require.False(t, c.TableExists("t"))

	_, err = c.Table("t")
	require.Error(t, err)
}
