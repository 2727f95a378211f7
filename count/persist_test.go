package count

import (
	"context"
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertMatrixEqual(t *testing.T, want, got *Matrix) {
	t.Helper()
	wantRows, wantCols := want.Dims()
	gotRows, gotCols := got.Dims()
	require.Equal(t, wantRows, gotRows)
	require.Equal(t, wantCols, gotCols)
	assert.Equal(t, want.RowLabels(), got.RowLabels())
	assert.Equal(t, want.ColLabels(), got.ColLabels())
	assert.Equal(t, want.NNZ(), got.NNZ())
	for row := 0; row < wantRows; row++ {
		for col := 0; col < wantCols; col++ {
			assert.Equal(t, want.At(row, col), got.At(row, col), "at (%d,%d)", row, col)
		}
	}
}

func testMatrix(t *testing.T) *Matrix {
	m, err := FromEntries([]Entry{
		{Row: 0, Col: 0, Count: 1},
		{Row: 0, Col: 2, Count: 5},
		{Row: 2, Col: 1, Count: 2},
	}, []string{"CellX", "CellY", "CellZ"}, []string{"GeneA", "GeneB", "GeneC"})
	require.NoError(t, err)
	return m
}

func TestSaveLoadRoundTrip(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()
	prefix := filepath.Join(tempDir, "shard0")

	m := testMatrix(t)
	require.NoError(t, Save(ctx, m, prefix))

	loaded, err := Load(ctx, prefix)
	require.NoError(t, err)
	assertMatrixEqual(t, m, loaded)
}

func TestSaveLoadEmptyMatrix(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()
	prefix := filepath.Join(tempDir, "empty")

	// The empty-stream shape: no cells, all annotation columns.
	m, err := FromEntries(nil, nil, []string{"GeneA", "GeneB"})
	require.NoError(t, err)
	require.NoError(t, Save(ctx, m, prefix))

	loaded, err := Load(ctx, prefix)
	require.NoError(t, err)
	assertMatrixEqual(t, m, loaded)
}

func TestLoadMissingArtifact(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()
	prefix := filepath.Join(tempDir, "shard0")
	require.NoError(t, Save(ctx, testMatrix(t), prefix))

	for _, suffix := range []string{countsSuffix, rowsSuffix, colsSuffix} {
		require.NoError(t, os.Rename(prefix+suffix, prefix+suffix+".bak"))
		_, err := Load(ctx, prefix)
		require.Error(t, err, "missing %s", suffix)
		var corrupt *CorruptArtifactError
		assert.True(t, errors.As(err, &corrupt), "missing %s: %v", suffix, err)
		require.NoError(t, os.Rename(prefix+suffix+".bak", prefix+suffix))
	}

	_, err := Load(ctx, filepath.Join(tempDir, "no-such-prefix"))
	require.Error(t, err)
}

func TestLoadTruncatedCounts(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()
	prefix := filepath.Join(tempDir, "shard0")
	require.NoError(t, Save(ctx, testMatrix(t), prefix))

	blob, err := ioutil.ReadFile(prefix + countsSuffix)
	require.NoError(t, err)
	require.NoError(t, ioutil.WriteFile(prefix+countsSuffix, blob[:len(blob)/2], 0644))

	_, err = Load(ctx, prefix)
	require.Error(t, err)
	var corrupt *CorruptArtifactError
	assert.True(t, errors.As(err, &corrupt), "got %v", err)
}

func TestLoadLabelCountMismatch(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()
	prefix := filepath.Join(tempDir, "shard0")
	require.NoError(t, Save(ctx, testMatrix(t), prefix))

	require.NoError(t, ioutil.WriteFile(prefix+rowsSuffix, []byte("CellX\nCellY\n"), 0644))
	_, err := Load(ctx, prefix)
	require.Error(t, err)
	var corrupt *CorruptArtifactError
	assert.True(t, errors.As(err, &corrupt), "got %v", err)
}

func TestMergePrefixes(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()
	genes := []string{"GeneA", "GeneB"}

	a, err := FromEntries([]Entry{{Row: 0, Col: 0, Count: 1}}, []string{"a1"}, genes)
	require.NoError(t, err)
	b, err := FromEntries([]Entry{{Row: 1, Col: 1, Count: 2}}, []string{"b1", "b2"}, genes)
	require.NoError(t, err)
	prefixA := filepath.Join(tempDir, "a")
	prefixB := filepath.Join(tempDir, "b")
	require.NoError(t, Save(ctx, a, prefixA))
	require.NoError(t, Save(ctx, b, prefixB))

	m, err := MergePrefixes(ctx, []string{prefixA, prefixB})
	require.NoError(t, err)
	rows, cols := m.Dims()
	assert.Equal(t, 3, rows)
	assert.Equal(t, 2, cols)
	assert.Equal(t, []string{"a1", "b1", "b2"}, m.RowLabels())
	assert.Equal(t, uint32(1), m.At(0, 0))
	assert.Equal(t, uint32(2), m.At(2, 1))
}
