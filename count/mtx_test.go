package count

import (
	"context"
	"errors"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMTXInputs(t *testing.T, dir, mtx, rows, cols string) (mtxPath, rowPath, colPath string) {
	mtxPath = filepath.Join(dir, "m.mtx")
	rowPath = filepath.Join(dir, "rows.txt")
	colPath = filepath.Join(dir, "cols.txt")
	require.NoError(t, ioutil.WriteFile(mtxPath, []byte(mtx), 0644))
	require.NoError(t, ioutil.WriteFile(rowPath, []byte(rows), 0644))
	require.NoError(t, ioutil.WriteFile(colPath, []byte(cols), 0644))
	return
}

func TestImportMTX(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	const mtx = `%%MatrixMarket matrix coordinate integer general
% comment line
2 3 3
1 1 5
1 3 1
2 2 4
`
	mtxPath, rowPath, colPath := writeMTXInputs(t, tempDir, mtx, "CellX\nCellY\n", "GeneA\nGeneB\nGeneC\n")

	m, err := ImportMTX(context.Background(), mtxPath, rowPath, colPath)
	require.NoError(t, err)
	rows, cols := m.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 3, cols)
	assert.Equal(t, []string{"CellX", "CellY"}, m.RowLabels())
	assert.Equal(t, []string{"GeneA", "GeneB", "GeneC"}, m.ColLabels())
	assert.Equal(t, uint32(5), m.At(0, 0))
	assert.Equal(t, uint32(1), m.At(0, 2))
	assert.Equal(t, uint32(4), m.At(1, 1))
	assert.Equal(t, uint32(0), m.At(1, 0))
}

func TestImportMTXErrors(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	tests := []struct {
		name string
		mtx  string
		rows string
		cols string
	}{
		{"bad banner", "not a banner\n1 1 0\n", "c\n", "g\n"},
		{"bad field type", "%%MatrixMarket matrix coordinate real general\n1 1 0\n", "c\n", "g\n"},
		{"bad symmetry", "%%MatrixMarket matrix coordinate integer symmetric\n1 1 0\n", "c\n", "g\n"},
		{"missing dims", "%%MatrixMarket matrix coordinate integer general\n", "c\n", "g\n"},
		{"malformed entry", "%%MatrixMarket matrix coordinate integer general\n1 1 1\n1 1\n", "c\n", "g\n"},
		{"entry out of shape", "%%MatrixMarket matrix coordinate integer general\n1 1 1\n2 1 1\n", "c\n", "g\n"},
		{"zero coordinate", "%%MatrixMarket matrix coordinate integer general\n1 1 1\n0 1 1\n", "c\n", "g\n"},
		{"entry count mismatch", "%%MatrixMarket matrix coordinate integer general\n1 1 2\n1 1 1\n", "c\n", "g\n"},
		{"row label mismatch", "%%MatrixMarket matrix coordinate integer general\n2 1 0\n", "c\n", "g\n"},
		{"col label mismatch", "%%MatrixMarket matrix coordinate integer general\n1 2 0\n", "c\n", "g\n"},
	}
	for _, test := range tests {
		mtxPath, rowPath, colPath := writeMTXInputs(t, tempDir, test.mtx, test.rows, test.cols)
		_, err := ImportMTX(context.Background(), mtxPath, rowPath, colPath)
		require.Error(t, err, test.name)
		var format *FormatError
		assert.True(t, errors.As(err, &format), "%s: got %v", test.name, err)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()
	m := testMatrix(t)

	mtxPath := filepath.Join(tempDir, "out.mtx")
	rowPath := filepath.Join(tempDir, "out.rows.txt")
	colPath := filepath.Join(tempDir, "out.cols.txt")
	require.NoError(t, ExportMTX(ctx, m, mtxPath, rowPath, colPath))

	back, err := ImportMTX(ctx, mtxPath, rowPath, colPath)
	require.NoError(t, err)
	assertMatrixEqual(t, m, back)
}
