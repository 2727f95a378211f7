package count

import (
	"fmt"
	"sort"
)

// Matrix is an immutable cells-by-genes count matrix in compressed sparse
// row form, with the cell barcode of each row and the gene ID of each column
// alongside. Create one with FromEntries, Load, ImportMTX, or Merge; none of
// the operations mutate an existing Matrix.
type Matrix struct {
	numRows int
	numCols int

	// CSR storage: row i's entries are colInd/values[rowPtr[i]:rowPtr[i+1]],
	// with colInd ascending within each row.
	rowPtr []int64
	colInd []int32
	values []uint32

	rowLabels []string
	colLabels []string
}

// FromEntries accumulates coordinate entries into a Matrix, summing entries
// that target the same (row, column) pair. len(rowLabels) and len(colLabels)
// define the shape; every entry must fall inside it.
func FromEntries(entries []Entry, rowLabels, colLabels []string) (*Matrix, error) {
	m := &Matrix{
		numRows:   len(rowLabels),
		numCols:   len(colLabels),
		rowLabels: rowLabels,
		colLabels: colLabels,
	}
	for _, e := range entries {
		if e.Row < 0 || int(e.Row) >= m.numRows || e.Col < 0 || int(e.Col) >= m.numCols {
			return nil, fmt.Errorf("entry (%d,%d) outside matrix shape (%d,%d)",
				e.Row, e.Col, m.numRows, m.numCols)
		}
	}
	sorted := append([]Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Row != sorted[j].Row {
			return sorted[i].Row < sorted[j].Row
		}
		return sorted[i].Col < sorted[j].Col
	})

	m.rowPtr = make([]int64, m.numRows+1)
	lastRow, lastCol := int32(-1), int32(-1)
	for _, e := range sorted {
		if len(m.values) > 0 && e.Row == lastRow && e.Col == lastCol {
			m.values[len(m.values)-1] += e.Count
			continue
		}
		m.colInd = append(m.colInd, e.Col)
		m.values = append(m.values, e.Count)
		m.rowPtr[e.Row+1] = int64(len(m.colInd))
		lastRow, lastCol = e.Row, e.Col
	}
	// Rows without entries inherit the previous row's boundary.
	for i := 1; i <= m.numRows; i++ {
		if m.rowPtr[i] < m.rowPtr[i-1] {
			m.rowPtr[i] = m.rowPtr[i-1]
		}
	}
	return m, nil
}

// Dims returns the (rows, columns) shape.
func (m *Matrix) Dims() (int, int) { return m.numRows, m.numCols }

// NNZ returns the number of stored entries.
func (m *Matrix) NNZ() int { return len(m.colInd) }

// RowLabels returns the cell barcode for each row, in row order. The caller
// must not modify the returned slice.
func (m *Matrix) RowLabels() []string { return m.rowLabels }

// ColLabels returns the gene ID for each column, in column order. The caller
// must not modify the returned slice.
func (m *Matrix) ColLabels() []string { return m.colLabels }

// At returns the count at (row, col). Absent entries are 0.
func (m *Matrix) At(row, col int) uint32 {
	if row < 0 || row >= m.numRows || col < 0 || col >= m.numCols {
		panic(fmt.Sprintf("index (%d,%d) outside matrix shape (%d,%d)", row, col, m.numRows, m.numCols))
	}
	lo, hi := m.rowPtr[row], m.rowPtr[row+1]
	seg := m.colInd[lo:hi]
	i := sort.Search(len(seg), func(i int) bool { return seg[i] >= int32(col) })
	if i < len(seg) && seg[i] == int32(col) {
		return m.values[lo+int64(i)]
	}
	return 0
}

// Row returns the stored column indices and counts of one row. The caller
// must not modify the returned slices.
func (m *Matrix) Row(row int) ([]int32, []uint32) {
	lo, hi := m.rowPtr[row], m.rowPtr[row+1]
	return m.colInd[lo:hi], m.values[lo:hi]
}

// Merge stacks matrices row-wise: cells are concatenated in input order,
// columns are shared. All inputs must carry the same column labels in the
// same order, since column position encodes gene identity; a
// *LabelMismatchError identifies the first input that does not.
func Merge(matrices []*Matrix) (*Matrix, error) {
	if len(matrices) == 0 {
		return nil, fmt.Errorf("merge of zero matrices")
	}
	first := matrices[0]
	var totalRows, totalNNZ int
	for i, m := range matrices {
		if !labelsEqual(m.colLabels, first.colLabels) {
			return nil, &LabelMismatchError{Index: i}
		}
		totalRows += m.numRows
		totalNNZ += m.NNZ()
	}

	out := &Matrix{
		numRows:   totalRows,
		numCols:   first.numCols,
		rowPtr:    make([]int64, 1, totalRows+1),
		colInd:    make([]int32, 0, totalNNZ),
		values:    make([]uint32, 0, totalNNZ),
		rowLabels: make([]string, 0, totalRows),
		colLabels: first.colLabels,
	}
	for _, m := range matrices {
		base := int64(len(out.colInd))
		for i := 1; i <= m.numRows; i++ {
			out.rowPtr = append(out.rowPtr, base+m.rowPtr[i])
		}
		out.colInd = append(out.colInd, m.colInd...)
		out.values = append(out.values, m.values...)
		out.rowLabels = append(out.rowLabels, m.rowLabels...)
	}
	return out, nil
}

func labelsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
