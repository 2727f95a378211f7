package count

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"
)

// A persisted matrix is three co-located artifacts under a shared prefix:
// the compressed counts and the two label sequences. Each is independently
// loadable, and writes are not atomic across the set; a crash between writes
// can leave a partial set behind, which Load reports as corruption. Callers
// that need atomicity should write under a temporary prefix and rename.
const (
	countsSuffix = ".counts.rio"
	rowsSuffix   = ".rows.txt"
	colsSuffix   = ".cols.txt"
)

const countsTrailerVersion = 1

func init() {
	recordiozstd.Init()
}

// csrRow is the recordio payload unit: the stored entries of one matrix row.
type csrRow struct {
	cols []int32
	vals []uint32
}

// Save writes m under the given path prefix: <prefix>.counts.rio,
// <prefix>.rows.txt, and <prefix>.cols.txt.
func Save(ctx context.Context, m *Matrix, prefix string) error {
	if err := writeCountsFile(ctx, m, prefix+countsSuffix); err != nil {
		return err
	}
	if err := writeLabels(ctx, prefix+rowsSuffix, m.rowLabels); err != nil {
		return err
	}
	return writeLabels(ctx, prefix+colsSuffix, m.colLabels)
}

func writeCountsFile(ctx context.Context, m *Matrix, path string) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create counts artifact:", path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	return writeCountsRio(m, out.Writer(ctx))
}

// writeCountsRio writes the CSR body as recordio, one record per row, with a
// trailer holding the version, shape, and entry count.
func writeCountsRio(m *Matrix, w io.Writer) error {
	recordWriter := recordio.NewWriter(w, recordio.WriterOpts{
		Marshal:      marshalCSRRow,
		Transformers: []string{recordiozstd.Name},
	})
	recordWriter.AddHeader(recordio.KeyTrailer, true)
	for row := 0; row < m.numRows; row++ {
		lo, hi := m.rowPtr[row], m.rowPtr[row+1]
		recordWriter.Append(&csrRow{cols: m.colInd[lo:hi], vals: m.values[lo:hi]})
	}
	recordWriter.SetTrailer(countsTrailer(m))
	return recordWriter.Finish()
}

func countsTrailer(m *Matrix) []byte {
	var buffer bytes.Buffer
	for _, v := range []int64{countsTrailerVersion, int64(m.numRows), int64(m.numCols), int64(m.NNZ())} {
		if err := binary.Write(&buffer, binary.LittleEndian, v); err != nil {
			panic("couldn't write counts trailer")
		}
	}
	return buffer.Bytes()
}

func parseCountsTrailer(trailer []byte) (numRows, numCols, nnz int64, err error) {
	r := bytes.NewReader(trailer)
	var version int64
	for _, v := range []*int64{&version, &numRows, &numCols, &nnz} {
		if err = binary.Read(r, binary.LittleEndian, v); err != nil {
			return 0, 0, 0, err
		}
	}
	if version != countsTrailerVersion {
		return 0, 0, 0, fmt.Errorf("unrecognized counts trailer version: got %d, want %d", version, countsTrailerVersion)
	}
	return numRows, numCols, nnz, nil
}

func marshalCSRRow(scratch []byte, v interface{}) ([]byte, error) {
	row := v.(*csrRow)
	n := len(row.cols)
	t := scratch
	if len(t) < 4+8*n {
		t = make([]byte, 4+8*n)
	}
	t = t[:4+8*n]
	binary.LittleEndian.PutUint32(t[:4], uint32(n))
	for i, col := range row.cols {
		binary.LittleEndian.PutUint32(t[4+8*i:], uint32(col))
		binary.LittleEndian.PutUint32(t[8+8*i:], row.vals[i])
	}
	return t, nil
}

func unmarshalCSRRow(in []byte) (interface{}, error) {
	if len(in) < 4 {
		return nil, fmt.Errorf("truncated row record: %d bytes", len(in))
	}
	n := int(binary.LittleEndian.Uint32(in[:4]))
	if len(in) != 4+8*n {
		return nil, fmt.Errorf("row record length %d does not match entry count %d", len(in), n)
	}
	row := &csrRow{cols: make([]int32, n), vals: make([]uint32, n)}
	for i := 0; i < n; i++ {
		row.cols[i] = int32(binary.LittleEndian.Uint32(in[4+8*i:]))
		row.vals[i] = binary.LittleEndian.Uint32(in[8+8*i:])
	}
	return row, nil
}

// Load reads a matrix persisted by Save under the given prefix. It returns a
// *CorruptArtifactError if any of the three artifacts is missing, truncated,
// or inconsistent with the others.
func Load(ctx context.Context, prefix string) (*Matrix, error) {
	rowLabels, err := readLabels(ctx, prefix+rowsSuffix)
	if err != nil {
		return nil, err
	}
	colLabels, err := readLabels(ctx, prefix+colsSuffix)
	if err != nil {
		return nil, err
	}

	countsPath := prefix + countsSuffix
	in, err := file.Open(ctx, countsPath)
	if err != nil {
		return nil, &CorruptArtifactError{Path: countsPath, Err: err}
	}
	m, err := readCountsRio(in.Reader(ctx))
	if closeErr := in.Close(ctx); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, &CorruptArtifactError{Path: countsPath, Err: err}
	}
	if m.numRows != len(rowLabels) {
		return nil, &CorruptArtifactError{
			Path: countsPath,
			Err:  fmt.Errorf("matrix has %d rows but %d row labels", m.numRows, len(rowLabels)),
		}
	}
	if m.numCols != len(colLabels) {
		return nil, &CorruptArtifactError{
			Path: countsPath,
			Err:  fmt.Errorf("matrix has %d columns but %d column labels", m.numCols, len(colLabels)),
		}
	}
	m.rowLabels = rowLabels
	m.colLabels = colLabels
	return m, nil
}

func readCountsRio(rs io.ReadSeeker) (*Matrix, error) {
	scanner := recordio.NewScanner(rs, recordio.ScannerOpts{
		Unmarshal: unmarshalCSRRow,
	})
	if len(scanner.Trailer()) == 0 {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("missing counts trailer")
	}
	numRows, numCols, nnz, err := parseCountsTrailer(scanner.Trailer())
	if err != nil {
		return nil, err
	}

	m := &Matrix{
		numRows: int(numRows),
		numCols: int(numCols),
		rowPtr:  make([]int64, 1, numRows+1),
		colInd:  make([]int32, 0, nnz),
		values:  make([]uint32, 0, nnz),
	}
	for scanner.Scan() {
		row := scanner.Get().(*csrRow)
		prev := int32(-1)
		for _, col := range row.cols {
			if col <= prev || int64(col) >= numCols {
				return nil, fmt.Errorf("row %d: invalid column index %d", len(m.rowPtr)-1, col)
			}
			prev = col
		}
		m.colInd = append(m.colInd, row.cols...)
		m.values = append(m.values, row.vals...)
		m.rowPtr = append(m.rowPtr, int64(len(m.colInd)))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(m.rowPtr)-1 != m.numRows {
		return nil, fmt.Errorf("found %d row records, trailer declares %d rows", len(m.rowPtr)-1, m.numRows)
	}
	if int64(m.NNZ()) != nnz {
		return nil, fmt.Errorf("found %d entries, trailer declares %d", m.NNZ(), nnz)
	}
	return m, nil
}

func writeLabels(ctx context.Context, path string, labels []string) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create label artifact:", path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := bufio.NewWriter(out.Writer(ctx))
	for _, label := range labels {
		if _, err = w.WriteString(label); err != nil {
			return err
		}
		if err = w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return w.Flush()
}

func readLabels(ctx context.Context, path string) ([]string, error) {
	labels, err := readLabelLines(ctx, path)
	if err != nil {
		return nil, &CorruptArtifactError{Path: path, Err: err}
	}
	return labels, nil
}

func readLabelLines(ctx context.Context, path string) ([]string, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	var labels []string
	scanner := bufio.NewScanner(in.Reader(ctx))
	scanner.Buffer(nil, 1<<20)
	for scanner.Scan() {
		labels = append(labels, scanner.Text())
	}
	err = scanner.Err()
	if closeErr := in.Close(ctx); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, err
	}
	return labels, nil
}

// MergePrefixes loads the matrices persisted under each prefix and merges
// them row-wise in argument order.
func MergePrefixes(ctx context.Context, prefixes []string) (*Matrix, error) {
	matrices := make([]*Matrix, len(prefixes))
	for i, prefix := range prefixes {
		m, err := Load(ctx, prefix)
		if err != nil {
			return nil, err
		}
		matrices[i] = m
	}
	return Merge(matrices)
}
