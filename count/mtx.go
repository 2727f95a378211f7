package count

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// MatrixMarket coordinate interchange, for matrices produced by external
// tooling (scanpy, Cell Ranger and friends). The text format is a banner
// line, optional % comments, a dimensions line, and 1-indexed
// "row col value" triples; labels travel in two newline-delimited side
// files.

const mtxBanner = "%%MatrixMarket"

// ImportMTX parses a MatrixMarket coordinate file plus newline-delimited row
// and column label files into a Matrix. Gzipped inputs are decompressed
// transparently based on path suffix. Malformed coordinate text, or label
// files inconsistent with the declared dimensions, produce a *FormatError.
func ImportMTX(ctx context.Context, mtxPath, rowPath, colPath string) (*Matrix, error) {
	rowLabels, err := readLabelLines(ctx, rowPath)
	if err != nil {
		return nil, errors.E(err, "read row labels:", rowPath)
	}
	colLabels, err := readLabelLines(ctx, colPath)
	if err != nil {
		return nil, errors.E(err, "read column labels:", colPath)
	}

	in, err := file.Open(ctx, mtxPath)
	if err != nil {
		return nil, errors.E(err, "open matrix market file:", mtxPath)
	}
	var inr io.Reader = in.Reader(ctx)
	u, _ := compress.NewReaderPath(inr, in.Name())
	inr = u
	entries, numRows, numCols, err := parseMTX(inr, mtxPath)
	if closeErr := in.Close(ctx); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, err
	}
	if numRows != len(rowLabels) {
		return nil, &FormatError{Path: rowPath,
			Msg: fmt.Sprintf("%d labels for %d matrix rows", len(rowLabels), numRows)}
	}
	if numCols != len(colLabels) {
		return nil, &FormatError{Path: colPath,
			Msg: fmt.Sprintf("%d labels for %d matrix columns", len(colLabels), numCols)}
	}
	return FromEntries(entries, rowLabels, colLabels)
}

func parseMTX(r io.Reader, path string) (entries []Entry, numRows, numCols int, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, 1<<20)
	lineno := 0
	readLine := func() (string, bool) {
		for scanner.Scan() {
			lineno++
			line := strings.TrimSpace(scanner.Text())
			if line == "" || (lineno > 1 && strings.HasPrefix(line, "%")) {
				continue
			}
			return line, true
		}
		return "", false
	}

	banner, ok := readLine()
	if !ok {
		return nil, 0, 0, &FormatError{Path: path, Msg: "empty matrix market file"}
	}
	fields := strings.Fields(banner)
	if len(fields) < 4 || fields[0] != mtxBanner {
		return nil, 0, 0, &FormatError{Path: path, Line: lineno, Msg: "not a MatrixMarket banner: " + banner}
	}
	if fields[1] != "matrix" || fields[2] != "coordinate" {
		return nil, 0, 0, &FormatError{Path: path, Line: lineno,
			Msg: fmt.Sprintf("unsupported MatrixMarket type %s %s (want matrix coordinate)", fields[1], fields[2])}
	}
	if fields[3] != "integer" {
		return nil, 0, 0, &FormatError{Path: path, Line: lineno,
			Msg: fmt.Sprintf("unsupported value field %q (want integer)", fields[3])}
	}
	if len(fields) > 4 && fields[4] != "general" {
		return nil, 0, 0, &FormatError{Path: path, Line: lineno,
			Msg: fmt.Sprintf("unsupported symmetry %q (want general)", fields[4])}
	}

	dims, ok := readLine()
	if !ok {
		return nil, 0, 0, &FormatError{Path: path, Msg: "missing dimensions line"}
	}
	var nnz int64
	d := strings.Fields(dims)
	if len(d) != 3 {
		return nil, 0, 0, &FormatError{Path: path, Line: lineno, Msg: "malformed dimensions line: " + dims}
	}
	parseDim := func(s string) (int64, error) {
		v, err := strconv.ParseInt(s, 10, 32)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("bad dimension %q", s)
		}
		return v, nil
	}
	var rows64, cols64 int64
	if rows64, err = parseDim(d[0]); err == nil {
		if cols64, err = parseDim(d[1]); err == nil {
			nnz, err = parseDim(d[2])
		}
	}
	if err != nil {
		return nil, 0, 0, &FormatError{Path: path, Line: lineno, Msg: err.Error()}
	}
	numRows, numCols = int(rows64), int(cols64)

	entries = make([]Entry, 0, nnz)
	for {
		line, ok := readLine()
		if !ok {
			break
		}
		t := strings.Fields(line)
		if len(t) != 3 {
			return nil, 0, 0, &FormatError{Path: path, Line: lineno, Msg: "malformed entry line: " + line}
		}
		row, err1 := strconv.ParseInt(t[0], 10, 32)
		col, err2 := strconv.ParseInt(t[1], 10, 32)
		val, err3 := strconv.ParseUint(t[2], 10, 32)
		if err1 != nil || err2 != nil || err3 != nil {
			return nil, 0, 0, &FormatError{Path: path, Line: lineno, Msg: "malformed entry line: " + line}
		}
		// MatrixMarket coordinates are 1-indexed.
		if row < 1 || row > rows64 || col < 1 || col > cols64 {
			return nil, 0, 0, &FormatError{Path: path, Line: lineno,
				Msg: fmt.Sprintf("entry (%d,%d) outside declared shape (%d,%d)", row, col, numRows, numCols)}
		}
		entries = append(entries, Entry{Row: int32(row - 1), Col: int32(col - 1), Count: uint32(val)})
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, 0, &FormatError{Path: path, Line: lineno, Msg: err.Error()}
	}
	if int64(len(entries)) != nnz {
		return nil, 0, 0, &FormatError{Path: path,
			Msg: fmt.Sprintf("found %d entries, header declares %d", len(entries), nnz)}
	}
	return entries, numRows, numCols, nil
}

// ExportMTX writes m as a MatrixMarket coordinate file plus the two label
// files, the inverse of ImportMTX.
func ExportMTX(ctx context.Context, m *Matrix, mtxPath, rowPath, colPath string) error {
	if err := writeMTXFile(ctx, m, mtxPath); err != nil {
		return err
	}
	if err := writeLabels(ctx, rowPath, m.rowLabels); err != nil {
		return err
	}
	return writeLabels(ctx, colPath, m.colLabels)
}

func writeMTXFile(ctx context.Context, m *Matrix, path string) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create matrix market file:", path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := bufio.NewWriter(out.Writer(ctx))
	if _, err = fmt.Fprintf(w, "%s matrix coordinate integer general\n", mtxBanner); err != nil {
		return err
	}
	if _, err = fmt.Fprintf(w, "%d %d %d\n", m.numRows, m.numCols, m.NNZ()); err != nil {
		return err
	}
	for row := 0; row < m.numRows; row++ {
		cols, vals := m.Row(row)
		for i, col := range cols {
			if _, err = fmt.Fprintf(w, "%d %d %d\n", row+1, col+1, vals[i]); err != nil {
				return err
			}
		}
	}
	return w.Flush()
}
