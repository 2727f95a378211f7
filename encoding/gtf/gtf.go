// Package gtf implements a streaming reader for GTF/GFF2 annotation files.
// It exposes each feature line as a Record with lazy key/value access to the
// attribute column, plus an optional feature-type filter, which is all the
// downstream count-matrix code needs from an annotation.
package gtf

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
)

// Record holds one feature line of a GTF file. The ninth (attribute) column
// is kept raw in Attrs; use Attribute to look up individual keys.
type Record struct {
	Chrom   string
	Source  string
	Feature string
	Start   int
	Stop    int
	Score   string // unused floating point value, but may be "."
	Strand  string
	Frame   string
	Attrs   string

	parsedAttrs map[string]string
}

// Attribute returns the value for the given attribute key, e.g. "gene_name".
// The second return value is false if the key is not present. An attribute
// written as gene_name "" is present with an empty value.
func (r *Record) Attribute(key string) (string, bool) {
	if r.parsedAttrs == nil {
		r.parsedAttrs = map[string]string{}
		for _, field := range strings.Split(strings.TrimSpace(r.Attrs), ";") {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			pair := strings.SplitN(field, " ", 2)
			if len(pair) != 2 {
				continue
			}
			r.parsedAttrs[pair[0]] = strings.Trim(pair[1], "\"")
		}
	}
	v, ok := r.parsedAttrs[key]
	return v, ok
}

// Reader reads GTF records in file order. Thread compatible.
type Reader struct {
	scanner *tsv.Reader
	retain  map[string]struct{}
	in      file.File // non-nil only for readers created by Open
	rec     Record
	err     error
}

// gtfLine mirrors the nine tab-separated GTF columns for tsv decoding.
type gtfLine struct {
	Chrom   string
	Source  string
	Feature string
	Start   int
	Stop    int
	Score   string
	Strand  string
	Frame   string
	Attrs   string
}

// NewReader creates a Reader for GTF text. Lines starting with '#' are
// skipped.
func NewReader(in io.Reader) *Reader {
	scanner := tsv.NewReader(bufio.NewReaderSize(in, 64<<10))
	scanner.Comment = '#'
	scanner.LazyQuotes = true
	return &Reader{scanner: scanner}
}

// Open creates a Reader for the GTF file at path. Gzipped files are
// decompressed transparently based on the path suffix. Close must be called
// on the returned reader.
func Open(ctx context.Context, path string) (*Reader, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "gtf.Open", path)
	}
	var inr io.Reader = in.Reader(ctx)
	u, _ := compress.NewReaderPath(inr, in.Name())
	inr = u
	r := NewReader(inr)
	r.in = in
	return r, nil
}

// Retain restricts the reader to records whose Feature field is one of the
// given types (e.g. "gene"). It must be called before the first Scan.
func (r *Reader) Retain(types ...string) {
	r.retain = map[string]struct{}{}
	for _, t := range types {
		r.retain[t] = struct{}{}
	}
}

// Scan advances to the next (retained) record. It returns false at end of
// input or on error; check Err after the loop.
func (r *Reader) Scan() bool {
	if r.err != nil {
		return false
	}
	for {
		var line gtfLine
		if err := r.scanner.Read(&line); err != nil {
			if err != io.EOF {
				r.err = err
			}
			return false
		}
		if r.retain != nil {
			if _, ok := r.retain[line.Feature]; !ok {
				continue
			}
		}
		r.rec = Record{
			Chrom:   line.Chrom,
			Source:  line.Source,
			Feature: line.Feature,
			Start:   line.Start,
			Stop:    line.Stop,
			Score:   line.Score,
			Strand:  line.Strand,
			Frame:   line.Frame,
			Attrs:   line.Attrs,
		}
		return true
	}
}

// Record returns the current record. It is valid until the next Scan call.
func (r *Reader) Record() *Record { return &r.rec }

// Err returns the error encountered during scanning, if any.
func (r *Reader) Err() error { return r.err }

// Close releases the underlying file for readers created by Open. It is a
// no-op for readers created by NewReader.
func (r *Reader) Close(ctx context.Context) error {
	if r.in == nil {
		return nil
	}
	return r.in.Close(ctx)
}
