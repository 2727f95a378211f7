package main

// sc-count converts a sorted, tagged BAM/SAM file into a sparse cell-by-gene
// molecule count matrix.
//
// Usage:
//   sc-count -out matrix input.bam annotation.gtf
//   sc-count -merge -out combined shard0 shard1 ...
//   sc-count -mtx -out matrix counts.mtx rows.txt cols.txt
//
// The input must be sorted by cell barcode, molecule barcode, and gene tag,
// with the gene tag varying fastest (samtools sort -t, or the equivalent
// pipeline step). sc-count trusts that ordering; it does not verify it.

import (
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/scbio/sctools/count"
	"github.com/scbio/sctools/encoding/gtf"
	"v.io/x/lib/vlog"
)

var (
	samInputFlag = flag.Bool("sam", false, "Specify that the input is in SAM format instead of BAM")
	cellTagFlag  = flag.String("cell-tag", count.DefaultOpts.CellBarcodeTag, "Aux tag holding the cell barcode")
	umiTagFlag   = flag.String("umi-tag", count.DefaultOpts.MoleculeBarcodeTag, "Aux tag holding the molecule barcode")
	geneTagFlag  = flag.String("gene-tag", count.DefaultOpts.GeneIDTag, "Aux tag holding the gene ID")
	mapqFlag     = flag.Int("mapq", count.DefaultOpts.MapqThreshold, "Records with mapping quality below this value are skipped; 255 excludes multi-aligned records the way Cell Ranger does")
	outFlag      = flag.String("out", "sc-count", "Output path prefix")
	mergeFlag    = flag.Bool("merge", false, "Merge matrices persisted under the given prefixes into one matrix")
	mtxFlag      = flag.Bool("mtx", false, "Import a MatrixMarket triple (mtxpath rowpath colpath) and persist it natively")
	writeMtxFlag = flag.Bool("write-mtx", false, "Also write the result as MatrixMarket text next to the native artifacts")
	progressFlag = flag.Int("print-progress", 10000000, "Log progress every this many records; 0 disables")
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] {b,s}ampath gtfpath\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "       %s -merge [OPTIONS] prefix...\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "       %s -mtx [OPTIONS] mtxpath rowpath colpath\n", os.Args[0])
	flag.PrintDefaults()
}

// openInput creates a BAM or SAM reader for the given path, "-" for stdin.
func openInput(inPath string) count.RecordReader {
	var in io.Reader
	if inPath == "-" {
		in = os.Stdin
	} else {
		ctx := vcontext.Background()
		f, err := file.Open(ctx, inPath) // Note: f is leaked.
		if err != nil {
			log.Fatalf("open %v: %v", inPath, err)
		}
		in = f.Reader(ctx)
	}

	var err error
	var reader count.RecordReader
	if *samInputFlag {
		reader, err = sam.NewReader(in)
		if err != nil {
			log.Fatalf("open %v: failed to open SAM: %v", inPath, err)
		}
	} else {
		reader, err = bam.NewReader(in, runtime.NumCPU())
		if err != nil {
			log.Fatalf("open %v: failed to open BAM: %v", inPath, err)
		}
	}
	return reader
}

// progressIterator wraps a RecordIterator and logs every n records.
type progressIterator struct {
	count.RecordIterator
	n    int
	seen int64
}

func (i *progressIterator) Scan() bool {
	if !i.RecordIterator.Scan() {
		return false
	}
	i.seen++
	if i.n > 0 && i.seen%int64(i.n) == 0 {
		vlog.VI(1).Infof("scanned %d records", i.seen)
	}
	return true
}

func aggregate(alignPath, gtfPath string) *count.Matrix {
	ctx := vcontext.Background()

	annotation, err := gtf.Open(ctx, gtfPath)
	if err != nil {
		log.Fatalf("open %v: %v", gtfPath, err)
	}
	genes, err := count.BuildGeneIndex(annotation)
	if err != nil {
		log.Fatalf("index %v: %v", gtfPath, err)
	}
	if err := annotation.Close(ctx); err != nil {
		log.Fatalf("close %v: %v", gtfPath, err)
	}
	log.Printf("Indexed %d genes from %s", genes.Len(), gtfPath)

	opts := count.Opts{
		CellBarcodeTag:     *cellTagFlag,
		MoleculeBarcodeTag: *umiTagFlag,
		GeneIDTag:          *geneTagFlag,
		MapqThreshold:      *mapqFlag,
	}
	iter := &progressIterator{
		RecordIterator: count.NewReaderIterator(openInput(alignPath)),
		n:              *progressFlag,
	}
	entries, cells, err := count.Aggregate(iter, genes, opts)
	if err != nil {
		log.Fatalf("aggregate %v: %v", alignPath, err)
	}
	log.Printf("Scanned %d records: %d molecules over %d cells x %d genes",
		iter.seen, len(entries), cells.Len(), genes.Len())

	m, err := count.FromEntries(entries, cells.Barcodes(), genes.IDs())
	if err != nil {
		log.Fatalf("build matrix: %v", err)
	}
	return m
}

func merge(prefixes []string) *count.Matrix {
	ctx := vcontext.Background()
	m, err := count.MergePrefixes(ctx, prefixes)
	if err != nil {
		log.Fatalf("merge: %v", err)
	}
	return m
}

func importMtx(mtxPath, rowPath, colPath string) *count.Matrix {
	ctx := vcontext.Background()
	m, err := count.ImportMTX(ctx, mtxPath, rowPath, colPath)
	if err != nil {
		log.Fatalf("import %v: %v", mtxPath, err)
	}
	return m
}

func main() {
	flag.Usage = usage
	shutdown := grail.Init()
	defer shutdown()

	args := flag.Args()
	var m *count.Matrix
	switch {
	case *mergeFlag && *mtxFlag:
		log.Fatalf("-merge and -mtx are mutually exclusive")
	case *mergeFlag:
		if len(args) < 1 {
			log.Fatalf("-merge requires at least one persisted matrix prefix")
		}
		m = merge(args)
	case *mtxFlag:
		if len(args) != 3 {
			log.Fatalf("-mtx requires exactly three arguments: mtxpath rowpath colpath")
		}
		m = importMtx(args[0], args[1], args[2])
	default:
		if len(args) != 2 {
			log.Fatalf("expected two positional arguments ({b,s}ampath and gtfpath); got %d", len(args))
		}
		m = aggregate(args[0], args[1])
	}

	ctx := vcontext.Background()
	if err := count.Save(ctx, m, *outFlag); err != nil {
		log.Fatalf("save %v: %v", *outFlag, err)
	}
	if *writeMtxFlag {
		err := count.ExportMTX(ctx, m, *outFlag+".mtx", *outFlag+".rows.txt", *outFlag+".cols.txt")
		if err != nil {
			log.Fatalf("export %v: %v", *outFlag, err)
		}
	}
	rows, cols := m.Dims()
	log.Printf("Wrote %dx%d matrix (%d entries) under prefix %s", rows, cols, m.NNZ(), *outFlag)
}
