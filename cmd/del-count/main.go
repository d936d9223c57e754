package main

// del-count decodes DNA-encoded-library sequencing reads. Every read is
// expected to contain the per-cycle tags between a head piece and a
// closing primer; the tool locates the tag region, identifies the tags
// against the inventory, collapses PCR duplicates via the degenerate
// window of the closing primer, and reports per-compound counts plus
// over-represented tags and tag pairs.
//
// Example:
//
//	del-count -f reads.fastq.gz -t tags.tsv -h CAGGTCAG -p CCAGCANNNNCA -a 5 -s

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"

	"github.com/grailbio/del"
)

type cliFlags struct {
	fastqPath      string
	tagFiles       string
	headPieces     string
	overhangs      string
	closingPrimers string
	validPatterns  string
	invalidPattern string
	degenCombo     string
	configPath     string
	shards         int

	writeInvalid   bool
	writeChimeras  bool
	writeLengths   bool
	writeErrors    bool
	writeTagCounts bool
	writeExpected  bool
	writeExisting  bool
	recoveryLog    bool
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// tagFileSpecs normalizes the CLI "path:libA:libB" syntax to the
// "path;libA;libB" form the inventory loader takes.
func tagFileSpecs(arg string) []string {
	specs := splitList(arg)
	for i, s := range specs {
		specs[i] = strings.Replace(s, ":", ";", -1)
	}
	return specs
}

// outputPrefix derives the output file prefix from the input path:
// "runs/lib1.fastq.gz" becomes "tags_lib1".
func outputPrefix(fastqPath string) string {
	base := filepath.Base(fastqPath)
	for {
		ext := filepath.Ext(base)
		if ext == "" {
			break
		}
		base = base[:len(base)-len(ext)]
	}
	return "tags_" + base
}

func main() {
	flags := cliFlags{}
	opts := del.DefaultOpts

	flag.StringVar(&flags.fastqPath, "f", "", "Input FASTQ file, plain or gzipped. Required.")
	flag.StringVar(&flags.tagFiles, "t", "", "Comma-separated tag-table files; an optional :libA:libB suffix restricts the honored library columns.")
	flag.StringVar(&flags.headPieces, "h", "", "Comma-separated head-piece sequences.")
	flag.StringVar(&flags.overhangs, "o", "", "Comma-separated overhang sequences between consecutive cycles.")
	flag.StringVar(&flags.closingPrimers, "p", "", "Comma-separated closing primers; an optional label- prefix names the primer.")
	flag.IntVar(&opts.AnchorSize, "a", del.DefaultOpts.AnchorSize, "Anchor size used to locate the tag region.")
	flag.IntVar(&opts.MinBaseQuality, "q", del.DefaultOpts.MinBaseQuality, "Minimum base quality inside the tag region (phred-33).")
	flag.BoolVar(&opts.LeftAnchored, "l", false, "Accept reads where only the 5' anchor was found.")
	flag.BoolVar(&opts.Similar, "s", false, "Enable similar search: one substitution per cycle.")
	flag.BoolVar(&opts.SimilarStrict, "S", false, "Enable strict similar search: one error per tag-string. Implies -s.")
	flag.BoolVar(&opts.ReverseCycles, "i", false, "Reverse-complement tags from even cycles while loading the inventory.")
	flag.BoolVar(&opts.DisableUMI, "N", false, "Disable degenerate-region (UMI) handling.")
	flag.BoolVar(&opts.DisableOverrep, "O", false, "Disable the over-representation analysis.")
	flag.BoolVar(&opts.DisableDedupClean, "D", false, "Disable the error-aware UMI cleanup.")
	flag.StringVar(&flags.validPatterns, "v", "", "Comma-separated valid-tag rules of the form cp1;cp2;…;regex.")
	flag.StringVar(&flags.invalidPattern, "V", "", "Comma-separated invalid-tag rules of the form cp1;cp2;…;regex.")
	flag.BoolVar(&opts.ExcludeUnexpected, "W", false, "Exclude unexpected compounds from the output. Implies -v/-V semantics.")
	flag.StringVar(&flags.degenCombo, "d", "", "Dump the UMI distribution of one compound (comma-joined tag codes).")
	flag.BoolVar(&opts.Recovery, "r", false, "Recovery mode: re-enter the classifier on the residual sequence.")
	flag.BoolVar(&flags.recoveryLog, "R", false, "Write the recovery log.")
	flag.IntVar(&opts.MaxReads, "T", 0, "Stop after this many reads. Zero means unlimited.")
	flag.IntVar(&flags.shards, "x", 1, "Shard the input into this many workers.")
	flag.BoolVar(&flags.writeInvalid, "I", false, "Write the sequences of invalid reads (no 5' anchor found).")
	flag.BoolVar(&flags.writeChimeras, "X", false, "Write chimeric read sequences.")
	flag.BoolVar(&flags.writeLengths, "L", false, "Write the tag-string length histogram.")
	flag.BoolVar(&flags.writeErrors, "E", false, "Write the calibrated base-error rates.")
	flag.BoolVar(&flags.writeExisting, "c", false, "Write the distinct tag codes observed per cycle.")
	flag.BoolVar(&flags.writeExpected, "e", false, "Write the expected tag codes per closing primer.")
	flag.BoolVar(&flags.writeTagCounts, "w", false, "Write per-cycle totals of identified tag codes.")
	flag.StringVar(&flags.configPath, "config", "", "Optional defaults file; the first record whose glob matches the input populates unset values.")
	flag.Parse()

	cleanup := grail.Init()
	defer cleanup()
	ctx := vcontext.Background()

	if flags.configPath != "" {
		if err := applyConfig(ctx, flags.configPath, &flags, &opts); err != nil {
			log.Fatalf("config %s: %v", flags.configPath, err)
		}
	}
	if flags.fastqPath == "" {
		fmt.Fprintln(os.Stderr, "del-count: -f is required")
		flag.Usage()
		os.Exit(2)
	}
	if opts.SimilarStrict {
		opts.Similar = true
	}
	opts.RestrictValid = flags.validPatterns != "" || flags.invalidPattern != "" || opts.ExcludeUnexpected
	opts.CollectInvalid = flags.writeInvalid
	opts.CollectChimeras = flags.writeChimeras
	opts.CollectRecovery = flags.recoveryLog

	db, err := del.ReadTagFiles(ctx, tagFileSpecs(flags.tagFiles), opts)
	if err != nil {
		log.Fatalf("tag inventory: %v", err)
	}
	ps, err := del.CompilePrimers(
		splitList(flags.headPieces),
		splitList(flags.closingPrimers),
		splitList(flags.overhangs),
		db, opts)
	if err != nil {
		log.Fatalf("primer compilation: %v", err)
	}
	if err := db.Bind(ps.Closing); err != nil {
		log.Fatalf("tag inventory: %v", err)
	}
	if err := db.AddValidPatterns(splitList(flags.validPatterns)); err != nil {
		log.Fatalf("valid patterns: %v", err)
	}
	if err := db.AddInvalidPatterns(splitList(flags.invalidPattern)); err != nil {
		log.Fatalf("invalid patterns: %v", err)
	}

	var state *del.PipelineState
	if flags.shards > 1 {
		state, err = runSharded(ctx, flags.fastqPath, flags.shards, db, ps, opts)
	} else {
		state, err = runPipeline(ctx, flags.fastqPath, db, ps, opts)
	}
	if err != nil {
		log.Fatalf("pipeline: %v", err)
	}

	prefix := outputPrefix(flags.fastqPath)
	if flags.degenCombo != "" {
		// The UMI multisets are freed by Finalize; dump them first.
		if err := state.WriteDegen(ctx, prefix+".degen", flags.degenCombo); err != nil {
			log.Fatalf("write degen: %v", err)
		}
	}
	state.Finalize(db)

	writers := []struct {
		enabled bool
		name    string
		write   func(path string) error
	}{
		{true, ".allTags", func(p string) error { return state.WriteAllTags(ctx, p, db) }},
		{state.Stats.Unfound > state.Stats.Matched, ".filtered",
			func(p string) error { return state.WriteFiltered(ctx, p, db) }},
		{!opts.DisableOverrep, ".over", func(p string) error { return state.WriteOver(ctx, p) }},
		{true, ".log", func(p string) error { return state.WriteLog(ctx, p) }},
		{flags.writeInvalid, ".invalid", func(p string) error { return del.WriteSeqs(ctx, p, state.InvalidSeqs) }},
		{flags.writeChimeras, ".chimeras", func(p string) error { return del.WriteSeqs(ctx, p, state.ChimeraSeqs) }},
		{flags.recoveryLog, ".recovery", func(p string) error { return del.WriteSeqs(ctx, p, state.RecoveryLog) }},
		{flags.writeLengths, ".lengths", func(p string) error { return state.WriteLengths(ctx, p) }},
		{flags.writeErrors, ".errors", func(p string) error { return state.WriteErrors(ctx, p) }},
		{flags.writeTagCounts, ".tagcounts", func(p string) error { return state.WriteTagCounts(ctx, p) }},
		{flags.writeExisting, ".existingtags", func(p string) error { return state.WriteExistingTags(ctx, p) }},
		{flags.writeExpected, ".expected", func(p string) error { return del.WriteExpected(ctx, p, db, ps.Closing) }},
	}
	for _, o := range writers {
		if !o.enabled {
			continue
		}
		if err := o.write(prefix + o.name); err != nil {
			log.Fatalf("write %s%s: %v", prefix, o.name, err)
		}
	}
	st := state.Stats
	log.Printf("Stats: %d reads, %d matched (%d recovered), %d similar, %d unfound, %d chimera",
		st.Total, st.Matched, st.MatchedRecovered, st.Similar, st.Unfound, st.Chimera)
	log.Printf("All done")
}
