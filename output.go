package del

import (
	"bufio"
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// withOutput opens path for writing, hands a buffered writer to fn, and
// flushes and closes, collecting every error.
func withOutput(ctx context.Context, path string, fn func(w *bufio.Writer) error) error {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(out.Writer(ctx))
	once := errors.Once{}
	once.Set(fn(w))
	once.Set(w.Flush())
	once.Set(out.Close(ctx))
	return once.Err()
}

var allTagsColumns = []string{
	"CP", "RAW", "DEDUP", "STRANDBIAS", "RAW_NORM", "DEDUP_NORM", "EXPECTED",
}

var overColumns = []string{
	"SDCOUNT_RAW", "SDCOUNT_DEDUP",
	"OVER_RAW_LINES", "OVER_DEDUP_LINES", "OVER_UNIQUE_LINES",
	"OVER_RAW_PLANES", "OVER_DEDUP_PLANES", "OVER_UNIQUE_PLANES",
}

func writeCompoundRow(w *bufio.Writer, key CompoundKey, cs *CompoundStats, withOver bool) error {
	for _, code := range cs.Codes {
		if _, err := w.WriteString(string(code)); err != nil {
			return err
		}
		if err := w.WriteByte('\t'); err != nil {
			return err
		}
	}
	strandBias := 0.0
	if cs.RawCount > 0 {
		strandBias = float64(abs(cs.StrandNet)) / float64(cs.RawCount)
	}
	expected := 0
	if cs.Expected {
		expected = 1
	}
	_, err := fmt.Fprintf(w, "%s\t%d\t%d\t%.3f\t%.4f\t%.4f\t%d",
		key.CP, cs.RawCount, cs.DedupCount, strandBias, cs.RawNorm, cs.DedupNorm, expected)
	if err != nil {
		return err
	}
	if withOver {
		_, err = fmt.Fprintf(w, "\t%d\t%d\t%.1f\t%.1f\t%.1f\t%.1f\t%.1f\t%.1f",
			cs.RawBin, cs.DedupBin,
			cs.OverLines[axisRaw], cs.OverLines[axisDedup], cs.OverLines[axisUnique],
			cs.OverPlanes[axisRaw], cs.OverPlanes[axisDedup], cs.OverPlanes[axisUnique])
		if err != nil {
			return err
		}
	}
	return w.WriteByte('\n')
}

func writeHeader(w *bufio.Writer, nCycles int, withOver bool) error {
	for i := 0; i < nCycles; i++ {
		if _, err := fmt.Fprintf(w, "TAG%d\t", i+1); err != nil {
			return err
		}
	}
	for i, col := range allTagsColumns {
		if i > 0 {
			if err := w.WriteByte('\t'); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(col); err != nil {
			return err
		}
	}
	if withOver {
		for _, col := range overColumns {
			if err := w.WriteByte('\t'); err != nil {
				return err
			}
			if _, err := w.WriteString(col); err != nil {
				return err
			}
		}
	}
	return w.WriteByte('\n')
}

// WriteAllTags emits one row per compound, sorted by raw count
// descending when under the sort limit.
func (s *PipelineState) WriteAllTags(ctx context.Context, path string, db *TagDB) error {
	withOver := !s.Opts.DisableOverrep
	return withOutput(ctx, path, func(w *bufio.Writer) error {
		if err := writeHeader(w, db.NumCycles(), withOver); err != nil {
			return err
		}
		for _, key := range s.SortedKeys() {
			cs := s.Compounds[key]
			if s.Opts.ExcludeUnexpected && !cs.Expected {
				continue
			}
			if err := writeCompoundRow(w, key, cs, withOver); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteFiltered emits the rows restricted to expected compounds.
func (s *PipelineState) WriteFiltered(ctx context.Context, path string, db *TagDB) error {
	withOver := !s.Opts.DisableOverrep
	return withOutput(ctx, path, func(w *bufio.Writer) error {
		if err := writeHeader(w, db.NumCycles(), withOver); err != nil {
			return err
		}
		for _, key := range s.SortedKeys() {
			cs := s.Compounds[key]
			if !cs.Expected {
				continue
			}
			if err := writeCompoundRow(w, key, cs, withOver); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteOver emits the over-represented structures.
func (s *PipelineState) WriteOver(ctx context.Context, path string) error {
	return withOutput(ctx, path, func(w *bufio.Writer) error {
		if _, err := fmt.Fprintln(w, "CP\tTYPE\tSTRUCTURE\tVALUE\tSDBIN"); err != nil {
			return err
		}
		for _, e := range s.Over {
			if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%.0f\t%d\n",
				e.CP, e.Axis, e.Structure, e.Value, e.Bin); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteLog emits the human-readable counter summary.
func (s *PipelineState) WriteLog(ctx context.Context, path string) error {
	st := s.Stats
	return withOutput(ctx, path, func(w *bufio.Writer) error {
		lines := []struct {
			name  string
			value int
		}{
			{"total", st.Total},
			{"matched", st.Matched},
			{"matchedRecovered", st.MatchedRecovered},
			{"valid", st.Valid},
			{"forward", st.Forward},
			{"reverse", st.Reverse},
			{"similar", st.Similar},
			{"shorter", st.Shorter},
			{"reduced", st.Reduced},
			{"longer", st.Longer},
			{"lowQual", st.LowQual},
			{"invalid", st.Invalid},
			{"opened", st.Opened},
			{"openedOnly", st.OpenedOnly},
			{"unfound", st.Unfound},
			{"chimera", st.Chimera},
			{"undedup", st.Undedup},
			{"deduped", st.Deduped},
			{"uniqueCompounds", len(s.Compounds)},
			{"maxTagStringLen", st.MaxTagStringLen},
		}
		for _, l := range lines {
			if _, err := fmt.Fprintf(w, "%s\t%d\n", l.name, l.value); err != nil {
				return err
			}
		}
		if len(s.SimilarEvents) > 0 {
			labels := make([]string, 0, len(s.SimilarEvents))
			for l := range s.SimilarEvents {
				labels = append(labels, l)
			}
			sort.Strings(labels)
			for _, l := range labels {
				if _, err := fmt.Fprintf(w, "similar[%s]\t%d\n", l, s.SimilarEvents[l]); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// WriteLengths emits the tag-string length histogram.
func (s *PipelineState) WriteLengths(ctx context.Context, path string) error {
	return withOutput(ctx, path, func(w *bufio.Writer) error {
		lengths := make([]int, 0, len(s.LengthHist))
		for l := range s.LengthHist {
			lengths = append(lengths, l)
		}
		sort.Ints(lengths)
		for _, l := range lengths {
			if _, err := fmt.Fprintf(w, "%d\t%d\n", l, s.LengthHist[l]); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteErrors emits the calibrated base error rates.
func (s *PipelineState) WriteErrors(ctx context.Context, path string) error {
	return withOutput(ctx, path, func(w *bufio.Writer) error {
		dists := make([]int, 0, len(s.BaseError))
		for e := range s.BaseError {
			dists = append(dists, e)
		}
		sort.Ints(dists)
		for _, e := range dists {
			if _, err := fmt.Fprintf(w, "%d\t%g\n", e, s.BaseError[e]); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteSeqs dumps a plain list of sequences (invalid reads, chimeras,
// recovery residues).
func WriteSeqs(ctx context.Context, path string, seqs []string) error {
	return withOutput(ctx, path, func(w *bufio.Writer) error {
		for _, s := range seqs {
			if _, err := w.WriteString(s); err != nil {
				return err
			}
			if err := w.WriteByte('\n'); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteDegen dumps the UMI distribution of the compounds whose tag
// tuple matches combo. It must be called before Finalize, which frees
// the multisets.
func (s *PipelineState) WriteDegen(ctx context.Context, path, combo string) error {
	return withOutput(ctx, path, func(w *bufio.Writer) error {
		for key, cs := range s.Compounds {
			if key.Tags != combo {
				continue
			}
			umis := make([]string, 0, len(cs.UMIs))
			for u := range cs.UMIs {
				umis = append(umis, u)
			}
			sort.Slice(umis, func(i, j int) bool {
				if cs.UMIs[umis[i]] != cs.UMIs[umis[j]] {
					return cs.UMIs[umis[i]] > cs.UMIs[umis[j]]
				}
				return umis[i] < umis[j]
			})
			for _, u := range umis {
				if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", key.CP, key.Tags, u, cs.UMIs[u]); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// WriteTagCounts emits per-cycle totals of the observed tag codes.
func (s *PipelineState) WriteTagCounts(ctx context.Context, path string) error {
	counts := map[string]int{}
	for _, cs := range s.Compounds {
		for i, code := range cs.Codes {
			counts["cycle"+strconv.Itoa(i+1)+"\t"+string(code)] += cs.RawCount
		}
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return withOutput(ctx, path, func(w *bufio.Writer) error {
		for _, k := range keys {
			if _, err := fmt.Fprintf(w, "%s\t%d\n", k, counts[k]); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteExistingTags dumps the distinct tag codes observed per cycle.
func (s *PipelineState) WriteExistingTags(ctx context.Context, path string) error {
	seen := map[string]bool{}
	for _, cs := range s.Compounds {
		for i, code := range cs.Codes {
			seen["cycle"+strconv.Itoa(i+1)+"\t"+string(code)] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return withOutput(ctx, path, func(w *bufio.Writer) error {
		for _, k := range keys {
			if _, err := w.WriteString(k); err != nil {
				return err
			}
			if err := w.WriteByte('\n'); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteExpected dumps the valid tag codes per closing primer.
func WriteExpected(ctx context.Context, path string, db *TagDB, primers []*ClosingPrimer) error {
	return withOutput(ctx, path, func(w *bufio.Writer) error {
		for _, cp := range primers {
			set := db.ValidTagCodes(cp.ID)
			if set == nil {
				if _, err := fmt.Fprintf(w, "%s\tall\n", cp.ID); err != nil {
					return err
				}
				continue
			}
			codes := make([]string, 0, len(set))
			for code := range set {
				codes = append(codes, string(code))
			}
			sort.Strings(codes)
			for _, code := range codes {
				if _, err := fmt.Fprintf(w, "%s\t%s\n", cp.ID, code); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
