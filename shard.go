package del

import (
	"bufio"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/pkg/errors"
)

// Shard artifacts are line-oriented so the reducer can stream them:
// each compound is one comma-separated record
//
//	tag1,…,tagC,cpId,count,strandNet,umi1;umi2;…
//
// with an explicit field count of C+4. UMI multisets are expanded on
// write and re-counted on read, so concatenating shard artifacts is
// equivalent to processing the reads in any order. The companion shard
// log carries the counters and the calibration multisets.

// WriteShardTags writes the per-compound artifact of one shard worker.
func (s *PipelineState) WriteShardTags(ctx context.Context, path string, nCycles int) error {
	return withOutput(ctx, path, func(w *bufio.Writer) error {
		for key, cs := range s.Compounds {
			umis := make([]string, 0, len(cs.UMIs))
			for u, n := range cs.UMIs {
				for i := 0; i < n; i++ {
					umis = append(umis, u)
				}
			}
			sort.Strings(umis)
			_, err := fmt.Fprintf(w, "%s,%s,%d,%d,%s\n",
				key.Tags, key.CP, cs.RawCount, cs.StrandNet, strings.Join(umis, ";"))
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ReadShardTags streams one shard artifact into s, merging compound
// counts and concatenating UMI multisets. degenCPs marks the closing
// primers that carry a degenerate run; only their compounds can have
// missing windows.
func (s *PipelineState) ReadShardTags(ctx context.Context, path string, nCycles int, degenCPs map[ClosingPrimerID]bool) error {
	in, err := file.Open(ctx, path)
	if err != nil {
		return err
	}
	defer in.Close(ctx) // nolint: errcheck
	sc := bufio.NewScanner(in.Reader(ctx))
	sc.Buffer(make([]byte, 1024*1024), 64*1024*1024)
	nLine := 0
	for sc.Scan() {
		nLine++
		line := sc.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != nCycles+4 {
			return errors.Errorf("%s:%d: got %d fields, want %d", path, nLine, len(fields), nCycles+4)
		}
		key := CompoundKey{
			CP:   ClosingPrimerID(fields[nCycles]),
			Tags: strings.Join(fields[:nCycles], ","),
		}
		count, err := strconv.Atoi(fields[nCycles+1])
		if err != nil {
			return errors.Wrapf(err, "%s:%d: count", path, nLine)
		}
		strandNet, err := strconv.Atoi(fields[nCycles+2])
		if err != nil {
			return errors.Wrapf(err, "%s:%d: strandNet", path, nLine)
		}
		cs := s.Compounds[key]
		if cs == nil {
			cs = &CompoundStats{Codes: splitCodes(key.Tags), UMIs: map[string]int{}}
			s.Compounds[key] = cs
		}
		cs.RawCount += count
		cs.StrandNet += strandNet
		nUMIs := 0
		if fields[nCycles+3] != "" {
			for _, u := range strings.Split(fields[nCycles+3], ";") {
				cs.UMIs[u]++
				nUMIs++
			}
		}
		// Reads without an extractable window are the count not covered
		// by the UMI list.
		if degenCPs[key.CP] {
			cs.NoUMI += count - nUMIs
		}
	}
	return sc.Err()
}

// WriteShardLog writes the counters and calibration multisets of one
// shard worker.
func (s *PipelineState) WriteShardLog(ctx context.Context, path string) error {
	st := s.Stats
	return withOutput(ctx, path, func(w *bufio.Writer) error {
		counters := []struct {
			name  string
			value int
		}{
			{"total", st.Total},
			{"shorter", st.Shorter},
			{"reduced", st.Reduced},
			{"longer", st.Longer},
			{"lowQual", st.LowQual},
			{"invalid", st.Invalid},
			{"opened", st.Opened},
			{"openedOnly", st.OpenedOnly},
			{"unfound", st.Unfound},
			{"chimera", st.Chimera},
			{"matched", st.Matched},
			{"matchedRecovered", st.MatchedRecovered},
			{"similar", st.Similar},
			{"forward", st.Forward},
			{"reverse", st.Reverse},
			{"valid", st.Valid},
			{"undedup", st.Undedup},
			{"maxTagStringLen", st.MaxTagStringLen},
		}
		for _, c := range counters {
			if _, err := fmt.Fprintf(w, "counter\t%s\t%d\n", c.name, c.value); err != nil {
				return err
			}
		}
		for staticSeq, obs := range s.StaticObs {
			for observed, n := range obs {
				if _, err := fmt.Fprintf(w, "staticobs\t%s\t%s\t%d\n", staticSeq, observed, n); err != nil {
					return err
				}
			}
		}
		for label, n := range s.SimilarEvents {
			if _, err := fmt.Fprintf(w, "similar\t%s\t%d\n", label, n); err != nil {
				return err
			}
		}
		for l, n := range s.LengthHist {
			if _, err := fmt.Fprintf(w, "length\t%d\t%d\n", l, n); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReadShardLog folds one shard log into s.
func (s *PipelineState) ReadShardLog(ctx context.Context, path string) error {
	in, err := file.Open(ctx, path)
	if err != nil {
		return err
	}
	defer in.Close(ctx) // nolint: errcheck
	sc := bufio.NewScanner(in.Reader(ctx))
	st := Stats{}
	nLine := 0
	for sc.Scan() {
		nLine++
		line := sc.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		bad := func() error {
			return errors.Errorf("%s:%d: malformed shard log line %q", path, nLine, line)
		}
		switch fields[0] {
		case "counter":
			if len(fields) != 3 {
				return bad()
			}
			v, err := strconv.Atoi(fields[2])
			if err != nil {
				return bad()
			}
			switch fields[1] {
			case "total":
				st.Total = v
			case "shorter":
				st.Shorter = v
			case "reduced":
				st.Reduced = v
			case "longer":
				st.Longer = v
			case "lowQual":
				st.LowQual = v
			case "invalid":
				st.Invalid = v
			case "opened":
				st.Opened = v
			case "openedOnly":
				st.OpenedOnly = v
			case "unfound":
				st.Unfound = v
			case "chimera":
				st.Chimera = v
			case "matched":
				st.Matched = v
			case "matchedRecovered":
				st.MatchedRecovered = v
			case "similar":
				st.Similar = v
			case "forward":
				st.Forward = v
			case "reverse":
				st.Reverse = v
			case "valid":
				st.Valid = v
			case "undedup":
				st.Undedup = v
			case "maxTagStringLen":
				st.MaxTagStringLen = v
			default:
				return bad()
			}
		case "staticobs":
			if len(fields) != 4 {
				return bad()
			}
			n, err := strconv.Atoi(fields[3])
			if err != nil {
				return bad()
			}
			obs := s.StaticObs[fields[1]]
			if obs == nil {
				obs = map[string]int{}
				s.StaticObs[fields[1]] = obs
			}
			obs[fields[2]] += n
		case "similar":
			if len(fields) != 3 {
				return bad()
			}
			n, err := strconv.Atoi(fields[2])
			if err != nil {
				return bad()
			}
			s.SimilarEvents[fields[1]] += n
		case "length":
			if len(fields) != 3 {
				return bad()
			}
			l, err := strconv.Atoi(fields[1])
			if err != nil {
				return bad()
			}
			n, err := strconv.Atoi(fields[2])
			if err != nil {
				return bad()
			}
			s.LengthHist[l] += n
		default:
			return bad()
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	s.Stats = s.Stats.Merge(st)
	return nil
}

// Reduce merges the artifacts of n shard workers into a fresh state.
// Aggregated counters are commutative, so the result is independent of
// shard scheduling; the UMI dedup sweep runs on the merged multisets,
// which is equivalent to a single-shard run.
func Reduce(ctx context.Context, tagPaths, logPaths []string, opts Opts, nCycles int, degenCPs map[ClosingPrimerID]bool) (*PipelineState, error) {
	merged := NewPipelineState(opts)
	for _, p := range tagPaths {
		if err := merged.ReadShardTags(ctx, p, nCycles, degenCPs); err != nil {
			return nil, err
		}
	}
	for _, p := range logPaths {
		if err := merged.ReadShardLog(ctx, p); err != nil {
			return nil, err
		}
	}
	return merged, nil
}
