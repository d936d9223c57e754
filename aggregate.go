package del

import (
	"sort"
	"strings"
)

// CompoundKey identifies a compound: the closing primer plus the
// ordered tuple of tag codes, comma-joined so the key is hashable.
type CompoundKey struct {
	CP   ClosingPrimerID
	Tags string
}

func joinCodes(codes []TagCode) string {
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}

func splitCodes(s string) []TagCode {
	parts := strings.Split(s, ",")
	codes := make([]TagCode, len(parts))
	for i, p := range parts {
		codes[i] = TagCode(p)
	}
	return codes
}

// CompoundStats accumulates the per-compound counts while reads flow
// in. The UMI multiset is freed once DedupCount is computed.
type CompoundStats struct {
	Codes     []TagCode
	RawCount  int
	StrandNet int
	UMIs      map[string]int
	NoUMI     int

	// Filled in by Finalize.
	DedupCount int
	Expected   bool
	RawNorm    float64
	DedupNorm  float64
	RawBin     int
	DedupBin   int
	OverLines  [nAxes]float64
	OverPlanes [nAxes]float64
}

// PipelineState is the mutable aggregate of one pipeline run (or of a
// reduction over shard runs). It is single-threaded; shard workers each
// own one and the reducer merges them.
type PipelineState struct {
	Opts  Opts
	Stats Stats

	Compounds map[CompoundKey]*CompoundStats

	// StaticObs keys a multiset of observed static-prefix bases by the
	// expected static sequence, for base-error calibration.
	StaticObs map[string]map[string]int
	// BaseError is the calibrated per-edit-distance base error rate.
	BaseError map[int]float64

	// SimilarEvents counts indel and substitution corrections by label,
	// e.g. "del,3" or "var,7".
	SimilarEvents map[string]int
	// LengthHist is the tag-string length histogram.
	LengthHist map[int]int

	InvalidSeqs []string
	ChimeraSeqs []string
	RecoveryLog []string

	// Over holds the per-structure over-representation entries for the
	// .over output. Filled in by Finalize.
	Over []OverEntry

	finalized bool
}

// NewPipelineState creates an empty state for the given options.
func NewPipelineState(opts Opts) *PipelineState {
	return &PipelineState{
		Opts:          opts,
		Compounds:     map[CompoundKey]*CompoundStats{},
		StaticObs:     map[string]map[string]int{},
		SimilarEvents: map[string]int{},
		LengthHist:    map[int]int{},
	}
}

func (s *PipelineState) collectInvalid() bool  { return s.Opts.CollectInvalid }
func (s *PipelineState) collectChimeras() bool { return s.Opts.CollectChimeras }
func (s *PipelineState) collectRecovery() bool { return s.Opts.CollectRecovery }

// AddMatch folds one matched read into the compound map.
func (s *PipelineState) AddMatch(cp ClosingPrimerID, codes []TagCode, forward bool, umi string, status umiStatus) {
	key := CompoundKey{CP: cp, Tags: joinCodes(codes)}
	cs := s.Compounds[key]
	if cs == nil {
		cs = &CompoundStats{Codes: append([]TagCode{}, codes...), UMIs: map[string]int{}}
		s.Compounds[key] = cs
	}
	cs.RawCount++
	if forward {
		cs.StrandNet++
	} else {
		cs.StrandNet--
	}
	switch status {
	case umiFound:
		cs.UMIs[umi]++
	case umiMissing:
		cs.NoUMI++
		s.Stats.Undedup++
	}
}

// RecordStatic records one observation of the bases at the static
// prefix's expected position.
func (s *PipelineState) RecordStatic(staticSeq, observed string) {
	obs := s.StaticObs[staticSeq]
	if obs == nil {
		obs = map[string]int{}
		s.StaticObs[staticSeq] = obs
	}
	obs[observed]++
}

// Merge folds another (un-finalized) state into s. Counters are
// commutative, so the merged result is independent of shard order.
func (s *PipelineState) Merge(o *PipelineState) {
	s.Stats = s.Stats.Merge(o.Stats)
	for key, ocs := range o.Compounds {
		cs := s.Compounds[key]
		if cs == nil {
			cs = &CompoundStats{Codes: ocs.Codes, UMIs: map[string]int{}}
			s.Compounds[key] = cs
		}
		cs.RawCount += ocs.RawCount
		cs.StrandNet += ocs.StrandNet
		cs.NoUMI += ocs.NoUMI
		for umi, n := range ocs.UMIs {
			cs.UMIs[umi] += n
		}
	}
	for staticSeq, obs := range o.StaticObs {
		for observed, n := range obs {
			sobs := s.StaticObs[staticSeq]
			if sobs == nil {
				sobs = map[string]int{}
				s.StaticObs[staticSeq] = sobs
			}
			sobs[observed] += n
		}
	}
	for label, n := range o.SimilarEvents {
		s.SimilarEvents[label] += n
	}
	for l, n := range o.LengthHist {
		s.LengthHist[l] += n
	}
	s.InvalidSeqs = append(s.InvalidSeqs, o.InvalidSeqs...)
	s.ChimeraSeqs = append(s.ChimeraSeqs, o.ChimeraSeqs...)
	s.RecoveryLog = append(s.RecoveryLog, o.RecoveryLog...)
}

// MatchedPerCP returns the number of matched reads per closing primer,
// the denominator of the normalized counts.
func (s *PipelineState) MatchedPerCP() map[ClosingPrimerID]int {
	out := map[ClosingPrimerID]int{}
	for key, cs := range s.Compounds {
		out[key.CP] += cs.RawCount
	}
	return out
}

// SortedKeys returns the compound keys sorted by raw count descending
// (ties by key), or in unspecified order when the compound count
// exceeds the sort limit.
func (s *PipelineState) SortedKeys() []CompoundKey {
	keys := make([]CompoundKey, 0, len(s.Compounds))
	for key := range s.Compounds {
		keys = append(keys, key)
	}
	if s.Opts.SortLimit > 0 && len(keys) > s.Opts.SortLimit {
		return keys
	}
	sort.Slice(keys, func(i, j int) bool {
		ci, cj := s.Compounds[keys[i]], s.Compounds[keys[j]]
		if ci.RawCount != cj.RawCount {
			return ci.RawCount > cj.RawCount
		}
		if keys[i].CP != keys[j].CP {
			return keys[i].CP < keys[j].CP
		}
		return keys[i].Tags < keys[j].Tags
	})
	return keys
}

// Finalize freezes the state: base-error calibration, per-compound UMI
// deduplication, expectedness, normalization, σ-bins, and the
// over-representation analysis. It must be called exactly once, after
// the read stream (or the shard reduction) ends.
func (s *PipelineState) Finalize(db *TagDB) {
	if s.finalized {
		return
	}
	s.finalized = true

	if !s.Opts.DisableUMI && !s.Opts.DisableDedupClean {
		s.calibrateBaseError()
	}
	matched := s.MatchedPerCP()
	for key, cs := range s.Compounds {
		switch {
		case s.Opts.DisableUMI:
			cs.DedupCount = cs.RawCount
		case len(cs.UMIs) == 0 && cs.NoUMI > 0:
			// Degenerate window never extracted for this compound.
			cs.DedupCount = 1
		case len(cs.UMIs) == 0:
			// Closing primer without a degenerate run.
			cs.DedupCount = cs.RawCount
		case len(cs.UMIs) > s.Opts.MaxDedupUMIs:
			cs.DedupCount = len(cs.UMIs)
		case s.Opts.DisableDedupClean:
			cs.DedupCount = len(cs.UMIs)
		default:
			cs.DedupCount = dedupUMIs(cs.UMIs, s.BaseError, s.Opts.MaxDegenErrors)
		}
		if cs.DedupCount > cs.RawCount {
			cs.DedupCount = cs.RawCount
		}
		s.Stats.Deduped += cs.DedupCount
		cs.UMIs = nil // freed once DedupCount is computed

		cs.Expected = true
		for _, code := range cs.Codes {
			if !db.IsValid(key.CP, code) {
				cs.Expected = false
				break
			}
		}
		if m := matched[key.CP]; m > 0 {
			size := float64(db.LibrarySize(key.CP))
			cs.RawNorm = float64(cs.RawCount) * size / float64(m)
			cs.DedupNorm = float64(cs.DedupCount) * size / float64(m)
		}
	}

	s.computeCompoundBins()
	if !s.Opts.DisableOverrep {
		s.analyzeOverrepresentation()
	}
}
