package del

// Stats represents the per-read counters of one pipeline run. Each read
// lands in exactly one primary category (Shorter, Reduced, Longer,
// LowQual, Invalid, OpenedOnly, Unfound, Chimera, or Matched); the
// remaining fields are informational.
type Stats struct {
	// Total counts all reads consumed.
	Total int
	// Shorter counts reads too short to contain a tag region.
	Shorter int
	// Reduced counts reads whose tag-string was shorter than expected.
	Reduced int
	// Longer counts reads whose tag-string was longer than expected.
	Longer int
	// LowQual counts reads rejected by the base-quality gate.
	LowQual int
	// Invalid counts reads with no recognizable 5' anchor.
	Invalid int
	// Opened counts reads that found a 5' anchor but no 3' anchor,
	// regardless of their final category.
	Opened int
	// OpenedOnly counts reads whose only signal was the 5' anchor.
	OpenedOnly int
	// Unfound counts reads with a well-formed tag-string that did not
	// match the inventory.
	Unfound int
	// Chimera counts reads with a repeated tag inside the tag region.
	Chimera int
	// Matched counts reads with a fully identified tag tuple.
	Matched int
	// MatchedRecovered counts matches found on recovery passes.
	MatchedRecovered int
	// Similar counts matched reads that required an indel or a
	// substitution correction.
	Similar int
	// Forward and Reverse partition the matched reads by strand.
	Forward int
	Reverse int
	// Valid is Forward+Reverse.
	Valid int
	// Undedup counts matched reads whose degenerate window could not be
	// extracted.
	Undedup int
	// Deduped is the sum of per-compound deduplicated counts; filled in
	// by Finalize.
	Deduped int
	// MaxTagStringLen tracks the longest tag-string observed.
	MaxTagStringLen int
}

// Merge adds the field values of the two Stats objects and creates a
// new Stats. MaxTagStringLen takes the maximum rather than the sum.
func (s Stats) Merge(o Stats) Stats {
	s.Total += o.Total
	s.Shorter += o.Shorter
	s.Reduced += o.Reduced
	s.Longer += o.Longer
	s.LowQual += o.LowQual
	s.Invalid += o.Invalid
	s.Opened += o.Opened
	s.OpenedOnly += o.OpenedOnly
	s.Unfound += o.Unfound
	s.Chimera += o.Chimera
	s.Matched += o.Matched
	s.MatchedRecovered += o.MatchedRecovered
	s.Similar += o.Similar
	s.Forward += o.Forward
	s.Reverse += o.Reverse
	s.Valid += o.Valid
	s.Undedup += o.Undedup
	s.Deduped += o.Deduped
	if o.MaxTagStringLen > s.MaxTagStringLen {
		s.MaxTagStringLen = o.MaxTagStringLen
	}
	return s
}
