package del

// Opts carries the knobs of the tag-counting pipeline. A zero value is
// not useful; start from DefaultOpts.
type Opts struct {
	// AnchorSize is the number of primer bases used to locate the tag
	// region on either side.
	AnchorSize int
	// MinBaseQuality rejects reads whose tag region contains a base at
	// or below this phred-33 quality. Zero disables the gate.
	MinBaseQuality int
	// LeftAnchored accepts reads where only the 5' anchor was found,
	// treating the anchored suffix as the tag-string.
	LeftAnchored bool
	// Similar enables approximate matching: one indel per tag-string or
	// one substitution per cycle.
	Similar bool
	// SimilarStrict allows one correction per tag-string: per-cycle
	// substitutions are disallowed on candidates that were already
	// corrected by an indel or by a substitution in an earlier cycle.
	// Implies Similar.
	SimilarStrict bool
	// ReverseCycles reverse-complements tags from even cycles while
	// loading the inventory.
	ReverseCycles bool
	// RestrictValid limits similar matches to tag codes valid for the
	// read's closing primer. Set when valid/invalid patterns are given.
	RestrictValid bool
	// ExcludeUnexpected drops compounds with unexpected tag codes from
	// the output.
	ExcludeUnexpected bool
	// DisableUMI turns off degenerate-region handling entirely.
	DisableUMI bool
	// DisableOverrep turns off the over-representation analysis.
	DisableOverrep bool
	// DisableDedupClean turns off the error-aware UMI cleanup; the
	// deduplicated count becomes the number of distinct UMIs.
	DisableDedupClean bool
	// Recovery re-enters the classifier on the residual sequence after
	// a located tag region, to pick up concatemer reads.
	Recovery bool
	// MaxReads stops the pipeline after this many reads. Zero means
	// unlimited.
	MaxReads int
	// CollectInvalid, CollectChimeras, and CollectRecovery retain the
	// raw sequences behind the corresponding diagnostic outputs.
	CollectInvalid  bool
	CollectChimeras bool
	CollectRecovery bool
	// MaxDegenErrors bounds the per-UMI error count considered by the
	// dedup sweep.
	MaxDegenErrors int
	// MaxDedupUMIs bounds the size of a UMI multiset the dedup sweep is
	// willing to process. Larger multisets keep the distinct count.
	MaxDedupUMIs int
	// SortLimit suppresses output sorting above this many rows.
	SortLimit int
}

// DefaultOpts sets the default values to Opts.
var DefaultOpts = Opts{
	AnchorSize:     7,      // -a
	MinBaseQuality: 0,      // -q
	MaxDegenErrors: 2,      // no flag
	MaxDedupUMIs:   10000,  // no flag
	SortLimit:      100000, // no flag
}
