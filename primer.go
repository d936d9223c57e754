package del

import (
	"strings"

	"github.com/pkg/errors"
)

// HeadPiece is a 5' flanking primer compiled for matching. The last
// AnchorSize bases form the forward 5' anchor; its reverse complement
// is the 3' anchor of reverse-strand reads.
type HeadPiece struct {
	Seq string

	anchor5   string   // last AnchorSize bases
	rcAnchor3 string   // reverse complement of anchor5
	near5     []string // 1-insertion variants of anchor5
}

// ClosingPrimer is a 3' flanking primer compiled for matching. The
// first AnchorSize bases form the forward 3' anchor; its reverse
// complement is the 5' anchor of reverse-strand reads. A run of N bases
// inside the primer marks the degenerate window used as a UMI.
type ClosingPrimer struct {
	// Label is the optional explicit label given as "label-" on the
	// command line.
	Label string
	// Seq is the primer sequence, including the N run.
	Seq string
	// ID is Label plus the static prefix before the N run, or Label
	// alone when the primer has no degenerate run.
	ID ClosingPrimerID
	// StaticPrefix is the sequence before the N run (the whole primer
	// when there is no run).
	StaticPrefix string
	// DegenLen is the length of the N run; zero when absent.
	DegenLen int
	// Tail is the static sequence after the N run.
	Tail string

	anchor3   string   // first AnchorSize bases
	rcAnchor5 string   // reverse complement of anchor3
	near5     []string // 1-insertion variants of rcAnchor5
}

// PrimerSet is the compiled set of flanking primers plus the overhang
// layout. It is built once at startup and is read-only afterwards.
type PrimerSet struct {
	HeadPieces []*HeadPiece
	Closing    []*ClosingPrimer
	// Overhangs has one entry per cycle; the last entry is the empty
	// string (no overhang follows the final cycle).
	Overhangs []string
	// AnchorSize is the number of primer bases used per anchor.
	AnchorSize int
	// TagLen is the expected tag-string length: the sum of cycle tag
	// lengths and overhang lengths.
	TagLen int
	// MinPrimerLen is the length of the shortest primer.
	MinPrimerLen int
}

// insertionVariants returns the anchor with one arbitrary base inserted
// at each interior position. The variants are searched as plain
// substrings, modeling a single insertion near the anchor.
func insertionVariants(anchor string) []string {
	var vars []string
	for i := 1; i < len(anchor); i++ {
		for _, b := range dnaBases {
			vars = append(vars, anchor[:i]+string(b)+anchor[i:])
		}
	}
	return vars
}

// ParseClosingPrimer parses a closing-primer argument of the form
// "[label-]SEQ" where SEQ may contain one run of N bases marking the
// degenerate window.
func ParseClosingPrimer(arg string) (*ClosingPrimer, error) {
	cp := &ClosingPrimer{}
	seq := arg
	if i := strings.IndexByte(arg, '-'); i >= 0 {
		cp.Label = arg[:i]
		seq = arg[i+1:]
	}
	seq = strings.ToUpper(seq)
	if seq == "" {
		return nil, errors.Errorf("closing primer %q has no sequence", arg)
	}
	cp.Seq = seq
	if i := strings.IndexByte(seq, 'N'); i >= 0 {
		j := i
		for j < len(seq) && seq[j] == 'N' {
			j++
		}
		if strings.IndexByte(seq[j:], 'N') >= 0 {
			return nil, errors.Errorf("closing primer %q has more than one degenerate run", arg)
		}
		cp.StaticPrefix = seq[:i]
		cp.DegenLen = j - i
		cp.Tail = seq[j:]
		cp.ID = ClosingPrimerID(cp.Label + cp.StaticPrefix)
	} else {
		cp.StaticPrefix = seq
		cp.ID = ClosingPrimerID(cp.Label)
	}
	return cp, nil
}

// CompilePrimers compiles head pieces and closing primers into the
// anchor matchers used by the classifier. The overhang list must have
// exactly cycles-1 entries, or be empty for no overhangs; a trailing
// empty overhang is appended for indexing convenience.
func CompilePrimers(headPieces, closingPrimers, overhangs []string, db *TagDB, opts Opts) (*PrimerSet, error) {
	if len(headPieces) == 0 {
		return nil, errors.New("at least one head piece is required")
	}
	if len(closingPrimers) == 0 {
		return nil, errors.New("at least one closing primer is required")
	}
	if db.NumCycles() == 0 {
		return nil, errors.New("tag inventory is empty")
	}
	if len(overhangs) == 0 {
		overhangs = make([]string, db.NumCycles()-1)
	} else if len(overhangs) != db.NumCycles()-1 {
		return nil, errors.Errorf("got %d overhangs for %d cycles, want %d",
			len(overhangs), db.NumCycles(), db.NumCycles()-1)
	}
	a := opts.AnchorSize
	ps := &PrimerSet{AnchorSize: a}

	for _, oh := range overhangs {
		ps.Overhangs = append(ps.Overhangs, strings.ToUpper(oh))
	}
	ps.Overhangs = append(ps.Overhangs, "")
	for i := 0; i < db.NumCycles(); i++ {
		ps.TagLen += db.CycleLen(i) + len(ps.Overhangs[i])
	}

	ps.MinPrimerLen = -1
	for _, hp := range headPieces {
		seq := strings.ToUpper(hp)
		if len(seq) < a {
			return nil, errors.Errorf("anchor size %d exceeds head piece %q", a, hp)
		}
		anchor := seq[len(seq)-a:]
		ps.HeadPieces = append(ps.HeadPieces, &HeadPiece{
			Seq:       seq,
			anchor5:   anchor,
			rcAnchor3: reverseComplement(anchor),
			near5:     insertionVariants(anchor),
		})
		if ps.MinPrimerLen < 0 || len(seq) < ps.MinPrimerLen {
			ps.MinPrimerLen = len(seq)
		}
	}
	for _, arg := range closingPrimers {
		cp, err := ParseClosingPrimer(arg)
		if err != nil {
			return nil, err
		}
		if len(cp.StaticPrefix) < a {
			return nil, errors.Errorf("anchor size %d exceeds the static prefix of closing primer %q", a, arg)
		}
		cp.anchor3 = cp.Seq[:a]
		cp.rcAnchor5 = reverseComplement(cp.anchor3)
		cp.near5 = insertionVariants(cp.rcAnchor5)
		ps.Closing = append(ps.Closing, cp)
		if len(cp.Seq) < ps.MinPrimerLen {
			ps.MinPrimerLen = len(cp.Seq)
		}
	}
	return ps, nil
}

// MinReadLen is the minimum read length that can contain a full tag
// region between two anchors.
func (ps *PrimerSet) MinReadLen() int {
	return ps.MinPrimerLen + ps.TagLen + ps.AnchorSize
}
