package del

import (
	"bufio"
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/pkg/errors"
)

// TagCode identifies one tag within its cycle, e.g. "A1.001". Codes are
// taken verbatim from the tag-table files.
type TagCode string

// ClosingPrimerID identifies a closing primer: any explicit label plus
// the non-degenerate prefix of the primer (empty when the primer has no
// degenerate run).
type ClosingPrimerID string

// tagCodeRE extracts the cycle number out of a tag code. The code may
// carry an arbitrary library prefix; the first digit run before the
// separator is the cycle.
var tagCodeRE = regexp.MustCompile(`^(?:\S*?)(\d+)[.\-]\d+`)

// cycleInfo holds the inventory of one synthesis cycle. All tags within
// a cycle have the same length.
type cycleInfo struct {
	number int
	length int
	// tags maps a tag sequence to its code. A (cycle, sequence) pair
	// maps to at most one code; duplicate rows keep the first.
	tags map[string]TagCode
	// seqs maps a code back to its sequence.
	seqs map[TagCode]string
	// libs maps a code to the library columns it belongs to.
	libs map[TagCode][]string
}

// TagDB is the per-cycle tag inventory plus the library memberships
// used to derive per-closing-primer validity. It is built once at
// startup by ReadTagFiles and is read-only afterwards. Thread
// compatible.
type TagDB struct {
	opts Opts

	byNumber map[int]*cycleInfo
	cycles   []*cycleInfo // ascending by cycle number

	// libNames are the library columns declared by #ID headers, in
	// column order. Empty when no header was seen; in that case all
	// tags are accepted for every closing primer.
	libNames []string
	// cplLibs maps a closing-primer sequence from a CPL row to the set
	// of libraries using it.
	cplLibs map[string]map[string]bool

	duplicates int

	// valid and perCycleValid are built by Bind and refined by
	// AddValidPatterns/AddInvalidPatterns.
	valid         map[ClosingPrimerID]map[TagCode]bool
	perCycleValid map[ClosingPrimerID]map[int]int
	boundCPs      []ClosingPrimerID
}

// NumCycles returns the number of cycles in the inventory.
func (db *TagDB) NumCycles() int { return len(db.cycles) }

// CycleNumber returns the cycle number at the given cycle index.
func (db *TagDB) CycleNumber(idx int) int { return db.cycles[idx].number }

// CycleLen returns the tag length of the cycle at the given index.
func (db *TagDB) CycleLen(idx int) int { return db.cycles[idx].length }

// CycleTags returns the number of tags in the cycle at the given index.
func (db *TagDB) CycleTags(idx int) int { return len(db.cycles[idx].tags) }

// Lookup finds the code of the given tag sequence within a cycle.
func (db *TagDB) Lookup(idx int, seq string) (TagCode, bool) {
	code, ok := db.cycles[idx].tags[seq]
	return code, ok
}

// TagSeq returns the sequence of a code within a cycle.
func (db *TagDB) TagSeq(idx int, code TagCode) (string, bool) {
	seq, ok := db.cycles[idx].seqs[code]
	return seq, ok
}

// IsValid reports whether the code is expected for the given closing
// primer. When no membership information was loaded, every code is
// expected.
func (db *TagDB) IsValid(cp ClosingPrimerID, code TagCode) bool {
	set, ok := db.valid[cp]
	if !ok {
		return true
	}
	return set[code]
}

// ValidTagCodes returns the set of expected codes for the closing
// primer, or nil when every code is expected.
func (db *TagDB) ValidTagCodes(cp ClosingPrimerID) map[TagCode]bool {
	return db.valid[cp]
}

// LibrarySize returns the product over cycles of the number of valid
// tags at that cycle for the closing primer. It is used to normalize
// compound counts.
func (db *TagDB) LibrarySize(cp ClosingPrimerID) int {
	counts, ok := db.perCycleValid[cp]
	if !ok {
		size := 1
		for _, c := range db.cycles {
			size *= len(c.tags)
		}
		return size
	}
	size := 1
	for _, c := range db.cycles {
		size *= counts[c.number]
	}
	return size
}

// ReadTagFiles loads one or more tag-table files into a new TagDB. Each
// spec is a path optionally followed by ";libA;libB" restricting which
// library columns are honored.
func ReadTagFiles(ctx context.Context, specs []string, opts Opts) (*TagDB, error) {
	db := &TagDB{
		opts:     opts,
		byNumber: map[int]*cycleInfo{},
		cplLibs:  map[string]map[string]bool{},
	}
	for _, spec := range specs {
		fields := strings.Split(spec, ";")
		path := fields[0]
		var only map[string]bool
		if len(fields) > 1 {
			only = map[string]bool{}
			for _, lib := range fields[1:] {
				only[lib] = true
			}
		}
		if err := db.readTagFile(ctx, path, only); err != nil {
			return nil, err
		}
	}
	sort.Slice(db.cycles, func(i, j int) bool { return db.cycles[i].number < db.cycles[j].number })
	if db.duplicates > 0 {
		log.Printf("Tag inventory: %d duplicate tag rows ignored", db.duplicates)
	}
	nTags := 0
	for _, c := range db.cycles {
		nTags += len(c.tags)
	}
	log.Printf("Tag inventory: %d tags over %d cycles, %d libraries", nTags, len(db.cycles), len(db.libNames))
	return db, nil
}

func (db *TagDB) readTagFile(ctx context.Context, path string, onlyLibs map[string]bool) error {
	in, err := file.Open(ctx, path)
	if err != nil {
		return errors.Wrapf(err, "tag file %s", path)
	}
	defer in.Close(ctx) // nolint: errcheck
	sc := bufio.NewScanner(in.Reader(ctx))
	nLine := 0
	for sc.Scan() {
		nLine++
		line := sc.Text()
		if line == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		switch {
		case strings.HasPrefix(cols[0], "#ID"):
			if len(cols) < 2 {
				return errors.Errorf("%s:%d: malformed header line %q", path, nLine, line)
			}
			db.libNames = append([]string{}, cols[2:]...)
		case cols[0] == "CPL":
			if err := db.addCPLRow(cols, onlyLibs); err != nil {
				return errors.Wrapf(err, "%s:%d: %q", path, nLine, line)
			}
		default:
			if err := db.addTagRow(cols, onlyLibs); err != nil {
				return errors.Wrapf(err, "%s:%d: %q", path, nLine, line)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return errors.Wrapf(err, "tag file %s", path)
	}
	return nil
}

// memberLibs translates the nonzero membership columns to library
// names, honoring the per-file library restriction.
func (db *TagDB) memberLibs(cols []string, onlyLibs map[string]bool) []string {
	var libs []string
	for i, m := range cols {
		if i >= len(db.libNames) {
			break
		}
		if m == "" || m == "0" {
			continue
		}
		name := db.libNames[i]
		if onlyLibs != nil && !onlyLibs[name] {
			continue
		}
		libs = append(libs, name)
	}
	return libs
}

func (db *TagDB) addCPLRow(cols []string, onlyLibs map[string]bool) error {
	if len(cols) < 2 {
		return errors.New("malformed CPL line")
	}
	cpSeq := cols[1]
	set := db.cplLibs[cpSeq]
	if set == nil {
		set = map[string]bool{}
		db.cplLibs[cpSeq] = set
	}
	for _, lib := range db.memberLibs(cols[2:], onlyLibs) {
		set[lib] = true
	}
	return nil
}

func (db *TagDB) addTagRow(cols []string, onlyLibs map[string]bool) error {
	if len(cols) < 2 {
		return errors.New("malformed tag line")
	}
	code, seq := TagCode(cols[0]), strings.ToUpper(cols[1])
	m := tagCodeRE.FindStringSubmatch(string(code))
	if m == nil {
		return errors.Errorf("tag code %q does not encode a cycle", code)
	}
	cycle := 0
	for _, ch := range m[1] {
		cycle = cycle*10 + int(ch-'0')
	}
	if cycle <= 0 {
		return errors.Errorf("tag code %q has cycle %d", code, cycle)
	}
	if db.opts.ReverseCycles && cycle%2 == 0 {
		seq = reverseComplement(seq)
	}
	c := db.byNumber[cycle]
	if c == nil {
		c = &cycleInfo{
			number: cycle,
			length: len(seq),
			tags:   map[string]TagCode{},
			seqs:   map[TagCode]string{},
			libs:   map[TagCode][]string{},
		}
		db.byNumber[cycle] = c
		db.cycles = append(db.cycles, c)
	}
	if len(seq) != c.length {
		return errors.Errorf("tag %q has length %d, cycle %d tags have length %d",
			code, len(seq), cycle, c.length)
	}
	if _, ok := c.tags[seq]; ok {
		db.duplicates++
		return nil
	}
	c.tags[seq] = code
	c.seqs[code] = seq
	c.libs[code] = db.memberLibs(cols[2:], onlyLibs)
	return nil
}

// Bind resolves the closing primers against the CPL membership rows and
// builds the per-closing-primer validity sets. It must be called once
// after ReadTagFiles, before classification. An error is returned when
// the table declares memberships but a primer is not listed.
func (db *TagDB) Bind(primers []*ClosingPrimer) error {
	db.valid = map[ClosingPrimerID]map[TagCode]bool{}
	db.perCycleValid = map[ClosingPrimerID]map[int]int{}
	db.boundCPs = nil
	for _, cp := range primers {
		db.boundCPs = append(db.boundCPs, cp.ID)
	}
	if len(db.libNames) == 0 || len(db.cplLibs) == 0 {
		// No membership information: all tags are expected everywhere.
		db.valid = nil
		db.perCycleValid = nil
		return nil
	}
	for _, cp := range primers {
		libs := db.cplLibs[cp.Seq]
		if libs == nil {
			libs = db.cplLibs[cp.StaticPrefix]
		}
		if libs == nil {
			return errors.Errorf("closing primer %s (%s) not present in the tag table", cp.ID, cp.Seq)
		}
		set := map[TagCode]bool{}
		for _, c := range db.cycles {
			for code, memberOf := range c.libs {
				for _, lib := range memberOf {
					if libs[lib] {
						set[code] = true
						break
					}
				}
			}
		}
		db.valid[cp.ID] = set
	}
	db.recountValid()
	return nil
}

// recountValid refreshes the per-cycle valid-tag cardinalities from the
// validity sets.
func (db *TagDB) recountValid() {
	if db.valid == nil {
		return
	}
	db.perCycleValid = map[ClosingPrimerID]map[int]int{}
	for cpID, set := range db.valid {
		counts := map[int]int{}
		for _, c := range db.cycles {
			for code := range c.seqs {
				if set[code] {
					counts[c.number]++
				}
			}
		}
		db.perCycleValid[cpID] = counts
	}
}

// parsePatternRule splits a "cp1;cp2;…;regex" rule into its scoped
// closing primers (empty means all) and the compiled code pattern.
func parsePatternRule(rule string) ([]ClosingPrimerID, *regexp.Regexp, error) {
	fields := strings.Split(rule, ";")
	re, err := regexp.Compile(fields[len(fields)-1])
	if err != nil {
		return nil, nil, errors.Wrapf(err, "pattern rule %q", rule)
	}
	var scope []ClosingPrimerID
	for _, f := range fields[:len(fields)-1] {
		scope = append(scope, ClosingPrimerID(f))
	}
	return scope, re, nil
}

// applyPatterns runs a set of valid/invalid rules against the validity
// sets. Valid rules add codes, invalid rules remove them.
func (db *TagDB) applyPatterns(rules []string, add bool) error {
	if db.valid == nil {
		// Without membership info there is nothing to scope the rules
		// to; synthesize full sets for the rules to refine.
		db.valid = map[ClosingPrimerID]map[TagCode]bool{}
	}
	for _, rule := range rules {
		scope, re, err := parsePatternRule(rule)
		if err != nil {
			return err
		}
		targets := scope
		if len(targets) == 0 {
			targets = db.boundCPs
		}
		for _, cpID := range targets {
			set := db.valid[cpID]
			if set == nil {
				// No membership-derived set: start from all codes so
				// subtractive rules behave as expected.
				set = map[TagCode]bool{}
				for _, c := range db.cycles {
					for code := range c.seqs {
						set[code] = true
					}
				}
				db.valid[cpID] = set
			}
			for _, c := range db.cycles {
				for code := range c.seqs {
					if !re.MatchString(string(code)) {
						continue
					}
					if add {
						set[code] = true
					} else {
						delete(set, code)
					}
				}
			}
		}
	}
	db.recountValid()
	return nil
}

// AddValidPatterns applies additive validity rules. Rules are applied
// before any invalid rules.
func (db *TagDB) AddValidPatterns(rules []string) error {
	return db.applyPatterns(rules, true)
}

// AddInvalidPatterns applies subtractive validity rules.
func (db *TagDB) AddInvalidPatterns(rules []string) error {
	return db.applyPatterns(rules, false)
}
