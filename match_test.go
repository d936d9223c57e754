package del

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchSubstitution(t *testing.T) {
	cl, state, _, cleanup := testPipeline(t, Opts{Similar: true})
	defer cleanup()

	// Tag region AATCCC: one substitution away from AAACCC.
	cl.Classify("CAGGTCAGAATCCCCCAGCA", "")
	st := state.Stats
	assert.Equal(t, 1, st.Matched)
	assert.Equal(t, 1, st.Similar)
	assert.Contains(t, state.Compounds, CompoundKey{CP: "", Tags: "1.001,2.001"})
	found := false
	for label := range state.SimilarEvents {
		if label == "var,2" {
			found = true
		}
	}
	assert.True(t, found, "substitution position should be recorded: %v", state.SimilarEvents)
}

func TestMatchSubstitutionDisabledWithoutSimilar(t *testing.T) {
	cl, state, _, cleanup := testPipeline(t, Opts{})
	defer cleanup()

	cl.Classify("CAGGTCAGAATCCCCCAGCA", "")
	assert.Equal(t, 0, state.Stats.Matched)
	assert.Equal(t, 1, state.Stats.Unfound)
}

func TestMatchSimilarStrict(t *testing.T) {
	// A read that needs both an indel correction and a substitution:
	// tag-string ATCCC (len 5). Candidates insert one base; none yields
	// an exact cycle-1 hit, and under -S the substitution fallback is
	// disallowed for indel candidates.
	read := "CAGGTCAGATCCCCCAGCA"

	clStrict, stateStrict, _, cleanupStrict := testPipeline(t, Opts{Similar: true, SimilarStrict: true})
	defer cleanupStrict()
	clStrict.Classify(read, "")
	assert.Equal(t, 0, stateStrict.Stats.Matched)
	assert.Equal(t, 1, stateStrict.Stats.Unfound)

	// Without strict mode the indel candidate AATCCC… still requires a
	// substitution on top, which plain -s allows.
	clLoose, stateLoose, _, cleanupLoose := testPipeline(t, Opts{Similar: true})
	defer cleanupLoose()
	clLoose.Classify(read, "")
	assert.Equal(t, 1, stateLoose.Stats.Matched)
}

func TestMatchRestrictValidOnSimilar(t *testing.T) {
	// With -v/-V in force, similar matches must land on valid codes.
	// 1.002 (GGG) is made invalid; the substitution GGA -> GGG must
	// then be rejected.
	opts := Opts{Similar: true, RestrictValid: true}
	cl, state, db, cleanup := testPipeline(t, opts)
	defer cleanup()
	require.NoError(t, db.AddInvalidPatterns([]string{`^1\.002$`}))

	cl.Classify("CAGGTCAGGGACCCCCAGCA", "")
	assert.Equal(t, 0, state.Stats.Matched)
	assert.Equal(t, 1, state.Stats.Unfound)

	// The same read matches when the restriction is off.
	cl2, state2, _, cleanup2 := testPipeline(t, Opts{Similar: true})
	defer cleanup2()
	cl2.Classify("CAGGTCAGGGACCCCCAGCA", "")
	assert.Equal(t, 1, state2.Stats.Matched)
}

func TestMatchExactNotRestricted(t *testing.T) {
	// Exact matches on non-similar reads are not subject to the
	// valid-code restriction; the EXPECTED column reports them instead.
	opts := Opts{Similar: true, RestrictValid: true}
	cl, state, db, cleanup := testPipeline(t, opts)
	defer cleanup()
	require.NoError(t, db.AddInvalidPatterns([]string{`^1\.002$`}))

	cl.Classify("CAGGTCAGGGGCCCCCAGCA", "")
	assert.Equal(t, 1, state.Stats.Matched)
	cs := state.Compounds[CompoundKey{CP: "", Tags: "1.002,2.001"}]
	require.NotNil(t, cs)
	state.Finalize(db)
	assert.False(t, cs.Expected)
}

func TestMatchOverhang(t *testing.T) {
	opts := Opts{AnchorSize: 5}
	db, cleanup := testDB(t, opts)
	defer cleanup()
	ps, err := CompilePrimers([]string{"CAGGTCAG"}, []string{"CCAGCA"}, []string{"GT"}, db, opts)
	require.NoError(t, err)
	require.NoError(t, db.Bind(ps.Closing))
	state := NewPipelineState(opts)
	cl := NewClassifier(db, ps, opts, state)

	// Correct overhang GT between the cycles.
	cl.Classify("CAGGTCAGAAAGTCCCCCAGCA", "")
	assert.Equal(t, 1, state.Stats.Matched)

	// Wrong overhang: abandoned.
	cl.Classify("CAGGTCAGAAATTCCCCCAGCA", "")
	assert.Equal(t, 1, state.Stats.Matched)
	assert.Equal(t, 1, state.Stats.Unfound)
}
