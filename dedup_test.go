package del

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalibrateBaseError(t *testing.T) {
	s := NewPipelineState(DefaultOpts)
	// 99 exact observations and one with a single error over a 4-base
	// static sequence: baseError[1] = 1 / (100*4).
	s.StaticObs["CCAG"] = map[string]int{"CCAG": 99, "CCAT": 1}
	s.calibrateBaseError()
	require.Contains(t, s.BaseError, 1)
	assert.InDelta(t, 1.0/400.0, s.BaseError[1], 1e-12)
	_, ok := s.BaseError[0]
	assert.False(t, ok, "distance zero is not an error rate")
}

func TestCalibrateBaseErrorMaxAcrossStatics(t *testing.T) {
	s := NewPipelineState(DefaultOpts)
	s.StaticObs["CCAG"] = map[string]int{"CCAG": 9, "CCAT": 1}  // 1/40
	s.StaticObs["GGTC"] = map[string]int{"GGTC": 99, "GGTA": 1} // 1/400
	s.calibrateBaseError()
	assert.InDelta(t, 1.0/40.0, s.BaseError[1], 1e-12)
}

func TestDedupUMIsKeepsDistinctLowError(t *testing.T) {
	// Scenario: AAAA x2, AAAT x1, baseError[1] = 0.01. The threshold
	// for absorbing into AAAA is 2*4*0.01 = 0.08 < 1, so AAAT survives.
	umis := map[string]int{"AAAA": 2, "AAAT": 1}
	got := dedupUMIs(umis, map[int]float64{1: 0.01}, 2)
	assert.Equal(t, 2, got)
}

func TestDedupUMIsCollapsesErrorCopies(t *testing.T) {
	// A high-count UMI absorbs its single-error satellite: threshold
	// 1000*4*0.01 = 40 > 1.
	umis := map[string]int{"AAAA": 1000, "AAAT": 1}
	got := dedupUMIs(umis, map[int]float64{1: 0.01}, 2)
	assert.Equal(t, 1, got)
}

func TestDedupUMIsNeverCollapsesBeyondMaxErrors(t *testing.T) {
	// GGGG is 4 edits from AAAA; no allowed error count reaches it.
	umis := map[string]int{"AAAA": 1000, "GGGG": 1}
	got := dedupUMIs(umis, map[int]float64{1: 0.01, 2: 0.001}, 2)
	assert.Equal(t, 2, got)
}

func TestDedupUMIsMostCountedSurvives(t *testing.T) {
	// Even with absurd error rates the top UMI is never absorbed and
	// at least one UMI survives.
	umis := map[string]int{"AAAA": 5, "AAAT": 4, "AATT": 3}
	got := dedupUMIs(umis, map[int]float64{1: 10, 2: 10}, 2)
	assert.True(t, got >= 1)
}

func TestDedupUMIsDeterministic(t *testing.T) {
	umis := map[string]int{"AAAA": 3, "AAAT": 3, "AATA": 1, "TTTT": 1}
	rates := map[int]float64{1: 0.5}
	want := dedupUMIs(umis, rates, 1)
	for i := 0; i < 10; i++ {
		assert.Equal(t, want, dedupUMIs(umis, rates, 1))
	}
}

func TestExtractUMI(t *testing.T) {
	opts := Opts{AnchorSize: 4, MaxDegenErrors: 2, MaxDedupUMIs: 10000}
	db, cleanup := testDB(t, opts)
	defer cleanup()
	ps, err := CompilePrimers([]string{"CAGGTCAG"}, []string{"CCAGNNNNCA"}, nil, db, opts)
	require.NoError(t, err)
	require.NoError(t, db.Bind(ps.Closing))
	state := NewPipelineState(opts)
	cl := NewClassifier(db, ps, opts, state)

	// Forward read: HP + AAACCC + CCAG + GATC + CA.
	cl.Classify("CAGGTCAGAAACCCCCAGGATCCA", "")
	require.Equal(t, 1, state.Stats.Matched)
	key := CompoundKey{CP: "CCAG", Tags: "1.001,2.001"}
	cs := state.Compounds[key]
	require.NotNil(t, cs)
	assert.Equal(t, map[string]int{"GATC": 1}, cs.UMIs)
	// The static bases at their expected position were recorded.
	assert.Equal(t, 1, state.StaticObs["CCAG"]["CCAG"])

	// Reverse read with a different window.
	cl.Classify(reverseComplement("CAGGTCAGAAACCCCCAGTTGACA"), "")
	require.Equal(t, 2, state.Stats.Matched)
	assert.Equal(t, 1, cs.UMIs["TTGA"])
	assert.Equal(t, 2, state.StaticObs["CCAG"]["CCAG"])

	// Degenerate window truncated: counted as undedup.
	cl.Classify("CAGGTCAGAAACCCCCAGGA", "")
	require.Equal(t, 3, state.Stats.Matched)
	assert.Equal(t, 1, state.Stats.Undedup)
	assert.Equal(t, 1, cs.NoUMI)

	state.Finalize(db)
	assert.Equal(t, 2, cs.DedupCount)
}

func TestFinalizeDedupDisabled(t *testing.T) {
	opts := DefaultOpts
	opts.DisableDedupClean = true
	s := NewPipelineState(opts)
	s.AddMatch("CC", []TagCode{"1.001", "2.001"}, true, "AAAA", umiFound)
	s.AddMatch("CC", []TagCode{"1.001", "2.001"}, true, "AAAA", umiFound)
	s.AddMatch("CC", []TagCode{"1.001", "2.001"}, true, "AAAT", umiFound)
	db := &TagDB{}
	s.Finalize(db)
	cs := s.Compounds[CompoundKey{CP: "CC", Tags: "1.001,2.001"}]
	assert.Equal(t, 3, cs.RawCount)
	assert.Equal(t, 2, cs.DedupCount)
}

func TestFinalizeDedupSweepSkippedOverLimit(t *testing.T) {
	opts := DefaultOpts
	opts.MaxDedupUMIs = 2
	s := NewPipelineState(opts)
	for _, umi := range []string{"AAAA", "AAAT", "AATA"} {
		s.AddMatch("CC", []TagCode{"1.001"}, true, umi, umiFound)
		s.AddMatch("CC", []TagCode{"1.001"}, true, umi, umiFound)
	}
	s.RecordStatic("C", "A") // calibrates baseError[1] = 1: would collapse everything
	db := &TagDB{}
	s.Finalize(db)
	cs := s.Compounds[CompoundKey{CP: "CC", Tags: "1.001"}]
	// Multiset larger than the limit keeps the distinct count.
	assert.Equal(t, 3, cs.DedupCount)
}
