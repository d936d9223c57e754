package del

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Axes of the over-representation analysis.
const (
	axisRaw = iota
	axisDedup
	axisUnique
	nAxes
)

var axisNames = [nAxes]string{"raw", "dedup", "unique"}

// OverEntry is one over-represented structure: a single (cycle, tag)
// plane or an unordered (cycle, tag) pair line, on one axis, for one
// closing primer.
type OverEntry struct {
	CP        ClosingPrimerID
	Axis      string
	Structure string
	Value     float64
	Bin       int
}

// sigmaBin computes ⌈(v − μ) / σ⌉, the number of standard deviations v
// sits above the mean, clamped at zero.
func sigmaBin(v, mean, sigma float64) int {
	if sigma == 0 {
		return 0
	}
	d := (v - mean) / sigma
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d))
}

// meanStdDev wraps gonum's estimator; a single observation has zero
// spread.
func meanStdDev(values []float64) (float64, float64) {
	if len(values) < 2 {
		if len(values) == 1 {
			return values[0], 0
		}
		return 0, 0
	}
	mean, std := stat.MeanStdDev(values, nil)
	return mean, std
}

// computeCompoundBins assigns each compound its σ-bin over the
// per-closing-primer distribution of raw and dedup counts.
func (s *PipelineState) computeCompoundBins() {
	type cpValues struct{ raw, dedup []float64 }
	perCP := map[ClosingPrimerID]*cpValues{}
	for key, cs := range s.Compounds {
		v := perCP[key.CP]
		if v == nil {
			v = &cpValues{}
			perCP[key.CP] = v
		}
		v.raw = append(v.raw, float64(cs.RawCount))
		v.dedup = append(v.dedup, float64(cs.DedupCount))
	}
	type cpMoments struct{ rawMean, rawStd, dedupMean, dedupStd float64 }
	moments := map[ClosingPrimerID]cpMoments{}
	for cp, v := range perCP {
		m := cpMoments{}
		m.rawMean, m.rawStd = meanStdDev(v.raw)
		m.dedupMean, m.dedupStd = meanStdDev(v.dedup)
		moments[cp] = m
	}
	for key, cs := range s.Compounds {
		m := moments[key.CP]
		cs.RawBin = sigmaBin(float64(cs.RawCount), m.rawMean, m.rawStd)
		cs.DedupBin = sigmaBin(float64(cs.DedupCount), m.dedupMean, m.dedupStd)
	}
}

type planeKey struct {
	cycle int
	code  TagCode
}

type lineKey struct {
	c1 int
	t1 TagCode
	c2 int
	t2 TagCode
}

type overStats struct {
	values [nAxes]float64
	bins   [nAxes]int
	over   [nAxes]bool
}

// analyzeOverrepresentation accumulates per-structure counts across all
// compounds of each closing primer, classifies structures into σ-bins
// per axis, and folds the over signals back onto each compound.
func (s *PipelineState) analyzeOverrepresentation() {
	type cpAccum struct {
		planes map[planeKey]*overStats
		lines  map[lineKey]*overStats
	}
	perCP := map[ClosingPrimerID]*cpAccum{}

	for key, cs := range s.Compounds {
		acc := perCP[key.CP]
		if acc == nil {
			acc = &cpAccum{planes: map[planeKey]*overStats{}, lines: map[lineKey]*overStats{}}
			perCP[key.CP] = acc
		}
		add := func(os *overStats) {
			os.values[axisRaw] += float64(cs.RawCount)
			os.values[axisDedup] += float64(cs.DedupCount)
			os.values[axisUnique]++
		}
		for i, code := range cs.Codes {
			pk := planeKey{cycle: i, code: code}
			os := acc.planes[pk]
			if os == nil {
				os = &overStats{}
				acc.planes[pk] = os
			}
			add(os)
			for j := i + 1; j < len(cs.Codes); j++ {
				lk := lineKey{c1: i, t1: code, c2: j, t2: cs.Codes[j]}
				os := acc.lines[lk]
				if os == nil {
					os = &overStats{}
					acc.lines[lk] = os
				}
				add(os)
			}
		}
	}

	classify := func(all []*overStats) {
		for axis := 0; axis < nAxes; axis++ {
			values := make([]float64, len(all))
			for i, os := range all {
				values[i] = os.values[axis]
			}
			mean, std := meanStdDev(values)
			for _, os := range all {
				os.bins[axis] = sigmaBin(os.values[axis], mean, std)
				os.over[axis] = std > 0 && os.values[axis] > mean+std
			}
		}
	}
	for cp, acc := range perCP {
		planeList := make([]*overStats, 0, len(acc.planes))
		for _, os := range acc.planes {
			planeList = append(planeList, os)
		}
		lineList := make([]*overStats, 0, len(acc.lines))
		for _, os := range acc.lines {
			lineList = append(lineList, os)
		}
		classify(planeList)
		classify(lineList)

		for pk, os := range acc.planes {
			for axis := 0; axis < nAxes; axis++ {
				if os.over[axis] {
					s.Over = append(s.Over, OverEntry{
						CP:        cp,
						Axis:      axisNames[axis],
						Structure: fmt.Sprintf("plane cycle%d %s", pk.cycle+1, pk.code),
						Value:     os.values[axis],
						Bin:       os.bins[axis],
					})
				}
			}
		}
		for lk, os := range acc.lines {
			for axis := 0; axis < nAxes; axis++ {
				if os.over[axis] {
					s.Over = append(s.Over, OverEntry{
						CP:        cp,
						Axis:      axisNames[axis],
						Structure: fmt.Sprintf("line cycle%d %s cycle%d %s", lk.c1+1, lk.t1, lk.c2+1, lk.t2),
						Value:     os.values[axis],
						Bin:       os.bins[axis],
					})
				}
			}
		}
	}
	sort.Slice(s.Over, func(i, j int) bool {
		a, b := s.Over[i], s.Over[j]
		if a.CP != b.CP {
			return a.CP < b.CP
		}
		if a.Axis != b.Axis {
			return a.Axis < b.Axis
		}
		if a.Value != b.Value {
			return a.Value > b.Value
		}
		return a.Structure < b.Structure
	})

	// Fold the over signals back onto each compound: one indicator per
	// participating over structure, with a 0.1 bump for bins past one
	// standard deviation.
	for key, cs := range s.Compounds {
		acc := perCP[key.CP]
		for i, code := range cs.Codes {
			if os := acc.planes[planeKey{cycle: i, code: code}]; os != nil {
				for axis := 0; axis < nAxes; axis++ {
					if os.over[axis] {
						cs.OverPlanes[axis]++
						if os.bins[axis] > 1 {
							cs.OverPlanes[axis] += 0.1
						}
					}
				}
			}
			for j := i + 1; j < len(cs.Codes); j++ {
				if os := acc.lines[lineKey{c1: i, t1: code, c2: j, t2: cs.Codes[j]}]; os != nil {
					for axis := 0; axis < nAxes; axis++ {
						if os.over[axis] {
							cs.OverLines[axis]++
							if os.bins[axis] > 1 {
								cs.OverLines[axis] += 0.1
							}
						}
					}
				}
			}
		}
	}
}
