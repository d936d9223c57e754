package del

import (
	"sort"

	"github.com/antzucaro/matchr"

	"github.com/grailbio/del/util"
)

// calibrateBaseError turns the observed static-prefix multisets into
// per-edit-distance base error rates:
//
//	baseError[e] = (observations at distance e) / (total × |staticSeq|)
//
// When several static sequences exist, the maximum rate per distance is
// kept.
func (s *PipelineState) calibrateBaseError() {
	s.BaseError = map[int]float64{}
	for staticSeq, obs := range s.StaticObs {
		total := 0
		distCounts := map[int]int{}
		for observed, n := range obs {
			total += n
			distCounts[matchr.Levenshtein(observed, staticSeq)] += n
		}
		if total == 0 || len(staticSeq) == 0 {
			continue
		}
		denom := float64(total) * float64(len(staticSeq))
		for e, n := range distCounts {
			if e == 0 {
				continue
			}
			rate := float64(n) / denom
			if rate > s.BaseError[e] {
				s.BaseError[e] = rate
			}
		}
	}
}

// dedupUMIs collapses near-duplicate UMIs of one compound and returns
// the deduplicated count. Uniques are swept in decreasing-count order;
// a low-count UMI v is absorbed into a higher-count u when its count
// falls under the error-rate threshold count(u)×|u|×baseError[e] and
// its end-adjusted edit distance to u is within e. The least-counted
// unique is never used as an absorber and the most-counted unique is
// never absorbed, so every sweep retains at least one survivor on each
// side.
func dedupUMIs(umis map[string]int, baseError map[int]float64, maxDegenErrors int) int {
	uniques := make([]string, 0, len(umis))
	for u := range umis {
		uniques = append(uniques, u)
	}
	dedup := len(uniques)
	if dedup < 2 {
		return dedup
	}
	// Decreasing count, ties broken lexicographically, so the sweep is
	// deterministic regardless of map order.
	sort.Slice(uniques, func(i, j int) bool {
		if umis[uniques[i]] != umis[uniques[j]] {
			return umis[uniques[i]] > umis[uniques[j]]
		}
		return uniques[i] < uniques[j]
	})
	asc := make([]string, len(uniques))
	for i, u := range uniques {
		asc[len(asc)-1-i] = u
	}
	desc := uniques[:len(uniques)-1] // least-counted never absorbs
	asc = asc[:len(asc)-1]          // most-counted never absorbed

	removed := map[string]bool{}
	for _, u := range desc {
		if removed[u] {
			continue
		}
		for e := 1; e <= maxDegenErrors; e++ {
			rate, ok := baseError[e]
			if !ok {
				continue
			}
			threshold := float64(umis[u]) * float64(len(u)) * rate
			for _, v := range asc {
				if removed[v] || v == u {
					continue
				}
				if float64(umis[v]) < threshold && util.BoundedSeqDistance(u, v, e) <= e {
					removed[v] = true
					dedup--
					continue
				}
				// asc is sorted by increasing count: once a count
				// clears the threshold, all later ones do too. The scan
				// also stops at the first v under the threshold whose
				// distance to u exceeds e.
				break
			}
		}
	}
	return dedup
}
