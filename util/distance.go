package util

// Levenshtein computes the edit distance between s1 and s2 using a
// two-row dynamic-programming buffer, so memory stays O(min(len(s1),
// len(s2))) regardless of input size. Insertions, deletions, and
// substitutions each cost one distance point.
func Levenshtein(s1, s2 string) int {
	// Keep the shorter string in the column dimension.
	if len(s2) > len(s1) {
		s1, s2 = s2, s1
	}
	n := len(s2)
	prev := make([]int, n+1)
	cur := make([]int, n+1)
	for j := 0; j <= n; j++ {
		prev[j] = j
	}
	for i := 1; i <= len(s1); i++ {
		cur[0] = i
		for j := 1; j <= n; j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			v := prev[j-1] + cost // substitution or match
			if d := prev[j] + 1; d < v { // deletion
				v = d
			}
			if d := cur[j-1] + 1; d < v { // insertion
				v = d
			}
			cur[j] = v
		}
		prev, cur = cur, prev
	}
	return prev[n]
}

// BoundedSeqDistance computes the minimum Levenshtein distance between a
// and b over a sweep of end adjustments of b. Because a fixed number of
// degenerate bases are always sequenced, an indel inside the degenerate
// window shifts the remaining bases: downstream primer bases leak in on
// the right, or leading bases are lost on the left. For each shift e in
// [1, maxIndel], b is either padded on the right with the corresponding
// tail of a or truncated on the left by e bases, and the smaller of the
// two distances is kept.
func BoundedSeqDistance(a, b string, maxIndel int) int {
	best := Levenshtein(a, b)
	for e := 1; e <= maxIndel; e++ {
		if e <= len(a) {
			padded := b + a[len(a)-e:]
			if d := Levenshtein(a, padded); d < best {
				best = d
			}
		}
		if e <= len(b) {
			if d := Levenshtein(a, b[e:]); d < best {
				best = d
			}
		}
	}
	return best
}
