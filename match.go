package del

import "strconv"

// matchTagString walks a forward-oriented candidate tag-string cycle by
// cycle and resolves each slice against the inventory. isSimilar marks
// candidates that were already corrected by an indel. Under
// SimilarStrict a candidate takes at most one correction: substitution
// is disallowed on indel candidates and after a substitution in an
// earlier cycle. For indel candidates, matches
// are restricted to codes valid for the closing primer when valid or
// invalid patterns are in force (indels tend to land on invalid codes
// by coincidence).
//
// The returned labels carry one "var,<pos>" entry per substituted
// cycle. A candidate matches only when every cycle resolved.
func (c *Classifier) matchTagString(t string, cp *ClosingPrimer, isSimilar bool) ([]TagCode, []string, bool) {
	var (
		codes  []TagCode
		labels []string
	)
	pos := 0
	for k := 0; k < c.db.NumCycles(); k++ {
		clen := c.db.CycleLen(k)
		if pos+clen > len(t) {
			return nil, nil, false
		}
		tag := t[pos : pos+clen]
		oh := c.ps.Overhangs[k]
		if len(oh) > 0 && !c.opts.Similar {
			if pos+clen+len(oh) > len(t) || t[pos+clen:pos+clen+len(oh)] != oh {
				return nil, nil, false
			}
		}
		code, ok := c.db.Lookup(k, tag)
		if ok && c.codeAllowed(cp, code, isSimilar) {
			codes = append(codes, code)
		} else if varCode, varPos, found := c.substituteTag(k, tag, cp); found &&
			!(c.opts.SimilarStrict && (isSimilar || len(labels) > 0)) {
			codes = append(codes, varCode)
			labels = append(labels, "var,"+strconv.Itoa(pos+varPos))
		} else {
			return nil, nil, false
		}
		pos += clen + len(oh)
	}
	return codes, labels, true
}

// substituteTag tries each single-base substitution of the tag against
// the cycle inventory; the first hit wins. Substituted matches always
// count as similar, so the valid-code restriction applies when enabled.
func (c *Classifier) substituteTag(k int, tag string, cp *ClosingPrimer) (TagCode, int, bool) {
	if !c.opts.Similar {
		return "", 0, false
	}
	for i := 0; i < len(tag); i++ {
		orig := tag[i]
		for _, b := range dnaBases {
			if b == orig {
				continue
			}
			probe := tag[:i] + string(b) + tag[i+1:]
			if code, ok := c.db.Lookup(k, probe); ok && c.codeAllowed(cp, code, true) {
				return code, i, true
			}
		}
	}
	return "", 0, false
}

// codeAllowed applies the valid-code restriction to similar matches.
// Exact matches on non-similar reads are never restricted here; the
// EXPECTED column reports their validity downstream.
func (c *Classifier) codeAllowed(cp *ClosingPrimer, code TagCode, similar bool) bool {
	if !c.opts.RestrictValid || !similar {
		return true
	}
	return c.db.IsValid(cp.ID, code)
}
