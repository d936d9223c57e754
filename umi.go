package del

import "strings"

// umiStatus describes the degenerate-window handling of one matched
// read.
type umiStatus int

const (
	// umiNone: the closing primer carries no degenerate run, or UMI
	// handling is disabled.
	umiNone umiStatus = iota
	// umiMissing: the static prefix could not be found after the tag
	// region, or the window after it is truncated, so no window was
	// captured.
	umiMissing
	// umiFound: the window was captured.
	umiFound
)

// extractUMI captures the degenerate window trailing the tag region.
// For forward reads the window is searched in the sequence after the
// tag region; for reverse reads the prefix of the read is
// reverse-complemented first so the closing primer reads in its forward
// orientation. The observed static-prefix bases at their expected
// position are recorded for base-error calibration whether or not the
// window is captured.
func (c *Classifier) extractUMI(s string, lo located, tagLen int, cp *ClosingPrimer) (string, umiStatus) {
	if cp.DegenLen == 0 || c.opts.DisableUMI {
		return "", umiNone
	}
	var region string
	if lo.forward {
		start := lo.tagPos + tagLen
		if start > len(s) {
			return "", umiMissing
		}
		region = s[start:]
	} else {
		region = reverseComplement(s[:lo.tagPos])
	}
	prefix := cp.StaticPrefix
	if len(region) >= len(prefix) {
		c.state.RecordStatic(prefix, region[:len(prefix)])
	}
	idx := strings.Index(region, prefix)
	if idx < 0 || idx+len(prefix)+cp.DegenLen > len(region) {
		return "", umiMissing
	}
	return region[idx+len(prefix) : idx+len(prefix)+cp.DegenLen], umiFound
}
