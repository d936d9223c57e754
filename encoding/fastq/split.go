package fastq

import (
	"io"

	"github.com/pkg/errors"
)

// Split distributes reads from in round-robin across the given outputs:
// read i goes to outs[i % len(outs)]. It returns the number of reads
// written. Splitting is deterministic, so counters aggregated over the
// resulting shards are identical to a single-shard run.
func Split(in io.Reader, outs []io.Writer) (int, error) {
	if len(outs) == 0 {
		return 0, errors.New("split requires at least one output")
	}
	sc := NewScanner(in, All)
	writers := make([]*Writer, len(outs))
	for i, out := range outs {
		writers[i] = NewWriter(out)
	}
	var (
		read Read
		n    int
	)
	for sc.Scan(&read) {
		if err := writers[n%len(writers)].Write(&read); err != nil {
			return n, errors.Wrapf(err, "split: writing read %d", n)
		}
		n++
	}
	if err := sc.Err(); err != nil {
		return n, errors.Wrap(err, "split: reading input")
	}
	return n, nil
}
