package main

// This file drives the read stream: the single-shard pipeline loop, and
// the shard driver that splits the input round-robin, runs one worker
// per shard, and reduces the per-shard artifacts.

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/klauspost/compress/gzip"

	"github.com/grailbio/del"
	"github.com/grailbio/del/encoding/fastq"
)

// openFASTQ opens a plain or gzipped FASTQ file.
func openFASTQ(ctx context.Context, path string) (io.Reader, func() error, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	var r io.Reader = in.Reader(ctx)
	if u := compress.NewReaderPath(r, path); u != nil {
		r = u
	}
	return r, func() error { return in.Close(ctx) }, nil
}

// runPipeline runs the single-threaded pipeline over one FASTQ file.
func runPipeline(ctx context.Context, path string, db *del.TagDB, ps *del.PrimerSet, opts del.Opts) (*del.PipelineState, error) {
	state := del.NewPipelineState(opts)
	cl := del.NewClassifier(db, ps, opts, state)

	r, closer, err := openFASTQ(ctx, path)
	if err != nil {
		return nil, err
	}
	sc := fastq.NewScanner(r, fastq.Seq|fastq.Qual)
	var (
		read  fastq.Read
		nRead int
	)
	for sc.Scan(&read) {
		cl.Classify(read.Seq, read.Qual)
		nRead++
		if nRead%(1024*1024) == 0 {
			log.Printf("%s: %dMi reads", path, nRead/(1024*1024))
		}
		if opts.MaxReads > 0 && nRead >= opts.MaxReads {
			break
		}
	}
	once := errors.Once{}
	once.Set(sc.Err())
	once.Set(closer())
	if err := once.Err(); err != nil {
		return nil, err
	}
	log.Printf("Processed %d reads in %s", nRead, path)
	return state, nil
}

// splitFASTQ writes the input round-robin into shards FASTQ files next
// to the final outputs. Shard files are gzipped when the input is.
func splitFASTQ(ctx context.Context, path, prefix string, shards int) ([]string, error) {
	r, closer, err := openFASTQ(ctx, path)
	if err != nil {
		return nil, err
	}
	gz := strings.HasSuffix(path, ".gz")
	paths := make([]string, shards)
	files := make([]*os.File, shards)
	writers := make([]io.Writer, shards)
	gzws := make([]*gzip.Writer, shards)
	for i := range paths {
		paths[i] = fmt.Sprintf("%s_shard_%d.fastq", prefix, i)
		if gz {
			paths[i] += ".gz"
		}
		f, err := os.Create(paths[i])
		if err != nil {
			return nil, err
		}
		files[i] = f
		if gz {
			gzws[i] = gzip.NewWriter(f)
			writers[i] = gzws[i]
		} else {
			writers[i] = f
		}
	}
	n, splitErr := fastq.Split(r, writers)
	once := errors.Once{}
	once.Set(splitErr)
	once.Set(closer())
	for i := range files {
		if gzws[i] != nil {
			once.Set(gzws[i].Close())
		}
		once.Set(files[i].Close())
	}
	if err := once.Err(); err != nil {
		return nil, err
	}
	log.Printf("Split %d reads into %d shards", n, shards)
	return paths, nil
}

// runSharded splits the input, runs one worker pipeline per shard, and
// reduces the per-shard artifacts into a single state. Counters are
// commutative, so the result is identical to a single-shard run.
func runSharded(ctx context.Context, fastqPath string, shards int, db *del.TagDB, ps *del.PrimerSet, opts del.Opts) (*del.PipelineState, error) {
	prefix := outputPrefix(fastqPath)
	shardPaths, err := splitFASTQ(ctx, fastqPath, prefix, shards)
	if err != nil {
		return nil, err
	}
	tagPaths := make([]string, shards)
	logPaths := make([]string, shards)
	workerErrs := make([]error, shards)
	wg := sync.WaitGroup{}
	for i := 0; i < shards; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// The -T cap applies to the whole input, not to each worker:
			// shard i holds input reads i, i+shards, …, and only those
			// below the cap are processed.
			var (
				state *del.PipelineState
				err   error
			)
			if opts.MaxReads > 0 && i >= opts.MaxReads {
				state = del.NewPipelineState(opts)
			} else {
				workerOpts := opts
				if opts.MaxReads > 0 {
					workerOpts.MaxReads = (opts.MaxReads - i + shards - 1) / shards
				}
				state, err = runPipeline(ctx, shardPaths[i], db, ps, workerOpts)
			}
			if err != nil {
				workerErrs[i] = err
				return
			}
			tagPaths[i] = fmt.Sprintf("%s_shard_%d.allTags", prefix, i)
			logPaths[i] = fmt.Sprintf("%s_shard_%d.log", prefix, i)
			if err := state.WriteShardTags(ctx, tagPaths[i], db.NumCycles()); err != nil {
				workerErrs[i] = err
				return
			}
			workerErrs[i] = state.WriteShardLog(ctx, logPaths[i])
		}(i)
	}
	wg.Wait()
	for _, err := range workerErrs {
		if err != nil {
			return nil, err
		}
	}

	degenCPs := map[del.ClosingPrimerID]bool{}
	for _, cp := range ps.Closing {
		if cp.DegenLen > 0 {
			degenCPs[cp.ID] = true
		}
	}
	return del.Reduce(ctx, tagPaths, logPaths, opts, db.NumCycles(), degenCPs)
}
