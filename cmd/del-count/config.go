package main

// The defaults file is INI-like: comment lines start with '#' or ';',
// data lines are eight tab-separated fields. The first record whose
// fastqGlob matches the input file populates the values the command
// line left unset.

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/pkg/errors"

	"github.com/grailbio/del"
)

type configRecord struct {
	FastqGlob      string
	ReverseCycles  string
	TagFile        string
	HeadPieces     string
	Overhangs      string
	ClosingPrimers string
	ValidTags      string
	InvalidTags    string
}

// loadConfig returns the first record matching fastqPath, or nil when
// none matches.
func loadConfig(ctx context.Context, path, fastqPath string) (*configRecord, error) {
	data, err := file.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	// Strip comment lines before handing the rest to the TSV reader.
	var filtered bytes.Buffer
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || trimmed[0] == '#' || trimmed[0] == ';' {
			continue
		}
		filtered.WriteString(line)
		filtered.WriteByte('\n')
	}
	r := tsv.NewReader(&filtered)
	base := filepath.Base(fastqPath)
	for {
		rec := configRecord{}
		if err := r.Read(&rec); err != nil {
			if err == io.EOF {
				return nil, nil
			}
			return nil, errors.Wrapf(err, "config %s", path)
		}
		ok, err := filepath.Match(rec.FastqGlob, base)
		if err != nil {
			return nil, errors.Wrapf(err, "config %s: glob %q", path, rec.FastqGlob)
		}
		if ok || rec.FastqGlob == base || rec.FastqGlob == fastqPath {
			return &rec, nil
		}
	}
}

// applyConfig fills flags and options the command line left unset.
func applyConfig(ctx context.Context, path string, flags *cliFlags, opts *del.Opts) error {
	rec, err := loadConfig(ctx, path, flags.fastqPath)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	setString := func(dst *string, v string) {
		if *dst == "" && v != "" {
			*dst = v
		}
	}
	setString(&flags.tagFiles, rec.TagFile)
	setString(&flags.headPieces, rec.HeadPieces)
	setString(&flags.overhangs, rec.Overhangs)
	setString(&flags.closingPrimers, rec.ClosingPrimers)
	setString(&flags.validPatterns, rec.ValidTags)
	setString(&flags.invalidPattern, rec.InvalidTags)
	if !opts.ReverseCycles {
		switch rec.ReverseCycles {
		case "", "0", "false":
		default:
			opts.ReverseCycles = true
		}
	}
	return nil
}
