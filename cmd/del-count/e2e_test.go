package main

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/del"
)

const e2eTagTable = "#ID\tSEQUENCE\tlibA\n" +
	"CPL\tCCAGCA\t1\n" +
	"1.001\tAAA\t1\n" +
	"1.002\tGGG\t1\n" +
	"2.001\tCCC\t1\n" +
	"2.002\tTTT\t1\n"

const e2eFASTQ = `@r1
GTCAGAAACCCCCAGCA
+
IIIIIIIIIIIIIIIII
@r2
CAGGTCAGGGGTTTCCAGCA
+
IIIIIIIIIIIIIIIIIIII
@r3
GTCAGAAACCCCCAGCA
+
IIIIIIIIIIIIIIIII
@r4
TTTTTTTTTTTTTTTTTTTT
+
IIIIIIIIIIIIIIIIIIII
`

func e2eSetup(t *testing.T) (string, *del.TagDB, *del.PrimerSet, del.Opts, func()) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	opts := del.DefaultOpts
	opts.AnchorSize = 5
	tagPath := filepath.Join(tmpdir, "tags.tsv")
	require.NoError(t, ioutil.WriteFile(tagPath, []byte(e2eTagTable), 0644))
	fastqPath := filepath.Join(tmpdir, "reads.fastq")
	require.NoError(t, ioutil.WriteFile(fastqPath, []byte(e2eFASTQ), 0644))

	ctx := context.Background()
	db, err := del.ReadTagFiles(ctx, []string{tagPath}, opts)
	require.NoError(t, err)
	ps, err := del.CompilePrimers([]string{"CAGGTCAG"}, []string{"CCAGCA"}, nil, db, opts)
	require.NoError(t, err)
	require.NoError(t, db.Bind(ps.Closing))
	return fastqPath, db, ps, opts, cleanup
}

func TestRunPipeline(t *testing.T) {
	fastqPath, db, ps, opts, cleanup := e2eSetup(t)
	defer cleanup()
	ctx := context.Background()

	state, err := runPipeline(ctx, fastqPath, db, ps, opts)
	require.NoError(t, err)
	assert.Equal(t, 4, state.Stats.Total)
	assert.Equal(t, 3, state.Stats.Matched)
	assert.Equal(t, 1, state.Stats.Invalid)

	state.Finalize(db)
	cs := state.Compounds[del.CompoundKey{CP: "", Tags: "1.001,2.001"}]
	require.NotNil(t, cs)
	assert.Equal(t, 2, cs.RawCount)
}

func TestRunPipelineMaxReads(t *testing.T) {
	fastqPath, db, ps, opts, cleanup := e2eSetup(t)
	defer cleanup()
	opts.MaxReads = 2

	state, err := runPipeline(context.Background(), fastqPath, db, ps, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, state.Stats.Total)
}

func TestRunShardedMatchesSingle(t *testing.T) {
	fastqPath, db, ps, opts, cleanup := e2eSetup(t)
	defer cleanup()
	ctx := context.Background()

	// Shard artifacts are written relative to the working directory.
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(filepath.Dir(fastqPath)))
	defer func() { require.NoError(t, os.Chdir(cwd)) }()

	single, err := runPipeline(ctx, fastqPath, db, ps, opts)
	require.NoError(t, err)
	sharded, err := runSharded(ctx, fastqPath, 3, db, ps, opts)
	require.NoError(t, err)

	assert.Equal(t, single.Stats, sharded.Stats)
	require.Equal(t, len(single.Compounds), len(sharded.Compounds))
	for key, cs := range single.Compounds {
		other := sharded.Compounds[key]
		require.NotNil(t, other, "missing compound %+v", key)
		assert.Equal(t, cs.RawCount, other.RawCount)
		assert.Equal(t, cs.StrandNet, other.StrandNet)
	}
}

func TestOutputPrefix(t *testing.T) {
	assert.Equal(t, "tags_reads", outputPrefix("runs/reads.fastq.gz"))
	assert.Equal(t, "tags_lib1", outputPrefix("lib1.fastq"))
	assert.Equal(t, "tags_x", outputPrefix("/a/b/x"))
}

func TestApplyConfig(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	cfgPath := filepath.Join(tmpdir, "defaults.conf")
	cfg := "# comment\n" +
		"; another comment\n" +
		"other_*.fastq\t0\tother.tsv\tAAAA\t\tCCCC\t\t\n" +
		"*.fastq\t1\ttags.tsv\tCAGGTCAG\tGT\tCCAGCA\t\t\n"
	require.NoError(t, ioutil.WriteFile(cfgPath, []byte(cfg), 0644))

	flags := cliFlags{fastqPath: filepath.Join(tmpdir, "reads.fastq")}
	opts := del.DefaultOpts
	require.NoError(t, applyConfig(context.Background(), cfgPath, &flags, &opts))
	assert.Equal(t, "tags.tsv", flags.tagFiles)
	assert.Equal(t, "CAGGTCAG", flags.headPieces)
	assert.Equal(t, "GT", flags.overhangs)
	assert.Equal(t, "CCAGCA", flags.closingPrimers)
	assert.True(t, opts.ReverseCycles)

	// Values already set on the command line win.
	flags2 := cliFlags{fastqPath: filepath.Join(tmpdir, "reads.fastq"), tagFiles: "cli.tsv"}
	opts2 := del.DefaultOpts
	require.NoError(t, applyConfig(context.Background(), cfgPath, &flags2, &opts2))
	assert.Equal(t, "cli.tsv", flags2.tagFiles)
}

func TestSplitFASTQ(t *testing.T) {
	fastqPath, _, _, _, cleanup := e2eSetup(t)
	defer cleanup()
	ctx := context.Background()

	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(filepath.Dir(fastqPath)))
	defer func() { require.NoError(t, os.Chdir(cwd)) }()

	paths, err := splitFASTQ(ctx, fastqPath, "tags_reads", 2)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	data0, err := ioutil.ReadFile(paths[0])
	require.NoError(t, err)
	data1, err := ioutil.ReadFile(paths[1])
	require.NoError(t, err)
	// Reads r1,r3 land in shard 0; r2,r4 in shard 1.
	assert.Contains(t, string(data0), "@r1")
	assert.Contains(t, string(data0), "@r3")
	assert.Contains(t, string(data1), "@r2")
	assert.Contains(t, string(data1), "@r4")
}
