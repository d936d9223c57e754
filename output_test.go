package del

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAllTags(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := context.Background()

	cl, state, db, cleanupPipe := testPipeline(t, Opts{})
	defer cleanupPipe()
	for i := 0; i < 3; i++ {
		cl.Classify("GTCAGAAACCCCCAGCA", "")
	}
	cl.Classify(reverseComplement("GTCAGAAACCCCCAGCA"), "")
	cl.Classify("CAGGTCAGGGGTTTCCAGCA", "")
	state.Finalize(db)

	path := filepath.Join(tmpdir, "out.allTags")
	require.NoError(t, state.WriteAllTags(ctx, path, db))
	data, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 3)

	header := strings.Split(lines[0], "\t")
	assert.Equal(t, "TAG1", header[0])
	assert.Equal(t, "TAG2", header[1])
	assert.Equal(t, "CP", header[2])
	assert.Contains(t, lines[0], "OVER_UNIQUE_PLANES")

	// Sorted by raw count descending.
	first := strings.Split(lines[1], "\t")
	assert.Equal(t, []string{"1.001", "2.001"}, first[:2])
	assert.Equal(t, "4", first[3])          // RAW
	assert.Equal(t, "0.500", first[5])      // STRANDBIAS: |3-1|/4
	assert.Equal(t, "1", first[8])          // EXPECTED
	second := strings.Split(lines[2], "\t")
	assert.Equal(t, []string{"1.002", "2.002"}, second[:2])
}

func TestWriteAllTagsNoOverrep(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := context.Background()

	cl, state, db, cleanupPipe := testPipeline(t, Opts{DisableOverrep: true})
	defer cleanupPipe()
	cl.Classify("GTCAGAAACCCCCAGCA", "")
	state.Finalize(db)

	path := filepath.Join(tmpdir, "out.allTags")
	require.NoError(t, state.WriteAllTags(ctx, path, db))
	data, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "SDCOUNT_RAW")
}

func TestWriteFilteredKeepsExpectedOnly(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := context.Background()

	cl, state, db, cleanupPipe := testPipeline(t, Opts{})
	defer cleanupPipe()
	require.NoError(t, db.AddInvalidPatterns([]string{`^1\.002$`}))
	cl.Classify("GTCAGAAACCCCCAGCA", "")
	cl.Classify("CAGGTCAGGGGTTTCCAGCA", "") // 1.002: unexpected
	state.Finalize(db)

	path := filepath.Join(tmpdir, "out.filtered")
	require.NoError(t, state.WriteFiltered(ctx, path, db))
	data, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "1.001")
	assert.NotContains(t, string(data), "1.002")
}

func TestWriteLog(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := context.Background()

	cl, state, db, cleanupPipe := testPipeline(t, Opts{})
	defer cleanupPipe()
	cl.Classify("GTCAGAAACCCCCAGCA", "")
	cl.Classify("TTTTTTTTTTTTTTTTTTTT", "")
	state.Finalize(db)

	path := filepath.Join(tmpdir, "out.log")
	require.NoError(t, state.WriteLog(ctx, path))
	data, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "total\t2")
	assert.Contains(t, string(data), "matched\t1")
	assert.Contains(t, string(data), "invalid\t1")
	assert.Contains(t, string(data), "uniqueCompounds\t1")
}
