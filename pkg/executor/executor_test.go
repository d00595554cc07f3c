package executor

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/bounds"
	pkgerrors "github.com/tettuan/frontmatter-to-schema-sub004/pkg/errors"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/frontmatter"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/processor"
)

// mapReader serves file content from memory.
type mapReader map[string]string

func (m mapReader) Read(_ context.Context, path string) (string, error) {
	content, ok := m[path]
	if !ok {
		return "", pkgerrors.NewReadError(path, pkgerrors.ErrNotFound)
	}
	return content, nil
}

// corpus builds n valid documents plus any extra entries given.
func corpus(n int) (mapReader, []string) {
	reader := make(mapReader, n)
	files := make([]string, 0, n)
	for i := 0; i < n; i++ {
		path := fmt.Sprintf("docs/doc%03d.md", i)
		reader[path] = fmt.Sprintf("---\nname: doc%03d\nindex: %d\n---\nbody %d\n", i, i, i)
		files = append(files, path)
	}
	return reader, files
}

func newProcessor(t *testing.T, reader mapReader) *processor.Processor {
	t.Helper()
	p, err := processor.New(reader, frontmatter.NewAutoExtractor())
	require.NoError(t, err)
	return p
}

func relaxedMonitor() *bounds.Monitor {
	return bounds.NewMonitor(bounds.Unbounded())
}

func docPaths(r *Report) []string {
	paths := make([]string, 0, len(r.Documents))
	for _, d := range r.Documents {
		paths = append(paths, d.Path())
	}
	sort.Strings(paths)
	return paths
}

func TestSplitBatches(t *testing.T) {
	t.Run("150 files across 4 workers", func(t *testing.T) {
		_, files := corpus(150)
		batches := SplitBatches(files, 4)

		require.Len(t, batches, 4)
		assert.Len(t, batches[0], 38)
		assert.Len(t, batches[1], 38)
		assert.Len(t, batches[2], 38)
		assert.Len(t, batches[3], 36)
	})

	t.Run("batches sum to input and stay contiguous", func(t *testing.T) {
		for _, tc := range []struct{ n, workers int }{
			{1, 1}, {5, 2}, {7, 3}, {10, 10}, {100, 7}, {3, 8},
		} {
			_, files := corpus(tc.n)
			batches := SplitBatches(files, tc.workers)

			batchSize := (tc.n + tc.workers - 1) / tc.workers
			var flattened []string
			for _, b := range batches {
				assert.LessOrEqual(t, len(b), batchSize, "n=%d w=%d", tc.n, tc.workers)
				flattened = append(flattened, b...)
			}
			assert.Equal(t, files, flattened, "n=%d w=%d", tc.n, tc.workers)
		}
	})

	t.Run("empty input yields no batches", func(t *testing.T) {
		assert.Nil(t, SplitBatches(nil, 4))
	})

	t.Run("zero workers treated as one", func(t *testing.T) {
		_, files := corpus(5)
		batches := SplitBatches(files, 0)
		require.Len(t, batches, 1)
		assert.Len(t, batches[0], 5)
	})
}

func TestExecutors_SameDocumentSet(t *testing.T) {
	reader, files := corpus(37)
	proc := newProcessor(t, reader)
	ctx := context.Background()

	seq, err := NewSequentialExecutor(proc)
	require.NoError(t, err)
	seqReport, err := seq.Execute(ctx, files, nil, relaxedMonitor())
	require.NoError(t, err)

	for _, workers := range []int{1, 2, 4, 8} {
		par, err := NewBatchExecutor(proc, workers)
		require.NoError(t, err)
		parReport, err := par.Execute(ctx, files, nil, relaxedMonitor())
		require.NoError(t, err)

		assert.Equal(t, docPaths(seqReport), docPaths(parReport), "workers=%d", workers)
	}
}

func TestSequentialExecutor_PreservesInputOrder(t *testing.T) {
	reader, files := corpus(12)
	proc := newProcessor(t, reader)

	seq, err := NewSequentialExecutor(proc)
	require.NoError(t, err)
	report, err := seq.Execute(context.Background(), files, nil, relaxedMonitor())
	require.NoError(t, err)

	require.Len(t, report.Documents, 12)
	for i, doc := range report.Documents {
		assert.Equal(t, files[i], doc.Path())
	}
}

func TestExecutors_OneBadFileOfFive(t *testing.T) {
	reader, files := corpus(5)
	reader[files[2]] = "no metadata block here"
	proc := newProcessor(t, reader)
	ctx := context.Background()

	t.Run("sequential", func(t *testing.T) {
		seq, err := NewSequentialExecutor(proc)
		require.NoError(t, err)
		report, err := seq.Execute(ctx, files, nil, relaxedMonitor())
		require.NoError(t, err)

		assert.Len(t, report.Documents, 4)
		assert.Len(t, report.Errors, 1)
		assert.True(t, report.Degraded())
	})

	t.Run("parallel", func(t *testing.T) {
		par, err := NewBatchExecutor(proc, 2)
		require.NoError(t, err)
		report, err := par.Execute(ctx, files, nil, relaxedMonitor())
		require.NoError(t, err)

		assert.Len(t, report.Documents, 4)
		assert.Len(t, report.Errors, 1)
	})
}

func TestExecutors_AllFilesFailing(t *testing.T) {
	reader := mapReader{}
	files := []string{"a.md", "b.md", "c.md"}
	proc := newProcessor(t, reader)
	ctx := context.Background()

	t.Run("sequential surfaces first error", func(t *testing.T) {
		seq, err := NewSequentialExecutor(proc)
		require.NoError(t, err)
		report, err := seq.Execute(ctx, files, nil, relaxedMonitor())

		require.Error(t, err)
		assert.Len(t, report.Errors, 3)
		assert.Same(t, report.Errors[0].(*pkgerrors.Error), err.(*pkgerrors.Error))
	})

	t.Run("parallel surfaces an error", func(t *testing.T) {
		par, err := NewBatchExecutor(proc, 2)
		require.NoError(t, err)
		report, err := par.Execute(ctx, files, nil, relaxedMonitor())

		require.Error(t, err)
		assert.Empty(t, report.Documents)
		assert.NotEmpty(t, report.Errors)
	})
}

func TestExecutors_EmptyFileList(t *testing.T) {
	proc := newProcessor(t, mapReader{})
	ctx := context.Background()

	seq, err := NewSequentialExecutor(proc)
	require.NoError(t, err)
	report, err := seq.Execute(ctx, nil, nil, relaxedMonitor())
	require.NoError(t, err)
	assert.Empty(t, report.Documents)
	assert.Empty(t, report.Errors)

	par, err := NewBatchExecutor(proc, 4)
	require.NoError(t, err)
	report, err = par.Execute(ctx, nil, nil, relaxedMonitor())
	require.NoError(t, err)
	assert.Empty(t, report.Documents)
}

func TestSequentialExecutor_StopsAtFileLimit(t *testing.T) {
	reader, files := corpus(5)
	proc := newProcessor(t, reader)

	b, err := bounds.Bounded(100000, 2, time.Hour)
	require.NoError(t, err)
	monitor := bounds.NewMonitor(b, bounds.WithMemorySampler(func() float64 { return 1 }))

	seq, err := NewSequentialExecutor(proc)
	require.NoError(t, err)
	report, err := seq.Execute(context.Background(), files, nil, monitor)
	require.NoError(t, err)

	// Checks run before each file: counts of 0,1,2 pass (2 is exactly at the
	// limit), the check at 3 trips.
	assert.Len(t, report.Documents, 3)
	require.Len(t, report.Errors, 1)
	assert.True(t, pkgerrors.IsBoundsExceeded(report.Errors[0]))
}

func TestBatchExecutor_StopsWhenMemoryExceeded(t *testing.T) {
	reader, files := corpus(8)
	proc := newProcessor(t, reader)

	b, err := bounds.Bounded(100, 1000, time.Hour)
	require.NoError(t, err)
	monitor := bounds.NewMonitor(b, bounds.WithMemorySampler(func() float64 { return 500 }))

	par, err := NewBatchExecutor(proc, 2)
	require.NoError(t, err)
	report, err := par.Execute(context.Background(), files, nil, monitor)

	// Every batch trips its first check, so nothing survives.
	require.Error(t, err)
	assert.Empty(t, report.Documents)
	assert.NotEmpty(t, report.Errors)
	assert.True(t, pkgerrors.IsBoundsExceeded(report.Errors[0]))
}

func TestExecutors_ApproachingLimitWarnsAndContinues(t *testing.T) {
	reader, files := corpus(6)
	proc := newProcessor(t, reader)

	b, err := bounds.Bounded(100, 1000, time.Hour)
	require.NoError(t, err)
	monitor := bounds.NewMonitor(b, bounds.WithMemorySampler(func() float64 { return 85 }))

	seq, err := NewSequentialExecutor(proc)
	require.NoError(t, err)
	report, err := seq.Execute(context.Background(), files, nil, monitor)
	require.NoError(t, err)

	assert.Len(t, report.Documents, 6)
	assert.NotEmpty(t, report.Warnings)
	assert.Empty(t, report.Errors)
}

func TestSequentialExecutor_MemoryGrowthWarning(t *testing.T) {
	reader, files := corpus(120)
	proc := newProcessor(t, reader)

	heap := 100.0
	monitor := bounds.NewMonitor(bounds.Unbounded(), bounds.WithMemorySampler(func() float64 { return heap }))
	heap = 5000.0

	seq, err := NewSequentialExecutor(proc)
	require.NoError(t, err)
	report, err := seq.Execute(context.Background(), files, nil, monitor)
	require.NoError(t, err)

	assert.Len(t, report.Documents, 120)
	require.NotEmpty(t, report.Warnings)
	assert.Contains(t, report.Warnings[0], "memory grew")
}

func TestBatchExecutor_RecordsMetrics(t *testing.T) {
	reader, files := corpus(10)
	reader[files[4]] = "broken"
	proc := newProcessor(t, reader)

	collector := NewCollector(3)
	par, err := NewBatchExecutor(proc, 3, WithBatchMetrics(collector))
	require.NoError(t, err)

	report, err := par.Execute(context.Background(), files, nil, relaxedMonitor())
	require.NoError(t, err)

	m := report.Metrics
	assert.Equal(t, int64(9), m.Processed)
	assert.Equal(t, int64(1), m.Errors)
	assert.Equal(t, 3, m.Workers)
	assert.Greater(t, m.ProcessingTime, time.Duration(0))
}

func TestNewExecutors_RequireProcessor(t *testing.T) {
	_, err := NewSequentialExecutor(nil)
	require.Error(t, err)

	_, err = NewBatchExecutor(nil, 4)
	require.Error(t, err)
}
