package kbretrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antigravity-dev/studybuddy/internal/ports"
)

func TestInScope(t *testing.T) {
	require.True(t, InScope("170880", "uploads/170880/doc-1/f.pdf"))
	require.True(t, InScope("170880", "170880/doc-1/f.pdf"))
	require.True(t, InScope("170880", "canvas-materials/u1/170880/f.pdf"))
	require.False(t, InScope("170880", "uploads/424242/doc-1/f.pdf"))
	require.False(t, InScope("170880", "canvas-materials/u1/424242/f.pdf"))
}

type fakeKB struct {
	filteredRows   []ports.RetrievalRow
	filteredErr    error
	unfilteredRows []ports.RetrievalRow
	sawFiltered    bool
	sawUnfiltered  bool
}

func (f *fakeKB) Retrieve(ctx context.Context, filterCourseID, query string, n int) ([]ports.RetrievalRow, error) {
	if filterCourseID != "" {
		f.sawFiltered = true
		return f.filteredRows, f.filteredErr
	}
	f.sawUnfiltered = true
	return f.unfilteredRows, nil
}

func (f *fakeKB) Ingest(ctx context.Context, sourceKey, clientToken string) (string, error) {
	return "", nil
}

func TestRetrieve_ScopeFallback(t *testing.T) {
	kb := &fakeKB{
		filteredRows: []ports.RetrievalRow{
			{Text: "a", Source: "uploads/170880/doc-1/f.pdf"},
			{Text: "b", Source: "uploads/170880/doc-2/f.pdf"},
			{Text: "c", Source: "uploads/424242/doc-1/f.pdf"},
		},
	}
	rows, err := Retrieve(context.Background(), kb, "170880", "what is a heap", 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "a", rows[0].Text)
	require.Equal(t, "b", rows[1].Text)
	require.True(t, kb.sawFiltered)
	require.False(t, kb.sawUnfiltered)
}

func TestRetrieve_FallsBackToOutOfScopeWhenScopedEmpty(t *testing.T) {
	kb := &fakeKB{
		filteredRows: []ports.RetrievalRow{
			{Text: "only off course", Source: "uploads/424242/doc-1/f.pdf"},
		},
	}
	rows, err := Retrieve(context.Background(), kb, "170880", "q", 2)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestRetrieve_RetriesUnfilteredOnErrorOrEmpty(t *testing.T) {
	kb := &fakeKB{
		filteredErr:    errors.New("filter not supported"),
		unfilteredRows: []ports.RetrievalRow{{Text: "x", Source: "170880/a"}},
	}
	rows, err := Retrieve(context.Background(), kb, "170880", "q", 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.True(t, kb.sawFiltered)
	require.True(t, kb.sawUnfiltered)
}

func TestRetrieve_EmptyWhenNothingValid(t *testing.T) {
	kb := &fakeKB{}
	rows, err := Retrieve(context.Background(), kb, "170880", "q", 3)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestRetrieve_ZeroKReturnsEmpty(t *testing.T) {
	kb := &fakeKB{}
	rows, err := Retrieve(context.Background(), kb, "170880", "q", 0)
	require.NoError(t, err)
	require.Empty(t, rows)
}
