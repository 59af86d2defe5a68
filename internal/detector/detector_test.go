package detector

import (
	"context"
	"errors"
	"maps"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coversync/coversync-server/internal/domain"
	"github.com/coversync/coversync-server/internal/store"
)

type fakeSummarizer struct {
	sigs []domain.Signature
	err  error
}

func (f *fakeSummarizer) FetchSummary(context.Context) ([]domain.Signature, error) {
	return f.sigs, f.err
}

type memSigs struct {
	m map[string]string
}

func (s *memSigs) LoadSignatures(context.Context) (map[string]string, error) {
	return maps.Clone(s.m), nil
}

func (s *memSigs) ReplaceSignatures(_ context.Context, sigs map[string]string) error {
	s.m = maps.Clone(sigs)
	return nil
}

func TestCheck_FirstRunMarksEverythingAdded(t *testing.T) {
	src := &fakeSummarizer{sigs: []domain.Signature{{ID: "b", Signature: "1"}, {ID: "a", Signature: "1"}}}
	d := New(src, &memSigs{}, nil)

	diff, err := d.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, diff.Dirty())
	assert.Equal(t, []string{"a", "b"}, diff.Added)
	assert.Empty(t, diff.Removed)
	assert.Empty(t, diff.Changed)
}

func TestCheck_DiffAndCommit(t *testing.T) {
	sigs := &memSigs{m: map[string]string{"keep": "1", "change": "1", "gone": "1"}}
	src := &fakeSummarizer{sigs: []domain.Signature{
		{ID: "keep", Signature: "1"},
		{ID: "change", Signature: "2"},
		{ID: "new", Signature: "1"},
	}}
	d := New(src, sigs, nil)

	diff, err := d.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, diff.Added)
	assert.Equal(t, []string{"gone"}, diff.Removed)
	assert.Equal(t, []string{"change"}, diff.Changed)
	assert.Equal(t, 3, diff.Count())
	assert.Equal(t, []string{"change", "gone", "new"}, diff.IDs())

	// Without a commit the same drift is reported again.
	again, err := d.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, diff.IDs(), again.IDs())

	require.NoError(t, d.Commit(context.Background(), diff.Summary))
	clean, err := d.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, clean.Dirty())
}

func TestCheck_SourceFailure(t *testing.T) {
	d := New(&fakeSummarizer{err: errors.New("timeout")}, &memSigs{}, nil)
	_, err := d.Check(context.Background())
	assert.Error(t, err)
}

func TestCommit_Nil(t *testing.T) {
	sigs := &memSigs{m: map[string]string{"a": "1"}}
	d := New(&fakeSummarizer{}, sigs, nil)
	require.NoError(t, d.Commit(context.Background(), nil))
	assert.Equal(t, map[string]string{"a": "1"}, sigs.m)
}

func TestDetector_WithBadgerStore(t *testing.T) {
	s, err := store.New(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	src := &fakeSummarizer{sigs: []domain.Signature{{ID: "m1", Signature: "e1"}}}
	d := New(src, s, nil)

	diff, err := d.Check(context.Background())
	require.NoError(t, err)
	require.True(t, diff.Dirty())
	require.NoError(t, d.Commit(context.Background(), diff.Summary))

	diff, err = d.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, diff.Dirty())

	src.sigs = nil
	diff, err = d.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, diff.Removed)
}
