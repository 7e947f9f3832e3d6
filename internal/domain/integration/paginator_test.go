package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pages maps a cursor to the page it starts; failOnce makes the first fetch of
// that cursor fail.
func fakeFetcher(pages map[string]*Page[int], failOnce map[string]bool, calls *[]string) PageFetcher[int] {
	return func(_ context.Context, cursor string) (*Page[int], error) {
		*calls = append(*calls, cursor)
		if failOnce[cursor] {
			delete(failOnce, cursor)
			return nil, errors.New("transient")
		}
		page, ok := pages[cursor]
		if !ok {
			return nil, errors.New("unknown cursor")
		}
		return page, nil
	}
}

func threePages() map[string]*Page[int] {
	return map[string]*Page[int]{
		"":  {Items: []int{1, 2}, NextCursor: "a", HasNext: true},
		"a": {Items: []int{3, 4}, NextCursor: "b", HasNext: true},
		"b": {Items: []int{5}, HasNext: false},
	}
}

func TestPaginator_Drain(t *testing.T) {
	var calls []string
	p := NewPaginator(fakeFetcher(threePages(), nil, &calls), "")

	items, err := p.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, items)
	assert.Equal(t, []string{"", "a", "b"}, calls)
	assert.True(t, p.Done())
}

func TestPaginator_IsLazy(t *testing.T) {
	var calls []string
	p := NewPaginator(fakeFetcher(threePages(), nil, &calls), "")

	var seen []int
	for item, err := range p.All(context.Background()) {
		require.NoError(t, err)
		seen = append(seen, item)
		if item == 2 {
			break
		}
	}

	assert.Equal(t, []int{1, 2}, seen)
	assert.Equal(t, []string{""}, calls, "only the first page should be fetched")
	assert.False(t, p.Done())
}

func TestPaginator_ResumeAfterFailure(t *testing.T) {
	var calls []string
	fetch := fakeFetcher(threePages(), map[string]bool{"a": true}, &calls)
	p := NewPaginator(fetch, "")

	_, err := p.Drain(context.Background())
	require.Error(t, err)
	assert.Equal(t, "a", p.Cursor(), "cursor stays on the failed page")

	resumed := NewPaginator(fetch, p.Cursor())
	rest, err := resumed.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 5}, rest)
}

func TestPaginator_StopsOnMissingCursor(t *testing.T) {
	var calls []string
	pages := map[string]*Page[int]{
		"": {Items: []int{1}, HasNext: true, NextCursor: ""},
	}
	p := NewPaginator(fakeFetcher(pages, nil, &calls), "")

	items, err := p.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1}, items)
	assert.Len(t, calls, 1)
}

func TestPaginator_NilPage(t *testing.T) {
	p := NewPaginator(func(context.Context, string) (*Page[int], error) { return nil, nil }, "")
	items, err := p.Next(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, items)
	assert.True(t, p.Done())
}
