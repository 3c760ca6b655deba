package buffer

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ReignOfTea/protest-dash/internal/content"
	"github.com/ReignOfTea/protest-dash/internal/errors"
	"github.com/ReignOfTea/protest-dash/internal/github"
)

type fakeFetcher struct {
	mu    sync.Mutex
	files map[string]string
	errs  map[string]error
	calls map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		files: map[string]string{},
		errs:  map[string]error{},
		calls: map[string]int{},
	}
}

func (f *fakeFetcher) GetFile(_ context.Context, path string) (*github.RemoteFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[path]++
	if err, ok := f.errs[path]; ok {
		return nil, err
	}
	raw, ok := f.files[path]
	if !ok {
		return nil, errors.NotFound("not found on remote")
	}
	return &github.RemoteFile{Path: path, SHA: "sha-" + path, Content: []byte(raw)}, nil
}

func (f *fakeFetcher) callCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func mustCanonical(t *testing.T, raw string) string {
	t.Helper()
	out, err := content.Canonical([]byte(raw))
	require.NoError(t, err)
	return out
}

func TestBuffer_GetFetchesLazily(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.files["data/locations.json"] = `[{"id":"hull-royal-hotel"}]`
	buf := New(fetcher)

	file, err := buf.Get(context.Background(), "locations")
	require.NoError(t, err)

	assert.Equal(t, "locations", file.Name)
	assert.Equal(t, "data/locations.json", file.Path)
	assert.Equal(t, mustCanonical(t, `[{"id":"hull-royal-hotel"}]`), file.Content)
	require.NotNil(t, file.RevisionMarker)
	assert.Equal(t, "sha-data/locations.json", *file.RevisionMarker)
	assert.False(t, file.Dirty)

	// Second read comes from the buffer, not the network.
	_, err = buf.Get(context.Background(), "locations")
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.callCount("data/locations.json"))
}

func TestBuffer_GetMissingFileStartsFromSkeleton(t *testing.T) {
	buf := New(newFakeFetcher())

	live, err := buf.Get(context.Background(), "live")
	require.NoError(t, err)
	assert.Equal(t, "[]", live.Content)
	assert.Nil(t, live.RevisionMarker)
	assert.False(t, live.Dirty)

	about, err := buf.Get(context.Background(), "about")
	require.NoError(t, err)
	assert.Equal(t, mustCanonical(t, `{"title":"","sections":[]}`), about.Content)
	assert.Nil(t, about.RevisionMarker)
}

func TestBuffer_GetPropagatesUpstreamErrors(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.errs["data/times.json"] = errors.Upstream("rate limited", nil)
	buf := New(fetcher)

	_, err := buf.Get(context.Background(), "times")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeUpstream))
}

func TestBuffer_SetContentDirtyTracking(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.files["data/locations.json"] = `[{"id":"a"}]`
	buf := New(fetcher)

	_, err := buf.Get(context.Background(), "locations")
	require.NoError(t, err)

	// Identical value in different formatting stays clean.
	file, err := buf.SetContent("locations", []byte(`[ {"id": "a"} ]`))
	require.NoError(t, err)
	assert.False(t, file.Dirty)

	// A real change turns the file dirty.
	file, err = buf.SetContent("locations", []byte(`[{"id":"a"},{"id":"b"}]`))
	require.NoError(t, err)
	assert.True(t, file.Dirty)

	// Undoing the edit by restaging the original content cleans it up.
	file, err = buf.SetContent("locations", []byte(`[{"id":"a"}]`))
	require.NoError(t, err)
	assert.False(t, file.Dirty)
}

func TestBuffer_SetContentBeforeGetIsDirty(t *testing.T) {
	buf := New(newFakeFetcher())

	file, err := buf.SetContent("times", []byte(`[{"id":"t1"}]`))
	require.NoError(t, err)
	assert.True(t, file.Dirty, "with no known baseline the file is dirty by definition")
}

func TestBuffer_SetContentRejectsInvalidJSON(t *testing.T) {
	buf := New(newFakeFetcher())

	_, err := buf.SetContent("times", []byte(`{broken`))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestBuffer_DirtyFeedIsSortedAndFiltered(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.files["data/locations.json"] = `[]`
	buf := New(fetcher)

	_, err := buf.Get(context.Background(), "locations")
	require.NoError(t, err)

	_, err = buf.SetContent("times", []byte(`[{"id":"t"}]`))
	require.NoError(t, err)
	_, err = buf.SetContent("about", []byte(`{"title":"About","sections":[]}`))
	require.NoError(t, err)

	dirty := buf.Dirty()
	require.Len(t, dirty, 2, "clean files stay out of the commit feed")
	assert.Equal(t, "data/about.json", dirty[0].Path)
	assert.Equal(t, "data/times.json", dirty[1].Path)
}

func TestBuffer_MarkClean(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.files["data/locations.json"] = `[{"id":"a"}]`
	buf := New(fetcher)

	got, err := buf.Get(context.Background(), "locations")
	require.NoError(t, err)
	markerBefore := *got.RevisionMarker

	_, err = buf.SetContent("locations", []byte(`[{"id":"a"},{"id":"b"}]`))
	require.NoError(t, err)

	buf.MarkClean([]string{"data/locations.json"})

	file, err := buf.Get(context.Background(), "locations")
	require.NoError(t, err)
	assert.False(t, file.Dirty)

	// The committed content is the new clean baseline.
	file, err = buf.SetContent("locations", []byte(`[{"id":"a"},{"id":"b"}]`))
	require.NoError(t, err)
	assert.False(t, file.Dirty)

	// Markers are not refreshed by MarkClean; the commit result carries
	// no per-file markers.
	require.NotNil(t, file.RevisionMarker)
	assert.Equal(t, markerBefore, *file.RevisionMarker)
}

func TestBuffer_DiscardRefetches(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.files["data/locations.json"] = `[{"id":"a"}]`
	buf := New(fetcher)

	_, err := buf.Get(context.Background(), "locations")
	require.NoError(t, err)
	_, err = buf.SetContent("locations", []byte(`[{"id":"edited"}]`))
	require.NoError(t, err)

	buf.Discard("locations")

	file, err := buf.Get(context.Background(), "locations")
	require.NoError(t, err)
	assert.Equal(t, mustCanonical(t, `[{"id":"a"}]`), file.Content, "discarded edits are gone")
	assert.False(t, file.Dirty)
	assert.Equal(t, 2, fetcher.callCount("data/locations.json"))
}

func TestBuffer_DiscardAll(t *testing.T) {
	buf := New(newFakeFetcher())

	_, err := buf.SetContent("times", []byte(`[1]`))
	require.NoError(t, err)
	_, err = buf.SetContent("live", []byte(`[2]`))
	require.NoError(t, err)

	buf.Discard()

	assert.Empty(t, buf.Files())
	assert.Empty(t, buf.Dirty())
}

func TestBuffer_RemoveLocationCascades(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.files["data/locations.json"] = `[{"id":"hull","venue":"Royal Hotel"},{"id":"york","venue":"Minster"}]`
	fetcher.files["data/times.json"] = `[{"id":"t1","locationId":"hull"},{"id":"t2","locationId":"york"}]`
	fetcher.files["data/repeating-events.json"] = `[{"id":"r1","locationId":"hull"}]`
	// data/live.json does not exist remotely.
	buf := New(fetcher)

	removed, err := buf.RemoveLocation(context.Background(), "hull")
	require.NoError(t, err)

	assert.Equal(t, map[string]int{
		"locations":        1,
		"times":            1,
		"repeating-events": 1,
	}, removed)

	locations, err := buf.Get(context.Background(), "locations")
	require.NoError(t, err)
	var locList []map[string]any
	require.NoError(t, json.Unmarshal([]byte(locations.Content), &locList))
	require.Len(t, locList, 1)
	assert.Equal(t, "york", locList[0]["id"])

	times, err := buf.Get(context.Background(), "times")
	require.NoError(t, err)
	var timeList []map[string]any
	require.NoError(t, json.Unmarshal([]byte(times.Content), &timeList))
	require.Len(t, timeList, 1)
	assert.Equal(t, "t2", timeList[0]["id"])

	// Every touched file is staged for the next push; live had nothing
	// referencing the location and stays clean.
	dirty := buf.Dirty()
	paths := make([]string, len(dirty))
	for i, d := range dirty {
		paths[i] = d.Path
	}
	assert.ElementsMatch(t, []string{
		"data/locations.json",
		"data/times.json",
		"data/repeating-events.json",
	}, paths)
}

func TestBuffer_RemoveLocationUnknownID(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.files["data/locations.json"] = `[{"id":"york"}]`
	buf := New(fetcher)

	_, err := buf.RemoveLocation(context.Background(), "hull")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
	assert.Empty(t, buf.Dirty(), "a failed delete stages nothing")
}

func TestBuffer_RemoveLocationEmptyID(t *testing.T) {
	buf := New(newFakeFetcher())

	_, err := buf.RemoveLocation(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}
