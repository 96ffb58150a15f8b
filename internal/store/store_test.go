package store

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferencegate/inferencegate/internal/apperr"
	"github.com/inferencegate/inferencegate/internal/entry"
)

func nonStreamingEntry(id string) *entry.Entry {
	return &entry.Entry{
		ID: id,
		Request: entry.Request{
			Method: "POST",
			Path:   "/v1/chat/completions",
			Body:   entry.Body{IsJSON: true, JSON: map[string]any{"model": "gpt-4o"}},
		},
		Response: entry.Response{
			StatusCode: 200,
			Body:       []byte(`{"ok":true}`),
		},
		Metadata: entry.Metadata{Model: "gpt-4o", RecordedAt: time.Unix(0, 0)},
	}
}

func streamingEntry(id string) *entry.Entry {
	e := nonStreamingEntry(id)
	e.Response.IsStreaming = true
	e.Response.Body = nil
	e.Chunks = [][]byte{
		[]byte("data: {\"delta\":\"He\"}\n\n"),
		[]byte("data: {\"delta\":\"llo\"}\n\n"),
		[]byte("data: [DONE]\n\n"),
	}
	return e
}

func TestPutGet_NonStreaming(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	in := nonStreamingEntry("abcd1234")
	require.NoError(t, s.Put(in))

	out, err := s.Get("abcd1234")
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, in.Response.StatusCode, out.Response.StatusCode)
	assert.Equal(t, in.Response.Body, out.Response.Body)
	assert.False(t, out.Response.IsStreaming)
}

func TestPutGet_Streaming(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	in := streamingEntry("ffff0001")
	require.NoError(t, s.Put(in))

	out, err := s.Get("ffff0001")
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.True(t, out.Response.IsStreaming)
	require.Len(t, out.Chunks, 3)
	assert.Equal(t, in.Chunks, out.Chunks)
}

func TestGet_Miss(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	out, err := s.Get("does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestGet_CorruptEntry(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	require.NoError(t, s.Put(nonStreamingEntry("cafe0001")))
	require.NoError(t, os.Remove(filepath.Join(dir, "ca", "cafe0001", "response.bin")))

	_, err = s.Get("cafe0001")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrCorruptEntry)
}

func TestPut_NoPartialEntryObservableOnDisk(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put(nonStreamingEntry("deadbeef")))

	entries, err := os.ReadDir(filepath.Join(dir, "de"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

func TestList_ReturnsSummaries(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Put(nonStreamingEntry("11110001")))
	require.NoError(t, s.Put(streamingEntry("22220002")))

	summaries, err := s.List()
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	byID := map[string]entry.Summary{}
	for _, sm := range summaries {
		byID[sm.ID] = sm
	}
	assert.False(t, byID["11110001"].IsStreaming)
	assert.True(t, byID["22220002"].IsStreaming)
}

func TestStats_TracksCountsAndModels(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Put(nonStreamingEntry("aaaa0001")))
	require.NoError(t, s.Put(streamingEntry("bbbb0002")))

	stats := s.Stats()
	assert.Equal(t, 2, stats.TotalEntries)
	assert.Equal(t, 1, stats.StreamingResponses)
	assert.Equal(t, 2, stats.EntriesByModel["gpt-4o"])
}

func TestClear_RemovesAllEntries(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Put(nonStreamingEntry("99990001")))

	require.NoError(t, s.Clear())

	out, err := s.Get("99990001")
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, 0, s.Stats().TotalEntries)
}

func TestClear_RefusesNonCacheRoot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "notacache"), 0o755))

	s, err := Open(dir)
	require.NoError(t, err)

	err = s.Clear()
	require.Error(t, err)
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
}

func TestClear_ToleratesStrayEntryAlongsideValidShards(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put(nonStreamingEntry("99990001")))

	// A stray file sitting next to an otherwise-valid shard directory
	// shouldn't make Clear refuse the whole root: it plainly is a cache
	// root, just with one unrelated entry in it.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("hi"), 0o644))

	require.NoError(t, s.Clear())

	out, err := s.Get("99990001")
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.NoFileExists(t, filepath.Join(dir, "README.txt"))
}

func TestLock_SerializesConcurrentAccessToSameID(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	var active int
	var maxActive int
	var mu sync.Mutex

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.Lock("same-id")
			defer unlock()

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxActive)
}

func TestLock_DifferentIDsDoNotBlockEachOther(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	done := make(chan struct{})
	unlockA := s.Lock("id-a")
	go func() {
		unlockB := s.Lock("id-b")
		defer unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different id should not block")
	}
	unlockA()
}
