// Package store implements the on-disk content-addressed repository of
// recorded entries: atomic publication, per-id mutual exclusion, and the
// read operations the router and introspection API need.
//
// Layout, rooted at the configured cache directory:
//
//	{root}/{id[0:2]}/{id}/meta.json
//	{root}/{id[0:2]}/{id}/request.bin
//	{root}/{id[0:2]}/{id}/response.bin
//	{root}/{id[0:2]}/{id}/chunks/index
//	{root}/{id[0:2]}/{id}/chunks/000000.bin, 000001.bin, ...
//
// The two-hex-character fan-out directory keeps any single directory from
// holding more than ~1/256th of all entries, the same reason the teacher
// keeps providers in their own subpackages instead of one flat file.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	atomicfile "github.com/natefinch/atomic"
	uberatomic "go.uber.org/atomic"

	"github.com/inferencegate/inferencegate/internal/apperr"
	"github.com/inferencegate/inferencegate/internal/entry"
)

// meta mirrors everything persisted in meta.json: the full Entry minus the
// response body/chunk payloads, which live in their own side files.
type meta struct {
	ID       string          `json:"id"`
	Request  entry.Request   `json:"request"`
	Response entry.Response  `json:"response"`
	Metadata entry.Metadata  `json:"metadata"`
}

// Store is the content-addressed repository. One Store is shared by every
// request the router handles; its zero value is not usable, construct with
// Open.
type Store struct {
	root string

	locksMu sync.Mutex
	locks   map[string]*refcountedMutex

	totalEntries      uberatomic.Int64
	totalSizeBytes    uberatomic.Int64
	streamingResponses uberatomic.Int64

	statsMu        sync.Mutex
	entriesByModel map[string]int
}

type refcountedMutex struct {
	mu  sync.Mutex
	ref int
}

// Open returns a Store rooted at dir, creating dir if it doesn't exist, and
// rebuilds the live stats counters by walking the tree once.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.NewStorageError("open:mkdir", err)
	}
	s := &Store{
		root:           dir,
		locks:          make(map[string]*refcountedMutex),
		entriesByModel: make(map[string]int),
	}
	if err := s.sweepOrphans(); err != nil {
		return nil, err
	}
	if err := s.rebuildStats(); err != nil {
		return nil, err
	}
	return s, nil
}

// Root returns the directory the store is rooted at.
func (s *Store) Root() string { return s.root }

// Unlock releases a per-id lock acquired by Lock. Safe to call via defer
// from any exit path, including ones reached through a recovered panic.
type Unlock func()

// Lock acquires the exclusive per-fingerprint lock for id, blocking until
// it is available; the wait cannot be canceled. The returned Unlock
// releases it; calls after the first are no-ops.
func (s *Store) Lock(id string) Unlock {
	s.locksMu.Lock()
	rm, ok := s.locks[id]
	if !ok {
		rm = &refcountedMutex{}
		s.locks[id] = rm
	}
	rm.ref++
	s.locksMu.Unlock()

	rm.mu.Lock()

	released := false
	return func() {
		if released {
			return
		}
		released = true
		rm.mu.Unlock()

		s.locksMu.Lock()
		rm.ref--
		if rm.ref == 0 {
			delete(s.locks, id)
		}
		s.locksMu.Unlock()
	}
}

func (s *Store) entryDir(id string) string {
	if len(id) < 2 {
		return filepath.Join(s.root, id, id)
	}
	return filepath.Join(s.root, id[:2], id)
}

// Get loads the fully materialized Entry for id, including chunk bodies.
// Returns (nil, nil) on a clean miss. A meta.json that parses but whose side
// files are missing/unreadable returns apperr.ErrCorruptEntry, which callers
// are expected to treat as a miss after logging it.
func (s *Store) Get(id string) (*entry.Entry, error) {
	dir := s.entryDir(id)
	metaPath := filepath.Join(dir, "meta.json")

	raw, err := os.ReadFile(metaPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.NewStorageError("get:read_meta", err)
	}

	var m meta
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse meta.json for %s: %w", id, apperr.ErrCorruptEntry)
	}

	e := &entry.Entry{
		ID:       m.ID,
		Request:  m.Request,
		Response: m.Response,
		Metadata: m.Metadata,
	}

	if m.Response.IsStreaming {
		chunks, err := readChunks(dir)
		if err != nil {
			return nil, fmt.Errorf("read chunks for %s: %w", id, apperr.ErrCorruptEntry)
		}
		e.Chunks = chunks
	} else {
		body, err := os.ReadFile(filepath.Join(dir, "response.bin"))
		if err != nil {
			return nil, fmt.Errorf("read response.bin for %s: %w", id, apperr.ErrCorruptEntry)
		}
		e.Response.Body = body
	}

	return e, nil
}

func readChunks(dir string) ([][]byte, error) {
	indexPath := filepath.Join(dir, "chunks", "index")
	raw, err := os.ReadFile(indexPath)
	if err != nil {
		return nil, err
	}
	var count int
	if _, err := fmt.Sscanf(string(bytes.TrimSpace(raw)), "%d", &count); err != nil {
		return nil, err
	}

	chunks := make([][]byte, count)
	for i := 0; i < count; i++ {
		name := filepath.Join(dir, "chunks", fmt.Sprintf("%06d.bin", i))
		b, err := os.ReadFile(name)
		if err != nil {
			return nil, err
		}
		chunks[i] = b
	}
	return chunks, nil
}

// Put persists e atomically: every file is written into a sibling {id}.tmp
// directory via atomicfile.WriteFile (temp file + fsync + rename per file),
// then the whole directory is renamed into its final, fan-out location. A
// reader never observes the .tmp name; a crash mid-write orphans the .tmp
// directory, which Get/List simply never look at.
func (s *Store) Put(e *entry.Entry) error {
	finalDir := s.entryDir(e.ID)
	parent := filepath.Dir(finalDir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return apperr.NewStorageError("put:mkdir", err)
	}

	tmpDir := finalDir + ".tmp"
	if err := os.RemoveAll(tmpDir); err != nil {
		return apperr.NewStorageError("put:clean_tmp", err)
	}
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return apperr.NewStorageError("put:mkdir_tmp", err)
	}

	m := meta{ID: e.ID, Request: e.Request, Metadata: e.Metadata}
	m.Response = e.Response
	// meta.json never carries the body payload; side files do.
	m.Response.Body = nil

	metaBytes, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return apperr.NewStorageError("put:marshal_meta", err)
	}
	if err := atomicfile.WriteFile(filepath.Join(tmpDir, "meta.json"), bytes.NewReader(metaBytes)); err != nil {
		return apperr.NewStorageError("put:write_meta", err)
	}

	if err := atomicfile.WriteFile(filepath.Join(tmpDir, "request.bin"), bytes.NewReader(requestBytes(e.Request))); err != nil {
		return apperr.NewStorageError("put:write_request", err)
	}

	if e.Response.IsStreaming {
		chunksDir := filepath.Join(tmpDir, "chunks")
		if err := os.MkdirAll(chunksDir, 0o755); err != nil {
			return apperr.NewStorageError("put:mkdir_chunks", err)
		}
		for i, c := range e.Chunks {
			name := filepath.Join(chunksDir, fmt.Sprintf("%06d.bin", i))
			if err := atomicfile.WriteFile(name, bytes.NewReader(c)); err != nil {
				return apperr.NewStorageError("put:write_chunk", err)
			}
		}
		indexContent := []byte(fmt.Sprintf("%d\n", len(e.Chunks)))
		if err := atomicfile.WriteFile(filepath.Join(chunksDir, "index"), bytes.NewReader(indexContent)); err != nil {
			return apperr.NewStorageError("put:write_chunk_index", err)
		}
	} else {
		if err := atomicfile.WriteFile(filepath.Join(tmpDir, "response.bin"), bytes.NewReader(e.Response.Body)); err != nil {
			return apperr.NewStorageError("put:write_response", err)
		}
	}

	if err := os.RemoveAll(finalDir); err != nil {
		return apperr.NewStorageError("put:clean_final", err)
	}
	if err := os.Rename(tmpDir, finalDir); err != nil {
		return apperr.NewStorageError("put:rename", err)
	}

	s.recordStats(e)
	return nil
}

func requestBytes(r entry.Request) []byte {
	if r.Body.IsJSON {
		b, _ := json.Marshal(r.Body.JSON)
		return b
	}
	return r.Body.Raw
}

// List walks {root}/*/*/meta.json and returns a summary per entry, sorted
// by id.
func (s *Store) List() ([]entry.Summary, error) {
	var out []entry.Summary
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, apperr.NewStorageError("list:readdir", err)
	}
	for _, shard := range entries {
		if !shard.IsDir() {
			continue
		}
		shardPath := filepath.Join(s.root, shard.Name())
		ids, err := os.ReadDir(shardPath)
		if err != nil {
			continue
		}
		for _, idDir := range ids {
			name := idDir.Name()
			if !idDir.IsDir() || filepath.Ext(name) == ".tmp" {
				continue
			}
			raw, err := os.ReadFile(filepath.Join(shardPath, name, "meta.json"))
			if err != nil {
				continue
			}
			var m meta
			if err := json.Unmarshal(raw, &m); err != nil {
				continue
			}
			out = append(out, entry.Summary{
				ID:          m.ID,
				Method:      m.Request.Method,
				Path:        m.Request.Path,
				Status:      m.Response.StatusCode,
				IsStreaming: m.Response.IsStreaming,
				Model:       m.Metadata.Model,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Stats returns the live, lock-guarded summary without re-walking the tree.
func (s *Store) Stats() entry.Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	byModel := make(map[string]int, len(s.entriesByModel))
	for k, v := range s.entriesByModel {
		byModel[k] = v
	}
	return entry.Stats{
		TotalEntries:       int(s.totalEntries.Load()),
		TotalSizeBytes:     s.totalSizeBytes.Load(),
		StreamingResponses: int(s.streamingResponses.Load()),
		EntriesByModel:     byModel,
	}
}

func (s *Store) recordStats(e *entry.Entry) {
	s.totalEntries.Inc()
	if e.Response.IsStreaming {
		s.streamingResponses.Inc()
		var n int64
		for _, c := range e.Chunks {
			n += int64(len(c))
		}
		s.totalSizeBytes.Add(n)
	} else {
		s.totalSizeBytes.Add(int64(len(e.Response.Body)))
	}

	if e.Metadata.Model != "" {
		s.statsMu.Lock()
		s.entriesByModel[e.Metadata.Model]++
		s.statsMu.Unlock()
	}
}

func (s *Store) rebuildStats() error {
	summaries, err := s.List()
	if err != nil {
		return err
	}
	s.totalEntries.Store(0)
	s.totalSizeBytes.Store(0)
	s.streamingResponses.Store(0)
	s.statsMu.Lock()
	s.entriesByModel = make(map[string]int)
	s.statsMu.Unlock()

	for _, sm := range summaries {
		s.totalEntries.Inc()
		if sm.IsStreaming {
			s.streamingResponses.Inc()
		}
		if sm.Model != "" {
			s.statsMu.Lock()
			s.entriesByModel[sm.Model]++
			s.statsMu.Unlock()
		}
		if n, err := dirSize(s.entryDirForSummary(sm)); err == nil {
			s.totalSizeBytes.Add(n)
		}
	}
	return nil
}

func (s *Store) entryDirForSummary(sm entry.Summary) string {
	return s.entryDir(sm.ID)
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}

// Clear removes every entry under the store root. Refuses to operate on a
// directory that doesn't look like a cache root at all — one missing both
// a two-hex-character shard directory and any meta.json anywhere beneath
// it — to limit the blast radius of a misconfigured path. A stray
// unrelated file sitting alongside otherwise-valid shard directories does
// not trip the refusal; the whole directory is still cleared.
func (s *Store) Clear() error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return apperr.NewStorageError("clear:readdir", err)
	}

	if !looksLikeCacheRoot(entries) {
		found, err := anyMetaJSONBeneath(s.root)
		if err != nil {
			return apperr.NewStorageError("clear:walk", err)
		}
		if !found {
			return fmt.Errorf("%w: %s does not look like a cache root (no shard directories or meta.json found)", apperr.ErrStorageIO, s.root)
		}
	}

	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(s.root, e.Name())); err != nil {
			return apperr.NewStorageError("clear:removeall", err)
		}
	}

	s.totalEntries.Store(0)
	s.totalSizeBytes.Store(0)
	s.streamingResponses.Store(0)
	s.statsMu.Lock()
	s.entriesByModel = make(map[string]int)
	s.statsMu.Unlock()
	return nil
}

// looksLikeCacheRoot reports whether any top-level entry is a
// two-hex-character shard directory.
func looksLikeCacheRoot(entries []os.DirEntry) bool {
	for _, e := range entries {
		if e.IsDir() && looksLikeShard(e.Name()) {
			return true
		}
	}
	return false
}

// anyMetaJSONBeneath walks root looking for a meta.json file at any depth,
// the fallback check for a root whose top level has no shard directories
// but whose contents were otherwise clearly produced by this store (e.g. a
// custom or flattened layout).
func anyMetaJSONBeneath(root string) (bool, error) {
	found := false
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if found {
			return filepath.SkipDir
		}
		if !info.IsDir() && info.Name() == "meta.json" {
			found = true
			return filepath.SkipDir
		}
		return nil
	})
	return found, err
}

func looksLikeShard(name string) bool {
	if len(name) != 2 {
		return false
	}
	for _, r := range name {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			return false
		}
	}
	return true
}

// sweepOrphans removes any {id}.tmp directories left behind by a crash
// mid-Put. Not required for correctness (Get/List already ignore them) but
// keeps long-lived stores from accumulating dead weight.
func (s *Store) sweepOrphans() error {
	shards, err := os.ReadDir(s.root)
	if err != nil {
		return apperr.NewStorageError("sweep:readdir", err)
	}
	for _, shard := range shards {
		if !shard.IsDir() {
			continue
		}
		shardPath := filepath.Join(s.root, shard.Name())
		ids, err := os.ReadDir(shardPath)
		if err != nil {
			continue
		}
		for _, idDir := range ids {
			if filepath.Ext(idDir.Name()) == ".tmp" {
				_ = os.RemoveAll(filepath.Join(shardPath, idDir.Name()))
			}
		}
	}
	return nil
}
