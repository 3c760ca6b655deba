// internal/buffer/buffer.go
package buffer

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ReignOfTea/protest-dash/internal/content"
	"github.com/ReignOfTea/protest-dash/internal/errors"
	"github.com/ReignOfTea/protest-dash/internal/github"
	shared "github.com/ReignOfTea/protest-dash/shared/types"
	"github.com/ReignOfTea/protest-dash/shared/utils"
)

// Fetcher is the slice of the remote store the buffer needs: reading
// one file's current content and revision marker.
type Fetcher interface {
	GetFile(ctx context.Context, path string) (*github.RemoteFile, error)
}

// entry pairs a tracked file with the hash of its last known clean
// content, which is what the dirty comparison runs against.
type entry struct {
	file     shared.TrackedFile
	baseHash string
}

// Buffer holds one session's tracked files. All operations take the
// buffer's own mutex, giving each session a single-writer discipline
// without serializing sessions against each other.
type Buffer struct {
	mu      sync.Mutex
	fetcher Fetcher
	entries map[string]*entry // keyed by repository path
}

func New(fetcher Fetcher) *Buffer {
	return &Buffer{
		fetcher: fetcher,
		entries: map[string]*entry{},
	}
}

// Get returns the tracked file for name, fetching it from the remote
// store the first time it is referenced. A file absent remotely starts
// from its default skeleton with a nil revision marker; that is a
// normal state, not an error.
func (b *Buffer) Get(ctx context.Context, name string) (shared.TrackedFile, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	path := content.PathFor(name)
	if e, ok := b.entries[path]; ok {
		return e.file, nil
	}

	e, err := b.fetch(ctx, name, path)
	if err != nil {
		return shared.TrackedFile{}, err
	}
	b.entries[path] = e
	return e.file, nil
}

func (b *Buffer) fetch(ctx context.Context, name, path string) (*entry, error) {
	remote, err := b.fetcher.GetFile(ctx, path)

	var text string
	var marker *string
	switch {
	case err == nil:
		text, err = content.Canonical(remote.Content)
		if err != nil {
			return nil, errors.ParseError("remote file is not valid JSON", map[string]any{"path": path})
		}
		sha := remote.SHA
		marker = &sha
	case errors.IsType(err, errors.ErrorTypeNotFound):
		text, err = content.Canonical(content.DefaultFor(name))
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	return &entry{
		file: shared.TrackedFile{
			Name:           content.Normalize(name),
			Path:           path,
			Content:        text,
			RevisionMarker: marker,
			FetchedAt:      time.Now(),
		},
		baseHash: utils.HashContent([]byte(text)),
	}, nil
}

// SetContent stages new content for name. The file turns dirty only if
// the canonical serialization actually differs from the last clean
// state; restaging identical content keeps it clean.
func (b *Buffer) SetContent(name string, raw []byte) (shared.TrackedFile, error) {
	text, err := content.Canonical(raw)
	if err != nil {
		return shared.TrackedFile{}, errors.ValidationError("content is not valid JSON", map[string]any{"name": name})
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	path := content.PathFor(name)
	e, ok := b.entries[path]
	if !ok {
		// Staged before ever being fetched: there is no known clean
		// baseline, so the file is dirty by definition.
		e = &entry{
			file: shared.TrackedFile{
				Name: content.Normalize(name),
				Path: path,
			},
		}
		b.entries[path] = e
	}

	e.file.Content = text
	e.file.Dirty = e.baseHash == "" || utils.HashContent([]byte(text)) != e.baseHash
	return e.file, nil
}

// Dirty returns the staged changes as a commit feed, in stable path
// order.
func (b *Buffer) Dirty() []shared.FileChange {
	b.mu.Lock()
	defer b.mu.Unlock()

	var changes []shared.FileChange
	for path, e := range b.entries {
		if e.file.Dirty {
			changes = append(changes, shared.FileChange{Path: path, Content: e.file.Content})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes
}

// Files returns a snapshot of every tracked file, in stable path order.
func (b *Buffer) Files() []shared.TrackedFile {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]shared.TrackedFile, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e.file)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// MarkClean resets the dirty flag after a successful commit. The new
// content becomes the clean baseline. Revision markers are not
// refreshed here: the commit result carries no per-file markers, so
// they go stale until the next Discard and re-fetch.
func (b *Buffer) MarkClean(paths []string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, path := range paths {
		if e, ok := b.entries[path]; ok {
			e.file.Dirty = false
			e.baseHash = utils.HashContent([]byte(e.file.Content))
		}
	}
}

// Discard drops staged state for the given names, or for everything
// when called with none. The next Get re-fetches from the remote.
func (b *Buffer) Discard(names ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(names) == 0 {
		b.entries = map[string]*entry{}
		return
	}
	for _, name := range names {
		delete(b.entries, content.PathFor(name))
	}
}

// RemoveLocation deletes the location with the given id and purges
// every dependent time, repeating-event and live entry referencing it.
// Referential integrity holds inside this buffer only; nothing is
// committed until the next push. The returned map counts removed
// entries per file name.
func (b *Buffer) RemoveLocation(ctx context.Context, id string) (map[string]int, error) {
	if id == "" {
		return nil, errors.ValidationError("location id must not be empty", nil)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	locations, err := b.entriesOf(ctx, "locations")
	if err != nil {
		return nil, err
	}

	kept, removedCount := filterEntries(locations, "id", id)
	if removedCount == 0 {
		return nil, errors.NotFound(fmt.Sprintf("location not found: %s", id))
	}

	removed := map[string]int{"locations": removedCount}
	if err := b.stageEntries("locations", kept); err != nil {
		return nil, err
	}

	for _, name := range content.LocationDependents() {
		list, err := b.entriesOf(ctx, name)
		if err != nil {
			return nil, err
		}

		kept, count := filterEntries(list, content.LocationRefField, id)
		if count == 0 {
			continue
		}
		if err := b.stageEntries(name, kept); err != nil {
			return nil, err
		}
		removed[name] = count
	}

	return removed, nil
}

// entriesOf returns the decoded list for a list-shaped file, fetching
// it first if it is not tracked yet. Callers must hold b.mu.
func (b *Buffer) entriesOf(ctx context.Context, name string) ([]any, error) {
	path := content.PathFor(name)
	e, ok := b.entries[path]
	if !ok {
		var err error
		e, err = b.fetch(ctx, name, path)
		if err != nil {
			return nil, err
		}
		b.entries[path] = e
	}

	var list []any
	if err := json.Unmarshal([]byte(e.file.Content), &list); err != nil {
		return nil, errors.ParseError(fmt.Sprintf("%s is not a list", name), nil)
	}
	return list, nil
}

// stageEntries re-serializes a mutated list and updates its dirty flag
// the same way SetContent does. Callers must hold b.mu.
func (b *Buffer) stageEntries(name string, list []any) error {
	text, err := content.Render(list)
	if err != nil {
		return err
	}

	e := b.entries[content.PathFor(name)]
	e.file.Content = text
	e.file.Dirty = e.baseHash == "" || utils.HashContent([]byte(text)) != e.baseHash
	return nil
}

// filterEntries drops the list entries whose field equals value.
func filterEntries(list []any, field, value string) ([]any, int) {
	kept := make([]any, 0, len(list))
	removed := 0
	for _, item := range list {
		m, ok := item.(map[string]any)
		if ok && m[field] == value {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	return kept, removed
}
