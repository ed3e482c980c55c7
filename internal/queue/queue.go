// Package queue holds per-guild track queues and the set of soundcrons whose
// already scheduled runs must be skipped.
package queue

import (
	"context"
	"sync"
)

// Track is a queued playback request.
type Track struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	RequestedBy string `json:"requestedBy,omitempty"`
}

// Queue is a FIFO of tracks per guild.
type Queue interface {
	// Push appends a track and returns the new queue length.
	Push(ctx context.Context, guildID string, track Track) (int, error)
	// Pop removes the head of the queue. ok is false when it is empty.
	Pop(ctx context.Context, guildID string) (track Track, ok bool, err error)
	// List returns up to limit tracks from the head without removing them.
	List(ctx context.Context, guildID string, limit int) ([]Track, error)
	Len(ctx context.Context, guildID string) (int, error)
	Clear(ctx context.Context, guildID string) error
}

type MemoryQueue struct {
	mu     sync.Mutex
	tracks map[string][]Track
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{tracks: make(map[string][]Track)}
}

var _ Queue = (*MemoryQueue)(nil)

func (q *MemoryQueue) Push(ctx context.Context, guildID string, track Track) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tracks[guildID] = append(q.tracks[guildID], track)
	return len(q.tracks[guildID]), nil
}

func (q *MemoryQueue) Pop(ctx context.Context, guildID string) (Track, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	tracks := q.tracks[guildID]
	if len(tracks) == 0 {
		return Track{}, false, nil
	}
	head := tracks[0]
	if len(tracks) == 1 {
		delete(q.tracks, guildID)
	} else {
		q.tracks[guildID] = tracks[1:]
	}
	return head, true, nil
}

func (q *MemoryQueue) List(ctx context.Context, guildID string, limit int) ([]Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	tracks := q.tracks[guildID]
	if limit > 0 && len(tracks) > limit {
		tracks = tracks[:limit]
	}
	out := make([]Track, len(tracks))
	copy(out, tracks)
	return out, nil
}

func (q *MemoryQueue) Len(ctx context.Context, guildID string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tracks[guildID]), nil
}

func (q *MemoryQueue) Clear(ctx context.Context, guildID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.tracks, guildID)
	return nil
}

// Blacklist records soundcrons that were deleted after some of their runs
// had already been claimed.
type Blacklist interface {
	AddToBlacklist(ctx context.Context, soundCronID string) error
	IsBlacklisted(ctx context.Context, soundCronID string) (bool, error)
}

type MemoryBlacklist struct {
	mu        sync.RWMutex
	blacklist map[string]struct{}
}

func NewMemoryBlacklist() *MemoryBlacklist {
	return &MemoryBlacklist{
		blacklist: make(map[string]struct{}),
	}
}

var _ Blacklist = (*MemoryBlacklist)(nil)

func (b *MemoryBlacklist) AddToBlacklist(ctx context.Context, soundCronID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blacklist[soundCronID] = struct{}{}
	return nil
}

func (b *MemoryBlacklist) IsBlacklisted(ctx context.Context, soundCronID string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.blacklist[soundCronID]
	return ok, nil
}
