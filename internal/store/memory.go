package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vampirenirmal/novelforge/internal/novel"
)

// Memory is an in-process Store used by tests and the demo command.
type Memory struct {
	mu        sync.RWMutex
	stories   map[string]novel.Story
	chars     map[string][]novel.Character    // keyed by story ID
	world     map[string][]novel.WorldElement // keyed by story ID
	acts      map[string][]novel.Act          // keyed by story ID
	chapters  map[string][]novel.Chapter      // keyed by story ID
	revisions map[string][]novel.Revision     // keyed by chapter ID
}

func NewMemory() *Memory {
	return &Memory{
		stories:   make(map[string]novel.Story),
		chars:     make(map[string][]novel.Character),
		world:     make(map[string][]novel.WorldElement),
		acts:      make(map[string][]novel.Act),
		chapters:  make(map[string][]novel.Chapter),
		revisions: make(map[string][]novel.Revision),
	}
}

func (m *Memory) FindStory(ctx context.Context, id string) (*novel.Story, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.stories[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := s
	return &out, nil
}

func (m *Memory) FindCharacters(ctx context.Context, storyID string) ([]novel.Character, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]novel.Character(nil), m.chars[storyID]...), nil
}

func (m *Memory) FindWorldElements(ctx context.Context, storyID string) ([]novel.WorldElement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]novel.WorldElement(nil), m.world[storyID]...), nil
}

func (m *Memory) FindChapters(ctx context.Context, storyID string) ([]novel.Chapter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := append([]novel.Chapter(nil), m.chapters[storyID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *Memory) FindChapter(ctx context.Context, storyID string, number int) (*novel.Chapter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, ch := range m.chapters[storyID] {
		if ch.Number == number {
			out := ch
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) UpsertStory(ctx context.Context, s *novel.Story) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.UpdatedAt = time.Now()
	m.stories[s.ID] = *s
	return nil
}

func (m *Memory) UpsertChapter(ctx context.Context, ch *novel.Chapter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}
	ch.UpdatedAt = time.Now()

	list := m.chapters[ch.StoryID]
	for i := range list {
		if list[i].ID == ch.ID || list[i].Number == ch.Number {
			ch.ID = list[i].ID
			list[i] = *ch
			return nil
		}
	}
	m.chapters[ch.StoryID] = append(list, *ch)
	return nil
}

func (m *Memory) UpsertCharacter(ctx context.Context, c *novel.Character) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	list := m.chars[c.StoryID]
	for i := range list {
		if list[i].ID == c.ID {
			list[i] = *c
			return nil
		}
	}
	m.chars[c.StoryID] = append(list, *c)
	return nil
}

func (m *Memory) UpsertWorldElement(ctx context.Context, w *novel.WorldElement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	list := m.world[w.StoryID]
	for i := range list {
		if list[i].ID == w.ID {
			list[i] = *w
			return nil
		}
	}
	m.world[w.StoryID] = append(list, *w)
	return nil
}

func (m *Memory) ReplaceOutline(ctx context.Context, storyID string, acts []novel.Act, chapters []novel.Chapter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.stories[storyID]; !ok {
		return ErrNotFound
	}

	newActs := make([]novel.Act, len(acts))
	for i, a := range acts {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		a.StoryID = storyID
		newActs[i] = a
	}

	newChapters := make([]novel.Chapter, len(chapters))
	for i, ch := range chapters {
		if ch.ID == "" {
			ch.ID = uuid.NewString()
		}
		ch.StoryID = storyID
		newChapters[i] = ch
	}

	m.acts[storyID] = newActs
	m.chapters[storyID] = newChapters
	return nil
}

func (m *Memory) SaveRevision(ctx context.Context, r *novel.Revision) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	m.revisions[r.ChapterID] = append(m.revisions[r.ChapterID], *r)
	return nil
}

func (m *Memory) LastRevisionNumber(ctx context.Context, chapterID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	last := 0
	for _, r := range m.revisions[chapterID] {
		if r.Number > last {
			last = r.Number
		}
	}
	return last, nil
}

// Revisions returns all snapshots for a chapter in creation order. Not part
// of the Store interface; used by tests and the demo command.
func (m *Memory) Revisions(chapterID string) []novel.Revision {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]novel.Revision(nil), m.revisions[chapterID]...)
}

// Acts returns the stored acts for a story ordered by number.
func (m *Memory) Acts(storyID string) []novel.Act {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := append([]novel.Act(nil), m.acts[storyID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}
