package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vampirenirmal/novelforge/internal/novel"
)

// FileSystem persists each story as a single JSON document under a base
// directory. It is a collaborator stand-in, not a database: reads load the
// whole document, writes rewrite it.
type FileSystem struct {
	baseDir string
	mu      sync.Mutex
}

// storyDoc is the on-disk shape of one story and everything attached to it.
type storyDoc struct {
	Story      novel.Story          `json:"story"`
	Characters []novel.Character    `json:"characters,omitempty"`
	World      []novel.WorldElement `json:"world,omitempty"`
	Acts       []novel.Act          `json:"acts,omitempty"`
	Chapters   []novel.Chapter      `json:"chapters,omitempty"`
	Revisions  []novel.Revision     `json:"revisions,omitempty"`
}

func NewFileSystem(baseDir string) *FileSystem {
	return &FileSystem{baseDir: baseDir}
}

// sanitizePath validates and cleans the path to prevent directory traversal.
func (fs *FileSystem) sanitizePath(path string) (string, error) {
	cleaned := filepath.Clean(path)

	if strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid path: contains parent directory reference")
	}
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid path: absolute paths not allowed")
	}

	fullPath := filepath.Join(fs.baseDir, cleaned)
	if !strings.HasPrefix(fullPath, fs.baseDir+string(filepath.Separator)) && fullPath != fs.baseDir {
		return "", fmt.Errorf("invalid path: outside base directory")
	}

	return fullPath, nil
}

func (fs *FileSystem) docPath(storyID string) (string, error) {
	if storyID == "" {
		return "", fmt.Errorf("invalid path: empty story id")
	}
	return fs.sanitizePath(storyID + ".json")
}

func (fs *FileSystem) load(storyID string) (*storyDoc, error) {
	path, err := fs.docPath(storyID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading story document: %w", err)
	}

	var doc storyDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding story document: %w", err)
	}
	return &doc, nil
}

func (fs *FileSystem) save(doc *storyDoc) error {
	path, err := fs.docPath(doc.Story.ID)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding story document: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing story document: %w", err)
	}
	return nil
}

func (fs *FileSystem) FindStory(ctx context.Context, id string) (*novel.Story, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	doc, err := fs.load(id)
	if err != nil {
		return nil, err
	}
	out := doc.Story
	return &out, nil
}

func (fs *FileSystem) FindCharacters(ctx context.Context, storyID string) ([]novel.Character, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	doc, err := fs.load(storyID)
	if err != nil {
		return nil, err
	}
	return doc.Characters, nil
}

func (fs *FileSystem) FindWorldElements(ctx context.Context, storyID string) ([]novel.WorldElement, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	doc, err := fs.load(storyID)
	if err != nil {
		return nil, err
	}
	return doc.World, nil
}

func (fs *FileSystem) FindChapters(ctx context.Context, storyID string) ([]novel.Chapter, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	doc, err := fs.load(storyID)
	if err != nil {
		return nil, err
	}
	out := append([]novel.Chapter(nil), doc.Chapters...)
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (fs *FileSystem) FindChapter(ctx context.Context, storyID string, number int) (*novel.Chapter, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	doc, err := fs.load(storyID)
	if err != nil {
		return nil, err
	}
	for _, ch := range doc.Chapters {
		if ch.Number == number {
			out := ch
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (fs *FileSystem) UpsertStory(ctx context.Context, s *novel.Story) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.UpdatedAt = time.Now()

	doc, err := fs.load(s.ID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		doc = &storyDoc{}
	}
	doc.Story = *s
	return fs.save(doc)
}

func (fs *FileSystem) UpsertChapter(ctx context.Context, ch *novel.Chapter) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	doc, err := fs.load(ch.StoryID)
	if err != nil {
		return err
	}

	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}
	ch.UpdatedAt = time.Now()

	replaced := false
	for i := range doc.Chapters {
		if doc.Chapters[i].ID == ch.ID || doc.Chapters[i].Number == ch.Number {
			ch.ID = doc.Chapters[i].ID
			doc.Chapters[i] = *ch
			replaced = true
			break
		}
	}
	if !replaced {
		doc.Chapters = append(doc.Chapters, *ch)
	}
	return fs.save(doc)
}

func (fs *FileSystem) UpsertCharacter(ctx context.Context, c *novel.Character) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	doc, err := fs.load(c.StoryID)
	if err != nil {
		return err
	}

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	replaced := false
	for i := range doc.Characters {
		if doc.Characters[i].ID == c.ID {
			doc.Characters[i] = *c
			replaced = true
			break
		}
	}
	if !replaced {
		doc.Characters = append(doc.Characters, *c)
	}
	return fs.save(doc)
}

func (fs *FileSystem) UpsertWorldElement(ctx context.Context, w *novel.WorldElement) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	doc, err := fs.load(w.StoryID)
	if err != nil {
		return err
	}

	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	replaced := false
	for i := range doc.World {
		if doc.World[i].ID == w.ID {
			doc.World[i] = *w
			replaced = true
			break
		}
	}
	if !replaced {
		doc.World = append(doc.World, *w)
	}
	return fs.save(doc)
}

func (fs *FileSystem) ReplaceOutline(ctx context.Context, storyID string, acts []novel.Act, chapters []novel.Chapter) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	doc, err := fs.load(storyID)
	if err != nil {
		return err
	}

	doc.Acts = doc.Acts[:0]
	for _, a := range acts {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		a.StoryID = storyID
		doc.Acts = append(doc.Acts, a)
	}

	doc.Chapters = doc.Chapters[:0]
	for _, ch := range chapters {
		if ch.ID == "" {
			ch.ID = uuid.NewString()
		}
		ch.StoryID = storyID
		doc.Chapters = append(doc.Chapters, ch)
	}
	return fs.save(doc)
}

func (fs *FileSystem) SaveRevision(ctx context.Context, r *novel.Revision) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	doc, _, err := fs.loadByChapter(r.ChapterID)
	if err != nil {
		return err
	}

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	doc.Revisions = append(doc.Revisions, *r)
	return fs.save(doc)
}

func (fs *FileSystem) LastRevisionNumber(ctx context.Context, chapterID string) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	doc, _, err := fs.loadByChapter(chapterID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}

	last := 0
	for _, r := range doc.Revisions {
		if r.ChapterID == chapterID && r.Number > last {
			last = r.Number
		}
	}
	return last, nil
}

// loadByChapter scans story documents for the one containing the chapter.
// Linear over stories; fine for a file-backed stand-in.
func (fs *FileSystem) loadByChapter(chapterID string) (*storyDoc, string, error) {
	matches, err := filepath.Glob(filepath.Join(fs.baseDir, "*.json"))
	if err != nil {
		return nil, "", fmt.Errorf("listing story documents: %w", err)
	}

	for _, match := range matches {
		id := strings.TrimSuffix(filepath.Base(match), ".json")
		doc, err := fs.load(id)
		if err != nil {
			continue
		}
		for _, ch := range doc.Chapters {
			if ch.ID == chapterID {
				return doc, id, nil
			}
		}
	}
	return nil, "", ErrNotFound
}
