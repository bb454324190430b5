package store

import (
	"context"
	"errors"

	"github.com/vampirenirmal/novelforge/internal/novel"
)

// ErrNotFound is returned when a referenced entity does not resolve.
var ErrNotFound = errors.New("entity not found")

// Store is the persistence collaborator consumed by the generation subsystem.
// Implementations are expected to serialize writes per entity; callers must
// not issue overlapping writes to the same entity from one logical request.
type Store interface {
	FindStory(ctx context.Context, id string) (*novel.Story, error)
	FindCharacters(ctx context.Context, storyID string) ([]novel.Character, error)
	FindWorldElements(ctx context.Context, storyID string) ([]novel.WorldElement, error)

	// FindChapters returns all chapters for the story ordered by number.
	FindChapters(ctx context.Context, storyID string) ([]novel.Chapter, error)
	FindChapter(ctx context.Context, storyID string, number int) (*novel.Chapter, error)

	UpsertStory(ctx context.Context, s *novel.Story) error
	UpsertChapter(ctx context.Context, ch *novel.Chapter) error
	UpsertCharacter(ctx context.Context, c *novel.Character) error
	UpsertWorldElement(ctx context.Context, w *novel.WorldElement) error

	// ReplaceOutline atomically deletes all existing chapters and acts for the
	// story and inserts the given ones. Used when a new outline is accepted.
	ReplaceOutline(ctx context.Context, storyID string, acts []novel.Act, chapters []novel.Chapter) error

	SaveRevision(ctx context.Context, r *novel.Revision) error
	LastRevisionNumber(ctx context.Context, chapterID string) (int, error)
}
