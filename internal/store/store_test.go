package store

import (
	"context"
	"errors"
	"testing"

	"github.com/vampirenirmal/novelforge/internal/novel"
)

// storeFactories lets the same behavioral tests run against both
// implementations.
func storeFactories(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"memory":     NewMemory(),
		"filesystem": NewFileSystem(t.TempDir()),
	}
}

func seedStory(t *testing.T, s Store) *novel.Story {
	t.Helper()
	story := &novel.Story{Title: "The Mist Harbor", Genre: "fantasy", TargetChapters: 10, TargetWordCount: 2500}
	if err := s.UpsertStory(context.Background(), story); err != nil {
		t.Fatalf("UpsertStory: %v", err)
	}
	if story.ID == "" {
		t.Fatal("UpsertStory did not assign an ID")
	}
	return story
}

func TestStoreFindStory(t *testing.T) {
	for name, s := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			story := seedStory(t, s)

			got, err := s.FindStory(ctx, story.ID)
			if err != nil {
				t.Fatalf("FindStory: %v", err)
			}
			if got.Title != story.Title {
				t.Errorf("Title = %q, want %q", got.Title, story.Title)
			}

			if _, err := s.FindStory(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("FindStory(missing) = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStoreChapterOrdering(t *testing.T) {
	for name, s := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			story := seedStory(t, s)

			for _, n := range []int{3, 1, 2} {
				ch := &novel.Chapter{StoryID: story.ID, Number: n, Title: "Chapter"}
				if err := s.UpsertChapter(ctx, ch); err != nil {
					t.Fatalf("UpsertChapter(%d): %v", n, err)
				}
			}

			chapters, err := s.FindChapters(ctx, story.ID)
			if err != nil {
				t.Fatalf("FindChapters: %v", err)
			}
			if len(chapters) != 3 {
				t.Fatalf("len(chapters) = %d, want 3", len(chapters))
			}
			for i, ch := range chapters {
				if ch.Number != i+1 {
					t.Errorf("chapters[%d].Number = %d, want %d", i, ch.Number, i+1)
				}
			}
		})
	}
}

func TestStoreUpsertChapterReplacesByNumber(t *testing.T) {
	for name, s := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			story := seedStory(t, s)

			first := &novel.Chapter{StoryID: story.ID, Number: 1, Content: "draft one"}
			if err := s.UpsertChapter(ctx, first); err != nil {
				t.Fatalf("UpsertChapter: %v", err)
			}

			second := &novel.Chapter{StoryID: story.ID, Number: 1, Content: "draft two"}
			if err := s.UpsertChapter(ctx, second); err != nil {
				t.Fatalf("UpsertChapter replace: %v", err)
			}
			if second.ID != first.ID {
				t.Errorf("replacement got new ID %q, want %q", second.ID, first.ID)
			}

			got, err := s.FindChapter(ctx, story.ID, 1)
			if err != nil {
				t.Fatalf("FindChapter: %v", err)
			}
			if got.Content != "draft two" {
				t.Errorf("Content = %q, want %q", got.Content, "draft two")
			}
		})
	}
}

func TestStoreReplaceOutline(t *testing.T) {
	for name, s := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			story := seedStory(t, s)

			old := &novel.Chapter{StoryID: story.ID, Number: 1, Summary: "stale"}
			if err := s.UpsertChapter(ctx, old); err != nil {
				t.Fatalf("UpsertChapter: %v", err)
			}

			acts := []novel.Act{{Number: 1, Title: "Act I"}}
			chapters := []novel.Chapter{
				{Number: 1, Title: "Arrival", Summary: "fresh"},
				{Number: 2, Title: "The Lighthouse", Summary: "fresh"},
			}
			if err := s.ReplaceOutline(ctx, story.ID, acts, chapters); err != nil {
				t.Fatalf("ReplaceOutline: %v", err)
			}

			got, err := s.FindChapters(ctx, story.ID)
			if err != nil {
				t.Fatalf("FindChapters: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("len(chapters) = %d, want 2", len(got))
			}
			if got[0].Summary != "fresh" {
				t.Errorf("stale chapter survived ReplaceOutline: %+v", got[0])
			}
			for _, ch := range got {
				if ch.StoryID != story.ID {
					t.Errorf("chapter StoryID = %q, want %q", ch.StoryID, story.ID)
				}
				if ch.ID == "" {
					t.Error("chapter ID not assigned")
				}
			}
		})
	}
}

func TestStoreRevisionNumbering(t *testing.T) {
	for name, s := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			story := seedStory(t, s)

			ch := &novel.Chapter{StoryID: story.ID, Number: 1, Content: "original"}
			if err := s.UpsertChapter(ctx, ch); err != nil {
				t.Fatalf("UpsertChapter: %v", err)
			}

			last, err := s.LastRevisionNumber(ctx, ch.ID)
			if err != nil {
				t.Fatalf("LastRevisionNumber: %v", err)
			}
			if last != 0 {
				t.Errorf("LastRevisionNumber before any snapshot = %d, want 0", last)
			}

			for i := 1; i <= 3; i++ {
				r := &novel.Revision{ChapterID: ch.ID, Number: i, Content: "snapshot"}
				if err := s.SaveRevision(ctx, r); err != nil {
					t.Fatalf("SaveRevision(%d): %v", i, err)
				}
			}

			last, err = s.LastRevisionNumber(ctx, ch.ID)
			if err != nil {
				t.Fatalf("LastRevisionNumber: %v", err)
			}
			if last != 3 {
				t.Errorf("LastRevisionNumber = %d, want 3", last)
			}
		})
	}
}

func TestFileSystemRejectsTraversal(t *testing.T) {
	fs := NewFileSystem(t.TempDir())

	if _, err := fs.FindStory(context.Background(), "../escape"); err == nil {
		t.Error("expected error for traversal story ID")
	}
	if _, err := fs.FindStory(context.Background(), "/etc/passwd"); err == nil {
		t.Error("expected error for absolute story ID")
	}
}
