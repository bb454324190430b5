// Package revision keeps append-only version history for generated chapter
// content. Snapshots are taken immediately before an overwrite and never
// mutated afterwards.
package revision

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vampirenirmal/novelforge/internal/novel"
	"github.com/vampirenirmal/novelforge/internal/store"
)

// DefaultNote annotates snapshots taken automatically before regeneration.
const DefaultNote = "Auto-saved before regeneration"

type Keeper struct {
	store  store.Store
	logger *slog.Logger
}

func NewKeeper(s store.Store, logger *slog.Logger) *Keeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Keeper{store: s, logger: logger.With("component", "revision_keeper")}
}

// Snapshot records the chapter's current content under the next revision
// number. Chapters with no content produce no snapshot and no error; there is
// nothing to preserve. Numbers are per-chapter, start at 1, and strictly
// increase.
func (k *Keeper) Snapshot(ctx context.Context, ch *novel.Chapter, note string) (*novel.Revision, error) {
	if strings.TrimSpace(ch.Content) == "" {
		return nil, nil
	}
	if note == "" {
		note = DefaultNote
	}

	last, err := k.store.LastRevisionNumber(ctx, ch.ID)
	if err != nil {
		return nil, fmt.Errorf("resolving revision number for chapter %s: %w", ch.ID, err)
	}

	rev := &novel.Revision{
		ChapterID: ch.ID,
		Number:    last + 1,
		Content:   ch.Content,
		Summary:   ch.Summary,
		Note:      note,
	}
	if err := k.store.SaveRevision(ctx, rev); err != nil {
		return nil, fmt.Errorf("saving revision %d for chapter %s: %w", rev.Number, ch.ID, err)
	}

	k.logger.Debug("chapter snapshot saved",
		"chapter_id", ch.ID,
		"revision", rev.Number,
		"content_words", novel.CountWords(rev.Content))

	return rev, nil
}
