// Package narrative builds the read-only context snapshot handed to the
// prompt composer. A Context is assembled fresh per request and never cached;
// nothing in it aliases stored entities.
package narrative

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/vampirenirmal/novelforge/internal/store"
)

// descriptionBudget bounds free-text fields copied into prompts. Truncation
// is lossy and one-way; the marker makes it visible in rendered prompts.
const (
	descriptionBudget = 200
	truncationMarker  = "..."

	// upcomingLookahead bounds how many future chapter summaries ride along
	// with a chapter request.
	upcomingLookahead = 3
)

// StoryMeta is the story header of a Context.
type StoryMeta struct {
	Title           string
	Description     string
	Genre           string
	TargetChapters  int
	TargetWordCount int
}

// CharacterSummary is the prompt-facing view of a character.
type CharacterSummary struct {
	Name        string
	Role        string
	Personality string
	Motivations string
	Arc         string
	Traits      map[string]string
}

// WorldFactSummary is the prompt-facing view of a world element. Description
// may be truncated to the prompt budget.
type WorldFactSummary struct {
	Name         string
	Type         string
	Description  string
	Significance string
}

// ChapterSummary is the prompt-facing view of a chapter. Content is only
// populated for prior chapters.
type ChapterSummary struct {
	Number    int
	Title     string
	Summary   string
	Generated bool
	WordCount int
	Content   string
}

// Context is the assembled snapshot. WorldFacts groups elements by type;
// Categories preserves a deterministic category order for rendering.
type Context struct {
	Story            StoryMeta
	Cast             []CharacterSummary
	WorldFacts       map[string][]WorldFactSummary
	Categories       []string
	PriorChapters    []ChapterSummary
	UpcomingChapters []ChapterSummary
	CurrentChapter   *ChapterSummary
}

// Assembler reads entities through the storage collaborator and produces
// Context values.
type Assembler struct {
	store  store.Store
	logger *slog.Logger
}

func NewAssembler(s store.Store, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{store: s, logger: logger.With("component", "context_assembler")}
}

// StoryContext assembles the story-level snapshot: metadata, full cast, and
// world facts. No chapter sections.
func (a *Assembler) StoryContext(ctx context.Context, storyID string) (*Context, error) {
	story, err := a.store.FindStory(ctx, storyID)
	if err != nil {
		return nil, fmt.Errorf("loading story %s: %w", storyID, err)
	}

	out := &Context{
		Story: StoryMeta{
			Title:           story.Title,
			Description:     story.Description,
			Genre:           story.Genre,
			TargetChapters:  story.TargetChapters,
			TargetWordCount: story.TargetWordCount,
		},
		WorldFacts: make(map[string][]WorldFactSummary),
	}

	characters, err := a.store.FindCharacters(ctx, storyID)
	if err != nil {
		return nil, fmt.Errorf("loading characters: %w", err)
	}
	for _, c := range characters {
		out.Cast = append(out.Cast, CharacterSummary{
			Name:        c.Name,
			Role:        c.Role,
			Personality: c.Personality,
			Motivations: c.Motivations,
			Arc:         c.Arc,
			Traits:      copyTraits(c.Traits),
		})
	}

	elements, err := a.store.FindWorldElements(ctx, storyID)
	if err != nil {
		return nil, fmt.Errorf("loading world elements: %w", err)
	}
	for _, w := range elements {
		category := w.Type
		if category == "" {
			category = "general"
		}
		out.WorldFacts[category] = append(out.WorldFacts[category], WorldFactSummary{
			Name:         w.Name,
			Type:         category,
			Description:  Truncate(w.Description, descriptionBudget),
			Significance: w.Significance,
		})
	}
	for category := range out.WorldFacts {
		out.Categories = append(out.Categories, category)
	}
	sort.Strings(out.Categories)

	a.logger.Debug("story context assembled",
		"story_id", storyID,
		"cast_size", len(out.Cast),
		"world_categories", len(out.Categories))

	return out, nil
}

// ChapterContext assembles the story snapshot plus the chapter sections:
// the target chapter, every earlier chapter that already has content, and up
// to the next three chapters by number.
func (a *Assembler) ChapterContext(ctx context.Context, storyID string, number int) (*Context, error) {
	out, err := a.StoryContext(ctx, storyID)
	if err != nil {
		return nil, err
	}

	chapters, err := a.store.FindChapters(ctx, storyID)
	if err != nil {
		return nil, fmt.Errorf("loading chapters: %w", err)
	}

	var current *ChapterSummary
	for _, ch := range chapters {
		summary := ChapterSummary{
			Number:    ch.Number,
			Title:     ch.Title,
			Summary:   ch.Summary,
			Generated: ch.IsGenerated,
			WordCount: ch.WordCount,
		}

		switch {
		case ch.Number == number:
			c := summary
			current = &c
		case ch.Number < number && strings.TrimSpace(ch.Content) != "":
			summary.Content = ch.Content
			out.PriorChapters = append(out.PriorChapters, summary)
		case ch.Number > number && len(out.UpcomingChapters) < upcomingLookahead:
			out.UpcomingChapters = append(out.UpcomingChapters, summary)
		}
	}
	if current == nil {
		return nil, fmt.Errorf("chapter %d of story %s: %w", number, storyID, store.ErrNotFound)
	}
	out.CurrentChapter = current

	a.logger.Debug("chapter context assembled",
		"story_id", storyID,
		"chapter", number,
		"prior_chapters", len(out.PriorChapters),
		"upcoming_chapters", len(out.UpcomingChapters))

	return out, nil
}

// Truncate caps s at budget characters, appending the truncation marker when
// anything was cut. Splits on a rune boundary, never mid-rune.
func Truncate(s string, budget int) string {
	if budget <= 0 || len(s) <= budget {
		return s
	}
	runes := []rune(s)
	if len(runes) <= budget {
		return s
	}
	return string(runes[:budget]) + truncationMarker
}

func copyTraits(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
