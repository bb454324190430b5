package novel

import (
	"strings"
	"time"
)

// Story is the root narrative entity. Chapters, characters, and world
// elements all hang off a story ID.
type Story struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	Genre           string    `json:"genre,omitempty"`
	TargetChapters  int       `json:"target_chapters,omitempty"`
	TargetWordCount int       `json:"target_word_count,omitempty"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
	UpdatedAt       time.Time `json:"updated_at,omitempty"`
}

// Character belongs to a story and is referenced, never mutated, by the
// generation subsystem.
type Character struct {
	ID          string            `json:"id"`
	StoryID     string            `json:"story_id"`
	Name        string            `json:"name"`
	Role        string            `json:"role,omitempty"` // protagonist/antagonist/supporting, free-form
	Profile     string            `json:"profile,omitempty"`
	Personality string            `json:"personality,omitempty"`
	Motivations string            `json:"motivations,omitempty"`
	Arc         string            `json:"arc,omitempty"`
	Traits      map[string]string `json:"traits,omitempty"`
}

// WorldElement is a single piece of world building (location, organization,
// culture, technology, history, custom).
type WorldElement struct {
	ID           string            `json:"id"`
	StoryID      string            `json:"story_id"`
	Name         string            `json:"name"`
	Type         string            `json:"type,omitempty"`
	Description  string            `json:"description,omitempty"`
	Significance string            `json:"significance,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
}

// Act groups chapters inside an outline. Optional; chapters may be unassigned.
type Act struct {
	ID      string `json:"id"`
	StoryID string `json:"story_id"`
	Number  int    `json:"number"`
	Title   string `json:"title,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// Chapter stores both the outline (Summary) and the generated text (Content).
// WordCount is a derived field: it must be recomputed whenever Content
// changes, via RecountWords.
type Chapter struct {
	ID          string    `json:"id"`
	StoryID     string    `json:"story_id"`
	ActID       string    `json:"act_id,omitempty"`
	Number      int       `json:"number"`
	Title       string    `json:"title,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	Content     string    `json:"content,omitempty"`
	IsGenerated bool      `json:"is_generated,omitempty"`
	WordCount   int       `json:"word_count,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// RecountWords refreshes the cached word count from Content.
func (c *Chapter) RecountWords() {
	c.WordCount = CountWords(c.Content)
}

// Revision is an immutable snapshot of a chapter's generated content taken
// before an overwrite. Numbers are per-chapter, starting at 1, never reused.
type Revision struct {
	ID        string    `json:"id"`
	ChapterID string    `json:"chapter_id"`
	Number    int       `json:"number"`
	Content   string    `json:"content"`
	Summary   string    `json:"summary,omitempty"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CountWords counts whitespace-delimited tokens. Empty content yields 0.
func CountWords(text string) int {
	return len(strings.Fields(text))
}
