package generation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DraftStage names the phase a draft run is in.
type DraftStage string

const (
	StageIdle      DraftStage = "idle"
	StageSeeding   DraftStage = "seeding"
	StageOutline   DraftStage = "outline"
	StageChapters  DraftStage = "chapters"
	StageDone      DraftStage = "done"
	StageCancelled DraftStage = "cancelled"
	StageFailed    DraftStage = "failed"
)

// DraftProgress is an observable snapshot of a running draft.
type DraftProgress struct {
	RunID          string     `json:"run_id"`
	Stage          DraftStage `json:"stage"`
	CurrentChapter int        `json:"current_chapter,omitempty"`
	ChaptersDone   int        `json:"chapters_done"`
	ChaptersTotal  int        `json:"chapters_total"`
	Err            error      `json:"-"`
}

// DraftOptions tunes a full-draft run. Zero counts fall back to the story's
// targets and the runner's defaults.
type DraftOptions struct {
	ChapterCount   int
	CharacterCount int
	WorldCount     int
	Chapter        ChapterOptions
}

// DraftRunner drives a full story draft as an explicit, cancellable task:
// seed characters and world elements, generate the outline, then generate
// every chapter in order. Cancellation is honored between chapters, never
// mid-chapter. One runner drives one run at a time; Progress may be read from
// any goroutine.
type DraftRunner struct {
	svc *Service

	mu       sync.Mutex
	progress DraftProgress
}

func NewDraftRunner(svc *Service) *DraftRunner {
	return &DraftRunner{svc: svc, progress: DraftProgress{Stage: StageIdle}}
}

// Progress returns the latest snapshot of the current or most recent run.
func (r *DraftRunner) Progress() DraftProgress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

func (r *DraftRunner) set(update func(*DraftProgress)) {
	r.mu.Lock()
	update(&r.progress)
	r.mu.Unlock()
}

// Run executes a full draft. It returns once the run reaches a terminal
// stage; the error mirrors the terminal Err in Progress.
func (r *DraftRunner) Run(ctx context.Context, storyID string, opts DraftOptions) error {
	runID := uuid.NewString()
	logger := r.svc.logger.With("run_id", runID, "story_id", storyID)
	start := time.Now()

	r.set(func(p *DraftProgress) { *p = DraftProgress{RunID: runID, Stage: StageSeeding} })

	if err := r.seed(ctx, storyID, opts); err != nil {
		return r.fail(ctx, fmt.Errorf("seeding story elements: %w", err))
	}

	r.set(func(p *DraftProgress) { p.Stage = StageOutline })
	outline, err := r.svc.GenerateOutline(ctx, storyID, OutlineOptions{ChapterCount: opts.ChapterCount})
	if err != nil {
		return r.fail(ctx, fmt.Errorf("generating outline: %w", err))
	}

	total := len(outline.Chapters)
	r.set(func(p *DraftProgress) {
		p.Stage = StageChapters
		p.ChaptersTotal = total
	})
	logger.Info("draft run started chapters", "chapters", total)

	for _, ch := range outline.Chapters {
		// Cancellation point: between chapters only.
		if err := ctx.Err(); err != nil {
			r.set(func(p *DraftProgress) {
				p.Stage = StageCancelled
				p.Err = err
			})
			logger.Info("draft run cancelled", "chapters_done", r.Progress().ChaptersDone)
			return err
		}

		r.set(func(p *DraftProgress) { p.CurrentChapter = ch.Number })
		res, err := r.svc.GenerateChapter(ctx, storyID, ch.Number, opts.Chapter)
		if err != nil {
			return r.fail(ctx, fmt.Errorf("chapter %d: %w", ch.Number, err))
		}
		if !res.Success {
			return r.fail(ctx, fmt.Errorf("chapter %d: %w", ch.Number, res.Err))
		}
		r.set(func(p *DraftProgress) { p.ChaptersDone++ })
	}

	r.set(func(p *DraftProgress) {
		p.Stage = StageDone
		p.CurrentChapter = 0
	})
	logger.Info("draft run completed",
		"chapters", total,
		"duration", time.Since(start).String())
	return nil
}

// seed generates characters and world elements concurrently when the story
// has none yet.
func (r *DraftRunner) seed(ctx context.Context, storyID string, opts DraftOptions) error {
	characterCount := opts.CharacterCount
	if characterCount == 0 {
		characterCount = 5
	}
	worldCount := opts.WorldCount
	if worldCount == 0 {
		worldCount = 5
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		existing, err := r.svc.store.FindCharacters(gctx, storyID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return nil
		}
		_, err = r.svc.GenerateCharacters(gctx, storyID, characterCount)
		return err
	})
	g.Go(func() error {
		existing, err := r.svc.store.FindWorldElements(gctx, storyID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return nil
		}
		_, err = r.svc.GenerateWorldElements(gctx, storyID, worldCount)
		return err
	})
	return g.Wait()
}

func (r *DraftRunner) fail(ctx context.Context, err error) error {
	stage := StageFailed
	if ctx.Err() != nil {
		stage = StageCancelled
	}
	r.set(func(p *DraftProgress) {
		p.Stage = stage
		p.Err = err
	})
	return err
}
