package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vampirenirmal/novelforge/internal/backend"
	"github.com/vampirenirmal/novelforge/internal/novel"
	"github.com/vampirenirmal/novelforge/internal/prompt"
	"github.com/vampirenirmal/novelforge/internal/quality"
)

// ChapterOptions tunes a single chapter generation. A zero TargetWordCount
// falls back to the story's target, then to the service default.
type ChapterOptions struct {
	TargetWordCount int `validate:"omitempty,gte=1500,lte=5000"`

	// QualityGate enables regeneration on low-scoring output. After the
	// attempt cap the last output is accepted regardless of score.
	QualityGate bool

	// Instruction is an optional caller directive appended to the prompt,
	// e.g. reader feedback driving a regeneration.
	Instruction string

	Complexity prompt.Complexity
}

// GenerateChapter runs the single-pass chapter workflow: compose, request,
// assess, and either accept or regenerate with corrective directives. The
// attempt cap bounds transient-failure retries and quality regenerations
// together. Backend failures are reported on the Result, not as a returned
// error; only absent entities and invalid options fail fast.
func (s *Service) GenerateChapter(ctx context.Context, storyID string, number int, opts ChapterOptions) (*Result, error) {
	if err := s.validate.Struct(opts); err != nil {
		return nil, validationErr("chapter options: %v", err)
	}
	if number < 1 {
		return nil, validationErr("chapter number %d must be positive", number)
	}

	nctx, err := s.assembler.ChapterContext(ctx, storyID, number)
	if err != nil {
		return nil, err
	}
	target := s.targetWords(opts.TargetWordCount, nctx.Story.TargetWordCount)

	res := &Result{}
	extra := opts.Instruction
	delay := s.backoffBase
	start := time.Now()

	for attempt := 1; attempt <= s.attemptCap; attempt++ {
		res.Attempts = attempt

		comp, err := s.composer.Compose(prompt.Input{
			Context:         nctx,
			Mode:            prompt.ModeChapter,
			Complexity:      s.tier(opts.Complexity),
			TargetWordCount: target,
			Extra:           extra,
		})
		if err != nil {
			return nil, err
		}
		res.Devices = comp.Devices

		resp, err := s.backend.Generate(ctx, backend.Request{
			Prompt: comp.Prompt,
			Params: backend.ParamsFor(backend.PresetCreativeWriting).WithMaxTokens(min(target*2, 8000)),
		})
		if err != nil {
			if !backend.IsRetryable(err) || attempt == s.attemptCap {
				res.Err = fmt.Errorf("generating chapter %d of story %s: %w", number, storyID, err)
				return res, nil
			}
			wait := delay
			if ra := backend.RetryAfter(err); ra > 0 {
				wait = ra
			}
			s.logger.Warn("chapter generation failed, retrying",
				"story_id", storyID,
				"chapter", number,
				"attempt", attempt,
				"error_kind", string(backend.KindOf(err)),
				"wait", wait.String())
			select {
			case <-ctx.Done():
				res.Err = ctx.Err()
				return res, nil
			case <-time.After(wait):
			}
			delay *= 2
			continue
		}

		report := quality.Assess(resp.Text, target)
		res.Text = resp.Text
		res.FinishReason = resp.FinishReason
		res.Usage = resp.Usage
		res.Quality = &report
		res.QualityScore = report.Score

		if opts.QualityGate && report.Score < s.qualityThreshold && attempt < s.attemptCap {
			s.logger.Warn("chapter below quality threshold, regenerating",
				"story_id", storyID,
				"chapter", number,
				"attempt", attempt,
				"score", report.Score,
				"issues", len(report.Issues))
			extra = joinDirectives(opts.Instruction, correctiveDirectives(report, attempt))
			continue
		}

		if err := s.persistChapter(ctx, storyID, number, resp.Text); err != nil {
			res.Err = err
			return res, nil
		}
		res.Success = true

		s.logger.Info("chapter generated",
			"story_id", storyID,
			"chapter", number,
			"attempts", attempt,
			"words", report.WordCount,
			"score", report.Score,
			"total_tokens", resp.Usage.TotalTokens,
			"duration", time.Since(start).String())
		return res, nil
	}
	return res, nil
}

// GenerateChapterMultiPass runs the three-pass chapter workflow: a structural
// scene outline, a dialogue-and-character expansion seeded with pass one, and
// a prose refinement seeded with pass two. Only the final pass is assessed
// and persisted; a pass failure persists nothing and names the pass. Usage is
// summed across passes.
func (s *Service) GenerateChapterMultiPass(ctx context.Context, storyID string, number int, opts ChapterOptions) (*Result, error) {
	if err := s.validate.Struct(opts); err != nil {
		return nil, validationErr("chapter options: %v", err)
	}

	nctx, err := s.assembler.ChapterContext(ctx, storyID, number)
	if err != nil {
		return nil, err
	}
	target := s.targetWords(opts.TargetWordCount, nctx.Story.TargetWordCount)

	res := &Result{}
	start := time.Now()

	passes := []struct {
		name   string
		prompt func(prior string) string
		params backend.Params
	}{
		{
			name:   "structure",
			prompt: func(string) string { return structurePassPrompt(nctx.CurrentChapter, target) },
			params: backend.ParamsFor(backend.PresetPlotDevelopment).WithTemperature(0.7).WithMaxTokens(1500),
		},
		{
			name:   "dialogue",
			prompt: func(prior string) string { return dialoguePassPrompt(prior) },
			params: backend.ParamsFor(backend.PresetCharacterCreation).WithTemperature(0.8).WithMaxTokens(3000),
		},
		{
			name:   "prose",
			prompt: func(prior string) string { return prosePassPrompt(prior, target) },
			params: backend.ParamsFor(backend.PresetCreativeWriting).WithTemperature(0.6).WithMaxTokens(target * 2),
		},
	}

	var text string
	for i, pass := range passes {
		resp, attempts, err := s.requestWithRetry(ctx, backend.Request{
			Prompt: pass.prompt(text),
			Params: pass.params,
		})
		res.Attempts += attempts
		if err != nil {
			res.Err = fmt.Errorf("multi-pass chapter %d, pass %d (%s): %w", number, i+1, pass.name, err)
			return res, nil
		}
		res.Usage = addUsage(res.Usage, resp.Usage)
		res.FinishReason = resp.FinishReason
		text = resp.Text
	}

	report := quality.Assess(text, target)
	res.Text = text
	res.Quality = &report
	res.QualityScore = report.Score

	if err := s.persistChapter(ctx, storyID, number, text); err != nil {
		res.Err = err
		return res, nil
	}
	res.Success = true

	s.logger.Info("chapter generated (multi-pass)",
		"story_id", storyID,
		"chapter", number,
		"attempts", res.Attempts,
		"words", report.WordCount,
		"score", report.Score,
		"total_tokens", res.Usage.TotalTokens,
		"duration", time.Since(start).String())
	return res, nil
}

// StreamEvent is one incremental update from a streaming chapter generation.
// Non-terminal events carry the new fragment text plus running totals; the
// terminal event has Done set and either a Result or an Err.
type StreamEvent struct {
	Text     string
	Words    int
	Progress float64 // percent of target word count, capped at 100
	Done     bool
	Result   *Result
	Err      error
}

// GenerateChapterStream runs the chapter workflow with incremental delivery.
// Quality assessment and persistence happen only once the stream completes;
// cancellation or a stream error persists nothing, leaving any previously
// stored content untouched. The returned channel closes after the terminal
// event.
func (s *Service) GenerateChapterStream(ctx context.Context, storyID string, number int, opts ChapterOptions) (<-chan StreamEvent, error) {
	if err := s.validate.Struct(opts); err != nil {
		return nil, validationErr("chapter options: %v", err)
	}

	nctx, err := s.assembler.ChapterContext(ctx, storyID, number)
	if err != nil {
		return nil, err
	}
	target := s.targetWords(opts.TargetWordCount, nctx.Story.TargetWordCount)

	comp, err := s.composer.Compose(prompt.Input{
		Context:         nctx,
		Mode:            prompt.ModeChapter,
		Complexity:      s.tier(opts.Complexity),
		TargetWordCount: target,
		Extra:           opts.Instruction,
	})
	if err != nil {
		return nil, err
	}

	fragments, err := s.backend.GenerateStream(ctx, backend.Request{
		Prompt: comp.Prompt,
		Params: backend.ParamsFor(backend.PresetCreativeWriting).WithMaxTokens(min(target*2, 8000)),
	})
	if err != nil {
		return nil, fmt.Errorf("starting chapter %d stream: %w", number, err)
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		var b strings.Builder

		emit := func(ev StreamEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for frag := range fragments {
			if frag.Err != nil {
				s.logger.Warn("chapter stream terminated",
					"story_id", storyID,
					"chapter", number,
					"error", frag.Err.Error())
				emit(StreamEvent{Done: true, Err: frag.Err, Result: &Result{Attempts: 1, Err: frag.Err}})
				return
			}

			if frag.Text != "" {
				b.WriteString(frag.Text)
				words := novel.CountWords(b.String())
				if !emit(StreamEvent{Text: frag.Text, Words: words, Progress: progressOf(words, target)}) {
					return
				}
			}

			if frag.Done {
				text := b.String()
				words := novel.CountWords(text)
				report := quality.Assess(text, target)
				res := &Result{
					Text:         text,
					FinishReason: frag.FinishReason,
					Usage:        frag.Usage,
					Quality:      &report,
					QualityScore: report.Score,
					Attempts:     1,
					Success:      true,
					Devices:      comp.Devices,
				}
				if err := s.persistChapter(ctx, storyID, number, text); err != nil {
					res.Success = false
					res.Err = err
				}
				s.logger.Info("chapter stream completed",
					"story_id", storyID,
					"chapter", number,
					"words", words,
					"score", report.Score,
					"persisted", res.Success)
				emit(StreamEvent{Done: true, Words: words, Progress: progressOf(words, target), Result: res})
				return
			}
		}
	}()
	return events, nil
}

// persistChapter snapshots any existing content, then stores the new text
// with a refreshed word count.
func (s *Service) persistChapter(ctx context.Context, storyID string, number int, text string) error {
	ch, err := s.store.FindChapter(ctx, storyID, number)
	if err != nil {
		return fmt.Errorf("loading chapter %d for persist: %w", number, err)
	}
	if _, err := s.keeper.Snapshot(ctx, ch, ""); err != nil {
		return err
	}
	ch.Content = text
	ch.IsGenerated = true
	ch.RecountWords()
	if err := s.store.UpsertChapter(ctx, ch); err != nil {
		return fmt.Errorf("saving chapter %d: %w", number, err)
	}
	return nil
}

func (s *Service) targetWords(requested, storyTarget int) int {
	switch {
	case requested > 0:
		return requested
	case storyTarget > 0:
		return storyTarget
	default:
		return defaultTargetWords
	}
}

// correctiveDirectives turns a failed assessment into prompt directives for
// the next attempt. The generic block mirrors the issue categories the
// assessor can raise; detected issues are restated explicitly so repeated
// failures escalate in specificity.
func correctiveDirectives(report quality.Report, rejected int) string {
	lines := []string{
		fmt.Sprintf("PREVIOUS DRAFT REJECTED (%d so far). CRITICAL QUALITY ISSUES DETECTED - MANDATORY FIXES:", rejected),
	}
	for _, issue := range report.Issues {
		lines = append(lines, fmt.Sprintf("- [%s] %s", strings.ToUpper(issue.Category), issue.Description))
	}
	lines = append(lines,
		"- MUST reach the target word count through detailed scenes, not summary",
		"- ABSOLUTELY FORBIDDEN to use any cliched phrases or AI-typical expressions",
		"- REQUIRED: Include substantial dialogue with character-specific voices",
		"- ESSENTIAL: Create multiple distinct scenes with detailed descriptions",
		"- MANDATORY: Vary sentence structure and paragraph length significantly",
	)
	return strings.Join(lines, "\n")
}

func joinDirectives(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}

func progressOf(words, target int) float64 {
	if target <= 0 {
		return 0
	}
	p := float64(words) / float64(target) * 100
	if p > 100 {
		p = 100
	}
	return p
}

func addUsage(a, b backend.Usage) backend.Usage {
	return backend.Usage{
		PromptTokens:     a.PromptTokens + b.PromptTokens,
		CompletionTokens: a.CompletionTokens + b.CompletionTokens,
		TotalTokens:      a.TotalTokens + b.TotalTokens,
	}
}
