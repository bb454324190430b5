// Package generation drives the generation workflows: it assembles context,
// composes prompts, calls the backend with retry, gates output on quality,
// and persists accepted results with revision snapshots.
package generation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/vampirenirmal/novelforge/internal/backend"
	"github.com/vampirenirmal/novelforge/internal/narrative"
	"github.com/vampirenirmal/novelforge/internal/novel"
	"github.com/vampirenirmal/novelforge/internal/prompt"
	"github.com/vampirenirmal/novelforge/internal/quality"
	"github.com/vampirenirmal/novelforge/internal/revision"
	"github.com/vampirenirmal/novelforge/internal/store"
)

const (
	defaultAttemptCap       = 3
	defaultQualityThreshold = 0.7
	defaultBackoffBase      = 2 * time.Second
	defaultTargetWords      = 2500

	maxOutlineTokens   = 4000
	maxCharacterTokens = 3000
	maxWorldTokens     = 4000
	maxEditTokens      = 4000
)

// Result is the outcome of one generation workflow. Failures after the entry
// checks are reported here rather than as a returned error: Success is false
// and Err carries the terminal failure. A true Success with a low
// QualityScore means the quality gate was exhausted and the best attempt was
// accepted anyway; callers wanting strict quality must inspect the score.
type Result struct {
	Text         string          `json:"text"`
	FinishReason string          `json:"finish_reason,omitempty"`
	Usage        backend.Usage   `json:"usage"`
	Quality      *quality.Report `json:"quality,omitempty"`
	QualityScore float64         `json:"quality_score"`
	Attempts     int             `json:"attempts"`
	Success      bool            `json:"success"`
	Devices      []string        `json:"devices,omitempty"`
	Err          error           `json:"-"`
}

// OutlineResult carries a persisted outline.
type OutlineResult struct {
	Acts     []novel.Act     `json:"acts"`
	Chapters []novel.Chapter `json:"chapters"`
	Usage    backend.Usage   `json:"usage"`
	Attempts int             `json:"attempts"`
}

// CharacterBatch carries persisted characters from one batch generation.
type CharacterBatch struct {
	Characters []novel.Character `json:"characters"`
	Usage      backend.Usage     `json:"usage"`
	Attempts   int               `json:"attempts"`
}

// WorldBatch carries persisted world elements from one batch generation.
type WorldBatch struct {
	Elements []novel.WorldElement `json:"elements"`
	Usage    backend.Usage        `json:"usage"`
	Attempts int                  `json:"attempts"`
}

// Service is the generation orchestrator. One Service may serve concurrent
// requests; each call carries its own state and no call mutates another's.
type Service struct {
	store     store.Store
	backend   backend.Backend
	assembler *narrative.Assembler
	composer  *prompt.Composer
	keeper    *revision.Keeper
	validate  *validator.Validate
	logger    *slog.Logger

	attemptCap       int
	qualityThreshold float64
	backoffBase      time.Duration
	complexity       prompt.Complexity
}

type Option func(*Service)

// WithAttemptCap bounds both transient-failure retries and quality-gate
// regenerations for a single request.
func WithAttemptCap(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.attemptCap = n
		}
	}
}

// WithQualityThreshold sets the minimum score the quality gate accepts
// without regenerating.
func WithQualityThreshold(t float64) Option {
	return func(s *Service) { s.qualityThreshold = t }
}

// WithBackoffBase sets the first retry delay; each subsequent retry doubles it.
func WithBackoffBase(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.backoffBase = d
		}
	}
}

// WithComplexity sets the default complexity tier for calls that do not
// specify one.
func WithComplexity(c prompt.Complexity) Option {
	return func(s *Service) {
		if c.Valid() {
			s.complexity = c
		}
	}
}

// WithComposer substitutes the prompt composer, e.g. a seeded one for
// reproducible runs.
func WithComposer(c *prompt.Composer) Option {
	return func(s *Service) { s.composer = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewService(st store.Store, be backend.Backend, opts ...Option) *Service {
	s := &Service{
		store:            st,
		backend:          be,
		composer:         prompt.NewComposer(),
		validate:         validator.New(),
		logger:           slog.Default(),
		attemptCap:       defaultAttemptCap,
		qualityThreshold: defaultQualityThreshold,
		backoffBase:      defaultBackoffBase,
		complexity:       prompt.ComplexityStandard,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "generation")
	s.assembler = narrative.NewAssembler(st, s.logger)
	s.keeper = revision.NewKeeper(st, s.logger)
	return s
}

func (s *Service) tier(c prompt.Complexity) prompt.Complexity {
	if c.Valid() {
		return c
	}
	return s.complexity
}

// requestWithRetry performs one generation request, retrying transient
// failures with exponential backoff up to the attempt cap. Rate-limit errors
// honor the provider-suggested delay when one was given. The returned attempt
// count includes the final (successful or failing) call.
func (s *Service) requestWithRetry(ctx context.Context, req backend.Request) (*backend.Response, int, error) {
	delay := s.backoffBase
	for attempt := 1; ; attempt++ {
		resp, err := s.backend.Generate(ctx, req)
		if err == nil {
			return resp, attempt, nil
		}
		if !backend.IsRetryable(err) || attempt >= s.attemptCap {
			return nil, attempt, err
		}

		wait := delay
		if ra := backend.RetryAfter(err); ra > 0 {
			wait = ra
		}
		s.logger.Warn("backend request failed, retrying",
			"attempt", attempt,
			"error_kind", string(backend.KindOf(err)),
			"wait", wait.String())

		select {
		case <-ctx.Done():
			return nil, attempt, ctx.Err()
		case <-time.After(wait):
		}
		delay *= 2
	}
}

// OutlineOptions tunes outline generation. A zero ChapterCount falls back to
// the story's configured target.
type OutlineOptions struct {
	ChapterCount int    `validate:"omitempty,min=3,max=60"`
	Instruction  string // appended to the prompt, after the format contract
	Complexity   prompt.Complexity
}

// GenerateOutline produces and persists a full story outline, replacing any
// existing acts and chapters. Fails with MalformedOutputError when the
// response yields no chapters; nothing is replaced in that case.
func (s *Service) GenerateOutline(ctx context.Context, storyID string, opts OutlineOptions) (*OutlineResult, error) {
	if err := s.validate.Struct(opts); err != nil {
		return nil, validationErr("outline options: %v", err)
	}

	nctx, err := s.assembler.StoryContext(ctx, storyID)
	if err != nil {
		return nil, err
	}
	count := opts.ChapterCount
	if count == 0 {
		count = nctx.Story.TargetChapters
	}
	if count == 0 {
		count = 10
	}

	comp, err := s.composer.Compose(prompt.Input{
		Context:    nctx,
		Mode:       prompt.ModeOutline,
		Complexity: s.tier(opts.Complexity),
		ItemCount:  count,
		Extra:      opts.Instruction,
	})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, attempts, err := s.requestWithRetry(ctx, backend.Request{
		Prompt: comp.Prompt,
		Params: backend.ParamsFor(backend.PresetPlotDevelopment).WithMaxTokens(maxOutlineTokens),
	})
	if err != nil {
		return nil, fmt.Errorf("generating outline for story %s: %w", storyID, err)
	}

	draft := prompt.ParseOutline(resp.Text)
	if len(draft.Chapters) == 0 {
		return nil, &MalformedOutputError{Operation: "outline", Raw: resp.Text}
	}

	out := &OutlineResult{Usage: resp.Usage, Attempts: attempts}
	actIDs := make(map[int]string, len(draft.Acts))
	for _, a := range draft.Acts {
		act := novel.Act{
			ID:      uuid.NewString(),
			StoryID: storyID,
			Number:  a.Number,
			Title:   a.Title,
			Summary: a.Summary,
		}
		actIDs[a.Number] = act.ID
		out.Acts = append(out.Acts, act)
	}
	for _, ch := range draft.Chapters {
		out.Chapters = append(out.Chapters, novel.Chapter{
			StoryID: storyID,
			ActID:   actIDs[ch.ActNumber],
			Number:  ch.Number,
			Title:   ch.Title,
			Summary: ch.Summary,
		})
	}

	if err := s.store.ReplaceOutline(ctx, storyID, out.Acts, out.Chapters); err != nil {
		return nil, fmt.Errorf("replacing outline for story %s: %w", storyID, err)
	}

	s.logger.Info("outline generated",
		"story_id", storyID,
		"acts", len(out.Acts),
		"chapters", len(out.Chapters),
		"attempts", attempts,
		"total_tokens", resp.Usage.TotalTokens,
		"duration", time.Since(start).String())

	return out, nil
}

// GenerateCharacters produces and persists count character profiles.
func (s *Service) GenerateCharacters(ctx context.Context, storyID string, count int) (*CharacterBatch, error) {
	if count < 1 || count > 20 {
		return nil, validationErr("character count %d outside [1, 20]", count)
	}

	nctx, err := s.assembler.StoryContext(ctx, storyID)
	if err != nil {
		return nil, err
	}

	comp, err := s.composer.Compose(prompt.Input{
		Context:    nctx,
		Mode:       prompt.ModeCharacterBatch,
		Complexity: s.complexity,
		ItemCount:  count,
	})
	if err != nil {
		return nil, err
	}

	resp, attempts, err := s.requestWithRetry(ctx, backend.Request{
		Prompt: comp.Prompt,
		Params: backend.ParamsFor(backend.PresetCharacterCreation).WithMaxTokens(maxCharacterTokens),
	})
	if err != nil {
		return nil, fmt.Errorf("generating characters for story %s: %w", storyID, err)
	}

	drafts := prompt.ParseCharacters(resp.Text)
	if len(drafts) == 0 {
		return nil, &MalformedOutputError{Operation: "character-batch", Raw: resp.Text}
	}

	out := &CharacterBatch{Usage: resp.Usage, Attempts: attempts}
	for _, d := range drafts {
		c := novel.Character{
			StoryID:     storyID,
			Name:        d.Name,
			Role:        d.Role,
			Profile:     d.Profile,
			Personality: d.Personality,
			Motivations: d.Motivations,
			Arc:         d.Arc,
			Traits:      d.Traits,
		}
		if err := s.store.UpsertCharacter(ctx, &c); err != nil {
			return nil, fmt.Errorf("saving character %q: %w", c.Name, err)
		}
		out.Characters = append(out.Characters, c)
	}

	s.logger.Info("characters generated",
		"story_id", storyID,
		"characters", len(out.Characters),
		"attempts", attempts,
		"total_tokens", resp.Usage.TotalTokens)

	return out, nil
}

// GenerateWorldElements produces and persists count world building elements.
func (s *Service) GenerateWorldElements(ctx context.Context, storyID string, count int) (*WorldBatch, error) {
	if count < 1 || count > 20 {
		return nil, validationErr("world element count %d outside [1, 20]", count)
	}

	nctx, err := s.assembler.StoryContext(ctx, storyID)
	if err != nil {
		return nil, err
	}

	comp, err := s.composer.Compose(prompt.Input{
		Context:    nctx,
		Mode:       prompt.ModeWorldBatch,
		Complexity: s.complexity,
		ItemCount:  count,
	})
	if err != nil {
		return nil, err
	}

	resp, attempts, err := s.requestWithRetry(ctx, backend.Request{
		Prompt: comp.Prompt,
		Params: backend.ParamsFor(backend.PresetCreativeWriting).WithMaxTokens(maxWorldTokens),
	})
	if err != nil {
		return nil, fmt.Errorf("generating world elements for story %s: %w", storyID, err)
	}

	drafts := prompt.ParseWorldElements(resp.Text)
	if len(drafts) == 0 {
		return nil, &MalformedOutputError{Operation: "world-batch", Raw: resp.Text}
	}

	out := &WorldBatch{Usage: resp.Usage, Attempts: attempts}
	for _, d := range drafts {
		w := novel.WorldElement{
			StoryID:      storyID,
			Name:         d.Name,
			Type:         d.Type,
			Description:  d.Description,
			Significance: d.Significance,
			Details:      d.Details,
		}
		if err := s.store.UpsertWorldElement(ctx, &w); err != nil {
			return nil, fmt.Errorf("saving world element %q: %w", w.Name, err)
		}
		out.Elements = append(out.Elements, w)
	}

	s.logger.Info("world elements generated",
		"story_id", storyID,
		"elements", len(out.Elements),
		"attempts", attempts,
		"total_tokens", resp.Usage.TotalTokens)

	return out, nil
}

// AssessChapterQuality scores an already-generated chapter against its
// story's target word count.
func (s *Service) AssessChapterQuality(ctx context.Context, storyID string, number int) (*quality.Report, error) {
	story, err := s.store.FindStory(ctx, storyID)
	if err != nil {
		return nil, fmt.Errorf("loading story %s: %w", storyID, err)
	}
	ch, err := s.store.FindChapter(ctx, storyID, number)
	if err != nil {
		return nil, fmt.Errorf("loading chapter %d of story %s: %w", number, storyID, err)
	}
	if strings.TrimSpace(ch.Content) == "" {
		return nil, validationErr("chapter %d has no generated content to assess", number)
	}

	target := story.TargetWordCount
	if target == 0 {
		target = defaultTargetWords
	}
	report := quality.Assess(ch.Content, target)
	return &report, nil
}

// Status reports backend reachability and the configured model, for status
// surfaces and preflight checks.
type Status struct {
	Available bool              `json:"available"`
	Model     backend.ModelInfo `json:"model"`
}

func (s *Service) Status(ctx context.Context) Status {
	return Status{Available: s.backend.IsAvailable(ctx), Model: s.backend.ModelInfo()}
}

// EditText rewrites text per the instruction. storyID is optional; when set,
// the story's title and genre frame the edit.
func (s *Service) EditText(ctx context.Context, text, instruction, storyID string) (*Result, error) {
	if strings.TrimSpace(text) == "" || strings.TrimSpace(instruction) == "" {
		return nil, validationErr("edit requires both text and an instruction")
	}

	var nctx *narrative.Context
	if storyID != "" {
		var err error
		nctx, err = s.assembler.StoryContext(ctx, storyID)
		if err != nil {
			return nil, err
		}
	}

	comp, err := s.composer.Compose(prompt.Input{
		Context:     nctx,
		Mode:        prompt.ModeFreeformEdit,
		Instruction: instruction,
		Text:        text,
	})
	if err != nil {
		return nil, err
	}

	resp, attempts, err := s.requestWithRetry(ctx, backend.Request{
		Prompt: comp.Prompt,
		Params: backend.ParamsFor(backend.PresetCreativeWriting).WithMaxTokens(maxEditTokens),
	})
	if err != nil {
		return &Result{Attempts: attempts, Err: err}, nil
	}

	return &Result{
		Text:         strings.TrimSpace(resp.Text),
		FinishReason: resp.FinishReason,
		Usage:        resp.Usage,
		Attempts:     attempts,
		Success:      true,
	}, nil
}
