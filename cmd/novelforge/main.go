// Command novelforge drives story generation from the terminal: seed a
// story, draft it end to end, regenerate single chapters, and inspect
// quality.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vampirenirmal/novelforge/internal/backend"
	"github.com/vampirenirmal/novelforge/internal/config"
	"github.com/vampirenirmal/novelforge/internal/generation"
	"github.com/vampirenirmal/novelforge/internal/novel"
	"github.com/vampirenirmal/novelforge/internal/prompt"
	"github.com/vampirenirmal/novelforge/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	svc, st, err := buildService(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var runErr error
	switch os.Args[1] {
	case "status":
		runErr = runStatus(ctx, svc)
	case "draft":
		runErr = runDraft(ctx, svc, st, cfg, os.Args[2:])
	case "chapter":
		runErr = runChapter(ctx, svc, cfg, os.Args[2:])
	case "assess":
		runErr = runAssess(ctx, svc, os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: novelforge <command> [flags]

Commands:
  status                         check backend availability
  draft    -title -genre [...]   generate a full story draft
  chapter  -story -n [...]       generate or regenerate one chapter
  assess   -story -n             score a generated chapter`)
}

func buildService(cfg *config.Config, logger *slog.Logger) (*generation.Service, store.Store, error) {
	var st store.Store
	if cfg.Store.Dir != "" {
		st = store.NewFileSystem(cfg.Store.Dir)
	} else {
		st = store.NewMemory()
	}

	be, err := buildBackend(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	svc := generation.NewService(st, be,
		generation.WithAttemptCap(cfg.Limits.AttemptCap),
		generation.WithBackoffBase(cfg.Limits.BackoffBase),
		generation.WithQualityThreshold(cfg.Generation.QualityThreshold),
		generation.WithComplexity(prompt.Complexity(cfg.Generation.Complexity)),
		generation.WithLogger(logger),
	)
	return svc, st, nil
}

func buildBackend(cfg *config.Config, logger *slog.Logger) (backend.Backend, error) {
	opts := []backend.Option{
		backend.WithTimeout(time.Duration(cfg.Backend.Timeout) * time.Second),
		backend.WithRateLimit(cfg.Limits.RateLimit.RequestsPerMinute, cfg.Limits.RateLimit.BurstSize),
		backend.WithLogger(logger),
	}
	if cfg.Backend.ContextWindow > 0 {
		opts = append(opts, backend.WithContextWindow(cfg.Backend.ContextWindow))
	}

	switch backend.Kind(cfg.Backend.Kind) {
	case backend.KindOpenAI:
		return backend.NewOpenAI(cfg.Backend.APIKey, cfg.Backend.BaseURL, cfg.Backend.Model, opts...), nil
	case backend.KindOllama:
		return backend.NewOllama(cfg.Backend.BaseURL, cfg.Backend.Model, opts...), nil
	default:
		return nil, fmt.Errorf("unknown backend kind %q", cfg.Backend.Kind)
	}
}

func runStatus(ctx context.Context, svc *generation.Service) error {
	probe, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	status := svc.Status(probe)
	fmt.Printf("backend:   %s\n", status.Model.Kind)
	fmt.Printf("model:     %s\n", status.Model.Name)
	if status.Model.ContextWindow > 0 {
		fmt.Printf("context:   %d tokens\n", status.Model.ContextWindow)
	}
	fmt.Printf("available: %v\n", status.Available)
	if !status.Available {
		return fmt.Errorf("backend is not reachable")
	}
	return nil
}

func runDraft(ctx context.Context, svc *generation.Service, st store.Store, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("draft", flag.ExitOnError)
	title := fs.String("title", "", "story title (required)")
	description := fs.String("description", "", "story premise")
	genre := fs.String("genre", "fiction", "story genre")
	chapters := fs.Int("chapters", 10, "number of chapters")
	words := fs.Int("words", cfg.Generation.TargetWordCount, "target words per chapter")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *title == "" {
		return fmt.Errorf("-title is required")
	}

	story := &novel.Story{
		Title:           *title,
		Description:     *description,
		Genre:           *genre,
		TargetChapters:  *chapters,
		TargetWordCount: *words,
	}
	if err := st.UpsertStory(ctx, story); err != nil {
		return fmt.Errorf("creating story: %w", err)
	}
	fmt.Printf("story %s created\n", story.ID)

	runner := generation.NewDraftRunner(svc)
	done := make(chan error, 1)
	go func() {
		done <- runner.Run(ctx, story.ID, generation.DraftOptions{
			ChapterCount: *chapters,
			Chapter: generation.ChapterOptions{
				TargetWordCount: *words,
				QualityGate:     cfg.Generation.QualityGate,
			},
		})
	}()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			p := runner.Progress()
			fmt.Printf("\nrun %s finished: %s (%d/%d chapters)\n", p.RunID, p.Stage, p.ChaptersDone, p.ChaptersTotal)
			return err
		case <-ticker.C:
			p := runner.Progress()
			fmt.Printf("  [%s] %d/%d chapters\n", p.Stage, p.ChaptersDone, p.ChaptersTotal)
		}
	}
}

func runChapter(ctx context.Context, svc *generation.Service, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("chapter", flag.ExitOnError)
	storyID := fs.String("story", "", "story id (required)")
	number := fs.Int("n", 0, "chapter number (required)")
	words := fs.Int("words", 0, "target word count")
	instruction := fs.String("feedback", "", "regeneration instruction")
	multipass := fs.Bool("multipass", false, "use three-pass generation")
	stream := fs.Bool("stream", false, "stream output as it is generated")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *storyID == "" || *number == 0 {
		return fmt.Errorf("-story and -n are required")
	}

	opts := generation.ChapterOptions{
		TargetWordCount: *words,
		QualityGate:     cfg.Generation.QualityGate,
		Instruction:     *instruction,
	}

	if *stream {
		events, err := svc.GenerateChapterStream(ctx, *storyID, *number, opts)
		if err != nil {
			return err
		}
		for ev := range events {
			if ev.Done {
				if ev.Err != nil {
					return ev.Err
				}
				fmt.Printf("\n\ndone: %d words, score %.2f\n", ev.Words, ev.Result.QualityScore)
				return nil
			}
			fmt.Print(ev.Text)
		}
		return nil
	}

	var res *generation.Result
	var err error
	if *multipass {
		res, err = svc.GenerateChapterMultiPass(ctx, *storyID, *number, opts)
	} else {
		res, err = svc.GenerateChapter(ctx, *storyID, *number, opts)
	}
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("generation failed after %d attempt(s): %w", res.Attempts, res.Err)
	}

	fmt.Printf("chapter %d generated: %d words, score %.2f, %d attempt(s), %d tokens\n",
		*number, res.Quality.WordCount, res.QualityScore, res.Attempts, res.Usage.TotalTokens)
	if res.QualityScore < cfg.Generation.QualityThreshold {
		fmt.Println("note: accepted below the quality threshold; consider regenerating with -feedback")
	}
	return nil
}

func runAssess(ctx context.Context, svc *generation.Service, args []string) error {
	fs := flag.NewFlagSet("assess", flag.ExitOnError)
	storyID := fs.String("story", "", "story id (required)")
	number := fs.Int("n", 0, "chapter number (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *storyID == "" || *number == 0 {
		return fmt.Errorf("-story and -n are required")
	}

	report, err := svc.AssessChapterQuality(ctx, *storyID, *number)
	if err != nil {
		return err
	}

	fmt.Printf("score:       %.2f\n", report.Score)
	fmt.Printf("words:       %d (%.0f%% of target)\n", report.WordCount, report.LengthRatio*100)
	fmt.Printf("paragraphs:  %d\n", report.ParagraphCount)
	fmt.Printf("dialogue:    %d quotation marks\n", report.DialogueMarks)
	fmt.Printf("variety:     %.0f%% distinct sentence openings\n", report.StartDiversity*100)
	for _, issue := range report.Issues {
		fmt.Printf("issue [%s]: %s\n", issue.Category, issue.Description)
	}
	return nil
}
