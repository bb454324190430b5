package generation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/vampirenirmal/novelforge/internal/backend"
	"github.com/vampirenirmal/novelforge/internal/novel"
	"github.com/vampirenirmal/novelforge/internal/store"
)

func TestGenerateChapterAcceptsCleanFirstAttempt(t *testing.T) {
	mem := store.NewMemory()
	story := seedStory(t, mem, 1500, 3)
	text := goodText(1500)
	fb := &fakeBackend{respond: respondText(text, 2100)}
	svc := newTestService(mem, fb)

	res, err := svc.GenerateChapter(context.Background(), story.ID, 2, ChapterOptions{QualityGate: true})
	if err != nil {
		t.Fatalf("GenerateChapter: %v", err)
	}
	if !res.Success || res.Attempts != 1 {
		t.Fatalf("res = %+v, want success on first attempt", res)
	}
	if res.QualityScore < 0.9 {
		t.Errorf("QualityScore = %v for clean prose", res.QualityScore)
	}
	if len(res.Devices) == 0 {
		t.Error("chapter generation recorded no narrative devices")
	}
	if res.FinishReason != "stop" {
		t.Errorf("FinishReason = %q, want the backend-reported reason", res.FinishReason)
	}

	ch, err := mem.FindChapter(context.Background(), story.ID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if ch.Content != text || !ch.IsGenerated {
		t.Error("chapter content not persisted")
	}
	if ch.WordCount != novel.CountWords(text) {
		t.Errorf("WordCount = %d, want recount of content", ch.WordCount)
	}
}

func TestGenerateChapterQualityGateRegenerates(t *testing.T) {
	mem := store.NewMemory()
	story := seedStory(t, mem, 1500, 3)
	text := goodText(1500)
	fb := &fakeBackend{
		respond: func(call int, _ backend.Request) (*backend.Response, error) {
			if call == 1 {
				return &backend.Response{Text: poorText}, nil
			}
			return &backend.Response{Text: text}, nil
		},
	}
	svc := newTestService(mem, fb)

	res, err := svc.GenerateChapter(context.Background(), story.ID, 1, ChapterOptions{QualityGate: true})
	if err != nil {
		t.Fatalf("GenerateChapter: %v", err)
	}
	if !res.Success || res.Attempts != 2 {
		t.Fatalf("res = %+v, want success on attempt 2", res)
	}
	if res.QualityScore < 0.9 {
		t.Errorf("QualityScore = %v, want the regenerated draft's score", res.QualityScore)
	}

	// The second prompt must carry corrective directives naming the issues.
	second := fb.request(t, 1).Prompt
	if !strings.Contains(second, "CRITICAL QUALITY ISSUES DETECTED") {
		t.Error("regeneration prompt missing corrective directives")
	}
	if !strings.Contains(second, "[LENGTH]") {
		t.Error("regeneration prompt missing the detected length issue")
	}
	if strings.Contains(fb.request(t, 0).Prompt, "CRITICAL QUALITY ISSUES DETECTED") {
		t.Error("first prompt must not carry corrective directives")
	}

	ch, _ := mem.FindChapter(context.Background(), story.ID, 1)
	if ch.Content != text {
		t.Error("persisted content is not the accepted draft")
	}
}

func TestGenerateChapterAcceptsBelowThresholdAfterCap(t *testing.T) {
	mem := store.NewMemory()
	story := seedStory(t, mem, 1500, 3)
	fb := &fakeBackend{respond: respondText(poorText, 0)}
	svc := newTestService(mem, fb)

	res, err := svc.GenerateChapter(context.Background(), story.ID, 1, ChapterOptions{QualityGate: true})
	if err != nil {
		t.Fatalf("GenerateChapter: %v", err)
	}

	// Silent degrade: the final attempt is accepted even below threshold.
	// The low score is the caller's only signal.
	if !res.Success {
		t.Fatalf("res = %+v, want accepted result", res)
	}
	if res.Attempts != defaultAttemptCap {
		t.Errorf("Attempts = %d, want %d", res.Attempts, defaultAttemptCap)
	}
	if res.QualityScore >= svc.qualityThreshold {
		t.Errorf("QualityScore = %v, expected below threshold", res.QualityScore)
	}

	ch, _ := mem.FindChapter(context.Background(), story.ID, 1)
	if ch.Content != poorText {
		t.Error("final attempt's content not persisted")
	}
}

func TestGenerateChapterSnapshotsPriorContent(t *testing.T) {
	mem := store.NewMemory()
	story := seedStory(t, mem, 1500, 1)
	ctx := context.Background()

	ch, err := mem.FindChapter(ctx, story.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	ch.Content = "the first draft"
	ch.RecountWords()
	if err := mem.UpsertChapter(ctx, ch); err != nil {
		t.Fatal(err)
	}

	text := goodText(1500)
	svc := newTestService(mem, &fakeBackend{respond: respondText(text, 0)})
	if _, err := svc.GenerateChapter(ctx, story.ID, 1, ChapterOptions{}); err != nil {
		t.Fatalf("GenerateChapter: %v", err)
	}

	revs := mem.Revisions(ch.ID)
	if len(revs) != 1 {
		t.Fatalf("revisions = %d, want 1", len(revs))
	}
	if revs[0].Content != "the first draft" || revs[0].Number != 1 {
		t.Errorf("revision = %+v", revs[0])
	}
}

func TestGenerateChapterRetryProperty(t *testing.T) {
	mem := store.NewMemory()
	story := seedStory(t, mem, 1500, 1)
	text := goodText(1500)
	fails := 2
	fb := &fakeBackend{
		respond: func(call int, _ backend.Request) (*backend.Response, error) {
			if call <= fails {
				return nil, &backend.Error{Kind: backend.ErrUnavailable, Message: "down"}
			}
			return &backend.Response{Text: text}, nil
		},
	}
	svc := newTestService(mem, fb)

	res, err := svc.GenerateChapter(context.Background(), story.ID, 1, ChapterOptions{})
	if err != nil {
		t.Fatalf("GenerateChapter: %v", err)
	}
	if !res.Success || res.Attempts != fails+1 {
		t.Errorf("res = %+v, want success with attempts = %d", res, fails+1)
	}
}

func TestGenerateChapterPersistentTransientFailure(t *testing.T) {
	mem := store.NewMemory()
	story := seedStory(t, mem, 1500, 1)
	fb := &fakeBackend{
		respond: func(int, backend.Request) (*backend.Response, error) {
			return nil, &backend.Error{Kind: backend.ErrUnavailable, Message: "down"}
		},
	}
	svc := newTestService(mem, fb)

	res, err := svc.GenerateChapter(context.Background(), story.ID, 1, ChapterOptions{})
	if err != nil {
		t.Fatalf("transient exhaustion must be reported on the result, got error %v", err)
	}
	if res.Success || res.Err == nil {
		t.Fatalf("res = %+v, want failure", res)
	}
	if res.Attempts != defaultAttemptCap {
		t.Errorf("Attempts = %d, want %d", res.Attempts, defaultAttemptCap)
	}

	ch, _ := mem.FindChapter(context.Background(), story.ID, 1)
	if ch.Content != "" {
		t.Error("failed generation must not persist content")
	}
}

func TestGenerateChapterAuthFailsWithoutRetry(t *testing.T) {
	mem := store.NewMemory()
	story := seedStory(t, mem, 1500, 1)
	fb := &fakeBackend{
		respond: func(int, backend.Request) (*backend.Response, error) {
			return nil, &backend.Error{Kind: backend.ErrAuth, Message: "bad key"}
		},
	}
	svc := newTestService(mem, fb)

	res, err := svc.GenerateChapter(context.Background(), story.ID, 1, ChapterOptions{})
	if err != nil {
		t.Fatalf("GenerateChapter: %v", err)
	}
	if res.Success || res.Attempts != 1 {
		t.Fatalf("res = %+v, want immediate failure", res)
	}
	if backend.KindOf(res.Err) != backend.ErrAuth {
		t.Errorf("Err = %v, want auth classification", res.Err)
	}
}

func TestGenerateChapterValidation(t *testing.T) {
	mem := store.NewMemory()
	story := seedStory(t, mem, 1500, 1)
	svc := newTestService(mem, &fakeBackend{respond: respondText("", 0)})
	ctx := context.Background()

	if _, err := svc.GenerateChapter(ctx, story.ID, 1, ChapterOptions{TargetWordCount: 100}); !errors.Is(err, ErrValidation) {
		t.Errorf("word count 100: err = %v, want ErrValidation", err)
	}
	if _, err := svc.GenerateChapter(ctx, story.ID, 1, ChapterOptions{TargetWordCount: 9000}); !errors.Is(err, ErrValidation) {
		t.Errorf("word count 9000: err = %v, want ErrValidation", err)
	}
	if _, err := svc.GenerateChapter(ctx, story.ID, 99, ChapterOptions{}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing chapter: err = %v, want ErrNotFound", err)
	}
}

func TestGenerateChapterCustomInstruction(t *testing.T) {
	mem := store.NewMemory()
	story := seedStory(t, mem, 1500, 1)
	fb := &fakeBackend{respond: respondText(goodText(1500), 0)}
	svc := newTestService(mem, fb)

	feedback := "Give the Warden more page time in this draft."
	if _, err := svc.GenerateChapter(context.Background(), story.ID, 1, ChapterOptions{Instruction: feedback}); err != nil {
		t.Fatalf("GenerateChapter: %v", err)
	}
	if !strings.Contains(fb.request(t, 0).Prompt, feedback) {
		t.Error("prompt missing caller instruction")
	}
}

func TestGenerateChapterMultiPass(t *testing.T) {
	mem := store.NewMemory()
	story := seedStory(t, mem, 1500, 2)
	final := goodText(1500)
	fb := &fakeBackend{
		respond: func(call int, _ backend.Request) (*backend.Response, error) {
			switch call {
			case 1:
				return &backend.Response{Text: "SCENE 1: The quay at dawn.", Usage: backend.Usage{TotalTokens: 10}}, nil
			case 2:
				return &backend.Response{Text: "Expanded scenes with dialogue.", Usage: backend.Usage{TotalTokens: 20}}, nil
			default:
				return &backend.Response{Text: final, Usage: backend.Usage{TotalTokens: 30}}, nil
			}
		},
	}
	svc := newTestService(mem, fb)

	res, err := svc.GenerateChapterMultiPass(context.Background(), story.ID, 1, ChapterOptions{})
	if err != nil {
		t.Fatalf("GenerateChapterMultiPass: %v", err)
	}
	if !res.Success {
		t.Fatalf("res = %+v", res)
	}
	if res.Usage.TotalTokens != 60 {
		t.Errorf("TotalTokens = %d, want sum of the three passes (60)", res.Usage.TotalTokens)
	}
	if res.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3 (one per pass)", res.Attempts)
	}
	if res.Text != final {
		t.Error("result text is not the final pass output")
	}

	// Each pass seeds the next with the previous output.
	if !strings.Contains(fb.request(t, 1).Prompt, "SCENE 1: The quay at dawn.") {
		t.Error("pass 2 prompt missing pass 1 output")
	}
	if !strings.Contains(fb.request(t, 2).Prompt, "Expanded scenes with dialogue.") {
		t.Error("pass 3 prompt missing pass 2 output")
	}

	// Pass temperatures escalate then settle: 0.7, 0.8, 0.6.
	temps := []float64{0.7, 0.8, 0.6}
	for i, want := range temps {
		if got := fb.request(t, i).Params.Temperature; got != want {
			t.Errorf("pass %d temperature = %v, want %v", i+1, got, want)
		}
	}

	ch, _ := mem.FindChapter(context.Background(), story.ID, 1)
	if ch.Content != final {
		t.Error("only the final pass output should be persisted")
	}
}

func TestGenerateChapterMultiPassFailureNamesPass(t *testing.T) {
	mem := store.NewMemory()
	story := seedStory(t, mem, 1500, 1)
	fb := &fakeBackend{
		respond: func(call int, _ backend.Request) (*backend.Response, error) {
			if call == 1 {
				return &backend.Response{Text: "structure"}, nil
			}
			return nil, &backend.Error{Kind: backend.ErrAuth, Message: "bad key"}
		},
	}
	svc := newTestService(mem, fb)

	res, err := svc.GenerateChapterMultiPass(context.Background(), story.ID, 1, ChapterOptions{})
	if err != nil {
		t.Fatalf("GenerateChapterMultiPass: %v", err)
	}
	if res.Success || res.Err == nil {
		t.Fatalf("res = %+v, want failure", res)
	}
	if !strings.Contains(res.Err.Error(), "pass 2") {
		t.Errorf("Err = %v, want the failing pass named", res.Err)
	}

	ch, _ := mem.FindChapter(context.Background(), story.ID, 1)
	if ch.Content != "" {
		t.Error("partial pass output must not be persisted")
	}
}

func TestGenerateChapterStream(t *testing.T) {
	mem := store.NewMemory()
	story := seedStory(t, mem, 1500, 1)
	part1 := goodText(700)
	part2 := "\n\n" + goodText(800)
	fb := &fakeBackend{
		stream: func(backend.Request) []backend.Fragment {
			return []backend.Fragment{
				{Text: part1},
				{Text: part2},
				{Done: true, Usage: backend.Usage{TotalTokens: 1800}, FinishReason: "stop"},
			}
		},
	}
	svc := newTestService(mem, fb)

	events, err := svc.GenerateChapterStream(context.Background(), story.ID, 1, ChapterOptions{})
	if err != nil {
		t.Fatalf("GenerateChapterStream: %v", err)
	}

	var fragments int
	var lastWords int
	var terminal *StreamEvent
	for ev := range events {
		if ev.Done {
			e := ev
			terminal = &e
			continue
		}
		fragments++
		if ev.Words < lastWords {
			t.Errorf("running word count decreased: %d -> %d", lastWords, ev.Words)
		}
		lastWords = ev.Words
		if ev.Progress < 0 || ev.Progress > 100 {
			t.Errorf("Progress = %v out of range", ev.Progress)
		}
	}

	if fragments != 2 {
		t.Errorf("fragment events = %d, want 2", fragments)
	}
	if terminal == nil || terminal.Result == nil {
		t.Fatal("missing terminal event")
	}
	if !terminal.Result.Success {
		t.Fatalf("terminal result = %+v", terminal.Result)
	}
	if terminal.Result.Usage.TotalTokens != 1800 {
		t.Errorf("TotalTokens = %d, want 1800", terminal.Result.Usage.TotalTokens)
	}
	if terminal.Result.FinishReason != "stop" {
		t.Errorf("FinishReason = %q, want the stream's terminal reason", terminal.Result.FinishReason)
	}

	ch, _ := mem.FindChapter(context.Background(), story.ID, 1)
	if ch.Content != part1+part2 {
		t.Error("persisted content is not the accumulated stream")
	}
	if ch.WordCount != novel.CountWords(ch.Content) {
		t.Errorf("WordCount = %d not recounted", ch.WordCount)
	}
}

func TestGenerateChapterStreamCancellationPersistsNothing(t *testing.T) {
	mem := store.NewMemory()
	story := seedStory(t, mem, 1500, 1)
	fb := &fakeBackend{
		stream: func(backend.Request) []backend.Fragment {
			return []backend.Fragment{
				{Text: "The fog rolled in off the water. "},
				{Err: context.Canceled},
			}
		},
	}
	svc := newTestService(mem, fb)

	events, err := svc.GenerateChapterStream(context.Background(), story.ID, 1, ChapterOptions{})
	if err != nil {
		t.Fatalf("GenerateChapterStream: %v", err)
	}

	var terminal *StreamEvent
	for ev := range events {
		if ev.Done {
			e := ev
			terminal = &e
		}
	}
	if terminal == nil || !errors.Is(terminal.Err, context.Canceled) {
		t.Fatalf("terminal = %+v, want cancellation error", terminal)
	}

	ch, _ := mem.FindChapter(context.Background(), story.ID, 1)
	if ch.Content != "" {
		t.Error("cancelled stream must not persist partial content")
	}
}
