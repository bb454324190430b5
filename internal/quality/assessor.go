// Package quality scores generated prose against mechanical heuristics.
// Assessment is pure and deterministic; it is an explicit heuristic, not a
// judgment of semantic quality.
package quality

import (
	"fmt"
	"strings"

	"github.com/vampirenirmal/novelforge/internal/novel"
)

// Penalty weights and thresholds. Each penalty is independent; the score
// starts at 1.0 and is clamped to [0, 1] at the end.
const (
	lengthFloorRatio      = 0.7
	lengthTargetRatio     = 0.9
	lengthSaturationRatio = 0.5
	lengthMajorPenalty    = 0.3
	lengthMinorPenalty    = 0.1

	bannedPhrasePenalty = 0.04

	diversityThreshold = 0.8
	diversityPenalty   = 0.2

	minDialogueMarks = 4
	dialoguePenalty  = 0.15

	minParagraphs    = 6
	paragraphPenalty = 0.15

	sentencePrefixLen = 10
)

// bannedPhrases is the fixed cliché catalog. Matching is case-insensitive
// substring; every occurrence costs bannedPhrasePenalty.
var bannedPhrases = []string{
	"little did",
	"unbeknownst",
	"time seemed to slow",
	"heart pounded",
	"blood ran cold",
	"breath caught",
	"world spun",
	"chill ran down",
	"wave of",
	"washed over",
	"couldn't help but",
	"deep inside told",
}

// BannedPhrases returns a copy of the cliché catalog for callers that render
// it into prompt constraints.
func BannedPhrases() []string {
	return append([]string(nil), bannedPhrases...)
}

// Issue is one detected defect.
type Issue struct {
	Category    string `json:"category"`
	Description string `json:"description"`
}

// Report is the scored assessment of one text.
type Report struct {
	Score          float64 `json:"score"`
	Issues         []Issue `json:"issues,omitempty"`
	WordCount      int     `json:"word_count"`
	LengthRatio    float64 `json:"length_ratio"`
	DialogueMarks  int     `json:"dialogue_marks"`
	ParagraphCount int     `json:"paragraph_count"`
	StartDiversity float64 `json:"sentence_start_diversity"`
}

// Assess scores text against a target word count. Score starts at 1.0 and
// accumulates independent penalties, floored at 0 and capped at 1.
func Assess(text string, targetWordCount int) Report {
	r := Report{Score: 1.0}
	r.WordCount = novel.CountWords(text)

	// Length. Below 70% of target saturates the heavy penalty at 50%; the
	// 70-90% band draws a lighter one. At or above 90% there is no penalty.
	if targetWordCount > 0 {
		r.LengthRatio = float64(r.WordCount) / float64(targetWordCount)
		switch {
		case r.LengthRatio < lengthFloorRatio:
			// Saturates at half the target: anything at or below 50% of the
			// target draws the full penalty.
			penalty := lengthMajorPenalty * (lengthFloorRatio - r.LengthRatio) / (lengthFloorRatio - lengthSaturationRatio)
			if penalty > lengthMajorPenalty {
				penalty = lengthMajorPenalty
			}
			r.Score -= penalty
			r.Issues = append(r.Issues, Issue{
				Category:    "length",
				Description: fmt.Sprintf("content is %d words, well short of the %d-word target", r.WordCount, targetWordCount),
			})
		case r.LengthRatio < lengthTargetRatio:
			r.Score -= lengthMinorPenalty * (lengthTargetRatio - r.LengthRatio) / (lengthTargetRatio - lengthFloorRatio)
			r.Issues = append(r.Issues, Issue{
				Category:    "length",
				Description: fmt.Sprintf("content is %d words, slightly under the %d-word target", r.WordCount, targetWordCount),
			})
		}
	}

	// Cliché phrases. Uncapped in principle, bounded by the catalog size in
	// practice.
	lower := strings.ToLower(text)
	for _, phrase := range bannedPhrases {
		if n := strings.Count(lower, phrase); n > 0 {
			r.Score -= bannedPhrasePenalty * float64(n)
			r.Issues = append(r.Issues, Issue{
				Category:    "cliche",
				Description: fmt.Sprintf("overused phrase %q appears %d time(s)", phrase, n),
			})
		}
	}

	// Sentence-start diversity: distinct 10-character prefixes over total
	// sentences.
	if total, distinct := sentenceStartCounts(text); total > 0 {
		r.StartDiversity = float64(distinct) / float64(total)
		if r.StartDiversity < diversityThreshold {
			r.Score -= diversityPenalty * (diversityThreshold - r.StartDiversity) / diversityThreshold
			r.Issues = append(r.Issues, Issue{
				Category:    "repetition",
				Description: fmt.Sprintf("only %.0f%% of sentences open distinctly; vary sentence openings", r.StartDiversity*100),
			})
		}
	}

	// Dialogue presence, measured by quotation marks.
	r.DialogueMarks = strings.Count(text, `"`)
	if r.DialogueMarks < minDialogueMarks {
		r.Score -= dialoguePenalty * float64(minDialogueMarks-r.DialogueMarks) / float64(minDialogueMarks)
		r.Issues = append(r.Issues, Issue{
			Category:    "dialogue",
			Description: "little or no dialogue detected; add character speech",
		})
	}

	// Paragraph structure on blank-line boundaries.
	r.ParagraphCount = countParagraphs(text)
	if r.ParagraphCount < minParagraphs {
		r.Score -= paragraphPenalty * float64(minParagraphs-r.ParagraphCount) / float64(minParagraphs)
		r.Issues = append(r.Issues, Issue{
			Category:    "structure",
			Description: fmt.Sprintf("only %d paragraph(s); break the text into more paragraphs", r.ParagraphCount),
		})
	}

	if r.Score < 0 {
		r.Score = 0
	}
	if r.Score > 1 {
		r.Score = 1
	}
	return r
}

func sentenceStartCounts(text string) (total, distinct int) {
	seen := make(map[string]struct{})
	for _, sentence := range strings.Split(text, ".") {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		total++
		prefix := sentence
		if runes := []rune(sentence); len(runes) > sentencePrefixLen {
			prefix = string(runes[:sentencePrefixLen])
		}
		seen[prefix] = struct{}{}
	}
	return total, len(seen)
}

func countParagraphs(text string) int {
	count := 0
	for _, p := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(p) != "" {
			count++
		}
	}
	return count
}
