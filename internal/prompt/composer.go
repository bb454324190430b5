// Package prompt renders narrative context into backend instructions and
// parses structured drafts back out of generated text.
package prompt

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/vampirenirmal/novelforge/internal/narrative"
	"github.com/vampirenirmal/novelforge/internal/quality"
)

// Input carries everything one composition needs. Context is required for
// every mode except freeform-edit.
type Input struct {
	Context    *narrative.Context
	Mode       Mode
	Complexity Complexity

	// TargetWordCount applies to chapter mode; ItemCount to the batch modes.
	TargetWordCount int
	ItemCount       int

	// Instruction and Text drive freeform-edit mode.
	Instruction string
	Text        string

	// Extra is an optional caller-supplied directive appended verbatim at
	// the end of the prompt (regeneration feedback, corrective directives).
	Extra string
}

// Composition is a rendered prompt. Devices records the randomized narrative
// device selection (chapter mode only) so a result can be reproduced and
// debugged.
type Composition struct {
	Prompt  string
	Devices []string
}

// Composer renders prompts. Rendering is deterministic for a fixed Input
// except for the narrative device selection, which draws from the fixed
// catalog via the composer's random source.
type Composer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

type ComposerOption func(*Composer)

// WithSeed fixes the device-selection source, for reproducible runs.
func WithSeed(seed int64) ComposerOption {
	return func(c *Composer) { c.rng = rand.New(rand.NewSource(seed)) }
}

func NewComposer(opts ...ComposerOption) *Composer {
	c := &Composer{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Composer) Compose(in Input) (*Composition, error) {
	switch in.Mode {
	case ModeOutline, ModeChapter, ModeCharacterBatch, ModeWorldBatch:
		if in.Context == nil {
			return nil, fmt.Errorf("mode %s requires a narrative context", in.Mode)
		}
	case ModeFreeformEdit:
		if strings.TrimSpace(in.Text) == "" || strings.TrimSpace(in.Instruction) == "" {
			return nil, fmt.Errorf("freeform-edit requires text and an instruction")
		}
	default:
		return nil, fmt.Errorf("unknown generation mode %q", in.Mode)
	}

	out := &Composition{}
	var b strings.Builder

	// Composition order is fixed: creative directive, tier directives, hard
	// constraints, device selection, context sections, closing instructions.
	writeSection(&b, modeDirective(in.Mode))
	writeSection(&b, complexitySection(in.Mode, in.Complexity))
	if in.Mode == ModeChapter || in.Mode == ModeFreeformEdit {
		writeSection(&b, hardConstraints())
	}
	if in.Mode == ModeChapter {
		out.Devices = c.pickDevices()
		writeSection(&b, deviceSection(out.Devices))
	}

	switch in.Mode {
	case ModeFreeformEdit:
		writeSection(&b, editSection(in))
	default:
		writeSection(&b, contextSection(in.Context, in.Mode))
	}

	writeSection(&b, closingSection(in))

	if extra := strings.TrimSpace(in.Extra); extra != "" {
		writeSection(&b, extra)
	}

	out.Prompt = strings.TrimRight(b.String(), "\n")
	return out, nil
}

func (c *Composer) pickDevices() []string {
	c.mu.Lock()
	perm := c.rng.Perm(len(narrativeDevices))
	c.mu.Unlock()

	n := maxDevicesPerChapter
	if n > len(narrativeDevices) {
		n = len(narrativeDevices)
	}
	picked := make([]string, 0, n)
	for _, i := range perm[:n] {
		picked = append(picked, narrativeDevices[i])
	}
	return picked
}

func writeSection(b *strings.Builder, section string) {
	if section == "" {
		return
	}
	b.WriteString(section)
	b.WriteString("\n\n")
}

func modeDirective(mode Mode) string {
	switch mode {
	case ModeOutline:
		return "Generate a highly detailed, innovative novel outline with a multi-layered narrative. Integrate compelling subplots and intricate character arcs that intersect unexpectedly. Deliberately avoid any common literary clichés or predictable story arcs. The outline should hint at hidden motivations, unresolved mysteries, and moral ambiguity, ensuring every narrative element contributes meaningfully and subtly to overarching themes."
	case ModeChapter:
		return "Write a chapter employing varied sentence structures, evocative imagery, and emotionally resonant storytelling. Use narrative restraint to imply rather than explicitly state character intentions and emotional states. Subtly weave thematic threads and foreshadowing without overt exposition. Dialogue should feel organic and reflective of complex interpersonal dynamics. Avoid redundancy, sentimentality, predictable conflicts, or any phrasing that could read as overtly artificial or simplistic."
	case ModeCharacterBatch:
		return "Create richly detailed character profiles grounded in realistic psychology. Characters must have complex inner conflicts, believable contradictions, and distinctive mannerisms that subtly reflect their past experiences. Avoid archetypal or stereotypical traits. Include a precise balance of strengths, vulnerabilities, secrets, and unresolved emotional tensions, presenting characters who genuinely evolve in response to layered narrative challenges."
	case ModeWorldBatch:
		return "Design an original, vividly immersive world grounded in subtle logic and internal consistency. Provide intriguing cultural practices, unique societal structures, and nuanced historical undercurrents. Every element should seamlessly enrich the narrative and subtly inform character behaviors and plot developments. Avoid typical fantasy, dystopian, or science-fiction tropes. Prioritize complexity, detail, and originality."
	case ModeFreeformEdit:
		return "Refine the provided text for stylistic sophistication, emotional depth, and narrative complexity. Prioritize subtlety in character portrayals, thematic nuances, and immersive descriptions. Improve sentence rhythm and pacing to avoid monotonous structure. Eliminate predictable phrasing, clichés, superficial profundity, and overtly dramatized expressions. Ensure the final output feels effortlessly human, nuanced, and compelling."
	}
	return ""
}

func complexitySection(mode Mode, tier Complexity) string {
	if mode == ModeFreeformEdit {
		return ""
	}
	if !tier.Valid() {
		tier = ComplexityStandard
	}
	lines := []string{fmt.Sprintf("COMPLEXITY LEVEL: %s", strings.ToUpper(string(tier)))}
	for _, d := range directivesFor(mode, tier) {
		lines = append(lines, "- "+d)
	}
	return strings.Join(lines, "\n")
}

func hardConstraints() string {
	lines := []string{
		"CRITICAL WRITING RULES:",
		"- Use proper punctuation and complete sentences with periods",
		"- Keep sentences under 25 words and vary their length",
		"- Write dialogue that sounds like real people talking",
		"- Use concrete, specific details instead of vague abstractions",
		"- Show character emotions through actions and dialogue",
		"- Every sentence must advance the story or reveal character",
		"",
		"FORBIDDEN PHRASES - never use any of these:",
	}
	for _, phrase := range quality.BannedPhrases() {
		lines = append(lines, "- "+phrase)
	}
	lines = append(lines, "", "FORBIDDEN SENTENCE OPENINGS:")
	for _, opening := range overusedOpenings {
		lines = append(lines, "- "+opening)
	}
	return strings.Join(lines, "\n")
}

func deviceSection(devices []string) string {
	lines := []string{"NARRATIVE TECHNIQUES TO EMPHASIZE:"}
	for _, d := range devices {
		lines = append(lines, "- "+d)
	}
	return strings.Join(lines, "\n")
}

// contextSection serializes the snapshot in fixed order: story, cast, world,
// prior chapters, current-chapter outline.
func contextSection(ctx *narrative.Context, mode Mode) string {
	var lines []string

	lines = append(lines, "STORY CONTEXT:")
	lines = append(lines, "Title: "+orDefault(ctx.Story.Title, "Untitled"))
	lines = append(lines, "Genre: "+orDefault(ctx.Story.Genre, "Fiction"))
	if ctx.Story.Description != "" {
		lines = append(lines, "Premise: "+ctx.Story.Description)
	}

	if len(ctx.Cast) > 0 {
		lines = append(lines, "", "MAIN CHARACTERS:")
		for _, ch := range ctx.Cast {
			line := "- " + ch.Name
			if ch.Role != "" {
				line += " (" + ch.Role + ")"
			}
			if ch.Personality != "" {
				line += ": " + ch.Personality
			}
			if ch.Motivations != "" {
				line += " | Motivation: " + ch.Motivations
			}
			if ch.Arc != "" {
				line += " | Arc: " + ch.Arc
			}
			lines = append(lines, line)
		}
	}

	if len(ctx.Categories) > 0 {
		lines = append(lines, "", "WORLD/SETTING ELEMENTS:")
		for _, category := range ctx.Categories {
			for _, fact := range ctx.WorldFacts[category] {
				line := fmt.Sprintf("- %s (%s)", fact.Name, category)
				if fact.Description != "" {
					line += ": " + fact.Description
				}
				lines = append(lines, line)
			}
		}
	}

	if len(ctx.PriorChapters) > 0 {
		lines = append(lines, "", "PREVIOUS CHAPTERS (for continuity):")
		start := 0
		if len(ctx.PriorChapters) > 3 {
			start = len(ctx.PriorChapters) - 3
		}
		for _, ch := range ctx.PriorChapters[start:] {
			lines = append(lines, fmt.Sprintf("Chapter %d: %s", ch.Number, orDefault(ch.Title, "Untitled")))
			if ch.Summary != "" {
				lines = append(lines, "  Summary: "+ch.Summary)
			}
		}
	}

	if mode == ModeChapter && ctx.CurrentChapter != nil {
		cur := ctx.CurrentChapter
		lines = append(lines, "", "CURRENT CHAPTER TO WRITE:")
		lines = append(lines, fmt.Sprintf("Chapter %d: %s", cur.Number, orDefault(cur.Title, "Untitled")))
		if cur.Summary != "" {
			lines = append(lines, "Chapter Outline: "+cur.Summary)
		}
	}

	return strings.Join(lines, "\n")
}

func editSection(in Input) string {
	lines := []string{"EDITING INSTRUCTION: " + in.Instruction}
	if in.Context != nil && in.Context.Story.Title != "" {
		lines = append(lines, "", "CONTEXT: "+in.Context.Story.Title)
		if in.Context.Story.Genre != "" {
			lines[len(lines)-1] += " (" + in.Context.Story.Genre + ")"
		}
	}
	lines = append(lines,
		"",
		"ORIGINAL TEXT:",
		"---",
		in.Text,
		"---",
	)
	return strings.Join(lines, "\n")
}

// closingSection restates the target length and the output format contract.
func closingSection(in Input) string {
	switch in.Mode {
	case ModeOutline:
		target := in.ItemCount
		if target == 0 && in.Context != nil {
			target = in.Context.Story.TargetChapters
		}
		return strings.Join([]string{
			fmt.Sprintf("TARGET LENGTH: %d chapters", target),
			"",
			"FORMAT YOUR RESPONSE EXACTLY AS:",
			"",
			"ACT I: [Act Title]",
			"[Brief act summary including key character introductions and conflicts]",
			"",
			"Chapter 1: [Chapter Title]",
			"[Chapter summary - 2-3 sentences describing what happens, who is involved, and what conflict occurs]",
			"",
			"[Continue for all chapters across ACT II and ACT III...]",
			"",
			"IMPORTANT: Every chapter MUST have a detailed summary. Do not leave any chapter summaries blank.",
		}, "\n")
	case ModeChapter:
		return strings.Join([]string{
			"WRITING REQUIREMENTS:",
			fmt.Sprintf("- Length: aim for %d words", in.TargetWordCount),
			"- Use proper grammar, punctuation, and paragraph breaks",
			"- Include dialogue, action, and description in balanced proportions",
			"- End with a compelling hook or transition",
			"",
			fmt.Sprintf("Write the complete chapter now - %d words.", in.TargetWordCount),
		}, "\n")
	case ModeCharacterBatch:
		return strings.Join([]string{
			"FORMAT YOUR RESPONSE EXACTLY AS:",
			"",
			"1. [Character Name]",
			"Role: [protagonist/antagonist/supporting character]",
			"Age: [Age and life stage]",
			"Appearance: [Physical description - 2-3 specific details]",
			"Personality: [3-4 key traits including contradictions]",
			"Background: [Personal history and formative experiences]",
			"Motivation: [What drives them and what they want]",
			"Conflict: [Internal struggle or flaw]",
			"Skills/Talents: [What they're good at]",
			"Relationships: [How they relate to others]",
			"Speech Pattern: [How they talk - rhythm, vocabulary, verbal tics]",
			"Unique Element: [Something unexpected or distinctive]",
			"Character Arc: [How they might change through the story]",
			"",
			"2. [Character Name]",
			"[Continue exact same format...]",
			"",
			fmt.Sprintf("Create exactly %d fully developed characters with complete profiles.", in.ItemCount),
		}, "\n")
	case ModeWorldBatch:
		return strings.Join([]string{
			"FORMAT YOUR RESPONSE EXACTLY AS:",
			"",
			"1. [Element Name]",
			"Type: [Location/Organization/Culture/Technology/History/Custom]",
			"Description: [Detailed description of what this is]",
			"Significance: [Why this matters to the story]",
			"Details: [Specific features, rules, or characteristics]",
			"Story Impact: [How this affects characters or plot]",
			"",
			"2. [Element Name]",
			"[Continue exact same format...]",
			"",
			fmt.Sprintf("Create exactly %d world building elements that enrich the story.", in.ItemCount),
		}, "\n")
	case ModeFreeformEdit:
		return "Rewrite the text according to the instruction while maintaining the core meaning and narrative flow. Return only the revised text."
	}
	return ""
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
