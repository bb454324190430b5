package generation

import (
	"fmt"
	"strings"

	"github.com/vampirenirmal/novelforge/internal/narrative"
)

// The multi-pass prompts live here rather than in the composer: each pass is
// framed by the previous pass's raw output, not by a narrative context, so
// the composer's section machinery does not apply.

func structurePassPrompt(current *narrative.ChapterSummary, target int) string {
	var title, summary string
	if current != nil {
		title = current.Title
		summary = current.Summary
	}
	return strings.Join([]string{
		"CHAPTER STRUCTURE GENERATION - PASS 1",
		"",
		fmt.Sprintf("Create a detailed structural outline for this chapter that will serve as the foundation for a %d-word chapter.", target),
		"",
		"CHAPTER INFO:",
		fmt.Sprintf("Chapter %d: %s", chapterNumber(current), orUntitled(title)),
		"Summary: " + orDefault(summary, "No summary provided"),
		"",
		"STRUCTURAL REQUIREMENTS:",
		"- Identify 4-6 distinct scenes or moments",
		"- Each scene should be 400-600 words when fully written",
		"- Include specific character actions and plot developments",
		"- Plan dialogue opportunities and character interactions",
		"- Identify moments for internal reflection or character development",
		"- Ensure each scene advances the plot or reveals character",
		"",
		"FORMAT YOUR RESPONSE AS:",
		"",
		"**SCENE 1: [Scene Title/Location]** (Target: 400-500 words)",
		"Purpose: [What this scene accomplishes for plot/character]",
		"Characters Present: [Who appears in this scene]",
		"Key Events: [Specific things that happen]",
		"Dialogue Opportunities: [What conversations should occur]",
		"Mood/Atmosphere: [Emotional tone to establish]",
		"",
		"[Continue for all scenes, then close with the chapter arc: opening and",
		"closing situation, character development, and plot advancement.]",
	}, "\n")
}

func dialoguePassPrompt(structure string) string {
	return strings.Join([]string{
		"CHARACTER DEVELOPMENT ENHANCEMENT - PASS 2",
		"",
		"Take the structural outline below and develop it into rich character-driven content with authentic dialogue and detailed character interactions.",
		"",
		"STRUCTURAL FOUNDATION:",
		structure,
		"",
		"CHARACTER ENHANCEMENT REQUIREMENTS:",
		"- Write authentic dialogue that reveals character personality and relationships",
		"- Include character internal thoughts and motivations",
		"- Show character emotions through actions and body language, not exposition",
		"- Create realistic interactions with subtext and tension",
		"- Develop each character's unique voice and speech patterns",
		"",
		"DIALOGUE REQUIREMENTS:",
		"- Each character must have distinct speech patterns",
		"- Include realistic interruptions, hesitations, and overlapping speech",
		"- Use subtext - characters don't always say what they mean",
		"- Avoid exposition dumps disguised as dialogue",
		"",
		"Expand each scene with specific conversations, character reactions, and internal moments.",
	}, "\n")
}

func prosePassPrompt(content string, target int) string {
	return strings.Join([]string{
		"PROSE REFINEMENT AND EXPANSION - PASS 3",
		"",
		fmt.Sprintf("Take the character-enhanced content below and refine it into polished, publication-quality prose that reaches %d words.", target),
		"",
		"CHARACTER-ENHANCED CONTENT:",
		content,
		"",
		"PROSE REFINEMENT REQUIREMENTS:",
		"- Enhance descriptions with sensory details and atmosphere",
		"- Vary sentence structure and length for better rhythm",
		"- Include specific, concrete details instead of vague descriptions",
		"- Eliminate any cliched or artificial-sounding expressions",
		"- Ensure smooth transitions between scenes and paragraphs",
		"",
		"QUALITY STANDARDS:",
		"- Every sentence must serve a purpose (plot, character, or atmosphere)",
		"- Reach the target word count through quality expansion, not padding",
		"",
		fmt.Sprintf("Write the complete, refined chapter now. Target: %d words.", target),
	}, "\n")
}

func chapterNumber(c *narrative.ChapterSummary) int {
	if c == nil {
		return 0
	}
	return c.Number
}

func orUntitled(s string) string { return orDefault(s, "Untitled") }

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
