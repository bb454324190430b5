package prompt

import (
	"fmt"
	"strings"
	"testing"
)

const mistHarborOutline = `**NARRATIVE FOUNDATION**
Core Conflict: The harbor's fog hides a smuggling ring.

**ACT I: FOUNDATION**
Ilsa returns home and finds the harbor changed.

**Chapter 1: Arrival**
Ilsa Voss steps off the ferry into fog. The harbormaster's office is empty and the ledger is missing.

Chapter 2: The Ledger
A manifest surfaces that does not match the boats at anchor. Ilsa starts asking questions nobody wants asked.

Chapter 3: The Warden Calls
The Warden pays Ilsa a visit with a warning dressed as a welcome.

**ACT II: DEVELOPMENT**
The conspiracy tightens around the harbor.

Chapter 4: Night Cargo
Ilsa follows a crew unloading crates past midnight.

Chapter 5: Mistbinding
An old fisherman shows Ilsa how the fog can be woven to hide a hull.

Chapter 6: The Council
The Harbor Council votes against an audit. Ilsa recognizes a name on the dissent list.

Chapter 7: Breakwater
A body washes up below the lighthouse.

---

**ACT III: RESOLUTION**
The fog lifts on the ring and its patron.

Chapter 8: The Patron
Ilsa traces the smuggling money to the Warden's office.

Chapter 9: Storm Tide
A storm forces every boat into harbor, smugglers included.

Chapter 10: Clear Water
Ilsa lays the ledger open before the town and the fog finally lifts.`

func TestParseOutlineMistHarbor(t *testing.T) {
	out := ParseOutline(mistHarborOutline)

	if len(out.Chapters) != 10 {
		t.Fatalf("len(Chapters) = %d, want 10", len(out.Chapters))
	}
	for i, ch := range out.Chapters {
		if ch.Number != i+1 {
			t.Errorf("Chapters[%d].Number = %d, want %d", i, ch.Number, i+1)
		}
		if strings.TrimSpace(ch.Summary) == "" {
			t.Errorf("chapter %d has empty summary", ch.Number)
		}
		if ch.Title == "" {
			t.Errorf("chapter %d has empty title", ch.Number)
		}
	}

	if len(out.Acts) != 3 {
		t.Fatalf("len(Acts) = %d, want 3", len(out.Acts))
	}
	if out.Acts[0].Title != "FOUNDATION" {
		t.Errorf("Acts[0].Title = %q", out.Acts[0].Title)
	}
	if out.Acts[1].Summary == "" {
		t.Error("act II summary not accumulated")
	}

	// Chapters carry their act association.
	if out.Chapters[0].ActNumber != 1 || out.Chapters[4].ActNumber != 2 || out.Chapters[9].ActNumber != 3 {
		t.Errorf("act assignment wrong: %d %d %d",
			out.Chapters[0].ActNumber, out.Chapters[4].ActNumber, out.Chapters[9].ActNumber)
	}
}

func TestParseOutlineWithoutActs(t *testing.T) {
	text := "Chapter 1: One\nFirst summary.\n\nChapter 2: Two\nSecond summary."
	out := ParseOutline(text)

	if len(out.Acts) != 0 {
		t.Errorf("len(Acts) = %d, want 0", len(out.Acts))
	}
	if len(out.Chapters) != 2 {
		t.Fatalf("len(Chapters) = %d, want 2", len(out.Chapters))
	}
	if out.Chapters[0].ActNumber != 0 {
		t.Errorf("ActNumber = %d, want 0 for actless outline", out.Chapters[0].ActNumber)
	}
}

func TestParseCharacters(t *testing.T) {
	text := `Here are the characters you requested.

1. Ilsa Voss
Role: protagonist
Age: 34, settling into authority she never wanted
Personality: stubborn, dry-humored, loyal to a fault
Background: grew up on the docks, left after a wreck
Motivation: protect the harbor from itself
Speech Pattern: clipped sentences, nautical idiom
Character Arc: learns to ask for help

2. The Warden
Personality: courteous menace
Role: antagonist
She keeps a garden nobody has ever seen her tend.
Conflict: believes the smuggling keeps the town alive
`

	chars := ParseCharacters(text)
	if len(chars) != 2 {
		t.Fatalf("len(chars) = %d, want 2", len(chars))
	}

	ilsa := chars[0]
	if ilsa.Name != "Ilsa Voss" || ilsa.Role != "protagonist" {
		t.Errorf("first character = %+v", ilsa)
	}
	if ilsa.Motivations != "protect the harbor from itself" {
		t.Errorf("Motivations = %q", ilsa.Motivations)
	}
	if ilsa.Arc != "learns to ask for help" {
		t.Errorf("Arc = %q", ilsa.Arc)
	}
	if ilsa.Traits["age"] == "" || ilsa.Traits["speech_pattern"] == "" {
		t.Errorf("Traits = %v, missing age or speech_pattern", ilsa.Traits)
	}

	// Reordered fields and unlabeled lines must still land.
	warden := chars[1]
	if warden.Role != "antagonist" || warden.Personality != "courteous menace" {
		t.Errorf("second character = %+v", warden)
	}
	if !strings.Contains(warden.Profile, "garden") {
		t.Errorf("Profile = %q, want the free-text line", warden.Profile)
	}
	if warden.Traits["conflict"] == "" {
		t.Errorf("Traits = %v, missing conflict", warden.Traits)
	}
}

func TestParseCharactersHeaderVariants(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"ordinal", "1. Mara Voss\nRole: supporting", "Mara Voss"},
		{"bullet", "* Mara Voss\nRole: supporting", "Mara Voss"},
		{"dash", "- Mara Voss\nRole: supporting", "Mara Voss"},
		{"character label", "CHARACTER 1: Mara Voss\nRole: supporting", "Mara Voss"},
		{"bold header", "**CHARACTER 2: Mara Voss**\nRole: supporting", "Mara Voss"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chars := ParseCharacters(tt.text)
			if len(chars) != 1 {
				t.Fatalf("len(chars) = %d, want 1", len(chars))
			}
			if chars[0].Name != tt.want {
				t.Errorf("Name = %q, want %q", chars[0].Name, tt.want)
			}
			if chars[0].Role != "supporting" {
				t.Errorf("Role = %q", chars[0].Role)
			}
		})
	}
}

func TestParseCharactersNoItems(t *testing.T) {
	if got := ParseCharacters("I'm sorry, I can't produce characters right now."); len(got) != 0 {
		t.Errorf("got %d drafts from refusal text, want 0", len(got))
	}
}

func TestParseWorldElements(t *testing.T) {
	text := `1. The Lighthouse
Type: Location
Description: A stone tower on the breakwater point.
Significance: Its keeper sees every hull that enters.
Details: The lamp burns green during smuggling runs.
Story Impact: Ilsa's only reliable vantage over the harbor.

2. Mistbinding
*Type: Magic
*Description: Weaving fog into lasting shapes.
The craft is taught mouth to ear, never written.
Cultural Impact: Binders are mistrusted and indispensable.
`

	elems := ParseWorldElements(text)
	if len(elems) != 2 {
		t.Fatalf("len(elems) = %d, want 2", len(elems))
	}

	lh := elems[0]
	if lh.Name != "The Lighthouse" || lh.Type != "Location" {
		t.Errorf("first element = %+v", lh)
	}
	if lh.Significance == "" || lh.Details["info"] == "" || lh.Details["story_impact"] == "" {
		t.Errorf("element fields missing: %+v", lh)
	}

	mb := elems[1]
	if mb.Type != "Magic" {
		t.Errorf("starred label not recognized: Type = %q", mb.Type)
	}
	if !strings.Contains(mb.Description, "never written") {
		t.Errorf("free-text line not appended to description: %q", mb.Description)
	}
	if mb.Details["cultural_impact"] == "" {
		t.Errorf("Details = %v, missing cultural_impact", mb.Details)
	}
}

func TestParseWorldElementsNumberedTen(t *testing.T) {
	var b strings.Builder
	for i := 1; i <= 10; i++ {
		fmt.Fprintf(&b, "%d. Element %d\nType: Location\nDescription: Place number %d.\n\n", i, i, i)
	}
	elems := ParseWorldElements(b.String())
	if len(elems) != 10 {
		t.Fatalf("len(elems) = %d, want 10", len(elems))
	}
}
