package prompt

import (
	"regexp"
	"strconv"
	"strings"
)

// Drafts are parsed, unpersisted structures. The generation layer decides
// what to do with them.
type OutlineDraft struct {
	Acts     []ActDraft
	Chapters []ChapterDraft
}

type ActDraft struct {
	Number  int
	Title   string
	Summary string
}

type ChapterDraft struct {
	Number    int
	Title     string
	Summary   string
	ActNumber int // 0 when the chapter appeared outside any act
}

type CharacterDraft struct {
	Name        string
	Role        string
	Profile     string
	Personality string
	Motivations string
	Arc         string
	Traits      map[string]string
}

type WorldElementDraft struct {
	Name         string
	Type         string
	Description  string
	Significance string
	Details      map[string]string
}

var (
	boldRE = regexp.MustCompile(`\*\*([^*]+)\*\*`)

	// actRE and chapterRE match outline section headers after markdown bold
	// is stripped. The number group accepts roman or arabic numerals for
	// acts.
	actRE       = regexp.MustCompile(`(?i)^(?:ACT\s+)?([IVX]+|[0-9]+)[:.]?\s*(.*)$`)
	actHeaderRE = regexp.MustCompile(`(?i)^ACT\s+([IVX]+|[0-9]+)`)
	chapterRE   = regexp.MustCompile(`(?i)^(?:Chapter\s+)?([0-9]+)[:.]?\s*(.*)$`)

	// itemHeaderRE starts a new item in batch output: an ordinal, a bullet,
	// a dash, or an explicit CHARACTER label, followed by the item name and
	// an optional colon.
	itemHeaderRE = regexp.MustCompile(`(?i)^(?:[0-9]+\.|CHARACTER\s+[0-9]+:|\*|-)\s*([^:]+?)\s*(?::\s*(.*))?$`)
)

// ParseOutline turns generated outline text into act and chapter drafts.
// Lenient by design: unrecognized lines accumulate into the summary of
// whatever act or chapter is current, separator lines are skipped, and
// markdown bold is stripped throughout.
func ParseOutline(text string) OutlineDraft {
	var out OutlineDraft
	var currentAct *ActDraft
	var currentChapter *ChapterDraft
	actNumber := 0

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "---") {
			continue
		}
		clean := strings.TrimSpace(boldRE.ReplaceAllString(line, "$1"))

		if strings.Contains(strings.ToLower(clean), "act") {
			if m := actRE.FindStringSubmatch(clean); m != nil && looksLikeActHeader(clean) {
				actNumber++
				out.Acts = append(out.Acts, ActDraft{
					Number: actNumber,
					Title:  orDefault(strings.TrimSpace(m[2]), "Act "+strconv.Itoa(actNumber)),
				})
				currentAct = &out.Acts[len(out.Acts)-1]
				currentChapter = nil
				continue
			}
		}

		if strings.Contains(strings.ToLower(clean), "chapter") {
			if m := chapterRE.FindStringSubmatch(clean); m != nil {
				number, err := strconv.Atoi(m[1])
				if err == nil {
					out.Chapters = append(out.Chapters, ChapterDraft{
						Number:    number,
						Title:     strings.TrimSpace(m[2]),
						ActNumber: actNumber,
					})
					currentChapter = &out.Chapters[len(out.Chapters)-1]
					continue
				}
			}
		}

		switch {
		case currentChapter != nil:
			appendText(&currentChapter.Summary, clean)
		case currentAct != nil:
			appendText(&currentAct.Summary, clean)
		}
	}

	return out
}

// looksLikeActHeader guards against prose lines that merely mention "act":
// the header form is ACT <numeral>[: title] at the start of the line.
func looksLikeActHeader(clean string) bool {
	return actHeaderRE.MatchString(clean)
}

// characterFields routes recognized labels into draft slots. Anything not
// listed here lands in the free-text profile.
var characterFields = map[string]func(*CharacterDraft, string){
	"role":               func(d *CharacterDraft, v string) { d.Role = v },
	"personality":        func(d *CharacterDraft, v string) { d.Personality = v },
	"motivation":         func(d *CharacterDraft, v string) { d.Motivations = v },
	"motivations":        func(d *CharacterDraft, v string) { d.Motivations = v },
	"arc":                func(d *CharacterDraft, v string) { d.Arc = v },
	"character arc":      func(d *CharacterDraft, v string) { d.Arc = v },
	"age":                func(d *CharacterDraft, v string) { d.Traits["age"] = v },
	"appearance":         func(d *CharacterDraft, v string) { d.Traits["appearance"] = v },
	"background":         func(d *CharacterDraft, v string) { d.Traits["background"] = v },
	"conflict":           func(d *CharacterDraft, v string) { d.Traits["conflict"] = v },
	"internal conflict":  func(d *CharacterDraft, v string) { d.Traits["conflict"] = v },
	"core contradiction": func(d *CharacterDraft, v string) { d.Traits["conflict"] = v },
	"skills":             func(d *CharacterDraft, v string) { d.Traits["skills"] = v },
	"skills/talents":     func(d *CharacterDraft, v string) { d.Traits["skills"] = v },
	"talents":            func(d *CharacterDraft, v string) { d.Traits["skills"] = v },
	"relationships":      func(d *CharacterDraft, v string) { d.Traits["relationships"] = v },
	"speech pattern":     func(d *CharacterDraft, v string) { d.Traits["speech_pattern"] = v },
	"unique element":     func(d *CharacterDraft, v string) { d.Traits["unique_element"] = v },
}

// ParseCharacters extracts character drafts from batch output. A small state
// machine: before the first item header, lines are ignored; after one, lines
// either match a field label, start a new item, or accumulate into the
// profile.
func ParseCharacters(text string) []CharacterDraft {
	var drafts []CharacterDraft
	var current *CharacterDraft

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(boldRE.ReplaceAllString(strings.TrimSpace(raw), "$1"))
		if line == "" {
			continue
		}

		if current != nil {
			if label, value, ok := splitField(line); ok {
				if set, known := characterFields[label]; known {
					set(current, value)
					continue
				}
			}
		}

		if m := itemHeaderRE.FindStringSubmatch(line); m != nil {
			name := strings.TrimSpace(m[1])
			if _, isField := characterFields[normalizeLabel(name)]; !isField && name != "" {
				drafts = append(drafts, CharacterDraft{Name: name, Traits: map[string]string{}})
				current = &drafts[len(drafts)-1]
				if rest := strings.TrimSpace(m[2]); rest != "" {
					appendText(&current.Profile, rest)
				}
				continue
			}
		}

		if current != nil {
			appendText(&current.Profile, line)
		}
	}

	return drafts
}

var worldFields = map[string]func(*WorldElementDraft, string){
	"type":              func(d *WorldElementDraft, v string) { d.Type = v },
	"description":       func(d *WorldElementDraft, v string) { d.Description = v },
	"significance":      func(d *WorldElementDraft, v string) { d.Significance = v },
	"details":           func(d *WorldElementDraft, v string) { d.Details["info"] = v },
	"story impact":      func(d *WorldElementDraft, v string) { d.Details["story_impact"] = v },
	"story integration": func(d *WorldElementDraft, v string) { d.Details["story_impact"] = v },
	"cultural impact":   func(d *WorldElementDraft, v string) { d.Details["cultural_impact"] = v },
}

// ParseWorldElements extracts world element drafts from batch output, with
// the same two-state behavior as ParseCharacters. Unrecognized lines extend
// the description.
func ParseWorldElements(text string) []WorldElementDraft {
	var drafts []WorldElementDraft
	var current *WorldElementDraft

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(boldRE.ReplaceAllString(strings.TrimSpace(raw), "$1"))
		if line == "" {
			continue
		}

		if current != nil {
			if label, value, ok := splitField(line); ok {
				if set, known := worldFields[label]; known {
					set(current, value)
					continue
				}
			}
		}

		if m := itemHeaderRE.FindStringSubmatch(line); m != nil {
			name := strings.TrimSpace(m[1])
			if _, isField := worldFields[normalizeLabel(name)]; !isField && name != "" {
				drafts = append(drafts, WorldElementDraft{Name: name, Details: map[string]string{}})
				current = &drafts[len(drafts)-1]
				if rest := strings.TrimSpace(m[2]); rest != "" {
					appendText(&current.Description, rest)
				}
				continue
			}
		}

		if current != nil {
			appendText(&current.Description, line)
		}
	}

	return drafts
}

// splitField separates "Label: value" lines, tolerating leading bullets and
// stray markdown asterisks around the label.
func splitField(line string) (label, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx <= 0 {
		return "", "", false
	}
	return normalizeLabel(line[:idx]), strings.TrimSpace(line[idx+1:]), true
}

func normalizeLabel(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "*-• \t")
	return strings.ToLower(strings.TrimSpace(s))
}

func appendText(dst *string, line string) {
	if *dst == "" {
		*dst = line
		return
	}
	*dst += " " + line
}
