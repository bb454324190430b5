package prompt

// Mode selects what kind of output a composed prompt asks for.
type Mode string

const (
	ModeOutline        Mode = "outline"
	ModeChapter        Mode = "chapter"
	ModeCharacterBatch Mode = "character-batch"
	ModeWorldBatch     Mode = "world-batch"
	ModeFreeformEdit   Mode = "freeform-edit"
)

// Complexity names a style-directive bundle controlling prose sophistication.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityStandard Complexity = "standard"
	ComplexityComplex  Complexity = "complex"
	ComplexityLiterary Complexity = "literary"
)

// Valid reports whether the tier is one of the named bundles.
func (c Complexity) Valid() bool {
	switch c {
	case ComplexitySimple, ComplexityStandard, ComplexityComplex, ComplexityLiterary:
		return true
	}
	return false
}

// chapterDirectives are the style instructions injected into chapter prompts
// per complexity tier.
var chapterDirectives = map[Complexity][]string{
	ComplexitySimple: {
		"Focus on clear, straightforward storytelling",
		"Use accessible language and shorter sentences",
		"Emphasize plot progression and character actions",
		"Keep descriptions concise but vivid",
	},
	ComplexityStandard: {
		"Balance plot, character development, and description",
		"Use varied sentence structure and moderate vocabulary",
		"Include some subtext and deeper character moments",
		"Develop themes naturally through the story",
	},
	ComplexityComplex: {
		"Weave multiple plot threads and character arcs",
		"Use sophisticated vocabulary and varied prose styles",
		"Layer in symbolism, metaphors, and deeper themes",
		"Include complex character psychology and motivations",
		"Employ advanced literary techniques such as foreshadowing and irony",
	},
	ComplexityLiterary: {
		"Prioritize prose quality while maintaining readability",
		"Use sophisticated but clear language and structure",
		"Explore profound themes through character and plot",
		"Create layered meaning without sacrificing clarity",
		"Focus on character psychology and emotional depth",
		"Employ literary devices purposefully, not for show",
	},
}

var characterDirectives = map[Complexity][]string{
	ComplexitySimple: {
		"Create clear, easily understood character roles and motivations",
		"Focus on one main trait or goal per character",
		"Keep character backgrounds straightforward",
	},
	ComplexityStandard: {
		"Develop characters with 2-3 key personality traits",
		"Give each character a clear motivation and one meaningful flaw",
		"Include some character growth potential",
	},
	ComplexityComplex: {
		"Create multi-faceted characters with internal contradictions",
		"Develop complex psychological profiles and hidden depths",
		"Include intricate relationships and power dynamics",
		"Give characters multiple, sometimes conflicting motivations",
	},
	ComplexityLiterary: {
		"Craft characters as vehicles for exploring deep themes",
		"Create complex psychological portraits with rich interiority",
		"Develop characters that embody philosophical concepts",
		"Include subtle character symbolism and archetypal elements",
	},
}

var worldDirectives = map[Complexity][]string{
	ComplexitySimple: {
		"Create clear, easily understood world elements",
		"Focus on elements that directly impact the story",
		"Keep world rules straightforward",
	},
	ComplexityStandard: {
		"Develop a believable, consistent world",
		"Include both major and minor world elements",
		"Create some depth beyond the immediate story",
	},
	ComplexityComplex: {
		"Build a rich, multi-layered world with intricate systems",
		"Include complex political, social, or magical systems",
		"Create interconnected world elements with deep history",
	},
	ComplexityLiterary: {
		"Craft world elements that serve thematic purposes",
		"Use setting as a reflection of character psychology",
		"Create symbolic or metaphorical world elements",
	},
}

// narrativeDevices is the fixed catalog from which chapter prompts draw their
// randomized "techniques to emphasize" subset.
var narrativeDevices = []string{
	"Use internal monologue to reveal character thoughts and motivations",
	"Employ environmental storytelling through setting details",
	"Create tension through subtext in dialogue",
	"Use foreshadowing through seemingly casual details",
	"Show character relationships through their interactions and body language",
	"Include sensory details that ground readers in the scene",
	"Use pacing variation - mix action with reflection",
	"Create atmosphere through mood and tone consistency",
}

// maxDevicesPerChapter bounds the randomized selection.
const maxDevicesPerChapter = 6

// NarrativeDeviceCatalog returns a copy of the full device catalog, mostly
// for verification in tests and debugging surfaces.
func NarrativeDeviceCatalog() []string {
	return append([]string(nil), narrativeDevices...)
}

// overusedOpenings are sentence openers the hard constraints forbid.
var overusedOpenings = []string{
	"The morning was",
	"As the sun",
	"Meanwhile",
	"Suddenly",
	"Without warning",
}

func directivesFor(mode Mode, tier Complexity) []string {
	if !tier.Valid() {
		tier = ComplexityStandard
	}
	switch mode {
	case ModeCharacterBatch:
		return characterDirectives[tier]
	case ModeWorldBatch:
		return worldDirectives[tier]
	default:
		return chapterDirectives[tier]
	}
}
