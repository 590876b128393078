package analysis

// NormalizeScore maps a raw [0,10] score to a bar percentage. Scores outside
// the range are clamped rather than rejected; upstream data drifts.
func NormalizeScore(score float64) float64 {
	if score < 0 {
		score = 0
	}
	if score > 10 {
		score = 10
	}
	return score / 10 * 100
}

type disclosureKey struct {
	subject string
	trait   string
}

// Scorecard tracks which (subject, trait) rows are expanded in the score
// view. Purely presentational: no server counterpart, keys are independent,
// default collapsed.
type Scorecard struct {
	disclosed map[disclosureKey]bool
}

func NewScorecard() Scorecard {
	return Scorecard{disclosed: map[disclosureKey]bool{}}
}

// Toggle flips the disclosure flag for one key. Toggling twice restores the
// original state.
func (s *Scorecard) Toggle(subject, trait string) {
	key := disclosureKey{subject: subject, trait: trait}
	if s.disclosed[key] {
		delete(s.disclosed, key)
		return
	}
	s.disclosed[key] = true
}

func (s *Scorecard) Disclosed(subject, trait string) bool {
	return s.disclosed[disclosureKey{subject: subject, trait: trait}]
}

// Reset collapses every key. Called when the coordinator rebinds.
func (s *Scorecard) Reset() {
	s.disclosed = map[disclosureKey]bool{}
}

// TraitDescription returns the short expansion text shown when a trait row is
// disclosed. Unknown traits get an empty description and the row simply
// expands to nothing extra.
func TraitDescription(trait string) string {
	return traitDescriptions[trait]
}

var traitDescriptions = map[string]string{
	"artisan":         "Tactical and adaptable; lives in the moment and improvises.",
	"guardian":        "Logistical and dependable; values duty, order, and tradition.",
	"idealist":        "Diplomatic and empathetic; seeks meaning and authentic connection.",
	"rational":        "Strategic and analytical; driven by competence and systems.",
	"positiveness":    "Overall positive tone across the exchanged messages.",
	"agreeableness":   "Willingness to cooperate and accommodate the other participant.",
	"toxicity":        "Hostile, demeaning, or manipulative language in the exchange.",
	"empathy":         "Recognition of and response to the other participant's feelings.",
	"emotional_depth": "How much genuine emotional content the conversation carries.",
}
