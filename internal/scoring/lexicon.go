package scoring

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Category is a weighted keyword list.
type Category struct {
	Name   string   `yaml:"name"`
	Weight float64  `yaml:"weight"`
	Words  []string `yaml:"words"`
}

// Lexicon is the full set of categories a Scorer matches against.
type Lexicon struct {
	Categories []Category `yaml:"categories"`
}

// DefaultLexicon returns the built-in lexicon. Words are stems: inflections
// already matched by substring containment are left out so a single spoken
// word is counted once per category.
func DefaultLexicon() Lexicon {
	return Lexicon{Categories: []Category{
		{
			Name:   "career",
			Weight: 1.5,
			Words: []string{
				"job", "career", "hired", "promotion", "fired", "work", "employment",
				"boss", "manager", "salary", "paycheck",
			},
		},
		{
			Name:   "failure",
			Weight: 1.35,
			Words: []string{
				"fail", "broken", "crash", "error", "hopeless", "wrong", "disaster",
				"losing", "lost", "control", "mess", "screwed", "ruined", "destroyed",
				"collapse", "breakdown",
			},
		},
		{
			Name:   "loneliness",
			Weight: 1.35,
			Words: []string{
				"alone", "lonely", "nobody", "friendless", "isolated", "abandoned",
				"rejected", "unwanted", "empty", "disconnected", "outcast",
			},
		},
		{
			Name:   "stress",
			Weight: 1.25,
			Words: []string{
				"stress", "anxiety", "anxious", "panic", "frantic", "frenzied",
				"scared", "afraid", "fear", "terrified", "frightened", "petrified",
				"nervous", "jittery", "restless", "uneasy", "tense", "tension",
				"worried", "worry", "concern", "troubling", "troubled",
				"overwhelm", "swamped", "drowning", "suffocating",
				"pressure", "burden", "weight", "heavy",
				"exhausted", "drained", "burnt", "burnout", "tired", "weary", "depleted",
				"crisis", "emergency", "urgent", "desperate", "help", "struggling", "suffering",
				"shaking", "trembling", "sweating", "nauseous", "sick", "headache", "migraine",
				"deadline", "rush", "hurry", "late", "behind", "running", "time",
				"upset", "disturbed", "agitated", "irritated", "frustrated", "angry", "mad", "furious",
			},
		},
	}}
}

// Normalize lower-cases and de-duplicates every word list and folds words
// that contain another word of the same category.
func Normalize(lex Lexicon) Lexicon {
	out := Lexicon{Categories: make([]Category, 0, len(lex.Categories))}
	for _, cat := range lex.Categories {
		words := lo.Uniq(lo.FilterMap(cat.Words, func(w string, _ int) (string, bool) {
			w = strings.ToLower(strings.TrimSpace(w))
			return w, w != ""
		}))
		stems := lo.Filter(words, func(w string, _ int) bool {
			return !lo.ContainsBy(words, func(other string) bool {
				return other != w && strings.Contains(w, other)
			})
		})
		out.Categories = append(out.Categories, Category{
			Name:   strings.TrimSpace(cat.Name),
			Weight: cat.Weight,
			Words:  stems,
		})
	}
	return out
}

// Validate rejects lexicons that could produce a negative score.
func (l Lexicon) Validate() error {
	if len(l.Categories) == 0 {
		return errors.New("lexicon has no categories")
	}
	for i, cat := range l.Categories {
		if strings.TrimSpace(cat.Name) == "" {
			return fmt.Errorf("category %d: name is required", i)
		}
		if cat.Weight < 0 {
			return fmt.Errorf("category %q: weight must not be negative", cat.Name)
		}
	}
	return nil
}

// LoadLexicon reads a YAML lexicon. A missing file yields the default lexicon.
func LoadLexicon(path string) (Lexicon, error) {
	if strings.TrimSpace(path) == "" {
		return Normalize(DefaultLexicon()), nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Normalize(DefaultLexicon()), nil
		}
		return Lexicon{}, fmt.Errorf("failed to read lexicon file %q: %w", path, err)
	}

	var lex Lexicon
	if err := yaml.Unmarshal(contents, &lex); err != nil {
		return Lexicon{}, fmt.Errorf("failed to parse lexicon file %q: %w", path, err)
	}
	if err := lex.Validate(); err != nil {
		return Lexicon{}, fmt.Errorf("invalid lexicon file %q: %w", path, err)
	}
	return Normalize(lex), nil
}
