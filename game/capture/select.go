package capture

import (
	"sort"
	"time"

	"github.com/huugi-star/potenote-scanner-sub001/model"
)

// Mode selects the question-ordering strategy for a battle session.
type Mode string

const (
	// ModeExplore surfaces unseen, healthy words first.
	ModeExplore Mode = "explore"
	// ModeRetry biases toward near-capture words (lowest hp first).
	ModeRetry Mode = "retry"
)

// PlaceholderOption pads the option list when the pool has fewer than
// three distinct wrong meanings.
const PlaceholderOption = "???"

// Question is one multiple-choice question in a battle session.
type Question struct {
	WordIndex int      `json:"word_index"` // index into the scan's Words
	Word      string   `json:"word"`
	Meaning   string   `json:"meaning"`
	Options   []string `json:"options"`
}

// selectQuestions picks up to QuestionsPerRun unique words from the
// active pool. Candidates need a known meaning and hp > 0 — captured
// words are never re-asked. Every selected word is registered in the
// dex at this moment, before any answer is given.
func (e *Engine) selectQuestions(st *model.UserState, scan *model.WordScan, mode Mode) []Question {
	type candidate struct {
		idx   int
		inDex bool
	}

	var all []candidate
	for _, i := range scan.Active {
		w := &scan.Words[i]
		if w.Meaning == "" || w.HP <= 0 {
			continue
		}
		_, inDex := st.Dex[w.Word]
		all = append(all, candidate{idx: i, inDex: inDex})
	}
	if len(all) == 0 {
		return nil
	}

	// Prefer words not yet in the permanent index; fall back to any
	// live active word when that set is empty.
	pool := all
	var fresh []candidate
	for _, c := range all {
		if !c.inDex {
			fresh = append(fresh, c)
		}
	}
	if len(fresh) > 0 {
		pool = fresh
	}

	// Random tie-break first, then a stable sort by the mode's key:
	// unasked before asked, hp (direction depends on mode), then
	// wrongCount descending.
	e.rng.Shuffle(len(pool), func(a, b int) { pool[a], pool[b] = pool[b], pool[a] })
	sort.SliceStable(pool, func(a, b int) bool {
		wa, wb := &scan.Words[pool[a].idx], &scan.Words[pool[b].idx]
		if wa.Asked != wb.Asked {
			return !wa.Asked
		}
		if wa.HP != wb.HP {
			if mode == ModeRetry {
				return wa.HP < wb.HP
			}
			return wa.HP > wb.HP
		}
		return wa.WrongCount > wb.WrongCount
	})

	max := e.cfg.QuestionsPerRun
	if max <= 0 {
		max = 7
	}

	questions := make([]Question, 0, max)
	seen := make(map[string]bool, max)
	for _, c := range pool {
		if len(questions) >= max {
			break
		}
		w := &scan.Words[c.idx]
		if seen[w.Word] {
			continue
		}
		seen[w.Word] = true
		questions = append(questions, Question{
			WordIndex: c.idx,
			Word:      w.Word,
			Meaning:   w.Meaning,
			Options:   e.buildOptions(scan, c.idx),
		})
		registerDex(st, w)
	}
	return questions
}

// buildOptions assembles the shuffled 4-option list: the correct
// meaning plus three distinct wrong meanings drawn from other active
// words, padded with a placeholder when the pool is too small.
func (e *Engine) buildOptions(scan *model.WordScan, wordIdx int) []string {
	correct := scan.Words[wordIdx].Meaning

	var wrong []string
	seen := map[string]bool{correct: true}
	for _, i := range scan.Active {
		if i == wordIdx {
			continue
		}
		m := scan.Words[i].Meaning
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		wrong = append(wrong, m)
	}
	e.rng.Shuffle(len(wrong), func(a, b int) { wrong[a], wrong[b] = wrong[b], wrong[a] })

	need := e.cfg.OptionsPerAnswer
	if need <= 0 {
		need = 4
	}
	options := make([]string, 0, need)
	options = append(options, correct)
	for _, m := range wrong {
		if len(options) >= need {
			break
		}
		options = append(options, m)
	}
	for len(options) < need {
		options = append(options, PlaceholderOption)
	}
	e.rng.Shuffle(len(options), func(a, b int) { options[a], options[b] = options[b], options[a] })
	return options
}

// registerDex adds the word to the permanent cross-scan index. A word
// becomes visible (masked) in the dex as soon as it is surfaced as a
// question candidate, regardless of the answer that follows.
func registerDex(st *model.UserState, w *model.WordEnemy) {
	if _, ok := st.Dex[w.Word]; ok {
		return
	}
	st.Dex[w.Word] = &model.DexEntry{
		Word:      w.Word,
		Meaning:   w.Meaning,
		FirstSeen: time.Now(),
	}
}
