package capture

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/huugi-star/potenote-scanner-sub001/model"
	"go.uber.org/zap"
)

// sessionTTL bounds how long an interrupted battle can be resumed.
const sessionTTL = 2 * time.Hour

// MissEntry aggregates repeated misses of one word within a session.
type MissEntry struct {
	Word    string `json:"word"`
	Meaning string `json:"meaning"`
	Count   int    `json:"count"`
}

// Session is the scratch state of one battle run. It lives in the cache
// (keyed by user) so an interrupted session can be resumed; the durable
// word state lives in the snapshot tree.
type Session struct {
	ScanID    string     `json:"scan_id"`
	Mode      Mode       `json:"mode"`
	Questions []Question `json:"questions"`
	Cursor    int        `json:"cursor"` // next unanswered question

	Captured []string    `json:"captured"` // words that reached hp 0 this session
	Defeats  int         `json:"defeats"`  // correct answers this session
	Misses   []MissEntry `json:"misses"`
	Correct  int         `json:"correct"`

	StartedAt time.Time `json:"started_at"`
}

// AnswerOutcome reports the effect of one submitted answer.
type AnswerOutcome struct {
	Correct  bool   `json:"correct"`
	Word     string `json:"word"`
	HP       int    `json:"hp"`
	Captured bool   `json:"captured"`
	Done     bool   `json:"done"` // no questions left
}

// BattleResult summarizes a finished session.
type BattleResult struct {
	ScanID       string                  `json:"scan_id"`
	Captured     []string                `json:"captured"`
	Defeated     []string                `json:"defeated"` // damaged but not captured
	DefeatCount  int                     `json:"defeat_count"`
	MissCount    int                     `json:"miss_count"`
	Misses       []MissEntry             `json:"misses"`
	CorrectCount int                     `json:"correct_count"`
	Snapshot     model.AdventureSnapshot `json:"snapshot"`
}

func sessionKey(userID string) string { return "battle:" + userID }

// StartSession selects questions for the scan and opens a session.
// An empty question list is a valid terminal outcome ("no targets"),
// not an error: the caller must branch rather than retry.
func (e *Engine) StartSession(ctx context.Context, scanID string, mode Mode) (*Session, error) {
	var sess *Session
	err := e.c.Mutate(func(st *model.UserState) error {
		scan, ok := st.Scans[scanID]
		if !ok {
			return ErrScanNotFound
		}
		sess = &Session{
			ScanID:    scanID,
			Mode:      mode,
			Questions: e.selectQuestions(st, scan, mode),
			StartedAt: time.Now(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := e.saveSession(ctx, sess); err != nil {
		return nil, err
	}
	e.logger.Info("battle session started",
		zap.String("scan_id", scanID),
		zap.String("mode", string(mode)),
		zap.Int("questions", len(sess.Questions)))
	return sess, nil
}

// ResumeSession returns the active session, if any.
func (e *Engine) ResumeSession(ctx context.Context) (*Session, error) {
	return e.loadSession(ctx)
}

// SubmitAnswer applies one answer to the current question. A timeout is
// treated identically to a wrong answer. Correct answers decrement hp
// by exactly one; hp 0 is terminal and is never decremented again.
func (e *Engine) SubmitAnswer(ctx context.Context, answer string, timedOut bool) (AnswerOutcome, error) {
	sess, err := e.loadSession(ctx)
	if err != nil {
		return AnswerOutcome{}, err
	}
	if sess.Cursor >= len(sess.Questions) {
		return AnswerOutcome{Done: true}, nil
	}
	q := sess.Questions[sess.Cursor]
	correct := !timedOut && answer == q.Meaning

	var out AnswerOutcome
	err = e.c.Mutate(func(st *model.UserState) error {
		scan, ok := st.Scans[sess.ScanID]
		if !ok {
			return ErrScanNotFound
		}
		w := &scan.Words[q.WordIndex]
		out = AnswerOutcome{Correct: correct, Word: w.Word}

		if correct {
			w.Asked = true
			if w.HP > 0 {
				w.HP--
				sess.Defeats++
				sess.Correct++
				if w.HP == 0 {
					sess.Captured = append(sess.Captured, w.Word)
					markCaptured(st, w.Word)
					out.Captured = true
				}
			}
		} else {
			w.Asked = true
			w.WrongCount++
			recordMiss(sess, w)
		}
		out.HP = w.HP
		return nil
	})
	if err != nil {
		return AnswerOutcome{}, err
	}

	sess.Cursor++
	out.Done = sess.Cursor >= len(sess.Questions)
	if err := e.saveSession(ctx, sess); err != nil {
		return AnswerOutcome{}, err
	}
	return out, nil
}

// EndSession closes the session, writes the scan's adventure snapshot
// from the active pool's hit points at this instant, and returns the
// battle summary.
func (e *Engine) EndSession(ctx context.Context) (*BattleResult, error) {
	sess, err := e.loadSession(ctx)
	if err != nil {
		return nil, err
	}

	result := &BattleResult{
		ScanID:       sess.ScanID,
		Captured:     sess.Captured,
		DefeatCount:  sess.Defeats,
		Misses:       sess.Misses,
		CorrectCount: sess.Correct,
	}
	for _, m := range sess.Misses {
		result.MissCount += m.Count
	}

	err = e.c.Mutate(func(st *model.UserState) error {
		scan, ok := st.Scans[sess.ScanID]
		if !ok {
			return ErrScanNotFound
		}
		for _, i := range scan.Active {
			w := &scan.Words[i]
			if w.HP > 0 && w.HP < FreshHP {
				result.Defeated = append(result.Defeated, w.Word)
			}
		}
		snap := liveSnapshot(scan)
		scan.Snapshot = &snap
		result.Snapshot = snap
		return nil
	})
	if err != nil {
		return nil, err
	}

	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_ = e.cache.Del(cctx, sessionKey(e.c.UserID()))

	e.logger.Info("battle session ended",
		zap.String("scan_id", result.ScanID),
		zap.Int("captured", len(result.Captured)),
		zap.Int("defeats", result.DefeatCount),
		zap.Int("misses", result.MissCount))
	return result, nil
}

// markCaptured stamps the dex entry for a word that just hit hp 0.
func markCaptured(st *model.UserState, word string) {
	if entry, ok := st.Dex[word]; ok && entry.CapturedAt == nil {
		now := time.Now()
		entry.CapturedAt = &now
	}
}

// recordMiss aggregates a wrong answer into the session miss list.
func recordMiss(sess *Session, w *model.WordEnemy) {
	for i := range sess.Misses {
		if sess.Misses[i].Word == w.Word {
			sess.Misses[i].Count++
			return
		}
	}
	sess.Misses = append(sess.Misses, MissEntry{Word: w.Word, Meaning: w.Meaning, Count: 1})
}

// ---- session persistence ----

func (e *Engine) saveSession(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return e.cache.Set(cctx, sessionKey(e.c.UserID()), string(data), sessionTTL)
}

func (e *Engine) loadSession(ctx context.Context) (*Session, error) {
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	raw, err := e.cache.Get(cctx, sessionKey(e.c.UserID()))
	if err != nil {
		return nil, ErrNoSession
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, errors.Join(ErrNoSession, err)
	}
	return &sess, nil
}
