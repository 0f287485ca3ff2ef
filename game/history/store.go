package history

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/huugi-star/potenote-scanner-sub001/model"
	"github.com/huugi-star/potenote-scanner-sub001/state"
	"go.uber.org/zap"
)

// Store owns the two append-only history lists. AI payloads are schema-
// validated at this boundary before a record is constructed; a shape
// mismatch is rejected, never coerced.
type Store struct {
	c      *state.Container
	logger *zap.Logger
}

// NewStore creates a history Store.
func NewStore(c *state.Container, logger *zap.Logger) *Store {
	return &Store{c: c, logger: logger}
}

// AddQuiz validates and appends a quiz result. A record structurally
// identical to an existing one (same source text, same payload) is not
// appended twice; the existing record is returned instead.
func (s *Store) AddQuiz(sourceText string, payload json.RawMessage) (model.HistoryRecord, error) {
	if err := ValidateQuizPayload(payload); err != nil {
		return model.HistoryRecord{}, err
	}
	return s.add(model.HistoryKindQuiz, sourceText, payload)
}

// AddTranslation validates and appends a translation result.
func (s *Store) AddTranslation(sourceText string, payload json.RawMessage) (model.HistoryRecord, error) {
	if err := ValidateTranslationPayload(payload); err != nil {
		return model.HistoryRecord{}, err
	}
	return s.add(model.HistoryKindTranslation, sourceText, payload)
}

func (s *Store) add(kind model.HistoryKind, sourceText string, payload json.RawMessage) (model.HistoryRecord, error) {
	record := model.HistoryRecord{
		ID:         uuid.New().String(),
		Kind:       kind,
		SourceText: sourceText,
		Payload:    payload,
		CreatedAt:  time.Now(),
	}
	err := s.c.Mutate(func(st *model.UserState) error {
		list := listFor(st, kind)
		for _, existing := range *list {
			if existing.StructurallyEqual(record) {
				record = existing
				return nil
			}
		}
		*list = append(*list, record)
		return nil
	})
	if err != nil {
		return model.HistoryRecord{}, err
	}
	return record, nil
}

// Recent returns up to n records of the given kind, newest first.
func (s *Store) Recent(kind model.HistoryKind, n int) ([]model.HistoryRecord, error) {
	var out []model.HistoryRecord
	err := s.c.View(func(st *model.UserState) error {
		list := *listFor(st, kind)
		out = make([]model.HistoryRecord, len(list))
		copy(out, list)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// MergeRemote reconciles a fetched remote batch with the local list by
// id: remote records win on duplicate ids, local records absent from
// the batch are kept (they were created offline), and a local record
// structurally identical to a remote one is folded into it. Merging the
// same batch twice yields the same list.
func MergeRemote(local, remote []model.HistoryRecord) []model.HistoryRecord {
	remoteIDs := make(map[string]bool, len(remote))
	for _, r := range remote {
		remoteIDs[r.ID] = true
	}

	merged := make([]model.HistoryRecord, 0, len(remote)+len(local))
	merged = append(merged, remote...)

	for _, l := range local {
		if remoteIDs[l.ID] {
			continue
		}
		duplicate := false
		for _, r := range remote {
			if l.StructurallyEqual(r) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			merged = append(merged, l)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].CreatedAt.After(merged[j].CreatedAt) })
	return merged
}

func listFor(st *model.UserState, kind model.HistoryKind) *[]model.HistoryRecord {
	if kind == model.HistoryKindTranslation {
		return &st.TranslationHistory
	}
	return &st.QuizHistory
}
