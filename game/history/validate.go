package history

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// The LLM service returns untyped JSON; these checks pin it to the
// fixed shapes the rest of the system relies on.

type quizPayload struct {
	Questions []struct {
		Question string   `json:"question"`
		Options  []string `json:"options"`
		Answer   string   `json:"answer"`
	} `json:"questions"`
	Score *int `json:"score,omitempty"`
}

// ValidateQuizPayload checks a quiz result against the expected schema.
func ValidateQuizPayload(raw json.RawMessage) error {
	var p quizPayload
	if err := strictUnmarshal(raw, &p); err != nil {
		return fmt.Errorf("history: malformed quiz payload: %w", err)
	}
	if len(p.Questions) == 0 {
		return fmt.Errorf("history: quiz payload has no questions")
	}
	for i, q := range p.Questions {
		if q.Question == "" || q.Answer == "" {
			return fmt.Errorf("history: quiz question %d missing question or answer", i)
		}
		if len(q.Options) < 2 {
			return fmt.Errorf("history: quiz question %d needs at least 2 options", i)
		}
		found := false
		for _, o := range q.Options {
			if o == q.Answer {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("history: quiz question %d answer not among options", i)
		}
	}
	return nil
}

type translationPayload struct {
	TranslatedText string `json:"translated_text"`
	Tone           string `json:"tone,omitempty"`
	SourceLang     string `json:"source_lang,omitempty"`
	TargetLang     string `json:"target_lang,omitempty"`
}

// ValidateTranslationPayload checks a translation result against the
// expected schema.
func ValidateTranslationPayload(raw json.RawMessage) error {
	var p translationPayload
	if err := strictUnmarshal(raw, &p); err != nil {
		return fmt.Errorf("history: malformed translation payload: %w", err)
	}
	if p.TranslatedText == "" {
		return fmt.Errorf("history: translation payload missing translated_text")
	}
	return nil
}

// strictUnmarshal rejects payloads that are not JSON objects of the
// expected shape, including unknown fields.
func strictUnmarshal(raw json.RawMessage, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
