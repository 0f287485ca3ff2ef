package integration

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/huugi-star/potenote-scanner-sub001/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanBattleFlow(t *testing.T) {
	ts := NewTestServer(t)

	token, _ := ts.SignIn(t, UniqueID("battle"))
	scanID := ts.CreateScan(t, token, "lesson 1",
		"apple", "apfel",
		"house", "haus",
		"water", "wasser",
	)

	// 1. Start an explore run.
	resp := ts.PostJSON(t, "/api/battle/start", map[string]string{
		"scan_id": scanID,
		"mode":    "explore",
	}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var startResult struct {
		Session struct {
			Questions []struct {
				Word    string   `json:"word"`
				Meaning string   `json:"meaning"`
				Options []string `json:"options"`
			} `json:"questions"`
		} `json:"session"`
	}
	ReadJSON(t, resp, &startResult)
	questions := startResult.Session.Questions
	require.Len(t, questions, 3)
	for _, q := range questions {
		assert.Contains(t, q.Options, q.Meaning)
	}

	// 2. Answer every question correctly.
	for _, q := range questions {
		resp = ts.PostJSON(t, "/api/battle/answer", map[string]interface{}{
			"answer": q.Meaning,
		}, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var ansResult struct {
			Outcome struct {
				Correct  bool `json:"correct"`
				HP       int  `json:"hp"`
				Captured bool `json:"captured"`
			} `json:"outcome"`
		}
		ReadJSON(t, resp, &ansResult)
		assert.True(t, ansResult.Outcome.Correct)
		assert.Equal(t, 2, ansResult.Outcome.HP, "fresh words drop from 3 to 2")
		assert.False(t, ansResult.Outcome.Captured)
	}

	// 3. End the run: three defeats, no captures yet.
	resp = ts.PostJSON(t, "/api/battle/end", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var endResult struct {
		Result struct {
			DefeatCount  int `json:"defeat_count"`
			CorrectCount int `json:"correct_count"`
			Snapshot     struct {
				Captured  int `json:"captured"`
				Remaining int `json:"remaining"`
				Total     int `json:"total"`
			} `json:"snapshot"`
		} `json:"result"`
	}
	ReadJSON(t, resp, &endResult)
	assert.Equal(t, 3, endResult.Result.DefeatCount)
	assert.Equal(t, 3, endResult.Result.CorrectCount)
	assert.Zero(t, endResult.Result.Snapshot.Captured)
	assert.Equal(t, 3, endResult.Result.Snapshot.Total)

	// 4. All three words are now registered in the dex, still masked.
	resp = ts.Get(t, "/api/dex", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var dexResult struct {
		Dex []struct {
			Word     string `json:"word"`
			Meaning  string `json:"meaning"`
			Captured bool   `json:"captured"`
		} `json:"dex"`
	}
	ReadJSON(t, resp, &dexResult)
	require.Len(t, dexResult.Dex, 3)
	for _, e := range dexResult.Dex {
		assert.False(t, e.Captured)
		assert.Empty(t, e.Meaning, "meanings stay hidden until capture")
	}
}

func TestRetryRuns_CaptureAWord(t *testing.T) {
	ts := NewTestServer(t)

	token, _ := ts.SignIn(t, UniqueID("capture"))
	scanID := ts.CreateScan(t, token, "single", "apple", "apfel")

	// Three correct answers across three runs take the word to hp 0.
	captured := false
	for run := 0; run < 3; run++ {
		mode := "explore"
		if run > 0 {
			mode = "retry"
		}
		resp := ts.PostJSON(t, "/api/battle/start", map[string]string{
			"scan_id": scanID, "mode": mode,
		}, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()

		resp = ts.PostJSON(t, "/api/battle/answer", map[string]interface{}{
			"answer": "apfel",
		}, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var ansResult struct {
			Outcome struct {
				Correct  bool `json:"correct"`
				Captured bool `json:"captured"`
			} `json:"outcome"`
		}
		ReadJSON(t, resp, &ansResult)
		require.True(t, ansResult.Outcome.Correct)
		captured = ansResult.Outcome.Captured

		resp = ts.PostJSON(t, "/api/battle/end", nil, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}
	require.True(t, captured, "third hit captures the word")

	// The dex now reveals the meaning.
	resp := ts.Get(t, "/api/dex", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var dexResult struct {
		Dex []struct {
			Word     string `json:"word"`
			Meaning  string `json:"meaning"`
			Captured bool   `json:"captured"`
		} `json:"dex"`
	}
	ReadJSON(t, resp, &dexResult)
	require.Len(t, dexResult.Dex, 1)
	assert.True(t, dexResult.Dex[0].Captured)
	assert.Equal(t, "apfel", dexResult.Dex[0].Meaning)
}

func TestGachaPull_OverHTTP(t *testing.T) {
	ts := NewTestServer(t)

	token, _ := ts.SignIn(t, UniqueID("gacha"))

	// The login bonus alone cannot afford a pull.
	resp := ts.PostJSON(t, "/api/gacha/pull", map[string]string{"pay_with": "coins"}, token)
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	resp.Body.Close()

	// Fund the account, then pull.
	require.NoError(t, ts.Container.Mutate(func(st *model.UserState) error {
		st.Progression.Coins = 1000
		return nil
	}))

	resp = ts.PostJSON(t, "/api/gacha/pull", map[string]string{"pay_with": "coins"}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pullResult struct {
		Result struct {
			ItemID string `json:"item_id"`
			Rarity string `json:"rarity"`
		} `json:"result"`
	}
	ReadJSON(t, resp, &pullResult)
	assert.NotEmpty(t, pullResult.Result.ItemID)
	assert.NotEmpty(t, pullResult.Result.Rarity)

	// The pull price came off the balance and the item is in inventory.
	resp = ts.Get(t, "/api/profile", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var profile map[string]interface{}
	ReadJSON(t, resp, &profile)
	prog := profile["progression"].(map[string]interface{})
	assert.Equal(t, float64(900), prog["coins"])
	inv := profile["inventory"].([]interface{})
	require.Len(t, inv, 1)

	// Published rates are visible.
	resp = ts.Get(t, "/api/gacha/rates", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rates map[string]interface{}
	ReadJSON(t, resp, &rates)
	assert.Contains(t, rates, "rates")
	assert.Contains(t, rates, "pity")
}

func TestDailyScanLimit_OverHTTP(t *testing.T) {
	ts := NewTestServer(t)

	token, _ := ts.SignIn(t, UniqueID("limit"))

	for i := 0; i < 3; i++ {
		ts.CreateScan(t, token, "ok", "word", "meaning")
	}

	// Fourth scan of the day is rejected.
	resp := ts.PostJSON(t, "/api/scans", map[string]interface{}{
		"title": "over",
		"words": []map[string]string{{"word": "w", "meaning": "m"}},
	}, token)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	resp.Body.Close()

	// The allowance endpoint agrees.
	resp = ts.Get(t, "/api/profile/allowance/scan", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var allowance map[string]interface{}
	ReadJSON(t, resp, &allowance)
	assert.Equal(t, float64(0), allowance["remaining"])
}

func TestHistory_OverHTTP(t *testing.T) {
	ts := NewTestServer(t)

	token, _ := ts.SignIn(t, UniqueID("history"))

	payload := json.RawMessage(`{"questions":[{"question":"apple?","options":["apfel","haus"],"answer":"apfel"}]}`)
	resp := ts.PostJSON(t, "/api/history/quiz", map[string]interface{}{
		"source_text": "lesson text",
		"payload":     payload,
	}, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// A malformed payload is a 422, not a 500.
	resp = ts.PostJSON(t, "/api/history/quiz", map[string]interface{}{
		"source_text": "bad",
		"payload":     json.RawMessage(`{"questions":[]}`),
	}, token)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()

	resp = ts.Get(t, "/api/history/quiz", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listResult struct {
		Records []struct {
			SourceText string `json:"source_text"`
		} `json:"records"`
		Count int `json:"count"`
	}
	ReadJSON(t, resp, &listResult)
	require.Equal(t, 1, listResult.Count)
	assert.Equal(t, "lesson text", listResult.Records[0].SourceText)
}
