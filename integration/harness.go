package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/huugi-star/potenote-scanner-sub001/api/rest"
	"github.com/huugi-star/potenote-scanner-sub001/cache"
	"github.com/huugi-star/potenote-scanner-sub001/catalog"
	"github.com/huugi-star/potenote-scanner-sub001/config"
	"github.com/huugi-star/potenote-scanner-sub001/game/capture"
	"github.com/huugi-star/potenote-scanner-sub001/game/gacha"
	"github.com/huugi-star/potenote-scanner-sub001/game/history"
	"github.com/huugi-star/potenote-scanner-sub001/game/progress"
	mw "github.com/huugi-star/potenote-scanner-sub001/middleware"
	"github.com/huugi-star/potenote-scanner-sub001/scheduler"
	"github.com/huugi-star/potenote-scanner-sub001/state"
	"github.com/huugi-star/potenote-scanner-sub001/syncer"
	"github.com/huugi-star/potenote-scanner-sub001/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// AdminKey is the admin key the test server is wired with.
const AdminKey = "integration-admin-key"

// TestServer wraps a real HTTP server with every engine wired together.
type TestServer struct {
	DB        *gorm.DB
	Cache     cache.Cache
	PubSub    cache.PubSub
	Container *state.Container
	Coord     *syncer.Coordinator
	Ledger    *progress.Ledger
	Server    *httptest.Server
	URL       string
	Sec       config.SecurityConfig
}

func testGameConfig() config.GameConfig {
	return config.GameConfig{
		MaxStamina:       100,
		StaminaRegenS:    180,
		LoginBonusCoins:  50,
		VIPBonusFactor:   2,
		SRGuarantee:      10,
		SSRGuarantee:     100,
		MaxStack:         99,
		ActivePoolSize:   21,
		QuestionsPerRun:  7,
		OptionsPerAnswer: 4,
		DailyLimits:      map[string]int{"scan": 3, "quiz": 5, "lecture": 3, "translation": 5},
		VIPDailyLimits:   map[string]int{"scan": 20, "quiz": 0, "lecture": 0, "translation": 0},
	}
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(
		map[catalog.Rarity]float64{
			catalog.RaritySSR: 3, catalog.RaritySR: 12,
			catalog.RarityR: 30, catalog.RarityN: 55,
		},
		catalog.Pricing{SinglePull: 100, TenPull: 900},
		[]catalog.Item{
			{ID: "ssr_a", Name: "SSR A", Rarity: catalog.RaritySSR, Weight: 1},
			{ID: "sr_a", Name: "SR A", Rarity: catalog.RaritySR, Weight: 1},
			{ID: "r_a", Name: "R A", Rarity: catalog.RarityR, Weight: 1},
			{ID: "n_a", Name: "N A", Rarity: catalog.RarityN, Weight: 1},
		},
	)
	require.NoError(t, err)
	return cat
}

// NewTestServer creates a fully wired engine server for integration
// testing. It mirrors the dependency wiring in main.go.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTLH:        72 * time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
	}
	gameCfg := testGameConfig()
	syncCfg := config.SyncConfig{
		Enabled:        true,
		FlushInterval:  50 * time.Millisecond,
		HistoryFetch:   30,
		WriteQueueSize: 64,
	}

	// ---- Engines ----
	cat := testCatalog(t)
	container := state.NewContainer(state.NewSnapshotStore(db), pubsub, logger)
	ledger := progress.NewLedger(container, gameCfg, logger)
	gachaEng := gacha.NewEngineWithRNG(container, cat, gameCfg, gacha.NewSeededRNG(1), logger)
	captureEng := capture.NewEngineWithRNG(container, gameCfg, c, rand.New(rand.NewSource(1)), logger)
	historyStore := history.NewStore(container, logger)

	remote := syncer.NewGormRemote(db)
	coord, err := syncer.New(container, remote, pubsub, syncCfg, logger)
	require.NoError(t, err)

	sched := scheduler.New(logger)

	// ---- Gin HTTP server (mirrors main.go) ----
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	authH := apirest.NewAuthHandler(coord, ledger, c, sec)
	profileH := apirest.NewProfileHandler(container, ledger)
	gachaH := apirest.NewGachaHandler(gachaEng, cat, container)
	scanH := apirest.NewScanHandler(captureEng, ledger, container)
	battleH := apirest.NewBattleHandler(captureEng, ledger, container)
	historyH := apirest.NewHistoryHandler(historyStore, ledger, container)
	adminH := apirest.NewAdminHandler(container, coord, sched, logger)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/session", authH.CreateSession)
		authG.POST("/signout", mw.Auth(sec, c), authH.SignOut)

		authed := api.Group("")
		authed.Use(mw.Auth(sec, c))

		authed.GET("/profile", profileH.Profile)
		authed.GET("/profile/allowance/:feature", profileH.Allowance)
		authed.GET("/dex", profileH.Dex)
		authed.POST("/lecture/start", profileH.StartLecture)

		authed.POST("/gacha/pull", gachaH.Pull)
		authed.POST("/gacha/ten-pull", gachaH.TenPull)
		authed.GET("/gacha/rates", gachaH.Rates)

		authed.POST("/scans", scanH.Create)
		authed.GET("/scans", scanH.List)
		authed.GET("/scans/:id", scanH.Get)
		authed.POST("/scans/:id/refill", scanH.Refill)

		authed.POST("/battle/start", battleH.Start)
		authed.GET("/battle", battleH.Resume)
		authed.POST("/battle/answer", battleH.Answer)
		authed.POST("/battle/end", battleH.End)

		authed.POST("/history/quiz", historyH.AddQuiz)
		authed.POST("/history/translation", historyH.AddTranslation)
		authed.GET("/history/quiz", historyH.ListQuiz)
		authed.GET("/history/translation", historyH.ListTranslation)

		adminG := api.Group("/admin")
		adminG.Use(apirest.AdminAuth(AdminKey))
		adminG.GET("/state", adminH.StateDump)
		adminG.POST("/sync/flush", adminH.SyncFlush)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
	}

	server := httptest.NewServer(r)
	t.Cleanup(func() {
		server.Close()
		coord.Stop(context.Background())
		sched.Stop()
	})

	return &TestServer{
		DB:        db,
		Cache:     c,
		PubSub:    pubsub,
		Container: container,
		Coord:     coord,
		Ledger:    ledger,
		Server:    server,
		URL:       server.URL,
		Sec:       sec,
	}
}

// --- HTTP helpers ---

// PostJSON sends a POST request with JSON body and optional Bearer token.
func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest("POST", ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// Get sends a GET request with optional Bearer token.
func (ts *TestServer) Get(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest("GET", ts.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// GetAdmin sends a GET request with the admin key header.
func (ts *TestServer) GetAdmin(t *testing.T, path, key string) *http.Response {
	t.Helper()
	req, err := http.NewRequest("GET", ts.URL+path, nil)
	require.NoError(t, err)
	if key != "" {
		req.Header.Set("X-Admin-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// --- Session helpers ---

// SignIn opens a session for the given user and returns the token and
// the login bonus paid.
func (ts *TestServer) SignIn(t *testing.T, userID string) (token string, bonus int) {
	t.Helper()
	resp := ts.PostJSON(t, "/api/auth/session", map[string]string{"user_id": userID}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result map[string]interface{}
	ReadJSON(t, resp, &result)
	token = result["token"].(string)
	bonus = int(result["login_bonus"].(float64))
	return
}

// CreateScan posts a scan made of word/meaning pairs and returns its id.
func (ts *TestServer) CreateScan(t *testing.T, token, title string, pairs ...string) string {
	t.Helper()
	require.Zero(t, len(pairs)%2, "pairs must alternate word, meaning")
	words := make([]map[string]string, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		words = append(words, map[string]string{"word": pairs[i], "meaning": pairs[i+1]})
	}
	resp := ts.PostJSON(t, "/api/scans", map[string]interface{}{
		"title": title,
		"words": words,
	}, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var result map[string]interface{}
	ReadJSON(t, resp, &result)
	return result["scan_id"].(string)
}

// UniqueID returns a short unique string suitable for user ids.
var testCounter uint64

func UniqueID(prefix string) string {
	n := atomic.AddUint64(&testCounter, 1)
	return fmt.Sprintf("%s_%d_%d", prefix, time.Now().UnixNano()%100000, n)
}
