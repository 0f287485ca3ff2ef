package syncer_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/huugi-star/potenote-scanner-sub001/config"
	"github.com/huugi-star/potenote-scanner-sub001/game/progress"
	"github.com/huugi-star/potenote-scanner-sub001/model"
	"github.com/huugi-star/potenote-scanner-sub001/state"
	"github.com/huugi-star/potenote-scanner-sub001/syncer"
	"github.com/huugi-star/potenote-scanner-sub001/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeRemote is an in-memory RemoteStore. Setting fail makes every
// operation error, standing in for an unreachable backend.
type fakeRemote struct {
	mu      sync.Mutex
	docs    map[string]*syncer.Document
	history map[string]map[model.HistoryKind][]model.HistoryRecord
	fail    bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		docs:    make(map[string]*syncer.Document),
		history: make(map[string]map[model.HistoryKind][]model.HistoryRecord),
	}
}

func (f *fakeRemote) LoadDocument(_ context.Context, userID string) (*syncer.Document, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, false, errors.New("remote down")
	}
	doc, ok := f.docs[userID]
	if !ok {
		return nil, false, nil
	}
	cp := *doc
	return &cp, true, nil
}

func (f *fakeRemote) SaveDocument(_ context.Context, userID string, doc *syncer.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("remote down")
	}
	cp := *doc
	f.docs[userID] = &cp
	return nil
}

func (f *fakeRemote) FetchHistory(_ context.Context, userID string, kind model.HistoryKind, limit int) ([]model.HistoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("remote down")
	}
	records := f.history[userID][kind]
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return append([]model.HistoryRecord(nil), records...), nil
}

func (f *fakeRemote) UpsertHistory(_ context.Context, userID string, kind model.HistoryKind, records []model.HistoryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("remote down")
	}
	if f.history[userID] == nil {
		f.history[userID] = make(map[model.HistoryKind][]model.HistoryRecord)
	}
	existing := f.history[userID][kind]
	for _, rec := range records {
		replaced := false
		for i := range existing {
			if existing[i].ID == rec.ID {
				existing[i] = rec
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, rec)
		}
	}
	f.history[userID][kind] = existing
	return nil
}

func (f *fakeRemote) doc(userID string) *syncer.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[userID]
}

func syncCfg() config.SyncConfig {
	return config.SyncConfig{
		Enabled:        true,
		FlushInterval:  50 * time.Millisecond,
		HistoryFetch:   30,
		WriteQueueSize: 64,
	}
}

func newCoordinator(t *testing.T, remote syncer.RemoteStore) (*syncer.Coordinator, *state.Container) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	_, ps := testutil.SetupTestCache(t)
	c := state.NewContainer(state.NewSnapshotStore(db), ps, zap.NewNop())
	coord, err := syncer.New(c, remote, ps, syncCfg(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { coord.Stop(context.Background()) })
	return coord, c
}

func TestSignIn_FirstSyncPushesLocalTree(t *testing.T) {
	remote := newFakeRemote()
	coord, c := newCoordinator(t, remote)

	require.NoError(t, coord.SignIn(context.Background(), "u1"))
	require.NoError(t, c.Mutate(func(st *model.UserState) error {
		st.Progression.Coins = 321
		return nil
	}))

	coord.Flush(context.Background())

	doc := remote.doc("u1")
	require.NotNil(t, doc, "first sync must create the remote document")
	assert.Equal(t, 321, doc.Progression.Coins)
}

func TestSignIn_RemoteDocumentWins(t *testing.T) {
	remote := newFakeRemote()
	remote.docs["u1"] = &syncer.Document{
		Progression: model.Progression{Coins: 500, Tickets: 2, LastLoginDate: "2020-01-01"},
		Pity:        model.GachaPity{SRCounter: 7, SSRCounter: 70},
	}
	coord, c := newCoordinator(t, remote)

	// Seed diverged local state from an earlier session.
	require.NoError(t, c.SetUser("u1"))
	require.NoError(t, c.Mutate(func(st *model.UserState) error {
		st.Progression.Coins = 100
		return nil
	}))
	require.NoError(t, c.SetUser(""))

	require.NoError(t, coord.SignIn(context.Background(), "u1"))

	_ = c.View(func(st *model.UserState) error {
		assert.Equal(t, 500, st.Progression.Coins)
		assert.Equal(t, 2, st.Progression.Tickets)
		assert.Equal(t, 7, st.Pity.SRCounter)
		assert.Equal(t, "2020-01-01", st.Progression.LastLoginDate)
		return nil
	})
}

func TestSignIn_TodaysLoginDateSurvivesMerge(t *testing.T) {
	remote := newFakeRemote()
	remote.docs["u1"] = &syncer.Document{
		Progression: model.Progression{Coins: 500, LastLoginDate: "2020-01-01"},
	}
	coord, c := newCoordinator(t, remote)

	// The bonus was already paid today on this device.
	require.NoError(t, c.SetUser("u1"))
	require.NoError(t, c.Mutate(func(st *model.UserState) error {
		st.Progression.LastLoginDate = progress.Today()
		return nil
	}))
	require.NoError(t, c.SetUser(""))

	require.NoError(t, coord.SignIn(context.Background(), "u1"))

	_ = c.View(func(st *model.UserState) error {
		assert.Equal(t, progress.Today(), st.Progression.LastLoginDate,
			"a bonus already granted today must not be re-armed by the merge")
		assert.Equal(t, 500, st.Progression.Coins, "other fields still follow the remote")
		return nil
	})
}

func TestSignIn_MergesRemoteHistory(t *testing.T) {
	remote := newFakeRemote()
	remote.docs["u1"] = &syncer.Document{}
	remote.history["u1"] = map[model.HistoryKind][]model.HistoryRecord{
		model.HistoryKindQuiz: {{
			ID:         "remote-1",
			Kind:       model.HistoryKindQuiz,
			SourceText: "synced",
			Payload:    json.RawMessage(`{"questions":[]}`),
			CreatedAt:  time.Now(),
		}},
	}
	coord, c := newCoordinator(t, remote)

	require.NoError(t, coord.SignIn(context.Background(), "u1"))

	_ = c.View(func(st *model.UserState) error {
		require.Len(t, st.QuizHistory, 1)
		assert.Equal(t, "remote-1", st.QuizHistory[0].ID)
		return nil
	})

	// Signing in again with the same remote state changes nothing.
	require.NoError(t, coord.SignIn(context.Background(), "u1"))
	_ = c.View(func(st *model.UserState) error {
		assert.Len(t, st.QuizHistory, 1)
		return nil
	})
}

func TestSignIn_RemoteFailureNeverBlocksPlay(t *testing.T) {
	remote := newFakeRemote()
	remote.fail = true
	coord, c := newCoordinator(t, remote)

	require.NoError(t, coord.SignIn(context.Background(), "u1"),
		"sign-in proceeds offline when the remote is down")

	// Local mutations still commit; the push fails silently.
	require.NoError(t, c.Mutate(func(st *model.UserState) error {
		st.Progression.Coins = 42
		return nil
	}))
	coord.Flush(context.Background())

	_ = c.View(func(st *model.UserState) error {
		assert.Equal(t, 42, st.Progression.Coins)
		return nil
	})
}

func TestSignOut_FlushesAndDeactivates(t *testing.T) {
	remote := newFakeRemote()
	coord, c := newCoordinator(t, remote)

	require.NoError(t, coord.SignIn(context.Background(), "u1"))
	require.NoError(t, c.Mutate(func(st *model.UserState) error {
		st.Progression.Coins = 99
		return nil
	}))

	require.NoError(t, coord.SignOut(context.Background()))
	assert.Empty(t, c.UserID())

	doc := remote.doc("u1")
	require.NotNil(t, doc)
	assert.Equal(t, 99, doc.Progression.Coins)
}

func TestDirtyEvents_ReachRemoteWithoutExplicitFlush(t *testing.T) {
	remote := newFakeRemote()
	coord, c := newCoordinator(t, remote)

	require.NoError(t, coord.SignIn(context.Background(), "u1"))
	require.NoError(t, c.Mutate(func(st *model.UserState) error {
		st.Progression.Coins = 7
		return nil
	}))

	require.Eventually(t, func() bool {
		doc := remote.doc("u1")
		return doc != nil && doc.Progression.Coins == 7
	}, 2*time.Second, 20*time.Millisecond)
}
