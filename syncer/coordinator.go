package syncer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/huugi-star/potenote-scanner-sub001/cache"
	"github.com/huugi-star/potenote-scanner-sub001/config"
	"github.com/huugi-star/potenote-scanner-sub001/game/history"
	"github.com/huugi-star/potenote-scanner-sub001/game/progress"
	"github.com/huugi-star/potenote-scanner-sub001/model"
	"github.com/huugi-star/potenote-scanner-sub001/state"
	"go.uber.org/zap"
)

// Coordinator mirrors the locally persisted state tree to the remote
// store. The local snapshot write is the durability boundary; every
// remote operation here is best-effort — failures are logged and
// absorbed, never surfaced to gameplay.
type Coordinator struct {
	c      *state.Container
	remote RemoteStore
	pubsub cache.PubSub
	cfg    config.SyncConfig
	logger *zap.Logger

	ch     chan string
	stopCh chan struct{}
	unsub  func()
	wg     sync.WaitGroup
}

// New creates a Coordinator. When sync is enabled it subscribes to the
// dirty channel and starts the background write worker.
func New(c *state.Container, remote RemoteStore, ps cache.PubSub, cfg config.SyncConfig, logger *zap.Logger) (*Coordinator, error) {
	queue := cfg.WriteQueueSize
	if queue <= 0 {
		queue = 256
	}
	co := &Coordinator{
		c:      c,
		remote: remote,
		pubsub: ps,
		cfg:    cfg,
		logger: logger,
		ch:     make(chan string, queue),
		stopCh: make(chan struct{}),
	}
	if !cfg.Enabled {
		return co, nil
	}

	msgs, unsub, err := ps.Subscribe(context.Background(), state.DirtyChannel)
	if err != nil {
		return nil, err
	}
	co.unsub = unsub

	co.wg.Add(2)
	go co.receiver(msgs)
	go co.worker()
	return co, nil
}

// SignIn activates userID's local tree and reconciles it with the
// remote document. A missing remote document triggers a first-sync push
// of the local tree; a present one wins field-by-field, except that a
// login-bonus date already stamped today locally is kept. Remote
// unavailability never blocks sign-in.
func (co *Coordinator) SignIn(ctx context.Context, userID string) error {
	if err := co.c.SetUser(userID); err != nil {
		return err
	}
	if !co.cfg.Enabled {
		return nil
	}

	doc, found, err := co.remote.LoadDocument(ctx, userID)
	if err != nil {
		co.logger.Warn("sync: remote document fetch failed, continuing offline",
			zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	if !found {
		co.enqueue(userID)
		co.logger.Info("sync: first sync scheduled", zap.String("user_id", userID))
		return nil
	}

	fetchLimit := co.cfg.HistoryFetch
	if fetchLimit <= 0 {
		fetchLimit = 30
	}
	remoteQuiz, err := co.remote.FetchHistory(ctx, userID, model.HistoryKindQuiz, fetchLimit)
	if err != nil {
		co.logger.Warn("sync: quiz history fetch failed", zap.Error(err))
	}
	remoteTrans, err := co.remote.FetchHistory(ctx, userID, model.HistoryKindTranslation, fetchLimit)
	if err != nil {
		co.logger.Warn("sync: translation history fetch failed", zap.Error(err))
	}

	today := progress.Today()
	return co.c.Mutate(func(st *model.UserState) error {
		applyDocument(st, doc, today)
		if remoteQuiz != nil {
			st.QuizHistory = history.MergeRemote(st.QuizHistory, remoteQuiz)
		}
		if remoteTrans != nil {
			st.TranslationHistory = history.MergeRemote(st.TranslationHistory, remoteTrans)
		}
		return nil
	})
}

// SignOut flushes the active user's tree to the remote store and
// deactivates it.
func (co *Coordinator) SignOut(ctx context.Context) error {
	if userID := co.c.UserID(); userID != "" && co.cfg.Enabled {
		co.push(ctx, userID)
	}
	return co.c.SetUser("")
}

// Flush pushes the active user's tree to the remote store immediately.
func (co *Coordinator) Flush(ctx context.Context) {
	if !co.cfg.Enabled {
		return
	}
	if userID := co.c.UserID(); userID != "" {
		co.push(ctx, userID)
	}
}

// Stop drains pending pushes and shuts down the workers.
func (co *Coordinator) Stop(_ context.Context) {
	if !co.cfg.Enabled {
		return
	}
	if co.unsub != nil {
		co.unsub()
	}
	select {
	case <-co.stopCh:
	default:
		close(co.stopCh)
	}
	co.wg.Wait()
}

// applyDocument overwrites local fields with the remote document. The
// remote side is the most recent authoritative write, with one carve-
// out: a login bonus already granted today must not be granted again
// after a merge, so the local date is kept when it equals today.
func applyDocument(st *model.UserState, doc *Document, today string) {
	localLogin := st.Progression.LastLoginDate
	st.Progression = doc.Progression
	if localLogin == today {
		st.Progression.LastLoginDate = localLogin
	}
	if st.Progression.DailyCounters == nil {
		st.Progression.DailyCounters = make(map[string]*model.DailyCounter)
	}
	st.Inventory = doc.Inventory
	st.Pity = doc.Pity
	if doc.Scans != nil {
		st.Scans = doc.Scans
	}
	if doc.Dex != nil {
		st.Dex = doc.Dex
	}
}

func (co *Coordinator) enqueue(userID string) {
	select {
	case co.ch <- userID:
	default:
		co.logger.Warn("sync: write queue full, dropping push",
			zap.String("user_id", userID))
	}
}

func (co *Coordinator) receiver(msgs <-chan *cache.Message) {
	defer co.wg.Done()
	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			co.enqueue(msg.Payload)
		case <-co.stopCh:
			return
		}
	}
}

func (co *Coordinator) worker() {
	defer co.wg.Done()

	interval := co.cfg.FlushInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	dirty := make(map[string]bool)

	flush := func() {
		if len(dirty) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		for userID := range dirty {
			co.push(ctx, userID)
			delete(dirty, userID)
		}
		cancel()
	}

	for {
		select {
		case userID := <-co.ch:
			dirty[userID] = true
		case <-ticker.C:
			flush()
		case <-co.stopCh:
			// Drain remaining events.
			for {
				select {
				case userID := <-co.ch:
					dirty[userID] = true
				default:
					flush()
					return
				}
			}
		}
	}
}

// push mirrors one user's tree. It only runs while that user is still
// the active one; a stale event for a signed-out user is dropped.
func (co *Coordinator) push(ctx context.Context, userID string) {
	if co.c.UserID() != userID {
		return
	}

	var (
		doc   *Document
		quiz  []model.HistoryRecord
		trans []model.HistoryRecord
	)
	err := co.c.View(func(st *model.UserState) error {
		var err error
		doc, err = snapshotDocument(st)
		if err != nil {
			return err
		}
		quiz = append([]model.HistoryRecord(nil), st.QuizHistory...)
		trans = append([]model.HistoryRecord(nil), st.TranslationHistory...)
		return nil
	})
	if err != nil {
		co.logger.Warn("sync: snapshot for push failed",
			zap.String("user_id", userID), zap.Error(err))
		return
	}

	if err := co.remote.SaveDocument(ctx, userID, doc); err != nil {
		co.logger.Warn("sync: document push failed",
			zap.String("user_id", userID), zap.Error(err))
		return
	}
	if err := co.remote.UpsertHistory(ctx, userID, model.HistoryKindQuiz, quiz); err != nil {
		co.logger.Warn("sync: quiz history push failed",
			zap.String("user_id", userID), zap.Error(err))
	}
	if err := co.remote.UpsertHistory(ctx, userID, model.HistoryKindTranslation, trans); err != nil {
		co.logger.Warn("sync: translation history push failed",
			zap.String("user_id", userID), zap.Error(err))
	}
	co.logger.Debug("sync: pushed", zap.String("user_id", userID))
}

// snapshotDocument deep-copies the syncable parts of the tree so the
// push can proceed outside the container lock.
func snapshotDocument(st *model.UserState) (*Document, error) {
	src := Document{
		Progression: st.Progression,
		Inventory:   st.Inventory,
		Pity:        st.Pity,
		Scans:       st.Scans,
		Dex:         st.Dex,
	}
	data, err := json.Marshal(&src)
	if err != nil {
		return nil, err
	}
	var out Document
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
