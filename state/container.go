package state

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/huugi-star/potenote-scanner-sub001/cache"
	"github.com/huugi-star/potenote-scanner-sub001/model"
	"go.uber.org/zap"
)

// DirtyChannel is the pubsub channel carrying the user id of a state
// tree that was just persisted locally and should be mirrored remotely.
const DirtyChannel = "sync.dirty"

// ErrNoUser is returned when an operation runs before sign-in.
var ErrNoUser = errors.New("state: no active user")

// Container owns the in-memory state tree for the active user. All
// engine mutations flow through Mutate, which persists the tree to the
// local snapshot store before announcing it on the pubsub — the local
// write is the durability boundary; the remote mirror is best-effort.
type Container struct {
	mu     sync.Mutex
	tree   *model.UserState
	store  *SnapshotStore
	pubsub cache.PubSub
	logger *zap.Logger
}

// NewContainer creates a Container with no active user.
func NewContainer(store *SnapshotStore, ps cache.PubSub, logger *zap.Logger) *Container {
	return &Container{store: store, pubsub: ps, logger: logger}
}

// SetUser loads (or initializes) the state tree for userID and makes it
// the active tree. Passing "" signs the user out.
func (c *Container) SetUser(userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if userID == "" {
		c.tree = nil
		return nil
	}
	tree, found, err := c.store.Load(StorageKey(userID))
	if err != nil {
		return err
	}
	if !found {
		tree = model.NewUserState(userID)
		if err := c.store.Save(StorageKey(userID), tree); err != nil {
			return err
		}
	}
	c.tree = tree
	return nil
}

// UserID returns the active user id, or "".
func (c *Container) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tree == nil {
		return ""
	}
	return c.tree.UserID
}

// View runs fn with read access to the tree. fn must not retain or
// mutate the tree.
func (c *Container) View(fn func(*model.UserState) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tree == nil {
		return ErrNoUser
	}
	return fn(c.tree)
}

// Mutate runs fn against the tree and, if fn succeeds, synchronously
// persists the tree and publishes a dirty event. When fn returns an
// error nothing is persisted; fn must not leave partial mutations
// behind on failure.
func (c *Container) Mutate(fn func(*model.UserState) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tree == nil {
		return ErrNoUser
	}
	if err := fn(c.tree); err != nil {
		return err
	}
	if err := c.store.Save(StorageKey(c.tree.UserID), c.tree); err != nil {
		return err
	}
	c.publishDirty(c.tree.UserID)
	return nil
}

func (c *Container) publishDirty(userID string) {
	if c.pubsub == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.pubsub.Publish(ctx, DirtyChannel, userID); err != nil {
		c.logger.Warn("state: dirty publish failed", zap.Error(err))
	}
}
