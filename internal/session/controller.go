// Package session owns the canonical in-memory store and decides, per
// mutation, where it gets persisted: the local slot while anonymous, the
// remote substrate once a user is signed in.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/m-novikov/bookhaven/internal/errs"
	"github.com/m-novikov/bookhaven/internal/idmap"
	"github.com/m-novikov/bookhaven/internal/localstore"
	"github.com/m-novikov/bookhaven/internal/migration"
	"github.com/m-novikov/bookhaven/internal/model"
	"github.com/m-novikov/bookhaven/internal/repository"
)

// State is the controller's lifecycle phase.
type State int

const (
	// Anonymous means every mutation lands in the local slot.
	Anonymous State = iota
	// Authenticating is the window between sign-in and the remote load
	// settling; mutations stay in memory only.
	Authenticating
	// Authenticated means mutations are pushed to the remote substrate.
	Authenticated
)

// RemoteStore is the slice of the store repository the controller drives.
type RemoteStore interface {
	Load(ctx context.Context, ownerID uuid.UUID) (model.Store, *idmap.Map, error)
	SaveBookmarks(ctx context.Context, ownerID uuid.UUID, bookmarks []model.Bookmark, m *idmap.Map) (repository.SaveReport, error)
	ReplaceQueue(ctx context.Context, ownerID uuid.UUID, q model.ReadingQueue, m *idmap.Map) error
	Purge(ctx context.Context, ownerID uuid.UUID) (repository.PurgeReport, error)
}

// Migrator pushes a local store into the remote substrate.
type Migrator interface {
	Migrate(ctx context.Context, ownerID uuid.UUID, store model.Store, bridge *idmap.Map) (migration.Report, error)
}

// Mutator transforms a store snapshot. It must not retain the snapshot.
type Mutator func(model.Store) (model.Store, error)

// Controller is safe for concurrent use.
type Controller struct {
	local  *localstore.Adapter
	remote RemoteStore
	logger *zap.Logger

	mu      sync.Mutex
	state   State
	ownerID uuid.UUID
	store   model.Store
	bridge  *idmap.Map

	// epoch fences asynchronous saves: a save carries the epoch it was
	// scheduled under and its result is discarded if the epoch moved on
	// (sign-out, sign-in, remote reload).
	epoch   uint64
	saving  bool
	pending bool

	// lastWarning is the most recent remote save failure, kept so the UI can
	// surface it; a clean save clears it.
	lastWarning string

	wg sync.WaitGroup
}

// New builds a controller in the anonymous state, seeded from the local slot
// when one exists.
func New(local *localstore.Adapter, remote RemoteStore, logger *zap.Logger) *Controller {
	c := &Controller{
		local:  local,
		remote: remote,
		logger: logger,
		store:  model.DefaultStore(),
		bridge: idmap.New(),
	}
	if s, err := local.Load(); err == nil {
		c.store = *s
	} else if !errors.Is(err, errs.ErrNotFound) {
		logger.Warn("local slot unreadable, starting empty", zap.Error(err))
	}
	return c
}

// State returns the current lifecycle phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns a deep copy of the current store.
func (c *Controller) Snapshot() model.Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Clone()
}

// LastWarning returns the most recent remote save failure, empty after a
// clean save.
func (c *Controller) LastWarning() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastWarning
}

// SignIn loads the owner's remote store and switches to it. When the owner
// has no remote data yet the local store stays canonical, fresh is true and
// the caller is expected to run MigrateLocal. Mutations arriving during the
// load are applied to the pre-load snapshot and superseded by it; that window
// is the Authenticating state.
func (c *Controller) SignIn(ctx context.Context, ownerID uuid.UUID) (fresh bool, err error) {
	c.mu.Lock()
	c.state = Authenticating
	c.ownerID = ownerID
	c.epoch++
	c.mu.Unlock()

	store, bridge, err := c.remote.Load(ctx, ownerID)

	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case err == nil:
		c.store = store
		c.bridge = bridge
		c.state = Authenticated
		if n := len(bridge.Orphans()); n > 0 {
			c.logger.Info("remote duplicates collapsed on load", zap.Int("orphans", n))
		}
		return false, nil
	case errors.Is(err, errs.ErrNotFound):
		c.bridge = idmap.New()
		c.state = Authenticated
		return true, nil
	default:
		c.state = Anonymous
		c.ownerID = uuid.Nil
		return false, err
	}
}

// MigrateLocal pushes the current store into the remote substrate through the
// coordinator, sharing the controller's id bridge so follow-up saves resolve
// the freshly assigned keys.
func (c *Controller) MigrateLocal(ctx context.Context, mig Migrator) (migration.Report, error) {
	c.mu.Lock()
	if c.state != Authenticated {
		c.mu.Unlock()
		return migration.Report{}, errs.ErrUnauthorized
	}
	ownerID := c.ownerID
	snapshot := c.store.Clone()
	bridge := c.bridge
	c.mu.Unlock()

	return mig.Migrate(ctx, ownerID, snapshot, bridge)
}

// SignOut advances the epoch so in-flight saves are discarded, drops the
// remote identity and falls back to whatever the local slot holds.
func (c *Controller) SignOut() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	c.state = Anonymous
	c.ownerID = uuid.Nil
	c.bridge = idmap.New()
	c.lastWarning = ""

	c.store = model.DefaultStore()
	if s, err := c.local.Load(); err == nil {
		c.store = *s
	}
	if err := c.local.ClearToken(); err != nil {
		c.logger.Warn("clear token", zap.Error(err))
	}
}

// Update applies a mutation to the canonical store and persists the result
// according to the current state. A mutation that collapses duplicate
// bookmarks is kept in memory but not persisted this cycle; the orphan
// remote rows get removed by a purge, not by racing the collapse against them.
func (c *Controller) Update(ctx context.Context, fn Mutator) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := fn(c.store.Clone())
	if err != nil {
		return err
	}
	next, removed := model.DedupBookmarks(next)
	c.store = next
	if removed > 0 {
		// collapsing mutations skip persistence for one cycle in every
		// state; the next mutation writes the deduped snapshot
		c.logger.Info("duplicate bookmarks collapsed, save deferred",
			zap.Int("removed", removed))
		return nil
	}

	switch c.state {
	case Anonymous:
		if err := c.local.Save(&next); err != nil {
			return err
		}
	case Authenticated:
		c.scheduleSaveLocked(ctx)
	case Authenticating:
		// in memory only; the settling remote load decides what survives
	}
	return nil
}

// scheduleSaveLocked coalesces saves: one worker drains the latest snapshot
// until no further mutation arrived while it ran. Callers hold c.mu.
func (c *Controller) scheduleSaveLocked(ctx context.Context) {
	c.pending = true
	if c.saving {
		return
	}
	c.saving = true
	c.wg.Add(1)
	go c.saveLoop(context.WithoutCancel(ctx))
}

func (c *Controller) saveLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		c.mu.Lock()
		if !c.pending || c.state != Authenticated {
			c.pending = false
			c.saving = false
			c.mu.Unlock()
			return
		}
		c.pending = false
		epoch := c.epoch
		ownerID := c.ownerID
		snapshot := c.store.Clone()
		bridge := c.bridge
		c.mu.Unlock()

		rep, err := c.remote.SaveBookmarks(ctx, ownerID, snapshot.Bookmarks, bridge)
		if err == nil {
			err = c.remote.ReplaceQueue(ctx, ownerID, snapshot.Queue, bridge)
		}

		c.mu.Lock()
		stale := epoch != c.epoch
		if !stale {
			if err != nil {
				c.lastWarning = err.Error()
			} else {
				c.lastWarning = ""
			}
		}
		c.mu.Unlock()
		switch {
		case stale:
			c.logger.Info("stale save discarded", zap.Uint64("epoch", epoch))
		case errors.Is(err, errs.ErrPermissionDenied):
			c.logger.Error("remote save rejected", zap.Error(err))
		case err != nil:
			c.logger.Warn("remote save failed", zap.Error(err))
		default:
			if len(rep.Errors) > 0 {
				c.logger.Warn("remote save partial",
					zap.Int("inserted", rep.Inserted),
					zap.Int("updated", rep.Updated),
					zap.Int("skipped", rep.Skipped),
					zap.Int("errors", len(rep.Errors)))
			}
		}
	}
}

// ReloadRemote replaces the canonical store with a fresh remote load,
// discarding whatever in-flight saves were scheduled before it.
func (c *Controller) ReloadRemote(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Authenticated {
		c.mu.Unlock()
		return errs.ErrUnauthorized
	}
	ownerID := c.ownerID
	c.mu.Unlock()

	store, bridge, err := c.remote.Load(ctx, ownerID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.store = store
	c.bridge = bridge
	return nil
}

// EraseRemote purges every remote row of the signed-in owner. The in-memory
// store survives but loses its surrogate keys, so a later save starts from
// scratch.
func (c *Controller) EraseRemote(ctx context.Context) (repository.PurgeReport, error) {
	c.mu.Lock()
	if c.state != Authenticated {
		c.mu.Unlock()
		return repository.PurgeReport{}, errs.ErrUnauthorized
	}
	ownerID := c.ownerID
	c.mu.Unlock()

	rep, err := c.remote.Purge(ctx, ownerID)
	if err != nil {
		return rep, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.bridge = idmap.New()
	for i := range c.store.Bookmarks {
		c.store.Bookmarks[i].InternalID = uuid.Nil
	}
	return rep, nil
}

// Close waits for in-flight saves to drain.
func (c *Controller) Close() {
	c.wg.Wait()
}
