// Package mirror propagates committed local changes to the remote system of
// record in the background.
//
// Mirror never blocks on I/O. Each entity has a FIFO lane, so a product's
// create (and the remote id bind that follows it) runs before its later
// patches. Lanes run on detached goroutines, bounded by a semaphore. A failed
// remote call is logged and dropped; there is no retry.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/shelflifeapp/shelflife/internal/domain"
	domainerrors "github.com/shelflifeapp/shelflife/internal/errors"
	"github.com/shelflifeapp/shelflife/internal/store"
)

const (
	defaultMaxInFlight = 8
	defaultCallTimeout = 30 * time.Second
)

// errUnbound marks a mutation whose entity has no remote id yet.
var errUnbound = errors.New("entity has no remote id")

// Remote is the remote API used by the reconciler. Implemented by remote.Client.
type Remote interface {
	CreateProduct(ctx context.Context, userID string, p *domain.Product) (string, error)
	PatchProduct(ctx context.Context, userID, remoteProductID string, patch domain.ProductPatch) error
	AppendUsage(ctx context.Context, userID, remoteProductID string, e *domain.UsageEntry) error
	AppendJourneyEvent(ctx context.Context, userID, remoteProductID string, e *domain.JourneyEvent) error
	DeleteProduct(ctx context.Context, userID, remoteProductID string) error
	CreateBag(ctx context.Context, userID string, b *domain.Bag) (string, error)
	CreateTag(ctx context.Context, userID string, t *domain.Tag) (string, error)
	FetchProducts(ctx context.Context, userID string) ([]*domain.Product, error)
}

// Identity resolves the user a bulk refresh runs for.
type Identity interface {
	CurrentUserID(ctx context.Context) (string, error)
}

// ReminderScheduler tracks expiry reminders for products a bulk refresh
// touches. Implemented by reminder.Ledger.
type ReminderScheduler interface {
	Schedule(ctx context.Context, productID, userID string, expiry time.Time) error
	Cancel(ctx context.Context, productID string) error
}

// Options tunes a Reconciler.
type Options struct {
	// Reminders, when set, is kept in step with refreshed expiry dates.
	Reminders ReminderScheduler
	// MaxInFlight bounds concurrent remote calls across all lanes.
	MaxInFlight int64
	// CallTimeout bounds each remote call.
	CallTimeout time.Duration
}

// Reconciler mirrors local mutations to the remote.
type Reconciler struct {
	store     store.Store
	remote    Remote
	identity  Identity
	reminders ReminderScheduler
	logger    *slog.Logger
	timeout   time.Duration
	sem       *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	lanes   map[string][]Mutation
	learned map[string]string
	closed  bool
	wg      sync.WaitGroup
}

// New creates a Reconciler. A nil remote makes every mirror a logged no-op.
func New(st store.Store, remote Remote, identity Identity, logger *slog.Logger, opts Options) *Reconciler {
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = defaultMaxInFlight
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Reconciler{
		store:     st,
		remote:    remote,
		identity:  identity,
		reminders: opts.Reminders,
		logger:    logger,
		timeout:   opts.CallTimeout,
		sem:       semaphore.NewWeighted(opts.MaxInFlight),
		ctx:       ctx,
		cancel:    cancel,
		lanes:     make(map[string][]Mutation),
		learned:   make(map[string]string),
	}
}

// BindRemoteID records the remote id of a local entity. Binding is one-time:
// the same id again is a no-op and a different id fails with a Conflict.
func (r *Reconciler) BindRemoteID(ctx context.Context, kind domain.EntityKind, localID, remoteID string) error {
	if !kind.Valid() {
		return domainerrors.Validationf("unknown entity kind %q", kind)
	}
	if remoteID == "" {
		return domainerrors.Validation("remote id is required")
	}

	err := r.store.Write(ctx, func(tx store.Session) error {
		return tx.BindRemoteID(ctx, kind, localID, remoteID)
	})
	if err != nil {
		return err
	}

	r.logger.Debug("remote id bound", "kind", kind, "local_id", localID, "remote_id", remoteID)
	return nil
}

// Mirror queues m on its entity's lane and returns at once.
func (r *Reconciler) Mirror(m Mutation) {
	if r.remote == nil {
		return
	}

	key := m.Lane()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		r.logger.Warn("mirror dropped after shutdown", "kind", m.Kind(), "lane", key)
		return
	}

	queue, running := r.lanes[key]
	r.lanes[key] = append(queue, m)
	if running {
		return
	}

	r.wg.Add(1)
	go r.runLane(key)
}

// runLane drains one lane in submission order.
func (r *Reconciler) runLane(key string) {
	defer r.wg.Done()

	for {
		r.mu.Lock()
		queue := r.lanes[key]
		if len(queue) == 0 {
			delete(r.lanes, key)
			r.mu.Unlock()
			return
		}
		m := queue[0]
		r.lanes[key] = queue[1:]
		r.mu.Unlock()

		r.run(m)
	}
}

// run executes one mutation, logging and dropping any failure.
func (r *Reconciler) run(m Mutation) {
	if err := r.sem.Acquire(r.ctx, 1); err != nil {
		r.logger.Warn("mirror dropped", "kind", m.Kind(), "lane", m.Lane(), "error", err)
		return
	}
	defer r.sem.Release(1)

	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()

	start := time.Now()
	err := r.apply(ctx, m)
	switch {
	case err == nil:
		r.logger.Debug("mirrored", "kind", m.Kind(), "lane", m.Lane(), "duration", time.Since(start))
	case errors.Is(err, errUnbound):
		r.logger.Info("mirror skipped, entity not bound remotely", "kind", m.Kind(), "lane", m.Lane())
	default:
		syncErr := domainerrors.RemoteSync(err, "mirror "+m.Kind())
		r.logger.Warn("mirror failed", "kind", m.Kind(), "lane", m.Lane(), "error", syncErr)
	}
}

func (r *Reconciler) apply(ctx context.Context, m Mutation) error {
	switch m := m.(type) {
	case ProductCreated:
		remoteID, err := r.remote.CreateProduct(ctx, m.UserID, m.Product)
		if err != nil {
			return err
		}
		return r.bindLearned(ctx, domain.KindProduct, m.Product.ID, remoteID)

	case ProductPatched:
		rid, err := r.resolve(ctx, domain.KindProduct, m.ProductID)
		if err != nil {
			return err
		}
		return r.remote.PatchProduct(ctx, m.UserID, rid, m.Patch)

	case UsageAppended:
		rid, err := r.resolve(ctx, domain.KindProduct, m.Entry.ProductID)
		if err != nil {
			return err
		}
		return r.remote.AppendUsage(ctx, m.UserID, rid, m.Entry)

	case JourneyAppended:
		rid, err := r.resolve(ctx, domain.KindProduct, m.Event.ProductID)
		if err != nil {
			return err
		}
		return r.remote.AppendJourneyEvent(ctx, m.UserID, rid, m.Event)

	case ProductDeleted:
		rid := m.RemoteID
		if rid == "" {
			rid = r.learnedID(domain.KindProduct, m.ProductID)
		}
		if rid == "" {
			return errUnbound
		}
		defer r.forget(domain.KindProduct, m.ProductID)
		return r.remote.DeleteProduct(ctx, m.UserID, rid)

	case AssociationChanged:
		productRID, err := r.resolve(ctx, domain.KindProduct, m.ProductID)
		if err != nil {
			return err
		}
		groupingRID, err := r.resolve(ctx, m.Grouping, m.GroupingID)
		if err != nil {
			return err
		}
		return r.remote.PatchProduct(ctx, m.UserID, productRID, associationPatch(m, groupingRID))

	case BagCreated:
		remoteID, err := r.remote.CreateBag(ctx, m.UserID, m.Bag)
		if err != nil {
			return err
		}
		return r.bindLearned(ctx, domain.KindBag, m.Bag.ID, remoteID)

	case TagCreated:
		remoteID, err := r.remote.CreateTag(ctx, m.UserID, m.Tag)
		if err != nil {
			return err
		}
		return r.bindLearned(ctx, domain.KindTag, m.Tag.ID, remoteID)

	default:
		return fmt.Errorf("unknown mutation %T", m)
	}
}

func associationPatch(m AssociationChanged, groupingRID string) domain.ProductPatch {
	var patch domain.ProductPatch
	switch {
	case m.Grouping == domain.KindBag && m.Added:
		patch.AddToBagID = &groupingRID
	case m.Grouping == domain.KindBag:
		patch.RemoveFromBagID = &groupingRID
	case m.Added:
		patch.AddTagID = &groupingRID
	default:
		patch.RemoveTagID = &groupingRID
	}
	return patch
}

// bindLearned binds a freshly issued remote id. If the entity was deleted
// while its create was in flight, the id is kept in memory so the queued
// delete on the same lane can still reach the remote.
func (r *Reconciler) bindLearned(ctx context.Context, kind domain.EntityKind, localID, remoteID string) error {
	if remoteID == "" {
		return fmt.Errorf("remote returned an empty id for %s %s", kind, localID)
	}
	r.learn(kind, localID, remoteID)

	err := r.BindRemoteID(ctx, kind, localID, remoteID)
	switch {
	case err == nil:
		r.forget(kind, localID)
		return nil
	case errors.Is(err, store.ErrNotFound):
		r.logger.Debug("entity deleted before its remote id arrived", "kind", kind, "local_id", localID)
		return nil
	default:
		r.forget(kind, localID)
		return err
	}
}

// resolve returns the remote id of a local entity.
func (r *Reconciler) resolve(ctx context.Context, kind domain.EntityKind, localID string) (string, error) {
	if rid := r.learnedID(kind, localID); rid != "" {
		return rid, nil
	}

	var rid string
	err := r.store.Read(ctx, func(tx store.Session) error {
		var err error
		rid, err = tx.RemoteID(ctx, kind, localID)
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", errUnbound
		}
		return "", fmt.Errorf("resolve remote id: %w", err)
	}
	if rid == "" {
		return "", errUnbound
	}
	return rid, nil
}

func learnedKey(kind domain.EntityKind, localID string) string {
	return string(kind) + ":" + localID
}

func (r *Reconciler) learn(kind domain.EntityKind, localID, remoteID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.learned[learnedKey(kind, localID)] = remoteID
}

func (r *Reconciler) learnedID(kind domain.EntityKind, localID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.learned[learnedKey(kind, localID)]
}

func (r *Reconciler) forget(kind domain.EntityKind, localID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.learned, learnedKey(kind, localID))
}

// Wait blocks until every queued mutation has run.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

// Shutdown stops accepting mutations and waits for queued ones. When ctx
// ends first, in-flight calls are cancelled and ctx's error is returned.
func (r *Reconciler) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}
