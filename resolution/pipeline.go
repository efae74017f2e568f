package resolution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/logging"
)

// PipelineOptions configures a Pipeline.
type PipelineOptions struct {
	Logger logging.Logger
}

// Pipeline persists, approves and executes resolution packages stored in
// session metadata.
type Pipeline struct {
	store    core.SessionStore
	executor core.ItemExecutor
	logger   logging.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// ExecuteReport summarizes one Execute pass.
type ExecuteReport struct {
	Created int `json:"created"`
	Failed  int `json:"failed"`
	// Skipped counts items that were not approved when the pass started.
	Skipped int `json:"skipped"`
}

var errUnchanged = errors.New("unchanged")

// NewPipeline creates a pipeline over store dispatching to executor.
func NewPipeline(store core.SessionStore, executor core.ItemExecutor, optFns ...func(o *PipelineOptions)) *Pipeline {
	opts := PipelineOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Pipeline{
		store:    store,
		executor: executor,
		logger:   logging.OrNoOp(opts.Logger),
		locks:    make(map[string]*sync.Mutex),
	}
}

// Persist stores pkg as the session's resolution package, replacing any
// previous one.
func (p *Pipeline) Persist(ctx context.Context, sessionID string, pkg *core.ResolutionPackage) error {
	if pkg == nil {
		return fmt.Errorf("%w: nil package", core.ErrNoPackage)
	}
	_, err := p.store.Update(ctx, sessionID, func(s *core.Session) error {
		s.Metadata.Resolution = pkg.Clone()
		return nil
	})
	return err
}

// Get returns a copy of the session's package.
func (p *Pipeline) Get(ctx context.Context, sessionID string) (*core.ResolutionPackage, error) {
	sess, err := p.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Metadata.Resolution == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrNoPackage, sessionID)
	}
	return sess.Metadata.Resolution, nil
}

// Approve moves a pending item to approved. For any other status the item is
// returned unchanged with changed=false.
func (p *Pipeline) Approve(ctx context.Context, sessionID, itemID string) (core.ResolutionItem, bool, error) {
	return p.transition(ctx, sessionID, itemID, core.ItemApproved)
}

// Reject moves a pending item to rejected. For any other status the item is
// returned unchanged with changed=false.
func (p *Pipeline) Reject(ctx context.Context, sessionID, itemID string) (core.ResolutionItem, bool, error) {
	return p.transition(ctx, sessionID, itemID, core.ItemRejected)
}

func (p *Pipeline) transition(ctx context.Context, sessionID, itemID string, to core.ItemStatus) (core.ResolutionItem, bool, error) {
	var result core.ResolutionItem
	_, err := p.store.Update(ctx, sessionID, func(s *core.Session) error {
		pkg := s.Metadata.Resolution
		if pkg == nil {
			return fmt.Errorf("%w: %s", core.ErrNoPackage, sessionID)
		}
		item, ok := pkg.Item(itemID)
		if !ok {
			return fmt.Errorf("%w: %s", core.ErrItemNotFound, itemID)
		}
		if item.Status != core.ItemPending {
			result = item.Clone()
			return errUnchanged
		}
		item.Status = to
		item.UpdatedAt = time.Now().UTC()
		result = item.Clone()
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return result, false, nil
	}
	if err != nil {
		return core.ResolutionItem{}, false, err
	}
	return result, true, nil
}

// ApproveAll approves every pending item and returns how many changed.
func (p *Pipeline) ApproveAll(ctx context.Context, sessionID string) (int, error) {
	n := 0
	_, err := p.store.Update(ctx, sessionID, func(s *core.Session) error {
		pkg := s.Metadata.Resolution
		if pkg == nil {
			return fmt.Errorf("%w: %s", core.ErrNoPackage, sessionID)
		}
		now := time.Now().UTC()
		for i := range pkg.Items {
			if pkg.Items[i].Status == core.ItemPending {
				pkg.Items[i].Status = core.ItemApproved
				pkg.Items[i].UpdatedAt = now
				n++
			}
		}
		if n == 0 {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Execute dispatches every approved item to the executor. Each outcome is
// persisted as soon as it is known: success marks the item created with its
// created ID, failure keeps it approved with the error attached. Items that
// are already created are skipped, so a partial run can simply be repeated.
// Concurrent Execute calls for one session are serialized.
func (p *Pipeline) Execute(ctx context.Context, sessionID string) (ExecuteReport, error) {
	lock := p.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	pkg, err := p.Get(ctx, sessionID)
	if err != nil {
		return ExecuteReport{}, err
	}

	var report ExecuteReport
	for _, item := range pkg.Items {
		if item.Status != core.ItemApproved {
			report.Skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		start := time.Now()
		createdID, execErr := core.Dispatch(ctx, p.executor, item)
		p.logExecution(sessionID, item, time.Since(start), execErr)

		if err := p.recordOutcome(ctx, sessionID, item.ID, createdID, execErr); err != nil {
			return report, err
		}
		if execErr != nil {
			report.Failed++
		} else {
			report.Created++
		}
	}
	return report, nil
}

func (p *Pipeline) recordOutcome(ctx context.Context, sessionID, itemID, createdID string, execErr error) error {
	_, err := p.store.Update(ctx, sessionID, func(s *core.Session) error {
		if s.Metadata.Resolution == nil {
			return fmt.Errorf("%w: %s", core.ErrNoPackage, sessionID)
		}
		item, ok := s.Metadata.Resolution.Item(itemID)
		if !ok {
			return fmt.Errorf("%w: %s", core.ErrItemNotFound, itemID)
		}
		if item.Status != core.ItemApproved {
			return errUnchanged
		}
		item.UpdatedAt = time.Now().UTC()
		if execErr != nil {
			item.Error = execErr.Error()
			return nil
		}
		item.Status = core.ItemCreated
		item.CreatedID = createdID
		item.Error = ""
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return nil
	}
	return err
}

func (p *Pipeline) logExecution(sessionID string, item core.ResolutionItem, dur time.Duration, err error) {
	if sl, ok := p.logger.(*logging.SessionLogger); ok {
		sl.WithSession(sessionID).LogExecution(item.ID, string(item.Type), dur, err)
		return
	}
	if err != nil {
		p.logger.Warn("Resolution item failed", "session_id", sessionID, "item_id", item.ID, "item_type", string(item.Type), "error", err)
		return
	}
	p.logger.Info("Resolution item created", "session_id", sessionID, "item_id", item.ID, "item_type", string(item.Type), "duration", dur)
}

func (p *Pipeline) sessionLock(sessionID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		p.locks[sessionID] = l
	}
	return l
}
