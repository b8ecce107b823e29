package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"crcbank/internal/model"
	"crcbank/internal/recorder"
	"crcbank/internal/store"
)

// UsageSource reports the service units an account has consumed this period.
type UsageSource interface {
	UsageHours(ctx context.Context, account, cluster string) (int64, error)
}

// Enforcer blocks or releases an account on the cluster. Both calls are idempotent.
type Enforcer interface {
	Lock(ctx context.Context, account string) error
	Unlock(ctx context.Context, account string) error
}

// AssociationChecker lists the tracked clusters an account is not associated with.
type AssociationChecker interface {
	MissingAssociations(ctx context.Context, account string) ([]string, error)
}

// Notifier delivers a notice to the account owner.
type Notifier interface {
	Notify(ctx context.Context, n *model.Notice) error
}

// Collaborators groups the external systems the engine drives.
type Collaborators struct {
	Usage        UsageSource
	Enforcer     Enforcer
	Associations AssociationChecker
	Notifier     Notifier
	Recorder     recorder.Recorder
}

// Engine applies the allocation rules to one account per call. It keeps no
// state between calls; everything is read fresh from the Store.
type Engine struct {
	Store        store.Store
	Usage        UsageSource
	Enforcer     Enforcer
	Associations AssociationChecker
	Notifier     Notifier
	Recorder     recorder.Recorder

	Clusters   []string
	MinimumSUs int64
	Now        func() time.Time
	RunID      string
}

// NewEngine creates an Engine tracking usage on clusters.
func NewEngine(st store.Store, c Collaborators, clusters []string, minimumSUs int64) *Engine {
	rec := c.Recorder
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Engine{
		Store:        st,
		Usage:        c.Usage,
		Enforcer:     c.Enforcer,
		Associations: c.Associations,
		Notifier:     c.Notifier,
		Recorder:     rec,
		Clusters:     clusters,
		MinimumSUs:   minimumSUs,
		Now:          time.Now,
		RunID:        uuid.NewString(),
	}
}

func (e *Engine) today() time.Time { return model.Day(e.Now()) }

// proposal loads the account's proposal, mapping absence to ErrNotFound.
func (e *Engine) proposal(ctx context.Context, account string) (*model.Proposal, error) {
	p, err := e.Store.FindProposal(ctx, account)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fail(ErrNotFound, account, "account not in ledger")
	}
	if err != nil {
		return nil, collaboratorFailure(account, "load proposal", err)
	}
	return p, nil
}

func (e *Engine) investments(ctx context.Context, account string) ([]model.Investment, error) {
	invs, err := e.Store.FindInvestments(ctx, account)
	if err != nil {
		return nil, collaboratorFailure(account, "load investments", err)
	}
	return invs, nil
}

// usage queries every tracked cluster and returns the per-cluster hours and their sum.
func (e *Engine) usage(ctx context.Context, account string) (model.Allocations, int64, error) {
	perCluster := make(model.Allocations, len(e.Clusters))
	var total int64
	for _, cluster := range e.Clusters {
		hours, err := e.Usage.UsageHours(ctx, account, cluster)
		if err != nil {
			return nil, 0, collaboratorFailure(account, fmt.Sprintf("query usage on %s", cluster), err)
		}
		perCluster[cluster] = hours
		total += hours
	}
	return perCluster, total, nil
}

func (e *Engine) atomic(ctx context.Context, account, step string, fn func(tx store.Store) error) error {
	if err := e.Store.Atomic(ctx, fn); err != nil {
		return collaboratorFailure(account, step, err)
	}
	return nil
}

// record writes the action to the log and the recorder. Recorder failures are
// logged only; the ledger change has already committed.
func (e *Engine) record(account, action, format string, args ...any) {
	note := fmt.Sprintf(format, args...)
	log.Printf("[INFO] %s %s: %s", action, account, note)
	if err := e.Recorder.RecordAction(&recorder.ActionEvent{
		RunID:   e.RunID,
		Account: account,
		Action:  action,
		Note:    note,
		At:      e.Now(),
	}); err != nil {
		log.Printf("[ERROR] record action %s for %s: %v", action, account, err)
	}
}
