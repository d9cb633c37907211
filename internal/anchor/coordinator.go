package anchor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"civicreport/internal/incident"
	"civicreport/internal/ledger"
)

// Coordinator mirrors incident lifecycle events to the external ledger.
//
// The ledger is a secondary, eventually-consistent witness: every call here
// is fire-and-forget with respect to the caller, but every outcome (success
// or failure) lands either in the incident record or in the log. Failed
// submissions are picked up later by the reconciliation sweep.
type Coordinator struct {
	repo    incident.Repository
	client  ledger.Client
	log     *slog.Logger
	timeout time.Duration

	sem chan struct{}
	wg  sync.WaitGroup
}

type Options struct {
	// Timeout bounds each detached ledger call.
	Timeout time.Duration

	// Workers caps concurrent in-flight ledger calls.
	Workers int
}

func NewCoordinator(repo incident.Repository, client ledger.Client, log *slog.Logger, opts Options) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Coordinator{
		repo:    repo,
		client:  client,
		log:     log,
		timeout: opts.Timeout,
		sem:     make(chan struct{}, opts.Workers),
	}
}

// OnCreated computes and persists the fingerprint, then submits it to the
// ledger on a detached goroutine. Nothing here propagates to the caller:
// hash failures are data errors logged with the incident id, ledger failures
// leave the incident hashed-but-unanchored for the next sweep.
func (c *Coordinator) OnCreated(ctx context.Context, inc incident.Incident) {
	if inc.IncidentHash == "" {
		h, err := incident.ComputeHash(inc)
		if err != nil {
			c.log.Error("incident hash computation failed", "incident_id", inc.ID, "err", err)
			return
		}
		if err := c.repo.SetHash(ctx, inc.ID, h); err != nil {
			c.log.Error("incident hash persist failed", "incident_id", inc.ID, "err", err)
			return
		}
		inc.IncidentHash = h
	}

	c.dispatch(ctx, func(ctx context.Context) {
		c.submit(ctx, inc)
	})
}

// OnStatusChanged pushes a verification status to the ledger record, if one
// exists. PENDING is a birth state and never a valid ledger target; it is
// rejected locally before any network call.
func (c *Coordinator) OnStatusChanged(ctx context.Context, inc incident.Incident, newStatus incident.Status) {
	if newStatus == incident.StatusPending {
		c.log.Warn("refusing to push PENDING status to ledger", "incident_id", inc.ID)
		return
	}
	if inc.LedgerRecordID == "" {
		c.log.Warn("status changed before anchoring; no ledger record to update", "incident_id", inc.ID, "status", newStatus)
		return
	}

	recordID := inc.LedgerRecordID
	c.dispatch(ctx, func(ctx context.Context) {
		txID, err := c.client.UpdateStatus(ctx, recordID, string(newStatus))
		if err != nil {
			if errors.Is(err, ledger.ErrNotConfigured) {
				return
			}
			c.log.Warn("ledger status update failed", "incident_id", inc.ID, "record_id", recordID, "status", newStatus, "err", err)
			return
		}
		if err := c.repo.SetLedgerTxID(ctx, inc.ID, txID); err != nil {
			c.log.Error("ledger tx id persist failed", "incident_id", inc.ID, "tx_id", txID, "err", err)
		}
	})
}

// Wait blocks until all detached ledger calls have finished. Used on
// shutdown and in tests.
func (c *Coordinator) Wait() { c.wg.Wait() }

// dispatch runs fn on its own goroutine, detached from the request context
// so the ledger call outlives the response, but still bounded by the
// coordinator timeout and the worker cap.
func (c *Coordinator) dispatch(ctx context.Context, fn func(ctx context.Context)) {
	detached := context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.sem <- struct{}{}
		defer func() { <-c.sem }()

		callCtx, cancel := context.WithTimeout(detached, c.timeout)
		defer cancel()
		fn(callCtx)
	}()
}

func (c *Coordinator) submit(ctx context.Context, inc incident.Incident) {
	res, err := c.client.Submit(ctx, inc.IncidentHash, string(incident.StatusPending))
	if err != nil {
		if errors.Is(err, ledger.ErrNotConfigured) {
			return
		}
		c.log.Warn("ledger submit failed; left for reconciliation", "incident_id", inc.ID, "err", err)
		return
	}

	ok, err := c.repo.SetAnchor(ctx, inc.ID, res.TxID, res.RecordID)
	if err != nil {
		c.log.Error("anchor persist failed", "incident_id", inc.ID, "tx_id", res.TxID, "err", err)
		return
	}
	if !ok {
		// A concurrent sweep won the race; the ledger saw a benign duplicate.
		c.log.Info("incident already anchored; ignoring duplicate submission", "incident_id", inc.ID)
		return
	}
	c.log.Info("incident anchored", "incident_id", inc.ID, "tx_id", res.TxID, "record_id", res.RecordID)
}
