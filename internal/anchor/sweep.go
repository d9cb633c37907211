package anchor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"civicreport/internal/incident"
	"civicreport/internal/ledger"
)

const defaultSweepLimit = 10

// Sweep is the idempotent backstop for anchoring failures: it re-submits
// incidents that have a hash but no ledger transaction id. Unlike the
// coordinator it runs synchronously (the operator explicitly waits for
// outcomes) with bounded concurrency against the ledger.
type Sweep struct {
	repo        incident.Repository
	client      ledger.Client
	log         *slog.Logger
	timeout     time.Duration
	concurrency int
}

func NewSweep(repo incident.Repository, client ledger.Client, log *slog.Logger, opts Options) *Sweep {
	if log == nil {
		log = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Sweep{
		repo:        repo,
		client:      client,
		log:         log,
		timeout:     opts.Timeout,
		concurrency: opts.Workers,
	}
}

// Report tallies one reconciliation run.
type Report struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// ReconcilePending retries ledger submission for up to limit unanchored
// incidents. Sweeps may run concurrently with organic traffic, so the
// "still unanchored" guard is re-checked immediately before each call and
// the anchor write is a compare-and-swap; a lost race counts as skipped.
func (s *Sweep) ReconcilePending(ctx context.Context, limit int) (Report, error) {
	if limit <= 0 {
		limit = defaultSweepLimit
	}

	candidates, err := s.repo.FindUnanchored(ctx, limit)
	if err != nil {
		return Report{}, err
	}

	var (
		mu     sync.Mutex
		report Report
		wg     sync.WaitGroup
		sem    = make(chan struct{}, s.concurrency)
	)

	for _, cand := range candidates {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			outcome := s.reconcileOne(ctx, id)
			mu.Lock()
			switch outcome {
			case outcomeSucceeded:
				report.Attempted++
				report.Succeeded++
			case outcomeFailed:
				report.Attempted++
				report.Failed++
			case outcomeSkipped:
				report.Skipped++
			}
			mu.Unlock()
		}(cand.ID)
	}
	wg.Wait()

	s.log.Info("reconciliation sweep finished",
		"candidates", len(candidates),
		"attempted", report.Attempted,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"skipped", report.Skipped,
	)
	return report, nil
}

type outcome int

const (
	outcomeSucceeded outcome = iota
	outcomeFailed
	outcomeSkipped
)

func (s *Sweep) reconcileOne(ctx context.Context, id string) outcome {
	// Re-read right before submitting: organic traffic may have anchored
	// this incident since the candidate query.
	cur, err := s.repo.FindByID(ctx, id)
	if err != nil {
		s.log.Warn("reconcile: incident fetch failed", "incident_id", id, "err", err)
		return outcomeFailed
	}
	if cur.Anchored() || cur.IncidentHash == "" {
		return outcomeSkipped
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.client.Submit(callCtx, cur.IncidentHash, string(incident.StatusPending))
	if err != nil {
		s.log.Warn("reconcile: ledger submit failed", "incident_id", id, "err", err)
		return outcomeFailed
	}

	ok, err := s.repo.SetAnchor(ctx, id, res.TxID, res.RecordID)
	if err != nil {
		s.log.Error("reconcile: anchor persist failed", "incident_id", id, "err", err)
		return outcomeFailed
	}
	if !ok {
		return outcomeSkipped
	}
	return outcomeSucceeded
}
