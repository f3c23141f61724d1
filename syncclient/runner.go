package syncclient

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// Runner keeps one session's roster in sync: it subscribes to the channel, broadcasts the
// local player, and re-fetches the full roster every ReconcileEvery to patch dropped events.
// Lost connections are retried with backoff until ctx is cancelled.
type Runner struct {
	Client         *Client
	SessionID      string
	Roster         *Roster
	Broadcaster    *Broadcaster
	ReconcileEvery time.Duration
	// RetryDelay is the first reconnect delay; it doubles up to 10s.
	RetryDelay time.Duration
	// OnChange, if set, is called after the roster changes.
	OnChange func()
}

func NewRunner(client *Client, sessionID string) *Runner {
	return &Runner{
		Client:         client,
		SessionID:      sessionID,
		Roster:         NewRoster(client.UserID, 5*time.Second),
		Broadcaster:    NewBroadcaster(),
		ReconcileEvery: 3 * time.Second,
		RetryDelay:     500 * time.Millisecond,
	}
}

func (r *Runner) changed() {
	if r.OnChange != nil {
		r.OnChange()
	}
}

// Run blocks until ctx is cancelled or the server refuses the user with 403.
func (r *Runner) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.reconcileLoop(ctx)
	}()

	backoff := r.RetryDelay
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	for {
		err := r.runOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == 403 {
			// No longer seated in the session; reconnecting cannot help.
			return err
		}
		log.Printf("[SYNC] channel %s lost (%v), retrying in %s", r.SessionID, err, backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff < 10*time.Second {
			backoff *= 2
		}
	}
}

func (r *Runner) runOnce(ctx context.Context) error {
	conn, err := r.Client.Subscribe(ctx, r.SessionID)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sendErr := make(chan error, 1)
	go func() { sendErr <- r.Broadcaster.Run(ctx, conn) }()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		evt, err := conn.ReadEvent()
		if err != nil {
			cancel()
			<-sendErr
			return err
		}
		if r.Roster.Apply(evt) {
			r.changed()
		}
	}
}

func (r *Runner) reconcileLoop(ctx context.Context) {
	ticker := time.NewTicker(r.ReconcileEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ReconcileNow(ctx)
		}
	}
}

// ReconcileNow fetches the full roster once and merges it.
func (r *Runner) ReconcileNow(ctx context.Context) {
	fetchedAt := time.Now()
	players, _, err := r.Client.Players(ctx, r.SessionID)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("[SYNC] reconcile %s failed: %v", r.SessionID, err)
		}
		return
	}
	changed := r.Roster.Reconcile(players, fetchedAt)
	if _, removed := r.Roster.Sweep(); removed > 0 {
		changed = true
	}
	if changed {
		r.changed()
	}
}
