// workers/janitor.go
package workers

import (
	"context"
	"fmt"
	"log"
	"time"

	"realm-rivals/services"

	"github.com/go-co-op/gocron/v2"
)

// JanitorConfig sets how long things may sit untouched and how often each sweep runs.
type JanitorConfig struct {
	PlayerStaleAfter time.Duration
	SessionIdleAfter time.Duration

	StaleEvery  time.Duration
	InviteEvery time.Duration
	IdleEvery   time.Duration
}

func (c JanitorConfig) withDefaults() JanitorConfig {
	if c.PlayerStaleAfter <= 0 {
		c.PlayerStaleAfter = 15 * time.Second
	}
	if c.SessionIdleAfter <= 0 {
		c.SessionIdleAfter = time.Hour
	}
	if c.StaleEvery <= 0 {
		c.StaleEvery = 5 * time.Second
	}
	if c.InviteEvery <= 0 {
		c.InviteEvery = time.Minute
	}
	if c.IdleEvery <= 0 {
		c.IdleEvery = 5 * time.Minute
	}
	return c
}

// Janitor removes silent players, expires invitations and closes abandoned sessions.
type Janitor struct {
	players     *services.PlayerStateService
	sessions    *services.SessionService
	invitations *services.InvitationService
	cfg         JanitorConfig
	sched       gocron.Scheduler
}

func NewJanitor(players *services.PlayerStateService, sessions *services.SessionService, invitations *services.InvitationService, cfg JanitorConfig) *Janitor {
	return &Janitor{
		players:     players,
		sessions:    sessions,
		invitations: invitations,
		cfg:         cfg.withDefaults(),
	}
}

func (j *Janitor) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create janitor scheduler: %w", err)
	}

	jobs := []struct {
		name  string
		every time.Duration
		run   func(context.Context)
	}{
		{"reap-stale-players", j.cfg.StaleEvery, j.ReapStalePlayers},
		{"expire-invitations", j.cfg.InviteEvery, j.ExpireInvitations},
		{"close-idle-sessions", j.cfg.IdleEvery, j.CloseIdleSessions},
	}
	for _, job := range jobs {
		run := job.run
		if _, err := sched.NewJob(
			gocron.DurationJob(job.every),
			gocron.NewTask(func() { run(ctx) }),
			gocron.WithName(job.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			_ = sched.Shutdown()
			return fmt.Errorf("schedule %s: %w", job.name, err)
		}
	}

	sched.Start()
	j.sched = sched
	log.Printf("🧹 [JANITOR] Started (stale players every %s, invitations every %s, idle sessions every %s)",
		j.cfg.StaleEvery, j.cfg.InviteEvery, j.cfg.IdleEvery)
	return nil
}

func (j *Janitor) Stop() {
	if j.sched == nil {
		return
	}
	if err := j.sched.Shutdown(); err != nil {
		log.Printf("⚠️ [JANITOR] Shutdown error: %v", err)
	}
}

func (j *Janitor) ReapStalePlayers(ctx context.Context) {
	n, err := j.players.ReapStale(ctx, j.cfg.PlayerStaleAfter)
	if err != nil {
		log.Printf("[JANITOR] stale player sweep failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("🧹 [JANITOR] Removed %d stale player(s)", n)
	}
}

func (j *Janitor) ExpireInvitations(ctx context.Context) {
	n, err := j.invitations.ExpirePending(ctx)
	if err != nil {
		log.Printf("[JANITOR] invitation sweep failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("🧹 [JANITOR] Expired %d invitation(s)", n)
	}
}

func (j *Janitor) CloseIdleSessions(ctx context.Context) {
	n, err := j.sessions.CompleteIdle(ctx, j.cfg.SessionIdleAfter)
	if err != nil {
		log.Printf("[JANITOR] idle session sweep failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("🧹 [JANITOR] Closed %d idle session(s)", n)
	}
}
