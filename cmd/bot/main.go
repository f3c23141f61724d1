package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"realm-rivals/services"
	"realm-rivals/syncclient"

	"github.com/google/uuid"
)

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:5200", "game service base url")
		realtimeURL = flag.String("realtime", "ws://localhost:5201", "realtime base url")
		token       = flag.String("token", os.Getenv("GAME_SERVICE_TOKEN"), "gateway token")
		mode        = flag.String("mode", "duel", "game mode")
		players     = flag.Int("players", 2, "number of simulated players")
		duration    = flag.Duration("duration", time.Minute, "how long to play")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < *players; i++ {
		userID := fmt.Sprintf("bot-%d-%s", i, uuid.NewString()[:8])
		client := syncclient.NewClient(*baseURL, *realtimeURL, *token, userID)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := play(ctx, logger, client, *mode, int64(i)); err != nil {
				logger.Printf("%s: %v", client.UserID, err)
			}
		}(i)
	}
	wg.Wait()
}

func play(ctx context.Context, logger *log.Logger, client *syncclient.Client, mode string, seed int64) error {
	if _, err := client.EnsureProfile(ctx, ""); err != nil {
		return fmt.Errorf("profile: %w", err)
	}
	match, err := client.FindMatch(ctx, mode)
	if err != nil {
		return fmt.Errorf("matchmaking: %w", err)
	}
	logger.Printf("%s joined %s (%s %d/%d)", client.UserID, match.SessionID, match.Mode, match.PlayerCount, match.MaxPlayers)

	runner := syncclient.NewRunner(client, match.SessionID)
	runner.OnChange = func() {
		logger.Printf("%s sees %d remote player(s)", client.UserID, len(runner.Roster.Players()))
	}

	start := syncclient.LocalState{
		Position:  services.Vec3{X: match.Player.PositionX, Y: match.Player.PositionY, Z: match.Player.PositionZ},
		Direction: services.Vec3{Z: 1},
	}
	runner.Broadcaster.Set(start)
	go walk(ctx, runner.Broadcaster, start, rand.New(rand.NewSource(time.Now().UnixNano()+seed)))

	err = runner.Run(ctx)

	leaveCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if lerr := client.Leave(leaveCtx, match.SessionID); lerr != nil {
		logger.Printf("%s leave: %v", client.UserID, lerr)
	}
	return err
}

// walk wanders around at walking speed, turning now and then.
func walk(ctx context.Context, b *syncclient.Broadcaster, s syncclient.LocalState, r *rand.Rand) {
	const speed = 4.0
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	heading := r.Float64() * 2 * math.Pi
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if r.Intn(20) == 0 {
				heading += (r.Float64() - 0.5) * math.Pi
			}
			dx, dz := math.Sin(heading), math.Cos(heading)
			s.Position.X += dx * speed * 0.1
			s.Position.Z += dz * speed * 0.1
			s.Direction = services.Vec3{X: dx, Z: dz}
			s.IsMoving = true
			s.IsJumping = r.Intn(50) == 0
			b.Set(s)
		}
	}
}
