// workers/payment_sync_worker.go
package workers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"realm-rivals/models"
	"realm-rivals/services"
	"realm-rivals/utils"
)

const paymentsPath = "/api/v1/public/payments"

// RemotePayment is a coin purchase settled by the payment processor.
type RemotePayment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Coins     int64     `json:"coins"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p RemotePayment) settled() bool {
	return p.Status == "succeeded" || p.Status == "completed"
}

type paymentChangesResponse struct {
	Payments []RemotePayment `json:"payments"`
}

// PaymentSyncWorker credits completed coin purchases through the ledger. The payment id is
// the ledger reference, so a payment seen twice is credited once.
type PaymentSyncWorker struct {
	coins        *services.CoinService
	baseURL      string
	serviceToken string
	interval     time.Duration
	httpClient   *http.Client

	mu    sync.Mutex
	since time.Time
}

func NewPaymentSyncWorker(coins *services.CoinService, baseURL, serviceToken string) *PaymentSyncWorker {
	return &PaymentSyncWorker{
		coins:        coins,
		baseURL:      baseURL,
		serviceToken: serviceToken,
		interval:     10 * time.Second,
		httpClient:   utils.HTTPClient,
		since:        time.Now().UTC().Add(-24 * time.Hour),
	}
}

func (w *PaymentSyncWorker) Start(ctx context.Context) {
	log.Println("🔁 [SYNC] Starting payment sync (payment service → coin ledger)…")
	go poll(ctx, "payment", w.interval, w.SyncOnce)
}

func PaymentReference(paymentID string) string {
	return "payment:" + paymentID
}

func (w *PaymentSyncWorker) SyncOnce(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Use the poll start so latency never skips a window.
	pollStart := time.Now().UTC()
	var resp paymentChangesResponse
	if err := fetchChanges(ctx, w.httpClient, w.baseURL, paymentsPath, w.serviceToken, w.since, &resp); err != nil {
		return err
	}

	var credited, failed int
	for _, p := range resp.Payments {
		if !p.settled() || p.Coins <= 0 || p.UserID == "" {
			continue
		}
		_, _, err := w.coins.Adjust(ctx, p.UserID, p.Coins, models.CoinReasonPayment, PaymentReference(p.ID))
		switch {
		case err == nil:
			credited++
		case errors.Is(err, services.ErrNotFound):
			// No profile yet; the window is retried once the profile sync creates it.
			failed++
			log.Printf("[SYNC] ⏳ Payment %s for unknown user %s deferred", p.ID, p.UserID)
		default:
			failed++
			log.Printf("[SYNC] ❌ Failed to credit payment %s: %v", p.ID, err)
		}
	}

	// Do NOT advance on failure; retry the same window next tick.
	if failed == 0 {
		w.since = pollStart
	}
	if len(resp.Payments) > 0 {
		log.Printf("[SYNC] 💰 Payments: %d received, %d credited, %d failed", len(resp.Payments), credited, failed)
	}
	return nil
}
