// workers/profile_sync_worker.go
package workers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"realm-rivals/services"
	"realm-rivals/utils"
)

const profilesPath = "/api/v1/public/profiles"

// RemoteProfile is one user from the identity sync service.
type RemoteProfile struct {
	ExternalID        string    `json:"external_id"`
	Username          string    `json:"username"`
	ProfilePictureURL *string   `json:"profile_picture_url,omitempty"`
	AccountStatus     string    `json:"account_status"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type profileChangesResponse struct {
	Users []RemoteProfile `json:"users"`
}

// ProfileSyncWorker mirrors identity-service users into game profiles so every account
// has coins and starter characters before its first request.
type ProfileSyncWorker struct {
	profiles     *services.ProfileService
	baseURL      string
	serviceToken string
	interval     time.Duration
	httpClient   *http.Client

	mu    sync.Mutex
	since time.Time
}

func NewProfileSyncWorker(profiles *services.ProfileService, baseURL, serviceToken string) *ProfileSyncWorker {
	return &ProfileSyncWorker{
		profiles:     profiles,
		baseURL:      baseURL,
		serviceToken: serviceToken,
		interval:     time.Minute,
		httpClient:   utils.HTTPClient,
	}
}

func (w *ProfileSyncWorker) Start(ctx context.Context) {
	log.Println("🔁 [SYNC] Starting profile sync (identity service → profiles)…")
	go poll(ctx, "profile", w.interval, w.SyncOnce)
}

// SyncOnce pulls users changed since the last successful batch.
func (w *ProfileSyncWorker) SyncOnce(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var resp profileChangesResponse
	if err := fetchChanges(ctx, w.httpClient, w.baseURL, profilesPath, w.serviceToken, w.since, &resp); err != nil {
		return err
	}
	if len(resp.Users) == 0 {
		return nil
	}

	var created, failed int
	latest := w.since
	for _, u := range resp.Users {
		if u.ExternalID == "" {
			continue
		}
		if u.AccountStatus == "deactivated" || u.AccountStatus == "suspended" {
			continue
		}
		ok, err := w.apply(ctx, u)
		if err != nil {
			failed++
			log.Printf("[SYNC] ⚠️ Failed to mirror profile external_id=%q username=%q: %v", u.ExternalID, u.Username, err)
			continue
		}
		if ok {
			created++
		}
		if u.UpdatedAt.After(latest) {
			latest = u.UpdatedAt
		}
	}
	// Retry the whole window next time if anything failed.
	if failed == 0 {
		w.since = latest
	}
	log.Printf("[SYNC] ✅ Profiles: %d received, %d created, %d errors", len(resp.Users), created, failed)
	return nil
}

func (w *ProfileSyncWorker) apply(ctx context.Context, u RemoteProfile) (bool, error) {
	profile, created, err := w.profiles.Ensure(ctx, u.ExternalID, u.Username)
	if errors.Is(err, services.ErrUsernameTaken) || errors.Is(err, services.ErrInvalidUsername) {
		// Keep the account playable under a generated name.
		profile, created, err = w.profiles.Ensure(ctx, u.ExternalID, "")
	}
	if err != nil {
		return false, err
	}

	upd := services.ProfileUpdate{}
	if !created && u.Username != "" && u.Username != profile.Username {
		name := u.Username
		upd.Username = &name
	}
	if u.ProfilePictureURL != nil && (profile.AvatarURL == nil || *profile.AvatarURL != *u.ProfilePictureURL) {
		upd.AvatarURL = u.ProfilePictureURL
	}
	if upd.Username == nil && upd.AvatarURL == nil {
		return created, nil
	}
	if _, err := w.profiles.Update(ctx, u.ExternalID, upd); err != nil {
		if errors.Is(err, services.ErrUsernameTaken) || errors.Is(err, services.ErrInvalidUsername) {
			log.Printf("[SYNC] ⚠️ Keeping username %q for %s: %v", profile.Username, u.ExternalID, err)
			return created, nil
		}
		return created, err
	}
	return created, nil
}
