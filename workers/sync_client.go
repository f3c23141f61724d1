// workers/sync_client.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

// fetchChanges GETs base+path?since=<RFC3339> with the service token and decodes the body.
func fetchChanges(ctx context.Context, client *http.Client, baseURL, path, token string, since time.Time, out any) error {
	base, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid sync service URL '%s': %w", baseURL, err)
	}
	endpointURL := base.JoinPath(path)
	q := endpointURL.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpointURL.RawQuery = q.Encode()
	finalURL := endpointURL.String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request to %s: %w", finalURL, err)
	}
	req.Header.Set("X-Service-Token", token)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request to sync service failed: %w", err)
	}
	defer func() {
		// Always drain & close to prevent connection leaks
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if readErr != nil {
			log.Printf("[SYNC] ⚠️ Failed to read error body from %s: %v", finalURL, readErr)
		}
		return fmt.Errorf("sync service returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode sync service response: %w", err)
	}
	return nil
}

// poll runs once immediately, then every interval until ctx is done.
func poll(ctx context.Context, name string, interval time.Duration, once func(context.Context) error) {
	if err := once(ctx); err != nil {
		log.Printf("⚠️ [SYNC] Initial %s sync failed: %v", name, err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("⏹️ [SYNC] %s sync stopped", name)
			return
		case <-ticker.C:
			if err := once(ctx); err != nil {
				log.Printf("❌ [SYNC] %s sync failed: %v", name, err)
			}
		}
	}
}
