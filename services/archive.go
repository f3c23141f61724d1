// services/archive.go
package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"

	"realm-rivals/models"
	"realm-rivals/utils"

	"github.com/klauspost/compress/zstd"
)

const archiveContentType = "application/zstd"

// archiveRecord is one JSONL line of a session archive.
type archiveRecord struct {
	Kind    string                `json:"kind"`
	Session *models.GameSession   `json:"session,omitempty"`
	Player  *models.SessionPlayer `json:"player,omitempty"`
}

// ZstdArchiver writes completed sessions as zstd-compressed JSONL objects.
type ZstdArchiver struct {
	Store  utils.ObjectWriter
	Prefix string
}

func NewZstdArchiver(store utils.ObjectWriter) *ZstdArchiver {
	return &ZstdArchiver{Store: store, Prefix: "archives/sessions"}
}

func ArchiveKey(prefix, sessionID string) string {
	return fmt.Sprintf("%s/%s.jsonl.zst", prefix, sessionID)
}

func (a *ZstdArchiver) ArchiveSession(ctx context.Context, session *models.GameSession, players []models.SessionPlayer) error {
	body, err := EncodeArchive(session, players)
	if err != nil {
		return err
	}
	url, err := a.Store.PutObject(ctx, ArchiveKey(a.Prefix, session.ID), archiveContentType, body)
	if err != nil {
		return err
	}
	log.Printf("📦 [ARCHIVE] Session %s archived (%d players, %d bytes) -> %s", session.ID, len(players), len(body), url)
	return nil
}

// EncodeArchive renders the session line followed by one line per player, compressed.
func EncodeArchive(session *models.GameSession, players []models.SessionPlayer) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	enc := json.NewEncoder(zw)
	if err := enc.Encode(archiveRecord{Kind: "session", Session: session}); err != nil {
		zw.Close()
		return nil, err
	}
	for i := range players {
		if err := enc.Encode(archiveRecord{Kind: "player", Player: &players[i]}); err != nil {
			zw.Close()
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeArchive reverses EncodeArchive.
func DecodeArchive(data []byte) (*models.GameSession, []models.SessionPlayer, error) {
	zr, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, err
	}
	defer zr.Close()

	var (
		session *models.GameSession
		players []models.SessionPlayer
	)
	sc := bufio.NewScanner(zr)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var rec archiveRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, nil, err
		}
		switch rec.Kind {
		case "session":
			session = rec.Session
		case "player":
			if rec.Player != nil {
				players = append(players, *rec.Player)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}
	if session == nil {
		return nil, nil, fmt.Errorf("archive has no session record")
	}
	return session, players, nil
}
