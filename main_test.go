package main

import (
	"testing"

	"realm-rivals/config"
	"realm-rivals/utils"
)

func TestSessionArchiverRequiresR2(t *testing.T) {
	store := utils.NewLocalStore(t.TempDir(), "/uploads")

	if a := sessionArchiver(config.Default(), store); a != nil {
		t.Fatalf("expected no archiver without R2, got %T", a)
	}

	cfg := config.Default()
	cfg.R2 = config.R2Config{AccountID: "acct", AccessKeyID: "key", AccessKeySecret: "secret", Bucket: "archives"}
	if a := sessionArchiver(cfg, store); a == nil {
		t.Fatal("expected an archiver when R2 is configured")
	}
}
