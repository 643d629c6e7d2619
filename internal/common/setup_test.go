package common

import (
	"errors"
	"testing"

	"escrow-ledger-go/internal/models"
	"escrow-ledger-go/internal/policy"
)

func TestIsIgnorableSyncError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{errors.New("sync /dev/stderr: inappropriate ioctl for device"), true},
		{errors.New("sync /dev/stdout: inappropriate ioctl for device"), true},
		{errors.New("sync /var/log/app.log: disk full"), false},
	}
	for _, tt := range tests {
		if got := isIgnorableSyncError(tt.err); got != tt.want {
			t.Errorf("isIgnorableSyncError(%q) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestLoadPrimeCredentials(t *testing.T) {
	creds := loadPrimeCredentials(models.PrimeConfig{AccessKey: "a", Passphrase: "p", SigningKey: "s"})
	if creds.AccessKey != "a" || creds.Passphrase != "p" || creds.SigningKey != "s" {
		t.Errorf("Unexpected credentials: %+v", creds)
	}
}

func TestParseActor(t *testing.T) {
	actor, err := ParseActor("admin-1", "admin")
	if err != nil {
		t.Fatalf("ParseActor failed: %v", err)
	}
	if actor.Role != policy.RoleAdmin {
		t.Errorf("Expected ADMIN, got %s", actor.Role)
	}

	if _, err := ParseActor("", "ADMIN"); err == nil {
		t.Error("Expected error for empty actor id")
	}
	if _, err := ParseActor("x", "superuser"); err == nil {
		t.Error("Expected error for unknown role")
	}
}
