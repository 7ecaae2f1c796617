package model

import "time"

// LockRecord is stored in the locks directory next to the config file, one per watched source folder.
type LockRecord struct {
	Profile     string    `json:"profile"`
	Source      string    `json:"source"`
	HolderNonce string    `json:"holder_nonce"`
	PID         int       `json:"pid"`
	AcquiredAt  time.Time `json:"acquired_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Purpose     string    `json:"purpose,omitempty"`
}

// IsExpired returns true if the lease has run out.
func (l *LockRecord) IsExpired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// LockState is the state of a source folder lock.
type LockState string

const (
	LockStateFree    LockState = "free"
	LockStateHeld    LockState = "held"
	LockStateExpired LockState = "expired"
)
