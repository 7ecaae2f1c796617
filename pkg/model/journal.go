package model

import "time"

// JournalEventType identifies the type of store mutation recorded in the journal.
type JournalEventType string

const (
	EventBackupCreate  JournalEventType = "backup_create"
	EventBackupRename  JournalEventType = "backup_rename"
	EventBackupDelete  JournalEventType = "backup_delete"
	EventBackupRecycle JournalEventType = "backup_recycle"
	EventRestore       JournalEventType = "restore"
	EventRetention     JournalEventType = "retention"
	EventExit          JournalEventType = "exit"
)

// JournalRecord is a single line in the journal (JSONL format).
type JournalRecord struct {
	ID         string           `json:"id"`
	Timestamp  time.Time        `json:"timestamp"`
	EventType  JournalEventType `json:"event_type"`
	Profile    string           `json:"profile,omitempty"`
	Backup     string           `json:"backup,omitempty"`
	Details    map[string]any   `json:"details,omitempty"`
	PrevHash   string           `json:"prev_hash"`
	RecordHash string           `json:"record_hash"`
}
