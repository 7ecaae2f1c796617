package model

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies the role of a backup. It is derived from the backup name prefix.
type Kind int

const (
	KindKeeper Kind = iota
	KindTemp
	KindAuto
	KindExit
)

// Name prefixes, kept byte-for-byte for on-disk compatibility.
const (
	PrefixTemp = "temp_"
	PrefixAuto = "auto_"
	PrefixExit = "exit_"
)

// Prefix returns the name prefix for the kind (empty for keepers).
func (k Kind) Prefix() string {
	switch k {
	case KindTemp:
		return PrefixTemp
	case KindAuto:
		return PrefixAuto
	case KindExit:
		return PrefixExit
	default:
		return ""
	}
}

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindKeeper:
		return "keeper"
	case KindTemp:
		return "temp"
	case KindAuto:
		return "auto"
	case KindExit:
		return "exit"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText accepts the names ParseKind accepts.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// KindOf infers the kind of a backup from its name.
func KindOf(name string) Kind {
	switch {
	case strings.HasPrefix(name, PrefixTemp):
		return KindTemp
	case strings.HasPrefix(name, PrefixAuto):
		return KindAuto
	case strings.HasPrefix(name, PrefixExit):
		return KindExit
	default:
		return KindKeeper
	}
}

// ParseKind parses a kind name as printed by Kind.String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "keeper", "keep":
		return KindKeeper, nil
	case "temp", "temporary":
		return KindTemp, nil
	case "auto", "automatic":
		return KindAuto, nil
	case "exit":
		return KindExit, nil
	}
	return 0, fmt.Errorf("unknown backup kind %q", s)
}

// NameLayout is the timestamp part of every backup name.
const NameLayout = "2006-01-02_15-04-05"

// BackupName builds the on-disk name for a backup of the given kind taken at t (local time).
func BackupName(kind Kind, t time.Time) string {
	return kind.Prefix() + t.Local().Format(NameLayout)
}

// Comparison is the verdict of comparing a live checksum list against a target list.
type Comparison int

const (
	NoDiff Comparison = iota
	PartialDiff
	CompleteDiff
	// NotCompared marks a decision taken without comparing against a backup.
	NotCompared
)

func (c Comparison) String() string {
	switch c {
	case NoDiff:
		return "no-diff"
	case PartialDiff:
		return "partial-diff"
	case CompleteDiff:
		return "complete-diff"
	case NotCompared:
		return "not-compared"
	default:
		return "unknown"
	}
}

// MarshalText encodes the comparison by name.
func (c Comparison) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// BackupState drives whether a new backup may be started.
type BackupState int32

const (
	BackupIdle BackupState = iota
	BackupBusy
	BackupFinished
)

func (s BackupState) String() string {
	switch s {
	case BackupIdle:
		return "idle"
	case BackupBusy:
		return "busy"
	case BackupFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// ScreenshotState tracks thumbnail capture for the pending backup.
type ScreenshotState int32

const (
	ScreenshotIdle ScreenshotState = iota
	ScreenshotBusy
	ScreenshotFinished
	ScreenshotError
)

func (s ScreenshotState) String() string {
	switch s {
	case ScreenshotIdle:
		return "idle"
	case ScreenshotBusy:
		return "busy"
	case ScreenshotFinished:
		return "finished"
	case ScreenshotError:
		return "error"
	default:
		return "unknown"
	}
}

// IntervalUnit is the unit of the automatic backup interval.
type IntervalUnit string

const (
	UnitSeconds IntervalUnit = "seconds"
	UnitMinutes IntervalUnit = "minutes"
	UnitHours   IntervalUnit = "hours"
)

// Valid reports whether u is a known unit.
func (u IntervalUnit) Valid() bool {
	switch u {
	case UnitSeconds, UnitMinutes, UnitHours:
		return true
	}
	return false
}

// Interval converts an interval value and unit into a duration.
// Unknown units are treated as minutes.
func Interval(value uint, unit IntervalUnit) time.Duration {
	switch unit {
	case UnitSeconds:
		return time.Duration(value) * time.Second
	case UnitHours:
		return time.Duration(value) * time.Hour
	default:
		return time.Duration(value) * time.Minute
	}
}
