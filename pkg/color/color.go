// Package color provides terminal color output for the savekeeper CLI.
// It respects the NO_COLOR environment variable (https://no-color.org/).
package color

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/savekeeper/savekeeper/pkg/model"
)

var state struct {
	once       sync.Once
	enabled    atomic.Bool
	overridden atomic.Bool
}

// Init decides from the environment and the --no-color flag whether to emit colors.
// An earlier Enable or Disable call wins.
func Init(noColorFlag bool) {
	state.once.Do(func() {
		if state.overridden.Load() {
			return
		}
		_, noColor := os.LookupEnv("NO_COLOR")
		dumb := os.Getenv("TERM") == "dumb"
		state.enabled.Store(!noColor && !dumb && !noColorFlag)
	})
}

// Enabled returns true if color output is enabled.
func Enabled() bool {
	Init(false)
	return state.enabled.Load()
}

// Disable turns off color output.
func Disable() {
	state.overridden.Store(true)
	state.enabled.Store(false)
}

// Enable turns on color output.
func Enable() {
	state.overridden.Store(true)
	state.enabled.Store(true)
}

// ANSI codes
const (
	Reset   = "\033[0m"
	Bold    = "\033[1m"
	DimCode = "\033[2m"

	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
	Gray    = "\033[90m"
)

func makeColorFunc(code string) func(string) string {
	return func(s string) string {
		if !Enabled() {
			return s
		}
		return code + s + Reset
	}
}

var (
	Redf     = makeColorFunc(Red)
	Greenf   = makeColorFunc(Green)
	Yellowf  = makeColorFunc(Yellow)
	Bluef    = makeColorFunc(Blue)
	Magentaf = makeColorFunc(Magenta)
	Cyanf    = makeColorFunc(Cyan)
	Grayf    = makeColorFunc(Gray)
	Boldf    = makeColorFunc(Bold)
	Dimf     = makeColorFunc(DimCode)
)

// Success formats a success message in green.
func Success(s string) string {
	return Greenf(s)
}

// Successf formats a success message with printf-style arguments.
func Successf(format string, args ...any) string {
	return Greenf(fmt.Sprintf(format, args...))
}

// Error formats an error message in red.
func Error(s string) string {
	return Redf(s)
}

// Warning formats a warning message in yellow.
func Warning(s string) string {
	return Yellowf(s)
}

// Header formats a header in bold.
func Header(s string) string {
	return Boldf(s)
}

// Dim formats secondary information.
func Dim(s string) string {
	return Dimf(s)
}

// Code formats command strings (bold + dim).
func Code(s string) string {
	if !Enabled() {
		return s
	}
	return Bold + DimCode + s + Reset
}

// Backup colors a backup name by its kind: keepers stand out, rotating kinds recede.
func Backup(name string) string {
	switch model.KindOf(name) {
	case model.KindKeeper:
		return Boldf(Cyanf(name))
	case model.KindAuto:
		return Bluef(name)
	case model.KindExit:
		return Magentaf(name)
	default:
		return Grayf(name)
	}
}

// Severity colors a doctor or verify severity label.
func Severity(s string) string {
	switch s {
	case "critical", "error":
		return Redf(s)
	case "warning":
		return Yellowf(s)
	default:
		return Dimf(s)
	}
}
