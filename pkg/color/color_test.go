package color

import (
	"strings"
	"testing"
)

func restore(t *testing.T) {
	enabled, overridden := state.enabled.Load(), state.overridden.Load()
	t.Cleanup(func() {
		state.enabled.Store(enabled)
		state.overridden.Store(overridden)
	})
}

func TestEnableDisable(t *testing.T) {
	restore(t)

	Enable()
	if !Enabled() {
		t.Error("expected colors to be enabled after Enable()")
	}

	Disable()
	if Enabled() {
		t.Error("expected colors to be disabled after Disable()")
	}
}

func TestColorFuncs(t *testing.T) {
	restore(t)
	Enable()

	tests := []struct {
		name string
		fn   func(string) string
		code string
	}{
		{"Redf", Redf, Red},
		{"Greenf", Greenf, Green},
		{"Yellowf", Yellowf, Yellow},
		{"Cyanf", Cyanf, Cyan},
		{"Dimf", Dimf, DimCode},
		{"Success", Success, Green},
		{"Error", Error, Red},
		{"Warning", Warning, Yellow},
		{"Header", Header, Bold},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.fn("text")
			if !strings.HasPrefix(got, tt.code) || !strings.HasSuffix(got, Reset) {
				t.Errorf("%s(\"text\") = %q", tt.name, got)
			}
		})
	}
}

func TestDisabledIsPlain(t *testing.T) {
	restore(t)
	Disable()

	for _, s := range []string{Redf("x"), Code("x"), Backup("auto_2024-01-01_10-00-00"), Severity("critical")} {
		if strings.Contains(s, "\033[") {
			t.Errorf("expected no escape codes, got %q", s)
		}
	}
}

func TestBackupByKind(t *testing.T) {
	restore(t)
	Enable()

	cases := map[string]string{
		"before boss":              Cyan,
		"auto_2024-01-01_10-00-00": Blue,
		"exit_2024-01-01_10-00-00": Magenta,
		"temp_2024-01-01_10-00-00": Gray,
	}
	for name, code := range cases {
		if got := Backup(name); !strings.Contains(got, code) {
			t.Errorf("Backup(%q) = %q, want code %q", name, got, code)
		}
	}
}

func TestSeverity(t *testing.T) {
	restore(t)
	Enable()

	if got := Severity("critical"); !strings.HasPrefix(got, Red) {
		t.Errorf("critical = %q", got)
	}
	if got := Severity("warning"); !strings.HasPrefix(got, Yellow) {
		t.Errorf("warning = %q", got)
	}
	if got := Severity("info"); !strings.HasPrefix(got, DimCode) {
		t.Errorf("info = %q", got)
	}
}
