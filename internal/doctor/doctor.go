// Package doctor inspects a profile's folders and the journal for problems.
package doctor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/savekeeper/savekeeper/internal/journal"
	"github.com/savekeeper/savekeeper/internal/store"
	"github.com/savekeeper/savekeeper/internal/verify"
	"github.com/savekeeper/savekeeper/pkg/config"
	"github.com/savekeeper/savekeeper/pkg/fsutil"
	"github.com/savekeeper/savekeeper/pkg/model"
)

// Finding represents a detected issue.
type Finding struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Path        string `json:"path,omitempty"`
}

// Result contains doctor check results.
type Result struct {
	Profile  string    `json:"profile"`
	Healthy  bool      `json:"healthy"`
	Findings []Finding `json:"findings"`
}

func (r *Result) add(f Finding) {
	r.Findings = append(r.Findings, f)
	if f.Severity == "critical" || f.Severity == "error" {
		r.Healthy = false
	}
}

// Doctor performs profile health checks.
type Doctor struct {
	profile *config.Profile
	store   *store.Store
	journal *journal.Journal
}

// NewDoctor creates a new doctor. j may be nil to skip the journal check.
func NewDoctor(p *config.Profile, s *store.Store, j *journal.Journal) *Doctor {
	return &Doctor{profile: p, store: s, journal: j}
}

// Check runs all diagnostic checks. strict also re-hashes every backup.
func (d *Doctor) Check(strict bool) (*Result, error) {
	result := &Result{Profile: d.profile.Name, Healthy: true}

	d.checkPaths(result)
	d.checkPartialBackups(result)
	d.checkOrphanTmp(result)
	if strict {
		d.checkBackupIntegrity(result)
	}
	d.checkJournal(result)

	return result, nil
}

func (d *Doctor) checkPaths(result *Result) {
	p := d.profile
	if err := p.Ready(); err != nil {
		result.add(Finding{Category: "profile", Description: err.Error(), Severity: "error"})
		return
	}

	if info, err := os.Stat(p.Source); err != nil {
		result.add(Finding{
			Category:    "profile",
			Description: "savegame folder missing or unreadable",
			Severity:    "error",
			Path:        p.Source,
		})
	} else if !info.IsDir() {
		result.add(Finding{
			Category:    "profile",
			Description: "savegame path is not a directory",
			Severity:    "error",
			Path:        p.Source,
		})
	}

	if info, err := os.Stat(p.Destination); err != nil {
		result.add(Finding{
			Category:    "profile",
			Description: "backup folder does not exist yet, it is created on the first backup",
			Severity:    "info",
			Path:        p.Destination,
		})
	} else if !info.IsDir() {
		result.add(Finding{
			Category:    "profile",
			Description: "backup path is not a directory",
			Severity:    "error",
			Path:        p.Destination,
		})
	}

	if within(p.Destination, p.Source) {
		result.add(Finding{
			Category:    "profile",
			Description: "backup folder is inside the savegame folder",
			Severity:    "warning",
			Path:        p.Destination,
		})
	}
}

func within(path, dir string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (d *Doctor) checkPartialBackups(result *Result) {
	entries, err := os.ReadDir(d.profile.Destination)
	if err != nil {
		return // nothing backed up yet
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		metaPath := filepath.Join(d.profile.Destination, e.Name(), model.MetaFileName)
		if _, err := os.Stat(metaPath); errors.Is(err, os.ErrNotExist) {
			result.add(Finding{
				Category:    "backup",
				Description: fmt.Sprintf("backup '%s' has no manifest (interrupted copy?)", e.Name()),
				Severity:    "warning",
				Path:        filepath.Join(d.profile.Destination, e.Name()),
			})
		}
	}
}

func (d *Doctor) checkOrphanTmp(result *Result) {
	filepath.WalkDir(d.profile.Destination, func(path string, e os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !e.IsDir() && fsutil.IsTempName(e.Name()) {
			result.add(Finding{
				Category:    "tmp",
				Description: fmt.Sprintf("orphan temp file: %s", e.Name()),
				Severity:    "info",
				Path:        path,
			})
		}
		return nil
	})
}

func (d *Doctor) checkBackupIntegrity(result *Result) {
	results, err := verify.NewVerifier(d.store, d.profile.Destination).VerifyAll()
	if err != nil {
		result.add(Finding{
			Category:    "integrity",
			Description: fmt.Sprintf("verification failed: %v", err),
			Severity:    "error",
		})
		return
	}

	for _, r := range results {
		if r.TamperDetected {
			result.add(Finding{
				Category:    "integrity",
				Description: fmt.Sprintf("backup %s: %s", r.Backup, r.Error),
				Severity:    "critical",
				Path:        store.Path(d.profile.Destination, r.Backup),
			})
		}
	}
}

func (d *Doctor) checkJournal(result *Result) {
	if d.journal == nil {
		return
	}
	if _, err := d.journal.Verify(); err != nil {
		result.add(Finding{
			Category:    "journal",
			Description: err.Error(),
			Severity:    "critical",
			Path:        d.journal.Path(),
		})
	}
}
