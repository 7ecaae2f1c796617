// Package verify re-hashes stored backups and compares them with their manifests.
package verify

import (
	"errors"
	"fmt"

	"github.com/savekeeper/savekeeper/internal/checksum"
	"github.com/savekeeper/savekeeper/internal/store"
	"github.com/savekeeper/savekeeper/pkg/errclass"
	"github.com/savekeeper/savekeeper/pkg/progress"
)

// Result contains verification results for a single backup.
type Result struct {
	Backup         string              `json:"backup"`
	ManifestValid  bool                `json:"manifest_valid"`
	ContentValid   bool                `json:"content_valid"`
	TamperDetected bool                `json:"tamper_detected"`
	Severity       string              `json:"severity,omitempty"`
	Problems       []checksum.FileDiff `json:"problems,omitempty"`
	Error          string              `json:"error,omitempty"`
}

// Verifier checks backups under one destination root.
type Verifier struct {
	store    *store.Store
	destRoot string
	progress progress.Callback
}

// NewVerifier creates a new verifier.
func NewVerifier(s *store.Store, destRoot string) *Verifier {
	return &Verifier{store: s, destRoot: destRoot}
}

// SetProgress installs a callback invoked after each backup VerifyAll checks.
func (v *Verifier) SetProgress(cb progress.Callback) {
	v.progress = cb
}

// VerifyBackup verifies a single backup. Problems with the backup are reported in the
// result; the error is reserved for failures unrelated to the backup's contents.
func (v *Verifier) VerifyBackup(name string) (*Result, error) {
	result := &Result{Backup: name}

	meta, err := v.store.Read(v.destRoot, name)
	if err != nil {
		result.Error = err.Error()
		result.TamperDetected = true
		result.Severity = "critical"
		return result, nil
	}
	result.ManifestValid = true

	stored, err := checksum.HashSavegame(store.Path(v.destRoot, name))
	if err != nil {
		result.Error = fmt.Sprintf("hash backup: %v", err)
		result.Severity = "error"
		return result, nil
	}

	for _, d := range checksum.Diff(stored, meta.Checksums) {
		if d.Status != checksum.StatusUnchanged {
			result.Problems = append(result.Problems, d)
		}
	}
	result.ContentValid = len(result.Problems) == 0
	if !result.ContentValid {
		result.TamperDetected = true
		result.Severity = "critical"
		result.Error = fmt.Sprintf("%d file(s) differ from manifest", len(result.Problems))
	}
	return result, nil
}

// VerifyAll verifies every backup in the destination root, newest first.
// A missing destination yields no results.
func (v *Verifier) VerifyAll() ([]*Result, error) {
	list, err := v.store.List(v.destRoot)
	if err != nil {
		if errors.Is(err, errclass.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	p := progress.New("verify", len(list), v.progress)
	results := make([]*Result, 0, len(list))
	for _, meta := range list {
		r, err := v.VerifyBackup(meta.Name)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
		p.Increment(meta.Name)
	}
	return results, nil
}
