// Package restore puts the files of a backup back into the savegame folder.
package restore

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/savekeeper/savekeeper/internal/checksum"
	"github.com/savekeeper/savekeeper/internal/store"
	"github.com/savekeeper/savekeeper/pkg/errclass"
	"github.com/savekeeper/savekeeper/pkg/fsutil"
	"github.com/savekeeper/savekeeper/pkg/model"
)

// Guard exposes the pause flag that keeps the watcher from reacting to restored files.
type Guard interface {
	Paused() bool
}

// Result describes the file operations a restore performed.
type Result struct {
	Changed bool     `json:"changed"`
	Deleted []string `json:"deleted,omitempty"`
	Copied  []string `json:"copied,omitempty"`
}

// Restore replaces the regular files of srcDir with the files recorded in meta.
// The caller must hold the pause guard. A folder that already matches is left untouched.
// Failures are not rolled back.
func Restore(guard Guard, srcDir, destRoot string, meta *model.SavegameMeta) (*Result, error) {
	if guard == nil || !guard.Paused() {
		return nil, errclass.ErrConcurrencyViolation.WithMessage("restore requires change tracking to be paused")
	}

	live, err := checksum.HashSavegame(srcDir)
	if err != nil {
		return nil, err
	}
	res := &Result{}
	if checksum.Compare(live, meta.Checksums) == model.NoDiff {
		return res, nil
	}
	res.Changed = true

	for _, c := range live {
		if err := os.Remove(filepath.Join(srcDir, c.Name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return res, errclass.ErrIO.WithMessagef("remove %s: %v", c.Name, err)
		}
		res.Deleted = append(res.Deleted, c.Name)
	}

	if err := os.MkdirAll(srcDir, 0755); err != nil {
		return res, errclass.ErrIO.WithMessagef("create %s: %v", srcDir, err)
	}
	backupDir := store.Path(destRoot, meta.Name)
	for _, c := range meta.Checksums {
		if err := fsutil.CopyFile(filepath.Join(backupDir, c.Name), filepath.Join(srcDir, c.Name)); err != nil {
			return res, errclass.ErrIO.WithMessagef("restore %s: %v", c.Name, err)
		}
		res.Copied = append(res.Copied, c.Name)
	}
	return res, nil
}
