// Package store persists backups as directories holding copied files and a meta.json manifest.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/savekeeper/savekeeper/internal/checksum"
	"github.com/savekeeper/savekeeper/pkg/errclass"
	"github.com/savekeeper/savekeeper/pkg/fsutil"
	"github.com/savekeeper/savekeeper/pkg/logging"
	"github.com/savekeeper/savekeeper/pkg/model"
	"github.com/savekeeper/savekeeper/pkg/names"
)

// Recycler moves a path to the user's trash.
type Recycler interface {
	MoveToTrash(path string) error
}

// Store reads and writes backups below destination roots.
// Manifests read during the session are cached per destination root.
type Store struct {
	mu            sync.Mutex
	cache         map[string]map[string]*model.SavegameMeta
	trash         Recycler
	thumbnailPath string
	now           func() time.Time
}

// New creates a store. thumbnailPath is where captured screenshots are picked up from.
func New(trash Recycler, thumbnailPath string) *Store {
	return &Store{
		cache:         make(map[string]map[string]*model.SavegameMeta),
		trash:         trash,
		thumbnailPath: thumbnailPath,
		now:           time.Now,
	}
}

// SetClock replaces the time source used for manifest dates.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Path returns the directory of a backup.
func Path(destRoot, name string) string {
	return filepath.Join(destRoot, name)
}

// Create copies every regular file of srcDir into destRoot/name and writes its manifest.
// A failure part way leaves the partial directory behind.
func (s *Store) Create(srcDir, destRoot, name string, attachThumbnail bool) (*model.SavegameMeta, error) {
	defer s.Invalidate(destRoot)

	if err := os.MkdirAll(destRoot, 0755); err != nil {
		return nil, errclass.ErrIO.WithMessagef("create destination %s: %v", destRoot, err)
	}
	backupDir := Path(destRoot, name)
	if err := os.Mkdir(backupDir, 0755); err != nil {
		return nil, errclass.ErrIO.WithMessagef("create backup dir %s: %v", backupDir, err)
	}

	files, err := checksum.RegularFiles(srcDir)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if model.IsReserved(f) {
			logging.Warn("savegame file name is reserved, not backed up", map[string]any{"backup": name, "file": f})
			continue
		}
		if err := fsutil.CopyFile(filepath.Join(srcDir, f), filepath.Join(backupDir, f)); err != nil {
			return nil, errclass.ErrIO.WithMessagef("copy %s: %v", f, err)
		}
	}

	sums, err := checksum.HashSavegame(backupDir)
	if err != nil {
		return nil, err
	}

	if attachThumbnail {
		s.attachThumbnail(backupDir)
	}

	meta := &model.SavegameMeta{
		Name:      name,
		Date:      s.now().UnixMilli(),
		Checksums: sums,
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	if err := fsutil.AtomicWrite(filepath.Join(backupDir, model.MetaFileName), data, 0644); err != nil {
		return nil, errclass.ErrIO.WithMessagef("write manifest: %v", err)
	}

	logging.Debug("backup written", map[string]any{"backup": name, "files": len(sums)})
	return meta, nil
}

func (s *Store) attachThumbnail(backupDir string) {
	if s.thumbnailPath == "" {
		return
	}
	if _, err := os.Stat(s.thumbnailPath); err != nil {
		logging.Warn("no screenshot to attach", map[string]any{"path": s.thumbnailPath})
		return
	}
	if err := fsutil.MoveFile(s.thumbnailPath, filepath.Join(backupDir, model.ThumbnailFileName)); err != nil {
		logging.WarnErr("attach screenshot failed", err, map[string]any{"backup": filepath.Base(backupDir)})
	}
}

// Read loads the manifest of one backup.
func (s *Store) Read(destRoot, name string) (*model.SavegameMeta, error) {
	s.mu.Lock()
	if m, ok := s.cache[destRoot][name]; ok {
		s.mu.Unlock()
		return m.Clone(), nil
	}
	s.mu.Unlock()

	meta, err := readManifest(destRoot, name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	root, ok := s.cache[destRoot]
	if !ok {
		root = make(map[string]*model.SavegameMeta)
		s.cache[destRoot] = root
	}
	root[name] = meta
	s.mu.Unlock()

	return meta.Clone(), nil
}

func readManifest(destRoot, name string) (*model.SavegameMeta, error) {
	data, err := os.ReadFile(filepath.Join(Path(destRoot, name), model.MetaFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errclass.ErrNotFound.WithMessagef("backup %q", name)
		}
		return nil, errclass.ErrIO.WithMessagef("read manifest of %q: %v", name, err)
	}
	var meta model.SavegameMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, errclass.ErrParse.WithMessagef("manifest of %q: %v", name, err)
	}
	meta.Name = name
	return &meta, nil
}

// List returns every readable backup in destRoot, newest first.
func (s *Store) List(destRoot string) ([]*model.SavegameMeta, error) {
	info, err := os.Stat(destRoot)
	if err != nil || !info.IsDir() {
		return nil, errclass.ErrNotFound.WithMessagef("destination %s", destRoot)
	}
	entries, err := os.ReadDir(destRoot)
	if err != nil {
		return nil, errclass.ErrIO.WithMessagef("read destination %s: %v", destRoot, err)
	}

	list := make([]*model.SavegameMeta, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		meta, err := s.Read(destRoot, e.Name())
		if err != nil {
			logging.WarnErr("skipping unreadable backup", err, map[string]any{"backup": e.Name()})
			continue
		}
		list = append(list, meta)
	}
	SortNewestFirst(list)
	return list, nil
}

// SortNewestFirst orders backups by date descending, then by name.
func SortNewestFirst(list []*model.SavegameMeta) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Date != list[j].Date {
			return list[i].Date > list[j].Date
		}
		return list[i].Name < list[j].Name
	})
}

// Rename moves a backup to a new name.
// A missing source or an existing target is a silent no-op.
func (s *Store) Rename(destRoot, oldName, newName string) error {
	newName, err := names.SanitizeBackup(newName)
	if err != nil {
		return err
	}
	oldPath := Path(destRoot, oldName)
	newPath := Path(destRoot, newName)
	if !exists(oldPath) || exists(newPath) {
		return nil
	}

	defer s.Invalidate(destRoot)
	if err := fsutil.RenameAndSync(oldPath, newPath); err != nil {
		return errclass.ErrIO.WithMessagef("rename %q to %q: %v", oldName, newName, err)
	}
	return nil
}

// Delete permanently removes a backup. A missing backup is a no-op.
func (s *Store) Delete(destRoot, name string) error {
	p := Path(destRoot, name)
	if !exists(p) {
		return nil
	}
	defer s.Invalidate(destRoot)
	if err := os.RemoveAll(p); err != nil {
		return errclass.ErrIO.WithMessagef("delete %q: %v", name, err)
	}
	return nil
}

// Recycle moves a backup to the trash. A missing backup is a no-op.
func (s *Store) Recycle(destRoot, name string) error {
	p := Path(destRoot, name)
	if !exists(p) {
		return nil
	}
	defer s.Invalidate(destRoot)
	if err := s.trash.MoveToTrash(p); err != nil {
		return errclass.ErrIO.WithMessagef("recycle %q: %v", name, err)
	}
	return nil
}

// Thumbnail returns the screenshot path of a backup if it has one.
func (s *Store) Thumbnail(destRoot, name string) (string, bool) {
	p := filepath.Join(Path(destRoot, name), model.ThumbnailFileName)
	if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
		return p, true
	}
	return "", false
}

// Invalidate drops every cached manifest of destRoot.
func (s *Store) Invalidate(destRoot string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, destRoot)
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
