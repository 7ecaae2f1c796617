// Package checksum hashes savegame folders and compares the resulting manifests.
package checksum

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"

	"github.com/savekeeper/savekeeper/pkg/errclass"
	"github.com/savekeeper/savekeeper/pkg/model"
)

// maxParallel bounds how many files are hashed at once.
var maxParallel = min(runtime.NumCPU(), 8)

// HashFile returns the hex BLAKE3 digest of a file's content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errclass.ErrIO.WithMessagef("open %s: %v", path, err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errclass.ErrIO.WithMessagef("read %s: %v", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashDirectory hashes every regular file directly inside dir.
// A missing dir, or a path that is not a directory, yields an empty list.
// Entries are returned in name order.
func HashDirectory(dir string) ([]model.FileChecksum, error) {
	names, err := RegularFiles(dir)
	if err != nil {
		return nil, err
	}

	sums := make([]model.FileChecksum, len(names))
	var g errgroup.Group
	g.SetLimit(maxParallel)
	for i, name := range names {
		g.Go(func() error {
			hash, err := HashFile(filepath.Join(dir, name))
			if err != nil {
				return err
			}
			sums[i] = model.FileChecksum{Name: name, Hash: hash}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sums, nil
}

// HashSavegame hashes dir like HashDirectory, leaving out the names a backup reserves.
func HashSavegame(dir string) ([]model.FileChecksum, error) {
	sums, err := HashDirectory(dir)
	if err != nil {
		return nil, err
	}
	out := sums[:0]
	for _, c := range sums {
		if !model.IsReserved(c.Name) {
			out = append(out, c)
		}
	}
	return out, nil
}

// RegularFiles lists the names of regular files directly inside dir, in name order.
// Directories and entries that vanish while listing are skipped.
func RegularFiles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return []string{}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errclass.ErrIO.WithMessagef("read dir %s: %v", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		fi, err := os.Stat(filepath.Join(dir, e.Name()))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, errclass.ErrIO.WithMessagef("stat %s: %v", e.Name(), err)
		}
		if !fi.Mode().IsRegular() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// Compare reports how much of live is already present in target.
// Only live entries are considered; names found solely in target do not affect the verdict.
func Compare(live, target []model.FileChecksum) model.Comparison {
	index := toMap(target)

	matched, unmatched := 0, 0
	for _, c := range live {
		if h, ok := index[c.Name]; ok && h == c.Hash {
			matched++
		} else {
			unmatched++
		}
	}

	switch {
	case unmatched == 0:
		return model.NoDiff
	case matched == 0:
		return model.CompleteDiff
	default:
		return model.PartialDiff
	}
}

// FileStatus is the per-file outcome of Diff.
type FileStatus string

const (
	StatusUnchanged FileStatus = "unchanged"
	StatusModified  FileStatus = "modified"
	StatusAdded     FileStatus = "added"
	StatusMissing   FileStatus = "missing"
)

// FileDiff describes one file in a live versus backup comparison.
type FileDiff struct {
	Name       string     `json:"name"`
	Status     FileStatus `json:"status"`
	LiveHash   string     `json:"live_hash,omitempty"`
	TargetHash string     `json:"target_hash,omitempty"`
}

// Diff lists every file of live and target with its status.
// Live entries come first in live order, followed by target-only entries in target order.
func Diff(live, target []model.FileChecksum) []FileDiff {
	index := toMap(target)
	seen := make(map[string]bool, len(live))

	out := make([]FileDiff, 0, len(live)+len(target))
	for _, c := range live {
		seen[c.Name] = true
		d := FileDiff{Name: c.Name, LiveHash: c.Hash}
		h, ok := index[c.Name]
		switch {
		case !ok:
			d.Status = StatusAdded
		case h == c.Hash:
			d.Status, d.TargetHash = StatusUnchanged, h
		default:
			d.Status, d.TargetHash = StatusModified, h
		}
		out = append(out, d)
	}
	for _, c := range target {
		if seen[c.Name] {
			continue
		}
		out = append(out, FileDiff{Name: c.Name, Status: StatusMissing, TargetHash: c.Hash})
	}
	return out
}

func toMap(sums []model.FileChecksum) map[string]string {
	m := make(map[string]string, len(sums))
	for _, c := range sums {
		m[c.Name] = c.Hash
	}
	return m
}

// Describe renders a comparison for humans.
func Describe(c model.Comparison) string {
	switch c {
	case model.NoDiff:
		return "identical to the live folder"
	case model.PartialDiff:
		return "partially differs from the live folder"
	case model.CompleteDiff:
		return "completely differs from the live folder"
	case model.NotCompared:
		return "not compared with the live folder"
	}
	return fmt.Sprintf("comparison(%d)", int(c))
}
