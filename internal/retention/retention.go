// Package retention bounds the number of temporary and automatic backups kept in a destination.
package retention

import (
	"errors"
	"strings"

	"github.com/savekeeper/savekeeper/internal/store"
	"github.com/savekeeper/savekeeper/pkg/errclass"
	"github.com/savekeeper/savekeeper/pkg/logging"
	"github.com/savekeeper/savekeeper/pkg/model"
)

// Store is the subset of the backup store the policy needs.
type Store interface {
	List(destRoot string) ([]*model.SavegameMeta, error)
	Delete(destRoot, name string) error
	Rename(destRoot, oldName, newName string) error
}

// Result reports what a policy step changed.
type Result struct {
	Deleted []string          `json:"deleted,omitempty"`
	Renamed map[string]string `json:"renamed,omitempty"`
}

// DeletedByKind counts deleted backups per kind name.
func (r Result) DeletedByKind() map[string]int {
	out := make(map[string]int)
	for _, name := range r.Deleted {
		out[model.KindOf(name).String()]++
	}
	return out
}

// Empty reports whether nothing changed.
func (r Result) Empty() bool {
	return len(r.Deleted) == 0 && len(r.Renamed) == 0
}

// Policy applies retention rules. Deletions are permanent and failures are logged, never returned.
type Policy struct {
	store Store
	log   *logging.Logger
}

// New creates a policy over s.
func New(s Store) *Policy {
	return &Policy{store: s, log: logging.WithFields(map[string]any{"component": "retention"})}
}

// BeforeKeeper runs before a keeper backup is written: every temporary backup goes.
func (p *Policy) BeforeKeeper(destRoot string) Result {
	return p.dropTemps(destRoot)
}

// BeforeTemp runs before a temporary backup is written: the previous temporary backup goes.
func (p *Policy) BeforeTemp(destRoot string) Result {
	return p.dropTemps(destRoot)
}

func (p *Policy) dropTemps(destRoot string) Result {
	var res Result
	for _, m := range p.list(destRoot) {
		if m.IsTemp() {
			p.delete(destRoot, m.Name, &res)
		}
	}
	return res
}

// BeforeAuto runs before an automatic backup is written. It keeps the max-1 newest automatic
// backups so the new one brings the total to max, and drops every temporary backup.
// With max 0 every existing automatic backup is removed.
func (p *Policy) BeforeAuto(destRoot string, max uint) Result {
	var res Result
	var autos uint
	for _, m := range p.list(destRoot) {
		switch m.Kind() {
		case model.KindTemp:
			p.delete(destRoot, m.Name, &res)
		case model.KindAuto:
			autos++
			if autos >= max {
				p.delete(destRoot, m.Name, &res)
			}
		}
	}
	return res
}

// OnExit promotes the newest temporary backup to an exit backup with the same timestamp
// and drops the other temporary backups.
func (p *Policy) OnExit(destRoot string) Result {
	var res Result
	promoted := false
	for _, m := range p.list(destRoot) {
		if !m.IsTemp() {
			continue
		}
		if promoted {
			p.delete(destRoot, m.Name, &res)
			continue
		}
		promoted = true
		exitName := ExitName(m.Name)
		if err := p.store.Rename(destRoot, m.Name, exitName); err != nil {
			p.log.WarnErr("promote temporary backup failed", err, map[string]any{"backup": m.Name})
			continue
		}
		res.Renamed = map[string]string{m.Name: exitName}
	}
	return res
}

// ExitName maps temp_<timestamp> to exit_<timestamp>.
func ExitName(tempName string) string {
	return model.PrefixExit + strings.TrimPrefix(tempName, model.PrefixTemp)
}

func (p *Policy) list(destRoot string) []*model.SavegameMeta {
	list, err := p.store.List(destRoot)
	if errors.Is(err, errclass.ErrNotFound) {
		return nil
	}
	if err != nil {
		p.log.WarnErr("list backups failed", err, map[string]any{"destination": destRoot})
		return nil
	}
	store.SortNewestFirst(list)
	return list
}

func (p *Policy) delete(destRoot, name string, res *Result) {
	if err := p.store.Delete(destRoot, name); err != nil {
		p.log.WarnErr("delete backup failed", err, map[string]any{"backup": name})
		return
	}
	p.log.Debug("retention removed backup", map[string]any{"backup": name})
	res.Deleted = append(res.Deleted, name)
}
