// Package backup orchestrates classification, retention and the backup store for a profile.
package backup

import (
	"errors"
	"time"

	"github.com/savekeeper/savekeeper/internal/checksum"
	"github.com/savekeeper/savekeeper/internal/classify"
	"github.com/savekeeper/savekeeper/internal/journal"
	"github.com/savekeeper/savekeeper/internal/restore"
	"github.com/savekeeper/savekeeper/internal/retention"
	"github.com/savekeeper/savekeeper/internal/store"
	"github.com/savekeeper/savekeeper/pkg/config"
	"github.com/savekeeper/savekeeper/pkg/errclass"
	"github.com/savekeeper/savekeeper/pkg/logging"
	"github.com/savekeeper/savekeeper/pkg/metrics"
	"github.com/savekeeper/savekeeper/pkg/model"
)

// Manager performs backup operations on behalf of profiles.
// Journal and metrics are optional.
type Manager struct {
	store   *store.Store
	policy  *retention.Policy
	journal *journal.Journal
	metrics *metrics.Registry
	log     *logging.Logger
	now     func() time.Time
}

// NewManager creates a manager over s.
func NewManager(s *store.Store, j *journal.Journal, reg *metrics.Registry) *Manager {
	return &Manager{
		store:   s,
		policy:  retention.New(s),
		journal: j,
		metrics: reg,
		log:     logging.WithFields(map[string]any{"component": "backup"}),
		now:     time.Now,
	}
}

// SetClock replaces the time source for names and classification.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
	m.store.SetClock(now)
}

// Store exposes the underlying store for read-only callers.
func (m *Manager) Store() *store.Store {
	return m.store
}

// Name returns the backup name for kind at t.
func Name(kind model.Kind, t time.Time) string {
	return model.BackupName(kind, t)
}

// Settings extracts the classification settings of a profile.
func Settings(p *config.Profile) classify.Settings {
	return classify.Settings{
		ManualSaveDetection:   p.ManualSaveDetection,
		AutoSavesInterval:     p.AutoSavesInterval,
		AutoSavesIntervalUnit: p.AutoSavesIntervalUnit,
		AutoSavesMax:          p.AutoSavesMax,
	}
}

// Outcome is the result of Run.
type Outcome struct {
	Decision  classify.Decision   `json:"decision"`
	Backup    *model.SavegameMeta `json:"backup,omitempty"`
	Retention retention.Result    `json:"retention"`
}

// CreateKeeper drops temporary backups and writes a keeper.
func (m *Manager) CreateKeeper(p *config.Profile, attachThumbnail bool) (*model.SavegameMeta, error) {
	meta, _, err := m.create(p, model.KindKeeper, attachThumbnail)
	return meta, err
}

// CreateTemp replaces the temporary backup.
func (m *Manager) CreateTemp(p *config.Profile, attachThumbnail bool) (*model.SavegameMeta, error) {
	meta, _, err := m.create(p, model.KindTemp, attachThumbnail)
	return meta, err
}

// CreateAuto rotates automatic backups and writes a new one.
func (m *Manager) CreateAuto(p *config.Profile, attachThumbnail bool) (*model.SavegameMeta, error) {
	meta, _, err := m.create(p, model.KindAuto, attachThumbnail)
	return meta, err
}

// Create writes a backup of the given kind after applying the matching retention step.
func (m *Manager) Create(p *config.Profile, kind model.Kind, attachThumbnail bool) (*model.SavegameMeta, retention.Result, error) {
	return m.create(p, kind, attachThumbnail)
}

func (m *Manager) create(p *config.Profile, kind model.Kind, attachThumbnail bool) (*model.SavegameMeta, retention.Result, error) {
	if err := p.Ready(); err != nil {
		return nil, retention.Result{}, err
	}

	if kind == model.KindAuto && p.AutoSavesMax == 0 {
		return nil, retention.Result{}, errclass.ErrConfigInvalid.WithMessagef("profile %q keeps no automatic backups (auto_saves_max is 0)", p.Name)
	}

	var res retention.Result
	switch kind {
	case model.KindKeeper:
		res = m.policy.BeforeKeeper(p.Destination)
	case model.KindTemp:
		res = m.policy.BeforeTemp(p.Destination)
	case model.KindAuto:
		res = m.policy.BeforeAuto(p.Destination, p.AutoSavesMax)
	}
	m.recordRetention(p, res)

	name := Name(kind, m.now())
	start := time.Now()
	meta, err := m.store.Create(p.Source, p.Destination, name, attachThumbnail)
	if m.metrics != nil {
		m.metrics.RecordBackup(kind.String(), err == nil, time.Since(start))
	}
	if err != nil {
		return nil, res, err
	}

	m.log.Info("backup created", map[string]any{"profile": p.Name, "backup": name, "kind": kind.String(), "files": len(meta.Checksums)})
	m.append(model.EventBackupCreate, p.Name, name, map[string]any{
		"kind":      kind.String(),
		"files":     len(meta.Checksums),
		"thumbnail": attachThumbnail,
	})
	return meta, res, nil
}

// Run hashes the live folder, classifies it and writes the backup it deserves, if any.
func (m *Manager) Run(p *config.Profile, attachThumbnail bool) (*Outcome, error) {
	if err := p.Ready(); err != nil {
		return nil, err
	}
	live, err := m.hashLive(p)
	if err != nil {
		return nil, err
	}
	list, err := m.list(p)
	if err != nil {
		return nil, err
	}

	decision := classify.Decide(Settings(p), live, classify.LatestNonTemp(list), m.now())
	if decision.Kind == model.KindAuto && p.AutoSavesMax == 0 {
		decision.Kind = model.KindTemp
		decision.Reason += "; automatic backups are disabled"
	}
	out := &Outcome{Decision: decision}
	if decision.Skip {
		m.log.Debug("no backup needed", map[string]any{"profile": p.Name, "reason": decision.Reason})
		if m.metrics != nil {
			m.metrics.RecordSkip()
		}
		return out, nil
	}

	meta, res, err := m.create(p, decision.Kind, attachThumbnail)
	out.Retention = res
	if err != nil {
		return out, err
	}
	out.Backup = meta
	return out, nil
}

// List returns the backups of a profile, newest first. A destination that does not exist yet is empty.
func (m *Manager) List(p *config.Profile) ([]*model.SavegameMeta, error) {
	return m.list(p)
}

func (m *Manager) list(p *config.Profile) ([]*model.SavegameMeta, error) {
	list, err := m.store.List(p.Destination)
	if errors.Is(err, errclass.ErrNotFound) {
		return nil, nil
	}
	return list, err
}

func (m *Manager) hashLive(p *config.Profile) ([]model.FileChecksum, error) {
	start := time.Now()
	live, err := checksum.HashSavegame(p.Source)
	if m.metrics != nil && err == nil {
		m.metrics.RecordHash(time.Since(start))
	}
	return live, err
}

// Current returns the newest backup identical to the live folder, or nil.
func (m *Manager) Current(p *config.Profile) (*model.SavegameMeta, error) {
	live, err := m.hashLive(p)
	if err != nil {
		return nil, err
	}
	list, err := m.list(p)
	if err != nil {
		return nil, err
	}
	return matching(live, list), nil
}

func matching(live []model.FileChecksum, list []*model.SavegameMeta) *model.SavegameMeta {
	for _, b := range list {
		if checksum.Compare(live, b.Checksums) == model.NoDiff {
			return b
		}
	}
	return nil
}

// EnsureCurrent returns the current backup, running a backup first when none matches.
// created reports whether a new backup was written.
func (m *Manager) EnsureCurrent(p *config.Profile, attachThumbnail bool) (meta *model.SavegameMeta, created bool, err error) {
	cur, err := m.Current(p)
	if err != nil || cur != nil {
		return cur, false, err
	}
	out, err := m.Run(p, attachThumbnail)
	if err != nil {
		return nil, false, err
	}
	if out.Backup != nil {
		return out.Backup, true, nil
	}
	cur, err = m.Current(p)
	return cur, false, err
}

// Exit promotes the latest temporary backup to an exit backup and drops the rest.
func (m *Manager) Exit(p *config.Profile) retention.Result {
	res := m.policy.OnExit(p.Destination)
	m.recordRetention(p, res)
	for from, to := range res.Renamed {
		m.log.Info("temporary backup kept as exit backup", map[string]any{"profile": p.Name, "from": from, "to": to})
		m.append(model.EventExit, p.Name, to, map[string]any{"from": from})
	}
	return res
}

// Rename renames a backup of the profile.
func (m *Manager) Rename(p *config.Profile, oldName, newName string) error {
	if err := m.store.Rename(p.Destination, oldName, newName); err != nil {
		return err
	}
	m.append(model.EventBackupRename, p.Name, oldName, map[string]any{"to": newName})
	return nil
}

// Delete removes a backup, to the trash unless permanent is set.
func (m *Manager) Delete(p *config.Profile, name string, permanent bool) error {
	if permanent {
		if err := m.store.Delete(p.Destination, name); err != nil {
			return err
		}
		m.append(model.EventBackupDelete, p.Name, name, nil)
		return nil
	}
	if err := m.store.Recycle(p.Destination, name); err != nil {
		return err
	}
	m.append(model.EventBackupRecycle, p.Name, name, nil)
	return nil
}

// Restore puts a backup back into the profile's source folder. guard must be paused.
func (m *Manager) Restore(p *config.Profile, guard restore.Guard, name string) (*restore.Result, error) {
	meta, err := m.store.Read(p.Destination, name)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := restore.Restore(guard, p.Source, p.Destination, meta)
	if m.metrics != nil {
		m.metrics.RecordRestore(err == nil, res != nil && res.Changed, time.Since(start))
	}
	if err != nil {
		return res, err
	}
	if res.Changed {
		m.log.Info("backup restored", map[string]any{"profile": p.Name, "backup": name, "files": len(res.Copied)})
		m.append(model.EventRestore, p.Name, name, map[string]any{"deleted": res.Deleted, "copied": res.Copied})
	}
	return res, nil
}

func (m *Manager) recordRetention(p *config.Profile, res retention.Result) {
	if res.Empty() {
		return
	}
	if m.metrics != nil {
		m.metrics.RecordRetention(res.DeletedByKind(), len(res.Renamed))
	}
	if len(res.Deleted) > 0 {
		m.append(model.EventRetention, p.Name, "", map[string]any{"deleted": res.Deleted})
	}
}

func (m *Manager) append(event model.JournalEventType, profile, backup string, details map[string]any) {
	if m.journal == nil {
		return
	}
	if err := m.journal.Append(event, profile, backup, details); err != nil {
		m.log.WarnErr("journal append failed", err, map[string]any{"event": string(event)})
	}
}

// Read returns the manifest of one backup of the profile.
func (m *Manager) Read(p *config.Profile, name string) (*model.SavegameMeta, error) {
	return m.store.Read(p.Destination, name)
}
