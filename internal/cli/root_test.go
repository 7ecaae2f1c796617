package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savekeeper/savekeeper/pkg/color"
	"github.com/savekeeper/savekeeper/pkg/config"
	"github.com/savekeeper/savekeeper/pkg/errclass"
	"github.com/savekeeper/savekeeper/pkg/logging"
	"github.com/savekeeper/savekeeper/pkg/model"
)

func executeCommand(root *cobra.Command, args ...string) (stdout string, err error) {
	// Capture os.Stdout since CLI uses fmt.Printf directly
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		io.Copy(&buf, r)
		done <- buf.String()
	}()

	root.SetArgs(args)
	err = root.Execute()

	w.Close()
	os.Stdout = oldStdout
	return <-done, err
}

func createTestRootCmd() *cobra.Command {
	jsonOutput, configPath, profileName, logLevel, noColor = false, "", "", "", false
	backupKind, backupScreenshot = "", false
	deletePermanent, diffAll, doctorStrict = false, false, false
	historyLimit, historyEvent, historyBackup, historySince, historyAllProfiles = 0, "", "", 0, false
	profileAddSource, profileAddDestination = "", ""
	color.Disable()

	cmd := &cobra.Command{
		Use:           "savekeeper",
		Short:         rootCmd.Short,
		Long:          rootCmd.Long,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file")
	cmd.PersistentFlags().StringVarP(&profileName, "profile", "p", "", "profile to use")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	cmd.AddCommand(listCmd, showCmd, backupCmd, restoreCmd, renameCmd, deleteCmd, diffCmd,
		verifyCmd, doctorCmd, historyCmd, exitCmd, profileCmd)
	return cmd
}

type fixture struct {
	cfg    string
	source string
	dest   string
}

func setupProfile(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		cfg:    filepath.Join(root, "config", "config.yaml"),
		source: filepath.Join(root, "saves"),
		dest:   filepath.Join(root, "backups"),
	}
	require.NoError(t, os.MkdirAll(f.source, 0755))
	writeSave(t, f, "slot1.sav", "level 1")
	writeSave(t, f, "slot2.sav", "level 1")

	cfg := config.Default()
	cfg.ScreenshotPath = filepath.Join(root, "shot.jpg")
	cfg.Logging.Level = "error"
	cfg.Profiles[0].Source = f.source
	cfg.Profiles[0].Destination = f.dest
	require.NoError(t, config.Save(f.cfg, cfg))
	return f
}

func writeSave(t *testing.T, f *fixture, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.source, name), []byte(content), 0644))
}

func (f *fixture) run(t *testing.T, args ...string) string {
	t.Helper()
	out, err := executeCommand(createTestRootCmd(), append([]string{"--config", f.cfg}, args...)...)
	require.NoError(t, err)
	return out
}

func (f *fixture) list(t *testing.T) []backupEntry {
	t.Helper()
	var entries []backupEntry
	require.NoError(t, json.Unmarshal([]byte(f.run(t, "--json", "list")), &entries))
	return entries
}

// firstKeeper creates the initial keeper and renames it so later backups cannot collide with its name.
func (f *fixture) firstKeeper(t *testing.T) {
	t.Helper()
	f.run(t, "backup")
	entries := f.list(t)
	require.Len(t, entries, 1)
	f.run(t, "rename", entries[0].Name, "start")
}

func TestRootCommand_Help(t *testing.T) {
	stdout, err := executeCommand(createTestRootCmd(), "--help")
	require.NoError(t, err)
	assert.Contains(t, stdout, "savegame folder")
}

func TestRootCommand_JSONFlag(t *testing.T) {
	_, err := executeCommand(createTestRootCmd(), "--json", "--help")
	require.NoError(t, err)
	assert.True(t, jsonOutput)
}

func TestBackupCommand_FirstBackupIsKeeper(t *testing.T) {
	f := setupProfile(t)

	out := f.run(t, "backup")
	assert.Contains(t, out, "Created keeper backup")

	entries := f.list(t)
	require.Len(t, entries, 1)
	assert.Equal(t, "keeper", entries[0].Kind)
	assert.Equal(t, 2, entries[0].Files)
	assert.True(t, entries[0].Current)
}

func TestBackupCommand_FirstBackupIsNotCompared(t *testing.T) {
	f := setupProfile(t)

	out := f.run(t, "--json", "backup")
	var outcome struct {
		Decision struct {
			Kind       string `json:"kind"`
			Comparison string `json:"comparison"`
		} `json:"decision"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &outcome))
	assert.Equal(t, "keeper", outcome.Decision.Kind)
	assert.Equal(t, "not-compared", outcome.Decision.Comparison)
}

func TestBackupCommand_SkipsWhenUnchanged(t *testing.T) {
	f := setupProfile(t)
	f.firstKeeper(t)

	out := f.run(t, "backup")
	assert.Contains(t, out, "No backup needed")
	assert.Contains(t, out, "matches start")
	assert.Len(t, f.list(t), 1)
}

func TestBackupCommand_QuickSaveIsTemp(t *testing.T) {
	f := setupProfile(t)
	f.firstKeeper(t)
	writeSave(t, f, "slot1.sav", "level 2")

	out := f.run(t, "--json", "backup")
	var outcome struct {
		Decision struct {
			Kind string `json:"kind"`
			Skip bool   `json:"skip"`
		} `json:"decision"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &outcome))
	assert.Equal(t, "temp", outcome.Decision.Kind)
	assert.False(t, outcome.Decision.Skip)

	entries := f.list(t)
	require.Len(t, entries, 2)
	assert.Equal(t, "temp", entries[0].Kind)
	assert.True(t, entries[0].Current)
	assert.False(t, entries[1].Current)
}

func TestBackupCommand_ForcedKind(t *testing.T) {
	f := setupProfile(t)
	f.firstKeeper(t)

	out := f.run(t, "backup", "--kind", "auto")
	assert.Contains(t, out, "Created auto backup auto_")
}

func TestShowCommand(t *testing.T) {
	f := setupProfile(t)
	f.firstKeeper(t)

	out := f.run(t, "show", "start")
	assert.Contains(t, out, "Backup:     start")
	assert.Contains(t, out, "identical to the live folder")
	assert.Contains(t, out, "slot1.sav")

	var res showResult
	require.NoError(t, json.Unmarshal([]byte(f.run(t, "--json", "show", "start")), &res))
	assert.Equal(t, "no-diff", res.Comparison)
	assert.Len(t, res.Checksums, 2)
}

func TestDiffCommand(t *testing.T) {
	f := setupProfile(t)
	f.firstKeeper(t)
	writeSave(t, f, "slot1.sav", "level 5")
	writeSave(t, f, "slot3.sav", "new")
	require.NoError(t, os.Remove(filepath.Join(f.source, "slot2.sav")))

	out := f.run(t, "diff", "start")
	assert.Contains(t, out, "M slot1.sav")
	assert.Contains(t, out, "+ slot3.sav")
	assert.Contains(t, out, "- slot2.sav")
}

func TestRestoreCommand(t *testing.T) {
	f := setupProfile(t)
	f.firstKeeper(t)
	writeSave(t, f, "slot1.sav", "level 9")
	writeSave(t, f, "extra.sav", "x")

	out := f.run(t, "restore", "start")
	assert.Contains(t, out, "Restored start")

	data, err := os.ReadFile(filepath.Join(f.source, "slot1.sav"))
	require.NoError(t, err)
	assert.Equal(t, "level 1", string(data))
	assert.NoFileExists(t, filepath.Join(f.source, "extra.sav"))

	out = f.run(t, "restore", "start")
	assert.Contains(t, out, "nothing to do")
}

func TestRestoreBackup_RefusedWhileFolderIsWatched(t *testing.T) {
	f := setupProfile(t)
	f.firstKeeper(t)
	writeSave(t, f, "slot1.sav", "level 9")

	createTestRootCmd()
	configPath = f.cfg
	s := requireSession(true)
	watching, err := s.locks.Acquire(s.profile.Name, s.profile.Source, "watch")
	require.NoError(t, err)

	_, err = restoreBackup(s, "start")
	require.ErrorIs(t, err, errclass.ErrConcurrencyViolation)
	data, err := os.ReadFile(filepath.Join(f.source, "slot1.sav"))
	require.NoError(t, err)
	assert.Equal(t, "level 9", string(data))

	require.NoError(t, s.locks.Release(watching.Source, watching.HolderNonce))
	res, err := restoreBackup(s, "start")
	require.NoError(t, err)
	assert.True(t, res.Changed)

	st, _, err := s.locks.Status(s.profile.Source)
	require.NoError(t, err)
	assert.Equal(t, model.LockStateFree, st)
}

func TestRenameAndDeleteCommands(t *testing.T) {
	f := setupProfile(t)
	f.firstKeeper(t)

	out := f.run(t, "rename", "start", "before: boss?")
	assert.Contains(t, out, "Renamed start to before boss")
	assert.DirExists(t, filepath.Join(f.dest, "before boss"))

	out = f.run(t, "delete", "--permanent", "before boss")
	assert.Contains(t, out, "Deleted: before boss")
	assert.Empty(t, f.list(t))
}

func TestVerifyCommand(t *testing.T) {
	f := setupProfile(t)
	f.firstKeeper(t)

	out := f.run(t, "verify")
	assert.Contains(t, out, "start  OK")

	out = f.run(t, "verify", "start")
	assert.Contains(t, out, "start  OK")
}

func TestDoctorCommand(t *testing.T) {
	f := setupProfile(t)
	f.firstKeeper(t)

	out := f.run(t, "doctor", "--strict")
	assert.Contains(t, out, "is healthy")
}

func TestHistoryCommand(t *testing.T) {
	f := setupProfile(t)
	f.firstKeeper(t)
	f.run(t, "delete", "--permanent", "start")

	out := f.run(t, "history")
	assert.Contains(t, out, "backup_create")
	assert.Contains(t, out, "backup_rename")
	assert.Contains(t, out, "backup_delete")

	var records []map[string]any
	require.NoError(t, json.Unmarshal([]byte(f.run(t, "--json", "history", "--event", "backup_rename")), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "Default", records[0]["profile"])
}

func TestExitCommand(t *testing.T) {
	f := setupProfile(t)
	f.firstKeeper(t)
	writeSave(t, f, "slot1.sav", "level 2")
	f.run(t, "backup")

	out := f.run(t, "exit")
	assert.Contains(t, out, "-> exit_")

	entries := f.list(t)
	require.Len(t, entries, 2)
	kinds := []string{entries[0].Kind, entries[1].Kind}
	assert.ElementsMatch(t, []string{"exit", "keeper"}, kinds)

	out = f.run(t, "exit")
	assert.Contains(t, out, "No temporary backups")
}

func TestProfileCommands(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	run := func(args ...string) string {
		out, err := executeCommand(createTestRootCmd(), append([]string{"--config", cfgPath}, args...)...)
		require.NoError(t, err)
		return out
	}

	out := run("profile", "list")
	assert.Contains(t, out, "* Default")

	run("profile", "add", "Elden Ring", "--source", filepath.Join(dir, "er"), "--destination", filepath.Join(dir, "er-backups"))
	run("profile", "select", "Elden Ring")
	run("profile", "set", "auto_saves_max", "3")
	run("profile", "rename", "Default", "Other")

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "Elden Ring", cfg.Selected)
	p, err := cfg.Profile("")
	require.NoError(t, err)
	assert.Equal(t, uint(3), p.AutoSavesMax)
	assert.Equal(t, filepath.Join(dir, "er"), p.Source)
	_, err = cfg.Profile("Other")
	assert.NoError(t, err)

	run("profile", "remove", "Elden Ring")
	cfg, err = config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "Other", cfg.Selected)

	out = run("profile", "show")
	assert.Contains(t, out, "Profile:     Other")
}

func TestSuggestBackups(t *testing.T) {
	color.Disable()
	assert.Equal(t, "No backups exist yet.", suggestBackups("x", nil))
}

func TestDiscardScreenshot_LogsFailure(t *testing.T) {
	var buf bytes.Buffer
	l := logging.NewLoggerWithFormat(logging.LevelDebug, logging.FormatText)
	l.SetOutput(&buf)
	prev := logging.Global()
	logging.SetGlobal(l)
	defer logging.SetGlobal(prev)

	shot := filepath.Join(t.TempDir(), "shot.jpg")
	require.NoError(t, os.MkdirAll(filepath.Join(shot, "busy"), 0755))
	discardScreenshot(shot)
	assert.Contains(t, buf.String(), "unused screenshot not removed")

	buf.Reset()
	discardScreenshot(filepath.Join(t.TempDir(), "missing.jpg"))
	assert.Empty(t, buf.String())
}
