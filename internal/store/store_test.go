package store_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/savekeeper/savekeeper/internal/checksum"
	"github.com/savekeeper/savekeeper/internal/store"
	"github.com/savekeeper/savekeeper/pkg/errclass"
	"github.com/savekeeper/savekeeper/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTrash struct {
	moved []string
	err   error
}

func (f *fakeTrash) MoveToTrash(path string) error {
	if f.err != nil {
		return f.err
	}
	f.moved = append(f.moved, path)
	return os.RemoveAll(path)
}

type fixture struct {
	src, dest, shot string
	trash           *fakeTrash
	store           *store.Store
}

func setup(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		src:   filepath.Join(root, "saves"),
		dest:  filepath.Join(root, "backups"),
		shot:  filepath.Join(root, "shot.jpg"),
		trash: &fakeTrash{},
	}
	require.NoError(t, os.MkdirAll(f.src, 0755))
	require.NoError(t, os.MkdirAll(f.dest, 0755))
	f.store = store.New(f.trash, f.shot)
	return f
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func writeMeta(t *testing.T, dest, name, content string) {
	t.Helper()
	dir := filepath.Join(dest, name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	writeFile(t, dir, model.MetaFileName, content)
}

func TestCreate_RoundTrip(t *testing.T) {
	f := setup(t)
	writeFile(t, f.src, "slot1.sav", "level 3")
	writeFile(t, f.src, "slot2.sav", "level 9")
	require.NoError(t, os.Mkdir(filepath.Join(f.src, "ignored"), 0755))

	live, err := checksum.HashDirectory(f.src)
	require.NoError(t, err)

	created, err := f.store.Create(f.src, f.dest, "keeper one", false)
	require.NoError(t, err)
	assert.Equal(t, "keeper one", created.Name)
	assert.Equal(t, live, created.Checksums)

	read, err := f.store.Read(f.dest, "keeper one")
	require.NoError(t, err)
	assert.Equal(t, live, read.Checksums)
	assert.Equal(t, created.Date, read.Date)
	assert.Equal(t, "keeper one", read.Name)

	content, err := os.ReadFile(filepath.Join(f.dest, "keeper one", "slot2.sav"))
	require.NoError(t, err)
	assert.Equal(t, "level 9", string(content))
	assert.NoDirExists(t, filepath.Join(f.dest, "keeper one", "ignored"))
}

func TestCreate_UsesClock(t *testing.T) {
	f := setup(t)
	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	f.store.SetClock(func() time.Time { return at })

	meta, err := f.store.Create(f.src, f.dest, "k", false)
	require.NoError(t, err)
	assert.Equal(t, at.UnixMilli(), meta.Date)
	assert.Empty(t, meta.Checksums)
}

func TestCreate_CreatesDestinationRoot(t *testing.T) {
	f := setup(t)
	dest := filepath.Join(f.dest, "nested", "root")
	writeFile(t, f.src, "a", "1")

	_, err := f.store.Create(f.src, dest, "k", false)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dest, "k", model.MetaFileName))
}

func TestCreate_ExistingDirFails(t *testing.T) {
	f := setup(t)
	require.NoError(t, os.Mkdir(filepath.Join(f.dest, "taken"), 0755))

	_, err := f.store.Create(f.src, f.dest, "taken", false)
	assert.ErrorIs(t, err, errclass.ErrIO)
}

func TestCreate_AttachesThumbnail(t *testing.T) {
	f := setup(t)
	writeFile(t, f.src, "a", "1")
	writeFile(t, filepath.Dir(f.shot), filepath.Base(f.shot), "jpeg-bytes")

	meta, err := f.store.Create(f.src, f.dest, "k", true)
	require.NoError(t, err)

	assert.NoFileExists(t, f.shot)
	thumb, ok := f.store.Thumbnail(f.dest, "k")
	require.True(t, ok)
	content, _ := os.ReadFile(thumb)
	assert.Equal(t, "jpeg-bytes", string(content))
	require.Len(t, meta.Checksums, 1, "thumbnail is not part of the manifest")
}

func TestCreate_MissingThumbnailIsNotFatal(t *testing.T) {
	f := setup(t)
	_, err := f.store.Create(f.src, f.dest, "k", true)
	require.NoError(t, err)
	_, ok := f.store.Thumbnail(f.dest, "k")
	assert.False(t, ok)
}

func TestRead_NotFound(t *testing.T) {
	f := setup(t)
	_, err := f.store.Read(f.dest, "missing")
	assert.ErrorIs(t, err, errclass.ErrNotFound)

	require.NoError(t, os.Mkdir(filepath.Join(f.dest, "no-meta"), 0755))
	_, err = f.store.Read(f.dest, "no-meta")
	assert.ErrorIs(t, err, errclass.ErrNotFound)
}

func TestRead_ParseError(t *testing.T) {
	f := setup(t)
	writeMeta(t, f.dest, "broken", "{not json")

	_, err := f.store.Read(f.dest, "broken")
	assert.ErrorIs(t, err, errclass.ErrParse)
}

func TestRead_CachedUntilInvalidated(t *testing.T) {
	f := setup(t)
	writeMeta(t, f.dest, "k", `{"date":1,"checksums":[["a","1"]]}`)

	first, err := f.store.Read(f.dest, "k")
	require.NoError(t, err)

	writeMeta(t, f.dest, "k", `{"date":2,"checksums":[]}`)
	cached, err := f.store.Read(f.dest, "k")
	require.NoError(t, err)
	assert.Equal(t, first.Date, cached.Date)

	f.store.Invalidate(f.dest)
	fresh, err := f.store.Read(f.dest, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(2), fresh.Date)
}

func TestRead_ReturnsCopies(t *testing.T) {
	f := setup(t)
	writeMeta(t, f.dest, "k", `{"date":1,"checksums":[["a","1"]]}`)

	m, err := f.store.Read(f.dest, "k")
	require.NoError(t, err)
	m.Checksums[0].Hash = "mutated"

	again, err := f.store.Read(f.dest, "k")
	require.NoError(t, err)
	assert.Equal(t, "1", again.Checksums[0].Hash)
}

func TestList_SortedAndSkipsJunk(t *testing.T) {
	f := setup(t)
	writeMeta(t, f.dest, "older", `{"date":100,"checksums":[]}`)
	writeMeta(t, f.dest, "newest", `{"date":300,"checksums":[]}`)
	writeMeta(t, f.dest, "b-tie", `{"date":200,"checksums":[]}`)
	writeMeta(t, f.dest, "a-tie", `{"date":200,"checksums":[]}`)
	writeMeta(t, f.dest, "corrupt", `nope`)
	require.NoError(t, os.Mkdir(filepath.Join(f.dest, "partial"), 0755))
	writeFile(t, f.dest, "stray.txt", "x")

	list, err := f.store.List(f.dest)
	require.NoError(t, err)

	var got []string
	for _, m := range list {
		got = append(got, m.Name)
	}
	assert.Equal(t, []string{"newest", "a-tie", "b-tie", "older"}, got)
}

func TestList_MissingRoot(t *testing.T) {
	f := setup(t)
	_, err := f.store.List(filepath.Join(f.dest, "missing"))
	assert.ErrorIs(t, err, errclass.ErrNotFound)

	writeFile(t, f.dest, "file", "x")
	_, err = f.store.List(filepath.Join(f.dest, "file"))
	assert.ErrorIs(t, err, errclass.ErrNotFound)
}

func TestList_SeesCreateWithoutManualInvalidate(t *testing.T) {
	f := setup(t)
	list, err := f.store.List(f.dest)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = f.store.Create(f.src, f.dest, "k", false)
	require.NoError(t, err)

	list, err = f.store.List(f.dest)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRename(t *testing.T) {
	f := setup(t)
	writeMeta(t, f.dest, "temp_x", `{"date":1,"checksums":[]}`)
	_, err := f.store.Read(f.dest, "temp_x")
	require.NoError(t, err)

	require.NoError(t, f.store.Rename(f.dest, "temp_x", "before boss?"))

	assert.NoDirExists(t, filepath.Join(f.dest, "temp_x"))
	meta, err := f.store.Read(f.dest, "before boss")
	require.NoError(t, err)
	assert.Equal(t, "before boss", meta.Name)
	_, err = f.store.Read(f.dest, "temp_x")
	assert.ErrorIs(t, err, errclass.ErrNotFound)
}

func TestRename_SilentNoOps(t *testing.T) {
	f := setup(t)
	writeMeta(t, f.dest, "a", `{"date":1,"checksums":[]}`)
	writeMeta(t, f.dest, "b", `{"date":2,"checksums":[]}`)

	assert.NoError(t, f.store.Rename(f.dest, "missing", "c"))
	assert.NoDirExists(t, filepath.Join(f.dest, "c"))

	assert.NoError(t, f.store.Rename(f.dest, "a", "b"))
	assert.DirExists(t, filepath.Join(f.dest, "a"))
	meta, err := f.store.Read(f.dest, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(2), meta.Date)
}

func TestRename_InvalidName(t *testing.T) {
	f := setup(t)
	writeMeta(t, f.dest, "a", `{"date":1,"checksums":[]}`)
	assert.ErrorIs(t, f.store.Rename(f.dest, "a", " /// "), errclass.ErrNameInvalid)
	assert.ErrorIs(t, f.store.Rename(f.dest, "a", ".."), errclass.ErrNameInvalid)
}

func TestDelete(t *testing.T) {
	f := setup(t)
	writeMeta(t, f.dest, "a", `{"date":1,"checksums":[]}`)
	_, err := f.store.Read(f.dest, "a")
	require.NoError(t, err)

	require.NoError(t, f.store.Delete(f.dest, "a"))
	assert.NoDirExists(t, filepath.Join(f.dest, "a"))
	_, err = f.store.Read(f.dest, "a")
	assert.ErrorIs(t, err, errclass.ErrNotFound)

	assert.NoError(t, f.store.Delete(f.dest, "a"))
	assert.Empty(t, f.trash.moved)
}

func TestRecycle(t *testing.T) {
	f := setup(t)
	writeMeta(t, f.dest, "a", `{"date":1,"checksums":[]}`)

	require.NoError(t, f.store.Recycle(f.dest, "a"))
	assert.Equal(t, []string{filepath.Join(f.dest, "a")}, f.trash.moved)
	assert.NoError(t, f.store.Recycle(f.dest, "a"))
	assert.Len(t, f.trash.moved, 1)
}

func TestRecycle_Failure(t *testing.T) {
	f := setup(t)
	writeMeta(t, f.dest, "a", `{"date":1,"checksums":[]}`)
	f.trash.err = errors.New("no trash can")

	assert.ErrorIs(t, f.store.Recycle(f.dest, "a"), errclass.ErrIO)
}

func TestSortNewestFirst(t *testing.T) {
	list := []*model.SavegameMeta{{Name: "b", Date: 1}, {Name: "c", Date: 3}, {Name: "a", Date: 1}}
	store.SortNewestFirst(list)
	assert.Equal(t, "c", list[0].Name)
	assert.Equal(t, "a", list[1].Name)
	assert.Equal(t, "b", list[2].Name)
}

func TestCreate_SkipsReservedNames(t *testing.T) {
	f := setup(t)
	writeFile(t, f.src, "slot1.sav", "level 3")
	writeFile(t, f.src, model.MetaFileName, `{"mod":"settings"}`)
	writeFile(t, f.src, model.ThumbnailFileName, "not a thumbnail")

	created, err := f.store.Create(f.src, f.dest, "k", false)
	require.NoError(t, err)
	require.Len(t, created.Checksums, 1)
	assert.Equal(t, "slot1.sav", created.Checksums[0].Name)

	_, ok := f.store.Thumbnail(f.dest, "k")
	assert.False(t, ok)
	read, err := f.store.Read(f.dest, "k")
	require.NoError(t, err)
	assert.Equal(t, created.Checksums, read.Checksums)
}
