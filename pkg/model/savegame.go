package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// MetaFileName is the manifest stored inside every backup directory.
const MetaFileName = "meta.json"

// ThumbnailFileName is the optional screenshot stored inside a backup directory.
const ThumbnailFileName = "screenshot.jpg"

// IsReserved reports whether name is one of the files a backup directory keeps for itself.
// Savegame files with these names are not backed up.
func IsReserved(name string) bool {
	return name == MetaFileName || name == ThumbnailFileName
}

// FileChecksum is a (file name, content hash) pair.
// On disk it is encoded as a two element JSON array.
type FileChecksum struct {
	Name string
	Hash string
}

// MarshalJSON encodes the pair as ["name", "hash"].
func (c FileChecksum) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{c.Name, c.Hash})
}

// UnmarshalJSON decodes ["name", "hash"].
func (c *FileChecksum) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("checksum entry must have 2 elements, got %d", len(pair))
	}
	c.Name, c.Hash = pair[0], pair[1]
	return nil
}

// SavegameMeta is one persisted backup's manifest.
// Name is the directory name and is never serialized.
type SavegameMeta struct {
	Name      string         `json:"-"`
	Date      int64          `json:"date"`
	Checksums []FileChecksum `json:"checksums"`
}

// Kind returns the backup kind inferred from the name prefix.
func (m *SavegameMeta) Kind() Kind {
	return KindOf(m.Name)
}

// Time returns the creation time.
func (m *SavegameMeta) Time() time.Time {
	return time.UnixMilli(m.Date)
}

// IsTemp reports whether the backup occupies the temp slot.
func (m *SavegameMeta) IsTemp() bool {
	return m.Kind() == KindTemp
}

// Clone returns a deep copy.
func (m *SavegameMeta) Clone() *SavegameMeta {
	c := *m
	c.Checksums = append([]FileChecksum(nil), m.Checksums...)
	return &c
}
