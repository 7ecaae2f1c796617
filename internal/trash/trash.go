// Package trash moves backups into the desktop trash instead of deleting them.
package trash

import (
	"fmt"

	"github.com/Bios-Marcel/wastebasket/v2"
)

// Bin moves paths to the platform trash.
type Bin struct {
	trash func(paths ...string) error
}

// New returns a Bin backed by the system trash.
func New() *Bin {
	return &Bin{trash: wastebasket.Trash}
}

// NewWith returns a Bin that hands paths to fn, for environments without a trash.
func NewWith(fn func(paths ...string) error) *Bin {
	return &Bin{trash: fn}
}

// MoveToTrash moves path to the trash.
func (b *Bin) MoveToTrash(path string) error {
	if err := b.trash(path); err != nil {
		return fmt.Errorf("move %s to trash: %w", path, err)
	}
	return nil
}
