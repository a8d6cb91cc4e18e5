//go:build !windows

package disk

import (
	"os"

	"golang.org/x/sys/unix"
)

// fsync issues the durability barrier spec.md §4.4 requires before a log
// flush (or a dirty-page write-back) can be considered durable.
func fsync(f *os.File) error {
	return unix.Fsync(int(f.Fd()))
}
