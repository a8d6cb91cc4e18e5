//go:build windows

package disk

import "os"

func fsync(f *os.File) error {
	return f.Sync()
}
