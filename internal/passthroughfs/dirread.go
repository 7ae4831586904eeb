package passthroughfs

import (
	"golang.org/x/sys/unix"

	"github.com/chaos-mesh/toda/internal/handletable"
)

// readAllDirNames drains every directory entry from an already-open fd via
// getdents64(2), skipping "." and "..". Used once per directory handle to
// build the snapshot ReadDir serves pages of.
func readAllDirNames(fd int) ([]string, error) {
	var names []string
	buf := make([]byte, 64*1024)
	for {
		n, err := unix.Getdents(fd, buf)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
		consumed := 0
		for consumed < n {
			reclen := int(unix.NativeEndian.Uint16(buf[consumed+16 : consumed+18]))
			if reclen == 0 {
				break
			}
			nameBytes := buf[consumed+19 : consumed+reclen]
			end := 0
			for end < len(nameBytes) && nameBytes[end] != 0 {
				end++
			}
			name := string(nameBytes[:end])
			if name != "." && name != ".." {
				names = append(names, name)
			}
			consumed += reclen
		}
	}
	return names, nil
}

func toTableEntries(entries []handleDirEntry) []handletable.DirEntry {
	out := make([]handletable.DirEntry, len(entries))
	for i, e := range entries {
		out[i] = handletable.DirEntry{Name: e.name, Ino: e.ino, Kind: uint32(e.typ)}
	}
	return out
}
