package fileops

import (
	"strconv"
	"strings"

	"github.com/serhatdk/passage/internal/protocol"
)

// parseListing parses `ls -la` output from the fallback listing command
// into the same entry shape the structured path produces.
func parseListing(output string) []protocol.DirEntry {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	entries := make([]protocol.DirEntry, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "total") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 9 {
			continue
		}

		name := strings.Join(fields[8:], " ")
		if strings.HasPrefix(fields[0], "l") {
			// Symlink rows read `name -> target`; only the name is the entry.
			if i := strings.Index(name, " -> "); i >= 0 {
				name = name[:i]
			}
		}
		if name == "." || name == ".." {
			continue
		}

		size, _ := strconv.ParseInt(fields[4], 10, 64)
		entries = append(entries, protocol.DirEntry{
			Name:  name,
			Size:  size,
			Mode:  fields[0],
			IsDir: strings.HasPrefix(fields[0], "d"),
		})
	}

	return entries
}
