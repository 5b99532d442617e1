package file

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ReadList reads one entry per line, skipping blank lines and lines
// starting with '#'. The CLI uses it for batch manifests.
func ReadList(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read list: %w", err)
	}
	return out, nil
}
