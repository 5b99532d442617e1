package dataset

import (
	"fmt"

	"github.com/zeebo/xxh3"
)

// Fingerprint hashes the header and every cell's %v rendering. Two datasets
// with equal fingerprints are treated as the same payload.
func (d *Dataset) Fingerprint() uint64 {
	h := xxh3.New()
	for _, c := range d.Columns {
		_, _ = h.WriteString(c)
		_, _ = h.Write([]byte{0x1f})
	}
	_, _ = h.Write([]byte{0x1e})
	for _, r := range d.Rows {
		for _, v := range r {
			if v == nil {
				_, _ = h.Write([]byte{0x00})
			} else {
				_, _ = fmt.Fprint(h, v)
			}
			_, _ = h.Write([]byte{0x1f})
		}
		_, _ = h.Write([]byte{0x1e})
	}
	return h.Sum64()
}

// HashBytes is the payload-level fingerprint used before parsing.
func HashBytes(b []byte) uint64 { return xxh3.Hash(b) }
