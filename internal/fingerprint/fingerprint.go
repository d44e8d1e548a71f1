// Package fingerprint derives a stable identity for the current generation
// inputs so the scheduler can tell when nothing changed since the last
// successful attempt.
package fingerprint

import (
	"encoding/binary"
	"encoding/hex"
	"sort"

	"github.com/zeebo/blake3"
)

// Blob is a reference image as seen by the fingerprinter.
type Blob struct {
	MIMEType string
	Data     []byte
}

// Inputs are the generation inputs that participate in deduplication.
type Inputs struct {
	Text    string
	Images  []Blob
	Options map[string]string
}

// domainKey separates generation fingerprints from any other BLAKE3 use.
var domainKey = [32]byte{
	'i', 'm', 'a', 'g', 'e', 'l', 'o', 'o', 'p', '.', 'f', 'i', 'n', 'g', 'e', 'r',
	'p', 'r', 'i', 'n', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Compute returns the hex fingerprint of in. Every field is length-prefixed,
// so inputs that differ in any byte, in image order, or in how bytes are
// split between fields produce different fingerprints. Option keys are
// hashed in sorted order.
func Compute(in Inputs) string {
	hasher, err := blake3.NewKeyed(domainKey[:])
	if err != nil {
		panic("fingerprint: BLAKE3 keyed hash initialization failed: " + err.Error())
	}

	writeField(hasher, []byte(in.Text))

	writeLen(hasher, len(in.Images))
	for _, img := range in.Images {
		writeField(hasher, []byte(img.MIMEType))
		writeField(hasher, img.Data)
	}

	keys := make([]string, 0, len(in.Options))
	for k := range in.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	writeLen(hasher, len(keys))
	for _, k := range keys {
		writeField(hasher, []byte(k))
		writeField(hasher, []byte(in.Options[k]))
	}

	return hex.EncodeToString(hasher.Sum(nil))
}

func writeField(h *blake3.Hasher, data []byte) {
	writeLen(h, len(data))
	_, _ = h.Write(data)
}

func writeLen(h *blake3.Hasher, n int) {
	var prefix [8]byte
	binary.BigEndian.PutUint64(prefix[:], uint64(n))
	_, _ = h.Write(prefix[:])
}
