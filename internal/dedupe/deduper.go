package dedupe

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/hurricanerix/imggen/internal/imaging"
)

// Deduper tracks previously accepted image hashes and flags near-duplicates.
// Ported from the reference implementation's PerceptualDeduper, which kept a
// HashSet<ImageHash> and compared new hashes by Hamming distance against
// every entry already seen. Go has no equivalent perceptual-hash crate, so
// the hash itself is computed by ComputeHash instead of an external hasher,
// but the accept/compare/insert shape is unchanged.
type Deduper struct {
	mu        sync.Mutex
	hashBits  int
	threshold int
	seen      []Hash
}

// New constructs a Deduper. hashBits defaults to 64 if <= 0.
func New(hashBits, threshold int) *Deduper {
	if hashBits <= 0 {
		hashBits = 64
	}
	return &Deduper{hashBits: hashBits, threshold: threshold}
}

// CheckAndInsert decodes the image bytes, computes its perceptual hash, and
// compares it against every hash accepted so far. If the minimum Hamming
// distance is within the configured threshold the image is reported as a
// duplicate and is NOT added to the seen set. Otherwise its hash is recorded
// and it is reported as unique.
func (d *Deduper) CheckAndInsert(data []byte) (isDuplicate bool, hashB64 string, err error) {
	img, _, err := imaging.Decode(data)
	if err != nil {
		return false, "", fmt.Errorf("decode image for dedupe: %w", err)
	}

	hash := ComputeHash(img, d.hashBits)
	b64 := hashToBase64(hash)

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, seen := range d.seen {
		if hash.HammingDistance(seen) <= d.threshold {
			return true, b64, nil
		}
	}
	d.seen = append(d.seen, hash)
	return false, b64, nil
}

// Count returns the number of distinct hashes accepted so far.
func (d *Deduper) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

func hashToBase64(h Hash) string {
	buf := make([]byte, 8*len(h))
	for i, w := range h {
		binary.BigEndian.PutUint64(buf[i*8:], w)
	}
	return base64.StdEncoding.EncodeToString(buf)
}
