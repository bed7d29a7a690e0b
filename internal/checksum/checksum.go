// Package checksum derives content digests for persisted slots and records.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/starford/tabula/internal/models"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Record returns a digest over every field of r. It changes whenever any
// field changes and is used as the record's entity tag.
func Record(r models.Record) string {
	h := sha256.New()
	for _, part := range []string{r.ID, r.Name, r.Date, strconv.FormatInt(r.Value, 10)} {
		h.Write([]byte(strconv.Itoa(len(part))))
		h.Write([]byte{':'})
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}
