package xid

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"
)

// New returns a prefixed identifier of the form prefix-<ts36>-<rand>, where
// ts36 is the creation time in base 36 so identifiers sort roughly by age.
func New(prefix string) string {
	ts := strconv.FormatInt(time.Now().UnixNano(), 36)
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return prefix + "-" + ts
	}
	return prefix + "-" + ts + "-" + hex.EncodeToString(buf)
}
