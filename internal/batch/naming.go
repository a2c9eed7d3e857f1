package batch

import (
	"fmt"
	"time"
)

// DefaultExt is used for files without an extension.
const DefaultExt = "jpg"

// KeyNamer derives remote object keys. Uniqueness rests on the millisecond
// timestamp read per file plus the batch index.
type KeyNamer struct {
	Now func() time.Time
}

// NewKeyNamer returns a namer on the wall clock.
func NewKeyNamer() KeyNamer {
	return KeyNamer{Now: time.Now}
}

// Key returns "{prefix}/{owner}/{YYYY/MM/DD}/{millis}_{index}.{ext}".
func (n KeyNamer) Key(dest Destination, index int, file FileRef) string {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	t := now()
	return fmt.Sprintf("%s/%d/%s/%d_%d.%s",
		dest.Prefix, dest.OwnerID, t.Format("2006/01/02"), t.UnixMilli(), index, file.ExtOr(DefaultExt))
}
