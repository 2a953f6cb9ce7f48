// Package contentindex builds and incrementally maintains the per-book
// content index: normalized section text keyed by a change signature over
// the book's binary payload descriptor. A book's index is rebuilt if and
// only if its payload appears to have changed.
package contentindex

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/inkwellapp/inkwell-server/internal/domain"
)

// Signature computes the change signature for a payload descriptor. It is
// deterministic over (size, last-modified, name): identical descriptors
// always produce identical signatures, and changing any one component
// changes the result. The payload bytes are never read.
func Signature(desc domain.PayloadDescriptor) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%d\x00%d\x00%s", desc.Size, desc.LastModified, desc.Name))
	return hex.EncodeToString(sum[:16])
}
