package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TempIDPrefix marks records that exist only in staging.
const TempIDPrefix = "temp-"

// NewTempID returns a staging-only id of the form temp-<unix-millis>-<hex>.
// The random suffix keeps ids unique when several rows are added within the
// same millisecond.
func NewTempID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s%d-%s", TempIDPrefix, now.UnixMilli(), suffix)
}

// IsTempID reports whether id was produced by NewTempID.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}
