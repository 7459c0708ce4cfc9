// Package tenant maps tenant ids onto filesystem-safe directory names.
package tenant

import (
	"encoding/hex"
	"regexp"

	"github.com/ziadkadry99/docqa/internal/apperr"
)

var readable = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// Dir returns the directory name used for a tenant under every per-tenant
// root. Lower-case readable ids map to "t_<id>"; anything else, upper-case
// letters included, is hex encoded under "x_". Every result is lower case,
// so distinct ids stay distinct on case-insensitive filesystems too.
func Dir(id string) string {
	if readable.MatchString(id) {
		return "t_" + id
	}
	return "x_" + hex.EncodeToString([]byte(id))
}

// Validate rejects ids that cannot own data.
func Validate(id string) error {
	if id == "" {
		return apperr.Validation("tenant id is required")
	}
	if len(id) > 256 {
		return apperr.Validation("tenant id is too long")
	}
	return nil
}
