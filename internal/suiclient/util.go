package suiclient

import (
	"encoding/base64"
	"strconv"
)

func b64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// parseVersion best-effort parses a decimal string into a uint64, returning
// 0 for anything that doesn't parse (absent/empty fields are common in
// partial node responses and are not a hard error at this layer).
func parseVersion(s string) uint64 {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
