package memory

import "fmt"

// sanitizeKey maps an unrestricted key to a storage-safe name. Bytes outside
// [A-Za-z0-9._-] are percent-escaped; '%' itself is always escaped, so
// distinct keys can never collide after sanitization.
func sanitizeKey(key string) string {
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		b := key[i]
		switch {
		case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
			out = append(out, b)
		case b == '.' || b == '_' || b == '-':
			out = append(out, b)
		default:
			out = append(out, fmt.Sprintf("%%%02X", b)...)
		}
	}
	return string(out)
}
