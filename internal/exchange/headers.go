package exchange

import (
	"net/http"
	"strings"
)

// foldHeaders flattens a multi-valued header set into one value per key:
// values are comma-joined in their original order and keys are lower-cased.
func foldHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		key := strings.ToLower(k)
		if prev, ok := out[key]; ok {
			out[key] = prev + "," + strings.Join(vs, ",")
			continue
		}
		out[key] = strings.Join(vs, ",")
	}
	return out
}
