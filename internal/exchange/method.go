package exchange

import (
	"net/http"
	"strings"
)

const (
	minMethodLen = 3
	maxMethodLen = 10
)

var extensionVerbs = map[string]struct{}{
	"PROPFIND":  {},
	"PROPPATCH": {},
	"MKCOL":     {},
	"COPY":      {},
	"MOVE":      {},
	"LOCK":      {},
	"UNLOCK":    {},
}

// ExtensionVerbs lists the WebDAV verbs passed through unmodified.
func ExtensionVerbs() []string {
	return []string{"PROPFIND", "PROPPATCH", "MKCOL", "COPY", "MOVE", "LOCK", "UNLOCK"}
}

// IsExtensionVerb matches m case-insensitively against the WebDAV verb set.
func IsExtensionVerb(m string) bool {
	_, ok := extensionVerbs[strings.ToUpper(m)]
	return ok
}

// ResolveMethod returns the method to put on the wire. An empty method means
// GET; anything else must be a 3 to 10 letter token and is returned unchanged.
func ResolveMethod(m string) (string, bool) {
	if m == "" {
		return http.MethodGet, true
	}
	if len(m) < minMethodLen || len(m) > maxMethodLen {
		return "", false
	}
	for i := 0; i < len(m); i++ {
		c := m[i]
		if (c < 'A' || c > 'Z') && (c < 'a' || c > 'z') {
			return "", false
		}
	}
	return m, true
}

// OtherMethodLabel stands in for every method outside the standard and
// WebDAV sets in metric labels.
const OtherMethodLabel = "OTHER"

var standardMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodHead:    {},
	http.MethodPost:    {},
	http.MethodPut:     {},
	http.MethodPatch:   {},
	http.MethodDelete:  {},
	http.MethodOptions: {},
	http.MethodTrace:   {},
	http.MethodConnect: {},
}

// MethodLabel returns the bounded metric label for m: the upper-cased verb
// when it is standard or WebDAV, OtherMethodLabel otherwise.
func MethodLabel(m string) string {
	if m == "" {
		return http.MethodGet
	}
	up := strings.ToUpper(m)
	if _, ok := standardMethods[up]; ok {
		return up
	}
	if _, ok := extensionVerbs[up]; ok {
		return up
	}
	return OtherMethodLabel
}
