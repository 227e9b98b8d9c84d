package nginx

import (
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"
)

// RewriteRule is a normalized nginx rewrite directive: a regex over the full
// URL path and its replacement.
type RewriteRule struct {
	Regex       string
	Replacement string
}

// NormalizeRewriteRule turns a path rewrite rule expressed over a path
// segment into one matching the entire URL path, preserving any unreplaced
// prefix, the basename, the query and the fragment. The request pattern is
// validated by compiling it with a PCRE-compatible engine, matching what
// nginx itself uses.
func NormalizeRewriteRule(requestPattern, mappedPath string) (RewriteRule, error) {
	re, err := regexp2.Compile(requestPattern, regexp2.None)
	if err != nil {
		return RewriteRule{}, fmt.Errorf("compiling request path pattern: %w", err)
	}

	groups := 0
	for _, number := range re.GetGroupNumbers() {
		if number > 0 {
			groups++
		}
	}

	pattern := requestPattern
	replacement := mappedPath

	if !strings.HasPrefix(pattern, "^") {
		// keep whatever precedes the matched segment
		pattern = "^(.*)" + pattern
		replacement = "${1}" + replacement
		groups++
	}

	if strings.HasSuffix(pattern, "$") {
		pattern = strings.TrimSuffix(pattern, "$")
	} else {
		// keep intermediate directories up to the basename
		pattern += "([^?#]*/)?"
		groups++
		replacement += fmt.Sprintf("${%d}", groups)
	}

	// keep the basename, fragment and query
	pattern += `([^/]*(?:#[^?/]*)?(?:\?.*)?)$`
	groups++
	replacement += fmt.Sprintf("${%d}", groups)

	return RewriteRule{Regex: pattern, Replacement: replacement}, nil
}
