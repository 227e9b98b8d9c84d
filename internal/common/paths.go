package common

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// extraProxyPaths are directories where alternate builds of supported web
// proxies install their binaries but which are often missing from PATH.
var extraProxyPaths = []string{
	"/usr/local/nginx/sbin",
	"/usr/local/sbin",
	"/usr/sbin",
	"/opt/nginx/sbin",
}

// AugmentPath prepends the known alternate proxy install directories to PATH
// so that FindOnPath discovers proxy binaries by name.
func AugmentPath() {
	path := os.Getenv("PATH")
	entries := filepath.SplitList(path)
	present := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		present[entry] = struct{}{}
	}

	prefix := []string{}
	for _, dir := range extraProxyPaths {
		if _, found := present[dir]; !found {
			prefix = append(prefix, dir)
		}
	}
	if len(prefix) == 0 {
		return
	}
	os.Setenv("PATH", strings.Join(append(prefix, path), string(os.PathListSeparator)))
}

// FindOnPath returns the absolute path of an executable command on the
// current PATH, or the empty string if the command does not exist.
func FindOnPath(cmd string) string {
	path, err := exec.LookPath(cmd)
	if err != nil {
		return ""
	}
	return path
}

// ListJoin joins the string forms of a list using sep1 between items, except
// for the last two items which are separated by sep2.
//
//	ListJoin([]string{"nginx", "apache", "lighttpd"}, ", ", " or ")
//	=> "nginx, apache or lighttpd"
func ListJoin(items []string, sep1, sep2 string) string {
	if len(items) <= 1 {
		return strings.Join(items, sep1)
	}
	head := items[:len(items)-2]
	tail := strings.Join(items[len(items)-2:], sep2)
	return strings.Join(append(append([]string{}, head...), tail), sep1)
}
