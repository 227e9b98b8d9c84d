package nginx

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dlclark/regexp2"
	"github.com/hashicorp/go-multierror"

	"github.com/fivegmag/rt-5gms-application-server/internal/metrics"
	"github.com/fivegmag/rt-5gms-application-server/internal/proxy"
)

const (
	// cacheKeyMarker introduces the key line inside an nginx cache file's
	// text header.
	cacheKeyMarker = "\nKEY: "

	// cacheKeySeparator splits a cache key into provisioning session id and
	// URL path.
	cacheKeySeparator = ":u="

	// cacheHeaderLimit bounds how much of each cache file is read while
	// looking for the key.
	cacheHeaderLimit = 4096
)

// PurgeAll removes every cache entry belonging to the provisioning session.
func (n *Nginx) PurgeAll(psid string) (int, error) {
	return n.purge(psid, func(string) bool { return true })
}

// PurgeRegex removes the session's cache entries whose URL path matches the
// given regular expression. A pattern that does not compile yields an
// InvalidPatternError.
func (n *Nginx) PurgeRegex(psid, pattern string) (int, error) {
	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return 0, &proxy.InvalidPatternError{Pattern: pattern, Err: err}
	}
	return n.purge(psid, func(urlPath string) bool {
		matched, err := re.MatchString(urlPath)
		if err != nil {
			n.logger.Warn("error matching cache key", "pattern", pattern, "path", urlPath, "error", err)
			return false
		}
		return matched
	})
}

// PurgePrefix removes the session's cache entries whose URL path starts with
// the given prefix.
func (n *Nginx) PurgePrefix(psid, prefix string) (int, error) {
	return n.purge(psid, func(urlPath string) bool {
		return strings.HasPrefix(urlPath, prefix)
	})
}

// PurgePath removes the session's cache entries for exactly the given URL
// path.
func (n *Nginx) PurgePath(psid, path string) (int, error) {
	return n.purge(psid, func(urlPath string) bool {
		return urlPath == path
	})
}

// purge walks the proxy cache directory, parses each entry's embedded key,
// deletes the entries of the given provisioning session that the predicate
// accepts, and signals the proxy so it drops in-memory references. The cache
// directory is concurrently written by the proxy, so files appearing or
// disappearing mid-walk are tolerated.
func (n *Nginx) purge(psid string, match func(urlPath string) bool) (int, error) {
	cfg := n.config()
	cacheDir := cfg.Nginx.ProxyCachePath
	if cacheDir == "" {
		return 0, nil
	}

	var victims []string
	err := filepath.WalkDir(cacheDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}

		keyPsid, urlPath, ok := n.readCacheKey(path)
		if !ok {
			return nil
		}
		if keyPsid == psid && match(urlPath) {
			victims = append(victims, path)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	var errs *multierror.Error
	deleted := 0
	for _, victim := range victims {
		if err := os.Remove(victim); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			errs = multierror.Append(errs, err)
			continue
		}
		deleted++
	}
	if deleted > 0 {
		metrics.Registry.IncrCounter(metrics.CachePurgedEntries, float32(deleted))
	}

	n.logger.Info("purged cache entries", "provisioningSession", psid, "deleted", deleted)
	n.Signal(syscall.SIGHUP)

	return deleted, errs.ErrorOrNil()
}

// readCacheKey extracts the provisioning session id and URL path from a
// cache file's embedded key. Entries whose key cannot be parsed are skipped.
func (n *Nginx) readCacheKey(path string) (psid, urlPath string, ok bool) {
	file, err := os.Open(path)
	if err != nil {
		// the proxy may have evicted the entry mid-walk
		if !os.IsNotExist(err) {
			n.logger.Warn("unable to open cache file", "path", path, "error", err)
		}
		return "", "", false
	}
	defer file.Close()

	header := make([]byte, cacheHeaderLimit)
	read, err := io.ReadFull(file, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		n.logger.Warn("unable to read cache file header", "path", path, "error", err)
		return "", "", false
	}
	header = header[:read]

	start := bytes.Index(header, []byte(cacheKeyMarker))
	if start < 0 {
		n.logger.Warn("cache file has no key header", "path", path)
		return "", "", false
	}
	start += len(cacheKeyMarker)
	end := bytes.IndexByte(header[start:], '\n')
	if end < 0 {
		n.logger.Warn("cache file key is truncated", "path", path)
		return "", "", false
	}

	key := string(header[start : start+end])
	psid, urlPath, found := cutKey(key)
	if !found {
		n.logger.Warn("cache file key has unexpected form", "path", path, "key", key)
		return "", "", false
	}
	return psid, urlPath, true
}

func cutKey(key string) (psid, urlPath string, found bool) {
	index := strings.Index(key, cacheKeySeparator)
	if index < 0 {
		return "", "", false
	}
	return key[:index], key[index+len(cacheKeySeparator):], true
}
