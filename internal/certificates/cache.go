package certificates

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hashicorp/go-hclog"
)

var ErrNotFound = errors.New("certificate not found")

// Cache is a directory-backed store of PEM certificate files, one file per
// certificate id with the filename equal to the id. The directory is the sole
// persistent store for certificates: on startup its contents define the
// initial certificate set.
type Cache struct {
	logger    hclog.Logger
	directory string

	mutex sync.RWMutex
	paths map[string]string
}

// NewCache creates a certificate cache over the given directory, creating the
// directory if needed and seeding the in-memory mapping from its contents.
func NewCache(logger hclog.Logger, directory string) (*Cache, error) {
	if err := os.MkdirAll(directory, 0700); err != nil {
		return nil, fmt.Errorf("creating certificate directory: %w", err)
	}
	c := &Cache{
		logger:    logger,
		directory: directory,
		paths:     make(map[string]string),
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload rescans the backing directory, replacing the in-memory mapping.
func (c *Cache) Reload() error {
	entries, err := os.ReadDir(c.directory)
	if err != nil {
		return fmt.Errorf("scanning certificate directory: %w", err)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.paths = make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		c.paths[entry.Name()] = filepath.Join(c.directory, entry.Name())
	}
	c.logger.Debug("certificate cache loaded", "count", len(c.paths))
	return nil
}

// Has reports whether a certificate with the given id is cached.
func (c *Cache) Has(id string) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	_, found := c.paths[id]
	return found
}

// Path returns the on-disk path for the given certificate id.
func (c *Cache) Path(id string) (string, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	path, found := c.paths[id]
	if !found {
		return "", ErrNotFound
	}
	return path, nil
}

// IDs returns the cached certificate ids in lexical order.
func (c *Cache) IDs() []string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	ids := make([]string, 0, len(c.paths))
	for id := range c.paths {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Write persists the PEM bytes for the given certificate id. If the file
// already holds identical bytes no write happens and changed is false.
// Otherwise the file is replaced atomically by writing to a temporary file in
// the same directory and renaming it into place.
func (c *Cache) Write(id string, pem []byte) (changed bool, err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	path := filepath.Join(c.directory, id)
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, pem) {
		return false, nil
	}

	tmp, err := os.CreateTemp(c.directory, "."+id+"-*")
	if err != nil {
		return false, fmt.Errorf("creating temporary certificate file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(pem); err != nil {
		tmp.Close()
		return false, fmt.Errorf("writing certificate: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("writing certificate: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return false, fmt.Errorf("replacing certificate: %w", err)
	}

	c.paths[id] = path
	return true, nil
}

// Delete removes the certificate file and the mapping entry. It reports
// whether the certificate existed.
func (c *Cache) Delete(id string) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	path, found := c.paths[id]
	if !found {
		return false, nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("removing certificate: %w", err)
	}
	delete(c.paths, id)
	return true, nil
}
