package processor

import (
	"os"
	"path/filepath"

	"televid/internal/pkg/logger"
)

// Cleanup is the per-job cleanup set. Paths are tracked before their files
// are created; Run removes each of them and then the job directory.
type Cleanup struct {
	dir   string
	files []string
	seen  map[string]bool
	done  bool
	log   *logger.Logger
}

func NewCleanup(dir string, log *logger.Logger) *Cleanup {
	return &Cleanup{dir: dir, seen: make(map[string]bool), log: log}
}

// Track registers path. It matches the acquire callback signature.
func (c *Cleanup) Track(path string) {
	if path != "" && !c.seen[path] {
		c.seen[path] = true
		c.files = append(c.files, path)
	}
}

// File tracks name inside the job directory and returns its path.
func (c *Cleanup) File(name string) string {
	p := filepath.Join(c.dir, name)
	c.Track(p)
	return p
}

func (c *Cleanup) Tracked() int { return len(c.files) }

// Run removes the tracked files and the job directory. Files that were never
// created are skipped. Only the first call does anything.
func (c *Cleanup) Run() (removed int) {
	if c.done {
		return 0
	}
	c.done = true

	for _, f := range c.files {
		err := os.Remove(f)
		switch {
		case err == nil:
			removed++
		case os.IsNotExist(err):
		default:
			c.log.Warn("failed to remove job file", "path", f, "error", err.Error())
		}
	}
	if c.dir != "" {
		if err := os.RemoveAll(c.dir); err != nil {
			c.log.Warn("failed to remove job directory", "path", c.dir, "error", err.Error())
		}
	}

	c.log.Info("cleanup completed", "files", removed, "tracked", len(c.files))
	return removed
}
