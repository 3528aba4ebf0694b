package localcache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/Siencmd/darkbroad/internal/domain/course"
	"github.com/Siencmd/darkbroad/internal/normalization"
	"github.com/Siencmd/darkbroad/internal/pkg/logger"
)

var (
	bucketName  = []byte("local_cache")
	subjectsKey = []byte("subjects")
	claimKey    = []byte("userData")
	ownerKey    = []byte("subjectsCourse")
)

// Cache is the durable local copy of the subject list and the actor claim.
// Reads are served from memory; writes update memory first and then persist.
// Disk failures are logged and never reach the caller.
type Cache struct {
	mu       sync.RWMutex
	db       *bbolt.DB
	log      *logger.Logger
	limit    int
	subjects []course.Subject
	owner    string
	claim    *course.Claim
}

// Open creates or loads the cache file at path. limit caps the stored list.
func Open(path string, limit int, log *logger.Logger) (*Cache, error) {
	if log == nil {
		log = logger.Nop()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("local cache dir: %w", err)
		}
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open local cache: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create local cache bucket: %w", err)
	}

	c := newCache(limit, log)
	c.db = db
	c.load()
	return c, nil
}

// NewMemory returns a cache with no backing file.
func NewMemory(limit int, log *logger.Logger) *Cache {
	if log == nil {
		log = logger.Nop()
	}
	return newCache(limit, log)
}

func newCache(limit int, log *logger.Logger) *Cache {
	if limit <= 0 {
		limit = course.MaxSubjects
	}
	return &Cache{
		log:      log.With("component", "LocalCache"),
		limit:    limit,
		subjects: []course.Subject{},
	}
}

func (c *Cache) load() {
	_ = c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if raw := b.Get(subjectsKey); raw != nil {
			c.subjects = normalization.NormalizeJSONWithLimit(raw, c.limit)
		}
		if raw := b.Get(ownerKey); raw != nil {
			if err := json.Unmarshal(raw, &c.owner); err != nil {
				c.log.Warn("Discarding unreadable list owner", "error", err)
			}
		}
		if raw := b.Get(claimKey); raw != nil {
			var claim course.Claim
			if err := json.Unmarshal(raw, &claim); err != nil {
				c.log.Warn("Discarding unreadable cached claim", "error", err)
			} else {
				c.claim = &claim
			}
		}
		return nil
	})
	c.log.Debug("Local cache loaded", "subjects", len(c.subjects), "owner", c.owner, "has_claim", c.claim != nil)
}

// Read returns a copy of the last written subject list. Never nil.
func (c *Cache) Read() []course.Subject {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return course.CloneSubjects(c.subjects)
}

// Write replaces the whole list. The input is normalized and truncated to the
// cache limit before it is stored.
func (c *Cache) Write(subjects []course.Subject) {
	next := normalization.NormalizeWithLimit(subjects, c.limit)

	c.mu.Lock()
	c.subjects = next
	c.mu.Unlock()

	c.persist(subjectsKey, next)
}

// Owner returns the course the cached list was last written for. Empty for
// lists cached before owners were recorded.
func (c *Cache) Owner() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.owner
}

func (c *Cache) SetOwner(courseID string) {
	c.mu.Lock()
	if c.owner == courseID {
		c.mu.Unlock()
		return
	}
	c.owner = courseID
	c.mu.Unlock()

	c.persist(ownerKey, courseID)
}

// ReadClaim returns the cached actor claim, if any.
func (c *Cache) ReadClaim() (course.Claim, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.claim == nil {
		return course.Claim{}, false
	}
	return *c.claim, true
}

func (c *Cache) WriteClaim(claim course.Claim) {
	c.mu.Lock()
	c.claim = &claim
	c.mu.Unlock()

	c.persist(claimKey, claim)
}

func (c *Cache) persist(key []byte, v any) {
	if c.db == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		c.log.Error("Failed to encode local cache value", "key", string(key), "error", err)
		return
	}
	err = c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put(key, raw)
	})
	if err != nil {
		c.log.Error("Failed to persist local cache value", "key", string(key), "error", err)
	}
}

func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}
