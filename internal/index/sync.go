package index

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/pagebook/internal/checksum"
	"github.com/starford/pagebook/internal/docstore"
	"github.com/starford/pagebook/internal/export"
	"github.com/starford/pagebook/internal/models"
)

// Sync brings the index up to date with st:
//   - new/changed pages are rendered and upserted
//   - pages no longer in st are deleted from the index
func Sync(db PageIndex, st docstore.State, logger *slog.Logger) error {
	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for id, p := range st.Pages {
		body := export.Markdown(p)
		cs := pageChecksum(p, body)
		if checksums[id] == cs {
			continue
		}
		row := PageRow{ID: id, Title: p.Title, Checksum: cs, UpdatedAt: now}
		if err := db.UpsertPage(row, body); err != nil {
			logger.Warn("sync: index failed", slog.String("page", id), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("page", id))
		}
	}

	// Remove stale entries.
	for id := range checksums {
		if _, ok := st.Pages[id]; !ok {
			if err := db.DeletePage(id); err != nil {
				logger.Warn("sync: delete failed", slog.String("page", id), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("page", id))
			}
		}
	}
	return nil
}

func pageChecksum(p models.Page, body string) string {
	return checksum.String(p.Title + "\x00" + body)
}

// Follower keeps an index in step with a store. Commits are coalesced so
// a burst of edits produces one sync of the newest state.
type Follower struct {
	db     PageIndex
	logger *slog.Logger

	mu      sync.Mutex
	pending *docstore.Commit
	synced  uint64
	kick    chan struct{}
}

// NewFollower creates a follower writing into db.
func NewFollower(db PageIndex, logger *slog.Logger) *Follower {
	return &Follower{db: db, logger: logger, kick: make(chan struct{}, 1)}
}

// Attach subscribes the follower to s. The returned func detaches it.
func (f *Follower) Attach(s *docstore.Store) (cancel func()) {
	return s.Subscribe(f.notify)
}

func (f *Follower) notify(c docstore.Commit) {
	if !touchesPages(c.Changes) {
		return
	}
	f.mu.Lock()
	if f.pending == nil || c.Version > f.pending.Version {
		f.pending = &c
	}
	f.mu.Unlock()

	select {
	case f.kick <- struct{}{}:
	default:
	}
}

// Run syncs pending commits until ctx is cancelled.
func (f *Follower) Run(ctx context.Context) error {
	f.logger.Info("index: follower started")
	for {
		select {
		case <-ctx.Done():
			f.Flush()
			f.logger.Info("index: follower stopped")
			return nil
		case <-f.kick:
			f.Flush()
		}
	}
}

// Flush syncs the newest pending commit, if any.
func (f *Follower) Flush() {
	f.mu.Lock()
	c := f.pending
	f.pending = nil
	f.mu.Unlock()

	if c == nil || c.Version <= f.synced {
		return
	}
	if err := Sync(f.db, c.State, f.logger); err != nil {
		f.logger.Warn("index: sync failed", slog.String("error", err.Error()))
		return
	}
	f.synced = c.Version
}

func touchesPages(changes []docstore.Change) bool {
	for _, ch := range changes {
		switch ch.Kind {
		case docstore.PageCreated, docstore.PageUpdated, docstore.PageDeleted:
			return true
		}
	}
	return false
}
