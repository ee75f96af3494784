package persist

import (
	"context"
	"log/slog"
	"sync"

	"github.com/starford/pagebook/internal/checksum"
	"github.com/starford/pagebook/internal/docstore"
	"github.com/starford/pagebook/internal/storage"
)

// Bridge persists the latest committed store state. Commits are coalesced:
// a save always writes the newest snapshot seen so far and never one older
// than what was already written.
type Bridge struct {
	kv     storage.KV
	logger *slog.Logger

	mu      sync.Mutex
	pending *docstore.Commit
	kick    chan struct{}

	saveMu  sync.Mutex // serializes writes; guards saved and written
	saved   uint64
	written map[string]string // key -> checksum of the value last written
}

// NewBridge creates a bridge writing to kv.
func NewBridge(kv storage.KV, logger *slog.Logger) *Bridge {
	return &Bridge{
		kv:      kv,
		logger:  logger,
		kick:    make(chan struct{}, 1),
		written: make(map[string]string),
	}
}

// Attach subscribes the bridge to s. The returned func detaches it.
func (b *Bridge) Attach(s *docstore.Store) (cancel func()) {
	return s.Subscribe(b.notify)
}

func (b *Bridge) notify(c docstore.Commit) {
	b.mu.Lock()
	if b.pending == nil || c.Version > b.pending.Version {
		b.pending = &c
	}
	b.mu.Unlock()

	select {
	case b.kick <- struct{}{}:
	default:
	}
}

// Run saves pending commits until ctx is cancelled, then flushes once more.
func (b *Bridge) Run(ctx context.Context) error {
	b.logger.Info("persist: bridge started")
	for {
		select {
		case <-ctx.Done():
			b.Flush(context.WithoutCancel(ctx))
			b.logger.Info("persist: bridge stopped")
			return nil
		case <-b.kick:
			b.Flush(ctx)
		}
	}
}

// Flush writes the newest pending commit, if any, synchronously.
func (b *Bridge) Flush(ctx context.Context) {
	b.saveMu.Lock()
	defer b.saveMu.Unlock()

	b.mu.Lock()
	c := b.pending
	b.pending = nil
	b.mu.Unlock()

	if c == nil || c.Version <= b.saved {
		return
	}
	b.saveLocked(ctx, c.State)
	b.saved = c.Version
}

// Save writes st immediately, bypassing the commit queue. Used once after
// hydration so a freshly seeded workspace is persisted.
func (b *Bridge) Save(ctx context.Context, st docstore.State) {
	b.saveMu.Lock()
	defer b.saveMu.Unlock()
	b.saveLocked(ctx, st)
}

func (b *Bridge) saveLocked(ctx context.Context, st docstore.State) {
	b.put(ctx, KeyTheme, string(st.Theme))

	if len(st.Pages) == 0 {
		b.remove(ctx, KeyPages)
	} else if data, err := EncodePages(st.Pages); err != nil {
		b.logger.Error("persist: encode failed", slog.String("error", err.Error()))
	} else {
		b.put(ctx, KeyPages, string(data))
	}

	if st.CurrentPageID == "" {
		b.remove(ctx, KeyCurrentPageID)
	} else {
		b.put(ctx, KeyCurrentPageID, st.CurrentPageID)
	}
}

func (b *Bridge) put(ctx context.Context, key, value string) {
	sum := checksum.String(value)
	if prev, ok := b.written[key]; ok && prev == sum {
		return
	}
	if err := b.kv.Set(ctx, key, value); err != nil {
		delete(b.written, key)
		b.logger.Warn("persist: write failed", slog.String("key", key), slog.String("error", err.Error()))
		return
	}
	b.written[key] = sum
	b.logger.Debug("persist: wrote", slog.String("key", key), slog.Int("bytes", len(value)))
}

func (b *Bridge) remove(ctx context.Context, key string) {
	if err := b.kv.Delete(ctx, key); err != nil {
		b.logger.Warn("persist: delete failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	delete(b.written, key)
}
