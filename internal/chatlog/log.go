// Package chatlog holds the ordered message log shown to the user.
package chatlog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"pkt.systems/companion/internal/persist"
	"pkt.systems/companion/schema"
	"pkt.systems/pslog"
)

// DefaultMaxItems bounds the log when no limit is configured.
const DefaultMaxItems = 500

// ItemKind distinguishes text entries from image entries.
type ItemKind int

const (
	// KindText is a message or notice.
	KindText ItemKind = iota
	// KindImage is an image placeholder, pending or resolved.
	KindImage
)

// Item is a snapshot of one log entry.
type Item struct {
	ID    schema.ItemID
	Kind  ItemKind
	Role  schema.Role
	Text  string
	Image schema.ImageResult
	At    time.Time
}

// Sink is notified when items are appended or image placeholders resolve.
// Calls are made outside the log's lock, in the order the changes happened.
type Sink interface {
	ItemAppended(item Item)
	ItemResolved(item Item)
}

// Log is an ordered, bounded message log. Safe for concurrent use.
type Log struct {
	mu       sync.Mutex
	sinkMu   sync.Mutex
	items    []Item
	nextID   schema.ItemID
	maxItems int
	sink     Sink
	saveDir  string
	log      pslog.Logger
}

// Options configures a Log.
type Options struct {
	MaxItems int
	// SaveDir is used by SaveImage when no path is given.
	SaveDir string
	Sink    Sink
	Logger  pslog.Logger
}

// New returns an empty log.
func New(opts Options) *Log {
	maxItems := opts.MaxItems
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	return &Log{
		maxItems: maxItems,
		sink:     opts.Sink,
		saveDir:  opts.SaveDir,
		log:      opts.Logger,
	}
}

// AppendText appends a text entry and returns its id.
func (l *Log) AppendText(role schema.Role, text string) schema.ItemID {
	return l.append(Item{Kind: KindText, Role: role, Text: text})
}

// AppendImagePlaceholder appends a pending image entry and returns its id.
func (l *Log) AppendImagePlaceholder() schema.ItemID {
	return l.append(Item{Kind: KindImage, Role: schema.RoleAssistant, Image: schema.ImageResult{Kind: schema.ImagePending}})
}

func (l *Log) append(item Item) schema.ItemID {
	l.sinkMu.Lock()
	defer l.sinkMu.Unlock()
	l.mu.Lock()
	l.nextID++
	item.ID = l.nextID
	item.At = time.Now()
	l.items = append(l.items, item)
	if len(l.items) > l.maxItems {
		trim := len(l.items) - l.maxItems
		l.items = append([]Item(nil), l.items[trim:]...)
	}
	l.mu.Unlock()
	if l.sink != nil {
		l.sink.ItemAppended(item)
	}
	return item.ID
}

// ResolveImagePlaceholder settles a pending image entry. It returns false when the
// entry is unknown, not an image, or already resolved; the entry is left untouched then.
func (l *Log) ResolveImagePlaceholder(id schema.ItemID, result schema.ImageResult) bool {
	if result.Kind == schema.ImagePending {
		return false
	}
	l.sinkMu.Lock()
	defer l.sinkMu.Unlock()
	l.mu.Lock()
	idx := l.indexLocked(id)
	if idx < 0 || l.items[idx].Kind != KindImage || l.items[idx].Image.Kind != schema.ImagePending {
		l.mu.Unlock()
		return false
	}
	l.items[idx].Image = result
	item := l.items[idx]
	l.mu.Unlock()
	if l.sink != nil {
		l.sink.ItemResolved(item)
	}
	return true
}

// Items returns a copy of the current entries, oldest first.
func (l *Log) Items() []Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Item(nil), l.items...)
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Item returns the entry with the given id.
func (l *Log) Item(id schema.ItemID) (Item, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := l.indexLocked(id)
	if idx < 0 {
		return Item{}, false
	}
	return l.items[idx], true
}

// ids are assigned in increasing order, so the slice is sorted by id.
func (l *Log) indexLocked(id schema.ItemID) int {
	lo, hi := 0, len(l.items)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case l.items[mid].ID == id:
			return mid
		case l.items[mid].ID < id:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return -1
}

// SaveImage writes the bytes of a rendered image to path without fetching it again.
// An empty path uses the configured save dir; a directory gets image-<id>.<ext>.
// It returns the path written.
func (l *Log) SaveImage(id schema.ItemID, path string) (string, error) {
	item, ok := l.Item(id)
	if !ok || item.Kind != KindImage {
		return "", fmt.Errorf("%w: item %d", schema.ErrImageNotFound, id)
	}
	switch item.Image.Kind {
	case schema.ImagePending:
		return "", fmt.Errorf("%w: item %d", schema.ErrImagePending, id)
	case schema.ImageReady:
	default:
		return "", fmt.Errorf("%w: item %d %s", schema.ErrImageNotFound, id, item.Image.Kind)
	}
	target, err := l.resolveSavePath(id, item.Image.Extension, path)
	if err != nil {
		return "", err
	}
	if err := persist.WriteFileAtomic(target, item.Image.Data, 0o644); err != nil {
		return "", fmt.Errorf("save image: %w", err)
	}
	if l.log != nil {
		l.log.Info("image saved", "item", int(id), "path", target, "bytes", len(item.Image.Data))
	}
	return target, nil
}

func (l *Log) resolveSavePath(id schema.ItemID, ext, path string) (string, error) {
	path = strings.TrimSpace(path)
	name := fmt.Sprintf("image-%d.%s", id, strings.TrimPrefix(defaultExt(ext), "."))
	if path == "" {
		dir := l.saveDir
		if dir == "" {
			dir = "."
		}
		return filepath.Join(dir, name), nil
	}
	if strings.HasSuffix(path, string(os.PathSeparator)) {
		return filepath.Join(path, name), nil
	}
	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		return filepath.Join(path, name), nil
	}
	if err != nil && !os.IsNotExist(err) {
		return "", err
	}
	return path, nil
}

func defaultExt(ext string) string {
	if strings.TrimSpace(ext) == "" {
		return "img"
	}
	return ext
}
