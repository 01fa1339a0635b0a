package document

import (
	"encoding/json"
	"sync"
)

// Document types as stored in the metadata record.
const (
	TypeSection     = "section"
	TypeLearningLog = "learningLog"
	TypePublished   = "published"
)

// Visibility values controlling group-member access.
const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

// Document wraps one Content with identity and visibility. Mutations go
// through the methods below; each one notifies the registered change
// subscribers after completing, which is how the synchronization layer
// observes local edits.
type Document struct {
	UID       string
	Key       string
	Type      string
	CreatedAt int64
	SectionID string
	GroupID   string

	mu         sync.Mutex
	title      string
	visibility string
	content    *Content
	nextSubID  int
	changeSubs map[int]func()
	visSubs    map[int]func(string)
}

// New creates a document owning an empty content. createdAt is epoch
// milliseconds.
func New(uid, key, docType string, createdAt int64) *Document {
	return &Document{
		UID:        uid,
		Key:        key,
		Type:       docType,
		CreatedAt:  createdAt,
		visibility: VisibilityPrivate,
		content:    NewContent(),
		changeSubs: make(map[int]func()),
		visSubs:    make(map[int]func(string)),
	}
}

// Content returns the current content. Callers must not mutate it
// directly; use Update or the delegation methods.
func (d *Document) Content() *Content {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.content
}

// SetContent replaces the content wholesale, as when a remote patch
// arrives. Change subscribers are notified.
func (d *Document) SetContent(c *Content) {
	d.mu.Lock()
	if c == nil {
		c = NewContent()
	}
	d.content = c
	subs := d.changeSubsLocked()
	d.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

// Update applies fn to the content as a single atomic local mutation and
// notifies change subscribers. This is the entry point for edits that
// have no dedicated delegation method (table change appends, row height
// changes, and so on).
func (d *Document) Update(fn func(*Content)) {
	d.mu.Lock()
	fn(d.content)
	subs := d.changeSubsLocked()
	d.mu.Unlock()
	for _, s := range subs {
		s()
	}
}

// AddTile creates a tile with default content for the tool kind,
// delegating to the content model, and returns the new tile id.
func (d *Document) AddTile(kind string, toNewRow bool) (tileID string, err error) {
	d.mu.Lock()
	tileID, _, err = d.content.AddTile(kind, toNewRow)
	subs := d.changeSubsLocked()
	d.mu.Unlock()
	if err != nil {
		return "", err
	}
	for _, s := range subs {
		s()
	}
	return tileID, nil
}

// DeleteTile removes the tile, delegating to the content model.
// Unknown ids are a no-op.
func (d *Document) DeleteTile(tileID string) {
	d.Update(func(c *Content) { c.DeleteTile(tileID) })
}

// Title returns the user-visible title (learning logs).
func (d *Document) Title() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.title
}

// SetTitle records a new title. The sync layer calls this on remote
// renames, so reads must go through Title.
func (d *Document) SetTitle(title string) {
	d.mu.Lock()
	d.title = title
	d.mu.Unlock()
}

// Visibility returns the current visibility value.
func (d *Document) Visibility() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.visibility
}

// ToggleVisibility flips between public and private and notifies
// visibility subscribers.
func (d *Document) ToggleVisibility() {
	d.mu.Lock()
	if d.visibility == VisibilityPublic {
		d.visibility = VisibilityPrivate
	} else {
		d.visibility = VisibilityPublic
	}
	v := d.visibility
	subs := d.visSubsLocked()
	d.mu.Unlock()
	for _, fn := range subs {
		fn(v)
	}
}

// SetVisibility sets an explicit visibility value and notifies
// visibility subscribers when it changes.
func (d *Document) SetVisibility(v string) {
	if v != VisibilityPublic && v != VisibilityPrivate {
		return
	}
	d.mu.Lock()
	if d.visibility == v {
		d.mu.Unlock()
		return
	}
	d.visibility = v
	subs := d.visSubsLocked()
	d.mu.Unlock()
	for _, fn := range subs {
		fn(v)
	}
}

// Snapshot serializes the current content to its storage form.
func (d *Document) Snapshot() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return json.Marshal(d.content)
}

// OnChange registers fn to run after every content mutation. The
// returned disposer detaches the subscription; calling it more than
// once is harmless.
func (d *Document) OnChange(fn func()) func() {
	d.mu.Lock()
	id := d.nextSubID
	d.nextSubID++
	d.changeSubs[id] = fn
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		delete(d.changeSubs, id)
		d.mu.Unlock()
	}
}

// OnVisibilityChange registers fn to run with the new value whenever
// visibility changes. The returned disposer detaches the subscription.
func (d *Document) OnVisibilityChange(fn func(string)) func() {
	d.mu.Lock()
	id := d.nextSubID
	d.nextSubID++
	d.visSubs[id] = fn
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		delete(d.visSubs, id)
		d.mu.Unlock()
	}
}

func (d *Document) changeSubsLocked() []func() {
	out := make([]func(), 0, len(d.changeSubs))
	for _, fn := range d.changeSubs {
		out = append(out, fn)
	}
	return out
}

func (d *Document) visSubsLocked() []func(string) {
	out := make([]func(string), 0, len(d.visSubs))
	for _, fn := range d.visSubs {
		out = append(out, fn)
	}
	return out
}
