// Package sync keeps in-memory documents and the remote store
// consistent. Each monitored document gets a remote watch that applies
// incoming records to the model and a model subscription that writes
// local edits back, with echo suppression so a client's own writes do
// not loop. Listener callbacks log and continue; they never panic the
// process.
package sync

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	gosync "sync"

	"github.com/rs/zerolog"

	"github.com/mesh-learning/tileboard/pkg/document"
	"github.com/mesh-learning/tileboard/pkg/store"
)

// Syncer errors.
var (
	ErrNotQAMode    = errors.New("clear requires qa mode")
	ErrUnknownLevel = errors.New("unknown clear level")
	ErrNotFound     = errors.New("document not found")
)

// Clear levels.
const (
	ClearAll      = "all"
	ClearClass    = "class"
	ClearOffering = "offering"
)

// Syncer connects one user's documents to the store.
type Syncer struct {
	store store.Store
	paths *store.Paths
	log   zerolog.Logger

	// mu serializes listener continuations so remote applies and local
	// write-backs never interleave mid-mutation.
	mu        gosync.Mutex
	listeners *registry
	docs      map[string]*docState
}

// docState is the echo-suppression state for one monitored document.
type docState struct {
	lastWritten string
	applying    bool
}

// New returns a syncer for the user the paths were built for.
func New(st store.Store, paths *store.Paths, log zerolog.Logger) *Syncer {
	return &Syncer{
		store:     st,
		paths:     paths,
		log:       log.With().Str("component", "sync").Logger(),
		listeners: newRegistry(),
		docs:      make(map[string]*docState),
	}
}

// Close detaches every listener. In-flight writes complete
// fire-and-forget; their echoes land on no registered listener.
func (s *Syncer) Close() {
	s.listeners.closeAll()
}

//
// Document creation and opening.
//

// CreateSectionDocument creates an empty section document for the
// syncer's user, writing the content record, the metadata record, and
// the section document pointer (private by default).
func (s *Syncer) CreateSectionDocument(sectionID string) (*document.Document, error) {
	doc, err := s.createDocument(document.TypeSection)
	if err != nil {
		return nil, err
	}
	doc.SectionID = sectionID

	pointer := store.SectionDocumentRecord{
		Version: store.RecordVersion,
		Self: store.SectionDocumentSelf{
			ClassHash:  s.paths.User.ClassHash,
			OfferingID: s.paths.User.OfferingID,
			UID:        doc.UID,
			SectionID:  sectionID,
		},
		Visibility:  document.VisibilityPrivate,
		DocumentKey: doc.Key,
	}
	tree, err := store.Encode(pointer)
	if err != nil {
		return nil, err
	}
	path := s.paths.FullPath(s.paths.SectionDocumentPath("", sectionID))
	if err := s.store.Set(path, tree); err != nil {
		return nil, fmt.Errorf("create section document: %w", err)
	}
	return doc, nil
}

// CreateLearningLog creates an empty learning log document with the
// given title.
func (s *Syncer) CreateLearningLog(title string) (*document.Document, error) {
	doc, err := s.createDocument(document.TypeLearningLog)
	if err != nil {
		return nil, err
	}
	doc.SetTitle(title)

	rec := store.LearningLogRecord{
		Version: store.RecordVersion,
		Self:    store.DocumentSelf{UID: doc.UID, DocumentKey: doc.Key},
		Title:   title,
	}
	tree, err := store.Encode(rec)
	if err != nil {
		return nil, err
	}
	path := s.paths.FullPath(s.paths.LearningLogPath("", doc.Key))
	if err := s.store.Set(path, tree); err != nil {
		return nil, fmt.Errorf("create learning log: %w", err)
	}
	return doc, nil
}

// createDocument allocates a key and writes the content and metadata
// records.
func (s *Syncer) createDocument(docType string) (*document.Document, error) {
	uid := s.paths.User.ID
	key := store.NewPushKey()
	doc := document.New(uid, key, docType, 0)

	raw, err := doc.Snapshot()
	if err != nil {
		return nil, err
	}
	rec := store.DocumentRecord{
		Version: store.RecordVersion,
		Self:    store.DocumentSelf{UID: uid, DocumentKey: key},
		Content: string(raw),
		Type:    docType,
	}
	meta := store.DocumentMetadata{
		Version:    store.RecordVersion,
		Self:       store.DocumentSelf{UID: uid, DocumentKey: key},
		CreatedAt:  store.ServerTimestamp(),
		Type:       docType,
		ClassHash:  s.paths.User.ClassHash,
		OfferingID: s.paths.User.OfferingID,
	}
	recTree, err := store.Encode(rec)
	if err != nil {
		return nil, err
	}
	metaTree, err := store.Encode(meta)
	if err != nil {
		return nil, err
	}
	if err := s.store.Set(s.paths.FullPath(s.paths.UserDocumentPath("", key)), recTree); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	if err := s.store.Set(s.paths.FullPath(s.paths.UserDocumentMetadataPath("", key)), metaTree); err != nil {
		return nil, fmt.Errorf("create document metadata: %w", err)
	}
	s.log.Debug().Str("key", key).Str("type", docType).Msg("document created")
	return doc, nil
}

// OpenDocument reads userID's document once and hydrates a model from
// it, clearing any persisted text focus markers. An empty userID opens
// the syncer's own user's document.
func (s *Syncer) OpenDocument(userID, documentKey string) (*document.Document, error) {
	path := s.paths.FullPath(s.paths.UserDocumentPath(userID, documentKey))
	tree, err := s.store.Once(path)
	if err != nil {
		return nil, err
	}
	var rec store.DocumentRecord
	if err := store.Decode(tree, &rec); err != nil {
		return nil, fmt.Errorf("open %s: %w", documentKey, ErrNotFound)
	}

	var createdAt int64
	metaPath := s.paths.FullPath(s.paths.UserDocumentMetadataPath(userID, documentKey))
	if metaTree, err := s.store.Once(metaPath); err == nil {
		var meta store.DocumentMetadata
		if err := store.Decode(metaTree, &meta); err == nil {
			createdAt = meta.CreatedAtMillis()
		}
	}

	doc := document.New(rec.Self.UID, rec.Self.DocumentKey, rec.Type, createdAt)
	if rec.Content != "" {
		content, err := parseContent(rec.Content)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", documentKey, err)
		}
		doc.SetContent(content)
	}
	return doc, nil
}

//
// Monitoring.
//

// MonitorDocument attaches the two-way sync for doc: remote record
// changes are applied to the model, local model changes are written
// back as whole-content updates. Returns after registering; everything
// later happens on listener callbacks.
func (s *Syncer) MonitorDocument(doc *document.Document) error {
	key := doc.Key
	path := s.paths.FullPath(s.paths.UserDocumentPath(userIDFor(s, doc), key))

	s.mu.Lock()
	if _, ok := s.docs[key]; !ok {
		s.docs[key] = &docState{}
	}
	s.mu.Unlock()

	sub, err := s.store.Watch(path, func(tree any) {
		s.applyRemote(doc, tree)
	})
	if err != nil {
		return fmt.Errorf("monitor %s: %w", key, err)
	}
	dispose := doc.OnChange(func() {
		s.writeLocal(doc, path)
	})

	s.listeners.set(listenerKey(listenerDocument, key), func() {
		sub.Close()
		dispose()
	})
	return nil
}

// StopMonitoring detaches the document listener for key, if attached.
func (s *Syncer) StopMonitoring(key string) {
	s.listeners.remove(listenerKey(listenerDocument, key))
}

// applyRemote parses an incoming document record and replaces the model
// content. Payloads whose canonical form equals the model's current
// snapshot are skipped, which both absorbs our own write echoes and
// keeps stale intermediate events convergent: a newer event always
// differs from whatever it must correct.
func (s *Syncer) applyRemote(doc *document.Document, tree any) {
	var rec store.DocumentRecord
	if err := store.Decode(tree, &rec); err != nil {
		s.log.Warn().Str("key", doc.Key).Err(err).Msg("ignoring malformed document record")
		return
	}
	if rec.Content == "" {
		return
	}
	incoming, err := parseContent(rec.Content)
	if err != nil {
		s.log.Warn().Str("key", doc.Key).Err(err).Msg("ignoring malformed document content")
		return
	}
	canonical, err := json.Marshal(incoming)
	if err != nil {
		return
	}

	s.mu.Lock()
	st := s.docs[doc.Key]
	if st == nil || st.applying {
		s.mu.Unlock()
		return
	}
	if cur, err := doc.Snapshot(); err == nil && string(cur) == string(canonical) {
		st.lastWritten = string(canonical)
		s.mu.Unlock()
		return
	}
	st.applying = true
	s.mu.Unlock()

	doc.SetContent(incoming)

	s.mu.Lock()
	st.applying = false
	st.lastWritten = string(canonical)
	s.mu.Unlock()
}

// writeLocal serializes the model and updates the remote content
// record, skipping writes triggered by a remote apply and writes that
// would repeat the last one.
func (s *Syncer) writeLocal(doc *document.Document, path string) {
	s.mu.Lock()
	st := s.docs[doc.Key]
	if st == nil || st.applying {
		s.mu.Unlock()
		return
	}
	raw, err := doc.Snapshot()
	if err != nil {
		s.mu.Unlock()
		s.log.Error().Str("key", doc.Key).Err(err).Msg("serialize failed")
		return
	}
	serialized := string(raw)
	if serialized == st.lastWritten {
		s.mu.Unlock()
		return
	}
	st.lastWritten = serialized
	s.mu.Unlock()

	if err := s.store.Update(path, map[string]any{"content": serialized}); err != nil {
		s.log.Error().Str("key", doc.Key).Err(err).Msg("write failed")
	}
}

// MonitorVisibility propagates the document's visibility toggles into
// its section document pointer record.
func (s *Syncer) MonitorVisibility(doc *document.Document, sectionID string) {
	path := s.paths.FullPath(s.paths.SectionDocumentPath("", sectionID))
	dispose := doc.OnVisibilityChange(func(visibility string) {
		err := s.store.Update(path, map[string]any{"visibility": visibility})
		if err != nil {
			s.log.Error().Str("key", doc.Key).Err(err).Msg("visibility write failed")
		}
	})
	s.listeners.set(listenerKey(listenerVisibility, doc.Key), dispose)
}

// MonitorLearningLogTitle watches the learning log record and updates
// the model title on rename.
func (s *Syncer) MonitorLearningLogTitle(doc *document.Document) error {
	path := s.paths.FullPath(s.paths.LearningLogPath("", doc.Key))
	sub, err := s.store.Watch(path, func(tree any) {
		var rec store.LearningLogRecord
		if err := store.Decode(tree, &rec); err != nil {
			return
		}
		doc.SetTitle(rec.Title)
	})
	if err != nil {
		return fmt.Errorf("monitor learning log %s: %w", doc.Key, err)
	}
	s.listeners.set(listenerKey(listenerLearningLog, doc.Key), sub.Close)
	return nil
}

// WatchGroupMemberDocument follows one group member's section document.
// While the pointer is public the member's live document is opened,
// monitored, and delivered through set; when it goes private (or away)
// set receives nil so the shared copy is cleared.
func (s *Syncer) WatchGroupMemberDocument(memberUID, sectionID string, set func(uid string, doc *document.Document)) error {
	pointerPath := s.paths.FullPath(s.paths.SectionDocumentPath(memberUID, sectionID))
	contentKey := listenerKey(listenerGroupDoc, memberUID+"/"+sectionID+"/content")

	sub, err := s.store.Watch(pointerPath, func(tree any) {
		var rec store.SectionDocumentRecord
		if err := store.Decode(tree, &rec); err != nil || rec.Visibility != document.VisibilityPublic || rec.DocumentKey == "" {
			s.listeners.remove(contentKey)
			set(memberUID, nil)
			return
		}
		doc, err := s.OpenDocument(memberUID, rec.DocumentKey)
		if err != nil {
			s.log.Warn().Str("uid", memberUID).Err(err).Msg("cannot open group document")
			set(memberUID, nil)
			return
		}
		doc.SectionID = sectionID
		contentPath := s.paths.FullPath(s.paths.UserDocumentPath(memberUID, rec.DocumentKey))
		contentSub, err := s.store.Watch(contentPath, func(tree any) {
			s.applyRemoteForeign(doc, tree)
		})
		if err != nil {
			s.log.Warn().Str("uid", memberUID).Err(err).Msg("cannot watch group document")
			set(memberUID, nil)
			return
		}
		s.listeners.set(contentKey, contentSub.Close)
		set(memberUID, doc)
	})
	if err != nil {
		return fmt.Errorf("watch group member %s: %w", memberUID, err)
	}
	s.listeners.set(listenerKey(listenerGroupDoc, memberUID+"/"+sectionID), func() {
		sub.Close()
		s.listeners.remove(contentKey)
	})
	return nil
}

// applyRemoteForeign applies a record to a read-only foreign document;
// no echo suppression is needed since we never write it back.
func (s *Syncer) applyRemoteForeign(doc *document.Document, tree any) {
	var rec store.DocumentRecord
	if err := store.Decode(tree, &rec); err != nil || rec.Content == "" {
		return
	}
	content, err := parseContent(rec.Content)
	if err != nil {
		s.log.Warn().Str("key", doc.Key).Err(err).Msg("ignoring malformed group document content")
		return
	}
	doc.SetContent(content)
}

//
// Publishing and maintenance.
//

// PublishDocument snapshots doc into the offering's publications list.
// connections records which group members were connected at publish
// time.
func (s *Syncer) PublishDocument(doc *document.Document, groupID string, connections map[string]bool) (string, error) {
	raw, err := doc.Snapshot()
	if err != nil {
		return "", err
	}
	rec := store.PublicationRecord{
		Version: store.RecordVersion,
		Self: store.PublicationSelf{
			ClassHash:   s.paths.User.ClassHash,
			OfferingID:  s.paths.User.OfferingID,
			UID:         doc.UID,
			DocumentKey: doc.Key,
		},
		Content:         string(raw),
		CreatedAt:       store.ServerTimestamp(),
		GroupID:         groupID,
		UserConnections: connections,
	}
	tree, err := store.Encode(rec)
	if err != nil {
		return "", err
	}
	pubKey := store.NewPushKey()
	path := s.paths.FullPath(s.paths.PublicationsPath() + "/" + pubKey)
	if err := s.store.Set(path, tree); err != nil {
		return "", fmt.Errorf("publish %s: %w", doc.Key, err)
	}
	s.log.Info().Str("key", doc.Key).Str("publication", pubKey).Msg("document published")
	return pubKey, nil
}

// Clear wipes store state at the given level. Only available in qa
// mode; everywhere else it refuses.
func (s *Syncer) Clear(level string) error {
	if s.paths.Mode != store.ModeQA {
		return ErrNotQAMode
	}
	switch level {
	case ClearAll:
		return s.store.Delete(s.paths.Root())
	case ClearClass:
		return s.store.Delete(s.paths.FullPath(s.paths.ClassPath()))
	case ClearOffering:
		return s.store.Delete(s.paths.FullPath(s.paths.OfferingPath()))
	default:
		return fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}
}

//
// Helpers.
//

// parseContent deserializes a content record string, clearing text
// focus markers so a remote author's cursor never appears selected
// here.
func parseContent(serialized string) (*document.Content, error) {
	serialized = strings.ReplaceAll(serialized, `"isFocused":true`, `"isFocused":false`)
	content := document.NewContent()
	if err := content.UnmarshalJSON([]byte(serialized)); err != nil {
		return nil, fmt.Errorf("parse content: %w", err)
	}
	return content, nil
}

// userIDFor maps a document owner to the paths userID parameter: the
// syncer's own user is addressed with the empty string.
func userIDFor(s *Syncer, doc *document.Document) string {
	if doc.UID == s.paths.User.ID {
		return ""
	}
	return doc.UID
}
