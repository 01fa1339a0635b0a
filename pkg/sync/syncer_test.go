package sync

import (
	gosync "sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-learning/tileboard/internal/memstore"
	"github.com/mesh-learning/tileboard/pkg/content"
	"github.com/mesh-learning/tileboard/pkg/document"
	"github.com/mesh-learning/tileboard/pkg/store"
)

func testUser(id string) *store.User {
	return &store.User{
		ID:         id,
		Name:       "Student " + id,
		Portal:     "learn.example.org",
		ClassHash:  "class-1",
		OfferingID: "offering-1",
	}
}

func testSyncer(t *testing.T, h *memstore.Hub, uid string) *Syncer {
	t.Helper()
	sess := h.NewSession()
	t.Cleanup(func() { sess.Close() })
	s := New(sess, store.NewPaths(store.ModeTest, "run", testUser(uid)), zerolog.Nop())
	t.Cleanup(s.Close)
	return s
}

func TestCreateAndOpenSectionDocument(t *testing.T) {
	h := memstore.NewHub()
	defer h.Close()
	s := testSyncer(t, h, "u1")

	doc, err := s.CreateSectionDocument("intro")
	require.NoError(t, err)
	require.NotEmpty(t, doc.Key)
	assert.Equal(t, document.TypeSection, doc.Type)

	reopened, err := s.OpenDocument("", doc.Key)
	require.NoError(t, err)
	assert.Equal(t, doc.Key, reopened.Key)
	assert.True(t, reopened.Content().IsEmpty())
}

func TestOpenMissingDocument(t *testing.T) {
	h := memstore.NewHub()
	defer h.Close()
	s := testSyncer(t, h, "u1")

	_, err := s.OpenDocument("", "no-such-key")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLocalEditReachesSecondClient(t *testing.T) {
	h := memstore.NewHub()
	defer h.Close()
	author := testSyncer(t, h, "u1")
	reader := testSyncer(t, h, "u2")

	doc, err := author.CreateSectionDocument("intro")
	require.NoError(t, err)
	require.NoError(t, author.MonitorDocument(doc))

	shared, err := reader.OpenDocument("u1", doc.Key)
	require.NoError(t, err)
	require.NoError(t, reader.MonitorDocument(shared))

	_, err = doc.AddTile(content.KindText, true)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return shared.Content().TileCount() == 1
	}, time.Second, time.Millisecond)
}

func TestEchoDoesNotReapply(t *testing.T) {
	h := memstore.NewHub()
	defer h.Close()
	s := testSyncer(t, h, "u1")

	doc, err := s.CreateSectionDocument("intro")
	require.NoError(t, err)
	require.NoError(t, s.MonitorDocument(doc))
	// Let the initial watch snapshot drain before counting changes.
	time.Sleep(20 * time.Millisecond)

	var mu gosync.Mutex
	changes := 0
	doc.OnChange(func() {
		mu.Lock()
		changes++
		mu.Unlock()
	})

	_, err = doc.AddTile(content.KindText, true)
	require.NoError(t, err)

	// Give the echo time to arrive; it must be suppressed, so the only
	// observed change is the local edit itself.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, changes)
}

func TestMalformedRemotePayloadIgnored(t *testing.T) {
	h := memstore.NewHub()
	defer h.Close()
	s := testSyncer(t, h, "u1")

	doc, err := s.CreateSectionDocument("intro")
	require.NoError(t, err)
	require.NoError(t, s.MonitorDocument(doc))
	time.Sleep(20 * time.Millisecond)
	_, err = doc.AddTile(content.KindText, true)
	require.NoError(t, err)

	paths := store.NewPaths(store.ModeTest, "run", testUser("u1"))
	path := paths.FullPath(paths.UserDocumentPath("", doc.Key))
	require.NoError(t, h.Set(path+"/content", "this is not json"))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, doc.Content().TileCount(), "model survives garbage payloads")
}

func TestStopMonitoringDetaches(t *testing.T) {
	h := memstore.NewHub()
	defer h.Close()
	s := testSyncer(t, h, "u1")

	doc, err := s.CreateSectionDocument("intro")
	require.NoError(t, err)
	require.NoError(t, s.MonitorDocument(doc))
	s.StopMonitoring(doc.Key)

	_, err = doc.AddTile(content.KindText, true)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	reopened, err := s.OpenDocument("", doc.Key)
	require.NoError(t, err)
	assert.Zero(t, reopened.Content().TileCount(), "writes stop after detach")
}

func TestVisibilityUpdatesSectionRecord(t *testing.T) {
	h := memstore.NewHub()
	defer h.Close()
	s := testSyncer(t, h, "u1")

	doc, err := s.CreateSectionDocument("intro")
	require.NoError(t, err)
	s.MonitorVisibility(doc, "intro")

	doc.ToggleVisibility()

	paths := store.NewPaths(store.ModeTest, "run", testUser("u1"))
	path := paths.FullPath(paths.SectionDocumentPath("", "intro"))
	require.Eventually(t, func() bool {
		tree, err := h.Once(path)
		if err != nil {
			return false
		}
		var rec store.SectionDocumentRecord
		if store.Decode(tree, &rec) != nil {
			return false
		}
		return rec.Visibility == document.VisibilityPublic
	}, time.Second, time.Millisecond)
}

func TestGroupMemberDocumentGating(t *testing.T) {
	h := memstore.NewHub()
	defer h.Close()
	owner := testSyncer(t, h, "u1")
	viewer := testSyncer(t, h, "u2")

	doc, err := owner.CreateSectionDocument("intro")
	require.NoError(t, err)
	require.NoError(t, owner.MonitorDocument(doc))
	owner.MonitorVisibility(doc, "intro")

	var mu gosync.Mutex
	var shared *document.Document
	require.NoError(t, viewer.WatchGroupMemberDocument("u1", "intro", func(uid string, d *document.Document) {
		mu.Lock()
		shared = d
		mu.Unlock()
	}))

	// Private: nothing visible.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Nil(t, shared)
	mu.Unlock()

	// Public: the document appears and tracks the owner's edits.
	doc.SetVisibility(document.VisibilityPublic)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return shared != nil
	}, time.Second, time.Millisecond)

	_, err = doc.AddTile(content.KindGeometry, true)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return shared != nil && shared.Content().TileCount() == 1
	}, time.Second, time.Millisecond)

	// Back to private: the shared copy is cleared.
	doc.SetVisibility(document.VisibilityPrivate)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return shared == nil
	}, time.Second, time.Millisecond)
}

func TestLearningLogTitleMonitoring(t *testing.T) {
	h := memstore.NewHub()
	defer h.Close()
	s := testSyncer(t, h, "u1")

	doc, err := s.CreateLearningLog("draft thoughts")
	require.NoError(t, err)
	require.NoError(t, s.MonitorLearningLogTitle(doc))

	paths := store.NewPaths(store.ModeTest, "run", testUser("u1"))
	path := paths.FullPath(paths.LearningLogPath("", doc.Key))
	require.NoError(t, h.Set(path+"/title", "final thoughts"))

	require.Eventually(t, func() bool {
		return doc.Title() == "final thoughts"
	}, time.Second, time.Millisecond)
}

func TestPublishDocument(t *testing.T) {
	h := memstore.NewHub()
	defer h.Close()
	s := testSyncer(t, h, "u1")

	doc, err := s.CreateSectionDocument("intro")
	require.NoError(t, err)
	_, err = doc.AddTile(content.KindText, true)
	require.NoError(t, err)

	pubKey, err := s.PublishDocument(doc, "3", map[string]bool{"u1": true, "u2": false})
	require.NoError(t, err)
	require.NotEmpty(t, pubKey)

	paths := store.NewPaths(store.ModeTest, "run", testUser("u1"))
	tree, err := h.Once(paths.FullPath(paths.PublicationsPath() + "/" + pubKey))
	require.NoError(t, err)
	var rec store.PublicationRecord
	require.NoError(t, store.Decode(tree, &rec))
	assert.Equal(t, doc.Key, rec.Self.DocumentKey)
	assert.Equal(t, "3", rec.GroupID)
	assert.Contains(t, rec.Content, "tileMap")
}

func TestClearRequiresQAMode(t *testing.T) {
	h := memstore.NewHub()
	defer h.Close()

	s := testSyncer(t, h, "u1")
	require.ErrorIs(t, s.Clear(ClearAll), ErrNotQAMode)

	sess := h.NewSession()
	defer sess.Close()
	qa := New(sess, store.NewPaths(store.ModeQA, "", testUser("u1")), zerolog.Nop())
	defer qa.Close()

	_, err := qa.CreateSectionDocument("intro")
	require.NoError(t, err)
	require.NoError(t, qa.Clear(ClearOffering))

	qaPaths := store.NewPaths(store.ModeQA, "", testUser("u1"))
	tree, err := h.Once(qaPaths.FullPath(qaPaths.OfferingPath()))
	require.NoError(t, err)
	assert.Nil(t, tree)

	require.ErrorIs(t, qa.Clear("bogus"), ErrUnknownLevel)
}
