package mailsync

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"mailmirror/internal/model"
	"mailmirror/internal/provider"
	"mailmirror/pkg/apperr"
)

type fakeResolver struct {
	cred *model.Credential
	err  error
}

func (r *fakeResolver) Token(ctx context.Context, ownerID, mailbox, providerName string) (*model.Credential, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.cred, nil
}

func (r *fakeResolver) List(ctx context.Context, ownerID string) ([]*model.Credential, error) {
	return []*model.Credential{r.cred}, nil
}

// fakeRemote serves listing pages keyed by continuation token; "" is the
// first page.
type fakeRemote struct {
	pages      map[string]*provider.Page
	listErr    error
	tokensSeen []string
}

func (f *fakeRemote) ListMessages(ctx context.Context, cred *model.Credential, folderID string, pageSize int, continuation string) (*provider.Page, error) {
	f.tokensSeen = append(f.tokensSeen, continuation)
	if f.listErr != nil {
		return nil, f.listErr
	}
	page, ok := f.pages[continuation]
	if !ok {
		return &provider.Page{}, nil
	}
	return page, nil
}

func (f *fakeRemote) ListFolders(ctx context.Context, cred *model.Credential) ([]model.Folder, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeRemote) GetMessage(ctx context.Context, cred *model.Credential, messageID string) (*model.Message, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeRemote) GetAttachment(ctx context.Context, cred *model.Credential, messageID, attachmentID string) (*provider.Attachment, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeRemote) Send(ctx context.Context, cred *model.Credential, msg provider.Outgoing) error {
	return errors.New("not implemented")
}

func (f *fakeRemote) Reply(ctx context.Context, cred *model.Credential, messageID, body string, replyAll bool) error {
	return errors.New("not implemented")
}

func (f *fakeRemote) MarkRead(ctx context.Context, cred *model.Credential, messageID string, read bool) error {
	return errors.New("not implemented")
}

func (f *fakeRemote) MarkImportant(ctx context.Context, cred *model.Credential, messageID string, important bool) error {
	return errors.New("not implemented")
}

func (f *fakeRemote) Delete(ctx context.Context, cred *model.Credential, messageID string) error {
	return errors.New("not implemented")
}

type fakeStore struct {
	mu      sync.Mutex
	records map[string]*model.Message
	puts    int

	filtered      []*model.Message
	filteredTotal int
	listCalls     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*model.Message)}
}

func (s *fakeStore) Get(ctx context.Context, ownerID, mailbox, id string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.records[id]; ok {
		return m.Clone(), nil
	}
	return nil, apperr.New(apperr.KindNotFound, "message not found")
}

// Put mirrors the repository upsert: enrichment and is_processed on an
// existing row belong to the explicit enrichment paths and survive it.
func (s *fakeStore) Put(ctx context.Context, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := m.Clone()
	if existing, ok := s.records[m.ID]; ok {
		clone.Enrichment = existing.Enrichment
		clone.IsProcessed = existing.IsProcessed
	}
	s.records[m.ID] = clone
	s.puts++
	return nil
}

func (s *fakeStore) setEnrichment(id string, meta *model.EnrichmentMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.records[id]; ok {
		m.Enrichment = meta
		m.IsProcessed = true
	}
}

func (s *fakeStore) record(id string) *model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.records[id]; ok {
		return m.Clone()
	}
	return nil
}

func (s *fakeStore) ListFiltered(ctx context.Context, ownerID, mailbox, folder string, filter model.Filter, limit, offset int) ([]*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	return s.filtered, nil
}

func (s *fakeStore) CountFiltered(ctx context.Context, ownerID, mailbox, folder string, filter model.Filter) (int, error) {
	return s.filteredTotal, nil
}

type fakeAssigner struct {
	assigned []string
	bucket   string
}

func (a *fakeAssigner) Assign(ctx context.Context, m *model.Message) (string, error) {
	a.assigned = append(a.assigned, m.ID)
	return a.bucket, nil
}

func remoteMessage(id string) *model.Message {
	m := sampleMessage()
	m.ID = id
	return m
}

func newTestOrchestrator(remote *fakeRemote, store MessageStore, focus FocusAssigner) *Orchestrator {
	creds := &fakeResolver{cred: &model.Credential{OwnerID: "u1", Mailbox: "user@example.com", Provider: "outlook"}}
	return NewOrchestrator(creds, remote, store, focus, "outlook", 2, zap.NewNop())
}

func TestSyncPageIdempotent(t *testing.T) {
	remote := &fakeRemote{pages: map[string]*provider.Page{
		"": {Messages: []*model.Message{remoteMessage("m1"), remoteMessage("m2")}},
	}}
	store := newFakeStore()
	o := newTestOrchestrator(remote, store, nil)
	req := PageRequest{OwnerID: "u1", Mailbox: "user@example.com", Folder: "inbox", Page: 1, Connection: "c1"}
	tracker := NewTracker()

	first, err := o.SyncPage(context.Background(), req, tracker)
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if len(first.Messages) != 2 || store.puts != 2 {
		t.Fatalf("first sync: %d messages, %d puts; want 2 and 2", len(first.Messages), store.puts)
	}

	second, err := o.SyncPage(context.Background(), req, tracker)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if store.puts != 2 {
		t.Errorf("second identical sync wrote %d extra records", store.puts-2)
	}
	if len(second.Messages) != 2 {
		t.Errorf("unchanged messages must still appear in the page result, got %d", len(second.Messages))
	}
}

func TestSyncPagePaginationSequence(t *testing.T) {
	remote := &fakeRemote{pages: map[string]*provider.Page{
		"":   {Messages: []*model.Message{remoteMessage("m1")}, Continuation: "t1"},
		"t1": {Messages: []*model.Message{remoteMessage("m2")}},
	}}
	store := newFakeStore()
	o := newTestOrchestrator(remote, store, nil)
	tracker := NewTracker()

	req := PageRequest{OwnerID: "u1", Mailbox: "user@example.com", Folder: "inbox", Page: 1, Connection: "c1"}
	res, err := o.SyncPage(context.Background(), req, tracker)
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if !res.HasMore {
		t.Error("page 1 with a continuation token must report has_more")
	}

	req.Page = 2
	res, err = o.SyncPage(context.Background(), req, tracker)
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if res.HasMore {
		t.Error("exhausted listing must not report has_more")
	}

	// Requesting page 1 again starts a fresh remote sequence.
	req.Page = 1
	if _, err := o.SyncPage(context.Background(), req, tracker); err != nil {
		t.Fatalf("page 1 again: %v", err)
	}

	want := []string{"", "t1", ""}
	if len(remote.tokensSeen) != len(want) {
		t.Fatalf("tokensSeen = %v, want %v", remote.tokensSeen, want)
	}
	for i := range want {
		if remote.tokensSeen[i] != want[i] {
			t.Errorf("fetch %d used token %q, want %q", i, remote.tokensSeen[i], want[i])
		}
	}
}

func TestSyncPageDropsInvalidMessage(t *testing.T) {
	bad := remoteMessage("")
	remote := &fakeRemote{pages: map[string]*provider.Page{
		"": {Messages: []*model.Message{remoteMessage("m1"), bad}},
	}}
	store := newFakeStore()
	o := newTestOrchestrator(remote, store, nil)

	req := PageRequest{OwnerID: "u1", Mailbox: "user@example.com", Folder: "inbox", Page: 1, Connection: "c1"}
	res, err := o.SyncPage(context.Background(), req, NewTracker())
	if err != nil {
		t.Fatalf("a single bad message must not fail the page: %v", err)
	}
	if len(res.Messages) != 1 || store.puts != 1 {
		t.Errorf("got %d messages, %d puts; want the valid one only", len(res.Messages), store.puts)
	}
}

func TestSyncPageRemoteFailure(t *testing.T) {
	remote := &fakeRemote{listErr: errors.New("connection reset")}
	store := newFakeStore()
	o := newTestOrchestrator(remote, store, nil)

	req := PageRequest{OwnerID: "u1", Mailbox: "user@example.com", Folder: "inbox", Page: 1, Connection: "c1"}
	_, err := o.SyncPage(context.Background(), req, NewTracker())
	if err == nil {
		t.Fatal("expected page-level error")
	}
	if !apperr.IsKind(err, apperr.KindRemoteFetchFailed) {
		t.Errorf("kind = %v, want remote_fetch_failed", apperr.KindOf(err))
	}
	if store.puts != 0 {
		t.Error("a failed fetch must not write anything")
	}
}

func TestSyncPageMissingCredential(t *testing.T) {
	o := NewOrchestrator(
		&fakeResolver{err: apperr.New(apperr.KindCredentialMissing, "no credential")},
		&fakeRemote{}, newFakeStore(), nil, "outlook", 2, zap.NewNop(),
	)

	req := PageRequest{OwnerID: "u1", Mailbox: "user@example.com", Folder: "inbox", Page: 1, Connection: "c1"}
	_, err := o.SyncPage(context.Background(), req, NewTracker())
	if !apperr.IsKind(err, apperr.KindCredentialMissing) {
		t.Errorf("kind = %v, want credential_missing", apperr.KindOf(err))
	}
}

func TestSyncPageFilteredServedFromStore(t *testing.T) {
	remote := &fakeRemote{}
	store := newFakeStore()
	store.filtered = []*model.Message{remoteMessage("m1"), remoteMessage("m2")}
	store.filteredTotal = 5
	o := newTestOrchestrator(remote, store, nil)

	req := PageRequest{
		OwnerID: "u1", Mailbox: "user@example.com", Folder: "inbox", Page: 2,
		Filter: model.Filter{Category: "finance"}, Connection: "c1",
	}
	res, err := o.SyncPage(context.Background(), req, NewTracker())
	if err != nil {
		t.Fatalf("filtered sync: %v", err)
	}
	if len(remote.tokensSeen) != 0 {
		t.Error("filtered requests must never hit the provider")
	}
	if !res.HasMore {
		t.Error("5 matches with page size 2 must report has_more on page 2")
	}

	// Last page of the filtered listing.
	req.Page = 3
	res, err = o.SyncPage(context.Background(), req, NewTracker())
	if err != nil {
		t.Fatalf("filtered sync page 3: %v", err)
	}
	if res.HasMore {
		t.Error("page 3 of 5 matches at size 2 is the last page")
	}
}

func TestSyncPageAssignsFocus(t *testing.T) {
	remote := &fakeRemote{pages: map[string]*provider.Page{
		"": {Messages: []*model.Message{remoteMessage("m1")}},
	}}
	store := newFakeStore()
	focus := &fakeAssigner{bucket: "work"}
	o := newTestOrchestrator(remote, store, focus)

	req := PageRequest{OwnerID: "u1", Mailbox: "user@example.com", Folder: "inbox", Page: 1, Connection: "c1"}
	if _, err := o.SyncPage(context.Background(), req, NewTracker()); err != nil {
		t.Fatal(err)
	}
	if len(focus.assigned) != 1 || focus.assigned[0] != "m1" {
		t.Errorf("assigned = %v, want [m1]", focus.assigned)
	}

	// Unchanged messages are not re-classified.
	if _, err := o.SyncPage(context.Background(), req, NewTracker()); err != nil {
		t.Fatal(err)
	}
	if len(focus.assigned) != 1 {
		t.Errorf("second identical sync re-assigned focus: %v", focus.assigned)
	}
}

// enrichDuringSyncStore completes an enrichment right after the sync cycle
// takes its read snapshot, landing between the orchestrator's Get and Put.
type enrichDuringSyncStore struct {
	*fakeStore
	meta *model.EnrichmentMetadata
}

func (s *enrichDuringSyncStore) Get(ctx context.Context, ownerID, mailbox, id string) (*model.Message, error) {
	m, err := s.fakeStore.Get(ctx, ownerID, mailbox, id)
	if err == nil {
		s.fakeStore.setEnrichment(id, s.meta)
	}
	return m, err
}

func TestSyncPageKeepsEnrichmentLandingMidCycle(t *testing.T) {
	seeded := remoteMessage("m1")
	updated := remoteMessage("m1")
	updated.Read = true

	remote := &fakeRemote{pages: map[string]*provider.Page{
		"": {Messages: []*model.Message{seeded}},
	}}
	store := newFakeStore()
	o := newTestOrchestrator(remote, store, nil)
	req := PageRequest{OwnerID: "u1", Mailbox: "user@example.com", Folder: "inbox", Page: 1, Connection: "c1"}

	if _, err := o.SyncPage(context.Background(), req, NewTracker()); err != nil {
		t.Fatal(err)
	}

	// Second sync carries a flag change, forcing a Put; the completed
	// enrichment arrives after the cycle's read snapshot.
	remote.pages[""] = &provider.Page{Messages: []*model.Message{updated}}
	racing := &enrichDuringSyncStore{
		fakeStore: store,
		meta:      &model.EnrichmentMetadata{Summary: "a finished summary", Version: model.EnrichmentVersion},
	}
	o = newTestOrchestrator(remote, racing, nil)

	if _, err := o.SyncPage(context.Background(), req, NewTracker()); err != nil {
		t.Fatal(err)
	}

	got := store.record("m1")
	if !got.Read {
		t.Error("flag change from the provider must be applied")
	}
	if got.Enrichment == nil || got.Enrichment.Summary != "a finished summary" {
		t.Fatalf("stored enrichment = %+v, a result landing mid-sync must survive the upsert", got.Enrichment)
	}
	if !got.IsProcessed {
		t.Error("is_processed set by the enrichment path must survive the upsert")
	}
}

func TestSyncPageWithoutAssigner(t *testing.T) {
	remote := &fakeRemote{pages: map[string]*provider.Page{
		"": {Messages: []*model.Message{remoteMessage("m1")}},
	}}
	store := newFakeStore()
	o := newTestOrchestrator(remote, store, nil)

	req := PageRequest{OwnerID: "u1", Mailbox: "user@example.com", Folder: "inbox", Page: 1, Connection: "c1"}
	res, err := o.SyncPage(context.Background(), req, NewTracker())
	if err != nil {
		t.Fatalf("sync without a focus assigner: %v", err)
	}
	if len(res.Messages) != 1 || store.puts != 1 {
		t.Errorf("got %d messages, %d puts; want 1 and 1", len(res.Messages), store.puts)
	}
}
