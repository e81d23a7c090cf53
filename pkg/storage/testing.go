package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// StorageTestSuite defines a test suite that can be run against any Storage implementation.
type StorageTestSuite struct {
	NewStorage func(t *testing.T) Storage
}

// RunAllTests runs all storage tests against the provided storage implementation.
func (s *StorageTestSuite) RunAllTests(t *testing.T) {
	t.Run("UserLifecycle", s.TestUserLifecycle)
	t.Run("DuplicateEmail", s.TestDuplicateEmail)
	t.Run("ProjectOwnership", s.TestProjectOwnership)
	t.Run("ListProjects", s.TestListProjects)
	t.Run("SaveConversationRequiresOwnedProject", s.TestSaveConversationRequiresOwnedProject)
	t.Run("RecentConversationsOrderAndLimit", s.TestRecentConversationsOrderAndLimit)
	t.Run("RecentConversationsJoinSummaries", s.TestRecentConversationsJoinSummaries)
	t.Run("RecentConversationsTenantIsolation", s.TestRecentConversationsTenantIsolation)
	t.Run("UpsertSummary", s.TestUpsertSummary)
	t.Run("ListConversations", s.TestListConversations)
	t.Run("LatestConversation", s.TestLatestConversation)
	t.Run("ListSummaries", s.TestListSummaries)
	t.Run("ListUnsummarized", s.TestListUnsummarized)
	t.Run("DeleteProjectCascade", s.TestDeleteProjectCascade)
	t.Run("ConcurrentAccess", s.TestConcurrentAccess)
	t.Run("Ping", s.TestPing)
}

var suiteBase = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func mustUser(t *testing.T, store Storage, email string) *User {
	t.Helper()
	u := &User{Email: email, PasswordHash: "hash"}
	if err := store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser(%s) failed: %v", email, err)
	}
	return u
}

func mustProject(t *testing.T, store Storage, userID int64, name string) *Project {
	t.Helper()
	p := &Project{Name: name, UserID: userID}
	if err := store.CreateProject(context.Background(), p); err != nil {
		t.Fatalf("CreateProject(%s) failed: %v", name, err)
	}
	return p
}

func mustConversation(t *testing.T, store Storage, userID, projectID int64, content string, at time.Time) *Conversation {
	t.Helper()
	c := &Conversation{UserID: userID, ProjectID: projectID, RawContent: content, CreatedAt: at}
	if err := store.SaveConversation(context.Background(), c); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}
	return c
}

// TestUserLifecycle tests user creation, lookup and resume mode updates.
func (s *StorageTestSuite) TestUserLifecycle(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	u := mustUser(t, store, "alice@example.com")
	if u.ID == 0 {
		t.Fatal("expected CreateUser to assign an ID")
	}
	if u.ResumeMode != DefaultResumeMode {
		t.Errorf("expected default resume mode %q, got %q", DefaultResumeMode, u.ResumeMode)
	}
	if u.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	byID, err := store.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if byID.Email != u.Email || byID.PasswordHash != "hash" {
		t.Errorf("GetUser returned %+v", byID)
	}

	byEmail, err := store.GetUserByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if byEmail.ID != u.ID {
		t.Errorf("expected ID %d, got %d", u.ID, byEmail.ID)
	}

	if err := store.UpdateResumeMode(ctx, u.ID, "chat"); err != nil {
		t.Fatalf("UpdateResumeMode failed: %v", err)
	}
	updated, err := store.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if updated.ResumeMode != "chat" {
		t.Errorf("expected resume mode chat, got %s", updated.ResumeMode)
	}

	if _, err := store.GetUser(ctx, u.ID+1000); !IsNotFound(err) {
		t.Errorf("expected NotFoundError for unknown user, got %v", err)
	}
	if _, err := store.GetUserByEmail(ctx, "nobody@example.com"); !IsNotFound(err) {
		t.Errorf("expected NotFoundError for unknown email, got %v", err)
	}
	if err := store.UpdateResumeMode(ctx, u.ID+1000, "chat"); !IsNotFound(err) {
		t.Errorf("expected NotFoundError updating unknown user, got %v", err)
	}
}

// TestDuplicateEmail tests that emails are unique.
func (s *StorageTestSuite) TestDuplicateEmail(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	mustUser(t, store, "dup@example.com")
	err := store.CreateUser(context.Background(), &User{Email: "dup@example.com", PasswordHash: "x"})
	if !IsDuplicateKey(err) {
		t.Errorf("expected DuplicateKeyError, got %v", err)
	}
}

// TestProjectOwnership tests that projects are only visible to their owner.
func (s *StorageTestSuite) TestProjectOwnership(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	alice := mustUser(t, store, "alice@example.com")
	bob := mustUser(t, store, "bob@example.com")
	p := mustProject(t, store, alice.ID, "notes")

	got, err := store.GetProject(ctx, p.ID, alice.ID)
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if got.Name != "notes" || got.UserID != alice.ID {
		t.Errorf("GetProject returned %+v", got)
	}

	_, foreignErr := store.GetProject(ctx, p.ID, bob.ID)
	_, missingErr := store.GetProject(ctx, p.ID+1000, alice.ID)
	if !IsNotFound(foreignErr) || !IsNotFound(missingErr) {
		t.Fatalf("expected NotFoundError for foreign and missing projects, got %v / %v", foreignErr, missingErr)
	}

	if err := store.DeleteProject(ctx, p.ID, bob.ID); !IsNotFound(err) {
		t.Errorf("expected NotFoundError deleting a foreign project, got %v", err)
	}
	if _, err := store.GetProject(ctx, p.ID, alice.ID); err != nil {
		t.Errorf("project should survive a foreign delete attempt: %v", err)
	}
}

// TestListProjects tests that projects are listed newest first per user.
func (s *StorageTestSuite) TestListProjects(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	alice := mustUser(t, store, "alice@example.com")
	bob := mustUser(t, store, "bob@example.com")

	for i := 0; i < 3; i++ {
		p := &Project{Name: fmt.Sprintf("p%d", i), UserID: alice.ID, CreatedAt: suiteBase.Add(time.Duration(i) * time.Hour)}
		if err := store.CreateProject(ctx, p); err != nil {
			t.Fatalf("CreateProject failed: %v", err)
		}
	}
	mustProject(t, store, bob.ID, "bob-only")

	projects, err := store.ListProjects(ctx, alice.ID)
	if err != nil {
		t.Fatalf("ListProjects failed: %v", err)
	}
	if len(projects) != 3 {
		t.Fatalf("expected 3 projects, got %d", len(projects))
	}
	if projects[0].Name != "p2" || projects[2].Name != "p0" {
		t.Errorf("expected newest first, got %s..%s", projects[0].Name, projects[2].Name)
	}
}

// TestSaveConversationRequiresOwnedProject tests that conversations can
// only be written into the caller's own projects.
func (s *StorageTestSuite) TestSaveConversationRequiresOwnedProject(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	alice := mustUser(t, store, "alice@example.com")
	bob := mustUser(t, store, "bob@example.com")
	p := mustProject(t, store, alice.ID, "notes")

	c := mustConversation(t, store, alice.ID, p.ID, "hello", time.Time{})
	if c.ID == 0 {
		t.Fatal("expected SaveConversation to assign an ID")
	}
	if c.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to default to now")
	}

	err := store.SaveConversation(ctx, &Conversation{UserID: bob.ID, ProjectID: p.ID, RawContent: "intrusion"})
	if !IsNotFound(err) {
		t.Errorf("expected NotFoundError saving into a foreign project, got %v", err)
	}

	got, err := store.GetConversation(ctx, c.ID, alice.ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got.RawContent != "hello" || got.ProjectID != p.ID {
		t.Errorf("GetConversation returned %+v", got)
	}
	if _, err := store.GetConversation(ctx, c.ID, bob.ID); !IsNotFound(err) {
		t.Errorf("expected NotFoundError for foreign conversation, got %v", err)
	}
}

// TestRecentConversationsOrderAndLimit tests recency ordering and the row cap.
func (s *StorageTestSuite) TestRecentConversationsOrderAndLimit(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	u := mustUser(t, store, "alice@example.com")
	p := mustProject(t, store, u.ID, "notes")

	// Insert out of order so ordering must come from created_at.
	offsets := []int{3, 0, 4, 1, 2}
	for _, off := range offsets {
		mustConversation(t, store, u.ID, p.ID, fmt.Sprintf("c%d", off), suiteBase.Add(time.Duration(off)*time.Minute))
	}

	recs, err := store.RecentConversations(ctx, p.ID, u.ID, 3)
	if err != nil {
		t.Fatalf("RecentConversations failed: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	want := []string{"c4", "c3", "c2"}
	for i, rec := range recs {
		if rec.RawContent != want[i] {
			t.Errorf("record %d: expected %s, got %s", i, want[i], rec.RawContent)
		}
	}
	if !recs[0].CreatedAt.Equal(suiteBase.Add(4 * time.Minute)) {
		t.Errorf("expected created_at %v, got %v", suiteBase.Add(4*time.Minute), recs[0].CreatedAt)
	}

	all, err := store.RecentConversations(ctx, p.ID, u.ID, 1000)
	if err != nil {
		t.Fatalf("RecentConversations failed: %v", err)
	}
	if len(all) != 5 {
		t.Errorf("expected 5 records, got %d", len(all))
	}

	// Equal timestamps fall back to newest id first.
	a := mustConversation(t, store, u.ID, p.ID, "tie-a", suiteBase.Add(time.Hour))
	b := mustConversation(t, store, u.ID, p.ID, "tie-b", suiteBase.Add(time.Hour))
	top, err := store.RecentConversations(ctx, p.ID, u.ID, 2)
	if err != nil {
		t.Fatalf("RecentConversations failed: %v", err)
	}
	if top[0].ID != b.ID || top[1].ID != a.ID {
		t.Errorf("expected tie broken by id desc, got %d,%d", top[0].ID, top[1].ID)
	}
}

// TestRecentConversationsJoinSummaries tests that summaries come back with
// their conversations in the same call.
func (s *StorageTestSuite) TestRecentConversationsJoinSummaries(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	u := mustUser(t, store, "alice@example.com")
	p := mustProject(t, store, u.ID, "notes")
	older := mustConversation(t, store, u.ID, p.ID, "older", suiteBase)
	mustConversation(t, store, u.ID, p.ID, "newer", suiteBase.Add(time.Minute))

	if _, err := store.UpsertSummary(ctx, older.ID, "older summary", suiteBase.Add(time.Hour)); err != nil {
		t.Fatalf("UpsertSummary failed: %v", err)
	}

	recs, err := store.RecentConversations(ctx, p.ID, u.ID, 10)
	if err != nil {
		t.Fatalf("RecentConversations failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Summary != nil {
		t.Errorf("expected no summary for newest conversation, got %+v", recs[0].Summary)
	}
	if recs[1].Summary == nil || recs[1].Summary.Content != "older summary" {
		t.Errorf("expected joined summary, got %+v", recs[1].Summary)
	}
}

// TestRecentConversationsTenantIsolation tests that the fetch is scoped by
// both project and user.
func (s *StorageTestSuite) TestRecentConversationsTenantIsolation(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	alice := mustUser(t, store, "alice@example.com")
	bob := mustUser(t, store, "bob@example.com")
	pa := mustProject(t, store, alice.ID, "a")
	pa2 := mustProject(t, store, alice.ID, "a2")
	pb := mustProject(t, store, bob.ID, "b")

	mustConversation(t, store, alice.ID, pa.ID, "alice-a", suiteBase)
	mustConversation(t, store, alice.ID, pa2.ID, "alice-a2", suiteBase)
	mustConversation(t, store, bob.ID, pb.ID, "bob-b", suiteBase)

	recs, err := store.RecentConversations(ctx, pa.ID, alice.ID, 10)
	if err != nil {
		t.Fatalf("RecentConversations failed: %v", err)
	}
	if len(recs) != 1 || recs[0].RawContent != "alice-a" {
		t.Errorf("expected only alice-a, got %+v", recs)
	}

	foreign, err := store.RecentConversations(ctx, pa.ID, bob.ID, 10)
	if err != nil {
		t.Fatalf("RecentConversations failed: %v", err)
	}
	if len(foreign) != 0 {
		t.Errorf("expected no records for foreign user, got %d", len(foreign))
	}
}

// TestUpsertSummary tests insert-then-overwrite semantics.
func (s *StorageTestSuite) TestUpsertSummary(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	u := mustUser(t, store, "alice@example.com")
	p := mustProject(t, store, u.ID, "notes")
	c := mustConversation(t, store, u.ID, p.ID, "content", suiteBase)

	first, err := store.UpsertSummary(ctx, c.ID, "v1", suiteBase.Add(time.Minute))
	if err != nil {
		t.Fatalf("UpsertSummary failed: %v", err)
	}
	second, err := store.UpsertSummary(ctx, c.ID, "v2", suiteBase.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("UpsertSummary failed: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("expected summary to be updated in place, ids %d != %d", first.ID, second.ID)
	}
	if second.Content != "v2" || !second.UpdatedAt.Equal(suiteBase.Add(2*time.Minute)) {
		t.Errorf("unexpected summary after update: %+v", second)
	}

	recs, err := store.RecentConversations(ctx, p.ID, u.ID, 1)
	if err != nil {
		t.Fatalf("RecentConversations failed: %v", err)
	}
	if recs[0].Summary == nil || recs[0].Summary.Content != "v2" {
		t.Errorf("expected v2 summary on record, got %+v", recs[0].Summary)
	}

	if _, err := store.UpsertSummary(ctx, c.ID+1000, "x", suiteBase); !IsNotFound(err) {
		t.Errorf("expected NotFoundError for unknown conversation, got %v", err)
	}
}

// TestListConversations tests the per-user overview listing.
func (s *StorageTestSuite) TestListConversations(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	u := mustUser(t, store, "alice@example.com")
	other := mustUser(t, store, "bob@example.com")
	p1 := mustProject(t, store, u.ID, "one")
	p2 := mustProject(t, store, u.ID, "two")
	po := mustProject(t, store, other.ID, "other")

	c1 := mustConversation(t, store, u.ID, p1.ID, "first", suiteBase)
	mustConversation(t, store, u.ID, p2.ID, "second", suiteBase.Add(time.Minute))
	mustConversation(t, store, other.ID, po.ID, "foreign", suiteBase.Add(time.Hour))

	summaryAt := suiteBase.Add(10 * time.Minute)
	if _, err := store.UpsertSummary(ctx, c1.ID, "sum", summaryAt); err != nil {
		t.Fatalf("UpsertSummary failed: %v", err)
	}

	list, err := store.ListConversations(ctx, u.ID)
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(list))
	}
	if list[0].RawContent != "second" || list[0].HasSummary || list[0].SummaryUpdatedAt != nil {
		t.Errorf("unexpected first overview: %+v", list[0])
	}
	if !list[1].HasSummary || list[1].SummaryUpdatedAt == nil || !list[1].SummaryUpdatedAt.Equal(summaryAt) {
		t.Errorf("unexpected second overview: %+v", list[1])
	}
}

// TestLatestConversation tests lookup of the newest conversation across projects.
func (s *StorageTestSuite) TestLatestConversation(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	u := mustUser(t, store, "alice@example.com")
	if _, err := store.LatestConversation(ctx, u.ID); !IsNotFound(err) {
		t.Errorf("expected NotFoundError with no conversations, got %v", err)
	}

	p1 := mustProject(t, store, u.ID, "one")
	p2 := mustProject(t, store, u.ID, "two")
	mustConversation(t, store, u.ID, p1.ID, "old", suiteBase)
	latest := mustConversation(t, store, u.ID, p2.ID, "new", suiteBase.Add(time.Minute))
	if _, err := store.UpsertSummary(ctx, latest.ID, "latest summary", suiteBase.Add(time.Hour)); err != nil {
		t.Fatalf("UpsertSummary failed: %v", err)
	}

	rec, err := store.LatestConversation(ctx, u.ID)
	if err != nil {
		t.Fatalf("LatestConversation failed: %v", err)
	}
	if rec.ID != latest.ID {
		t.Errorf("expected conversation %d, got %d", latest.ID, rec.ID)
	}
	if rec.Summary == nil || rec.Summary.Content != "latest summary" {
		t.Errorf("expected joined summary, got %+v", rec.Summary)
	}
}

// TestListSummaries tests that only the user's summaries come back, newest
// conversation first.
func (s *StorageTestSuite) TestListSummaries(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	u := mustUser(t, store, "alice@example.com")
	other := mustUser(t, store, "bob@example.com")
	p := mustProject(t, store, u.ID, "one")
	po := mustProject(t, store, other.ID, "other")

	c1 := mustConversation(t, store, u.ID, p.ID, "a", suiteBase)
	mustConversation(t, store, u.ID, p.ID, "b", suiteBase.Add(time.Minute))
	c3 := mustConversation(t, store, u.ID, p.ID, "c", suiteBase.Add(2*time.Minute))
	co := mustConversation(t, store, other.ID, po.ID, "o", suiteBase)

	for _, up := range []struct {
		id      int64
		content string
	}{{c1.ID, "s1"}, {c3.ID, "s3"}, {co.ID, "foreign"}} {
		if _, err := store.UpsertSummary(ctx, up.id, up.content, suiteBase); err != nil {
			t.Fatalf("UpsertSummary failed: %v", err)
		}
	}

	sums, err := store.ListSummaries(ctx, u.ID)
	if err != nil {
		t.Fatalf("ListSummaries failed: %v", err)
	}
	if len(sums) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(sums))
	}
	if sums[0].Content != "s3" || sums[1].Content != "s1" {
		t.Errorf("expected [s3 s1], got [%s %s]", sums[0].Content, sums[1].Content)
	}
}

// TestListUnsummarized tests the summarizer work queue.
func (s *StorageTestSuite) TestListUnsummarized(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	u := mustUser(t, store, "alice@example.com")
	p := mustProject(t, store, u.ID, "one")
	c1 := mustConversation(t, store, u.ID, p.ID, "a", suiteBase)
	c2 := mustConversation(t, store, u.ID, p.ID, "b", suiteBase.Add(time.Minute))
	c3 := mustConversation(t, store, u.ID, p.ID, "c", suiteBase.Add(2*time.Minute))

	if _, err := store.UpsertSummary(ctx, c2.ID, "done", suiteBase); err != nil {
		t.Fatalf("UpsertSummary failed: %v", err)
	}

	pending, err := store.ListUnsummarized(ctx, 10)
	if err != nil {
		t.Fatalf("ListUnsummarized failed: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != c1.ID || pending[1].ID != c3.ID {
		t.Errorf("expected [%d %d] oldest first, got %+v", c1.ID, c3.ID, pending)
	}

	one, err := store.ListUnsummarized(ctx, 1)
	if err != nil {
		t.Fatalf("ListUnsummarized failed: %v", err)
	}
	if len(one) != 1 || one[0].ID != c1.ID {
		t.Errorf("expected only %d, got %+v", c1.ID, one)
	}
}

// TestDeleteProjectCascade tests that deleting a project removes its
// conversations and their summaries.
func (s *StorageTestSuite) TestDeleteProjectCascade(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	u := mustUser(t, store, "alice@example.com")
	doomed := mustProject(t, store, u.ID, "doomed")
	kept := mustProject(t, store, u.ID, "kept")

	c := mustConversation(t, store, u.ID, doomed.ID, "gone", suiteBase)
	mustConversation(t, store, u.ID, kept.ID, "stays", suiteBase)
	if _, err := store.UpsertSummary(ctx, c.ID, "gone too", suiteBase); err != nil {
		t.Fatalf("UpsertSummary failed: %v", err)
	}

	if err := store.DeleteProject(ctx, doomed.ID, u.ID); err != nil {
		t.Fatalf("DeleteProject failed: %v", err)
	}

	if _, err := store.GetProject(ctx, doomed.ID, u.ID); !IsNotFound(err) {
		t.Errorf("expected project to be gone, got %v", err)
	}
	if _, err := store.GetConversation(ctx, c.ID, u.ID); !IsNotFound(err) {
		t.Errorf("expected conversation to be gone, got %v", err)
	}
	sums, err := store.ListSummaries(ctx, u.ID)
	if err != nil {
		t.Fatalf("ListSummaries failed: %v", err)
	}
	if len(sums) != 0 {
		t.Errorf("expected summaries to be gone, got %d", len(sums))
	}
	list, err := store.ListConversations(ctx, u.ID)
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(list) != 1 || list[0].RawContent != "stays" {
		t.Errorf("expected only the kept conversation, got %+v", list)
	}
	if err := store.DeleteProject(ctx, doomed.ID, u.ID); !IsNotFound(err) {
		t.Errorf("expected NotFoundError on second delete, got %v", err)
	}
}

// TestConcurrentAccess tests concurrent writers and readers.
func (s *StorageTestSuite) TestConcurrentAccess(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	u := mustUser(t, store, "alice@example.com")
	p := mustProject(t, store, u.ID, "busy")

	const writers = 8
	const perWriter = 10

	var wg sync.WaitGroup
	errCh := make(chan error, writers*perWriter*2)

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				c := &Conversation{
					UserID:     u.ID,
					ProjectID:  p.ID,
					RawContent: fmt.Sprintf("w%d-%d", w, i),
					CreatedAt:  suiteBase.Add(time.Duration(w*perWriter+i) * time.Second),
				}
				if err := store.SaveConversation(ctx, c); err != nil {
					errCh <- err
					continue
				}
				if _, err := store.RecentConversations(ctx, p.ID, u.ID, 5); err != nil {
					errCh <- err
				}
			}
		}(w)
	}

	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Errorf("concurrent operation failed: %v", err)
	}

	all, err := store.RecentConversations(ctx, p.ID, u.ID, 1000)
	if err != nil {
		t.Fatalf("RecentConversations failed: %v", err)
	}
	if len(all) != writers*perWriter {
		t.Errorf("expected %d conversations, got %d", writers*perWriter, len(all))
	}
	seen := make(map[int64]bool)
	for _, rec := range all {
		if seen[rec.ID] {
			t.Errorf("duplicate conversation id %d", rec.ID)
		}
		seen[rec.ID] = true
	}
}

// TestPing tests the health probe.
func (s *StorageTestSuite) TestPing(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
