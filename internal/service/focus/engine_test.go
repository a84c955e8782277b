package focus

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"mailmirror/internal/model"
)

type fakeStore struct {
	items       []*model.FocusItem
	activityErr error
}

func (s *fakeStore) ListActive(ctx context.Context, ownerID, mailbox string) ([]*model.FocusItem, error) {
	var active []*model.FocusItem
	for _, item := range s.items {
		if item.Active {
			active = append(active, item)
		}
	}
	return active, nil
}

func (s *fakeStore) List(ctx context.Context, ownerID, mailbox string) ([]*model.FocusItem, error) {
	return s.items, nil
}

func (s *fakeStore) RecordActivity(ctx context.Context, id int64, at time.Time) error {
	if s.activityErr != nil {
		return s.activityErr
	}
	for _, item := range s.items {
		if item.ID == id {
			item.MessageCount++
			t := at
			item.LastActivity = &t
		}
	}
	return nil
}

func message(subject, from string) *model.Message {
	return &model.Message{
		ID:      "m1",
		OwnerID: "u1",
		Mailbox: "user@example.com",
		Subject: subject,
		From:    from,
	}
}

func TestAssignEarliestCreatedWins(t *testing.T) {
	store := &fakeStore{items: []*model.FocusItem{
		{ID: 1, Type: model.FocusMatchSubject, Value: "update", Bucket: "work", Active: true},
		{ID: 2, Type: model.FocusMatchSender, Value: "boss@example.com", Bucket: "vip", Active: true},
	}}
	e := NewEngine(store, zap.NewNop())

	// Matches both rules; the earliest-created one decides.
	bucket, err := e.Assign(context.Background(), message("Weekly update", "boss@example.com"))
	if err != nil {
		t.Fatal(err)
	}
	if bucket != "work" {
		t.Errorf("bucket = %q, want work", bucket)
	}
	if store.items[0].MessageCount != 1 || store.items[1].MessageCount != 0 {
		t.Error("only the winning rule's counter may move")
	}
}

func TestAssignSubjectMatchCaseInsensitive(t *testing.T) {
	store := &fakeStore{items: []*model.FocusItem{
		{ID: 1, Type: model.FocusMatchSubject, Value: "project update", Bucket: "work", Active: true},
	}}
	e := NewEngine(store, zap.NewNop())

	bucket, err := e.Assign(context.Background(), message("Project Update - Phase 1", "alice@example.com"))
	if err != nil {
		t.Fatal(err)
	}
	if bucket != "work" {
		t.Errorf("bucket = %q, want work", bucket)
	}
	if store.items[0].MessageCount != 1 {
		t.Errorf("counter = %d, want 1", store.items[0].MessageCount)
	}
	if store.items[0].LastActivity == nil {
		t.Error("last activity must be set on a match")
	}
}

func TestAssignNoMatch(t *testing.T) {
	store := &fakeStore{items: []*model.FocusItem{
		{ID: 1, Type: model.FocusMatchSubject, Value: "invoice", Bucket: "finance", Active: true},
	}}
	e := NewEngine(store, zap.NewNop())

	bucket, err := e.Assign(context.Background(), message("Lunch on Friday?", "bob@example.com"))
	if err != nil {
		t.Fatal(err)
	}
	if bucket != "" {
		t.Errorf("bucket = %q, want unclassified", bucket)
	}
}

func TestAssignSkipsInactiveRules(t *testing.T) {
	store := &fakeStore{items: []*model.FocusItem{
		{ID: 1, Type: model.FocusMatchSubject, Value: "update", Bucket: "work", Active: false},
		{ID: 2, Type: model.FocusMatchSubject, Value: "update", Bucket: "later", Active: true},
	}}
	e := NewEngine(store, zap.NewNop())

	bucket, err := e.Assign(context.Background(), message("Status update", "alice@example.com"))
	if err != nil {
		t.Fatal(err)
	}
	if bucket != "later" {
		t.Errorf("bucket = %q, want later", bucket)
	}
}

func TestAssignSurvivesActivityFailure(t *testing.T) {
	store := &fakeStore{
		items: []*model.FocusItem{
			{ID: 1, Type: model.FocusMatchSubject, Value: "update", Bucket: "work", Active: true},
		},
		activityErr: errors.New("db down"),
	}
	e := NewEngine(store, zap.NewNop())

	bucket, err := e.Assign(context.Background(), message("Big update", "alice@example.com"))
	if err != nil {
		t.Fatalf("classification must stand when the counter update fails: %v", err)
	}
	if bucket != "work" {
		t.Errorf("bucket = %q, want work", bucket)
	}
}

func TestStatistics(t *testing.T) {
	earlier := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	later := time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC)
	store := &fakeStore{items: []*model.FocusItem{
		{ID: 1, Bucket: "work", MessageCount: 3, LastActivity: &earlier, Active: true},
		{ID: 2, Bucket: "work", MessageCount: 2, LastActivity: &later, Active: false},
		{ID: 3, Bucket: "vip", MessageCount: 1, Active: true},
	}}
	e := NewEngine(store, zap.NewNop())

	stats, err := e.Statistics(context.Background(), "u1", "user@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalClassified != 6 {
		t.Errorf("total = %d, want 6", stats.TotalClassified)
	}
	work := stats.PerBucket["work"]
	if work.Count != 5 {
		t.Errorf("work count = %d, want 5 including the inactive rule's history", work.Count)
	}
	if work.LastActivity == nil || !work.LastActivity.Equal(later) {
		t.Errorf("work last activity = %v, want %v", work.LastActivity, later)
	}
	if stats.PerBucket["vip"].Count != 1 {
		t.Errorf("vip count = %d, want 1", stats.PerBucket["vip"].Count)
	}
}
