package mailsync

import (
	"testing"
	"time"

	"mailmirror/internal/model"
	"mailmirror/pkg/apperr"
)

func sampleMessage() *model.Message {
	return &model.Message{
		ID:        "m1",
		OwnerID:   "u1",
		Mailbox:   "user@example.com",
		Folder:    "inbox",
		From:      "alice@example.com",
		To:        []string{"user@example.com"},
		Subject:   "Quarterly numbers",
		Body:      "full body",
		Preview:   "full bo",
		Timestamp: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestMergeNewMessage(t *testing.T) {
	incoming := sampleMessage()
	incoming.Enrichment = &model.EnrichmentMetadata{Summary: "stale from elsewhere"}
	incoming.IsProcessed = true

	merged, changed := Merge(nil, incoming)
	if !changed {
		t.Fatal("new message must report changed")
	}
	if merged.Enrichment != nil {
		t.Error("new message must start with absent enrichment")
	}
	if merged.IsProcessed {
		t.Error("new message must start unprocessed")
	}
	if merged == incoming {
		t.Error("merged record must be a copy, not the caller's pointer")
	}
}

func TestMergeUnchanged(t *testing.T) {
	existing := sampleMessage()
	existing.Enrichment = &model.EnrichmentMetadata{Summary: "done", Version: model.EnrichmentVersion}
	incoming := sampleMessage()

	merged, changed := Merge(existing, incoming)
	if changed {
		t.Fatal("identical provider fields must report unchanged")
	}
	if merged != existing {
		t.Error("unchanged merge must return the stored record")
	}
}

func TestMergePreservesEnrichmentOnFlagChange(t *testing.T) {
	now := time.Now()
	existing := sampleMessage()
	existing.Enrichment = &model.EnrichmentMetadata{
		Summary:    "summarized",
		Category:   "finance",
		EnrichedAt: &now,
		Version:    model.EnrichmentVersion,
	}
	existing.IsProcessed = true

	incoming := sampleMessage()
	incoming.Read = true

	merged, changed := Merge(existing, incoming)
	if !changed {
		t.Fatal("read flag flip must report changed")
	}
	if !merged.Read {
		t.Error("provider field not applied")
	}
	if merged.Enrichment == nil || merged.Enrichment.Summary != "summarized" {
		t.Error("enrichment metadata must survive a provider-field change")
	}
	if !merged.IsProcessed {
		t.Error("is_processed must survive a provider-field change")
	}
	if existing.Read {
		t.Error("stored snapshot mutated in place")
	}
}

func TestMergeBodyNotInEqualitySet(t *testing.T) {
	existing := sampleMessage()
	incoming := sampleMessage()
	incoming.Body = "provider re-rendered the body"

	if _, changed := Merge(existing, incoming); changed {
		t.Error("body alone must not count as a material change")
	}
}

func TestMergeRecipientsCompared(t *testing.T) {
	existing := sampleMessage()
	incoming := sampleMessage()
	incoming.To = []string{"user@example.com", "second@example.com"}

	merged, changed := Merge(existing, incoming)
	if !changed {
		t.Fatal("recipient list change must report changed")
	}
	if len(merged.To) != 2 {
		t.Errorf("to = %v, want both recipients", merged.To)
	}
}

func TestValidateIncoming(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*model.Message)
		wantOK bool
	}{
		{"valid", func(m *model.Message) {}, true},
		{"missing id", func(m *model.Message) { m.ID = "" }, false},
		{"missing owner", func(m *model.Message) { m.OwnerID = "" }, false},
		{"missing mailbox", func(m *model.Message) { m.Mailbox = "" }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := sampleMessage()
			tc.mutate(m)
			err := ValidateIncoming(m)
			if tc.wantOK && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.wantOK {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if !apperr.IsKind(err, apperr.KindValidationFailed) {
					t.Errorf("kind = %v, want validation_failed", apperr.KindOf(err))
				}
			}
		})
	}
}
