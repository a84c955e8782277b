package mailsync

import (
	"mailmirror/internal/model"
	"mailmirror/pkg/apperr"
)

// fieldRule pairs the comparison and the merge for one provider-sourced
// field, so the two can never drift apart.
type fieldRule struct {
	name  string
	equal func(a, b *model.Message) bool
	apply func(dst, src *model.Message)
}

// providerFields is the full equality set for the diff engine. Enrichment
// metadata, is_processed, and internal identity are deliberately absent:
// they are carried forward from the stored record and only ever overwritten
// by the explicit enrichment and category-update paths.
var providerFields = []fieldRule{
	{
		name:  "subject",
		equal: func(a, b *model.Message) bool { return a.Subject == b.Subject },
		apply: func(dst, src *model.Message) { dst.Subject = src.Subject },
	},
	{
		name:  "from",
		equal: func(a, b *model.Message) bool { return a.From == b.From },
		apply: func(dst, src *model.Message) { dst.From = src.From },
	},
	{
		name:  "to",
		equal: func(a, b *model.Message) bool { return sliceEqual(a.To, b.To) },
		apply: func(dst, src *model.Message) { dst.To = append([]string(nil), src.To...) },
	},
	{
		name:  "cc",
		equal: func(a, b *model.Message) bool { return sliceEqual(a.Cc, b.Cc) },
		apply: func(dst, src *model.Message) { dst.Cc = append([]string(nil), src.Cc...) },
	},
	{
		name:  "bcc",
		equal: func(a, b *model.Message) bool { return sliceEqual(a.Bcc, b.Bcc) },
		apply: func(dst, src *model.Message) { dst.Bcc = append([]string(nil), src.Bcc...) },
	},
	{
		name:  "preview",
		equal: func(a, b *model.Message) bool { return a.Preview == b.Preview },
		apply: func(dst, src *model.Message) { dst.Preview = src.Preview },
	},
	{
		name:  "read",
		equal: func(a, b *model.Message) bool { return a.Read == b.Read },
		apply: func(dst, src *model.Message) { dst.Read = src.Read },
	},
	{
		name:  "important",
		equal: func(a, b *model.Message) bool { return a.Important == b.Important },
		apply: func(dst, src *model.Message) { dst.Important = src.Important },
	},
	{
		name:  "flagged",
		equal: func(a, b *model.Message) bool { return a.Flagged == b.Flagged },
		apply: func(dst, src *model.Message) { dst.Flagged = src.Flagged },
	},
}

// ValidateIncoming rejects records that cannot be keyed. A failing record
// is dropped from its batch without aborting the rest.
func ValidateIncoming(m *model.Message) error {
	switch {
	case m.ID == "":
		return apperr.New(apperr.KindValidationFailed, "missing message id")
	case m.OwnerID == "":
		return apperr.New(apperr.KindValidationFailed, "missing owner reference")
	case m.Mailbox == "":
		return apperr.New(apperr.KindValidationFailed, "missing mailbox address")
	}
	return nil
}

// Merge decides whether incoming differs materially from existing and
// returns the record to persist. existing == nil means a new message:
// enrichment starts absent and is_processed false.
//
// On a material change the merged record takes every provider-sourced field
// from incoming (body, folder and timestamp ride along even though they are
// not part of the equality set) while keeping the stored enrichment
// metadata and processing flag untouched.
func Merge(existing, incoming *model.Message) (*model.Message, bool) {
	if existing == nil {
		merged := incoming.Clone()
		merged.Enrichment = nil
		merged.IsProcessed = false
		return merged, true
	}

	changed := false
	for _, rule := range providerFields {
		if !rule.equal(existing, incoming) {
			changed = true
			break
		}
	}
	if !changed {
		return existing, false
	}

	merged := existing.Clone()
	for _, rule := range providerFields {
		rule.apply(merged, incoming)
	}
	merged.Body = incoming.Body
	merged.Folder = incoming.Folder
	merged.Timestamp = incoming.Timestamp
	return merged, true
}

func sliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
