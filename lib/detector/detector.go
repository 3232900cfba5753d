// Package detector computes which entries of a freshly fetched feed are new
// relative to a subscription's watermark. It does no I/O.
package detector

import (
	"database/sql"

	"github.com/fiffu/feedwatch/lib/keywords"
	"github.com/fiffu/feedwatch/lib/models"
)

type Options struct {
	// MaxCandidates bounds the number of entries emitted when the watermark
	// is no longer present in the feed. Zero means unlimited.
	MaxCandidates int
}

type Result struct {
	// Entries are the new entries, oldest first.
	Entries   []models.Entry
	Watermark sql.NullString

	Bootstrap      bool
	Advanced       bool
	WatermarkFound bool
	Truncated      bool
}

// Key is the identity the watermark is compared against. Entries without an
// identity are keyed by a digest of their title and body; an entry with
// neither yields "" and is never used as a watermark.
func Key(entry models.Entry) string {
	if entry.Identity != "" {
		return entry.Identity
	}
	if entry.Title == "" && entry.BodyText == "" {
		return ""
	}
	return "digest:" + models.DigestContent(entry.Title+"\n"+entry.BodyText)
}

// Detect expects entries in feed order, newest first.
func Detect(entries []models.Entry, watermark sql.NullString, opts Options) Result {
	res := Result{Watermark: watermark}

	top := topKey(entries)
	if top != "" {
		res.Watermark = sql.NullString{String: top, Valid: true}
	}
	res.Advanced = res.Watermark != watermark

	if !watermark.Valid {
		res.Bootstrap = true
		return res
	}

	seen := make(map[string]struct{}, len(entries))
	candidates := make([]models.Entry, 0, len(entries))
	for _, entry := range entries {
		key := Key(entry)
		if key == "" {
			continue
		}
		if key == watermark.String {
			res.WatermarkFound = true
			break
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		candidates = append(candidates, entry)
	}

	if !res.WatermarkFound && opts.MaxCandidates > 0 && len(candidates) > opts.MaxCandidates {
		candidates = candidates[:opts.MaxCandidates]
		res.Truncated = true
	}

	res.Entries = reversed(candidates)
	return res
}

func topKey(entries []models.Entry) string {
	for _, entry := range entries {
		if key := Key(entry); key != "" {
			return key
		}
	}
	return ""
}

func reversed(entries []models.Entry) []models.Entry {
	out := make([]models.Entry, len(entries))
	for i, entry := range entries {
		out[len(entries)-1-i] = entry
	}
	return out
}

// Plan is a detection result with the tenant's keyword filter applied.
type Plan struct {
	Result
	Deliver  []models.Entry
	Filtered int
}

// NewPlan runs detection for one subscription and filters the new entries.
// Filtered entries still count towards the watermark advance.
func NewPlan(sub models.Subscription, entries []models.Entry, kws []string, opts Options) Plan {
	plan := Plan{Result: Detect(entries, sub.Watermark, opts)}
	plan.Deliver = make([]models.Entry, 0, len(plan.Entries))
	for _, entry := range plan.Entries {
		if keywords.Match(entry, kws) {
			plan.Deliver = append(plan.Deliver, entry)
		} else {
			plan.Filtered++
		}
	}
	return plan
}
