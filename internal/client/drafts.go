package client

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Abhayjain-py/deepshield/internal/domain"
	"github.com/Abhayjain-py/deepshield/internal/kvstore"
)

// DraftStore persists an unfinished complaint for later resumption. A draft
// is created only by an explicit save, overwritten by subsequent saves, and
// cleared only by explicit user action, never by a successful submission.
type DraftStore struct {
	kv *kvstore.Store
}

// NewDraftStore creates a draft store over the shared key-value store.
func NewDraftStore(kv *kvstore.Store) *DraftStore {
	return &DraftStore{kv: kv}
}

// Save overwrites the stored draft.
func (d *DraftStore) Save(ctx context.Context, draft domain.ComplaintDraft) error {
	draft.SavedAt = time.Now()
	payload, err := json.Marshal(draft)
	if err != nil {
		return err
	}
	return d.kv.Put(ctx, kvstore.KeyDraft, string(payload))
}

// Load returns the stored draft, or false when none exists.
func (d *DraftStore) Load(ctx context.Context) (domain.ComplaintDraft, bool, error) {
	raw, ok, err := d.kv.Get(ctx, kvstore.KeyDraft)
	if err != nil || !ok {
		return domain.ComplaintDraft{}, false, err
	}
	var draft domain.ComplaintDraft
	if err := json.Unmarshal([]byte(raw), &draft); err != nil {
		return domain.ComplaintDraft{}, false, err
	}
	return draft, true, nil
}

// Clear removes the stored draft.
func (d *DraftStore) Clear(ctx context.Context) error {
	return d.kv.Delete(ctx, kvstore.KeyDraft)
}
