// Package handoff carries exactly one pending analysis result from the
// upload flow to the results flow across a full process boundary, so the
// detection result need not be recomputed and the file need not be
// re-uploaded merely to redisplay it.
package handoff

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/Abhayjain-py/deepshield/internal/domain"
	"github.com/Abhayjain-py/deepshield/internal/kvstore"
)

// Store is the single-slot carrier for a PendingAnalysisResult. The persisted
// payload survives process restarts; the transient file handle lives only in
// the memory of the process that published it.
type Store struct {
	kv *kvstore.Store

	mu     sync.Mutex
	handle io.ReadCloser
}

// New creates a handoff store over the shared key-value store.
func New(kv *kvstore.Store) *Store {
	return &Store{kv: kv}
}

// Publish overwrites whatever result was previously stored. The transient
// handle, if any, is retained in memory only.
func (s *Store) Publish(ctx context.Context, result domain.PendingAnalysisResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	if err := s.kv.Put(ctx, kvstore.KeyPendingResult, string(payload)); err != nil {
		return err
	}

	s.mu.Lock()
	if s.handle != nil && s.handle != result.TransientHandle {
		s.handle.Close()
	}
	s.handle = result.TransientHandle
	s.mu.Unlock()
	return nil
}

// Consume returns the stored result without clearing it, so a refresh of the
// results view does not lose data. The second return is false when nothing
// was published; the caller's documented behavior on absent is to redirect to
// the upload entry point. The transient handle is reattached only when this
// same process published the result; callers must nil-check it and degrade
// to a placeholder rather than fail.
func (s *Store) Consume(ctx context.Context) (domain.PendingAnalysisResult, bool, error) {
	raw, ok, err := s.kv.Get(ctx, kvstore.KeyPendingResult)
	if err != nil {
		return domain.PendingAnalysisResult{}, false, err
	}
	if !ok {
		return domain.PendingAnalysisResult{}, false, nil
	}

	var result domain.PendingAnalysisResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return domain.PendingAnalysisResult{}, false, err
	}

	s.mu.Lock()
	result.TransientHandle = s.handle
	s.mu.Unlock()
	return result, true, nil
}

// Clear removes the stored result and releases the in-memory handle. The
// consuming flow calls this explicitly ("analyze another"); navigation alone
// never clears the slot.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, kvstore.KeyPendingResult); err != nil {
		return err
	}
	s.mu.Lock()
	if s.handle != nil {
		s.handle.Close()
		s.handle = nil
	}
	s.mu.Unlock()
	return nil
}
