////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 quorumchat developers                                     //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package blobstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Memory is an in-process Adapter used by tests. A non-zero latency is
// applied to every call to exercise callers' concurrency handling.
type Memory struct {
	latency time.Duration

	mux   sync.RWMutex
	blobs map[Reference][]byte
}

// NewMemory constructs an in-memory adapter with the given artificial
// per-call latency.
func NewMemory(latency time.Duration) *Memory {
	return &Memory{
		latency: latency,
		blobs:   make(map[Reference][]byte),
	}
}

// Upload stores copies of the payloads under fresh references.
func (m *Memory) Upload(ctx context.Context, payloads [][]byte) (
	[]Reference, error) {
	if len(payloads) == 0 {
		return nil, EmptyUploadErr
	}
	if err := m.sleep(ctx); err != nil {
		return nil, err
	}

	m.mux.Lock()
	defer m.mux.Unlock()

	refs := make([]Reference, len(payloads))
	for i, payload := range payloads {
		ref := Reference(uuid.NewString())
		m.blobs[ref] = append([]byte{}, payload...)
		refs[i] = ref
	}
	return refs, nil
}

// Download returns copies of the stored payloads, in reference order.
func (m *Memory) Download(ctx context.Context, refs []Reference) (
	[][]byte, error) {
	if err := m.sleep(ctx); err != nil {
		return nil, err
	}

	m.mux.RLock()
	defer m.mux.RUnlock()

	payloads := make([][]byte, len(refs))
	for i, ref := range refs {
		blob, exists := m.blobs[ref]
		if !exists {
			return nil, errors.Wrapf(BlobNotFoundErr, "reference %s", ref)
		}
		payloads[i] = append([]byte{}, blob...)
	}
	return payloads, nil
}

// Len returns the number of stored blobs.
func (m *Memory) Len() int {
	m.mux.RLock()
	defer m.mux.RUnlock()
	return len(m.blobs)
}

func (m *Memory) sleep(ctx context.Context) error {
	if m.latency == 0 {
		return nil
	}
	select {
	case <-time.After(m.latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
