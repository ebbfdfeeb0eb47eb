////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 quorumchat developers                                     //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package blobstore abstracts the decentralized blob-storage service behind
// a narrow upload/download capability so the rest of the client stays
// storage agnostic. Payloads are always ciphertext by the time they reach
// an adapter; nothing in this package sees plaintext.
package blobstore

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ReferenceExtractionFailedErr is returned when the storage service's
	// response envelope does not contain the expected reference shape. The
	// wrapping message carries the raw response for diagnostics.
	ReferenceExtractionFailedErr = errors.New(
		"could not extract blob references from storage response")

	// EmptyUploadErr is returned when Upload is called with no payloads.
	EmptyUploadErr = errors.New("no payloads to upload")

	// BlobNotFoundErr is returned when a download reference does not
	// resolve to a stored payload.
	BlobNotFoundErr = errors.New("blob reference not found")
)

// Reference is an opaque handle addressing one stored payload. Its contents
// are meaningful only to the adapter that issued it.
type Reference string

// Adapter is the two-method storage capability consumed by the orchestrator
// and the encryption engine.
type Adapter interface {
	// Upload stores every payload and returns one reference per payload, in
	// order.
	Upload(ctx context.Context, payloads [][]byte) ([]Reference, error)

	// Download fetches the payloads behind the references, in order.
	Download(ctx context.Context, refs []Reference) ([][]byte, error)
}
