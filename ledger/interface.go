////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 quorumchat developers                                     //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package ledger defines the client's view of the distributed ledger: fixed
// width object and account identifiers, the narrow service interface the
// higher layers consume, atomic operation batches, and the execution effects
// returned once a batch commits. The ledger's own execution semantics are an
// external collaborator; nothing in this package interprets contract logic.
package ledger

import "context"

// Object is a versioned record read from the ledger. Contents is the CBOR
// encoding of the object's fields; callers decode it into their own types.
type Object struct {
	ID       ObjectID
	Version  uint64
	TypeTag  string
	Owner    Owner
	Contents []byte
}

// Ref is the (id, version) reference used to pin an object in an
// authorization payload or a transaction input.
type Ref struct {
	ID      ObjectID `cbor:"1,keyasint"`
	Version uint64   `cbor:"2,keyasint"`
}

// Ref returns the object's pinned reference.
func (o Object) Ref() Ref {
	return Ref{ID: o.ID, Version: o.Version}
}

// OwnedPage is one page of an owned-object query.
type OwnedPage struct {
	Objects []Object

	// NextCursor resumes the query after the last returned object. It is nil
	// when the query is exhausted.
	NextCursor *ObjectID
}

// Service is the ledger collaborator. All channel, message, and capability
// state is read through it and mutated only by submitted operation batches,
// never directly.
//
// ExecuteBatch submits one atomic batch and blocks until the ledger reports
// one finalized confirmation, then returns the execution result. It does not
// retry; transient failures surface to the caller, who must inspect prior
// execution effects before resubmitting a write.
type Service interface {
	// GetObjects reads the current version of each requested object. The
	// returned slice is parallel to ids; a missing object yields a zero
	// Object at its index rather than truncating the slice.
	GetObjects(ctx context.Context, ids []ObjectID) ([]Object, error)

	// GetOwnedObjects queries objects owned by an address, filtered to one
	// type tag, resuming from cursor when non-nil.
	GetOwnedObjects(ctx context.Context, owner Address, typeTag string,
		cursor *ObjectID, limit int) (OwnedPage, error)

	// ExecuteBatch submits an atomic operation batch, waits for one
	// finalized confirmation, and returns the execution result.
	ExecuteBatch(ctx context.Context, batch *Batch) (*ExecutionResult, error)

	// GetExecutionResult retrieves the committed effects of a previously
	// executed batch by its digest. It is a read and never re-executes.
	GetExecutionResult(ctx context.Context, digest string) (
		*ExecutionResult, error)
}
