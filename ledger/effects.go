////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 quorumchat developers                                     //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package ledger

import "github.com/pkg/errors"

// OwnerKind tags how an object is held on the ledger. Only address-owned
// objects can be attributed to an account.
type OwnerKind uint8

const (
	OwnerAddress OwnerKind = iota + 1
	OwnerObject
	OwnerShared
	OwnerImmutable
)

// String returns the name of the owner kind. This function satisfies the
// fmt.Stringer interface.
func (k OwnerKind) String() string {
	switch k {
	case OwnerAddress:
		return "AddressOwner"
	case OwnerObject:
		return "ObjectOwner"
	case OwnerShared:
		return "Shared"
	case OwnerImmutable:
		return "Immutable"
	default:
		return "INVALID OWNER"
	}
}

// Owner describes the holder of an object. Address is only meaningful when
// Kind is OwnerAddress.
type Owner struct {
	Kind    OwnerKind
	Address Address
}

// CreatedObject is one object minted by an executed batch, as reported in
// the execution effects.
type CreatedObject struct {
	ID      ObjectID
	Version uint64
	TypeTag string
	Owner   Owner
}

// Ref returns the created object's pinned reference.
func (c CreatedObject) Ref() Ref {
	return Ref{ID: c.ID, Version: c.Version}
}

// ExecutionStatus is the terminal status of an executed batch.
type ExecutionStatus uint8

const (
	StatusSuccess ExecutionStatus = iota + 1
	StatusFailure
)

// ExecutionResult is the committed effect set of one executed batch.
type ExecutionResult struct {
	Digest  string
	Status  ExecutionStatus
	Created []CreatedObject

	// ExecError is the ledger's execution error string. It is only set when
	// Status is StatusFailure and is surfaced to callers verbatim.
	ExecError string
}

// Err returns nil when the batch executed successfully and a
// TransactionFailedErr carrying the ledger's error string otherwise.
func (r *ExecutionResult) Err() error {
	if r.Status == StatusSuccess {
		return nil
	}
	return errors.Wrap(TransactionFailedErr, r.ExecError)
}

// CreatedOfType returns every created object whose type tag matches.
func (r *ExecutionResult) CreatedOfType(typeTag string) []CreatedObject {
	var matched []CreatedObject
	for _, c := range r.Created {
		if c.TypeTag == typeTag {
			matched = append(matched, c)
		}
	}
	return matched
}
