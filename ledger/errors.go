////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 quorumchat developers                                     //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package ledger

import "github.com/pkg/errors"

var (
	// InvalidIdentifierErr is returned when a channel, capability, or address
	// identifier is malformed. It is always raised locally, before any
	// network call.
	InvalidIdentifierErr = errors.New("invalid ledger identifier")

	// TransactionFailedErr is returned when a submitted operation batch
	// executes with a non-success status. The wrapping message carries the
	// execution error string verbatim.
	TransactionFailedErr = errors.New("transaction execution failed")

	// ObjectNotFoundErr is returned when an object read comes back empty for
	// a requested identifier.
	ObjectNotFoundErr = errors.New("object not found on ledger")
)
