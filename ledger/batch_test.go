////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 quorumchat developers                                     //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package ledger

import (
	"math/rand"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"
)

func randomAddress(t *testing.T, prng *rand.Rand) Address {
	t.Helper()
	var a Address
	prng.Read(a[:])
	return a
}

func randomObjectID(t *testing.T, prng *rand.Rand) ObjectID {
	t.Helper()
	var oid ObjectID
	prng.Read(oid[:])
	return oid
}

// Tests that a populated batch encodes and decodes to the same operations.
func TestBatch_Encode(t *testing.T) {
	prng := rand.New(rand.NewSource(11))
	sender := randomAddress(t, prng)
	channel := randomObjectID(t, prng)

	b := NewBatch(sender).
		Add(Op{Kind: OpCreateChannel}).
		Add(Op{Kind: OpMintCreatorCap, Channel: channel}).
		Add(Op{Kind: OpMintMemberCap, Channel: channel,
			Recipient: randomAddress(t, prng)}).
		Add(Op{Kind: OpShareChannel, Channel: channel})

	data, err := b.Encode()
	require.NoError(t, err)

	var decoded Batch
	require.NoError(t, cbor.Unmarshal(data, &decoded))
	require.Equal(t, b.Sender, decoded.Sender)
	require.Len(t, decoded.Ops, 4)
	require.Equal(t, OpMintMemberCap, decoded.Ops[2].Kind)
}

// Error path: an empty batch and a zero sender are both rejected before
// encoding.
func TestBatch_Encode_Invalid(t *testing.T) {
	prng := rand.New(rand.NewSource(12))

	_, err := NewBatch(randomAddress(t, prng)).Encode()
	require.Error(t, err, "empty batch should not encode")

	_, err = NewBatch(Address{}).Add(Op{Kind: OpCreateChannel}).Encode()
	require.Error(t, err, "zero sender should not encode")
}

// Error path: operations with missing required arguments are rejected.
func TestBatch_Encode_MissingArgs(t *testing.T) {
	prng := rand.New(rand.NewSource(13))
	sender := randomAddress(t, prng)

	_, err := NewBatch(sender).
		Add(Op{Kind: OpMintMemberCap}).Encode()
	require.Error(t, err, "MintMemberCap without recipient should not encode")

	_, err = NewBatch(sender).
		Add(Op{Kind: OpAppendMessage}).Encode()
	require.Error(t, err, "AppendMessage without payload should not encode")
}

// Tests that the authorization payload pins both references.
func TestNewAuthorizationPayload(t *testing.T) {
	prng := rand.New(rand.NewSource(14))
	channel := Ref{ID: randomObjectID(t, prng), Version: 4}
	capability := Ref{ID: randomObjectID(t, prng), Version: 9}

	data, err := NewAuthorizationPayload(channel, capability)
	require.NoError(t, err)

	var decoded authorizationPayload
	require.NoError(t, cbor.Unmarshal(data, &decoded))
	require.Equal(t, "readonly", decoded.Kind)
	require.Equal(t, channel, decoded.Channel)
	require.Equal(t, capability, decoded.Capability)
}

// Tests Err and CreatedOfType over a mixed execution result.
func TestExecutionResult(t *testing.T) {
	prng := rand.New(rand.NewSource(15))
	r := &ExecutionResult{
		Digest: "digest",
		Status: StatusSuccess,
		Created: []CreatedObject{
			{ID: randomObjectID(t, prng), TypeTag: "channel::CreatorCap"},
			{ID: randomObjectID(t, prng), TypeTag: "channel::MemberCap"},
			{ID: randomObjectID(t, prng), TypeTag: "channel::MemberCap"},
		},
	}

	require.NoError(t, r.Err())
	require.Len(t, r.CreatedOfType("channel::MemberCap"), 2)
	require.Len(t, r.CreatedOfType("channel::CreatorCap"), 1)
	require.Empty(t, r.CreatedOfType("channel::Channel"))

	failed := &ExecutionResult{Status: StatusFailure,
		ExecError: "MoveAbort(7)"}
	err := failed.Err()
	require.ErrorIs(t, err, TransactionFailedErr)
	require.Contains(t, err.Error(), "MoveAbort(7)")
}
