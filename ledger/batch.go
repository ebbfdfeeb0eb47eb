////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 quorumchat developers                                     //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package ledger

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// Error messages.
const (
	emptyBatchErr   = "operation batch contains no operations"
	encodeBatchErr  = "failed to encode operation batch: %+v"
	encodeAuthErr   = "failed to encode authorization payload: %+v"
	zeroSenderErr   = "operation batch sender is unset"
	opMissingArgErr = "operation %s is missing required argument %s"
)

// OpKind enumerates the operations a batch may carry.
type OpKind uint8

const (
	OpCreateChannel OpKind = iota + 1
	OpMintCreatorCap

	// OpMintMemberCap mints a MemberCap and transfers it to Recipient in one
	// operation; there is no separate transfer op, since the minted object's
	// ID is not known until the batch executes.
	OpMintMemberCap

	OpShareChannel
	OpAttachEncryptionKey
	OpAppendMessage
)

// String returns the name of the operation kind. This function satisfies the
// fmt.Stringer interface.
func (k OpKind) String() string {
	switch k {
	case OpCreateChannel:
		return "CreateChannel"
	case OpMintCreatorCap:
		return "MintCreatorCap"
	case OpMintMemberCap:
		return "MintMemberCap"
	case OpShareChannel:
		return "ShareChannel"
	case OpAttachEncryptionKey:
		return "AttachEncryptionKey"
	case OpAppendMessage:
		return "AppendMessage"
	default:
		return "INVALID OPERATION"
	}
}

// Op is a single operation inside an atomic batch. Which fields are used
// depends on the kind; unused fields are omitted from the encoding.
type Op struct {
	Kind OpKind `cbor:"1,keyasint"`

	// Channel is the target channel for channel-scoped operations.
	Channel ObjectID `cbor:"2,keyasint,omitempty"`

	// Capability authorizes the operation (a CreatorCap for minting and
	// sharing, a MemberCap for appending).
	Capability ObjectID `cbor:"3,keyasint,omitempty"`

	// Recipient receives the minted or transferred object.
	Recipient Address `cbor:"4,keyasint,omitempty"`

	// Payload carries the operation body: the encrypted message record for
	// OpAppendMessage, the DEK envelope for OpAttachEncryptionKey.
	Payload []byte `cbor:"5,keyasint,omitempty"`
}

// Batch is an ordered list of operations submitted and executed atomically.
// Either every operation takes effect or none do.
type Batch struct {
	Sender Address `cbor:"1,keyasint"`
	Ops    []Op    `cbor:"2,keyasint"`
}

// NewBatch returns an empty batch for the given sender.
func NewBatch(sender Address) *Batch {
	return &Batch{Sender: sender}
}

// Add appends an operation to the batch and returns the batch for chaining.
func (b *Batch) Add(op Op) *Batch {
	b.Ops = append(b.Ops, op)
	return b
}

// Encode serializes the batch to its canonical CBOR wire form.
func (b *Batch) Encode() ([]byte, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	data, err := cbor.Marshal(b)
	if err != nil {
		return nil, errors.Errorf(encodeBatchErr, err)
	}
	return data, nil
}

func (b *Batch) validate() error {
	if b.Sender.IsZero() {
		return errors.New(zeroSenderErr)
	}
	if len(b.Ops) == 0 {
		return errors.New(emptyBatchErr)
	}
	for _, op := range b.Ops {
		switch op.Kind {
		case OpMintMemberCap:
			if op.Recipient.IsZero() {
				return errors.Errorf(opMissingArgErr, op.Kind, "recipient")
			}
		case OpAttachEncryptionKey, OpAppendMessage:
			if len(op.Payload) == 0 {
				return errors.Errorf(opMissingArgErr, op.Kind, "payload")
			}
		}
	}
	return nil
}

// authorizationPayload is the read-only transaction kind presented to the
// threshold-encryption service as proof that the caller may decrypt under a
// channel's policy. It pins the channel and capability by reference so the
// service can verify membership against committed state.
type authorizationPayload struct {
	Kind       string `cbor:"1,keyasint"`
	Channel    Ref    `cbor:"2,keyasint"`
	Capability Ref    `cbor:"3,keyasint"`
}

// NewAuthorizationPayload builds the read-only authorization proof bytes
// embedding the channel and member-capability references.
func NewAuthorizationPayload(channel, capability Ref) ([]byte, error) {
	data, err := cbor.Marshal(authorizationPayload{
		Kind:       "readonly",
		Channel:    channel,
		Capability: capability,
	})
	if err != nil {
		return nil, errors.Errorf(encodeAuthErr, err)
	}
	return data, nil
}
