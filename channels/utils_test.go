////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 quorumchat developers                                     //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package channels

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"gitlab.com/quorumchat/client/blobstore"
	"gitlab.com/quorumchat/client/envelope"
	"gitlab.com/quorumchat/client/ledger"
)

const messageType = "quorumchat::channel::Message"

// fakeLedger is an in-memory ledger.Service that interprets operation
// batches the way the on-chain program would: it mints capability objects,
// maintains channel records, and stores message-table entries under the
// derived position keys.
type fakeLedger struct {
	mux      sync.Mutex
	prng     *rand.Rand
	objects  map[ledger.ObjectID]ledger.Object
	channels map[ledger.ObjectID]*Channel
	results  map[string]*ledger.ExecutionResult
	txCount  int

	// objectOwnedRecipients makes minted caps for these addresses come out
	// object-owned, to exercise the skip-with-warning paths.
	objectOwnedRecipients map[ledger.Address]bool
}

func newFakeLedger(seed int64) *fakeLedger {
	return &fakeLedger{
		prng:                  rand.New(rand.NewSource(seed)),
		objects:               make(map[ledger.ObjectID]ledger.Object),
		channels:              make(map[ledger.ObjectID]*Channel),
		results:               make(map[string]*ledger.ExecutionResult),
		objectOwnedRecipients: make(map[ledger.Address]bool),
	}
}

func (f *fakeLedger) randID() ledger.ObjectID {
	var oid ledger.ObjectID
	f.prng.Read(oid[:])
	return oid
}

func (f *fakeLedger) GetObjects(_ context.Context, ids []ledger.ObjectID) (
	[]ledger.Object, error) {
	f.mux.Lock()
	defer f.mux.Unlock()

	objs := make([]ledger.Object, len(ids))
	for i, id := range ids {
		if ch, exists := f.channels[id]; exists {
			contents, err := encodeChannel(ch)
			if err != nil {
				return nil, err
			}
			objs[i] = ledger.Object{
				ID:       id,
				Version:  ch.Version,
				TypeTag:  ChannelType,
				Owner:    ledger.Owner{Kind: ledger.OwnerShared},
				Contents: contents,
			}
			continue
		}
		if obj, exists := f.objects[id]; exists {
			objs[i] = obj
		}
	}
	return objs, nil
}

func (f *fakeLedger) GetOwnedObjects(_ context.Context,
	owner ledger.Address, typeTag string, cursor *ledger.ObjectID,
	limit int) (ledger.OwnedPage, error) {
	f.mux.Lock()
	defer f.mux.Unlock()

	var matched []ledger.Object
	for _, obj := range f.objects {
		if obj.TypeTag == typeTag &&
			obj.Owner.Kind == ledger.OwnerAddress &&
			obj.Owner.Address == owner {
			matched = append(matched, obj)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ID.Cmp(matched[j].ID) < 0
	})

	start := 0
	if cursor != nil {
		for i, obj := range matched {
			if obj.ID == *cursor {
				start = i + 1
				break
			}
		}
	}

	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}

	page := ledger.OwnedPage{Objects: matched[start:end]}
	if end < len(matched) {
		next := matched[end-1].ID
		page.NextCursor = &next
	}
	return page, nil
}

func (f *fakeLedger) ExecuteBatch(_ context.Context, batch *ledger.Batch) (
	*ledger.ExecutionResult, error) {
	if _, err := batch.Encode(); err != nil {
		return nil, err
	}

	f.mux.Lock()
	defer f.mux.Unlock()

	f.txCount++
	result := &ledger.ExecutionResult{
		Digest: fmt.Sprintf("tx-%04d", f.txCount),
		Status: ledger.StatusSuccess,
	}

	// Channel created earlier in the same batch; ops with a zero channel
	// field target it.
	var current *Channel

	target := func(op ledger.Op) (*Channel, error) {
		if !op.Channel.IsZero() {
			ch, exists := f.channels[op.Channel]
			if !exists {
				return nil, errors.Errorf("unknown channel %s", op.Channel)
			}
			return ch, nil
		}
		if current == nil {
			return nil, errors.New("no channel in scope")
		}
		return current, nil
	}

	for _, op := range batch.Ops {
		switch op.Kind {
		case ledger.OpCreateChannel:
			ch := &Channel{
				ID:             f.randID(),
				Version:        1,
				CreatedAt:      time.Now().Round(0),
				UpdatedAt:      time.Now().Round(0),
				MessageTableID: f.randID(),
				Auth:           make(map[ledger.ObjectID]Permission),
			}
			f.channels[ch.ID] = ch
			current = ch
			result.Created = append(result.Created, ledger.CreatedObject{
				ID: ch.ID, Version: 1, TypeTag: ChannelType,
				Owner: ledger.Owner{Kind: ledger.OwnerShared},
			})

		case ledger.OpMintCreatorCap, ledger.OpMintMemberCap:
			ch, err := target(op)
			if err != nil {
				return f.fail(result, err), nil
			}

			typeTag, perm := CreatorCapType, PermAdmin
			owner := ledger.Owner{Kind: ledger.OwnerAddress,
				Address: batch.Sender}
			if op.Kind == ledger.OpMintMemberCap {
				typeTag, perm = MemberCapType, PermMember
				owner.Address = op.Recipient
				if f.objectOwnedRecipients[op.Recipient] {
					owner = ledger.Owner{Kind: ledger.OwnerObject}
				}
			}

			contents, err := cbor.Marshal(memberCapRecord{Channel: ch.ID})
			if err != nil {
				return nil, err
			}
			obj := ledger.Object{
				ID:       f.randID(),
				Version:  1,
				TypeTag:  typeTag,
				Owner:    owner,
				Contents: contents,
			}
			f.objects[obj.ID] = obj
			ch.Auth[obj.ID] = perm
			ch.Version++
			result.Created = append(result.Created, ledger.CreatedObject{
				ID: obj.ID, Version: 1, TypeTag: typeTag, Owner: owner,
			})

		case ledger.OpShareChannel:
			if _, err := target(op); err != nil {
				return f.fail(result, err), nil
			}

		case ledger.OpAttachEncryptionKey:
			ch, err := target(op)
			if err != nil {
				return f.fail(result, err), nil
			}
			var key envelope.EncryptedSymmetricKey
			if err = cbor.Unmarshal(op.Payload, &key); err != nil {
				return f.fail(result, err), nil
			}
			ch.KeyHistory.Keys = append(ch.KeyHistory.Keys, key)
			ch.KeyHistory.LatestVersion = key.Version
			ch.Version++

		case ledger.OpAppendMessage:
			ch, err := target(op)
			if err != nil {
				return f.fail(result, err), nil
			}
			msg, err := decodeMessage(op.Payload)
			if err != nil {
				return f.fail(result, err), nil
			}
			key := MessageKey(ch.MessageTableID, ch.MessagesCount)
			f.objects[key] = ledger.Object{
				ID:       key,
				Version:  1,
				TypeTag:  messageType,
				Contents: op.Payload,
			}
			ch.MessagesCount++
			ch.UpdatedAt = time.Now().Round(0)
			ch.LastMessage = &msg
			ch.Version++

		default:
			return f.fail(result,
				errors.Errorf("unsupported op %s", op.Kind)), nil
		}
	}

	f.results[result.Digest] = result
	return result, nil
}

func (f *fakeLedger) fail(result *ledger.ExecutionResult,
	err error) *ledger.ExecutionResult {
	result.Status = ledger.StatusFailure
	result.ExecError = err.Error()
	f.results[result.Digest] = result
	return result
}

func (f *fakeLedger) GetExecutionResult(_ context.Context, digest string) (
	*ledger.ExecutionResult, error) {
	f.mux.Lock()
	defer f.mux.Unlock()

	result, exists := f.results[digest]
	if !exists {
		return nil, errors.Errorf("unknown transaction %s", digest)
	}
	return result, nil
}

// corruptMessage flips a ciphertext byte of the stored message at the
// given position.
func (f *fakeLedger) corruptMessage(t *testing.T, tableID ledger.ObjectID,
	position uint64) {
	t.Helper()
	f.mux.Lock()
	defer f.mux.Unlock()

	key := MessageKey(tableID, position)
	obj, exists := f.objects[key]
	if !exists {
		t.Fatalf("no message at position %d to corrupt", position)
	}

	msg, err := decodeMessage(obj.Contents)
	if err != nil {
		t.Fatalf("failed to decode message to corrupt: %+v", err)
	}
	msg.Ciphertext[0] ^= 0xFF

	contents, err := encodeMessage(msg)
	if err != nil {
		t.Fatalf("failed to re-encode corrupted message: %+v", err)
	}
	obj.Contents = contents
	f.objects[key] = obj
}

// rewriteKeyVersion overwrites the stored KeyVersion of the message at the
// given position.
func (f *fakeLedger) rewriteKeyVersion(t *testing.T, tableID ledger.ObjectID,
	position uint64, version uint32) {
	t.Helper()
	f.mux.Lock()
	defer f.mux.Unlock()

	key := MessageKey(tableID, position)
	obj, exists := f.objects[key]
	if !exists {
		t.Fatalf("no message at position %d to rewrite", position)
	}

	msg, err := decodeMessage(obj.Contents)
	if err != nil {
		t.Fatalf("failed to decode message to rewrite: %+v", err)
	}
	msg.KeyVersion = version

	contents, err := encodeMessage(msg)
	if err != nil {
		t.Fatalf("failed to re-encode rewritten message: %+v", err)
	}
	obj.Contents = contents
	f.objects[key] = obj
}

// fakeThreshold emulates the threshold-encryption service by storing
// plaintexts against random handles.
type fakeThreshold struct {
	mux   sync.Mutex
	prng  *rand.Rand
	store map[string][]byte
}

func newFakeThreshold(seed int64) *fakeThreshold {
	return &fakeThreshold{
		prng:  rand.New(rand.NewSource(seed)),
		store: make(map[string][]byte),
	}
}

func (f *fakeThreshold) Encrypt(_ context.Context, _ int, _,
	plaintext []byte) ([]byte, error) {
	f.mux.Lock()
	defer f.mux.Unlock()

	handle := make([]byte, 24)
	f.prng.Read(handle)
	f.store[string(handle)] = append([]byte{}, plaintext...)
	return handle, nil
}

func (f *fakeThreshold) Decrypt(_ context.Context, blob, _,
	authorization []byte) ([]byte, error) {
	if len(authorization) == 0 {
		return nil, errors.New("missing authorization payload")
	}

	f.mux.Lock()
	defer f.mux.Unlock()

	plaintext, exists := f.store[string(blob)]
	if !exists {
		return nil, errors.New("unknown blob")
	}
	return plaintext, nil
}

// fakeProver returns a fixed session proof.
type fakeProver struct{}

func (fakeProver) Proof(context.Context) ([]byte, error) {
	return []byte("test session proof"), nil
}

// testEnv bundles a manager with the fakes behind it.
type testEnv struct {
	m      *manager
	net    *fakeLedger
	blobs  *blobstore.Memory
	me     ledger.Address
	thresh *fakeThreshold
}

// newTestEnv builds a manager wired to in-memory fakes. The threshold
// service and ledger may be shared across managers to model multiple
// participants.
func newTestEnv(t *testing.T, seed int64, net *fakeLedger,
	thresh *fakeThreshold) *testEnv {
	t.Helper()

	prng := rand.New(rand.NewSource(seed))
	var me ledger.Address
	prng.Read(me[:])

	if net == nil {
		net = newFakeLedger(seed + 1)
	}
	if thresh == nil {
		thresh = newFakeThreshold(seed + 2)
	}
	blobs := blobstore.NewMemory(time.Millisecond)

	mgr, err := NewManager(Config{
		Ledger:    net,
		Threshold: thresh,
		Session:   fakeProver{},
		Identity:  me,
		Storage:   StorageConfig{Adapter: blobs},
	}, GetDefaultParams())
	if err != nil {
		t.Fatalf("NewManager() returned an error: %+v", err)
	}

	return &testEnv{
		m:      mgr.(*manager),
		net:    net,
		blobs:  blobs,
		me:     me,
		thresh: thresh,
	}
}

// createChannel runs the full creation saga and returns the generated
// capabilities.
func (e *testEnv) createChannel(t *testing.T,
	initialMembers []ledger.Address) *GeneratedCaps {
	t.Helper()

	c := e.m.NewCreation(initialMembers)
	if _, err := c.Build(t.Context()); err != nil {
		t.Fatalf("Build() returned an error: %+v", err)
	}
	caps, err := c.GeneratedCaps()
	if err != nil {
		t.Fatalf("GeneratedCaps() returned an error: %+v", err)
	}
	if _, err = c.AttachEncryptionKey(t.Context()); err != nil {
		t.Fatalf("AttachEncryptionKey() returned an error: %+v", err)
	}
	if _, err = c.GeneratedEncryptionKey(); err != nil {
		t.Fatalf("GeneratedEncryptionKey() returned an error: %+v", err)
	}
	return caps
}

func randAddresses(prng *rand.Rand, n int) []ledger.Address {
	addrs := make([]ledger.Address, n)
	for i := range addrs {
		prng.Read(addrs[i][:])
	}
	return addrs
}
