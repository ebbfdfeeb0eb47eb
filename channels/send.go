////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 quorumchat developers                                     //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package channels

import (
	"context"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"golang.org/x/sync/errgroup"

	"gitlab.com/quorumchat/client/blobstore"
	"gitlab.com/quorumchat/client/envelope"
	"gitlab.com/quorumchat/client/ledger"
)

// Error messages.
const (
	encryptBodyErr   = "failed to encrypt message body: %+v"
	encryptAttErr    = "failed to encrypt attachment %q: %+v"
	uploadAttErr     = "failed to upload attachment payloads: %+v"
	sendExecErr      = "send-message transaction failed: %+v"
	attIndexErr      = "message has %d attachments; index %d out of range"
	downloadAttErr   = "failed to download attachment payload %s: %+v"
	decryptAttErr    = "failed to decrypt attachment %s: %+v"
)

// AttachmentUpload is one attachment to send: the plaintext payload and
// the metadata that will be encrypted alongside it.
type AttachmentUpload struct {
	Filename string
	MimeType string
	Data     []byte
}

// SendReport is the outcome of a successful send.
type SendReport struct {
	Digest string

	// Position is the table position the message was appended at.
	Position uint64
}

// SendMessage encrypts the text and attachments under the channel's latest
// DEK and appends one message to the channel's table. Attachment payloads
// and metadata are encrypted concurrently, payload ciphertexts are
// uploaded through the storage adapter in a single batch, and the message
// record is appended in one atomic operation batch.
//
// Sending into a channel whose key history is empty (the window between
// creation and key attachment) fails with NoEncryptionKeyErr.
func (m *manager) SendMessage(ctx context.Context,
	channelID ledger.ObjectID, text []byte,
	attachments []AttachmentUpload) (*SendReport, error) {
	ch, err := m.FetchChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}

	key, exists := ch.KeyHistory.Latest()
	if !exists {
		return nil, errors.Wrapf(NoEncryptionKeyErr, "channel %s", ch.ID)
	}

	dek, err := m.channelDEK(ctx, ch, key.Version)
	if err != nil {
		return nil, err
	}

	aadCtx := envelope.AADContext{
		ChannelID:  ch.ID,
		KeyVersion: key.Version,
		Sender:     m.me,
	}

	msg := Message{
		Sender:      m.me,
		CreatedAt:   time.Now().Round(0),
		KeyVersion:  key.Version,
		Attachments: make([]Attachment, len(attachments)),
	}
	payloads := make([][]byte, len(attachments))

	// Encrypt the body and all attachments concurrently; slots keep the
	// results in input order regardless of completion order.
	eg, _ := errgroup.WithContext(ctx)
	eg.Go(func() error {
		ciphertext, nonce, err := envelope.EncryptText(dek, text, aadCtx)
		if err != nil {
			return errors.Errorf(encryptBodyErr, err)
		}
		msg.Ciphertext, msg.Nonce = ciphertext, nonce
		return nil
	})
	for i, att := range attachments {
		eg.Go(func() error {
			dataCt, dataNonce, err := envelope.EncryptAttachmentData(dek,
				att.Data, aadCtx)
			if err != nil {
				return errors.Errorf(encryptAttErr, att.Filename, err)
			}

			md := envelope.Metadata{
				Filename: att.Filename,
				MimeType: att.MimeType,
				Size:     uint64(len(att.Data)),
			}
			mdCt, mdNonce, err := envelope.EncryptAttachmentMetadata(dek, md,
				aadCtx)
			if err != nil {
				return errors.Errorf(encryptAttErr, att.Filename, err)
			}

			payloads[i] = dataCt
			msg.Attachments[i] = Attachment{
				EncryptedMetadata: mdCt,
				MetadataNonce:     mdNonce,
				DataNonce:         dataNonce,
			}
			return nil
		})
	}
	if err = eg.Wait(); err != nil {
		return nil, err
	}

	if len(payloads) > 0 {
		refs, err := m.blobs.Upload(ctx, payloads)
		if err != nil {
			return nil, errors.Errorf(uploadAttErr, err)
		}
		for i, ref := range refs {
			msg.Attachments[i].BlobRef = ref
		}
	}

	capRef, err := m.ResolveMemberCap(ctx, ch.ID)
	if err != nil {
		return nil, err
	}

	payload, err := encodeMessage(msg)
	if err != nil {
		return nil, err
	}

	batch := ledger.NewBatch(m.me).Add(ledger.Op{
		Kind:       ledger.OpAppendMessage,
		Channel:    ch.ID,
		Capability: capRef.ID,
		Payload:    payload,
	})

	result, err := m.net.ExecuteBatch(ctx, batch)
	if err != nil {
		return nil, errors.Errorf(sendExecErr, err)
	}
	if err = result.Err(); err != nil {
		return nil, err
	}

	jww.INFO.Printf("[CH] Sent message with %d attachments to channel %s "+
		"at position %d", len(attachments), ch.ID, ch.MessagesCount)

	return &SendReport{Digest: result.Digest,
		Position: ch.MessagesCount}, nil
}

// DownloadAttachment downloads and decrypts one attachment of a fetched
// message.
func (m *manager) DownloadAttachment(ctx context.Context,
	channelID ledger.ObjectID, msg DecodedMessage, index int) (
	[]byte, envelope.Metadata, error) {
	if index < 0 || index >= len(msg.Attachments) {
		return nil, envelope.Metadata{}, errors.Errorf(attIndexErr,
			len(msg.Attachments), index)
	}
	att := msg.Attachments[index]

	ch, err := m.FetchChannel(ctx, channelID)
	if err != nil {
		return nil, envelope.Metadata{}, err
	}

	dek, err := m.channelDEK(ctx, ch, msg.KeyVersion)
	if err != nil {
		return nil, envelope.Metadata{}, err
	}

	aadCtx := envelope.AADContext{
		ChannelID:  ch.ID,
		KeyVersion: msg.KeyVersion,
		Sender:     msg.Sender,
	}

	md, err := envelope.DecryptAttachmentMetadata(dek, att.EncryptedMetadata,
		att.MetadataNonce, aadCtx)
	if err != nil {
		return nil, envelope.Metadata{}, errors.Errorf(decryptAttErr,
			att.BlobRef, err)
	}

	payloads, err := m.blobs.Download(ctx,
		[]blobstore.Reference{att.BlobRef})
	if err != nil {
		return nil, envelope.Metadata{}, errors.Errorf(downloadAttErr,
			att.BlobRef, err)
	}

	data, err := envelope.DecryptAttachmentData(dek, payloads[0],
		att.DataNonce, aadCtx)
	if err != nil {
		return nil, envelope.Metadata{}, errors.Errorf(decryptAttErr,
			att.BlobRef, err)
	}

	return data, md, nil
}

// decryptBody opens a message body under its original AAD context.
func decryptBody(dek []byte, channelID ledger.ObjectID, msg Message) (
	[]byte, error) {
	aadCtx := envelope.AADContext{
		ChannelID:  channelID,
		KeyVersion: msg.KeyVersion,
		Sender:     msg.Sender,
	}
	return envelope.DecryptText(dek, msg.Ciphertext, msg.Nonce, aadCtx)
}
