////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 quorumchat developers                                     //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package envelope

import (
	"crypto/rand"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

// Error messages.
const (
	newCipherErr      = "failed to initialize AEAD cipher: %+v"
	newNonceErr       = "failed to generate nonce: %+v"
	encodeMetadataErr = "failed to encode attachment metadata: %+v"
	decodeMetadataErr = "failed to decode attachment metadata: %+v"
)

// KeyLen is the length, in bytes, of a channel DEK.
const KeyLen = chacha20poly1305.KeySize

// Metadata describes an attachment. It is encrypted independently of the
// attachment data so it can be read without downloading the payload.
type Metadata struct {
	Filename string `cbor:"1,keyasint"`
	MimeType string `cbor:"2,keyasint"`
	Size     uint64 `cbor:"3,keyasint"`
}

// EncryptText seals plaintext under the channel DEK, authenticated with the
// context's AAD. The ciphertext and nonce are returned separately, matching
// how the message record stores them.
func EncryptText(dek, plaintext []byte, aadCtx AADContext) (
	ciphertext, nonce []byte, err error) {
	return seal(dek, plaintext, aadCtx.Bytes())
}

// DecryptText opens a sealed message body. A mismatched context (wrong
// channel, key version, or sender) fails with DecryptionFailedErr; it never
// silently returns wrong plaintext.
func DecryptText(dek, ciphertext, nonce []byte, aadCtx AADContext) (
	[]byte, error) {
	return open(dek, ciphertext, nonce, aadCtx.Bytes())
}

// EncryptAttachmentData seals an attachment payload. It uses a nonce
// independent of the metadata nonce.
func EncryptAttachmentData(dek, data []byte, aadCtx AADContext) (
	ciphertext, nonce []byte, err error) {
	return seal(dek, data, aadCtx.Bytes())
}

// DecryptAttachmentData opens a sealed attachment payload.
func DecryptAttachmentData(dek, ciphertext, nonce []byte,
	aadCtx AADContext) ([]byte, error) {
	return open(dek, ciphertext, nonce, aadCtx.Bytes())
}

// EncryptAttachmentMetadata seals the CBOR encoding of the attachment
// metadata under its own nonce.
func EncryptAttachmentMetadata(dek []byte, md Metadata, aadCtx AADContext) (
	ciphertext, nonce []byte, err error) {
	plaintext, err := cbor.Marshal(md)
	if err != nil {
		return nil, nil, errors.Errorf(encodeMetadataErr, err)
	}
	return seal(dek, plaintext, aadCtx.Bytes())
}

// DecryptAttachmentMetadata opens and decodes sealed attachment metadata.
func DecryptAttachmentMetadata(dek, ciphertext, nonce []byte,
	aadCtx AADContext) (Metadata, error) {
	plaintext, err := open(dek, ciphertext, nonce, aadCtx.Bytes())
	if err != nil {
		return Metadata{}, err
	}
	var md Metadata
	if err = cbor.Unmarshal(plaintext, &md); err != nil {
		return Metadata{}, errors.Errorf(decodeMetadataErr, err)
	}
	return md, nil
}

// seal encrypts plaintext with XChaCha20-Poly1305 under a fresh random
// nonce.
func seal(dek, plaintext, aad []byte) (ciphertext, nonce []byte, err error) {
	chaCipher, err := chacha20poly1305.NewX(dek)
	if err != nil {
		return nil, nil, errors.Errorf(newCipherErr, err)
	}

	nonce = make([]byte, chaCipher.NonceSize())
	if _, err = rand.Read(nonce); err != nil {
		return nil, nil, errors.Errorf(newNonceErr, err)
	}

	ciphertext = chaCipher.Seal(nil, nonce, plaintext, aad)
	return ciphertext, nonce, nil
}

// open decrypts a ciphertext sealed by seal. Authentication failures are
// reported as DecryptionFailedErr.
func open(dek, ciphertext, nonce, aad []byte) ([]byte, error) {
	chaCipher, err := chacha20poly1305.NewX(dek)
	if err != nil {
		return nil, errors.Errorf(newCipherErr, err)
	}

	plaintext, err := chaCipher.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, errors.Wrap(DecryptionFailedErr, err.Error())
	}
	return plaintext, nil
}
