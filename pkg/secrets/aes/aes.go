// SPDX-FileCopyrightText: Copyright 2025 Sellermesh, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package aes implements the at-rest encryption shared by the token store
// and the bootstrap vault. Files are written as one tagged AES-256-GCM blob:
// a short magic header, the random nonce, then the sealed payload. Anything
// that fails to authenticate invalidates the whole blob.
package aes

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

// KeySize is the required key length for AES-256.
const KeySize = 32

// magic tags encrypted blobs so a plaintext or foreign file is rejected
// before decryption is attempted.
var magic = []byte("ADSGATEv1\x00")

// ErrNotEncrypted is returned when a blob does not carry the expected tag.
var ErrNotEncrypted = errors.New("data is not an encrypted blob")

// ErrInvalidKeySize is returned when the key is not 32 bytes.
var ErrInvalidKeySize = fmt.Errorf("encryption key must be %d bytes", KeySize)

// Encrypt seals plaintext with AES-256-GCM under key and returns the tagged blob.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, len(magic)+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, magic...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, magic), nil
}

// Decrypt opens a tagged blob produced by Encrypt. A missing tag, truncated
// nonce, or authentication failure all reject the whole blob.
func Decrypt(blob, key []byte) ([]byte, error) {
	if !IsEncrypted(blob) {
		return nil, ErrNotEncrypted
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	body := blob[len(magic):]
	if len(body) < gcm.NonceSize() {
		return nil, errors.New("encrypted blob is truncated")
	}

	nonce, sealed := body[:gcm.NonceSize()], body[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, magic)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

// IsEncrypted reports whether blob carries the encryption tag.
func IsEncrypted(blob []byte) bool {
	return bytes.HasPrefix(blob, magic)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
