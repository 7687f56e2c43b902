/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import (
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// HeaderRemoteKey carries the shared remote key on controller and surface
// requests.
const HeaderRemoteKey = "X-Remote-Key"

// ErrInvalidKey is returned when a presented remote key does not match.
var ErrInvalidKey = errors.New("invalid remote key")

// KeyVerifier checks the shared remote key. The key is configured either in
// plain text or as a bcrypt hash; the hash wins when both are set.
type KeyVerifier struct {
	plain []byte
	hash  []byte
}

// NewKeyVerifier builds a verifier. With neither value set the verifier is
// disabled and every request is let through.
func NewKeyVerifier(plain, bcryptHash string) (*KeyVerifier, error) {
	v := &KeyVerifier{}
	if bcryptHash != "" {
		if _, err := bcrypt.Cost([]byte(bcryptHash)); err != nil {
			return nil, err
		}
		v.hash = []byte(bcryptHash)
		return v, nil
	}
	if plain != "" {
		v.plain = []byte(plain)
	}
	return v, nil
}

// Enabled reports whether a key is required.
func (v *KeyVerifier) Enabled() bool {
	return v != nil && (len(v.hash) > 0 || len(v.plain) > 0)
}

// Verify returns ErrInvalidKey unless key matches.
func (v *KeyVerifier) Verify(key string) error {
	if !v.Enabled() {
		return nil
	}
	if key == "" {
		return ErrInvalidKey
	}
	if len(v.hash) > 0 {
		if err := bcrypt.CompareHashAndPassword(v.hash, []byte(key)); err != nil {
			return ErrInvalidKey
		}
		return nil
	}
	if subtle.ConstantTimeCompare(v.plain, []byte(key)) != 1 {
		return ErrInvalidKey
	}
	return nil
}

// HashKey produces a bcrypt hash suitable for REMOTE_KEY_HASH.
func HashKey(key string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
