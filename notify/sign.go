// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package notify

import (
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// signer authenticates LOGIN messages with a keyed BLAKE2b-128 MAC derived
// from the shared token, hex encoded into the 32 byte signature field.
// An empty token disables signing and verification.
type signer struct {
	key     [32]byte
	enabled bool
}

func newSigner(token string) *signer {
	if token == "" {
		return &signer{}
	}
	return &signer{key: blake2b.Sum256([]byte(token)), enabled: true}
}

func (s *signer) sign(msg []byte) [signSize]byte {
	var out [signSize]byte
	if !s.enabled {
		return out
	}
	mac, err := blake2b.New(signSize/2, s.key[:])
	if err != nil {
		// only reachable with an invalid size or key length
		panic(err)
	}
	mac.Write(msg)
	hex.Encode(out[:], mac.Sum(nil))
	return out
}

func (s *signer) verify(msg []byte, sig [signSize]byte) bool {
	if !s.enabled {
		return true
	}
	want := s.sign(msg)
	return subtle.ConstantTimeCompare(want[:], sig[:]) == 1
}
