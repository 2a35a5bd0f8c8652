// Copyright 2026 The Shahin GRC Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package credential derives password hashes in the ASP.NET Core Identity V3
// binary layout so the platform's identity stack can verify the generated
// admin password without an adaptation layer.
package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// Identity V3 layout:
//   [version:1][prf:4][iterations:4][saltLen:4][salt:saltLen][subkey:32]
// all multi-byte integers big-endian, the whole sequence base64-encoded.
const (
	formatVersion = 0x01
	prfHMACSHA256 = 1

	// DefaultIterations matches the Identity V3 default; the verifier
	// re-derives from the embedded iteration count, so raising this only
	// affects newly minted hashes.
	DefaultIterations = 100_000

	saltLength   = 16
	subkeyLength = 32
	headerLength = 13
)

var (
	ErrEmptyPassword = errors.New("credential: password must not be empty")
	ErrInvalidHash   = errors.New("credential: malformed password hash")
)

// Artifact is the decoded form of a derived hash.
type Artifact struct {
	Version    byte
	KDF        uint32
	Iterations uint32
	Salt       []byte
	Subkey     []byte
}

// Hasher derives Identity V3 compatible password hashes.
type Hasher struct {
	iterations int
}

// NewHasher creates a hasher. Iteration counts below the V3 default are
// clamped up to it.
func NewHasher(iterations int) *Hasher {
	if iterations < DefaultIterations {
		iterations = DefaultIterations
	}
	return &Hasher{iterations: iterations}
}

// Derive produces a base64 Identity V3 hash for password. Each call uses a
// fresh random salt, so outputs differ for identical inputs. A failing
// crypto RNG is fatal and never falls back to a weaker source.
func (h *Hasher) Derive(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("credential: failed to generate salt: %w", err)
	}

	subkey := pbkdf2.Key([]byte(password), salt, h.iterations, subkeyLength, sha256.New)

	out := make([]byte, 0, headerLength+saltLength+subkeyLength)
	out = append(out, formatVersion)
	out = binary.BigEndian.AppendUint32(out, prfHMACSHA256)
	out = binary.BigEndian.AppendUint32(out, uint32(h.iterations))
	out = binary.BigEndian.AppendUint32(out, saltLength)
	out = append(out, salt...)
	out = append(out, subkey...)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decode parses a base64 Identity V3 hash into its parts.
func Decode(encoded string) (*Artifact, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
	if len(raw) < headerLength {
		return nil, ErrInvalidHash
	}
	if raw[0] != formatVersion {
		return nil, fmt.Errorf("%w: unsupported format version 0x%02x", ErrInvalidHash, raw[0])
	}

	kdf := binary.BigEndian.Uint32(raw[1:5])
	iterations := binary.BigEndian.Uint32(raw[5:9])
	saltLen := binary.BigEndian.Uint32(raw[9:13])

	if kdf != prfHMACSHA256 {
		return nil, fmt.Errorf("%w: unsupported kdf %d", ErrInvalidHash, kdf)
	}
	// Compare in uint64 so a crafted saltLen near 2^32 cannot wrap the
	// bounds check and panic on the slice below.
	if uint64(saltLen) > uint64(len(raw)-headerLength) {
		return nil, ErrInvalidHash
	}

	saltEnd := headerLength + int(saltLen)
	salt := raw[headerLength:saltEnd]
	subkey := raw[saltEnd:]
	if len(subkey) == 0 {
		return nil, ErrInvalidHash
	}

	return &Artifact{
		Version:    raw[0],
		KDF:        kdf,
		Iterations: iterations,
		Salt:       salt,
		Subkey:     subkey,
	}, nil
}

// Verify re-derives the subkey from the metadata embedded in encoded and
// compares in constant time. This mirrors what the external identity
// verifier does and exists so the round trip stays testable here.
func Verify(password, encoded string) (bool, error) {
	art, err := Decode(encoded)
	if err != nil {
		return false, err
	}

	computed := pbkdf2.Key([]byte(password), art.Salt, int(art.Iterations), len(art.Subkey), sha256.New)
	return subtle.ConstantTimeCompare(art.Subkey, computed) == 1, nil
}
