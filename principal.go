// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package riskscore

import (
	"encoding/hex"
	"fmt"
)

// PrincipalIDLen is the byte length of a principal identifier.
const PrincipalIDLen = 20

// PrincipalID identifies a party interacting with the scorer: a subject, a
// reviewer, the administrator, or the decryption oracle. It is an opaque
// fixed-width identifier compared by value.
type PrincipalID [PrincipalIDLen]byte

// System is the reserved principal identifying the scoring system itself.
// A grant for System on a value is the "self grant" required before the
// value can be used as an operand in further confidential operations.
var System = PrincipalID{19: 0x01}

// ParsePrincipalID parses a hex-encoded principal id, with or without a
// leading "0x".
func ParsePrincipalID(s string) (PrincipalID, error) {
	var p PrincipalID
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return p, fmt.Errorf("parse principal id: %w", err)
	}
	if len(raw) != PrincipalIDLen {
		return p, fmt.Errorf("parse principal id: want %d bytes, got %d", PrincipalIDLen, len(raw))
	}
	copy(p[:], raw)
	return p, nil
}

func (p PrincipalID) String() string {
	return "0x" + hex.EncodeToString(p[:])
}

// IsZero reports whether the id is the all-zero value.
func (p PrincipalID) IsZero() bool {
	return p == PrincipalID{}
}

// MarshalText implements encoding.TextMarshaler.
func (p PrincipalID) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PrincipalID) UnmarshalText(text []byte) error {
	parsed, err := ParsePrincipalID(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
