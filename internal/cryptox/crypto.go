// Package cryptox derives the login verifier a client sends instead of its
// password. The server only ever stores the salt and the verifier.
package cryptox

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/elecmate/certsync/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	keyLen       = 32

	// SaltLen is the size of a freshly generated registration salt.
	SaltLen = 16
)

// DeriveMasterKey runs argon2id over the password and salt.
func DeriveMasterKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, keyLen)
}

// MakeVerifier hashes the master key so the key itself never leaves the device.
func MakeVerifier(masterKey []byte) []byte {
	hash := sha256.Sum256(masterKey)
	return hash[:]
}

// VerifierHex is the wire form used by register and login.
func VerifierHex(password []byte, salt []byte) string {
	key := DeriveMasterKey(password, salt)
	defer common.WipeByteArray(key)
	return hex.EncodeToString(MakeVerifier(key))
}
