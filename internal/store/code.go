// internal/store/code.go
//
// Room code generation. Codes are short, uppercase, and drawn from an
// alphabet with the easily-confused characters (0/O, 1/I/L) removed so
// they survive being read out loud.

package store

import "crypto/rand"

// CodeLength is the number of characters in a generated room code.
const CodeLength = 6

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// RandomCode returns a fresh room code. Uniqueness is not guaranteed
// here; callers Add to the registry and retry on ErrCodeTaken.
func RandomCode() string {
	var b [CodeLength]byte
	_, _ = rand.Read(b[:])
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b[:])
}
