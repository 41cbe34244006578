package iproto

import "crypto/sha1"

// Scramble computes the chap-sha1 challenge response:
//
//	step1 = sha1(password)
//	step2 = sha1(step1)
//	step3 = sha1(salt[:20] ++ step2)
//	scramble = xor(step1, step3)
//
// The salt comes from the greeting and must be at least ScrambleSize
// bytes (ParseGreeting guarantees this).
func Scramble(salt []byte, password string) []byte {
	step1 := sha1.Sum([]byte(password))
	step2 := sha1.Sum(step1[:])

	h := sha1.New()
	h.Write(salt[:ScrambleSize])
	h.Write(step2[:])
	step3 := h.Sum(nil)

	scramble := make([]byte, ScrambleSize)
	for i := range scramble {
		scramble[i] = step1[i] ^ step3[i]
	}
	return scramble
}

// NewAuthRequest builds the authentication request for the two-message
// handshake. Sync and SchemaVersion are left for the transport to fill.
func NewAuthRequest(user, password string, salt []byte) *Request {
	req := NewRequest(TypeAuth)
	req.Body.AddString(KeyUserName, user)
	req.Body.AddValues(KeyTuple, []any{AuthMechChapSha1, string(Scramble(salt, password))})
	return req
}
