package iproto

import (
	"encoding/base64"
	"strings"
)

// Greeting is the parsed 128-byte banner the server sends right after
// the TCP connection is established.
type Greeting struct {
	// Version is the trimmed server version line, e.g.
	// "Tarantool 1.6.8 (Binary) ...".
	Version string

	// Salt is the decoded challenge used for password scrambling.
	// At least ScrambleSize bytes.
	Salt []byte
}

// ParseGreeting parses the server greeting. The input must be exactly
// GreetingSize bytes: a 64-byte version line followed by a 44-byte
// base64 salt line, both space-padded.
func ParseGreeting(b []byte) (Greeting, error) {
	if len(b) != GreetingSize {
		return Greeting{}, &ParseError{Message: "short greeting"}
	}

	version := strings.TrimRight(string(b[:GreetingSaltOff]), " \n")

	encoded := strings.TrimRight(string(b[GreetingSaltOff:GreetingSaltOff+GreetingSaltLen]), " \n")
	salt, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Greeting{}, &ParseError{Message: "malformed greeting salt", Err: err}
	}
	if len(salt) < ScrambleSize {
		return Greeting{}, &ParseError{Message: "greeting salt too short"}
	}

	return Greeting{Version: version, Salt: salt}, nil
}
