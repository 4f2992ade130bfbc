package api

import (
	"crypto/rand"
	"math/big"
	"regexp"
)

const (
	idLength = 24
	charset  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	sessionIDPrefix = "sess_"
	streamIDPrefix  = "strm_"
)

var sessionIDPattern = regexp.MustCompile(`^sess_[a-zA-Z0-9]{24}$`)

// NewSessionID generates a session ID: "sess_" followed by 24
// cryptographically random alphanumeric characters.
func NewSessionID() string {
	return sessionIDPrefix + randomAlphanumeric(idLength)
}

// NewStreamID generates the server-issued ID of a streamed reply: "strm_"
// followed by 24 random alphanumeric characters.
func NewStreamID() string {
	return streamIDPrefix + randomAlphanumeric(idLength)
}

// ValidateSessionID reports whether id has the session ID format.
func ValidateSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

func randomAlphanumeric(n int) string {
	max := big.NewInt(int64(len(charset)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand failed: " + err.Error())
		}
		b[i] = charset[idx.Int64()]
	}
	return string(b)
}
