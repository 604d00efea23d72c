package message

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
)

type Token []byte

func (t Token) String() string {
	return hex.EncodeToString(t)
}

func (t Token) Equal(other Token) bool {
	return bytes.Equal(t, other)
}

// GetToken generates a random 8 byte token.
func GetToken() (Token, error) {
	b := make(Token, MaxTokenSize)
	_, err := rand.Read(b)
	// Note that err == nil only if we read len(b) bytes.
	if err != nil {
		return nil, err
	}
	return b, nil
}
