package credential

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

const (
	macVersion = "v1"
	macLen     = 22 // base64url characters, 132 bits
)

var (
	// ErrUnsigned marks a payload without a Signature line.
	ErrUnsigned = fmt.Errorf("%w: missing signature", ErrInvalidCredentialFormat)
	// ErrBadSignature marks a payload whose signature does not match its fields.
	ErrBadSignature = fmt.Errorf("%w: signature mismatch", ErrInvalidCredentialFormat)
)

// Signer computes and checks the keyed MAC over the identifying payload fields.
type Signer struct {
	key []byte
}

// NewSigner returns a signer using key. An empty key is rejected.
func NewSigner(key string) (*Signer, error) {
	if key == "" {
		return nil, errors.New("credential: signing key is empty")
	}
	return &Signer{key: []byte(key)}, nil
}

// Encode renders the payload for s with a trailing Signature line.
func (g *Signer) Encode(s Subject) (string, error) {
	text, err := Text(s)
	if err != nil {
		return "", err
	}
	return text + "\n" + KeySignature + ": " + g.mac(s.EventTitle, s.StudentID, s.RegistrationID()), nil
}

// Verify checks the signature carried by p in constant time.
func (g *Signer) Verify(p Payload) error {
	if p.Signature == "" {
		return ErrUnsigned
	}
	want := g.mac(p.EventTitle, p.StudentID, p.RegistrationID)
	if !hmac.Equal([]byte(want), []byte(p.Signature)) {
		return ErrBadSignature
	}
	return nil
}

func (g *Signer) mac(eventTitle, studentID, registrationID string) string {
	h := hmac.New(sha256.New, g.key)
	h.Write([]byte(macVersion + "\n" + eventTitle + "\n" + studentID + "\n" + registrationID))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))[:macLen]
}
