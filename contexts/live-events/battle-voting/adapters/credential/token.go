package credential

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	domainerrors "battlevoter/contexts/live-events/battle-voting/domain/errors"
	"battlevoter/contexts/live-events/battle-voting/ports"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

const signatureSize = ed25519.SignatureSize

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("credential: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("credential: CBOR decoder initialization failed: " + err.Error())
	}
}

// EventToken is the signed payload of a voting credential. It scopes the
// bearer to one live event until ExpiresAt (Unix seconds).
type EventToken struct {
	ID        string `cbor:"1,keyasint"`
	EventID   string `cbor:"2,keyasint"`
	IssuedAt  int64  `cbor:"3,keyasint"`
	ExpiresAt int64  `cbor:"4,keyasint"`
}

// Mint signs token and returns the bearer string: unpadded base64url of the
// CBOR payload followed by its Ed25519 signature. An empty ID is filled in.
func Mint(privateKey ed25519.PrivateKey, token EventToken) (string, error) {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	payload, err := encMode.Marshal(token)
	if err != nil {
		return "", fmt.Errorf("credential: encoding token payload: %w", err)
	}
	signed := make([]byte, 0, len(payload)+signatureSize)
	signed = append(signed, payload...)
	signed = append(signed, ed25519.Sign(privateKey, payload)...)
	return base64.RawURLEncoding.EncodeToString(signed), nil
}

// Verifier checks bearer credentials against the event-token signing key.
type Verifier struct {
	PublicKey ed25519.PublicKey
	Clock     ports.Clock
}

func (v Verifier) Verify(_ context.Context, bearer string) (ports.CredentialClaims, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(bearer))
	if err != nil {
		return ports.CredentialClaims{}, fmt.Errorf("%w: malformed encoding", domainerrors.ErrAuthenticationFailure)
	}
	if len(raw) <= signatureSize {
		return ports.CredentialClaims{}, fmt.Errorf("%w: token too short", domainerrors.ErrAuthenticationFailure)
	}
	if len(v.PublicKey) != ed25519.PublicKeySize {
		return ports.CredentialClaims{}, fmt.Errorf("%w: verifier has no signing key", domainerrors.ErrAuthenticationFailure)
	}

	split := len(raw) - signatureSize
	payload, signature := raw[:split], raw[split:]
	if !ed25519.Verify(v.PublicKey, payload, signature) {
		return ports.CredentialClaims{}, fmt.Errorf("%w: invalid signature", domainerrors.ErrAuthenticationFailure)
	}

	var token EventToken
	if err := decMode.Unmarshal(payload, &token); err != nil {
		return ports.CredentialClaims{}, fmt.Errorf("%w: undecodable payload", domainerrors.ErrAuthenticationFailure)
	}
	if strings.TrimSpace(token.EventID) == "" {
		return ports.CredentialClaims{}, fmt.Errorf("%w: token carries no event", domainerrors.ErrAuthenticationFailure)
	}
	if v.now().Unix() >= token.ExpiresAt {
		return ports.CredentialClaims{}, fmt.Errorf("%w: token expired", domainerrors.ErrAuthenticationFailure)
	}

	return ports.CredentialClaims{
		TokenID:   token.ID,
		EventID:   token.EventID,
		ExpiresAt: time.Unix(token.ExpiresAt, 0).UTC(),
	}, nil
}

func (v Verifier) now() time.Time {
	if v.Clock != nil {
		return v.Clock.Now()
	}
	return time.Now()
}

// ParsePublicKey decodes a standard base64 Ed25519 public key.
func ParsePublicKey(encoded string) (ed25519.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("credential: decode public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("credential: public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

var _ ports.CredentialVerifier = Verifier{}
