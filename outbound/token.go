package outbound

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"

	"braces.dev/errtrace"
	"github.com/zeebo/blake3"

	"github.com/neighborhoods/docker-oversip/internal/errorutil"
)

// KeySize is the flow token key size in bytes.
const KeySize = 32

const macSize = 8

// ErrInvalidToken is returned when a flow token is malformed or carries a bad MAC.
const ErrInvalidToken errorutil.Error = "invalid flow token"

var tokenEncoding = base64.RawURLEncoding

// Codec encodes connection IDs into authenticated flow tokens.
// The token is the base64url form of a truncated keyed BLAKE3 MAC followed by
// the connection ID.
type Codec struct {
	key [KeySize]byte
}

// NewCodec creates a codec with the given key.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) != KeySize {
		return nil, errtrace.Wrap(errorutil.NewInvalidArgumentError("flow token key must be %d bytes, got %d", KeySize, len(key)))
	}
	c := new(Codec)
	copy(c.key[:], key)
	return c, nil
}

// GenerateKey returns a random flow token key.
// Tokens issued with it do not survive a restart.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, errtrace.Wrap(err)
	}
	return key, nil
}

func (c *Codec) mac(connID string) []byte {
	hasher, err := blake3.NewKeyed(c.key[:])
	if err != nil {
		panic("outbound: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write([]byte(connID))
	return hasher.Sum(nil)[:macSize]
}

// Encode returns the flow token of the connection ID.
func (c *Codec) Encode(connID string) string {
	buf := make([]byte, 0, macSize+len(connID))
	buf = append(buf, c.mac(connID)...)
	buf = append(buf, connID...)
	return tokenEncoding.EncodeToString(buf)
}

// Decode verifies the token and returns the connection ID it carries.
func (c *Codec) Decode(token string) (string, error) {
	buf, err := tokenEncoding.DecodeString(token)
	if err != nil {
		return "", errtrace.Wrap(errorutil.NewWrapperError(ErrInvalidToken, err))
	}
	if len(buf) <= macSize {
		return "", errtrace.Wrap(errorutil.NewWrapperError(ErrInvalidToken, "token too short"))
	}

	connID := string(buf[macSize:])
	if subtle.ConstantTimeCompare(buf[:macSize], c.mac(connID)) != 1 {
		return "", errtrace.Wrap(errorutil.NewWrapperError(ErrInvalidToken, "MAC mismatch"))
	}
	return connID, nil
}
