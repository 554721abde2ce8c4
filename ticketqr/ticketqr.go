// Package ticketqr signs, parses and renders the payload printed in ticket QR codes.
//
// Payload format: LTX1.<ticket_id>.<event_id>.<sig>, where sig is the first
// 16 bytes of HMAC-SHA256 over "LTX1.<ticket_id>.<event_id>", base64url
// encoded without padding.
package ticketqr

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
)

const (
	version   = "LTX1"
	sigLength = 16

	DefaultImageSize = 256
)

var (
	ErrInvalidFormat    = errors.New("invalid qr payload format")
	ErrInvalidSignature = errors.New("invalid qr payload signature")
)

type Payload struct {
	TicketID uuid.UUID
	EventID  uuid.UUID
}

type Signer struct {
	secret []byte
}

func NewSigner(secret string) Signer {
	if secret == "" {
		panic("qr signing secret is empty")
	}

	return Signer{secret: []byte(secret)}
}

func (s Signer) Encode(ticketID, eventID uuid.UUID) string {
	body := version + "." + ticketID.String() + "." + eventID.String()

	return body + "." + s.sign(body)
}

func (s Signer) Parse(raw string) (Payload, error) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 4 || parts[0] != version {
		return Payload{}, ErrInvalidFormat
	}

	ticketID, err := uuid.Parse(parts[1])
	if err != nil {
		return Payload{}, fmt.Errorf("%w: ticket id: %v", ErrInvalidFormat, err)
	}
	eventID, err := uuid.Parse(parts[2])
	if err != nil {
		return Payload{}, fmt.Errorf("%w: event id: %v", ErrInvalidFormat, err)
	}

	got, err := base64.RawURLEncoding.DecodeString(parts[3])
	if err != nil || len(got) != sigLength {
		return Payload{}, ErrInvalidFormat
	}

	body := strings.Join(parts[:3], ".")
	want, _ := base64.RawURLEncoding.DecodeString(s.sign(body))
	if !hmac.Equal(got, want) {
		return Payload{}, ErrInvalidSignature
	}

	return Payload{TicketID: ticketID, EventID: eventID}, nil
}

func (s Signer) sign(body string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(body))

	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)[:sigLength])
}

// PNG renders the payload as a QR code image.
func PNG(payload string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultImageSize
	}

	png, err := qrcode.Encode(payload, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("could not render qr code: %w", err)
	}

	return png, nil
}
