package domain

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var ErrEmptyPayload = errors.New("message must carry text or an attachment")

// Attachment describes a file stored in the Blob Store.
type Attachment struct {
	FileName  string `json:"fileName"`
	URL       string `json:"url"`
	MediaType string `json:"mediaType"`
}

// Payload is what a message carries: TextPayload, FilePayload or MixedPayload.
// A message without a payload cannot be built.
type Payload interface {
	payload()
}

type TextPayload struct {
	Body string
}

type FilePayload struct {
	Attachment Attachment
}

type MixedPayload struct {
	Body       string
	Attachment Attachment
}

func (TextPayload) payload()  {}
func (FilePayload) payload()  {}
func (MixedPayload) payload() {}

// NewPayload picks the variant for the given parts. An empty body counts as absent.
func NewPayload(body string, att *Attachment) (Payload, error) {
	switch {
	case body != "" && att != nil:
		return MixedPayload{Body: body, Attachment: *att}, nil
	case body != "":
		return TextPayload{Body: body}, nil
	case att != nil:
		return FilePayload{Attachment: *att}, nil
	default:
		return nil, ErrEmptyPayload
	}
}

// Message is the persisted, authoritative form of a sent message.
type Message struct {
	ID         string
	SenderID   UserID
	ReceiverID UserID
	Payload    Payload
	CreatedAt  time.Time
}

// Body returns the text part, or nil when the payload has none.
func (m *Message) Body() *string {
	switch p := m.Payload.(type) {
	case TextPayload:
		return &p.Body
	case MixedPayload:
		return &p.Body
	}
	return nil
}

// Attachment returns the file part, or nil when the payload has none.
func (m *Message) Attachment() *Attachment {
	switch p := m.Payload.(type) {
	case FilePayload:
		return &p.Attachment
	case MixedPayload:
		return &p.Attachment
	}
	return nil
}

// Record is the wire and storage shape of a message.
type Record struct {
	ID         string      `json:"id"`
	SenderID   UserID      `json:"senderId"`
	ReceiverID UserID      `json:"receiverId"`
	Body       *string     `json:"body"`
	Attachment *Attachment `json:"attachment"`
	CreatedAt  time.Time   `json:"createdAt"`
}

func (m Message) ToRecord() Record {
	return Record{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Body:       m.Body(),
		Attachment: m.Attachment(),
		CreatedAt:  m.CreatedAt,
	}
}

// ToMessage rebuilds a Message, rejecting records with neither body nor attachment.
func (r Record) ToMessage() (Message, error) {
	var body string
	if r.Body != nil {
		body = *r.Body
	}
	p, err := NewPayload(body, r.Attachment)
	if err != nil {
		return Message{}, err
	}
	return Message{
		ID:         r.ID,
		SenderID:   r.SenderID,
		ReceiverID: r.ReceiverID,
		Payload:    p,
		CreatedAt:  r.CreatedAt,
	}, nil
}

func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.ToRecord())
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	msg, err := r.ToMessage()
	if err != nil {
		return err
	}
	*m = msg
	return nil
}

var (
	entropyMu sync.Mutex
	entropy   io.Reader = ulid.Monotonic(rand.Reader, 0)
)

// NewMessageID returns a ULID for t. IDs minted in the same millisecond keep
// increasing, so sorting by id follows creation order.
func NewMessageID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
