package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewPayload_Variants(t *testing.T) {
	req := require.New(t)
	att := &Attachment{FileName: "a.png", URL: "/files/a.png", MediaType: "image/png"}

	p, err := NewPayload("hi", nil)
	req.NoError(err)
	req.Equal(TextPayload{Body: "hi"}, p)

	p, err = NewPayload("", att)
	req.NoError(err)
	req.Equal(FilePayload{Attachment: *att}, p)

	p, err = NewPayload("look", att)
	req.NoError(err)
	req.Equal(MixedPayload{Body: "look", Attachment: *att}, p)
}

func TestNewPayload_Empty(t *testing.T) {
	req := require.New(t)

	p, err := NewPayload("", nil)
	req.ErrorIs(err, ErrEmptyPayload)
	req.Nil(p)
}

func TestMessage_JSONShape(t *testing.T) {
	req := require.New(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	msg := Message{
		ID:         "01HZX",
		SenderID:   "alice",
		ReceiverID: "bob",
		Payload:    TextPayload{Body: "hi"},
		CreatedAt:  at,
	}

	data, err := json.Marshal(msg)
	req.NoError(err)
	req.JSONEq(`{
		"id": "01HZX",
		"senderId": "alice",
		"receiverId": "bob",
		"body": "hi",
		"attachment": null,
		"createdAt": "2026-03-01T10:00:00Z"
	}`, string(data))

	var decoded Message
	req.NoError(json.Unmarshal(data, &decoded))
	req.Equal(msg, decoded)
}

func TestMessage_UnmarshalRejectsEmptyRecord(t *testing.T) {
	req := require.New(t)

	var msg Message
	err := json.Unmarshal([]byte(`{"id":"x","senderId":"a","receiverId":"b","body":null,"attachment":null}`), &msg)
	req.ErrorIs(err, ErrEmptyPayload)
}

func TestNewMessageID_SortsByCreation(t *testing.T) {
	req := require.New(t)
	now := time.Now()

	// Same millisecond still yields increasing ids
	ids := make([]string, 0, 100)
	for range 100 {
		ids = append(ids, NewMessageID(now))
	}
	for i := 1; i < len(ids); i++ {
		req.Less(ids[i-1], ids[i])
	}

	later := NewMessageID(now.Add(time.Second))
	req.Less(ids[len(ids)-1], later)
}
