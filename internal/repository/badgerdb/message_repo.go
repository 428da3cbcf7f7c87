package badgerdb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/vedran77/duet/internal/domain"
)

type MessageRepo struct {
	db *badger.DB
}

func NewMessageRepo(db *badger.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// conversationPrefix is "msg:{len a}:{a}:{len b}:{b}:" with a <= b. The
// lengths keep the prefix of one pair from matching another pair whose ids
// contain ':'.
func conversationPrefix(a, b domain.UserID) []byte {
	if a > b {
		a, b = b, a
	}
	return []byte(fmt.Sprintf("msg:%d:%s:%d:%s:", len(a), a, len(b), b))
}

// messageKey is the conversation prefix followed by
// "{unix nanos, 19 digits}:{id}" so a prefix scan walks a conversation in
// creation order.
func messageKey(msg *domain.Message) []byte {
	prefix := conversationPrefix(msg.SenderID, msg.ReceiverID)
	return append(prefix, fmt.Sprintf("%019d:%s", msg.CreatedAt.UnixNano(), msg.ID)...)
}

func (r *MessageRepo) Append(ctx context.Context, msg *domain.Message) error {
	if msg.Payload == nil {
		return domain.ErrEmptyPayload
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	stored := *msg
	stored.CreatedAt = time.Now().UTC()
	stored.ID = domain.NewMessageID(stored.CreatedAt)

	data, err := json.Marshal(stored.ToRecord())
	if err != nil {
		return err
	}
	if err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(&stored), data)
	}); err != nil {
		return err
	}

	*msg = stored
	return nil
}

func (r *MessageRepo) ListConversation(ctx context.Context, a, b domain.UserID) ([]domain.Message, error) {
	messages := []domain.Message{}
	prefix := conversationPrefix(a, b)

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec domain.Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			msg, err := rec.ToMessage()
			if err != nil {
				return err
			}
			messages = append(messages, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}
