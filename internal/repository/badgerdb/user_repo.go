package badgerdb

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/vedran77/duet/internal/domain"
	"github.com/vedran77/duet/internal/repository"
)

type UserRepo struct {
	db *badger.DB
}

func NewUserRepo(db *badger.DB) *UserRepo {
	return &UserRepo{db: db}
}

// userRecord carries the password hash, which domain.User hides from JSON.
type userRecord struct {
	domain.User
	PasswordHash string `json:"passwordHash"`
}

func userKey(id domain.UserID) []byte    { return []byte("user:id:" + string(id)) }
func emailKey(email string) []byte       { return []byte("user:email:" + email) }
func usernameKey(username string) []byte { return []byte("user:username:" + username) }

func (r *UserRepo) Create(ctx context.Context, user *domain.User) error {
	if !user.ID.Valid() {
		return domain.ErrInvalidUserID
	}
	data, err := json.Marshal(userRecord{User: *user, PasswordHash: user.PasswordHash})
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		for _, key := range [][]byte{userKey(user.ID), emailKey(user.Email), usernameKey(user.Username)} {
			_, err := txn.Get(key)
			if err == nil {
				return repository.ErrDuplicateUser
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		if err := txn.Set(userKey(user.ID), data); err != nil {
			return err
		}
		if err := txn.Set(emailKey(user.Email), []byte(user.ID)); err != nil {
			return err
		}
		return txn.Set(usernameKey(user.Username), []byte(user.ID))
	})
}

func (r *UserRepo) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	var user *domain.User
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		user, err = getUser(txn, id)
		return err
	})
	return user, err
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user *domain.User
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(emailKey(email))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		user, err = getUser(txn, domain.UserID(id))
		return err
	})
	return user, err
}

func (r *UserRepo) SetRestricted(ctx context.Context, id domain.UserID, restricted bool) error {
	return r.db.Update(func(txn *badger.Txn) error {
		user, err := getUser(txn, id)
		if err != nil {
			return err
		}
		if user == nil {
			return repository.ErrUserNotFound
		}
		user.IsRestricted = restricted
		user.UpdatedAt = time.Now().UTC()
		data, err := json.Marshal(userRecord{User: *user, PasswordHash: user.PasswordHash})
		if err != nil {
			return err
		}
		return txn.Set(userKey(id), data)
	})
}

func getUser(txn *badger.Txn, id domain.UserID) (*domain.User, error) {
	item, err := txn.Get(userKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec userRecord
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return nil, err
	}
	user := rec.User
	user.PasswordHash = rec.PasswordHash
	return &user, nil
}
