//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"chat-relay/errors"
	goerrors "errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IUserRepository interface {
	CreateUser(username, hashedPassword string) (User, error)
	GetUserByUsername(username string) (User, error)
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) *UserRepository {
	return &UserRepository{db: db}
}

// User is the stored account behind a principal.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// CreateUser persists a new account under "user:{username}".
// The password must already be hashed.
func (u *UserRepository) CreateUser(username, hashedPassword string) (User, error) {
	user := User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hashedPassword,
		CreatedAt:    time.Now().Round(0).UTC(),
	}

	err := u.db.Update(func(txn *badger.Txn) error {
		key := userKey(username)
		_, err := txn.Get(key)
		switch {
		case err == nil:
			return errors.ErrUserAlreadyExists
		case !goerrors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.Set(key, encodeUser(user))
	})
	if goerrors.Is(err, errors.ErrUserAlreadyExists) {
		return User{}, err
	}
	if err != nil {
		return User{}, fmt.Errorf("%w: create user: %w", errors.ErrStorage, err)
	}
	return user, nil
}

// GetUserByUsername returns errors.ErrInvalidCredentials when no account
// carries that name, so callers cannot tell unknown users from bad passwords.
func (u *UserRepository) GetUserByUsername(username string) (User, error) {
	var user User
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(username))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			decoded, err := decodeUser(val)
			user = decoded
			return err
		})
	})
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return User{}, errors.ErrInvalidCredentials
	}
	if err != nil {
		return User{}, fmt.Errorf("%w: get user: %w", errors.ErrStorage, err)
	}
	return user, nil
}

func userKey(username string) []byte {
	return []byte("user:" + username)
}
