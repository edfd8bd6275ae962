package main

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/boltdb/bolt"
	"go.uber.org/zap"
)

var _ LibraryStorage = (*boltLibraryStorage)(nil)

// Buckets used by the bolt-based library storage.
var (
	usersBucket          = []byte("users")
	usersByUsernameIndex = []byte("users.by_username")
	tokensBucket         = []byte("tokens")
	booksBucket          = []byte("books")
	booksByISBNIndex     = []byte("books.by_isbn")
	loansBucket          = []byte("loans")
)

type boltLibraryStorage struct {
	logger *zap.Logger
	client *bolt.DB
}

// GetBoltDBClient opens the database file and makes sure the given buckets exist.
func GetBoltDBClient(config *Config, buckets ...[]byte) (*bolt.DB, error) {
	db, err := bolt.Open(config.BoltDB.FilePath, 0o600, &bolt.Options{Timeout: config.BoltDB.Timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open the database, %v", err)
	}
	if err = EnsureBoltBuckets(db, buckets...); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// EnsureBoltBuckets creates the missing buckets.
func EnsureBoltBuckets(db *bolt.DB, buckets ...[]byte) error {
	return db.Update(func(tx *bolt.Tx) error {
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %v", name, err)
			}
		}
		return nil
	})
}

// NewBoltLibraryStorage provides an instance of bolt-based library storage.
func NewBoltLibraryStorage(logger *zap.Logger, client *bolt.DB) (LibraryStorage, error) {
	err := EnsureBoltBuckets(client, usersBucket, usersByUsernameIndex, tokensBucket, booksBucket, booksByISBNIndex, loansBucket)
	if err != nil {
		return nil, err
	}
	return &boltLibraryStorage{
		logger: logger,
		client: client,
	}, nil
}

// itob returns an 8-byte big endian representation of v so that
// the cursor iterates records in id order.
func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func btoi(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

// Close is a no-op. The database handle is shared with the journal and closed by the app.
func (bs *boltLibraryStorage) Close() error {
	return nil
}

// AddUser inserts a new user record under the next bucket sequence.
func (bs *boltLibraryStorage) AddUser(_ context.Context, user User) (User, error) {
	err := bs.client.Update(func(tx *bolt.Tx) error {
		index := tx.Bucket(usersByUsernameIndex)
		if index.Get([]byte(user.Username)) != nil {
			return ErrUsernameTaken
		}
		users := tx.Bucket(usersBucket)
		seq, err := users.NextSequence()
		if err != nil {
			return err
		}
		user.ID = int64(seq)
		user.Role = RoleForUserID(user.ID)
		data, err := codec.Marshal(user)
		if err != nil {
			return err
		}
		if err = users.Put(itob(user.ID), data); err != nil {
			return err
		}
		return index.Put([]byte(user.Username), itob(user.ID))
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func getUser(tx *bolt.Tx, id int64) (User, error) {
	var user User
	data := tx.Bucket(usersBucket).Get(itob(id))
	if data == nil {
		return user, ErrUserNotFound
	}
	err := codec.Unmarshal(data, &user)
	return user, err
}

// GetUser retrieves a user record based on its ID.
func (bs *boltLibraryStorage) GetUser(_ context.Context, id int64) (User, error) {
	var user User
	err := bs.client.View(func(tx *bolt.Tx) error {
		var err error
		user, err = getUser(tx, id)
		return err
	})
	return user, err
}

// GetUserByUsername resolves the username index then reads the user record.
func (bs *boltLibraryStorage) GetUserByUsername(_ context.Context, username string) (User, error) {
	var user User
	err := bs.client.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(usersByUsernameIndex).Get([]byte(username))
		if id == nil {
			return ErrUserNotFound
		}
		var err error
		user, err = getUser(tx, btoi(id))
		return err
	})
	return user, err
}

func (bs *boltLibraryStorage) AddToken(_ context.Context, token string, userID int64) error {
	return bs.client.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(tokensBucket).Put([]byte(token), itob(userID))
	})
}

func (bs *boltLibraryStorage) GetUserIDByToken(_ context.Context, token string) (int64, error) {
	var id int64
	err := bs.client.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(tokensBucket).Get([]byte(token))
		if v == nil {
			return ErrInvalidToken
		}
		id = btoi(v)
		return nil
	})
	return id, err
}

// AddBook inserts a new book record under the next bucket sequence.
func (bs *boltLibraryStorage) AddBook(_ context.Context, book Book) (Book, error) {
	err := bs.client.Update(func(tx *bolt.Tx) error {
		index := tx.Bucket(booksByISBNIndex)
		if index.Get([]byte(book.ISBN)) != nil {
			return ErrISBNTaken
		}
		books := tx.Bucket(booksBucket)
		seq, err := books.NextSequence()
		if err != nil {
			return err
		}
		book.ID = int64(seq)
		data, err := codec.Marshal(book)
		if err != nil {
			return err
		}
		if err = books.Put(itob(book.ID), data); err != nil {
			return err
		}
		return index.Put([]byte(book.ISBN), itob(book.ID))
	})
	if err != nil {
		return Book{}, err
	}
	return book, nil
}

// GetBook retrieves a book record based on its ID.
func (bs *boltLibraryStorage) GetBook(_ context.Context, id int64) (Book, error) {
	var book Book
	err := bs.client.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(booksBucket).Get(itob(id))
		if data == nil {
			return ErrBookNotFound
		}
		return codec.Unmarshal(data, &book)
	})
	return book, err
}

// GetAllBooks retrieves all books stored in the bolt database ordered by id.
func (bs *boltLibraryStorage) GetAllBooks(_ context.Context) ([]Book, error) {
	books := []Book{}
	err := bs.client.View(func(tx *bolt.Tx) error {
		return tx.Bucket(booksBucket).ForEach(func(_, v []byte) error {
			var book Book
			if err := codec.Unmarshal(v, &book); err != nil {
				return err
			}
			books = append(books, book)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return books, nil
}

// Borrow decrements the book copies and records the loan in a single transaction.
func (bs *boltLibraryStorage) Borrow(_ context.Context, loan Loan) (Loan, error) {
	err := bs.client.Update(func(tx *bolt.Tx) error {
		books := tx.Bucket(booksBucket)
		data := books.Get(itob(loan.BookID))
		if data == nil {
			return ErrBookNotFound
		}
		var book Book
		if err := codec.Unmarshal(data, &book); err != nil {
			return err
		}
		if book.AvailableCopies <= 0 {
			return ErrNoAvailableCopies
		}
		book.AvailableCopies--
		data, err := codec.Marshal(book)
		if err != nil {
			return err
		}
		if err = books.Put(itob(book.ID), data); err != nil {
			return err
		}

		loans := tx.Bucket(loansBucket)
		seq, err := loans.NextSequence()
		if err != nil {
			return err
		}
		loan.ID = int64(seq)
		if data, err = codec.Marshal(loan); err != nil {
			return err
		}
		return loans.Put(itob(loan.ID), data)
	})
	if err != nil {
		return Loan{}, err
	}
	return loan, nil
}

// GetLoansByUser scans the loans bucket and keeps the user loans.
func (bs *boltLibraryStorage) GetLoansByUser(_ context.Context, userID int64) ([]Loan, error) {
	loans := []Loan{}
	err := bs.client.View(func(tx *bolt.Tx) error {
		return tx.Bucket(loansBucket).ForEach(func(_, v []byte) error {
			var loan Loan
			if err := codec.Unmarshal(v, &loan); err != nil {
				return err
			}
			if loan.UserID == userID {
				loans = append(loans, loan)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return loans, nil
}
