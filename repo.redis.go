package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var _ LibraryStorage = (*redisLibraryStorage)(nil)

// Codes returned by the lua scripts when the operation is rejected.
const (
	luaDuplicate   = -1
	luaNotFound    = -2
	luaNoAvailable = -3
)

// addUniqueScript inserts a json record under the next sequence value unless
// the unique value is already indexed. The optional json patch is merged into
// the very first record.
// KEYS: index hash, sequence counter, records hash.
// ARGV: unique value, json record, [json patch].
var addUniqueScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 1 then
	return -1
end
local id = redis.call('INCR', KEYS[2])
local record = cjson.decode(ARGV[2])
record['id'] = id
if ARGV[3] and id == 1 then
	for k, v in pairs(cjson.decode(ARGV[3])) do
		record[k] = v
	end
end
redis.call('HSET', KEYS[3], id, cjson.encode(record))
redis.call('HSET', KEYS[1], ARGV[1], id)
return id
`)

// borrowScript takes one copy of a book and appends the loan.
// KEYS: books hash, loans sequence, loans hash, user loans list.
// ARGV: book id, json loan.
var borrowScript = redis.NewScript(`
local raw = redis.call('HGET', KEYS[1], ARGV[1])
if not raw then
	return -2
end
local book = cjson.decode(raw)
if book['available_copies'] <= 0 then
	return -3
end
book['available_copies'] = book['available_copies'] - 1
redis.call('HSET', KEYS[1], ARGV[1], cjson.encode(book))
local id = redis.call('INCR', KEYS[2])
local loan = cjson.decode(ARGV[2])
loan['id'] = id
redis.call('HSET', KEYS[3], id, cjson.encode(loan))
redis.call('RPUSH', KEYS[4], id)
return id
`)

type redisLibraryStorage struct {
	logger *zap.Logger
	client *redis.Client
	prefix string
}

// NewRedisLibraryStorage provides an instance of redis-based library storage.
// All keys are namespaced with the given prefix.
func NewRedisLibraryStorage(logger *zap.Logger, client *redis.Client, prefix string) LibraryStorage {
	if prefix == "" {
		prefix = "lending"
	}
	return &redisLibraryStorage{
		logger: logger,
		client: client,
		prefix: prefix,
	}
}

// GetRedisClient provides a ready to use redis client.
func GetRedisClient(config *Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", config.Redis.Host, config.Redis.Port),
		DialTimeout:  config.Redis.DialTimeout,
		ReadTimeout:  config.Redis.ReadTimeout,
		WriteTimeout: config.Redis.WriteTimeout,
		PoolSize:     config.Redis.PoolSize,
		PoolTimeout:  config.Redis.PoolTimeout,
		Password:     config.Redis.Password,
		Username:     config.Redis.Username,
		DB:           config.Redis.DatabaseIndex,
	})

	// test connection.
	if pong, err := client.Ping(context.Background()).Result(); pong != "PONG" || err != nil {
		return client, fmt.Errorf("test connection failed: %v", err)
	}
	return client, nil
}

func (rs *redisLibraryStorage) key(parts ...string) string {
	k := rs.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

// Close is a no-op. The client is shared with the journal queue and closed by the app.
func (rs *redisLibraryStorage) Close() error {
	return nil
}

func (rs *redisLibraryStorage) addUnique(ctx context.Context, entity, uniqueIndex, uniqueValue string, record interface{}, firstPatch ...interface{}) (int64, error) {
	data, err := codec.Marshal(record)
	if err != nil {
		return 0, err
	}
	args := []interface{}{uniqueValue, data}
	for _, p := range firstPatch {
		patch, err := codec.Marshal(p)
		if err != nil {
			return 0, err
		}
		args = append(args, patch)
	}
	keys := []string{rs.key(entity, "by_"+uniqueIndex), rs.key("seq", entity), rs.key(entity)}
	return addUniqueScript.Run(ctx, rs.client, keys, args...).Int64()
}

// AddUser inserts a new user record under the next user id. The first
// user record is stored with the admin role.
func (rs *redisLibraryStorage) AddUser(ctx context.Context, user User) (User, error) {
	user.Role = RoleUser
	id, err := rs.addUnique(ctx, "users", "username", user.Username, user, map[string]Role{"role": RoleForUserID(FirstUserID)})
	if err != nil {
		return User{}, fmt.Errorf("redis: add user: %w", err)
	}
	if id == luaDuplicate {
		return User{}, ErrUsernameTaken
	}
	user.ID = id
	user.Role = RoleForUserID(id)
	return user, nil
}

// GetUser retrieves a user record based on its ID.
func (rs *redisLibraryStorage) GetUser(ctx context.Context, id int64) (User, error) {
	var user User
	data, err := rs.client.HGet(ctx, rs.key("users"), strconv.FormatInt(id, 10)).Result()
	if errors.Is(err, redis.Nil) {
		return user, ErrUserNotFound
	}
	if err != nil {
		return user, fmt.Errorf("redis: get user: %w", err)
	}
	err = codec.UnmarshalFromString(data, &user)
	return user, err
}

// GetUserByUsername resolves the username index then fetches the user record.
func (rs *redisLibraryStorage) GetUserByUsername(ctx context.Context, username string) (User, error) {
	id, err := rs.client.HGet(ctx, rs.key("users", "by_username"), username).Int64()
	if errors.Is(err, redis.Nil) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("redis: get user by username: %w", err)
	}
	return rs.GetUser(ctx, id)
}

func (rs *redisLibraryStorage) AddToken(ctx context.Context, token string, userID int64) error {
	return rs.client.HSet(ctx, rs.key("tokens"), token, userID).Err()
}

func (rs *redisLibraryStorage) GetUserIDByToken(ctx context.Context, token string) (int64, error) {
	id, err := rs.client.HGet(ctx, rs.key("tokens"), token).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, ErrInvalidToken
	}
	if err != nil {
		return 0, fmt.Errorf("redis: get token: %w", err)
	}
	return id, nil
}

// AddBook inserts a new book record under the next book id.
func (rs *redisLibraryStorage) AddBook(ctx context.Context, book Book) (Book, error) {
	id, err := rs.addUnique(ctx, "books", "isbn", book.ISBN, book)
	if err != nil {
		return Book{}, fmt.Errorf("redis: add book: %w", err)
	}
	if id == luaDuplicate {
		return Book{}, ErrISBNTaken
	}
	book.ID = id
	return book, nil
}

// GetBook retrieves a book record based on its ID.
func (rs *redisLibraryStorage) GetBook(ctx context.Context, id int64) (Book, error) {
	var book Book
	data, err := rs.client.HGet(ctx, rs.key("books"), strconv.FormatInt(id, 10)).Result()
	if errors.Is(err, redis.Nil) {
		return book, ErrBookNotFound
	}
	if err != nil {
		return book, fmt.Errorf("redis: get book: %w", err)
	}
	err = codec.UnmarshalFromString(data, &book)
	return book, err
}

// GetAllBooks retrieves all books stored in the redis database ordered by id.
func (rs *redisLibraryStorage) GetAllBooks(ctx context.Context) ([]Book, error) {
	values, err := rs.client.HVals(ctx, rs.key("books")).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get all books: %w", err)
	}
	books := make([]Book, 0, len(values))
	for _, v := range values {
		var book Book
		if err = codec.UnmarshalFromString(v, &book); err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	sort.Slice(books, func(i, j int) bool { return books[i].ID < books[j].ID })
	return books, nil
}

// Borrow runs the borrow script which decrements the copies and records the loan.
func (rs *redisLibraryStorage) Borrow(ctx context.Context, loan Loan) (Loan, error) {
	data, err := codec.Marshal(loan)
	if err != nil {
		return Loan{}, err
	}
	keys := []string{
		rs.key("books"),
		rs.key("seq", "loans"),
		rs.key("loans"),
		rs.key("loans", "user", strconv.FormatInt(loan.UserID, 10)),
	}
	id, err := borrowScript.Run(ctx, rs.client, keys, loan.BookID, data).Int64()
	if err != nil {
		return Loan{}, fmt.Errorf("redis: borrow: %w", err)
	}
	switch id {
	case luaNotFound:
		return Loan{}, ErrBookNotFound
	case luaNoAvailable:
		return Loan{}, ErrNoAvailableCopies
	}
	loan.ID = id
	return loan, nil
}

// GetLoansByUser reads the user loans list and fetches each loan record.
func (rs *redisLibraryStorage) GetLoansByUser(ctx context.Context, userID int64) ([]Loan, error) {
	ids, err := rs.client.LRange(ctx, rs.key("loans", "user", strconv.FormatInt(userID, 10)), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get user loans ids: %w", err)
	}
	loans := make([]Loan, 0, len(ids))
	if len(ids) == 0 {
		return loans, nil
	}
	values, err := rs.client.HMGet(ctx, rs.key("loans"), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get user loans: %w", err)
	}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			rs.logger.Warn("redis: dangling loan id", zap.String("loan.id", ids[i]), zap.Int64("user.id", userID))
			continue
		}
		var loan Loan
		if err = codec.UnmarshalFromString(s, &loan); err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}
	return loans, nil
}
