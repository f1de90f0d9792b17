package store

import (
	"context"
	"errors"
	"time"

	"example.com/activityfeed/internal/models"
	"github.com/gocql/gocql"
	"github.com/google/uuid"
)

func notFoundOr(op string, err error) error {
	if errors.Is(err, gocql.ErrNotFound) {
		return models.ErrNotFound
	}
	return storageErr(op, err)
}

// --- User operations ---

// GetUserByName returns the user registered under username or
// models.ErrNotFound.
func (s *Store) GetUserByName(ctx context.Context, username string) (models.User, error) {
	var id string
	err := s.Session.Query(
		`SELECT user_id FROM users_by_username WHERE username = ?`,
		username,
	).WithContext(ctx).Scan(&id)
	if err != nil {
		if !errors.Is(err, gocql.ErrNotFound) {
			logg.Error("store", "Failed to query user by username", err)
		}
		return models.User{}, notFoundOr("select user by name", err)
	}
	return models.User{ID: id, Username: username}, nil
}

// checkID rejects ids that cannot be a stored key. Nothing can exist under
// them, so they read as not found rather than as a storage failure.
func checkID(id string) error {
	if _, err := gocql.ParseUUID(id); err != nil {
		return models.ErrNotFound
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	if err := checkID(id); err != nil {
		return models.User{}, err
	}
	u := models.User{ID: id}
	err := s.Session.Query(
		`SELECT username FROM users WHERE user_id = ?`,
		id,
	).WithContext(ctx).Scan(&u.Username)
	if err != nil {
		return models.User{}, notFoundOr("select user", err)
	}
	return u, nil
}

// GetUsers loads many profiles with a single IN query. Unknown or malformed
// ids are absent from the result.
func (s *Store) GetUsers(ctx context.Context, ids []string) (map[string]models.User, error) {
	res := make(map[string]models.User, len(ids))
	keys := make([]gocql.UUID, 0, len(ids))
	for _, id := range ids {
		if u, err := gocql.ParseUUID(id); err == nil {
			keys = append(keys, u)
		}
	}
	if len(keys) == 0 {
		return res, nil
	}

	iter := s.Session.Query(
		`SELECT user_id, username FROM users WHERE user_id IN ?`,
		keys,
	).WithContext(ctx).Iter()

	var id, username string
	for iter.Scan(&id, &username) {
		res[id] = models.User{ID: id, Username: username}
	}
	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to batch load users", err)
		return nil, storageErr("select users", err)
	}
	return res, nil
}

// CreateUser creates a new user if the username does not exist.
// Returns the existing user if username already exists.
func (s *Store) CreateUser(ctx context.Context, username string) (models.User, error) {
	existing, err := s.GetUserByName(ctx, username)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return models.User{}, err
	}

	id := gocql.TimeUUID().String()

	// Insert into users_by_username table using CAS
	result := make(map[string]interface{})
	applied, err := s.Session.Query(`
		INSERT INTO users_by_username (username, user_id)
		VALUES (?, ?) IF NOT EXISTS`,
		username, id,
	).WithContext(ctx).MapScanCAS(result)
	if err != nil {
		logg.Error("store", "Failed to create username entry", err)
		return models.User{}, storageErr("insert username", err)
	}

	if !applied {
		// Another process already created this user
		return s.GetUserByName(ctx, username)
	}

	err = s.Session.Query(`
		INSERT INTO users (user_id, username)
		VALUES (?, ?)`,
		id, username,
	).WithContext(ctx).Exec()
	if err != nil {
		logg.Error("store", "Failed to create user in main table", err)
		return models.User{}, storageErr("insert user", err)
	}

	logg.Info("store", "User created successfully (username anonymized)")
	return models.User{ID: id, Username: username}, nil
}

// --- Follow operations ---

// CreateFollow records follower following user.
func (s *Store) CreateFollow(ctx context.Context, user, follower string, isPrivate bool) (models.Follow, error) {
	f := models.Follow{
		ID:           uuid.NewString(),
		User:         user,
		UserFollower: follower,
		IsPrivate:    isPrivate,
		Since:        time.Now().UTC(),
	}

	batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`INSERT INTO follows (follow_id, user_id, follower_id, is_private, since) VALUES (?, ?, ?, ?, ?)`,
		f.ID, f.User, f.UserFollower, f.IsPrivate, f.Since)
	batch.Query(`INSERT INTO followers (user_id, follower_id, follow_id, is_private, since) VALUES (?, ?, ?, ?, ?)`,
		f.User, f.UserFollower, f.ID, f.IsPrivate, f.Since)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to create follow relationship", err)
		return models.Follow{}, storageErr("insert follow", err)
	}

	logg.Info("store", "Follow relationship created (user IDs anonymized)")
	return f, nil
}

func (s *Store) GetFollow(ctx context.Context, requester, id string) (models.Follow, error) {
	if err := checkID(id); err != nil {
		return models.Follow{}, err
	}
	f := models.Follow{ID: id}
	err := s.Session.Query(
		`SELECT user_id, follower_id, is_private, since FROM follows WHERE follow_id = ?`,
		id,
	).WithContext(ctx).Scan(&f.User, &f.UserFollower, &f.IsPrivate, &f.Since)
	if err != nil {
		return models.Follow{}, notFoundOr("select follow", err)
	}
	if err := canSeeFollow(requester, f); err != nil {
		return models.Follow{}, err
	}
	return f, nil
}

// --- Friend operations ---

// CreateFriend records the friendship in both directions; the returned
// record is the one owned by user.
func (s *Store) CreateFriend(ctx context.Context, user, friend string) (models.Friend, error) {
	now := time.Now().UTC()
	f := models.Friend{ID: uuid.NewString(), User: user, UserFriend: friend, Since: now}
	reverseID := uuid.NewString()

	batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`INSERT INTO friends (friend_id, user_id, friend_user_id, since) VALUES (?, ?, ?, ?)`,
		f.ID, user, friend, now)
	batch.Query(`INSERT INTO friends (friend_id, user_id, friend_user_id, since) VALUES (?, ?, ?, ?)`,
		reverseID, friend, user, now)
	batch.Query(`INSERT INTO friends_by_user (user_id, friend_user_id, friend_id, since) VALUES (?, ?, ?, ?)`,
		user, friend, f.ID, now)
	batch.Query(`INSERT INTO friends_by_user (user_id, friend_user_id, friend_id, since) VALUES (?, ?, ?, ?)`,
		friend, user, reverseID, now)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to create friendship", err)
		return models.Friend{}, storageErr("insert friend", err)
	}
	return f, nil
}

func (s *Store) IsFriend(ctx context.Context, a, b string) (bool, error) {
	if a == b {
		return false, nil
	}
	var id string
	err := s.Session.Query(
		`SELECT friend_id FROM friends_by_user WHERE user_id = ? AND friend_user_id = ?`,
		a, b,
	).WithContext(ctx).Scan(&id)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return false, nil
		}
		logg.Error("store", "Failed to check friendship", err)
		return false, storageErr("select friendship", err)
	}
	return true, nil
}

func (s *Store) GetFriend(ctx context.Context, requester, id string) (models.Friend, error) {
	if err := checkID(id); err != nil {
		return models.Friend{}, err
	}
	f := models.Friend{ID: id}
	err := s.Session.Query(
		`SELECT user_id, friend_user_id, since FROM friends WHERE friend_id = ?`,
		id,
	).WithContext(ctx).Scan(&f.User, &f.UserFriend, &f.Since)
	if err != nil {
		return models.Friend{}, notFoundOr("select friend", err)
	}
	if err := canSeeFriend(ctx, s.IsFriend, requester, f); err != nil {
		return models.Friend{}, err
	}
	return f, nil
}

// --- Post operations ---

func (s *Store) CreatePost(ctx context.Context, user, content string, isPrivate, isPersonal bool) (models.Post, error) {
	p := models.Post{
		ID:         uuid.NewString(),
		User:       user,
		Content:    content,
		IsPrivate:  isPrivate,
		IsPersonal: isPersonal,
		Posted:     time.Now().UTC(),
	}
	if err := s.Session.Query(`
		INSERT INTO posts (post_id, user_id, content, is_private, is_personal, posted)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.User, p.Content, p.IsPrivate, p.IsPersonal, p.Posted,
	).WithContext(ctx).Exec(); err != nil {
		logg.Error("store", "Failed to add post", err)
		return models.Post{}, storageErr("insert post", err)
	}

	logg.Info("store", "Post added to posts table (post content anonymized)")
	return p, nil
}

func (s *Store) GetPost(ctx context.Context, requester, id string) (models.Post, error) {
	if err := checkID(id); err != nil {
		return models.Post{}, err
	}
	p := models.Post{ID: id}
	err := s.Session.Query(
		`SELECT user_id, content, is_private, is_personal, posted FROM posts WHERE post_id = ?`,
		id,
	).WithContext(ctx).Scan(&p.User, &p.Content, &p.IsPrivate, &p.IsPersonal, &p.Posted)
	if err != nil {
		return models.Post{}, notFoundOr("select post", err)
	}
	if err := canSeePost(ctx, s.IsFriend, requester, p); err != nil {
		return models.Post{}, err
	}
	return p, nil
}

// DeletePost removes a post; only its author may do so.
func (s *Store) DeletePost(ctx context.Context, requester, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	var author string
	err := s.Session.Query(`SELECT user_id FROM posts WHERE post_id = ?`, id).WithContext(ctx).Scan(&author)
	if err != nil {
		return notFoundOr("select post", err)
	}
	if author != requester {
		return models.ErrForbidden
	}
	if err := s.Session.Query(`DELETE FROM posts WHERE post_id = ?`, id).WithContext(ctx).Exec(); err != nil {
		logg.Error("store", "Failed to delete post", err)
		return storageErr("delete post", err)
	}
	return nil
}

// --- Like operations ---

func (s *Store) CreateLike(ctx context.Context, user, item string) (models.Like, error) {
	l := models.Like{ID: uuid.NewString(), User: user, Item: item, Since: time.Now().UTC()}
	if err := s.Session.Query(
		`INSERT INTO likes (like_id, user_id, item, since) VALUES (?, ?, ?, ?)`,
		l.ID, l.User, l.Item, l.Since,
	).WithContext(ctx).Exec(); err != nil {
		logg.Error("store", "Failed to add like", err)
		return models.Like{}, storageErr("insert like", err)
	}
	return l, nil
}

func (s *Store) GetLike(ctx context.Context, id string) (models.Like, error) {
	if err := checkID(id); err != nil {
		return models.Like{}, err
	}
	l := models.Like{ID: id}
	err := s.Session.Query(
		`SELECT user_id, item, since FROM likes WHERE like_id = ?`,
		id,
	).WithContext(ctx).Scan(&l.User, &l.Item, &l.Since)
	if err != nil {
		return models.Like{}, notFoundOr("select like", err)
	}
	return l, nil
}
