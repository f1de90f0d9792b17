package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"example.com/activityfeed/internal/models"
	"github.com/google/uuid"
)

// MockStore simulates Cassandra operations for testing. It is safe for
// concurrent use.
type MockStore struct {
	mu sync.Mutex

	Users      map[string]models.User
	Posts      map[string]models.Post
	Likes      map[string]models.Like
	Follows    map[string]models.Follow
	Friends    map[string]models.Friend
	Followers  map[string][]string
	Timelines  map[models.TimelineKind]map[string][]models.TimelineEntry
	friendship map[string]map[string]bool

	ShouldFail bool             // flag to simulate failures on every operation
	FailOn     map[string]error // per-operation failures keyed by method name
	Calls      map[string]int   // per-operation call counter
}

// NewMock initializes a new mock store
func NewMock() *MockStore {
	return &MockStore{
		Users:     make(map[string]models.User),
		Posts:     make(map[string]models.Post),
		Likes:     make(map[string]models.Like),
		Follows:   make(map[string]models.Follow),
		Friends:   make(map[string]models.Friend),
		Followers: make(map[string][]string),
		Timelines: map[models.TimelineKind]map[string][]models.TimelineEntry{
			models.UserTimeline: {},
			models.FeedTimeline: {},
		},
		friendship: make(map[string]map[string]bool),
		FailOn:     make(map[string]error),
		Calls:      make(map[string]int),
	}
}

func (m *MockStore) Close() {}

// fail records the call and returns the injected error for op, if any.
// Callers must hold m.mu.
func (m *MockStore) fail(op string) error {
	m.Calls[op]++
	if err, ok := m.FailOn[op]; ok {
		return err
	}
	if m.ShouldFail {
		return &models.StorageError{Op: op, Err: errors.New("mock: " + op + " failed")}
	}
	return nil
}

// CallCount returns how many times op has been invoked.
func (m *MockStore) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[op]
}

// SetFailure injects err for op; a nil err clears it.
func (m *MockStore) SetFailure(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.FailOn, op)
		return
	}
	m.FailOn[op] = err
}

// --- Timelines ---

func (m *MockStore) InsertEntry(ctx context.Context, kind models.TimelineKind, e models.TimelineEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("InsertEntry"); err != nil {
		return err
	}
	if _, ok := m.Timelines[kind]; !ok {
		return fmt.Errorf("unknown timeline %q", kind)
	}
	if e.Date.IsZero() {
		e.Date = TimeOf(e.Time)
	}
	m.Timelines[kind][e.User] = append(m.Timelines[kind][e.User], e)
	return nil
}

func (m *MockStore) SelectPage(ctx context.Context, kind models.TimelineKind, owner, before string, limit int) ([]models.TimelineEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("SelectPage"); err != nil {
		return nil, err
	}
	if before != "" && !ValidTimeUUID(before) {
		return nil, models.ErrInvalidCursor
	}

	rows := append([]models.TimelineEntry(nil), m.Timelines[kind][owner]...)
	sort.Slice(rows, func(i, j int) bool {
		return CompareTimeUUID(rows[i].Time, rows[j].Time) > 0
	})

	var res []models.TimelineEntry
	for _, r := range rows {
		if before != "" && CompareTimeUUID(r.Time, before) >= 0 {
			continue
		}
		if len(res) == limit {
			break
		}
		res = append(res, r)
	}
	return res, nil
}

func (m *MockStore) SelectAllByItem(ctx context.Context, kind models.TimelineKind, item string) ([]models.TimelineEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("SelectAllByItem"); err != nil {
		return nil, err
	}
	var res []models.TimelineEntry
	for _, rows := range m.Timelines[kind] {
		for _, r := range rows {
			if r.Item == item {
				res = append(res, r)
			}
		}
	}
	return res, nil
}

func (m *MockStore) DeleteEntry(ctx context.Context, kind models.TimelineKind, owner, at string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("DeleteEntry"); err != nil {
		return err
	}
	rows := m.Timelines[kind][owner]
	for i, r := range rows {
		if r.Time == at {
			m.Timelines[kind][owner] = append(rows[:i:i], rows[i+1:]...)
			return nil
		}
	}
	return nil
}

// Entries returns a copy of every row of owner's timeline in insertion order.
func (m *MockStore) Entries(kind models.TimelineKind, owner string) []models.TimelineEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.TimelineEntry(nil), m.Timelines[kind][owner]...)
}

func (m *MockStore) SelectFollowers(ctx context.Context, owner string) ([]models.Follower, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("SelectFollowers"); err != nil {
		return nil, err
	}
	var res []models.Follower
	for _, f := range m.Followers[owner] {
		res = append(res, models.Follower{User: owner, Follower: f})
	}
	return res, nil
}

// --- Users ---

// CreateUser simulates creating a new user; existing usernames are returned as is.
func (m *MockStore) CreateUser(ctx context.Context, username string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateUser"); err != nil {
		return models.User{}, err
	}
	for _, u := range m.Users {
		if u.Username == username {
			return u, nil
		}
	}
	u := models.User{ID: NewTimeUUID(), Username: username}
	m.Users[u.ID] = u
	return u, nil
}

func (m *MockStore) GetUser(ctx context.Context, id string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetUser"); err != nil {
		return models.User{}, err
	}
	u, ok := m.Users[id]
	if !ok {
		return models.User{}, models.ErrNotFound
	}
	return u, nil
}

func (m *MockStore) GetUserByName(ctx context.Context, username string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetUserByName"); err != nil {
		return models.User{}, err
	}
	for _, u := range m.Users {
		if u.Username == username {
			return u, nil
		}
	}
	return models.User{}, models.ErrNotFound
}

func (m *MockStore) GetUsers(ctx context.Context, ids []string) (map[string]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetUsers"); err != nil {
		return nil, err
	}
	res := make(map[string]models.User, len(ids))
	for _, id := range ids {
		if u, ok := m.Users[id]; ok {
			res[id] = u
		}
	}
	return res, nil
}

// --- Follows ---

// CreateFollow simulates follower following user.
func (m *MockStore) CreateFollow(ctx context.Context, user, follower string, isPrivate bool) (models.Follow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateFollow"); err != nil {
		return models.Follow{}, err
	}
	f := models.Follow{ID: uuid.NewString(), User: user, UserFollower: follower, IsPrivate: isPrivate, Since: time.Now().UTC()}
	m.Follows[f.ID] = f
	// Key is the followed user so that SelectFollowers(user) returns the follower
	m.Followers[user] = append(m.Followers[user], follower)
	return f, nil
}

func (m *MockStore) GetFollow(ctx context.Context, requester, id string) (models.Follow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetFollow"); err != nil {
		return models.Follow{}, err
	}
	f, ok := m.Follows[id]
	if !ok {
		return models.Follow{}, models.ErrNotFound
	}
	if err := canSeeFollow(requester, f); err != nil {
		return models.Follow{}, err
	}
	return f, nil
}

// --- Friends ---

func (m *MockStore) CreateFriend(ctx context.Context, user, friend string) (models.Friend, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateFriend"); err != nil {
		return models.Friend{}, err
	}
	f := models.Friend{ID: uuid.NewString(), User: user, UserFriend: friend, Since: time.Now().UTC()}
	m.Friends[f.ID] = f
	m.link(user, friend)
	m.link(friend, user)
	return f, nil
}

func (m *MockStore) link(a, b string) {
	if m.friendship[a] == nil {
		m.friendship[a] = make(map[string]bool)
	}
	m.friendship[a][b] = true
}

// isFriendLocked is IsFriend for callers already holding m.mu.
func (m *MockStore) isFriendLocked(_ context.Context, a, b string) (bool, error) {
	return a != b && m.friendship[a][b], nil
}

func (m *MockStore) IsFriend(ctx context.Context, a, b string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("IsFriend"); err != nil {
		return false, err
	}
	return m.isFriendLocked(ctx, a, b)
}

func (m *MockStore) GetFriend(ctx context.Context, requester, id string) (models.Friend, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetFriend"); err != nil {
		return models.Friend{}, err
	}
	f, ok := m.Friends[id]
	if !ok {
		return models.Friend{}, models.ErrNotFound
	}
	if err := canSeeFriend(ctx, m.isFriendLocked, requester, f); err != nil {
		return models.Friend{}, err
	}
	return f, nil
}

// --- Posts ---

// CreatePost simulates adding a post
func (m *MockStore) CreatePost(ctx context.Context, user, content string, isPrivate, isPersonal bool) (models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreatePost"); err != nil {
		return models.Post{}, err
	}
	p := models.Post{
		ID:         uuid.NewString(),
		User:       user,
		Content:    content,
		IsPrivate:  isPrivate,
		IsPersonal: isPersonal,
		Posted:     time.Now().UTC(),
	}
	m.Posts[p.ID] = p
	return p, nil
}

func (m *MockStore) GetPost(ctx context.Context, requester, id string) (models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetPost"); err != nil {
		return models.Post{}, err
	}
	p, ok := m.Posts[id]
	if !ok {
		return models.Post{}, models.ErrNotFound
	}
	if err := canSeePost(ctx, m.isFriendLocked, requester, p); err != nil {
		return models.Post{}, err
	}
	return p, nil
}

func (m *MockStore) DeletePost(ctx context.Context, requester, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("DeletePost"); err != nil {
		return err
	}
	p, ok := m.Posts[id]
	if !ok {
		return models.ErrNotFound
	}
	if p.User != requester {
		return models.ErrForbidden
	}
	delete(m.Posts, id)
	return nil
}

// --- Likes ---

func (m *MockStore) CreateLike(ctx context.Context, user, item string) (models.Like, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateLike"); err != nil {
		return models.Like{}, err
	}
	l := models.Like{ID: uuid.NewString(), User: user, Item: item, Since: time.Now().UTC()}
	m.Likes[l.ID] = l
	return l, nil
}

func (m *MockStore) GetLike(ctx context.Context, id string) (models.Like, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetLike"); err != nil {
		return models.Like{}, err
	}
	l, ok := m.Likes[id]
	if !ok {
		return models.Like{}, models.ErrNotFound
	}
	return l, nil
}
