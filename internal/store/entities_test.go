package store

import (
	"context"
	"testing"

	"example.com/activityfeed/internal/models"
	"github.com/stretchr/testify/assert"
)

// A Store without a session panics on any query, so these only pass when
// malformed ids are rejected before reaching Cassandra.
func TestStore_MalformedIDsAreNotFound(t *testing.T) {
	s := &Store{}
	ctx := context.Background()

	assert.ErrorIs(t, s.DeletePost(ctx, "u1", "foo"), models.ErrNotFound)

	_, err := s.GetPost(ctx, "u1", "foo")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = s.GetUser(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = s.GetFollow(ctx, "u1", "")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = s.GetFriend(ctx, "u1", "123")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = s.GetLike(ctx, "bogus")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
