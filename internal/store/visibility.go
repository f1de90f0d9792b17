package store

import (
	"context"

	"example.com/activityfeed/internal/models"
)

type friendChecker func(ctx context.Context, a, b string) (bool, error)

// canSeePost applies post visibility: personal posts are visible only to
// their author, private posts to the author and the author's friends.
func canSeePost(ctx context.Context, isFriend friendChecker, requester string, p models.Post) error {
	if requester == p.User {
		return nil
	}
	if p.IsPersonal {
		return models.ErrForbidden
	}
	if p.IsPrivate {
		ok, err := isFriend(ctx, requester, p.User)
		if err != nil {
			return err
		}
		if !ok {
			return models.ErrForbidden
		}
	}
	return nil
}

// canSeeFollow hides private follows from anyone but the two parties.
func canSeeFollow(requester string, f models.Follow) error {
	if f.IsPrivate && requester != f.User && requester != f.UserFollower {
		return models.ErrForbidden
	}
	return nil
}

// canSeeFriend allows the two parties and friends of either party.
func canSeeFriend(ctx context.Context, isFriend friendChecker, requester string, f models.Friend) error {
	if requester == f.User || requester == f.UserFriend {
		return nil
	}
	for _, party := range []string{f.User, f.UserFriend} {
		ok, err := isFriend(ctx, requester, party)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return models.ErrForbidden
}
