package models

import "time"

// FeedItem is a hydrated timeline entry as returned to readers.
// Exactly one of Post, Like, Follow and Friend is set.
type FeedItem struct {
	Post   *Post   `json:"post,omitempty"`
	Like   *Like   `json:"like,omitempty"`
	Follow *Follow `json:"follow,omitempty"`
	Friend *Friend `json:"friend,omitempty"`

	Type       ItemType  `json:"type"`
	Timeuuid   string    `json:"timeuuid"`
	Date       time.Time `json:"date"`
	FromNow    string    `json:"fromNow"`
	IsPrivate  bool      `json:"isprivate"`
	IsPersonal bool      `json:"ispersonal"`

	FromFollower bool `json:"fromFollower"`
	IsLike       bool `json:"isLike"`
	IsPost       bool `json:"isPost"`
	IsFollow     bool `json:"isFollow"`
	IsFriend     bool `json:"isFriend"`
	IsUsersItem  bool `json:"isUsersItem"`

	User         *User `json:"user,omitempty"`
	UserFollower *User `json:"user_follower,omitempty"`
	UserFriend   *User `json:"user_friend,omitempty"`
}

// Actor returns the id of the user who performed the activity.
func (f *FeedItem) Actor() string {
	switch {
	case f.Post != nil:
		return f.Post.User
	case f.Like != nil:
		return f.Like.User
	case f.Follow != nil:
		return f.Follow.UserFollower
	case f.Friend != nil:
		return f.Friend.User
	}
	return ""
}

// UserRefs returns the ids behind the User, UserFollower and UserFriend
// profile fields, empty where the record has no such reference.
func (f *FeedItem) UserRefs() (user, follower, friend string) {
	switch {
	case f.Post != nil:
		user = f.Post.User
	case f.Like != nil:
		user = f.Like.User
	case f.Follow != nil:
		user, follower = f.Follow.User, f.Follow.UserFollower
	case f.Friend != nil:
		user, friend = f.Friend.User, f.Friend.UserFriend
	}
	return user, follower, friend
}
