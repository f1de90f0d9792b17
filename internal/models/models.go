package models

import "time"

// ItemType is the kind of domain object a timeline entry points at.
type ItemType string

const (
	TypePost   ItemType = "post"
	TypeLike   ItemType = "like"
	TypeFollow ItemType = "follow"
	TypeFriend ItemType = "friend"
)

// ParseItemType returns the ItemType for s and whether it is a known type.
func ParseItemType(s string) (ItemType, bool) {
	switch t := ItemType(s); t {
	case TypePost, TypeLike, TypeFollow, TypeFriend:
		return t, true
	}
	return "", false
}

// TimelineKind names one of the two per-user timelines.
type TimelineKind string

const (
	// UserTimeline holds everything the owner did.
	UserTimeline TimelineKind = "user_timeline"
	// FeedTimeline holds the owner's activity plus everything fanned out to them.
	FeedTimeline TimelineKind = "feed_timeline"
)

// TimelineKinds lists every timeline an activity can be written to.
var TimelineKinds = []TimelineKind{FeedTimeline, UserTimeline}

// TimelineEntry is one row of a timeline: a lightweight reference to an item.
// Time is a version 1 time UUID and doubles as the pagination cursor.
type TimelineEntry struct {
	User       string    `json:"user"`
	Item       string    `json:"item"`
	Type       ItemType  `json:"type"`
	Time       string    `json:"time"`
	Date       time.Time `json:"date"`
	IsPrivate  bool      `json:"isprivate"`
	IsPersonal bool      `json:"ispersonal"`
}

// FanoutJob is the payload handed to a dispatcher. It is safe to replay.
type FanoutJob struct {
	User       string   `json:"user"`
	Item       string   `json:"item"`
	Type       ItemType `json:"type"`
	IsPrivate  bool     `json:"isprivate"`
	IsPersonal bool     `json:"ispersonal"`
}

// Follower is a row of the followers table: Follower follows User.
type Follower struct {
	User     string `json:"user"`
	Follower string `json:"user_follower"`
}

type User struct {
	ID       string `json:"user"`
	Username string `json:"username"`
}

type Post struct {
	ID         string    `json:"post"`
	User       string    `json:"user"`
	Content    string    `json:"content"`
	IsPrivate  bool      `json:"isprivate"`
	IsPersonal bool      `json:"ispersonal"`
	Posted     time.Time `json:"posted"`
}

// Like records User liking an arbitrary item reference.
type Like struct {
	ID    string    `json:"like"`
	User  string    `json:"user"`
	Item  string    `json:"item"`
	Since time.Time `json:"since"`
}

// Follow records UserFollower following User.
type Follow struct {
	ID           string    `json:"follow"`
	User         string    `json:"user"`
	UserFollower string    `json:"user_follower"`
	IsPrivate    bool      `json:"isprivate"`
	Since        time.Time `json:"since"`
}

// Friend records a friendship from User to UserFriend.
type Friend struct {
	ID         string    `json:"friend"`
	User       string    `json:"user"`
	UserFriend string    `json:"user_friend"`
	Since      time.Time `json:"since"`
}
