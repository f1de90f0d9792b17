// Package feed writes activities into per-user timelines and reads them
// back as hydrated, privacy-filtered pages.
package feed

import (
	"context"
	"time"

	"example.com/activityfeed/internal/concurrency"
	"example.com/activityfeed/internal/dispatch"
	"example.com/activityfeed/internal/logger"
	"example.com/activityfeed/internal/models"
	"example.com/activityfeed/internal/store"
)

var logg = logger.New()

// Notification topics published after timeline changes.
const (
	TopicActivityAdded   = "activity.added"
	TopicActivityRemoved = "activity.removed"
)

// Timelines is the subset of the timeline store the engine needs.
type Timelines interface {
	InsertEntry(ctx context.Context, kind models.TimelineKind, e models.TimelineEntry) error
	SelectPage(ctx context.Context, kind models.TimelineKind, owner, before string, limit int) ([]models.TimelineEntry, error)
	SelectAllByItem(ctx context.Context, kind models.TimelineKind, item string) ([]models.TimelineEntry, error)
	DeleteEntry(ctx context.Context, kind models.TimelineKind, owner, at string) error
	SelectFollowers(ctx context.Context, owner string) ([]models.Follower, error)
}

// Directory resolves the domain records timeline entries point at.
type Directory interface {
	GetPost(ctx context.Context, requester, id string) (models.Post, error)
	GetLike(ctx context.Context, id string) (models.Like, error)
	GetFollow(ctx context.Context, requester, id string) (models.Follow, error)
	GetFriend(ctx context.Context, requester, id string) (models.Friend, error)
	GetUserByName(ctx context.Context, username string) (models.User, error)
	IsFriend(ctx context.Context, a, b string) (bool, error)
	GetUsers(ctx context.Context, ids []string) (map[string]models.User, error)
}

// Publisher emits fire-and-forget notifications.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, any) error { return nil }

// Engine is the fan-out, deletion and read engine.
type Engine struct {
	timelines   Timelines
	directory   Directory
	dispatcher  dispatch.Dispatcher
	publisher   Publisher
	concurrency int
	defaultPage int
	maxPage     int
	now         func() time.Time
	newTime     func() string
	hydrators   map[models.ItemType]hydrator
}

type Option func(e *Engine)

// WithConcurrency bounds the sub-operations run at once per join.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		e.concurrency = n
	}
}

// WithPublisher sets where activity notifications go.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) {
		e.publisher = p
	}
}

// WithPageSizes sets the page size used when none is asked for and the
// largest page served.
func WithPageSizes(def, maxSize int) Option {
	return func(e *Engine) {
		if def > 0 {
			e.defaultPage = def
		}
		if maxSize > 0 {
			e.maxPage = maxSize
		}
	}
}

// WithClock overrides the clock used for relative dates.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithTimeSource overrides the generator of timeline ordering keys.
func WithTimeSource(f func() string) Option {
	return func(e *Engine) {
		e.newTime = f
	}
}

func New(timelines Timelines, directory Directory, dispatcher dispatch.Dispatcher, opts ...Option) *Engine {
	e := &Engine{
		timelines:   timelines,
		directory:   directory,
		dispatcher:  dispatcher,
		publisher:   nopPublisher{},
		concurrency: concurrency.DefaultMaxGoroutines,
		defaultPage: 50,
		maxPage:     200,
		now:         time.Now,
		newTime:     store.NewTimeUUID,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.defaultPage > e.maxPage {
		e.defaultPage = e.maxPage
	}
	e.hydrators = e.defaultHydrators()
	return e
}

// RegisterHandlers installs the fan-out algorithms for every task on r.
func (e *Engine) RegisterHandlers(r dispatch.Registrar) {
	r.Handle(dispatch.PublishToFollowers, e.InsertFollowersTimeline)
	r.Handle(dispatch.PublishMentioned, e.InsertMentionedTimeline)
}

func (e *Engine) notify(ctx context.Context, topic string, payload any) {
	if err := e.publisher.Publish(ctx, topic, payload); err != nil {
		logg.Error("feed", "Failed to publish "+topic+" notification", err)
	}
}
