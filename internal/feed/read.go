package feed

import (
	"context"

	"example.com/activityfeed/internal/concurrency"
	"example.com/activityfeed/internal/models"
	"example.com/activityfeed/internal/store"
	"github.com/dustin/go-humanize"
)

// Page is one page of a hydrated feed. Next is nil on the last page.
type Page struct {
	Items []*models.FeedItem `json:"items"`
	Next  *string            `json:"next"`
}

// hydrator resolves the record a timeline row points at, as seen by requester.
type hydrator func(ctx context.Context, requester, id string) (*models.FeedItem, error)

func (e *Engine) defaultHydrators() map[models.ItemType]hydrator {
	return map[models.ItemType]hydrator{
		models.TypePost: func(ctx context.Context, requester, id string) (*models.FeedItem, error) {
			p, err := e.directory.GetPost(ctx, requester, id)
			return &models.FeedItem{Post: &p}, err
		},
		models.TypeLike: func(ctx context.Context, _, id string) (*models.FeedItem, error) {
			l, err := e.directory.GetLike(ctx, id)
			return &models.FeedItem{Like: &l}, err
		},
		models.TypeFollow: func(ctx context.Context, requester, id string) (*models.FeedItem, error) {
			f, err := e.directory.GetFollow(ctx, requester, id)
			return &models.FeedItem{Follow: &f}, err
		},
		models.TypeFriend: func(ctx context.Context, requester, id string) (*models.FeedItem, error) {
			f, err := e.directory.GetFriend(ctx, requester, id)
			return &models.FeedItem{Friend: &f}, err
		},
	}
}

// GetOwnTimeline returns a page of everything owner did, as requester may see it.
func (e *Engine) GetOwnTimeline(ctx context.Context, requester, owner, cursor string, limit int) (Page, error) {
	return e.getFeed(ctx, requester, owner, models.UserTimeline, cursor, limit)
}

// GetAggregatedFeed returns a page of owner's feed, as requester may see it.
func (e *Engine) GetAggregatedFeed(ctx context.Context, requester, owner, cursor string, limit int) (Page, error) {
	return e.getFeed(ctx, requester, owner, models.FeedTimeline, cursor, limit)
}

// GetRawAggregatedFeed returns unresolved feed rows, for bulk work that
// needs references rather than records.
func (e *Engine) GetRawAggregatedFeed(ctx context.Context, owner, cursor string, limit int) ([]models.TimelineEntry, *string, error) {
	return e.fetchPage(ctx, models.FeedTimeline, owner, cursor, limit)
}

func (e *Engine) pageSize(limit int) int {
	switch {
	case limit <= 0:
		return e.defaultPage
	case limit > e.maxPage:
		return e.maxPage
	}
	return limit
}

// fetchPage reads one row past the page to learn whether another page
// exists. The cursor is the key of the last row kept, whether or not that
// row survives hydration.
func (e *Engine) fetchPage(ctx context.Context, kind models.TimelineKind, owner, cursor string, limit int) ([]models.TimelineEntry, *string, error) {
	if cursor != "" && !store.ValidTimeUUID(cursor) {
		return nil, nil, models.ErrInvalidCursor
	}

	size := e.pageSize(limit)
	rows, err := e.timelines.SelectPage(ctx, kind, owner, cursor, size+1)
	if err != nil {
		return nil, nil, err
	}

	var next *string
	if len(rows) > size {
		rows = rows[:size]
		last := rows[size-1].Time
		next = &last
	}
	if rows == nil {
		rows = []models.TimelineEntry{}
	}
	return rows, next, nil
}

func (e *Engine) getFeed(ctx context.Context, requester, owner string, kind models.TimelineKind, cursor string, limit int) (Page, error) {
	rows, next, err := e.fetchPage(ctx, kind, owner, cursor, limit)
	if err != nil {
		return Page{}, err
	}

	resolved := make([]*models.FeedItem, len(rows))
	p := concurrency.NewPool(ctx, e.concurrency)
	for i, row := range rows {
		p.Go(func(ctx context.Context) error {
			item, err := e.hydrate(ctx, requester, row)
			if err != nil || item == nil {
				return err
			}
			e.annotate(item, row, requester, owner)
			resolved[i] = item
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		logg.Error("feed", "Failed to hydrate feed page", err)
		return Page{}, err
	}

	items := make([]*models.FeedItem, 0, len(resolved))
	for _, item := range resolved {
		if item != nil {
			items = append(items, item)
		}
	}

	if err := e.mapUsers(ctx, items); err != nil {
		return Page{}, err
	}
	return Page{Items: items, Next: next}, nil
}

// hydrate returns nil without error for rows the requester may no longer
// see, rows whose record is gone, and rows of unknown type.
func (e *Engine) hydrate(ctx context.Context, requester string, row models.TimelineEntry) (*models.FeedItem, error) {
	h, ok := e.hydrators[row.Type]
	if !ok {
		feedDropped.WithLabelValues("unknown").Inc()
		return nil, nil
	}
	item, err := h(ctx, requester, row.Item)
	if err != nil {
		if models.IsAbsorbable(err) {
			feedDropped.WithLabelValues(string(row.Type)).Inc()
			return nil, nil
		}
		return nil, err
	}
	return item, nil
}

func (e *Engine) annotate(item *models.FeedItem, row models.TimelineEntry, requester, owner string) {
	date := row.Date
	if date.IsZero() {
		date = store.TimeOf(row.Time)
	}

	item.Type = row.Type
	item.Timeuuid = row.Time
	item.Date = date
	item.FromNow = humanize.RelTime(date, e.now(), "ago", "from now")
	item.IsPrivate = row.IsPrivate
	item.IsPersonal = row.IsPersonal

	actor := item.Actor()
	item.FromFollower = actor != owner
	item.IsUsersItem = actor == requester
	item.IsPost = row.Type == models.TypePost
	item.IsLike = row.Type == models.TypeLike
	item.IsFollow = row.Type == models.TypeFollow
	item.IsFriend = row.Type == models.TypeFriend
}

// mapUsers resolves every profile referenced on the page with one lookup.
func (e *Engine) mapUsers(ctx context.Context, items []*models.FeedItem) error {
	seen := make(map[string]bool)
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, item := range items {
		user, follower, friend := item.UserRefs()
		add(user)
		add(follower)
		add(friend)
	}
	if len(ids) == 0 {
		return nil
	}

	users, err := e.directory.GetUsers(ctx, ids)
	if err != nil {
		logg.Error("feed", "Failed to resolve users for feed page", err)
		return err
	}

	profile := func(id string) *models.User {
		if u, ok := users[id]; ok {
			return &u
		}
		return nil
	}
	for _, item := range items {
		user, follower, friend := item.UserRefs()
		item.User = profile(user)
		if follower != "" {
			item.UserFollower = profile(follower)
		}
		if friend != "" {
			item.UserFriend = profile(friend)
		}
	}
	return nil
}
