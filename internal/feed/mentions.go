package feed

import (
	"context"
	"errors"
	"regexp"
	"sync"

	"example.com/activityfeed/internal/concurrency"
	"example.com/activityfeed/internal/models"
)

var mentionPattern = regexp.MustCompile(`@([a-zA-Z0-9]+)`)

// ExtractMentions returns the distinct names mentioned in content, in order
// of first appearance.
func ExtractMentions(content string) []string {
	matches := mentionPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		names = append(names, m[1])
	}
	return names
}

type mentioned struct {
	user     models.User
	isFriend bool
}

// InsertMentionedTimeline writes a post to the feed of every user it
// mentions who does not follow the author and is allowed to see it.
func (e *Engine) InsertMentionedTimeline(ctx context.Context, job models.FanoutJob) error {
	if job.Type != models.TypePost || job.IsPersonal {
		return nil
	}

	post, err := e.directory.GetPost(ctx, job.User, job.Item)
	if err != nil {
		if models.IsAbsorbable(err) {
			return nil
		}
		return err
	}

	names := ExtractMentions(post.Content)
	if len(names) == 0 {
		return nil
	}

	users, err := e.resolveMentions(ctx, job, names)
	if err != nil || len(users) == 0 {
		return err
	}

	followers, err := e.timelines.SelectFollowers(ctx, job.User)
	if err != nil {
		return err
	}
	following := make(map[string]bool, len(followers))
	for _, f := range followers {
		following[f.Follower] = true
	}

	p := concurrency.NewPool(ctx, e.concurrency)
	for _, m := range users {
		if following[m.user.ID] || m.user.ID == job.User {
			fanoutSkipped.WithLabelValues("already_follower").Inc()
			continue
		}
		if job.IsPrivate && !m.isFriend {
			fanoutSkipped.WithLabelValues("not_friend").Inc()
			continue
		}
		p.Go(func(ctx context.Context) error {
			return e.insert(ctx, models.FeedTimeline, m.user.ID, job)
		})
	}
	return p.Wait()
}

// resolveMentions looks names up concurrently. Unknown names are dropped;
// friendship with the author is only checked for private posts.
func (e *Engine) resolveMentions(ctx context.Context, job models.FanoutJob, names []string) ([]mentioned, error) {
	var (
		mu  sync.Mutex
		res []mentioned
	)
	p := concurrency.NewPool(ctx, e.concurrency)
	for _, name := range names {
		p.Go(func(ctx context.Context) error {
			u, err := e.directory.GetUserByName(ctx, name)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					return nil
				}
				return err
			}
			m := mentioned{user: u}
			if job.IsPrivate {
				if m.isFriend, err = e.directory.IsFriend(ctx, u.ID, job.User); err != nil {
					return err
				}
			}
			mu.Lock()
			res = append(res, m)
			mu.Unlock()
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}
