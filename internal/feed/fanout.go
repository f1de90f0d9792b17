package feed

import (
	"context"
	"fmt"

	"example.com/activityfeed/internal/concurrency"
	"example.com/activityfeed/internal/dispatch"
	"example.com/activityfeed/internal/models"
)

type activityNotice struct {
	User string          `json:"user"`
	Item string          `json:"item"`
	Type models.ItemType `json:"type"`
}

// AddActivity records an activity on the actor's own timelines, then hands
// follower and mention fan-out to the dispatcher. It returns once the own
// timelines are written and every dispatch has been run or enqueued.
func (e *Engine) AddActivity(ctx context.Context, user, item string, typ models.ItemType, isPrivate, isPersonal bool) error {
	if user == "" || item == "" {
		return fmt.Errorf("activity requires a user and an item")
	}
	if _, ok := models.ParseItemType(string(typ)); !ok {
		return fmt.Errorf("unknown activity type %q", typ)
	}

	job := models.FanoutJob{
		User:       user,
		Item:       item,
		Type:       typ,
		IsPrivate:  isPrivate,
		IsPersonal: isPersonal,
	}

	if err := e.insertOwnTimelines(ctx, job); err != nil {
		return err
	}

	if !isPersonal {
		if err := e.dispatch(ctx, dispatch.PublishToFollowers, job); err != nil {
			return err
		}
	}

	if typ == models.TypePost && !isPersonal {
		if err := e.dispatch(ctx, dispatch.PublishMentioned, job); err != nil {
			return err
		}
	}

	e.notify(ctx, TopicActivityAdded, activityNotice{User: user, Item: item, Type: typ})
	return nil
}

func (e *Engine) dispatch(ctx context.Context, task dispatch.Task, job models.FanoutJob) error {
	mode := e.dispatcher.Mode()
	if err := e.dispatcher.Dispatch(ctx, task, job); err != nil {
		dispatches.WithLabelValues(string(task), mode, "error").Inc()
		return err
	}
	dispatches.WithLabelValues(string(task), mode, "ok").Inc()
	return nil
}

// insertOwnTimelines writes one row to each of the actor's timelines, each
// with its own ordering key.
func (e *Engine) insertOwnTimelines(ctx context.Context, job models.FanoutJob) error {
	p := concurrency.NewPool(ctx, len(models.TimelineKinds))
	for _, kind := range models.TimelineKinds {
		p.Go(func(ctx context.Context) error {
			return e.insert(ctx, kind, job.User, job)
		})
	}
	return p.Wait()
}

func (e *Engine) insert(ctx context.Context, kind models.TimelineKind, owner string, job models.FanoutJob) error {
	t := e.newTime()
	err := e.timelines.InsertEntry(ctx, kind, models.TimelineEntry{
		User:       owner,
		Item:       job.Item,
		Type:       job.Type,
		Time:       t,
		IsPrivate:  job.IsPrivate,
		IsPersonal: job.IsPersonal,
	})
	if err != nil {
		return err
	}
	timelineWrites.WithLabelValues(string(kind)).Inc()
	return nil
}

// eligible reports whether recipient may receive job: public activities go
// to everyone, private ones only to friends of the actor.
func (e *Engine) eligible(ctx context.Context, job models.FanoutJob, recipient string) (bool, error) {
	if !job.IsPrivate {
		return true, nil
	}
	return e.directory.IsFriend(ctx, recipient, job.User)
}

// InsertFollowersTimeline writes job to the feed of every follower of the
// actor who is allowed to see it. Replaying a job writes duplicate rows
// under fresh keys and nothing else.
func (e *Engine) InsertFollowersTimeline(ctx context.Context, job models.FanoutJob) error {
	if job.IsPersonal {
		return nil
	}

	followers, err := e.timelines.SelectFollowers(ctx, job.User)
	if err != nil {
		return err
	}
	if len(followers) == 0 {
		return nil
	}

	p := concurrency.NewPool(ctx, e.concurrency)
	for _, f := range followers {
		p.Go(func(ctx context.Context) error {
			ok, err := e.eligible(ctx, job, f.Follower)
			if err != nil {
				return err
			}
			if !ok {
				fanoutSkipped.WithLabelValues("not_friend").Inc()
				return nil
			}
			return e.insert(ctx, models.FeedTimeline, f.Follower, job)
		})
	}
	if err := p.Wait(); err != nil {
		logg.Error("feed", "Follower fan-out failed", err)
		return err
	}

	logg.Debug("feed", fmt.Sprintf("Activity delivered to %d followers (IDs anonymized)", len(followers)))
	return nil
}
