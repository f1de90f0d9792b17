package feed

import (
	"context"

	"example.com/activityfeed/internal/concurrency"
	"example.com/activityfeed/internal/models"
)

// RemoveActivity deletes every timeline row, of every owner, that refers to
// item. Deletion is per row and not transactional: the first error is
// returned, rows already deleted stay deleted.
func (e *Engine) RemoveActivity(ctx context.Context, item string) error {
	p := concurrency.NewBestEffortPool(ctx, len(models.TimelineKinds))
	for _, kind := range models.TimelineKinds {
		p.Go(func(ctx context.Context) error {
			return e.removeFromTimeline(ctx, kind, item)
		})
	}
	if err := p.Wait(); err != nil {
		logg.Error("feed", "Failed to remove activity from timelines", err)
		return err
	}

	e.notify(ctx, TopicActivityRemoved, activityNotice{Item: item})
	return nil
}

func (e *Engine) removeFromTimeline(ctx context.Context, kind models.TimelineKind, item string) error {
	rows, err := e.timelines.SelectAllByItem(ctx, kind, item)
	if err != nil || len(rows) == 0 {
		return err
	}

	p := concurrency.NewBestEffortPool(ctx, e.concurrency)
	for _, row := range rows {
		p.Go(func(ctx context.Context) error {
			return e.timelines.DeleteEntry(ctx, kind, row.User, row.Time)
		})
	}
	return p.Wait()
}
