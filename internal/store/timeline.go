package store

import (
	"context"
	"fmt"

	"example.com/activityfeed/internal/models"
	"github.com/gocql/gocql"
)

const timelineColumns = `user_id, time, item, type, is_private, is_personal`

// table maps a timeline kind onto its table; kinds are a closed set so the
// name is safe to interpolate.
func table(kind models.TimelineKind) (string, error) {
	switch kind {
	case models.UserTimeline, models.FeedTimeline:
		return string(kind), nil
	}
	return "", fmt.Errorf("unknown timeline %q", kind)
}

// --- Timeline operations ---

func (s *Store) InsertEntry(ctx context.Context, kind models.TimelineKind, e models.TimelineEntry) error {
	tbl, err := table(kind)
	if err != nil {
		return err
	}
	t, err := gocql.ParseUUID(e.Time)
	if err != nil {
		return fmt.Errorf("invalid timeline time: %w", err)
	}

	if err := s.Session.Query(
		fmt.Sprintf(`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?)`, tbl, timelineColumns),
		e.User, t, e.Item, string(e.Type), e.IsPrivate, e.IsPersonal,
	).WithContext(ctx).Exec(); err != nil {
		logg.Error("store", "Failed to insert timeline entry", err)
		return storageErr("insert "+tbl, err)
	}
	return nil
}

func (s *Store) SelectPage(ctx context.Context, kind models.TimelineKind, owner, before string, limit int) ([]models.TimelineEntry, error) {
	tbl, err := table(kind)
	if err != nil {
		return nil, err
	}

	var q *gocql.Query
	if before != "" {
		cursor, err := gocql.ParseUUID(before)
		if err != nil {
			return nil, models.ErrInvalidCursor
		}
		q = s.Session.Query(
			fmt.Sprintf(`SELECT %s FROM %s WHERE user_id = ? AND time < ? LIMIT ?`, timelineColumns, tbl),
			owner, cursor, limit,
		)
	} else {
		q = s.Session.Query(
			fmt.Sprintf(`SELECT %s FROM %s WHERE user_id = ? LIMIT ?`, timelineColumns, tbl),
			owner, limit,
		)
	}

	res, err := scanEntries(q.WithContext(ctx).Iter())
	if err != nil {
		logg.Error("store", "Failed to select timeline page", err)
		return nil, storageErr("select "+tbl, err)
	}
	return res, nil
}

func (s *Store) SelectAllByItem(ctx context.Context, kind models.TimelineKind, item string) ([]models.TimelineEntry, error) {
	tbl, err := table(kind)
	if err != nil {
		return nil, err
	}

	res, err := scanEntries(s.Session.Query(
		fmt.Sprintf(`SELECT %s FROM %s WHERE item = ?`, timelineColumns, tbl),
		item,
	).WithContext(ctx).Iter())
	if err != nil {
		logg.Error("store", "Failed to select timeline rows by item", err)
		return nil, storageErr("select by item "+tbl, err)
	}
	return res, nil
}

func (s *Store) DeleteEntry(ctx context.Context, kind models.TimelineKind, owner, at string) error {
	tbl, err := table(kind)
	if err != nil {
		return err
	}
	t, err := gocql.ParseUUID(at)
	if err != nil {
		return fmt.Errorf("invalid timeline time: %w", err)
	}

	if err := s.Session.Query(
		fmt.Sprintf(`DELETE FROM %s WHERE user_id = ? AND time = ?`, tbl),
		owner, t,
	).WithContext(ctx).Exec(); err != nil {
		logg.Error("store", "Failed to delete timeline entry", err)
		return storageErr("delete "+tbl, err)
	}
	return nil
}

func (s *Store) SelectFollowers(ctx context.Context, owner string) ([]models.Follower, error) {
	iter := s.Session.Query(
		`SELECT user_id, follower_id FROM followers WHERE user_id = ?`,
		owner,
	).WithContext(ctx).Iter()

	var user, follower string
	var res []models.Follower
	for iter.Scan(&user, &follower) {
		res = append(res, models.Follower{User: user, Follower: follower})
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to get followers", err)
		return nil, storageErr("select followers", err)
	}
	return res, nil
}

func scanEntries(iter *gocql.Iter) ([]models.TimelineEntry, error) {
	var (
		res                   []models.TimelineEntry
		user, item, typ       string
		t                     gocql.UUID
		isPrivate, isPersonal bool
	)
	for iter.Scan(&user, &t, &item, &typ, &isPrivate, &isPersonal) {
		res = append(res, models.TimelineEntry{
			User:       user,
			Item:       item,
			Type:       models.ItemType(typ),
			Time:       t.String(),
			Date:       t.Time(),
			IsPrivate:  isPrivate,
			IsPersonal: isPersonal,
		})
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return res, nil
}
