package store

import (
	"context"
	"fmt"

	config "example.com/activityfeed/internal/init"
	"example.com/activityfeed/internal/logger"
	"example.com/activityfeed/internal/models"
	"example.com/activityfeed/migrations"
	"github.com/gocql/gocql"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/cassandra"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

var logg = logger.New()

// --- Interfaces ---

type SessionInterface interface {
	Query(stmt string, values ...interface{}) *gocql.Query
	NewBatch(batchType gocql.BatchType) *gocql.Batch
	ExecuteBatch(batch *gocql.Batch) error
	Close()
}

// TimelineStore is the ordered per-user timeline storage.
type TimelineStore interface {
	InsertEntry(ctx context.Context, kind models.TimelineKind, e models.TimelineEntry) error
	// SelectPage returns up to limit rows newest first, strictly older than
	// before when before is not empty.
	SelectPage(ctx context.Context, kind models.TimelineKind, owner, before string, limit int) ([]models.TimelineEntry, error)
	SelectAllByItem(ctx context.Context, kind models.TimelineKind, item string) ([]models.TimelineEntry, error)
	DeleteEntry(ctx context.Context, kind models.TimelineKind, owner, at string) error
	SelectFollowers(ctx context.Context, owner string) ([]models.Follower, error)
}

// EntityStore holds the users, posts, likes, follows and friendships that
// timeline entries point at. Getters taking a requester return
// models.ErrForbidden when the requester may not see the record.
type EntityStore interface {
	CreateUser(ctx context.Context, username string) (models.User, error)
	GetUser(ctx context.Context, id string) (models.User, error)
	GetUserByName(ctx context.Context, username string) (models.User, error)
	GetUsers(ctx context.Context, ids []string) (map[string]models.User, error)

	CreateFollow(ctx context.Context, user, follower string, isPrivate bool) (models.Follow, error)
	GetFollow(ctx context.Context, requester, id string) (models.Follow, error)

	CreateFriend(ctx context.Context, user, friend string) (models.Friend, error)
	GetFriend(ctx context.Context, requester, id string) (models.Friend, error)
	IsFriend(ctx context.Context, a, b string) (bool, error)

	CreatePost(ctx context.Context, user, content string, isPrivate, isPersonal bool) (models.Post, error)
	GetPost(ctx context.Context, requester, id string) (models.Post, error)
	DeletePost(ctx context.Context, requester, id string) error

	CreateLike(ctx context.Context, user, item string) (models.Like, error)
	GetLike(ctx context.Context, id string) (models.Like, error)
}

type StoreInterface interface {
	TimelineStore
	EntityStore
	Close()
}

// --- Store Implementation ---

type Store struct {
	Session SessionInterface
}

// New initializes Cassandra connection using config package.
func New() (StoreInterface, error) {
	cfg := config.Get()

	if err := ensureKeyspace(cfg); err != nil {
		return nil, fmt.Errorf("failed to ensure keyspace: %w", err)
	}

	if err := runMigrations(cfg); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	cluster := gocql.NewCluster(cfg.CassandraHost)
	cluster.Keyspace = cfg.CassandraKeyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = cfg.CassandraTimeout
	cluster.ConnectTimeout = cfg.CassandraTimeout

	if cfg.CassandraUsername != "" && cfg.CassandraPassword != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.CassandraUsername,
			Password: cfg.CassandraPassword,
		}
	}

	if cfg.CassandraDC != "" {
		cluster.PoolConfig.HostSelectionPolicy = gocql.DCAwareRoundRobinPolicy(cfg.CassandraDC)
		cluster.HostFilter = gocql.DataCentreHostFilter(cfg.CassandraDC)
	}

	sess, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create Cassandra session: %w", err)
	}

	logg.Info("store", "Connected to Cassandra keyspace (host anonymized)")
	return &Store{Session: sess}, nil
}

// --- Ensure keyspace exists before migrations ---

func ensureKeyspace(cfg *config.Config) error {
	cluster := gocql.NewCluster(cfg.CassandraHost)
	cluster.Keyspace = "system"
	cluster.Timeout = cfg.CassandraTimeout
	if cfg.CassandraUsername != "" && cfg.CassandraPassword != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.CassandraUsername,
			Password: cfg.CassandraPassword,
		}
	}
	sess, err := cluster.CreateSession()
	if err != nil {
		return fmt.Errorf("failed to connect to Cassandra system keyspace: %w", err)
	}
	defer sess.Close()

	query := fmt.Sprintf(`
        CREATE KEYSPACE IF NOT EXISTS %s
        WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1};
    `, cfg.CassandraKeyspace)

	if err := sess.Query(query).Exec(); err != nil {
		return fmt.Errorf("failed to create keyspace: %w", err)
	}

	logg.Info("store", "Ensured Cassandra keyspace exists (keyspace name anonymized)")
	return nil
}

// --- Migration runner ---

func runMigrations(cfg *config.Config) error {
	src, err := iofs.New(migrations.Cassandra, "cassandra")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	dbURL := fmt.Sprintf(
		"cassandra://%s/%s?x-migrations-table=schema_migrations&x-multi-statement=true",
		cfg.CassandraHost, cfg.CassandraKeyspace,
	)
	if cfg.CassandraUsername != "" && cfg.CassandraPassword != "" {
		dbURL = fmt.Sprintf(
			"cassandra://%s/%s?username=%s&password=%s&x-migrations-table=schema_migrations&x-multi-statement=true",
			cfg.CassandraHost, cfg.CassandraKeyspace, cfg.CassandraUsername, cfg.CassandraPassword,
		)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dbURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration up failed: %w", err)
	}

	if err == migrate.ErrNoChange {
		logg.Info("store", "No new migrations to apply")
	} else {
		logg.Info("store", "Migrations applied successfully")
	}
	return nil
}

// Close gracefully closes Cassandra session.
func (s *Store) Close() {
	if s.Session != nil {
		s.Session.Close()
		logg.Info("store", "Cassandra session closed")
	}
}

func storageErr(op string, err error) error {
	return &models.StorageError{Op: op, Err: err}
}
