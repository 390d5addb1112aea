package container

import (
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// RedisConn holds the optional Redis client. Client is nil when Redis is disabled.
type RedisConn struct {
	Client *redis.Client
}

// Enabled reports whether a Redis client is configured.
func (r *RedisConn) Enabled() bool {
	return r.Client != nil
}

// Shutdown closes the client, if any. The stream publisher may already have
// closed it.
func (r *RedisConn) Shutdown() error {
	if r.Client == nil {
		return nil
	}

	if err := r.Client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}

	return nil
}

// PostgresConn holds the optional connection pool. Pool is nil when no database is configured.
type PostgresConn struct {
	Pool *pgxpool.Pool
}

// Shutdown closes the pool, if any.
func (p *PostgresConn) Shutdown() error {
	if p.Pool != nil {
		p.Pool.Close()
	}

	return nil
}
