// Package redis provides the pass lease that lets several supervisors share
// one observatory. Only the holder of the lease runs an evaluation pass.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

// ErrLeaseLost is returned by a release whose lease expired or was taken
// over, and is the cancellation cause of a held context that lost its lease.
var ErrLeaseLost = errors.New("redis: pass lease lost")

// releaseScript deletes the key only while it still holds our token.
var releaseScript = backend.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// renewScript extends the key's TTL only while it still holds our token.
var renewScript = backend.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// Config holds the connection and lease settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key, e.g. "chimera:".
	Prefix string
	// TTL bounds how long a crashed holder blocks the others.
	TTL time.Duration
}

// Lease is a non-blocking Redis lock around evaluation passes.
type Lease struct {
	client *backend.Client
	key    string
	ttl    time.Duration
	owner  bool
}

// Connect opens a client from cfg and verifies it with a ping.
func Connect(ctx context.Context, cfg Config, site string) (*Lease, error) {
	client := backend.NewClient(&backend.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}
	l := NewLease(client, cfg.Prefix, site, cfg.TTL)
	l.owner = true
	return l, nil
}

// NewLease creates a lease for site over an existing client.
func NewLease(client *backend.Client, prefix, site string, ttl time.Duration) *Lease {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Lease{
		client: client,
		key:    prefix + "pass:" + site,
		ttl:    ttl,
	}
}

// Key returns the Redis key guarding the pass.
func (l *Lease) Key() string {
	return l.key
}

// Acquire tries once to take the lease. ok is false when another
// supervisor holds it; that is not an error.
//
// While held, the lease is renewed every third of its TTL. held is derived
// from ctx and is cancelled with cause ErrLeaseLost when the lease is taken
// over or cannot be renewed before it expires. The returned func stops the
// renewal, gives the lease back and reports ErrLeaseLost if it was lost in
// the meantime. Calling it more than once is safe.
func (l *Lease) Acquire(ctx context.Context) (context.Context, func(context.Context) error, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, nil, false, fmt.Errorf("acquiring pass lease: %w", err)
	}
	if !ok {
		return nil, nil, false, nil
	}

	held, cancel := context.WithCancelCause(ctx)
	stop := make(chan struct{})
	done := make(chan struct{})
	go l.renew(held, cancel, token, stop, done)

	var (
		once   sync.Once
		result error
	)
	release := func(ctx context.Context) error {
		once.Do(func() {
			close(stop)
			<-done
			cancel(nil)

			n, err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Int()
			switch {
			case err != nil:
				result = fmt.Errorf("releasing pass lease: %w", err)
			case n == 0:
				result = ErrLeaseLost
			}
		})
		return result
	}
	return held, release, true, nil
}

// renew keeps the lease alive until stop is closed or held ends. Redis
// errors are retried until the last successful renewal is a full TTL old.
func (l *Lease) renew(held context.Context, cancel context.CancelCauseFunc, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	every := l.ttl / 3
	if every <= 0 {
		every = l.ttl
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	renewed := time.Now()

	for {
		select {
		case <-stop:
			return
		case <-held.Done():
			return
		case <-ticker.C:
			n, err := renewScript.Run(held, l.client, []string{l.key}, token, l.ttl.Milliseconds()).Int()
			switch {
			case err != nil:
				if held.Err() != nil {
					return
				}
				if time.Since(renewed) >= l.ttl {
					cancel(ErrLeaseLost)
					return
				}
			case n == 0:
				cancel(ErrLeaseLost)
				return
			default:
				renewed = time.Now()
			}
		}
	}
}

// HealthCheck verifies Redis answers.
func (l *Lease) HealthCheck(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close closes the client if the lease opened it.
func (l *Lease) Close() error {
	if !l.owner {
		return nil
	}
	if err := l.client.Close(); err != nil {
		return fmt.Errorf("closing redis: %w", err)
	}
	return nil
}
