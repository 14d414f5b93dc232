package support

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultLeadershipTTL = 45 * time.Second
	leadershipRetryDelay = time.Second
	lockCallTimeout      = 5 * time.Second
	minRenewalInterval   = 100 * time.Millisecond
	renewalsPerTTL       = 3
)

var (
	ErrLeadershipLost = errors.New("support: leadership lost")

	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)
)

// Elector coordinates a single active worker across replicas with a
// Redis key that expires unless its holder keeps renewing it.
type Elector struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
	retry  time.Duration
}

func NewElector(client redis.UniversalClient, key string, ttl time.Duration) *Elector {
	if ttl <= 0 {
		ttl = DefaultLeadershipTTL
	}
	return &Elector{client: client, key: key, ttl: ttl, retry: leadershipRetryDelay}
}

// Run blocks until ctx is done. Whenever this process holds the lock, run
// is invoked with a context that is cancelled as soon as the lock is lost.
func (e *Elector) Run(ctx context.Context, run func(context.Context)) error {
	if run == nil {
		return errors.New("support: leader run function cannot be nil")
	}
	if e.client == nil {
		return errors.New("support: leader election requires a redis client")
	}

	for {
		term, err := e.campaign(ctx)
		if err != nil {
			return err
		}

		log.Debug("leader lock: acquired", "key", e.key)
		run(term.ctx)
		term.resign()
		log.Debug("leader lock: released", "key", e.key)

		if err := e.wait(ctx); err != nil {
			return err
		}
	}
}

func (e *Elector) wait(ctx context.Context) error {
	timer := time.NewTimer(e.retry)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (e *Elector) campaign(ctx context.Context) (*leaderTerm, error) {
	token := uuid.NewString()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ok, err := e.client.SetNX(ctx, e.key, token, e.ttl).Result()
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			log.Warn("leader lock: setnx failed", "key", e.key, "error", err)
		case ok:
			termCtx, cancel := context.WithCancel(ctx)
			term := &leaderTerm{
				elector: e,
				token:   token,
				ctx:     termCtx,
				cancel:  cancel,
				done:    make(chan struct{}),
			}
			go term.keepAlive()
			return term, nil
		}

		if err := e.wait(ctx); err != nil {
			return nil, err
		}
	}
}

type leaderTerm struct {
	elector *Elector
	token   string
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

func (t *leaderTerm) keepAlive() {
	interval := t.elector.ttl / renewalsPerTTL
	if interval < minRenewalInterval {
		interval = minRenewalInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			if err := t.renew(); err != nil {
				log.Warn("leader lock: renewal failed", "key", t.elector.key, "error", err)
				t.cancel()
				return
			}
		}
	}
}

func (t *leaderTerm) renew() error {
	ctx, cancel := context.WithTimeout(context.Background(), lockCallTimeout)
	defer cancel()

	res, err := renewScript.Run(ctx, t.elector.client, []string{t.elector.key}, t.token, t.elector.ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if res == 0 {
		return ErrLeadershipLost
	}
	return nil
}

func (t *leaderTerm) resign() {
	t.once.Do(func() {
		close(t.done)
		t.cancel()

		ctx, cancel := context.WithTimeout(context.Background(), lockCallTimeout)
		defer cancel()

		err := releaseScript.Run(ctx, t.elector.client, []string{t.elector.key}, t.token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			log.Warn("leader lock: release failed", "key", t.elector.key, "error", err)
		}
	})
}
