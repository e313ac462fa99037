package leader

import (
	"context"
	"sync"
	"time"

	"freelance-market/pkg/logger"

	"github.com/go-redis/redis/v8"
)

const (
	renewScript = `
        if redis.call("GET", KEYS[1]) == ARGV[1] then
            return redis.call("PEXPIRE", KEYS[1], ARGV[2])
        else
            return 0
        end
    `
	releaseScript = `
        if redis.call("GET", KEYS[1]) == ARGV[1] then
            return redis.call("DEL", KEYS[1])
        else
            return 0
        end
    `
)

// RedisLeaderElection elects one scheduler instance through a single Redis
// key holding the leader's instance id. The leader renews the key at a third
// of its TTL until it loses or releases it.
type RedisLeaderElection struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
	log    logger.Logger

	mu        sync.Mutex
	heartbeat context.CancelFunc
}

func NewRedisLeaderElection(client redis.UniversalClient, key string, ttl time.Duration, log logger.Logger) *RedisLeaderElection {
	return &RedisLeaderElection{
		client: client,
		key:    key,
		ttl:    ttl,
		log:    log,
	}
}

func (r *RedisLeaderElection) BecomeLeader(ctx context.Context, instanceID string) (bool, error) {
	result, err := r.client.SetNX(ctx, r.key, instanceID, r.ttl).Result()
	if err != nil {
		return false, err
	}

	if !result {
		// Re-acquire after a restart that kept the same instance id.
		current, err := r.client.Get(ctx, r.key).Result()
		if err != nil && err != redis.Nil {
			return false, err
		}
		result = current == instanceID
	}

	if result {
		r.startHeartbeat(instanceID)
	}
	return result, nil
}

func (r *RedisLeaderElection) IsLeader(ctx context.Context, instanceID string) (bool, error) {
	currentLeader, err := r.client.Get(ctx, r.key).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}

	return currentLeader == instanceID, nil
}

func (r *RedisLeaderElection) ReleaseLeadership(ctx context.Context, instanceID string) error {
	r.stopHeartbeat()
	return r.client.Eval(ctx, releaseScript, []string{r.key}, instanceID).Err()
}

func (r *RedisLeaderElection) startHeartbeat(instanceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.heartbeat != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.heartbeat = cancel
	go r.maintainLeadership(ctx, instanceID)
}

func (r *RedisLeaderElection) stopHeartbeat() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.heartbeat != nil {
		r.heartbeat()
		r.heartbeat = nil
	}
}

func (r *RedisLeaderElection) maintainLeadership(ctx context.Context, instanceID string) {
	ticker := time.NewTicker(r.ttl / 3) // Refresh at 1/3 of TTL
	defer ticker.Stop()
	defer r.stopHeartbeatIfCurrent(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		renewCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		result, err := r.client.Eval(renewCtx, renewScript, []string{r.key},
			instanceID, r.ttl.Milliseconds()).Int64()
		cancel()

		if err != nil || result == 0 {
			r.log.Warn("Lost scheduler leadership", "instance_id", instanceID, "error", err)
			return
		}
	}
}

// stopHeartbeatIfCurrent clears the heartbeat slot when the loop exits on its
// own so a later BecomeLeader can start a new one.
func (r *RedisLeaderElection) stopHeartbeatIfCurrent(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	r.stopHeartbeat()
}
