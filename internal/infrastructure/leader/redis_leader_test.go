package leader

import (
	"context"
	"testing"
	"time"

	"freelance-market/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func newElection(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *RedisLeaderElection, *RedisLeaderElection) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	a := NewRedisLeaderElection(client, "auction_scheduler_leader", ttl, logger.NewNop())
	b := NewRedisLeaderElection(client, "auction_scheduler_leader", ttl, logger.NewNop())
	t.Cleanup(func() {
		a.stopHeartbeat()
		b.stopHeartbeat()
	})
	return mr, a, b
}

func TestRedisLeaderElection_SingleLeader(t *testing.T) {
	_, a, b := newElection(t, 30*time.Second)
	ctx := context.Background()

	won, err := a.BecomeLeader(ctx, "instance-a")
	require.NoError(t, err)
	require.True(t, won)

	won, err = b.BecomeLeader(ctx, "instance-b")
	require.NoError(t, err)
	require.False(t, won)

	isLeader, err := a.IsLeader(ctx, "instance-a")
	require.NoError(t, err)
	require.True(t, isLeader)

	isLeader, err = b.IsLeader(ctx, "instance-b")
	require.NoError(t, err)
	require.False(t, isLeader)

	// a restarted leader keeps its seat
	again, err := a.BecomeLeader(ctx, "instance-a")
	require.NoError(t, err)
	require.True(t, again)
}

func TestRedisLeaderElection_ReleaseOnlyByHolder(t *testing.T) {
	_, a, b := newElection(t, 30*time.Second)
	ctx := context.Background()

	_, err := a.BecomeLeader(ctx, "instance-a")
	require.NoError(t, err)

	require.NoError(t, b.ReleaseLeadership(ctx, "instance-b"))
	isLeader, err := a.IsLeader(ctx, "instance-a")
	require.NoError(t, err)
	require.True(t, isLeader)

	require.NoError(t, a.ReleaseLeadership(ctx, "instance-a"))
	isLeader, err = a.IsLeader(ctx, "instance-a")
	require.NoError(t, err)
	require.False(t, isLeader)

	won, err := b.BecomeLeader(ctx, "instance-b")
	require.NoError(t, err)
	require.True(t, won)
}

func TestRedisLeaderElection_ExpiredLeaderIsReplaced(t *testing.T) {
	mr, a, b := newElection(t, 30*time.Second)
	ctx := context.Background()

	_, err := a.BecomeLeader(ctx, "instance-a")
	require.NoError(t, err)
	a.stopHeartbeat()

	mr.FastForward(31 * time.Second)

	isLeader, err := a.IsLeader(ctx, "instance-a")
	require.NoError(t, err)
	require.False(t, isLeader)

	won, err := b.BecomeLeader(ctx, "instance-b")
	require.NoError(t, err)
	require.True(t, won)
}

func TestRedisLeaderElection_HeartbeatRenewsTTL(t *testing.T) {
	mr, a, _ := newElection(t, 300*time.Millisecond)
	ctx := context.Background()

	_, err := a.BecomeLeader(ctx, "instance-a")
	require.NoError(t, err)

	// miniredis only expires on FastForward, so watch the TTL being reset instead.
	mr.FastForward(200 * time.Millisecond)
	require.Eventually(t, func() bool {
		return mr.TTL("auction_scheduler_leader") > 200*time.Millisecond
	}, 2*time.Second, 20*time.Millisecond)
}
