package listener

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olehkaliuzhnyi/sword-dapp/pkg/models"
)

// mockFetcher simulates a node whose chain id and accounts can be switched.
type mockFetcher struct {
	mu       sync.Mutex
	chainID  int64
	accounts []string
	err      error
}

func (f *mockFetcher) set(chainID int64, accounts ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chainID = chainID
	f.accounts = accounts
}

func (f *mockFetcher) ChainID(ctx context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return big.NewInt(f.chainID), nil
}

func (f *mockFetcher) NodeAccounts(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.accounts...), nil
}

func drain(l *PollingListener) []models.ProviderEvent {
	var out []models.ProviderEvent
	for {
		select {
		case ev := <-l.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestPollingListener_BaselineEmitsNothing(t *testing.T) {
	f := &mockFetcher{}
	f.set(412346, "0xa")
	l := NewPollingListener(time.Hour, f, PollingConfig{WatchAccounts: true})

	require.NoError(t, l.poll(context.Background()))
	require.NoError(t, l.poll(context.Background()))

	assert.Empty(t, drain(l))
}

func TestPollingListener_ChainChanged(t *testing.T) {
	f := &mockFetcher{}
	f.set(412346)
	l := NewPollingListener(time.Hour, f, PollingConfig{})
	ctx := context.Background()

	require.NoError(t, l.poll(ctx))
	f.set(1)
	require.NoError(t, l.poll(ctx))
	// unchanged since last poll: no second event
	require.NoError(t, l.poll(ctx))

	events := drain(l)
	require.Len(t, events, 1)
	assert.Equal(t, models.ChainChanged, events[0].Kind)
	assert.Equal(t, int64(1), events[0].ChainID.Int64())
}

func TestPollingListener_AccountsChanged(t *testing.T) {
	f := &mockFetcher{}
	f.set(412346, "0xa")
	l := NewPollingListener(time.Hour, f, PollingConfig{WatchAccounts: true})
	ctx := context.Background()

	require.NoError(t, l.poll(ctx))
	f.set(412346, "0xA") // case only: same account
	require.NoError(t, l.poll(ctx))
	f.set(412346, "0xb", "0xa")
	require.NoError(t, l.poll(ctx))

	events := drain(l)
	require.Len(t, events, 1)
	assert.Equal(t, models.AccountsChanged, events[0].Kind)
	assert.Equal(t, []string{"0xb", "0xa"}, events[0].Accounts)
}

func TestPollingListener_AccountsIgnoredWhenNotWatched(t *testing.T) {
	f := &mockFetcher{}
	f.set(412346, "0xa")
	l := NewPollingListener(time.Hour, f, PollingConfig{})
	ctx := context.Background()

	require.NoError(t, l.poll(ctx))
	f.set(412346, "0xb")
	require.NoError(t, l.poll(ctx))

	assert.Empty(t, drain(l))
}

func TestPollingListener_FetchError(t *testing.T) {
	f := &mockFetcher{err: errors.New("node down")}
	l := NewPollingListener(time.Hour, f, PollingConfig{})

	err := l.poll(context.Background())
	require.Error(t, err)
	assert.False(t, l.primed)
}

func TestPollingListener_StartStop(t *testing.T) {
	f := &mockFetcher{}
	f.set(412346)
	l := NewPollingListener(20*time.Millisecond, f, PollingConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, l.Start(ctx))

	time.Sleep(50 * time.Millisecond)
	f.set(5)

	select {
	case ev := <-l.Events():
		assert.Equal(t, models.ChainChanged, ev.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for chain change")
	}

	require.NoError(t, l.Stop())
	_, ok := <-l.Events()
	assert.False(t, ok, "events channel should be closed after Stop")
}
