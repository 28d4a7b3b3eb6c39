package controller

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"github.com/olehkaliuzhnyi/sword-dapp/pkg/models"
)

const eventBuffer = 4

// Session is the per-load binding of a provider, its network and the
// contract handle. Fields other than provider are guarded by the owning
// Controller's mutex.
type Session struct {
	provider Provider
	chainID  *big.Int
	contract Counter
	accounts []common.Address

	accountsCh chan []common.Address
	chainCh    chan *big.Int
	subs       []event.Subscription

	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(p Provider) *Session {
	return &Session{
		provider:   p,
		accountsCh: make(chan []common.Address, eventBuffer),
		chainCh:    make(chan *big.Int, eventBuffer),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// listen subscribes to both provider feeds and calls fn once per event.
func (s *Session) listen(fn func(models.ProviderEventKind)) {
	s.subs = []event.Subscription{
		s.provider.SubscribeAccountsChanged(s.accountsCh),
		s.provider.SubscribeChainChanged(s.chainCh),
	}
	go func() {
		defer close(s.done)
		for {
			select {
			case <-s.accountsCh:
				fn(models.AccountsChanged)
			case <-s.chainCh:
				fn(models.ChainChanged)
			case <-s.quit:
				return
			}
		}
	}()
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		for _, sub := range s.subs {
			sub.Unsubscribe()
		}
		close(s.quit)
		if s.subs != nil {
			<-s.done
		}
	})
}
