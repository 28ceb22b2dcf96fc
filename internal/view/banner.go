// Package view держит таймеры, которые на странице живут у компонентов. Пока это автоскрытие баннера.
package view

import (
	"sync"
	"time"

	"github.com/agora/internal/logger"
	"github.com/agora/internal/store"
)

// Banner следит за уведомлением в Store и скрывает его по истечении Delay, если у него
// включено автоскрытие. Новый баннер отменяет таймер предыдущего.
type Banner struct {
	store *store.Store

	mu      sync.Mutex
	seq     uint64
	timer   *time.Timer
	stopped bool
	unsub   func()
}

func NewBanner(s *store.Store) *Banner {
	return &Banner{store: s}
}

// Start подписывается на Store. Уже показанный баннер тоже получает таймер.
func (b *Banner) Start() {
	b.mu.Lock()
	if b.unsub != nil || b.stopped {
		b.mu.Unlock()
		return
	}
	b.unsub = b.store.Subscribe(b.onState)
	b.mu.Unlock()
	b.onState(b.store.Snapshot())
}

func (b *Banner) onState(st store.State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	n := st.Notification
	if n == nil {
		b.reset(0)
		return
	}
	if n.Seq == b.seq {
		return
	}
	b.reset(n.Seq)
	if !n.AutoDismiss {
		return
	}
	seq := n.Seq
	// DismissNotificationSeq вызывается из таймера, не из рассылки: подписчик не меняет Store синхронно
	b.timer = time.AfterFunc(n.Delay, func() {
		logger.Debugf("view: banner %d auto-dismissed", seq)
		b.store.DismissNotificationSeq(seq)
	})
}

func (b *Banner) reset(seq uint64) {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.seq = seq
}

// Stop отписывается и гасит таймер.
func (b *Banner) Stop() {
	b.mu.Lock()
	b.stopped = true
	b.reset(0)
	unsub := b.unsub
	b.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}
