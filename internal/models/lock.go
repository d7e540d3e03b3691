package models

import "context"

// fifoLock 是按到达顺序授予的互斥锁，等待可被 ctx 取消。
// 基于容量为 1 的 channel：阻塞的发送者在 runtime 中按 FIFO 排队，
// Unlock 取走缓冲值时直接把位置交给队首等待者，不会被后来者插队。
type fifoLock struct {
	ch chan struct{}
}

func newFIFOLock() *fifoLock {
	return &fifoLock{ch: make(chan struct{}, 1)}
}

// Lock 获取锁。ctx 结束时放弃排队并返回 ctx.Err()，不会持有锁。
func (l *fifoLock) Lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryLock 在锁空闲时获取并返回 true。
func (l *fifoLock) TryLock() bool {
	select {
	case l.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Unlock 释放锁，必须由持有者调用。
func (l *fifoLock) Unlock() {
	select {
	case <-l.ch:
	default:
		panic("models: unlock of unlocked fifoLock")
	}
}
