package vending

import (
	"sync"
	"time"
)

// SessionClock 会话计时器
// 只做墙钟比较，所有超时均由轮询判定；
// 中断回调和轮询循环会并发刷新，内部加锁
type SessionClock struct {
	mu                sync.Mutex
	sessionStart      time.Time
	lastActivity      time.Time
	lastButtonEvent   time.Time
	lastProductSwitch time.Time
}

// NewSessionClock 创建并归零会话计时器
func NewSessionClock() *SessionClock {
	now := time.Now()
	return &SessionClock{
		sessionStart:    now,
		lastActivity:    now,
		lastButtonEvent: now,
	}
}

// TouchActivity 刷新活动时间戳
func (c *SessionClock) TouchActivity() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActivity = time.Now()
}

// TouchButton 刷新按钮时间戳（同时计为活动）
func (c *SessionClock) TouchButton() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	c.lastButtonEvent = now
	c.lastActivity = now
}

// TouchProductSwitch 刷新商品切换时间戳
func (c *SessionClock) TouchProductSwitch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastProductSwitch = time.Now()
}

// SessionElapsed 会话已持续时长
func (c *SessionClock) SessionElapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.sessionStart)
}

// IdleElapsed 距上次活动的时长
func (c *SessionClock) IdleElapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastActivity)
}

// SinceButton 距上次按钮事件的时长
func (c *SessionClock) SinceButton() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastButtonEvent)
}

// SinceProductSwitch 距上次商品切换的时长（从未切换过则返回会话时长）
func (c *SessionClock) SinceProductSwitch() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastProductSwitch.IsZero() {
		return time.Since(c.sessionStart)
	}
	return time.Since(c.lastProductSwitch)
}
