package session

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"escrowflow/internal/dialog"
)

// ErrScopeNotFound 会话不存在、已过期或不属于该用户
var ErrScopeNotFound = errors.New("session scope not found")

// Scope 一个前端会话对应的对话框作用域
type Scope struct {
	ID        string
	UserID    int
	Dialogs   *dialog.Orchestrator
	CreatedAt time.Time
}

// Manager 管理会话作用域的挂载与卸载
type Manager struct {
	scopes *expirable.LRU[string, *Scope]
	logger *zap.Logger
}

// NewManager 创建 Manager，capacity 为最大会话数，ttl 为空闲过期时间
func NewManager(capacity int, ttl time.Duration, logger *zap.Logger) *Manager {
	m := &Manager{logger: logger}
	m.scopes = expirable.NewLRU[string, *Scope](capacity, m.onEvict, ttl)
	return m
}

func (m *Manager) onEvict(id string, s *Scope) {
	// 卸载后迟到的结算只会落在已关闭的 orchestrator 上
	_ = s.Dialogs.CloseAll()
	m.logger.Debug("Session scope released",
		zap.String("session_id", id),
		zap.Int("user_id", s.UserID),
	)
}

// Mount 为用户创建新的会话作用域，所有对话框关闭
func (m *Manager) Mount(userID int) (*Scope, error) {
	if userID <= 0 {
		return nil, errors.New("invalid user id")
	}

	s := &Scope{
		ID:        uuid.NewString(),
		UserID:    userID,
		Dialogs:   dialog.New(),
		CreatedAt: time.Now(),
	}
	m.scopes.Add(s.ID, s)

	m.logger.Info("Session scope mounted",
		zap.String("session_id", s.ID),
		zap.Int("user_id", userID),
	)
	return s, nil
}

// Lookup 查找属于 userID 的会话作用域
func (m *Manager) Lookup(userID int, id string) (*Scope, error) {
	s, ok := m.scopes.Get(id)
	if !ok || s.UserID != userID {
		return nil, ErrScopeNotFound
	}
	return s, nil
}

// Unmount 卸载会话作用域
func (m *Manager) Unmount(userID int, id string) error {
	if _, err := m.Lookup(userID, id); err != nil {
		return err
	}
	m.scopes.Remove(id)

	m.logger.Info("Session scope unmounted",
		zap.String("session_id", id),
		zap.Int("user_id", userID),
	)
	return nil
}

// Len 当前存活的会话数
func (m *Manager) Len() int {
	return m.scopes.Len()
}

// Purge 卸载全部会话，进程退出前调用
func (m *Manager) Purge() {
	m.scopes.Purge()
}
