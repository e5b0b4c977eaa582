package dialog

import (
	"errors"
	"fmt"
	"sync"
)

// Name 对话框名称，取值固定
type Name string

const (
	// Second 审批后展示托管详情的二级对话框
	Second Name = "second"
	// Success 放款 / 注资成功对话框
	Success Name = "success"
	// Fund 注资金额输入对话框
	Fund Name = "fund"
)

// Names 全部已知对话框，顺序固定
var Names = []Name{Second, Success, Fund}

// ErrUnknownDialog 对话框名称不在固定集合内
var ErrUnknownDialog = errors.New("unknown dialog")

// ConfigurationError 接线错误，不可恢复
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

// ErrNoProvider 在 scope 之外访问对话框状态
var ErrNoProvider = &ConfigurationError{Message: "dialog state must be used within a provider"}

// ParseName 解析外部传入的对话框名称
func ParseName(s string) (Name, error) {
	for _, n := range Names {
		if string(n) == s {
			return n, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDialog, s)
}

// State 单个对话框的状态快照与 setter。
// 同一对话框的标志位未变化时 State 返回同一个指针。
type State struct {
	Name      Name
	IsOpen    bool
	SetIsOpen func(open bool) error
}

// Orchestrator 维护一组互相独立的对话框开关，不强制互斥
type Orchestrator struct {
	mu     sync.Mutex
	open   map[Name]bool
	states map[Name]*State
}

// New 创建 Orchestrator，所有对话框关闭
func New() *Orchestrator {
	o := &Orchestrator{
		open:   make(map[Name]bool, len(Names)),
		states: make(map[Name]*State, len(Names)),
	}
	for _, n := range Names {
		o.open[n] = false
	}
	return o
}

func known(name Name) error {
	for _, n := range Names {
		if n == name {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownDialog, name)
}

// SetOpen 设置开关，重复设置相同值不产生变化。返回值表示是否发生了变化。
func (o *Orchestrator) SetOpen(name Name, open bool) (bool, error) {
	if o == nil {
		return false, ErrNoProvider
	}
	if err := known(name); err != nil {
		return false, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.open[name] == open {
		return false, nil
	}
	o.open[name] = open
	// 只让这个对话框的 State 失效
	delete(o.states, name)
	return true, nil
}

// Open 打开对话框
func (o *Orchestrator) Open(name Name) error {
	_, err := o.SetOpen(name, true)
	return err
}

// Close 关闭对话框
func (o *Orchestrator) Close(name Name) error {
	_, err := o.SetOpen(name, false)
	return err
}

// IsOpen 查询开关
func (o *Orchestrator) IsOpen(name Name) (bool, error) {
	if o == nil {
		return false, ErrNoProvider
	}
	if err := known(name); err != nil {
		return false, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	return o.open[name], nil
}

// State 返回对话框状态。返回的 *State 在该对话框开关变化前保持同一身份。
func (o *Orchestrator) State(name Name) (*State, error) {
	if o == nil {
		return nil, ErrNoProvider
	}
	if err := known(name); err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if s, ok := o.states[name]; ok {
		return s, nil
	}
	s := &State{
		Name:   name,
		IsOpen: o.open[name],
		SetIsOpen: func(open bool) error {
			_, err := o.SetOpen(name, open)
			return err
		},
	}
	o.states[name] = s
	return s, nil
}

// Snapshot 所有对话框当前开关
func (o *Orchestrator) Snapshot() (map[Name]bool, error) {
	if o == nil {
		return nil, ErrNoProvider
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	out := make(map[Name]bool, len(o.open))
	for n, v := range o.open {
		out[n] = v
	}
	return out, nil
}

// CloseAll scope 卸载时关闭所有对话框
func (o *Orchestrator) CloseAll() error {
	if o == nil {
		return ErrNoProvider
	}
	for _, n := range Names {
		if err := o.Close(n); err != nil {
			return err
		}
	}
	return nil
}
