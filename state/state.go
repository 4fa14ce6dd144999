package state

import (
	"context"
	"errors"
	"sync"

	"github.com/wfunc/bullscows/logger"
	"github.com/wfunc/bullscows/models"
)

// ErrTransitionNotAllowed is returned when a state transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// ErrBackwardTransition is returned when registering a transition that would
// move a room back along its lifecycle.
var ErrBackwardTransition = errors.New("room status cannot move backwards")

// Condition 转换条件，基于房间当前快照判断
type Condition func(room *models.Room) bool

// Hook 进入某状态后执行
type Hook func(ctx context.Context, roomID string)

// Machine 房间生命周期状态机。
// 状态本身保存在存储里，Machine 只负责转换表和进入钩子；
// 真正的状态切换由调用方通过 CAS 完成，成功后调用 Entered。
type Machine struct {
	transitions map[models.RoomStatus]map[models.RoomStatus]Condition // from -> to -> condition
	hooks       map[models.RoomStatus][]Hook
	mutex       sync.RWMutex
}

func NewMachine() *Machine {
	return &Machine{
		transitions: make(map[models.RoomStatus]map[models.RoomStatus]Condition),
		hooks:       make(map[models.RoomStatus][]Hook),
	}
}

// NewLifecycle returns the machine for WAITING -> SETTING_NUMBERS -> PLAYING -> FINISHED.
// PLAYING requires both team secrets.
func NewLifecycle() *Machine {
	m := NewMachine()
	bothSecrets := func(r *models.Room) bool { return r.BothSecretsSet() }
	_ = m.AddTransition(models.StatusWaiting, models.StatusSettingNumbers, nil)
	_ = m.AddTransition(models.StatusWaiting, models.StatusPlaying, bothSecrets)
	_ = m.AddTransition(models.StatusSettingNumbers, models.StatusPlaying, bothSecrets)
	_ = m.AddTransition(models.StatusPlaying, models.StatusFinished, nil)
	return m
}

func (m *Machine) AddTransition(from, to models.RoomStatus, condition Condition) error {
	if from.Rank() < 0 || to.Rank() <= from.Rank() {
		return ErrBackwardTransition
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.transitions[from]; !exists {
		m.transitions[from] = make(map[models.RoomStatus]Condition)
	}
	m.transitions[from][to] = condition
	return nil
}

// CanTransition checks whether room may move to status to right now.
func (m *Machine) CanTransition(room *models.Room, to models.RoomStatus) error {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	conditions, exists := m.transitions[room.Status]
	if !exists {
		return ErrTransitionNotAllowed
	}
	condition, exists := conditions[to]
	if !exists {
		return ErrTransitionNotAllowed
	}
	if condition != nil && !condition(room) {
		return ErrTransitionNotAllowed
	}
	return nil
}

// OnEnter registers hook to run each time a room enters status.
func (m *Machine) OnEnter(status models.RoomStatus, hook Hook) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.hooks[status] = append(m.hooks[status], hook)
}

// Entered runs the hooks for status in registration order. Callers invoke it
// once, after the store accepted the transition.
func (m *Machine) Entered(ctx context.Context, roomID string, status models.RoomStatus) {
	m.mutex.RLock()
	hooks := append([]Hook(nil), m.hooks[status]...)
	m.mutex.RUnlock()

	logger.Log.Infof("房间 %s 进入 %s 状态", roomID, status)
	for _, hook := range hooks {
		hook(ctx, roomID)
	}
}
