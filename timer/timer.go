// timer/timer.go
package timer

import (
	"container/heap"
	"sync"
	"time"
)

type TimerTask struct {
	Id       int64
	Execute  time.Time
	Callback func()
	index    int
}

type TimerQueue []*TimerTask

func (q TimerQueue) Len() int { return len(q) }

func (q TimerQueue) Less(i, j int) bool {
	return q[i].Execute.Before(q[j].Execute)
}

func (q TimerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *TimerQueue) Push(x interface{}) {
	n := len(*q)
	task := x.(*TimerTask)
	task.index = n
	*q = append(*q, task)
}

func (q *TimerQueue) Pop() interface{} {
	old := *q
	n := len(old)
	task := old[n-1]
	task.index = -1
	*q = old[0 : n-1]
	return task
}

// DefaultResolution 默认扫描间隔
const DefaultResolution = 100 * time.Millisecond

// TimerManager 基于最小堆的延迟回调调度器。回调在各自的 goroutine 中执行，
// 不保证同一时刻到期的任务之间的先后顺序。
type TimerManager struct {
	queue      TimerQueue
	mutex      sync.Mutex
	nextId     int64
	resolution time.Duration
	now        func() time.Time
	done       chan struct{}
	stopOnce   sync.Once
}

func NewTimerManager() *TimerManager {
	return NewTimerManagerWithResolution(DefaultResolution)
}

func NewTimerManagerWithResolution(resolution time.Duration) *TimerManager {
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	manager := &TimerManager{
		queue:      make(TimerQueue, 0),
		nextId:     1,
		resolution: resolution,
		now:        time.Now,
		done:       make(chan struct{}),
	}
	heap.Init(&manager.queue)
	go manager.process()
	return manager
}

// ScheduleAfter runs fn once after d. 任务不可取消，回调自己判断是否过期。
func (m *TimerManager) ScheduleAfter(d time.Duration, fn func()) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	heap.Push(&m.queue, &TimerTask{
		Id:       m.nextId,
		Execute:  m.now().Add(d),
		Callback: fn,
	})
	m.nextId++
}

// Pending 尚未触发的任务数
func (m *TimerManager) Pending() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.queue.Len()
}

// Stop 停止调度，未触发的任务被丢弃
func (m *TimerManager) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
}

// due pops every task whose time has come.
func (m *TimerManager) due() []*TimerTask {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := m.now()
	var fired []*TimerTask
	for m.queue.Len() > 0 {
		task := m.queue[0]
		if task.Execute.After(now) {
			break
		}

		heap.Pop(&m.queue)
		fired = append(fired, task)
	}
	return fired
}

func (m *TimerManager) process() {
	ticker := time.NewTicker(m.resolution)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, task := range m.due() {
				go task.Callback()
			}
		case <-m.done:
			return
		}
	}
}
