package dispatch

import (
	"sync"

	"tg_zulip_bridge/internal/logger"
)

// Task 待执行的处理任务
type Task func()

// Dispatcher 按群组分派的顺序执行器
// 每个群组一个 worker 协程和独立队列：同一群组的事件严格按到达顺序处理
// （新消息的关联写入 happens-before 同一消息的编辑），不同群组之间并行
type Dispatcher struct {
	mu        sync.Mutex
	queues    map[int64]chan Task
	wg        sync.WaitGroup
	queueSize int
	closed    bool
}

// NewDispatcher 创建分派器
// queueSize: 每个群组队列的容量
func NewDispatcher(queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Dispatcher{
		queues:    make(map[int64]chan Task),
		queueSize: queueSize,
	}
}

// Submit 提交任务到指定群组的队列
// 队列满时丢弃并记录警告，避免单个阻塞的群组拖垮整个入站流
func (d *Dispatcher) Submit(chatID int64, task Task) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		logger.WithChat(chatID).Warn("Dispatcher closed, task dropped")
		return
	}
	queue, ok := d.queues[chatID]
	if !ok {
		queue = make(chan Task, d.queueSize)
		d.queues[chatID] = queue
		d.wg.Add(1)
		go d.worker(chatID, queue)
	}
	d.mu.Unlock()

	select {
	case queue <- task:
		// 任务成功提交
	default:
		logger.WithChat(chatID).Warn("Queue is full, task dropped")
	}
}

// worker 群组工作协程
func (d *Dispatcher) worker(chatID int64, queue chan Task) {
	defer d.wg.Done()

	logger.WithChat(chatID).Debug("Worker started")

	for task := range queue {
		// 执行任务，带 panic recovery
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.WithChat(chatID).Errorf("Task panic recovered: %v", r)
				}
			}()
			task()
		}()
	}

	logger.WithChat(chatID).Debug("Worker stopped")
}

// Shutdown 优雅关闭分派器
// 关闭所有队列并等待排队中的任务执行完毕
func (d *Dispatcher) Shutdown() {
	logger.L().Info("Shutting down dispatcher...")

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, queue := range d.queues {
		close(queue)
	}
	d.mu.Unlock()

	d.wg.Wait()

	logger.L().Info("Dispatcher shut down successfully")
}
