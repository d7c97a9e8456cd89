package workerpool

import (
	"context"
	log "log/slog"
	"sync"
)

// Task 任务函数，参数为 Pool 的生命周期 ctx
type Task func(ctx context.Context)

// Pool 固定数量 worker 的任务池，用于把 Redis/Kafka 等外部 IO 移出请求路径
type Pool struct {
	name      string
	taskQueue chan Task
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New 创建一个新的 Pool
func New(name string, workers int, queueSize int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	pool := &Pool{
		name:      name,
		taskQueue: make(chan Task, queueSize),
		ctx:       ctx,
		cancel:    cancel,
	}

	for i := 0; i < workers; i++ {
		pool.wg.Add(1)
		go pool.worker(i)
	}

	log.Info("Worker pool started", "pool", name, "workers", workers, "queue_size", queueSize)
	return pool
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			p.drain(id)
			return
		case task := <-p.taskQueue:
			p.run(id, task)
		}
	}
}

// drain 关闭时执行完队列中剩余的任务
func (p *Pool) drain(id int) {
	for {
		select {
		case task := <-p.taskQueue:
			p.run(id, task)
		default:
			return
		}
	}
}

func (p *Pool) run(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Task panic recovered", "pool", p.name, "worker_id", id, "panic", r)
		}
	}()
	task(context.WithoutCancel(p.ctx))
}

// TrySubmit 尝试提交任务，队列满或已关闭时立即返回 false
func (p *Pool) TrySubmit(task Task) bool {
	if p.ctx.Err() != nil {
		return false
	}
	select {
	case p.taskQueue <- task:
		return true
	default:
		log.Warn("Worker pool queue full, task dropped", "pool", p.name)
		return false
	}
}

// Shutdown 停止接收任务并等待已提交的任务完成
func (p *Pool) Shutdown() {
	p.closeOnce.Do(func() {
		p.cancel()
		p.wg.Wait()
		log.Info("Worker pool shutdown completed", "pool", p.name)
	})
}
