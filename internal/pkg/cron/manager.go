package cron

import (
	"Murmur/internal/job"
	log "log/slog"

	"github.com/robfig/cron/v3"
)

type Manager struct {
	engine     *cron.Cron
	expiryJob  *job.MessageExpiryJob
	expirySpec string
}

func NewCronManager(expiryJob *job.MessageExpiryJob, expirySpec string) *Manager {
	if expirySpec == "" {
		expirySpec = "@every 1m"
	}
	return &Manager{
		engine:     cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		expiryJob:  expiryJob,
		expirySpec: expirySpec,
	}
}

// RegisterJobs 注册定时任务
func (s *Manager) RegisterJobs() error {
	if _, err := s.engine.AddJob(s.expirySpec, s.expiryJob); err != nil {
		return err
	}
	return nil
}

func (s *Manager) Start() {
	log.Info("cron engine started", "expirySpec", s.expirySpec)
	s.engine.Start()
}

// Stop 等待正在执行的任务结束
func (s *Manager) Stop() {
	log.Info("cron engine stopping")
	<-s.engine.Stop().Done()
}
