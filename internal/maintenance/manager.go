// Package maintenance は期限切れデータの定期掃除を提供します。
//
// 掃除の対象は、期限の切れたログインロックと、実体が消えたあとも
// Identity 別索引に残っているセッショントークンです。どちらも放置して
// 害はありませんが、溜めない方がストアの見通しが良くなります。
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/yourusername/camp-trail/internal/account"
	"github.com/yourusername/camp-trail/internal/session"
)

const (
	taskTypeSweep = "maintenance:sweep"
	queueName     = "maintenance"
	sweepInterval = "@every 1h"
)

// Manager は掃除ジョブの投入と実行をまとめます。
type Manager struct {
	client    *asynq.Client
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	accounts  *account.Store
	sessions  *session.Manager
	logger    *log.Logger
}

// NewManager は Manager を初期化し、定期実行を登録します。
func NewManager(redisURL string, accounts *account.Store, sessions *session.Manager, logger *log.Logger) (*Manager, error) {
	if accounts == nil {
		return nil, errors.New("accounts is nil")
	}
	if sessions == nil {
		return nil, errors.New("sessions is nil")
	}

	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: 1,
			Queues: map[string]int{
				queueName: 1,
			},
		},
	)
	scheduler := asynq.NewScheduler(opt, nil)

	mux := asynq.NewServeMux()
	manager := &Manager{
		client:    client,
		server:    server,
		scheduler: scheduler,
		mux:       mux,
		accounts:  accounts,
		sessions:  sessions,
		logger:    logger,
	}
	mux.HandleFunc(taskTypeSweep, manager.handleSweep)

	task := asynq.NewTask(taskTypeSweep, nil, asynq.Queue(queueName))
	if _, err := scheduler.Register(sweepInterval, task); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to register sweep schedule: %w", err)
	}
	return manager, nil
}

// Start はワーカーとスケジューラーをバックグラウンドで起動します。
func (m *Manager) Start() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && err != asynq.ErrServerClosed {
			if m.logger != nil {
				m.logger.Printf("asynq server stopped with error: %v", err)
			} else {
				log.Printf("asynq server stopped with error: %v", err)
			}
		}
	}()
	go func() {
		if err := m.scheduler.Run(); err != nil {
			if m.logger != nil {
				m.logger.Printf("asynq scheduler stopped with error: %v", err)
			}
		}
	}()
}

// Shutdown はスケジューラー・ワーカー・クライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.scheduler.Shutdown()
	m.server.Shutdown()
	m.client.Close()
	return nil
}

// EnqueueSweep は掃除を即時実行のキューへ投入します。起動直後や
// 管理操作からの手動実行に使います。
func (m *Manager) EnqueueSweep(ctx context.Context) error {
	task := asynq.NewTask(taskTypeSweep, nil, asynq.Queue(queueName))
	_, err := m.client.EnqueueContext(ctx, task, asynq.MaxRetry(1))
	return err
}

func (m *Manager) handleSweep(ctx context.Context, task *asynq.Task) error {
	cleared, err := m.accounts.SweepLockouts(ctx)
	if err != nil {
		return err
	}
	pruned, err := m.sessions.PruneIndexes(ctx)
	if err != nil {
		return err
	}
	if m.logger != nil {
		m.logger.Printf("maintenance sweep: lockouts=%d stale_tokens=%d", cleared, pruned)
	}
	return nil
}
