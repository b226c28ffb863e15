package schedule

// 内置调度器：每天在固定时刻触发一个打卡周期，替代外部定时触发

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"DeadManSwitch/internal/checkin"
	"DeadManSwitch/pkg/errors"
	"DeadManSwitch/utils"
)

// CycleRunner 由 service.CheckInService 实现
type CycleRunner interface {
	RunCycle(ctx context.Context) (*checkin.Outcome, error)
}

type CycleScheduler struct {
	runner   CycleRunner
	times    []string
	location *time.Location
	logger   *zap.Logger
	now      func() time.Time

	runningMu   sync.Mutex
	running     bool
	lastRunTime time.Time
}

func NewCycleScheduler(runner CycleRunner, times []string, location *time.Location, logger *zap.Logger) *CycleScheduler {
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CycleScheduler{
		runner:   runner,
		times:    times,
		location: location,
		logger:   logger,
		now:      time.Now,
	}
}

// Next 下一次触发时刻
func (s *CycleScheduler) Next() (time.Time, error) {
	return utils.NextOccurrence(s.now().In(s.location), s.times)
}

// Run 阻塞直到 ctx 取消，单次周期失败只记录日志
func (s *CycleScheduler) Run(ctx context.Context) error {
	for {
		next, err := s.Next()
		if err != nil {
			return err
		}

		delay := next.Sub(s.now())
		s.logger.Info("Scheduled next check-in cycle",
			zap.Time("next_run", next),
			zap.Duration("delay", delay),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			_ = s.RunOnce(ctx)
		}
	}
}

// RunOnce 执行一个周期；上一次还未结束时直接跳过
func (s *CycleScheduler) RunOnce(ctx context.Context) error {
	s.runningMu.Lock()
	if s.running {
		s.runningMu.Unlock()
		s.logger.Info("Check-in cycle already running, skipping scheduled run")
		return errors.CycleInProgress
	}
	s.running = true
	s.lastRunTime = s.now()
	s.runningMu.Unlock()

	defer func() {
		s.runningMu.Lock()
		s.running = false
		s.runningMu.Unlock()
	}()

	outcome, err := s.runner.RunCycle(ctx)
	if err != nil {
		if stderrors.Is(err, errors.CycleInProgress) {
			s.logger.Info("Check-in cycle held by another process, skipping scheduled run")
		} else {
			s.logger.Error("Scheduled check-in cycle failed", zap.Error(err))
		}
		return err
	}

	s.logger.Info("Scheduled check-in cycle completed",
		zap.Int64("cycle_id", outcome.CycleID),
		zap.String("action", outcome.Action.String()),
		zap.Int("days_elapsed", outcome.Record.DaysElapsed),
	)
	return nil
}

// LastRunTime 最近一次触发时间，未触发过时为零值
func (s *CycleScheduler) LastRunTime() time.Time {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	return s.lastRunTime
}
