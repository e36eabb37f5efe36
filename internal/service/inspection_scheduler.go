package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/logger"
)

// InspectionScheduler периодически завершает сданные сделки, по которым
// покупатель не отреагировал за срок проверки.
type InspectionScheduler struct {
	escrow    *EscrowService
	interval  time.Duration
	batchSize int
}

func NewInspectionScheduler(escrow *EscrowService, interval time.Duration, batchSize int) *InspectionScheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &InspectionScheduler{escrow: escrow, interval: interval, batchSize: batchSize}
}

// Run крутит цикл до отмены контекста. Ошибки одного прохода не
// останавливают следующий.
func (s *InspectionScheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.Log.WithField("interval", s.interval.String()).Info("inspection scheduler: запущен")

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("inspection scheduler: остановлен")
			return ctx.Err()
		case <-ticker.C:
			if n := s.escrow.AutoCompleteExpired(ctx, s.batchSize); n > 0 {
				logger.Log.WithFields(logrus.Fields{"completed": n}).
					Info("inspection scheduler: сделки завершены по истечении срока проверки")
			}
		}
	}
}
