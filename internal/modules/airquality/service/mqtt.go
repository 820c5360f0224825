package service

import (
	"context"

	"github.com/wyolum/home-monitor/internal/modules/airquality/types"
	"github.com/wyolum/home-monitor/internal/mqtt"
)

// Register routes every decoded message from subscriber into Ingest.
func (s *Service) Register(subscriber mqtt.MQTTSubscriber) {
	subscriber.SetMessageHandler(func(ctx context.Context, raw types.RawRecord) error {
		reading, result, err := s.Ingest(ctx, raw)
		if err != nil {
			return err
		}
		s.logger.Debug("stored reading",
			"time", reading.Time.Format(types.TimeLayout),
			"result", result.String(),
		)
		return nil
	})
}
