package ws

import (
	"github.com/rs/zerolog"
	"github.com/vedran77/duet/internal/domain"
	"github.com/vedran77/duet/internal/metrics"
	"github.com/vedran77/duet/internal/service"
)

// Dispatcher implements service.Notifier. It pushes a persisted message to
// every live target socket; pushes are independent of each other.
type Dispatcher struct {
	registry *Registry
	log      zerolog.Logger
}

func NewDispatcher(registry *Registry, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		log:      log.With().Str("component", "dispatcher").Logger(),
	}
}

// NotifyNewMessage reports Delivered when at least one socket accepted the
// push and Unreached otherwise. Unreached messages stay in the store only.
func (d *Dispatcher) NotifyNewMessage(msg *domain.Message, target service.DeliveryTarget) domain.DeliveryReport {
	targets := d.registry.Targets(target.ReceiverID, target.RoomID, target.ExcludeSocket)
	report := domain.DeliveryReport{Outcome: domain.Unreached, Targets: len(targets)}

	if len(targets) == 0 {
		metrics.Deliveries.WithLabelValues(string(report.Outcome)).Inc()
		return report
	}

	data, err := encodeEvent(EventTypeReceiveMessage, ReceiveMessagePayload{
		Message:    msg,
		ReceiverID: target.ReceiverID,
	})
	if err != nil {
		d.log.Error().Err(err).Str("message_id", msg.ID).Msg("encoding receive_message")
		report.Failed = len(targets)
		metrics.Deliveries.WithLabelValues(string(report.Outcome)).Inc()
		return report
	}

	for _, c := range targets {
		if c.push(data) {
			report.Pushed++
			metrics.SocketPushes.WithLabelValues("ok").Inc()
			continue
		}
		report.Failed++
		metrics.SocketPushes.WithLabelValues("failed").Inc()
		d.log.Warn().
			Str("message_id", msg.ID).
			Str("socket_id", c.id).
			Str("user_id", string(c.identity.UserID)).
			Msg("push to socket failed")
	}

	if report.Pushed > 0 {
		report.Outcome = domain.Delivered
	}
	metrics.Deliveries.WithLabelValues(string(report.Outcome)).Inc()
	return report
}
