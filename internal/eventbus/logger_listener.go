package eventbus

import (
	"context"

	"github.com/annel0/rpgng/internal/logging"
)

func busLogger() *logging.Logger { return logging.GetComponentLogger("eventbus") }

// StartLoggingListener подписывается на все события и пишет их в лог.
func StartLoggingListener(bus EventBus) (Subscription, error) {
	log := busLogger()
	sub, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		log.Debug("%s %s src=%s payload=%s", ev.ID, ev.EventType, ev.Source, ev.Payload)
	})
	if err != nil {
		return nil, err
	}
	log.Info("logging listener subscribed to all events")
	return sub, nil
}
