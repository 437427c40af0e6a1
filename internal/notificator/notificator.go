// Package notificator delivers operator alerts (persistence trouble, weekly
// publishes) over Telegram. It is outbound only and degrades to a no-op when
// no bot token is configured.
package notificator

import (
	"runtime/debug"

	"github.com/davidebtc/zapboard/pkg/logger"
)

type Notificator struct {
	logger *logger.Logger

	TelegramNotificator *TelegramNotificator
}

func NewNotificator(logger *logger.Logger, telNotif *TelegramNotificator) *Notificator {
	return &Notificator{logger: logger, TelegramNotificator: telNotif}
}

// safeCall runs a function with panic recovery (synchronous, no goroutine spawning)
func (n *Notificator) safeCall(fn func(), context string) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("Function panicked",
				"context", context,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

// Alert sends an operator message. Failures are logged, never propagated;
// alerting must not affect pipeline state.
func (n *Notificator) Alert(message string) {
	if n.TelegramNotificator == nil {
		n.logger.Debug("Operator alert (telegram disabled): ", message)
		return
	}
	n.safeCall(func() { n.TelegramNotificator.SendNotification(message) }, "telegramAlert")
}
