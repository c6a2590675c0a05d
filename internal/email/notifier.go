package email

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/authbridge/internal/observability/logger"
)

// Notifier sends the new-account notice for auto-created accounts. Delivery
// is fire and forget: it runs in its own goroutine, failures are logged and
// never affect the login that triggered it.
type Notifier struct {
	sender      Sender
	serviceName string
}

// NewNotifier creates a Notifier. serviceName appears in the subject line.
func NewNotifier(sender Sender, serviceName string) *Notifier {
	if serviceName == "" {
		serviceName = "authbridge"
	}
	return &Notifier{sender: sender, serviceName: serviceName}
}

// AccountCreated sends the welcome notice asynchronously.
func (n *Notifier) AccountCreated(ctx context.Context, login string) {
	if n.sender == nil || login == "" {
		return
	}
	log := logger.From(ctx).With(
		logger.Component("email.Notifier"),
		logger.String("to", login),
	)
	go func() {
		subject := fmt.Sprintf("Welcome to %s", n.serviceName)
		text := fmt.Sprintf(
			"An account was created for %s using an external identity provider.\n\n"+
				"If this was not you, contact support.\n", login)
		if err := n.sender.Send(login, subject, "", text); err != nil {
			log.Error("new account notice failed", logger.Err(err))
		}
	}()
}
