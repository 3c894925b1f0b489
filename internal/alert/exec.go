package alert

import (
	"context"
	"log"
	"os/exec"
	"time"

	"github.com/kbyrne/coolwatch/internal/models"
)

// ExecTimeout bounds how long an alert command may run.
const ExecTimeout = 10 * time.Second

// ExecNotifier runs an operator-configured local command when a session
// escalates, e.g. a script driving a buzzer or light relay on the kiosk.
// The command is fixed in the daemon config; only the item name and the new
// status are passed as arguments, so there is nothing injectable to execute.
type ExecNotifier struct {
	command string
}

// NewExecNotifier creates a notifier for the given command. An empty command
// yields a no-op notifier.
func NewExecNotifier(command string) *ExecNotifier {
	return &ExecNotifier{command: command}
}

// Notify runs the alert command for warning/overdue transitions. Failures are
// logged and swallowed.
func (n *ExecNotifier) Notify(ev models.StatusChange) {
	if n.command == "" || !Escalation(ev) {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), ExecTimeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, n.command, ev.Session.ItemName, string(ev.New))
		if out, err := cmd.CombinedOutput(); err != nil {
			log.Printf("Alert command failed: %v (output: %s)", err, out)
		}
	}()
}
