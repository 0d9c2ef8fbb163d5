package notify

import (
	"peerline/internal/core/ports"

	"go.uber.org/zap"
)

// LogNotifier writes user-facing notifications to the structured log. The
// hosting platform replaces this with its own toast/push sink; the agent
// only guarantees fire-and-forget delivery.
type LogNotifier struct {
	logger *zap.SugaredLogger
}

func NewLogNotifier(logger *zap.SugaredLogger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(kind ports.NotificationKind, title, body string) {
	switch kind {
	case ports.NotifyError:
		n.logger.Warnw("notification", "kind", kind, "title", title, "body", body)
	default:
		n.logger.Infow("notification", "kind", kind, "title", title, "body", body)
	}
}
