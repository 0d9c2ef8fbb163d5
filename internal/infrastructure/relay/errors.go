package relay

import (
	"errors"
	"fmt"

	"peerline/internal/infrastructure/signaling"
)

var (
	errEmptySignal    = errors.New("signal frame has no message")
	errSenderMismatch = errors.New("message sender does not match joined identity")
)

func errUnexpectedFrame(t signaling.FrameType) error {
	return fmt.Errorf("unexpected frame type: %s", t)
}
