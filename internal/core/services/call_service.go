package services

import (
	"context"
	"fmt"
	"sync"

	"peerline/internal/core/domain"
	"peerline/internal/core/ports"
	"peerline/pkg/tracing"
	"peerline/pkg/validation"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// callService owns at most one call session per agent instance. The entry
// point is refused while a session is active, so the one-session invariant
// holds by construction.
type callService struct {
	cfg       ControllerConfig
	identity  ports.Identity
	signaling ports.SignalingChannel
	capture   ports.MediaCapture
	connector ports.PeerConnector
	notifier  ports.Notifier
	observer  ports.CallObserver
	logger    *zap.SugaredLogger

	mu     sync.Mutex
	active *CallController
}

func NewCallService(
	cfg ControllerConfig,
	identity ports.Identity,
	signaling ports.SignalingChannel,
	capture ports.MediaCapture,
	connector ports.PeerConnector,
	notifier ports.Notifier,
	observer ports.CallObserver,
	logger *zap.SugaredLogger,
) ports.CallService {
	return &callService{
		cfg:       cfg,
		identity:  identity,
		signaling: signaling,
		capture:   capture,
		connector: connector,
		notifier:  notifier,
		observer:  observer,
		logger:    logger,
	}
}

func (s *callService) Start(ctx context.Context, remote domain.ParticipantID, role domain.CallRole, video bool) (*domain.CallSession, error) {
	local, err := s.identity.CurrentUserID(ctx)
	if err != nil {
		if s.notifier != nil {
			s.notifier.Notify(ports.NotifyError, "Sign in required", "You must be signed in to start a call.")
		}
		return nil, domain.ErrAuthRequired
	}

	if err := validation.ValidateParticipantID(string(remote)); err != nil {
		return nil, fmt.Errorf("invalid remote participant: %w", err)
	}
	if role != domain.RoleCaller && role != domain.RoleCallee {
		return nil, fmt.Errorf("invalid call role: %s", role)
	}

	s.mu.Lock()
	if s.active != nil && !s.active.State().Terminal() {
		s.mu.Unlock()
		return nil, domain.ErrCallActive
	}

	ctrl := NewCallController(
		domain.SessionID(uuid.NewString()),
		local, remote, role, video,
		s.cfg,
		s.signaling, s.capture, s.connector,
		s.notifier, s.observer,
		s.logger,
	)
	s.active = ctrl
	s.mu.Unlock()

	ctx, span := tracing.TraceCallOperation(ctx, "start", string(ctrl.sessionID))
	defer span.End()

	if err := ctrl.Start(ctx); err != nil {
		tracing.RecordError(ctx, err)
		s.mu.Lock()
		if s.active == ctrl {
			s.active = nil
		}
		s.mu.Unlock()
		return nil, err
	}

	session := ctrl.Snapshot()
	return &session, nil
}

func (s *callService) End(ctx context.Context) error {
	s.mu.Lock()
	ctrl := s.active
	s.active = nil
	s.mu.Unlock()

	if ctrl == nil {
		return domain.ErrNoActiveCall
	}

	_, span := tracing.TraceCallOperation(ctx, "end", string(ctrl.sessionID))
	defer span.End()

	ctrl.End()
	return nil
}

func (s *callService) ToggleMute(ctx context.Context) (bool, error) {
	ctrl := s.current()
	if ctrl == nil {
		return false, domain.ErrNoActiveCall
	}
	return ctrl.ToggleMute()
}

func (s *callService) ToggleVideo(ctx context.Context) (bool, error) {
	ctrl := s.current()
	if ctrl == nil {
		return false, domain.ErrNoActiveCall
	}
	return ctrl.ToggleVideo()
}

func (s *callService) Active(ctx context.Context) (*domain.CallSession, error) {
	ctrl := s.current()
	if ctrl == nil {
		return nil, domain.ErrNoActiveCall
	}
	session := ctrl.Snapshot()
	return &session, nil
}

func (s *callService) current() *CallController {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}
