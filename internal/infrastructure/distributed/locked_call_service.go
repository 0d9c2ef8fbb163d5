package distributed

import (
	"context"
	"sync"
	"time"

	"peerline/internal/core/domain"
	"peerline/internal/core/ports"
	"peerline/pkg/distributed"

	"go.uber.org/zap"
)

// LockedCallService enforces the single-active-call rule across agent
// instances. The inner service already refuses a second call within one
// process; this decorator extends the guarantee to deployments where a
// user's requests may land on different instances, by holding a Redis
// lock keyed on the local participant for the lifetime of the call.
type LockedCallService struct {
	inner    ports.CallService
	identity ports.Identity
	locks    *distributed.LockManager
	lockTTL  time.Duration
	logger   *zap.SugaredLogger

	mu   sync.Mutex
	held map[domain.ParticipantID]*distributed.DistributedLock
}

func NewLockedCallService(
	inner ports.CallService,
	identity ports.Identity,
	locks *distributed.LockManager,
	lockTTL time.Duration,
	logger *zap.SugaredLogger,
) *LockedCallService {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &LockedCallService{
		inner:    inner,
		identity: identity,
		locks:    locks,
		lockTTL:  lockTTL,
		logger:   logger,
		held:     make(map[domain.ParticipantID]*distributed.DistributedLock),
	}
}

func (s *LockedCallService) Start(ctx context.Context, remote domain.ParticipantID, role domain.CallRole, video bool) (*domain.CallSession, error) {
	local, err := s.identity.CurrentUserID(ctx)
	if err != nil {
		return nil, domain.ErrAuthRequired
	}

	lock := s.locks.AcquireLock("call:"+string(local), s.lockTTL)
	acquired, err := lock.TryLock(ctx)
	if err != nil {
		s.logger.Warnw("call lock unavailable, proceeding with local guarantee only",
			"participant", local,
			"error", err,
		)
	} else if !acquired {
		return nil, domain.ErrCallActive
	}

	session, err := s.inner.Start(ctx, remote, role, video)
	if err != nil {
		if acquired {
			s.release(ctx, local, lock)
		}
		return nil, err
	}

	if acquired {
		s.mu.Lock()
		s.held[local] = lock
		s.mu.Unlock()
	}
	return session, nil
}

func (s *LockedCallService) End(ctx context.Context) error {
	err := s.inner.End(ctx)

	if local, idErr := s.identity.CurrentUserID(ctx); idErr == nil {
		s.mu.Lock()
		lock := s.held[local]
		delete(s.held, local)
		s.mu.Unlock()
		if lock != nil {
			s.release(ctx, local, lock)
		}
	}
	return err
}

func (s *LockedCallService) ToggleMute(ctx context.Context) (bool, error) {
	return s.inner.ToggleMute(ctx)
}

func (s *LockedCallService) ToggleVideo(ctx context.Context) (bool, error) {
	return s.inner.ToggleVideo(ctx)
}

func (s *LockedCallService) Active(ctx context.Context) (*domain.CallSession, error) {
	return s.inner.Active(ctx)
}

func (s *LockedCallService) release(ctx context.Context, local domain.ParticipantID, lock *distributed.DistributedLock) {
	if err := lock.Unlock(ctx); err != nil {
		s.logger.Warnw("failed to release call lock",
			"participant", local,
			"error", err,
		)
	}
}
