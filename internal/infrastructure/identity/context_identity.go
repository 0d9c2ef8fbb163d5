package identity

import (
	"context"

	"peerline/internal/core/domain"
)

// ContextIdentity resolves the local participant from the request context
// populated by the auth middleware.
type ContextIdentity struct{}

func NewContextIdentity() *ContextIdentity {
	return &ContextIdentity{}
}

func (i *ContextIdentity) CurrentUserID(ctx context.Context) (domain.ParticipantID, error) {
	v := ctx.Value("user_id")
	if v == nil {
		return "", domain.ErrAuthRequired
	}

	switch id := v.(type) {
	case domain.ParticipantID:
		if id != "" {
			return id, nil
		}
	case string:
		if id != "" {
			return domain.ParticipantID(id), nil
		}
	}

	return "", domain.ErrAuthRequired
}
