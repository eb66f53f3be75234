package service

import (
	"context"

	"github.com/google/uuid"

	"biliticket/invitehub/internal/model"
)

// RegistrationHooks is what a host registration flow calls at its two lifecycle points.
type RegistrationHooks interface {
	// OnRegistrationSubmitted vets the submitted code before an account is
	// created. It returns (nil, nil) when invite codes are not required.
	OnRegistrationSubmitted(ctx context.Context, code, ip string) (*model.CodeView, error)
	// OnUserCreated spends one use of the code vetted earlier.
	OnUserCreated(ctx context.Context, codeID uuid.UUID, userID, ip string) bool
}

type registrationHooks struct {
	invites  InviteService
	settings SettingsProvider
}

func NewRegistrationHooks(invites InviteService, settings SettingsProvider) RegistrationHooks {
	return &registrationHooks{invites: invites, settings: settings}
}

func (h *registrationHooks) OnRegistrationSubmitted(ctx context.Context, code, ip string) (*model.CodeView, error) {
	cfg, err := h.settings.Current(ctx)
	if err != nil {
		return nil, err
	}
	if !cfg.RequireInviteCode {
		return nil, nil
	}
	return h.invites.Validate(ctx, code, ip)
}

func (h *registrationHooks) OnUserCreated(ctx context.Context, codeID uuid.UUID, userID, ip string) bool {
	return h.invites.Consume(ctx, codeID, userID, ip)
}
