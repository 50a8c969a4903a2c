package auth

import "errors"

var (
	// ErrMissingCredential means no bearer token was presented.
	ErrMissingCredential = errors.New("missing bearer token")
	// ErrInvalidCredential means the token failed signature or shape checks.
	ErrInvalidCredential = errors.New("invalid token")
	// ErrExpiredCredential means the token was valid but past its expiry.
	ErrExpiredCredential = errors.New("token expired")
	// ErrStaleCredential means the token was issued before the actor's last
	// credential change and is no longer honored.
	ErrStaleCredential = errors.New("token predates credential change")
	// ErrUnknownActor means the token's subject no longer resolves to an
	// active actor.
	ErrUnknownActor = errors.New("unknown or inactive actor")
	// ErrInsufficientRole means the actor's role is outside the allowed set.
	ErrInsufficientRole = errors.New("insufficient role")
	// ErrTrainingRequired means the operation requires completed compliance
	// training.
	ErrTrainingRequired = errors.New("compliance training required")
	// ErrInsufficientAccessTier means the actor's tier is below the gate.
	ErrInsufficientAccessTier = errors.New("insufficient access tier")
)
