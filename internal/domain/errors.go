package domain

import "errors"

var (
	ErrInvalidRole       = errors.New("invalid role")
	ErrRoleNotFound      = errors.New("role grant not found")
	ErrRoleNotHeld       = errors.New("role not held")
	ErrUserNotFound      = errors.New("user not found")
	ErrToolNotFound      = errors.New("tool not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrPrimaryRoleRevoke = errors.New("primary role cannot be revoked")
)
