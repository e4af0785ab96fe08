package escrow

import "errors"

var (
	ErrAlreadyInitialized = errors.New("contract already initialized")
	ErrNotInitialized     = errors.New("contract not initialized")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidFee         = errors.New("invalid fee")
	ErrAgentNotRegistered = errors.New("agent not registered")
	ErrRemittanceNotFound = errors.New("remittance not found")
	ErrInvalidStatus      = errors.New("invalid remittance status")
	ErrNoFeesToWithdraw   = errors.New("no fees to withdraw")
	ErrUnauthorized       = errors.New("unauthorized")
)
