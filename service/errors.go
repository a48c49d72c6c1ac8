package service

import "errors"

var (
	ErrBankNotFound      = errors.New("bank not found")
	ErrAccountNotFound   = errors.New("account not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrNotPermitted      = errors.New("not permitted")
)
