package types

import "errors"

// Error definitions
var (
	ErrMalformedMessage = errors.New("malformed message")
	ErrWrongNetwork     = errors.New("message for wrong network")
	ErrInsufficientPoW  = errors.New("insufficient proof of work")
)
