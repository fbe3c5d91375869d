package auth

import (
	"chat-client/errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type LoginRequest struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,max=72"`
}

type RegisterRequest struct {
	Email    string `validate:"required,email"`
	Username string `validate:"required,min=3,max=32"`
	Password string `validate:"required,min=8,max=72"`
}

// ConfirmRequest is the one-time code sent by email after registration.
type ConfirmRequest struct {
	Email string `validate:"required,email"`
	Code  string `validate:"required,len=6,numeric"`
}

func ValidateLogin(req LoginRequest) error {
	return check(req)
}

func ValidateRegister(req RegisterRequest) error {
	return check(req)
}

func ValidateConfirm(req ConfirmRequest) error {
	return check(req)
}

func check(req any) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidRequest, err)
	}
	return nil
}
