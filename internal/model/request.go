package model

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// MinPasswordLength is the request-level floor; the configurable password
// policy may demand more.
const MinPasswordLength = 6

var errPasswordMismatch = errors.New("passwords do not match")

type RegisterRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	Username        string `json:"username,omitempty"`
	FirstName       string `json:"firstName,omitempty"`
	LastName        string `json:"lastName,omitempty"`
}

func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(MinPasswordLength, 0)),
		validation.Field(&r.ConfirmPassword, validation.Required, validation.By(func(value interface{}) error {
			if confirm, _ := value.(string); confirm != r.Password {
				return errPasswordMismatch
			}
			return nil
		})),
		validation.Field(&r.Username, validation.Length(0, 256)),
		validation.Field(&r.FirstName, validation.Length(0, 256)),
		validation.Field(&r.LastName, validation.Length(0, 256)),
	)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}
