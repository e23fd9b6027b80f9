package usergrp

import "github.com/civicledger/participation/business/sys/validate"

type newUser struct {
	Username string `json:"username" validate:"required,min=2,max=50"`
	Email    string `json:"email" validate:"required,email"`
}

// Validate checks the data in the model is considered clean.
func (nu newUser) Validate() error {
	return validate.Check(nu)
}
