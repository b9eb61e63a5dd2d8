// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/account"
)

// identityForm carries the identity tuple. Values are taken verbatim.
// The byte cap keeps the whole tuple within the PostgreSQL btree row limit
// of the unique identity index.
type identityForm struct {
	Username    string `form:"username" validate:"max=256,maxbytes=600"`
	FirstName   string `form:"firstName" validate:"max=256,maxbytes=600"`
	DateOfBirth string `form:"dateOfBirth" validate:"max=256,maxbytes=600"`
	Email       string `form:"email" validate:"max=256,maxbytes=600"`
}

func (f identityForm) identity() account.Identity {
	return account.Identity{
		Username:    f.Username,
		FirstName:   f.FirstName,
		DateOfBirth: f.DateOfBirth,
		Email:       f.Email,
	}
}

type credentialsForm struct {
	identityForm
	Password string `form:"password" validate:"max=1024"`
}

type resetForm struct {
	ID       string `form:"id" validate:"required,max=256"`
	Password string `form:"password" validate:"max=1024"`
}

func parseIdentity(v url.Values) identityForm {
	firstName := v.Get("firstName")
	if firstName == "" {
		// Older clients post the first name as "prenume".
		firstName = v.Get("prenume")
	}
	return identityForm{
		Username:    v.Get("username"),
		FirstName:   firstName,
		DateOfBirth: v.Get("dateOfBirth"),
		Email:       v.Get("email"),
	}
}

func parseCredentials(v url.Values) credentialsForm {
	return credentialsForm{identityForm: parseIdentity(v), Password: v.Get("password")}
}

func parseReset(v url.Values) resetForm {
	return resetForm{ID: v.Get("id"), Password: v.Get("password")}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("form")
	})
	if err := v.RegisterValidation("maxbytes", maxBytes); err != nil {
		panic(err)
	}
	return v
}

// maxBytes reports whether a string field is at most param bytes of UTF-8.
func maxBytes(fl validator.FieldLevel) bool {
	limit, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return len(fl.Field().String()) <= limit
}

// validateForm checks form and reports the first failing field as a
// WEB_FORM_INVALID error.
func validateForm(v *validator.Validate, form any) error {
	err := v.Struct(form)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return oops.Code("WEB_VALIDATOR_FAILED").Wrap(err)
	}

	first := verrs[0]
	var msg string
	switch first.Tag() {
	case "required":
		msg = fmt.Sprintf("field '%s' is required", first.Field())
	case "max":
		msg = fmt.Sprintf("field '%s' must be at most %s characters long", first.Field(), first.Param())
	case "maxbytes":
		msg = fmt.Sprintf("field '%s' must be at most %s bytes long", first.Field(), first.Param())
	default:
		msg = fmt.Sprintf("field '%s' failed validation '%s'", first.Field(), first.Tag())
	}
	return oops.Code(account.CodeFormInvalid).
		With("field", first.Field()).
		With("rule", first.Tag()).
		Errorf("%s", msg)
}
