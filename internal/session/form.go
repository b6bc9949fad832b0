package session

import (
	"regexp"

	"agrispy.dev/agrispy/internal/identity"
)

var emailPattern = regexp.MustCompile(`\S+@\S+\.\S+`)

const minPasswordLength = 6

// SignupForm is the raw signup submission.
type SignupForm struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
	Role            string
}

// FieldErrors maps a form field to its message.
type FieldErrors map[string]string

// Validate returns the per-field messages, or nil when the form is valid.
func (f SignupForm) Validate() FieldErrors {
	errs := FieldErrors{}

	if f.Name == "" {
		errs["name"] = "Name is required"
	}

	switch {
	case f.Email == "":
		errs["email"] = "Email is required"
	case !emailPattern.MatchString(f.Email):
		errs["email"] = "Email is invalid"
	}

	switch {
	case f.Password == "":
		errs["password"] = "Password is required"
	case len(f.Password) < minPasswordLength:
		errs["password"] = "Password must be at least 6 characters"
	}

	if f.Password != f.ConfirmPassword {
		errs["confirmPassword"] = "Passwords do not match"
	}

	if _, err := identity.ParseRole(f.role()); err != nil {
		errs["role"] = "Role is invalid"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ParsedRole returns the selected role, farmer when none was chosen.
func (f SignupForm) ParsedRole() (identity.Role, error) {
	return identity.ParseRole(f.role())
}

func (f SignupForm) role() string {
	if f.Role == "" {
		return string(identity.RoleFarmer)
	}
	return f.Role
}
