package auth

import (
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var (
	emailAddressRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	usernameRegex     = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	specialCharRegex  = regexp.MustCompile("[!@#$%^&*()_+\\-=\\[\\]{}|;:,.<>?/\\\\~`]")
)

var commonPasswords = []string{
	"password",
	"123456",
	"password123",
	"12345678",
	"qwerty",
	"abc123",
	"monkey",
	"letmein",
	"password1",
	"admin123",
}

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("emailaddress", func(fl validator.FieldLevel) bool {
		return emailAddressRegex.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernameRegex.MatchString(fl.Field().String())
	})
	return v
}

// FieldError is one message for one form field
type FieldError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// FieldErrors are returned, not raised, for invalid forms
type FieldErrors []FieldError

func (fe FieldErrors) Error() string {
	msgs := make([]string, 0, len(fe))
	for _, e := range fe {
		msgs = append(msgs, e.Name+": "+e.Message)
	}
	return strings.Join(msgs, "; ")
}

// For returns the messages for the named field
func (fe FieldErrors) For(name string) []string {
	var msgs []string
	for _, e := range fe {
		if e.Name == name {
			msgs = append(msgs, e.Message)
		}
	}
	return msgs
}

type LoginForm struct {
	EmailAddress string `json:"emailAddress" validate:"required,emailaddress"`
	Password     string `json:"password" validate:"required,min=8"`
}

type SignupForm struct {
	Username        string `json:"username" validate:"required,min=3,max=30,username"`
	EmailAddress    string `json:"emailAddress" validate:"required,emailaddress"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"omitempty,eqfield=Password"`
}

var fieldMessages = map[string]string{
	"emailAddress.required":     "Email address is required.",
	"emailAddress.emailaddress": "Wrong email address format.",
	"password.required":         "Password is required.",
	"password.min":              "Passwords should be at least 8 characters long.",
	"username.required":         "Username is required.",
	"username.min":              "Username should be between 3 and 30 characters long.",
	"username.max":              "Username should be between 3 and 30 characters long.",
	"username.username":         "Username may only contain letters, numbers and underscores.",
	"confirmPassword.eqfield":   "Passwords do not match.",
}

func validateForm(form any) FieldErrors {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}
	var errs FieldErrors
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return FieldErrors{{Name: "form", Message: err.Error()}}
	}
	for _, fe := range verrs {
		msg, ok := fieldMessages[fe.Field()+"."+fe.Tag()]
		if !ok {
			msg = fmt.Sprintf("failed on '%s' validation", fe.Tag())
		}
		errs = append(errs, FieldError{Name: fe.Field(), Message: msg})
	}
	return errs
}

// ValidateLogin checks the login form. Whitespace-only values count as missing.
func ValidateLogin(form LoginForm) FieldErrors {
	form.EmailAddress = strings.TrimSpace(form.EmailAddress)
	if strings.TrimSpace(form.Password) == "" {
		form.Password = ""
	}
	return validateForm(form)
}

// ValidateSignup checks the signup form including the password rules of ValidatePassword
func ValidateSignup(form SignupForm) FieldErrors {
	form.Username = strings.TrimSpace(form.Username)
	form.EmailAddress = strings.TrimSpace(form.EmailAddress)
	if strings.TrimSpace(form.Password) == "" {
		form.Password = ""
	}

	errs := validateForm(form)
	if form.Password != "" {
		for _, msg := range ValidatePassword(form.Password, form.Username, form.EmailAddress).Errors {
			errs = append(errs, FieldError{Name: "password", Message: msg})
		}
	}
	return errs
}

type Strength string

const (
	StrengthWeak   Strength = "weak"
	StrengthMedium Strength = "medium"
	StrengthStrong Strength = "strong"
)

// PasswordReport is the outcome of ValidatePassword
type PasswordReport struct {
	Valid      bool
	Errors     []string
	Strength   Strength
	Percentage int
}

// ValidatePassword applies the account password rules. username and email are optional;
// when given, the password may not contain the username or the email's local part.
func ValidatePassword(password, username, email string) PasswordReport {
	var errs []string
	lower := strings.ToLower(password)

	if len(password) < 8 {
		errs = append(errs, "Password must be at least 8 characters long")
	}
	if count(password, unicode.IsUpper) == 0 {
		errs = append(errs, "Must contain at least one uppercase letter")
	}
	if count(password, unicode.IsLower) == 0 {
		errs = append(errs, "Must contain at least one lowercase letter")
	}
	if count(password, unicode.IsDigit) == 0 {
		errs = append(errs, "Must contain at least one number")
	}
	if !specialCharRegex.MatchString(password) {
		errs = append(errs, "Must contain at least one special character")
	}
	if slices.Contains(commonPasswords, lower) {
		errs = append(errs, "Password is too common. Please choose a stronger password")
	}
	if len(username) >= 3 && strings.Contains(lower, strings.ToLower(username)) {
		errs = append(errs, "Password cannot contain your username")
	}
	if prefix, _, _ := strings.Cut(email, "@"); len(prefix) >= 3 && strings.Contains(lower, strings.ToLower(prefix)) {
		errs = append(errs, "Password cannot contain your email address")
	}

	score := passwordScore(password)
	return PasswordReport{
		Valid:      len(errs) == 0,
		Errors:     errs,
		Strength:   strengthFor(score),
		Percentage: score * 10,
	}
}

// passwordScore awards up to 10 points: 3 for length, 4 for character classes and 3
// for repeated classes
func passwordScore(password string) int {
	score := 0
	for _, n := range []int{8, 12, 16} {
		if len(password) >= n {
			score++
		}
	}

	upper := count(password, unicode.IsUpper)
	digits := count(password, unicode.IsDigit)
	special := len(specialCharRegex.FindAllString(password, -1))

	for _, present := range []bool{upper > 0, count(password, unicode.IsLower) > 0, digits > 0, special > 0} {
		if present {
			score++
		}
	}
	for _, n := range []int{upper, digits, special} {
		if n >= 2 {
			score++
		}
	}
	return score
}

func strengthFor(score int) Strength {
	switch {
	case score <= 3:
		return StrengthWeak
	case score <= 6:
		return StrengthMedium
	default:
		return StrengthStrong
	}
}

func count(s string, is func(rune) bool) int {
	n := 0
	for _, r := range s {
		if r <= unicode.MaxASCII && is(r) {
			n++
		}
	}
	return n
}
