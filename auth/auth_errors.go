package auth

import "errors"

var (
	ErrNotSignedIn = errors.New("no signed-in user")
	ErrNoPassword  = errors.New("account signs in with google and has no password")
)
