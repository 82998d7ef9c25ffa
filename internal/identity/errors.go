package identity

import "errors"

// ErrPasswordRequired is returned when a password-wrapped keypair is loaded
// without a password.
var ErrPasswordRequired = errors.New("identity: password required to unlock signing keypair")

// ErrInvalidPassword is returned when unwrapping a password-protected
// keypair fails its AEAD authentication check.
var ErrInvalidPassword = errors.New("identity: invalid password")

// ErrTofuConflict is returned when a fingerprint is already bound to a
// different peer identity, or its TOFU record is marked KeyChanged.
var ErrTofuConflict = errors.New("identity: fingerprint bound to a different peer or key changed")
