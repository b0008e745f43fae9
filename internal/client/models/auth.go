package models

// AuthState is tri-state: a session that has not been resolved yet is not
// the same as being signed out.
type AuthState int

const (
	AuthUnknown AuthState = iota
	AuthSignedIn
	AuthSignedOut
)

func (s AuthState) String() string {
	switch s {
	case AuthSignedIn:
		return "signed in"
	case AuthSignedOut:
		return "signed out"
	}
	return "unknown"
}
