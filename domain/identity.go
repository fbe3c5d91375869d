package domain

// Identity is the authenticated user as known by the remote service.
type Identity struct {
	UserID      string
	Email       string
	DisplayName string
}

// Complete is true only when every identity field is populated.
func (i Identity) Complete() bool {
	return i.UserID != "" && i.Email != "" && i.DisplayName != ""
}

// Credentials is the full credential set of an authenticated session.
// RefreshToken is optional.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	Identity     Identity
}

// Complete reports whether the set can be persisted and exposed.
// A partial set must be treated as absent.
func (c Credentials) Complete() bool {
	return c.AccessToken != "" && c.Identity.Complete()
}
