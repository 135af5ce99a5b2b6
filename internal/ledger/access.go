package ledger

// Authorizer decides whether a caller holds the administrator capability.
type Authorizer interface {
	IsAdmin(caller string) bool
}

// AdminSet is a static set of administrator identities.
type AdminSet map[string]struct{}

// NewAdminSet builds an AdminSet, ignoring empty identities.
func NewAdminSet(ids ...string) AdminSet {
	s := make(AdminSet, len(ids))
	for _, id := range ids {
		if id != "" {
			s[id] = struct{}{}
		}
	}
	return s
}

func (s AdminSet) IsAdmin(caller string) bool {
	_, ok := s[caller]
	return ok
}
