package store

// User is the stable identity the authentication provider yields,
// carried by every path computation and record write.
type User struct {
	ID         string
	Name       string
	Initials   string
	Portal     string
	ClassHash  string
	OfferingID string

	// LatestGroupID remembers the last group joined so a returning
	// user can be auto-joined.
	LatestGroupID string
}

// SetLatestGroupID records the last group joined ("" when none).
func (u *User) SetLatestGroupID(groupID string) {
	u.LatestGroupID = groupID
}
