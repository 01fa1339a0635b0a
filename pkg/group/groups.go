// Package group coordinates group membership and presence: joining and
// leaving, disconnect timestamps, and client-side correction of
// oversubscribed or conflicting membership records.
package group

import (
	"sort"

	"github.com/mesh-learning/tileboard/pkg/store"
)

// MaxGroupSize is the number of seats in a group.
const MaxGroupSize = 4

// View is a decoded snapshot of the offering's groups collection.
type View struct {
	Records map[string]store.GroupRecord
}

// ViewFromTree decodes a groups subtree. A nil tree yields an empty
// view; individual records that fail to decode are dropped.
func ViewFromTree(tree any) *View {
	v := &View{Records: make(map[string]store.GroupRecord)}
	m, ok := tree.(map[string]any)
	if !ok {
		return v
	}
	for groupID, sub := range m {
		var rec store.GroupRecord
		if err := store.Decode(sub, &rec); err != nil {
			continue
		}
		v.Records[groupID] = rec
	}
	return v
}

// GroupIDs returns the group ids in sorted order.
func (v *View) GroupIDs() []string {
	ids := make([]string, 0, len(v.Records))
	for id := range v.Records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Members returns a group's member uids ordered by connection time,
// earliest first, ties broken by uid.
func (v *View) Members(groupID string) []string {
	rec, ok := v.Records[groupID]
	if !ok {
		return nil
	}
	uids := make([]string, 0, len(rec.Users))
	for uid := range rec.Users {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool {
		ua, ub := rec.Users[uids[i]], rec.Users[uids[j]]
		a, b := ua.ConnectedMillis(), ub.ConnectedMillis()
		if a != b {
			return a < b
		}
		return uids[i] < uids[j]
	})
	return uids
}

// IsFull reports whether the group has no free seat.
func (v *View) IsFull(groupID string) bool {
	return len(v.Records[groupID].Users) >= MaxGroupSize
}

// UserGroups returns every group the user holds a membership record in,
// sorted.
func (v *View) UserGroups(uid string) []string {
	var ids []string
	for groupID, rec := range v.Records {
		if _, ok := rec.Users[uid]; ok {
			ids = append(ids, groupID)
		}
	}
	sort.Strings(ids)
	return ids
}

// ConnectedMembers returns the uids of currently connected members.
func (v *View) ConnectedMembers(groupID string) []string {
	var uids []string
	for _, uid := range v.Members(groupID) {
		rec := v.Records[groupID].Users[uid]
		if rec.Connected() {
			uids = append(uids, uid)
		}
	}
	return uids
}
