package group

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mesh-learning/tileboard/pkg/store"
)

// Membership states.
const (
	StateUnjoined = "unjoined"
	StateJoining  = "joining"
	StateJoined   = "joined"
)

// defaultCorrectionDelay defers membership corrections by one tick so a
// burst of simultaneous joins settles before anyone reacts to it.
const defaultCorrectionDelay = time.Millisecond

// ErrNotStarted is returned when joining before Start.
var ErrNotStarted = errors.New("coordinator not started")

// Coordinator manages one user's group membership. Membership records
// are corrected client-side: any client observing an oversubscribed
// group evicts the surplus, and a user found in two groups leaves all
// of them.
type Coordinator struct {
	store store.Store
	paths *store.Paths
	log   zerolog.Logger

	mu              sync.Mutex
	started         bool
	state           string
	groupID         string
	latestGroupID   string
	autoJoined      bool
	disconnect      store.DisconnectHandle
	subs            []store.Subscription
	correctionDelay time.Duration
	correcting      bool
}

// New returns an unstarted coordinator.
func New(st store.Store, paths *store.Paths, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		store:           st,
		paths:           paths,
		log:             log.With().Str("component", "group").Logger(),
		state:           StateUnjoined,
		correctionDelay: defaultCorrectionDelay,
	}
}

// SetCorrectionDelay overrides the correction deferral, for tests.
func (c *Coordinator) SetCorrectionDelay(d time.Duration) {
	c.mu.Lock()
	c.correctionDelay = d
	c.mu.Unlock()
}

// State returns the current membership state.
func (c *Coordinator) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// GroupID returns the joined group id, empty while unjoined.
func (c *Coordinator) GroupID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.groupID
}

// Start attaches the latestGroupId listener and then the groups
// listener. The first groups snapshot auto-joins the remembered group
// when the user is not in any group yet.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	latestSub, err := c.store.Watch(c.paths.FullPath(c.paths.LatestGroupIDPath()), func(v any) {
		id, _ := v.(string)
		c.mu.Lock()
		c.latestGroupID = id
		c.mu.Unlock()
	})
	if err != nil {
		return fmt.Errorf("watch latest group: %w", err)
	}

	groupsSub, err := c.store.Watch(c.paths.FullPath(c.paths.GroupsPath()), c.handleGroups)
	if err != nil {
		latestSub.Close()
		return fmt.Errorf("watch groups: %w", err)
	}

	c.mu.Lock()
	c.subs = append(c.subs, latestSub, groupsSub)
	c.mu.Unlock()
	return nil
}

// Stop detaches the listeners. Membership records stay; the disconnect
// write fires when the store session closes.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
}

// JoinGroup registers the user in groupID, creating the group record if
// it does not exist. The user is registered even when the group looks
// full; oversubscription is corrected by the snapshot handler.
func (c *Coordinator) JoinGroup(groupID string) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return ErrNotStarted
	}
	c.state = StateJoining
	c.mu.Unlock()

	uid := c.paths.User.ID
	groupPath := c.paths.FullPath(c.paths.GroupPath(groupID))
	tree, err := c.store.Once(groupPath)
	if err != nil {
		return err
	}
	if tree == nil {
		rec := store.GroupRecord{
			Version: store.RecordVersion,
			Self: store.GroupSelf{
				ClassHash:  c.paths.User.ClassHash,
				OfferingID: c.paths.User.OfferingID,
				GroupID:    groupID,
			},
		}
		encoded, err := store.Encode(rec)
		if err != nil {
			return err
		}
		if err := c.store.Set(groupPath, encoded); err != nil {
			return fmt.Errorf("create group %s: %w", groupID, err)
		}
	}

	member := store.GroupUserRecord{
		Version: store.RecordVersion,
		Self: store.GroupUserSelf{
			ClassHash:  c.paths.User.ClassHash,
			OfferingID: c.paths.User.OfferingID,
			GroupID:    groupID,
			UID:        uid,
		},
		ConnectedTimestamp: store.ServerTimestamp(),
	}
	encoded, err := store.Encode(member)
	if err != nil {
		return err
	}
	memberPath := c.paths.FullPath(c.paths.GroupUserPath(groupID, ""))
	if err := c.store.Set(memberPath, encoded); err != nil {
		return fmt.Errorf("join group %s: %w", groupID, err)
	}

	handle, err := c.store.OnDisconnect(memberPath+"/disconnectedTimestamp", store.ServerTimestamp())
	if err != nil {
		return fmt.Errorf("join group %s: %w", groupID, err)
	}
	if err := c.store.Set(c.paths.FullPath(c.paths.LatestGroupIDPath()), groupID); err != nil {
		return fmt.Errorf("join group %s: %w", groupID, err)
	}

	c.mu.Lock()
	if c.disconnect != nil {
		c.disconnect.Cancel()
	}
	c.disconnect = handle
	c.state = StateJoined
	c.groupID = groupID
	c.mu.Unlock()
	c.log.Debug().Str("group", groupID).Msg("joined")
	return nil
}

// LeaveGroup removes the user's membership record from every group it
// appears in and cancels the pending disconnect write.
func (c *Coordinator) LeaveGroup() error {
	uid := c.paths.User.ID
	tree, err := c.store.Once(c.paths.FullPath(c.paths.GroupsPath()))
	if err != nil {
		return err
	}
	view := ViewFromTree(tree)
	for _, groupID := range view.UserGroups(uid) {
		path := c.paths.FullPath(c.paths.GroupUserPath(groupID, ""))
		if err := c.store.Delete(path); err != nil {
			return fmt.Errorf("leave group %s: %w", groupID, err)
		}
	}

	c.mu.Lock()
	if c.disconnect != nil {
		c.disconnect.Cancel()
		c.disconnect = nil
	}
	c.state = StateUnjoined
	c.groupID = ""
	c.mu.Unlock()
	return nil
}

// handleGroups reacts to every groups snapshot: auto-join on the first
// one, then membership corrections, each deferred by one tick.
func (c *Coordinator) handleGroups(tree any) {
	view := ViewFromTree(tree)
	uid := c.paths.User.ID
	mine := view.UserGroups(uid)

	c.mu.Lock()
	if !c.autoJoined {
		c.autoJoined = true
		if latest := c.latestGroupID; latest != "" && len(mine) == 0 && c.state == StateUnjoined {
			c.mu.Unlock()
			if err := c.JoinGroup(latest); err != nil {
				c.log.Warn().Str("group", latest).Err(err).Msg("auto-join failed")
			}
			return
		}
	}
	if c.correcting {
		c.mu.Unlock()
		return
	}

	if len(mine) > 1 {
		c.correcting = true
		delay := c.correctionDelay
		c.mu.Unlock()
		c.log.Warn().Strs("groups", mine).Msg("found in multiple groups, leaving all")
		time.AfterFunc(delay, func() {
			defer c.doneCorrecting()
			if err := c.LeaveGroup(); err != nil {
				c.log.Error().Err(err).Msg("forced leave failed")
			}
		})
		return
	}

	// Every oversubscribed group in the snapshot gets corrected, not
	// only the one the observer sits in.
	overflow := make(map[string][]string)
	for _, groupID := range view.GroupIDs() {
		if members := view.Members(groupID); len(members) > MaxGroupSize {
			overflow[groupID] = members[MaxGroupSize:]
		}
	}
	if len(overflow) > 0 {
		c.correcting = true
		delay := c.correctionDelay
		c.mu.Unlock()
		for groupID, surplus := range overflow {
			c.log.Warn().Str("group", groupID).Strs("evicting", surplus).Msg("group oversubscribed")
		}
		time.AfterFunc(delay, func() {
			defer c.doneCorrecting()
			for groupID, surplus := range overflow {
				c.evict(groupID, surplus)
			}
		})
		return
	}

	if len(mine) == 1 {
		groupID := mine[0]
		if c.state != StateJoined || c.groupID != groupID {
			c.state = StateJoined
			c.groupID = groupID
		}
	} else if c.state == StateJoined {
		// Our record disappeared (evicted elsewhere).
		c.state = StateUnjoined
		c.groupID = ""
		if c.disconnect != nil {
			c.disconnect.Cancel()
			c.disconnect = nil
		}
	}
	c.mu.Unlock()
}

// evict deletes the surplus membership records, keeping the earliest
// seats. Evicting ourselves resets the local state.
func (c *Coordinator) evict(groupID string, uids []string) {
	uid := c.paths.User.ID
	for _, evictee := range uids {
		path := c.paths.FullPath(c.paths.GroupUserPath(groupID, evictee))
		if err := c.store.Delete(path); err != nil {
			c.log.Error().Str("uid", evictee).Err(err).Msg("eviction failed")
			continue
		}
		if evictee == uid {
			c.mu.Lock()
			c.state = StateUnjoined
			c.groupID = ""
			if c.disconnect != nil {
				c.disconnect.Cancel()
				c.disconnect = nil
			}
			c.mu.Unlock()
		}
	}
}

// doneCorrecting re-examines the groups after a correction, since
// snapshots delivered while the correction was pending were skipped.
func (c *Coordinator) doneCorrecting() {
	c.mu.Lock()
	c.correcting = false
	c.mu.Unlock()
	if tree, err := c.store.Once(c.paths.FullPath(c.paths.GroupsPath())); err == nil {
		c.handleGroups(tree)
	}
}
