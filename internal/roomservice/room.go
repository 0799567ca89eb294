// Package roomservice creates rooms, manages membership, and answers
// room-access authorization questions for the rest of the hub.
package roomservice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/emberchat/ember/internal/id"
	"github.com/emberchat/ember/internal/store"
)

// Service manages rooms and their memberships.
type Service struct {
	store *store.Store
}

// New constructs a Service backed by st.
func New(st *store.Store) *Service {
	return &Service{store: st}
}

// AccessLevel is the effective permission a user holds in a room.
type AccessLevel int

const (
	// AccessNone means the user has no visibility into the room.
	AccessNone AccessLevel = iota
	// AccessMember allows reading and posting.
	AccessMember
	// AccessAdmin additionally allows managing membership.
	AccessAdmin
)

// CreateRoom creates a room and makes the creator its admin member,
// in a single logical operation.
func (s *Service) CreateRoom(ctx context.Context, name, topic string, roomType store.RoomType, creatorID id.UserID) (store.Room, error) {
	if err := validateName(name); err != nil {
		return store.Room{}, newErr(KindValidation, err.Error(), nil)
	}

	room := store.Room{
		ID:        id.NewRoomID(),
		Name:      name,
		Topic:     topic,
		RoomType:  roomType,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateRoom(ctx, room); err != nil {
		return store.Room{}, newErr(KindInternal, "persist room", err)
	}

	membership := store.Membership{
		RoomID:           room.ID,
		UserID:           creatorID,
		InvolvementLevel: store.InvolvementAdmin,
		CreatedAt:        time.Now(),
	}
	if err := s.store.CreateMembership(ctx, membership); err != nil {
		return store.Room{}, newErr(KindInternal, "add creator as admin member", err)
	}

	return room, nil
}

// CreateDirectRoom returns the existing direct room between a and b,
// or creates one (with both as members) if none exists yet.
func (s *Service) CreateDirectRoom(ctx context.Context, a, b id.UserID) (store.Room, error) {
	existing, err := s.store.FindDirectRoom(ctx, a, b)
	if err == nil {
		return existing, nil
	}
	if !store.IsNotFound(err) {
		return store.Room{}, newErr(KindInternal, "look up direct room", err)
	}

	room := store.Room{
		ID:        id.NewRoomID(),
		Name:      "",
		RoomType:  store.RoomTypeDirect,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateRoom(ctx, room); err != nil {
		return store.Room{}, newErr(KindInternal, "persist direct room", err)
	}
	for _, member := range []id.UserID{a, b} {
		m := store.Membership{RoomID: room.ID, UserID: member, InvolvementLevel: store.InvolvementMember, CreatedAt: time.Now()}
		if err := s.store.CreateMembership(ctx, m); err != nil {
			return store.Room{}, newErr(KindInternal, "add direct room member", err)
		}
	}
	return room, nil
}

// AddMember adds userID to roomID on behalf of callerID.
//
// Closed rooms require the caller to hold admin level. Open rooms
// accept any existing user as a member regardless of the caller's
// level. Direct rooms never accept new members after creation.
func (s *Service) AddMember(ctx context.Context, roomID id.RoomID, callerID, userID id.UserID) error {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		if store.IsNotFound(err) {
			return newErr(KindNotFound, "room not found", nil)
		}
		return newErr(KindInternal, "look up room", err)
	}

	switch room.RoomType {
	case store.RoomTypeDirect:
		return newErr(KindDirectRoomClosed, "direct rooms do not accept new members", nil)
	case store.RoomTypeClosed:
		callerLevel, err := s.membershipLevel(ctx, roomID, callerID)
		if err != nil {
			return err
		}
		if callerLevel != AccessAdmin {
			return newErr(KindForbidden, "admin level required to add members to a closed room", nil)
		}
	case store.RoomTypeOpen:
		// any existing user may join; no caller-level check.
	}

	isMember, err := s.store.IsRoomMember(ctx, roomID, userID)
	if err != nil {
		return newErr(KindInternal, "check existing membership", err)
	}
	if isMember {
		return newErr(KindAlreadyMember, "user is already a member", nil)
	}

	m := store.Membership{RoomID: roomID, UserID: userID, InvolvementLevel: store.InvolvementMember, CreatedAt: time.Now()}
	if err := s.store.CreateMembership(ctx, m); err != nil {
		if store.IsConstraintViolation(err) {
			return newErr(KindAlreadyMember, "user is already a member", err)
		}
		return newErr(KindInternal, "persist membership", err)
	}
	return nil
}

// CheckRoomAccess returns the effective access level callerID holds
// in roomID. Open rooms grant implicit Member access to non-members,
// covering both read and post; administration still requires the
// explicit Membership row.
func (s *Service) CheckRoomAccess(ctx context.Context, roomID id.RoomID, userID id.UserID) (AccessLevel, error) {
	level, err := s.membershipLevel(ctx, roomID, userID)
	if err == nil {
		return level, nil
	}
	if kind, ok := KindOf(err); !ok || kind != KindNotFound {
		return AccessNone, err
	}

	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		if store.IsNotFound(err) {
			return AccessNone, nil
		}
		return AccessNone, newErr(KindInternal, "look up room", err)
	}
	if room.RoomType == store.RoomTypeOpen {
		return AccessMember, nil
	}
	return AccessNone, nil
}

// CanPost reports whether userID may post to roomID: Open rooms may be
// posted to by anyone, matching their implicit read access; Closed and
// Direct rooms require an explicit membership row.
func (s *Service) CanPost(ctx context.Context, roomID id.RoomID, userID id.UserID) (bool, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		if store.IsNotFound(err) {
			return false, nil
		}
		return false, newErr(KindInternal, "look up room", err)
	}
	if room.RoomType == store.RoomTypeOpen {
		return true, nil
	}

	isMember, err := s.store.IsRoomMember(ctx, roomID, userID)
	if err != nil {
		return false, newErr(KindInternal, "check membership", err)
	}
	return isMember, nil
}

// ListRoomsForUser returns every room userID is an explicit member of.
func (s *Service) ListRoomsForUser(ctx context.Context, userID id.UserID) ([]store.Room, error) {
	rooms, err := s.store.ListRoomsForUser(ctx, userID)
	if err != nil {
		return nil, newErr(KindInternal, "list rooms", err)
	}
	return rooms, nil
}

// ListRoomMembers returns the ids of every explicit member of roomID.
func (s *Service) ListRoomMembers(ctx context.Context, roomID id.RoomID) ([]id.UserID, error) {
	members, err := s.store.ListRoomMembers(ctx, roomID)
	if err != nil {
		return nil, newErr(KindInternal, "list room members", err)
	}
	return members, nil
}

func (s *Service) membershipLevel(ctx context.Context, roomID id.RoomID, userID id.UserID) (AccessLevel, error) {
	row, err := s.store.GetMembership(ctx, roomID, userID)
	if err != nil {
		if store.IsNotFound(err) {
			return AccessNone, newErr(KindNotFound, "no membership row", nil)
		}
		return AccessNone, newErr(KindInternal, "look up membership", err)
	}
	if row.InvolvementLevel == store.InvolvementAdmin {
		return AccessAdmin, nil
	}
	return AccessMember, nil
}

func validateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if len(trimmed) < 1 || len(trimmed) > 100 {
		return fmt.Errorf("room name must be between 1 and 100 characters")
	}
	return nil
}
