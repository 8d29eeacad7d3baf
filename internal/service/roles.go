package service

import (
	"context"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"herald/internal/gateway"
	"herald/internal/store"
)

// Roles manages each guild's menu of self-assignable roles.
type Roles struct {
	st          *store.Store
	gw          gateway.Client
	maxPerGuild int
	log         zerolog.Logger
}

func NewRoles(st *store.Store, gw gateway.Client, maxPerGuild int, log zerolog.Logger) *Roles {
	return &Roles{
		st:          st,
		gw:          gw,
		maxPerGuild: maxPerGuild,
		log:         log.With().Str("component", "roles").Logger(),
	}
}

// Upsert offers roleID on the guild's menu. A role already on the menu is
// moved rather than duplicated, so re-upserting updates its description
// and position. A nil at appends.
func (s *Roles) Upsert(ctx context.Context, guildID, roleID, description string, at *int) (*store.Role, error) {
	r := &store.Role{GuildID: guildID, RoleID: roleID, Description: description}
	err := s.st.Tx(ctx, func(tx *gorm.DB) error {
		return store.UpsertRole(tx, r, at, s.maxPerGuild)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("guild", guildID).Str("role", roleID).
		Int("idx", r.Idx).Msg("role offered")
	return r, nil
}

// Delete takes the role at idx off the menu; siblings after it shift down
// by one. The guild role itself is untouched.
func (s *Roles) Delete(ctx context.Context, guildID string, idx int) (*store.Role, error) {
	var removed *store.Role
	err := s.st.Tx(ctx, func(tx *gorm.DB) error {
		var err error
		removed, err = store.DeleteRole(tx, guildID, idx)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("guild", guildID).Str("role", removed.RoleID).Msg("role withdrawn")
	return removed, nil
}

// List returns the guild's menu in ordinal order.
func (s *Roles) List(ctx context.Context, guildID string) ([]store.Role, error) {
	return store.ListRoles(s.st.DB().WithContext(ctx), guildID)
}

// Toggle grants the role at idx to userID, or revokes it when memberRoles
// already carries it. It reports whether the member ended up with the role.
func (s *Roles) Toggle(ctx context.Context, guildID string, idx int, userID string, memberRoles []string) (added bool, roleID string, err error) {
	r, err := store.GetRole(s.st.DB().WithContext(ctx), guildID, idx)
	if err != nil {
		return false, "", err
	}
	has := false
	for _, id := range memberRoles {
		if id == r.RoleID {
			has = true
			break
		}
	}
	if has {
		err = s.gw.RemoveRole(ctx, guildID, userID, r.RoleID)
	} else {
		err = s.gw.AddRole(ctx, guildID, userID, r.RoleID)
	}
	if err != nil {
		return false, r.RoleID, err
	}
	return !has, r.RoleID, nil
}
