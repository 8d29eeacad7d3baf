package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"herald/internal/dispatch"
	"herald/internal/gateway"
	"herald/internal/store"
	"herald/internal/trigger"
)

// Raids manages one-shot events and their signups.
type Raids struct {
	st    *store.Store
	trig  *trigger.Service
	gw    gateway.Client
	grace time.Duration
	log   zerolog.Logger

	now func() time.Time
}

func NewRaids(st *store.Store, trig *trigger.Service, gw gateway.Client, grace time.Duration, log zerolog.Logger) *Raids {
	return &Raids{
		st:    st,
		trig:  trig,
		gw:    gw,
		grace: grace,
		log:   log.With().Str("component", "raids").Logger(),
		now:   time.Now,
	}
}

type CreateRaidInput struct {
	ChannelID  string
	HostUserID string
	HostName   string
	HostUID    string
	When       time.Time
	Title      string
}

// Create inserts the raid together with its one-shot trigger. When must be
// strictly in the future; on ErrPastSchedule nothing is persisted.
func (s *Raids) Create(ctx context.Context, guildID string, in CreateRaidInput) (*store.Raid, error) {
	if !in.When.After(s.now()) {
		return nil, ErrPastSchedule
	}

	r := &store.Raid{
		GuildID:    guildID,
		ChannelID:  in.ChannelID,
		HostUserID: in.HostUserID,
		HostName:   in.HostName,
		HostUID:    in.HostUID,
		When:       in.When.Unix(),
		Title:      in.Title,
	}
	var reg trigger.Registration
	err := s.st.Tx(ctx, func(tx *gorm.DB) error {
		if err := store.CreateRaid(tx, r); err != nil {
			return err
		}
		reg = trigger.Registration{
			Ref:      string(dispatch.KindRaid),
			EntityID: r.ID,
			FireAt:   in.When,
			Grace:    s.grace,
			Coalesce: true,
		}
		return s.trig.Register(tx, reg)
	})
	if err != nil {
		return nil, err
	}
	s.trig.Arm(reg)
	s.log.Info().Str("guild", guildID).Uint("raid", r.ID).
		Time("when", in.When).Msg("raid created")
	return r, nil
}

// SetMessage records the posted announcement message on the raid.
func (s *Raids) SetMessage(ctx context.Context, raidID uint, messageID string) error {
	return s.st.Tx(ctx, func(tx *gorm.DB) error {
		return store.SetRaidMessage(tx, raidID, messageID)
	})
}

// Get loads a raid and its signups.
func (s *Raids) Get(ctx context.Context, raidID uint) (*store.Raid, error) {
	return store.GetRaidByID(s.st.DB().WithContext(ctx), raidID)
}

// GetByMessage resolves a raid from its announcement message.
func (s *Raids) GetByMessage(ctx context.Context, guildID, messageID string) (*store.Raid, error) {
	return store.GetRaidByMessage(s.st.DB().WithContext(ctx), guildID, messageID)
}

// Delete removes a raid and retires its trigger. Missing raids are a
// no-op.
func (s *Raids) Delete(ctx context.Context, raidID uint) error {
	key := trigger.Key(string(dispatch.KindRaid), raidID)
	err := s.st.Tx(ctx, func(tx *gorm.DB) error {
		if err := store.DeleteRaidByID(tx, raidID); err != nil {
			return err
		}
		_, err := s.trig.Unregister(tx, key)
		return err
	})
	if err != nil {
		return err
	}
	s.trig.Disarm(key)
	return nil
}

// DeleteByMessage removes the raid owning messageID, used when the
// announcement is seen to vanish.
func (s *Raids) DeleteByMessage(ctx context.Context, guildID, messageID string) error {
	var key string
	err := s.st.Tx(ctx, func(tx *gorm.DB) error {
		r, err := store.DeleteRaidByMessage(tx, guildID, messageID)
		if err != nil {
			return err
		}
		key = trigger.Key(string(dispatch.KindRaid), r.ID)
		_, err = s.trig.Unregister(tx, key)
		return err
	})
	if err != nil {
		return err
	}
	s.trig.Disarm(key)
	s.log.Info().Str("guild", guildID).Str("message", messageID).Msg("raid removed")
	return nil
}

// AddUser signs userID up for the raid in the given role. Signing up
// twice updates the existing row. The posted announcement is refreshed so
// it stays a live roster.
func (s *Raids) AddUser(ctx context.Context, raidID uint, userID, role string, cleared bool) error {
	err := s.st.Tx(ctx, func(tx *gorm.DB) error {
		if _, err := store.GetRaidByID(tx, raidID); err != nil {
			return err
		}
		_, err := store.UpsertRaidUser(tx, raidID, userID, role, cleared)
		return err
	})
	if err != nil {
		return err
	}
	return s.refreshAnnouncement(ctx, raidID)
}

// EditUser patches an existing signup; nil fields keep their value.
func (s *Raids) EditUser(ctx context.Context, raidID uint, userID string, role *string, cleared *bool) error {
	err := s.st.Tx(ctx, func(tx *gorm.DB) error {
		u, err := store.GetRaidUser(tx, raidID, userID)
		if err != nil {
			return err
		}
		if role != nil {
			u.Role = *role
		}
		if cleared != nil {
			u.Cleared = *cleared
		}
		_, err = store.UpsertRaidUser(tx, raidID, userID, u.Role, u.Cleared)
		return err
	})
	if err != nil {
		return err
	}
	return s.refreshAnnouncement(ctx, raidID)
}

// RemoveUser drops userID's signup, refreshes the announcement roster and
// tells the user why they were removed via DM. The DM is best-effort: a
// user with DMs closed or an account gone does not fail the removal.
func (s *Raids) RemoveUser(ctx context.Context, raidID uint, userID, reason string) error {
	var title string
	err := s.st.Tx(ctx, func(tx *gorm.DB) error {
		r, err := store.GetRaidByID(tx, raidID)
		if err != nil {
			return err
		}
		title = r.Title
		return store.DeleteRaidUser(tx, raidID, userID)
	})
	if err != nil {
		return err
	}
	if err := s.refreshAnnouncement(ctx, raidID); err != nil {
		return err
	}

	dm := fmt.Sprintf("You have been removed from **%s**.\nReason: %s", title, reason)
	if err := s.gw.SendDM(ctx, userID, dm); err != nil {
		s.log.Warn().Err(err).Str("user", userID).Msg("removal notice undeliverable")
	}
	return nil
}

// Announcement renders the posted roster message for a raid. The mention
// allow-list covers the host and every signup so the roster text pings
// them exactly once, when posted.
func Announcement(r *store.Raid) (string, gateway.Mentions) {
	users := []string{r.HostUserID}

	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n", r.Title)
	fmt.Fprintf(&b, "Starts <t:%d:F> (<t:%d:R>)\n", r.When, r.When)
	fmt.Fprintf(&b, "Host: <@%s> (%s, %s)\n", r.HostUserID, r.HostName, r.HostUID)
	if len(r.Users) == 0 {
		b.WriteString("No signups yet. Sign up with `/raid add`.")
	} else {
		b.WriteString("Roster:")
		for _, u := range r.Users {
			cleared := ""
			if u.Cleared {
				cleared = ", cleared"
			}
			fmt.Fprintf(&b, "\n- <@%s> (%s%s)", u.UserID, u.Role, cleared)
			users = append(users, u.UserID)
		}
	}
	return b.String(), gateway.Mentions{Users: users}
}

// refreshAnnouncement re-renders the roster onto the posted message. A
// vanished message takes the self-healing path; anything else is logged
// and the next mutation retries.
func (s *Raids) refreshAnnouncement(ctx context.Context, raidID uint) error {
	r, err := s.Get(ctx, raidID)
	if err != nil {
		return err
	}
	if r.MessageID == "" {
		return nil
	}

	content, mentions := Announcement(r)
	ref := gateway.MessageRef{ChannelID: r.ChannelID, MessageID: r.MessageID}
	switch err := s.gw.EditMessage(ctx, ref, content, mentions); {
	case err == nil:
		return nil
	case errors.Is(err, gateway.ErrNotFound):
		s.log.Info().Uint("raid", r.ID).Msg("announcement gone; removing raid")
		return s.Delete(ctx, r.ID)
	default:
		s.log.Warn().Err(err).Uint("raid", r.ID).Msg("announcement refresh failed")
		return nil
	}
}
