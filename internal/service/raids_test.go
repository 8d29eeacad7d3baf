package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"herald/internal/gateway"
	"herald/internal/store"
)

func raidIn(when time.Time) CreateRaidInput {
	return CreateRaidInput{
		ChannelID:  "c1",
		HostUserID: "42",
		HostName:   "Host",
		HostUID:    "900123456",
		When:       when,
		Title:      "Weekly Raid",
	}
}

func TestRaidCreateRegistersDateTrigger(t *testing.T) {
	f := newFixture(t)
	when := time.Now().Add(2 * time.Hour).Truncate(time.Second)

	r, err := f.raids.Create(context.Background(), "g1", raidIn(when))
	require.NoError(t, err)
	require.Equal(t, when.Unix(), r.When)
	require.Empty(t, r.MessageID)

	var row store.Trigger
	require.NoError(t, f.st.DB().Take(&row, "key = ?", "raid:1").Error)
	require.Equal(t, "date", row.Kind)
	require.Equal(t, when.Unix(), row.FireAt)
	require.Equal(t, when.Unix(), row.NextFire)
	require.EqualValues(t, 600, row.Grace)
}

func TestRaidCreatePastRejected(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	f.raids.now = func() time.Time { return base }

	for _, when := range []time.Time{base.Add(-time.Minute), base} {
		_, err := f.raids.Create(context.Background(), "g1", raidIn(when))
		require.ErrorIs(t, err, ErrPastSchedule)
	}

	raids, err := store.ListRaids(f.st.DB())
	require.NoError(t, err)
	require.Empty(t, raids)
	require.Zero(t, f.triggerRows(t))
}

func TestRaidSetMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.raids.Create(ctx, "g1", raidIn(time.Now().Add(time.Hour)))
	require.NoError(t, err)

	require.NoError(t, f.raids.SetMessage(ctx, r.ID, "m100"))
	got, err := f.raids.GetByMessage(ctx, "g1", "m100")
	require.NoError(t, err)
	require.Equal(t, r.ID, got.ID)

	require.ErrorIs(t, f.raids.SetMessage(ctx, r.ID+99, "m101"), store.ErrNotFound)
}

func TestRaidDeleteByMessageRetiresTrigger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.raids.Create(ctx, "g1", raidIn(time.Now().Add(time.Hour)))
	require.NoError(t, err)
	require.NoError(t, f.raids.SetMessage(ctx, r.ID, "m100"))

	require.NoError(t, f.raids.DeleteByMessage(ctx, "g1", "m100"))

	_, err = f.raids.Get(ctx, r.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.Zero(t, f.triggerRows(t))
	require.Zero(t, f.trig.ArmedCount())

	require.ErrorIs(t, f.raids.DeleteByMessage(ctx, "g1", "m100"), store.ErrNotFound)
}

func TestRaidSignupLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.raids.Create(ctx, "g1", raidIn(time.Now().Add(time.Hour)))
	require.NoError(t, err)

	require.NoError(t, f.raids.AddUser(ctx, r.ID, "u1", "dps", false))
	require.NoError(t, f.raids.AddUser(ctx, r.ID, "u2", "tank", true))

	// a second signup by the same user replaces, not duplicates
	require.NoError(t, f.raids.AddUser(ctx, r.ID, "u1", "support", false))

	got, err := f.raids.Get(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, got.Users, 2)

	cleared := true
	require.NoError(t, f.raids.EditUser(ctx, r.ID, "u1", nil, &cleared))
	u, err := store.GetRaidUser(f.st.DB(), r.ID, "u1")
	require.NoError(t, err)
	require.Equal(t, "support", u.Role)
	require.True(t, u.Cleared)

	require.NoError(t, f.raids.RemoveUser(ctx, r.ID, "u2", "no-show"))
	got, err = f.raids.Get(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, got.Users, 1)

	require.ErrorIs(t, f.raids.RemoveUser(ctx, r.ID, "u2", "no-show"), store.ErrNotFound)
}

func TestRaidAddUserUnknownRaid(t *testing.T) {
	f := newFixture(t)
	err := f.raids.AddUser(context.Background(), 404, "u1", "dps", false)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRaidRosterKeepsAnnouncementCurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.raids.Create(ctx, "g1", raidIn(time.Now().Add(time.Hour)))
	require.NoError(t, err)
	require.NoError(t, f.raids.SetMessage(ctx, r.ID, "m100"))

	require.NoError(t, f.raids.AddUser(ctx, r.ID, "u1", "dps", false))
	require.Len(t, f.gw.edits, 1)
	edit := f.gw.edits[0]
	require.Equal(t, gateway.MessageRef{ChannelID: "c1", MessageID: "m100"}, edit.ref)
	require.Contains(t, edit.content, "<@u1> (dps)")
	require.Equal(t, []string{"42", "u1"}, edit.mentions.Users)

	cleared := true
	require.NoError(t, f.raids.EditUser(ctx, r.ID, "u1", nil, &cleared))
	require.Len(t, f.gw.edits, 2)
	require.Contains(t, f.gw.edits[1].content, "<@u1> (dps, cleared)")

	require.NoError(t, f.raids.RemoveUser(ctx, r.ID, "u1", "schedule conflict"))
	require.Len(t, f.gw.edits, 3)
	require.NotContains(t, f.gw.edits[2].content, "<@u1>")
	require.Contains(t, f.gw.edits[2].content, "No signups yet")
}

func TestRaidAnnouncementBeforeMessagePostsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.raids.Create(ctx, "g1", raidIn(time.Now().Add(time.Hour)))
	require.NoError(t, err)

	// no message recorded yet, so there is nothing to refresh
	require.NoError(t, f.raids.AddUser(ctx, r.ID, "u1", "dps", false))
	require.Empty(t, f.gw.edits)
}

func TestRaidAnnouncementGoneSelfHeals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.raids.Create(ctx, "g1", raidIn(time.Now().Add(time.Hour)))
	require.NoError(t, err)
	require.NoError(t, f.raids.SetMessage(ctx, r.ID, "m100"))
	f.gw.editErr = gateway.ErrNotFound

	require.NoError(t, f.raids.AddUser(ctx, r.ID, "u1", "dps", false))

	_, err = f.raids.Get(ctx, r.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.Zero(t, f.triggerRows(t))
	require.Zero(t, f.trig.ArmedCount())
}

func TestRaidAnnouncementEditFailureIsTolerated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.raids.Create(ctx, "g1", raidIn(time.Now().Add(time.Hour)))
	require.NoError(t, err)
	require.NoError(t, f.raids.SetMessage(ctx, r.ID, "m100"))
	f.gw.editErr = gateway.ErrServer

	require.NoError(t, f.raids.AddUser(ctx, r.ID, "u1", "dps", false))

	got, err := f.raids.Get(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, got.Users, 1)
}

func TestRaidRemoveUserNotifiesByDM(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.raids.Create(ctx, "g1", raidIn(time.Now().Add(time.Hour)))
	require.NoError(t, err)
	require.NoError(t, f.raids.AddUser(ctx, r.ID, "u1", "dps", false))

	require.NoError(t, f.raids.RemoveUser(ctx, r.ID, "u1", "inactive"))
	require.Len(t, f.gw.dms, 1)
	require.Equal(t, "u1", f.gw.dms[0].userID)
	require.Contains(t, f.gw.dms[0].content, "Weekly Raid")
	require.Contains(t, f.gw.dms[0].content, "Reason: inactive")
}

func TestRaidRemoveUserDMClosedStillRemoves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.raids.Create(ctx, "g1", raidIn(time.Now().Add(time.Hour)))
	require.NoError(t, err)
	require.NoError(t, f.raids.AddUser(ctx, r.ID, "u1", "dps", false))
	f.gw.dmErr = gateway.ErrForbidden

	require.NoError(t, f.raids.RemoveUser(ctx, r.ID, "u1", "inactive"))
	got, err := f.raids.Get(ctx, r.ID)
	require.NoError(t, err)
	require.Empty(t, got.Users)
	require.Empty(t, f.gw.dms)
}
