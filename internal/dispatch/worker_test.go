package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"herald/internal/gateway"
	"herald/internal/store"
	"herald/internal/trigger"
)

type sentMessage struct {
	ChannelID string
	Content   string
	Mentions  gateway.Mentions
}

// fakeGateway records sends and fails with a configurable error.
type fakeGateway struct {
	mu        sync.Mutex
	sent      []sentMessage
	createErr error
}

func (f *fakeGateway) CreateMessage(_ context.Context, channelID, content string, m gateway.Mentions) (gateway.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return gateway.MessageRef{}, f.createErr
	}
	f.sent = append(f.sent, sentMessage{ChannelID: channelID, Content: content, Mentions: m})
	return gateway.MessageRef{ChannelID: channelID, MessageID: "m-1"}, nil
}

func (f *fakeGateway) EditMessage(context.Context, gateway.MessageRef, string, gateway.Mentions) error {
	return nil
}

func (f *fakeGateway) DeleteMessage(context.Context, gateway.MessageRef) error { return nil }

func (f *fakeGateway) FetchMessage(_ context.Context, ref gateway.MessageRef) (gateway.MessageRef, error) {
	return ref, nil
}

func (f *fakeGateway) SendDM(context.Context, string, string) error { return nil }

func (f *fakeGateway) AddRole(context.Context, string, string, string) error { return nil }

func (f *fakeGateway) RemoveRole(context.Context, string, string, string) error { return nil }

func (f *fakeGateway) RoleMemberCount(context.Context, string, string) (int, bool, error) {
	return 0, false, nil
}

func (f *fakeGateway) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fixture struct {
	st   *store.Store
	gw   *fakeGateway
	trig *trigger.Service
	w    *Worker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	gw := &fakeGateway{}
	trig := trigger.New(st, trigger.Config{Tick: time.Second, DefaultGrace: 30 * time.Second},
		func(string, uint) {}, zerolog.Nop())
	return &fixture{
		st:   st,
		gw:   gw,
		trig: trig,
		w:    NewWorker(NewQueue(), st, gw, trig, zerolog.Nop()),
	}
}

func (f *fixture) addPing(t *testing.T, desc string) *store.Ping {
	t.Helper()
	p := &store.Ping{
		GuildID:     "g1",
		RoleID:      "r1",
		ChannelID:   "c1",
		Schedule:    "*/5 * * * *",
		Description: desc,
	}
	require.NoError(t, store.CreatePing(f.st.DB(), p, nil, 0))
	reg := trigger.Registration{Ref: "ping", EntityID: p.ID, Cron: p.Schedule, Coalesce: true}
	require.NoError(t, f.trig.Register(f.st.DB(), reg))
	f.trig.Arm(reg)
	return p
}

func TestDeliverPingSendsMention(t *testing.T) {
	f := newFixture(t)
	p := f.addPing(t, "weekly reset")

	require.NoError(t, f.w.deliver(context.Background(), Item{Kind: KindPing, ID: p.ID}))
	require.Equal(t, 1, f.gw.sentCount())
	require.Equal(t, "c1", f.gw.sent[0].ChannelID)
	require.Contains(t, f.gw.sent[0].Content, "<@&r1>")
	require.Contains(t, f.gw.sent[0].Content, "weekly reset")
	require.Equal(t, []string{"r1"}, f.gw.sent[0].Mentions.Roles)
}

func TestDeliverMissingEntityIsSilent(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.w.deliver(context.Background(), Item{Kind: KindPing, ID: 999}))
	require.Zero(t, f.gw.sentCount())

	require.NoError(t, f.w.deliver(context.Background(), Item{Kind: KindRaid, ID: 999}))
	require.Zero(t, f.gw.sentCount())
}

func TestDeliverPingNotFoundSelfHeals(t *testing.T) {
	f := newFixture(t)
	p1 := f.addPing(t, "a")
	p2 := f.addPing(t, "b")

	f.gw.createErr = gateway.ErrNotFound
	require.NoError(t, f.w.deliver(context.Background(), Item{Kind: KindPing, ID: p1.ID}))

	// entity and trigger both removed
	_, err := store.GetPingByID(f.st.DB(), p1.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	var n int64
	require.NoError(t, f.st.DB().Model(&store.Trigger{}).
		Where("key = ?", trigger.Key("ping", p1.ID)).Count(&n).Error)
	require.Zero(t, n)
	_, armed := f.trig.NextFire(trigger.Key("ping", p1.ID))
	require.False(t, armed)

	// the sibling closed the gap
	got, err := store.GetPingByID(f.st.DB(), p2.ID)
	require.NoError(t, err)
	require.Zero(t, got.Idx)
}

func TestDeliverPingForbiddenKeepsEntity(t *testing.T) {
	f := newFixture(t)
	p := f.addPing(t, "a")

	f.gw.createErr = gateway.ErrForbidden
	require.NoError(t, f.w.deliver(context.Background(), Item{Kind: KindPing, ID: p.ID}))

	_, err := store.GetPingByID(f.st.DB(), p.ID)
	require.NoError(t, err)
	_, armed := f.trig.NextFire(trigger.Key("ping", p.ID))
	require.True(t, armed)
}

func TestDeliverPingTransientKeepsEntity(t *testing.T) {
	f := newFixture(t)
	p := f.addPing(t, "a")

	f.gw.createErr = gateway.ErrServer
	require.NoError(t, f.w.deliver(context.Background(), Item{Kind: KindPing, ID: p.ID}))

	// occurrence lost, entity survives for the next one
	_, err := store.GetPingByID(f.st.DB(), p.ID)
	require.NoError(t, err)
}

func TestDeliverRaidCalloutMentionsSignups(t *testing.T) {
	f := newFixture(t)
	r := &store.Raid{
		GuildID:    "g1",
		ChannelID:  "c1",
		HostUserID: "h1",
		HostName:   "Host",
		HostUID:    "800000001",
		When:       time.Now().Add(time.Hour).Unix(),
		Title:      "Light NM",
	}
	require.NoError(t, store.CreateRaid(f.st.DB(), r))
	_, err := store.UpsertRaidUser(f.st.DB(), r.ID, "u1", "dps", false)
	require.NoError(t, err)
	_, err = store.UpsertRaidUser(f.st.DB(), r.ID, "u2", "tank", true)
	require.NoError(t, err)

	require.NoError(t, f.w.deliver(context.Background(), Item{Kind: KindRaid, ID: r.ID}))
	require.Equal(t, 1, f.gw.sentCount())
	msg := f.gw.sent[0]
	require.Contains(t, msg.Content, "Light NM")
	require.Contains(t, msg.Content, "<@h1>")
	require.Contains(t, msg.Content, "<@u1>")
	require.Contains(t, msg.Content, "<@u2>")
	require.ElementsMatch(t, []string{"h1", "u1", "u2"}, msg.Mentions.Users)
}

func TestDeliverRaidNotFoundSelfHeals(t *testing.T) {
	f := newFixture(t)
	r := &store.Raid{
		GuildID:    "g1",
		ChannelID:  "c1",
		HostUserID: "h1",
		When:       time.Now().Add(time.Hour).Unix(),
		Title:      "raid",
	}
	require.NoError(t, store.CreateRaid(f.st.DB(), r))
	_, err := store.UpsertRaidUser(f.st.DB(), r.ID, "u1", "dps", false)
	require.NoError(t, err)
	reg := trigger.Registration{Ref: "raid", EntityID: r.ID, FireAt: time.Unix(r.When, 0)}
	require.NoError(t, f.trig.Register(f.st.DB(), reg))
	f.trig.Arm(reg)

	f.gw.createErr = gateway.ErrNotFound
	require.NoError(t, f.w.deliver(context.Background(), Item{Kind: KindRaid, ID: r.ID}))

	_, err = store.GetRaidByID(f.st.DB(), r.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	var n int64
	require.NoError(t, f.st.DB().Model(&store.RaidUser{}).Count(&n).Error)
	require.Zero(t, n)
	require.NoError(t, f.st.DB().Model(&store.Trigger{}).Count(&n).Error)
	require.Zero(t, n)
}

func TestRunStopsOnQueueClose(t *testing.T) {
	f := newFixture(t)
	p := f.addPing(t, "a")
	f.w.queue.Put(Item{Kind: KindPing, ID: p.ID})
	f.w.queue.Close()

	done := make(chan struct{})
	go func() {
		f.w.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after queue close")
	}
	require.Equal(t, 1, f.gw.sentCount())
}
