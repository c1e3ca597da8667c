// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package resync_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/theatre/internal/access"
	"github.com/holomush/theatre/internal/loop/looptest"
	"github.com/holomush/theatre/internal/notify"
	"github.com/holomush/theatre/internal/protocol"
	"github.com/holomush/theatre/internal/resync"
	"github.com/holomush/theatre/internal/scene"
	"github.com/holomush/theatre/internal/stage"
	"github.com/holomush/theatre/pkg/errutil"
)

type fakeStage struct {
	snap  protocol.ResyncPayload
	calls []string
	got   []protocol.InsertData
}

func (f *fakeStage) Snapshot() protocol.ResyncPayload { return f.snap }
func (f *fakeStage) Clear()                           { f.calls = append(f.calls, "clear") }

func (f *fakeStage) Prestage(_ context.Context, entries []protocol.InsertData) {
	f.calls = append(f.calls, "prestage")
	f.got = entries
}

func (f *fakeStage) InjectAll(context.Context, []protocol.InsertData) {
	f.calls = append(f.calls, "inject")
}

func (f *fakeStage) Settle(context.Context, []protocol.InsertData) {
	f.calls = append(f.calls, "settle")
}

func (f *fakeStage) Apply(_ context.Context, ev scene.Event, origin stage.Origin) error {
	if n, ok := ev.(scene.Narrator); ok && origin == stage.Remote {
		if n.Active {
			f.calls = append(f.calls, "narrator:on")
		} else {
			f.calls = append(f.calls, "narrator:off")
		}
	}
	return nil
}

type sent struct {
	typ     protocol.MessageType
	subtype string
	data    any
}

type fakePublisher struct {
	sent []sent
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, typ protocol.MessageType, subtype string, data any) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sent{typ, subtype, data})
	return nil
}

type recordingNotifier struct {
	keys []notify.Key
}

func (r *recordingNotifier) Notify(_ context.Context, _ notify.Level, key notify.Key, _ ...any) {
	r.keys = append(r.keys, key)
}

type env struct {
	sched    *looptest.Manual
	stage    *fakeStage
	pub      *fakePublisher
	notifier *recordingNotifier
	c        *resync.Coordinator
}

func newEnv(userID string) *env {
	oracle := access.NewStatic()
	oracle.SetGM("gm", true)
	e := &env{
		sched:    looptest.NewManual(),
		stage:    &fakeStage{},
		pub:      &fakePublisher{},
		notifier: &recordingNotifier{},
	}
	e.c = resync.New(resync.Deps{
		PeerID:    "peer-" + userID,
		UserID:    userID,
		Sched:     e.sched,
		Stage:     e.stage,
		Publisher: e.pub,
		Access:    oracle,
		Notifier:  e.notifier,
	})
	return e
}

var entries = []protocol.InsertData{
	{InsertID: "theatre-alice", SortIndex: 0},
	{InsertID: "theatre-bob", SortIndex: 1},
}

func TestRequest_PublishesAndTimesOut(t *testing.T) {
	e := newEnv("alice")
	require.NoError(t, e.c.Request(context.Background(), protocol.ResyncAny))

	require.Len(t, e.pub.sent, 1)
	assert.Equal(t, protocol.TypeReqResync, e.pub.sent[0].typ)
	assert.Equal(t, "any", e.pub.sent[0].subtype)
	assert.True(t, e.c.Awaiting())

	e.sched.Advance(resync.RequestTimeout - 1)
	assert.True(t, e.c.Awaiting())
	e.sched.Advance(1)
	assert.False(t, e.c.Awaiting())
	assert.Equal(t, []notify.Key{notify.ResyncTimeout}, e.notifier.keys)

	e.c.HandleResponse(context.Background(), "peer-gm", protocol.ResyncGM,
		protocol.ResyncPayload{TargetID: "peer-alice", InsertData: entries})
	assert.Empty(t, e.stage.calls, "answers after the timeout are ignored")
}

func TestRequest_RejectsPlayersKind(t *testing.T) {
	e := newEnv("gm")
	err := e.c.Request(context.Background(), protocol.ResyncPlayers)
	errutil.AssertErrorCode(t, err, resync.CodeInvalidKind)
	assert.Empty(t, e.pub.sent)
}

func TestRequest_PublishFailureArmsNothing(t *testing.T) {
	e := newEnv("alice")
	e.pub.err = assert.AnError
	require.Error(t, e.c.Request(context.Background(), protocol.ResyncGM))
	assert.False(t, e.c.Awaiting())
	assert.Zero(t, e.sched.PendingTimers())
}

func TestHandleResponse_FirstWinsThenApplies(t *testing.T) {
	e := newEnv("alice")
	ctx := context.Background()
	require.NoError(t, e.c.Request(ctx, protocol.ResyncAny))

	first := protocol.ResyncPayload{TargetID: "peer-alice", InsertData: entries, Narrator: true}
	e.c.HandleResponse(ctx, "peer-bob", protocol.ResyncPlayer, first)
	e.c.HandleResponse(ctx, "peer-gm", protocol.ResyncGM,
		protocol.ResyncPayload{TargetID: "peer-alice", InsertData: entries[:1]})

	assert.False(t, e.c.Awaiting())
	assert.True(t, e.c.Applying())
	assert.Equal(t, []string{"clear"}, e.stage.calls)

	e.sched.Advance(resync.ResyncSettleDelay - 1)
	assert.Equal(t, []string{"clear"}, e.stage.calls)
	e.sched.Advance(1)
	assert.Equal(t, []string{"clear", "prestage", "inject"}, e.stage.calls)
	assert.Equal(t, entries, e.stage.got)

	e.sched.Advance(resync.ResyncApplyDelay)
	assert.Equal(t, []string{"clear", "prestage", "inject", "settle", "narrator:on"}, e.stage.calls)
	assert.False(t, e.c.Applying())
	assert.Equal(t, []notify.Key{notify.ResyncApplied}, e.notifier.keys)
	assert.Zero(t, e.sched.PendingTimers())
}

func TestHandleResponse_IgnoresOtherTargets(t *testing.T) {
	e := newEnv("alice")
	require.NoError(t, e.c.Request(context.Background(), protocol.ResyncAny))

	e.c.HandleResponse(context.Background(), "peer-gm", protocol.ResyncGM,
		protocol.ResyncPayload{TargetID: "peer-carol", InsertData: entries})
	assert.True(t, e.c.Awaiting())
	assert.Empty(t, e.stage.calls)
}

func TestHandleResponse_WithoutRequestIgnored(t *testing.T) {
	e := newEnv("alice")
	e.c.HandleResponse(context.Background(), "peer-gm", protocol.ResyncGM,
		protocol.ResyncPayload{TargetID: "peer-alice", InsertData: entries})
	assert.Empty(t, e.stage.calls)
}

func TestCancel_DropsPendingRequest(t *testing.T) {
	e := newEnv("alice")
	require.NoError(t, e.c.Request(context.Background(), protocol.ResyncAny))
	e.c.Cancel()
	assert.False(t, e.c.Awaiting())

	e.sched.Advance(resync.RequestTimeout)
	assert.Empty(t, e.notifier.keys)
}

func TestHandleRequest_AnyAnsweredUnlessAwaiting(t *testing.T) {
	e := newEnv("bob")
	e.stage.snap = protocol.ResyncPayload{InsertData: entries, Narrator: true}
	ctx := context.Background()

	e.c.HandleRequest(ctx, "peer-alice", protocol.ResyncAny, protocol.ReqResyncPayload{})
	require.Len(t, e.pub.sent, 1)
	assert.Equal(t, protocol.TypeResyncEvent, e.pub.sent[0].typ)
	assert.Equal(t, "player", e.pub.sent[0].subtype)
	reply, ok := e.pub.sent[0].data.(protocol.ResyncPayload)
	require.True(t, ok)
	assert.Equal(t, "peer-alice", reply.TargetID)
	assert.Equal(t, entries, reply.InsertData)
	assert.True(t, reply.Narrator)

	require.NoError(t, e.c.Request(ctx, protocol.ResyncAny))
	e.c.HandleRequest(ctx, "peer-carol", protocol.ResyncAny, protocol.ReqResyncPayload{})
	assert.Len(t, e.pub.sent, 2, "only our own request was published")
}

func TestHandleRequest_GMKindAnsweredOnlyByGM(t *testing.T) {
	ctx := context.Background()

	player := newEnv("bob")
	player.c.HandleRequest(ctx, "peer-alice", protocol.ResyncGM, protocol.ReqResyncPayload{})
	assert.Empty(t, player.pub.sent)

	gm := newEnv("gm")
	gm.c.HandleRequest(ctx, "peer-alice", protocol.ResyncGM, protocol.ReqResyncPayload{})
	require.Len(t, gm.pub.sent, 1)
	assert.Equal(t, "gm", gm.pub.sent[0].subtype)
}

func TestPushPlayers_GMOnly(t *testing.T) {
	ctx := context.Background()

	player := newEnv("bob")
	err := player.c.PushPlayers(ctx)
	errutil.AssertErrorCode(t, err, stage.CodeNotGM)
	assert.Equal(t, []notify.Key{notify.NotGM}, player.notifier.keys)
	assert.Empty(t, player.pub.sent)

	gm := newEnv("gm")
	gm.stage.snap = protocol.ResyncPayload{InsertData: entries}
	require.NoError(t, gm.c.PushPlayers(ctx))
	require.Len(t, gm.pub.sent, 1)
	assert.Equal(t, "players", gm.pub.sent[0].subtype)
	push, ok := gm.pub.sent[0].data.(protocol.ReqResyncPayload)
	require.True(t, ok)
	assert.Equal(t, entries, push.InsertData)
	require.NotNil(t, push.Narrator)
	assert.False(t, *push.Narrator)
}

func TestHandleRequest_PlayersPushAppliedByPlayersOnly(t *testing.T) {
	ctx := context.Background()
	narrator := true
	push := protocol.ReqResyncPayload{InsertData: entries, Narrator: &narrator}

	gm := newEnv("gm")
	gm.c.HandleRequest(ctx, "peer-gm2", protocol.ResyncPlayers, push)
	assert.Empty(t, gm.stage.calls)

	player := newEnv("bob")
	player.c.HandleRequest(ctx, "peer-gm", protocol.ResyncPlayers, push)
	player.sched.Advance(resync.ResyncSettleDelay + resync.ResyncApplyDelay)
	assert.Equal(t, []string{"clear", "prestage", "inject", "settle", "narrator:on"}, player.stage.calls)
}

func TestApply_NewerSnapshotAbandonsRun(t *testing.T) {
	e := newEnv("bob")
	ctx := context.Background()
	push := protocol.ReqResyncPayload{InsertData: entries}

	e.c.HandleRequest(ctx, "peer-gm", protocol.ResyncPlayers, push)
	e.sched.Advance(resync.ResyncSettleDelay)
	e.c.HandleRequest(ctx, "peer-gm", protocol.ResyncPlayers, push)
	e.sched.Advance(resync.ResyncSettleDelay + resync.ResyncApplyDelay)

	assert.Equal(t, []string{
		"clear", "prestage", "inject",
		"clear", "prestage", "inject", "settle", "narrator:off",
	}, e.stage.calls)
	assert.Equal(t, []notify.Key{notify.ResyncApplied}, e.notifier.keys)
}
