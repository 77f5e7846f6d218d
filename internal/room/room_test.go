package room

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kkingfung/CavalryFight-sub004/internal/game"
	"github.com/kkingfung/CavalryFight-sub004/internal/match"
)

// helper: receive one event with a timeout so tests never hang
func recvEvent(t *testing.T, ch <-chan Event, within time.Duration) (Event, bool) {
	t.Helper()
	select {
	case ev, ok := <-ch:
		return ev, ok
	case <-time.After(within):
		t.Fatalf("timed out waiting for event")
		return Event{}, false // unreachable
	}
}

// helper: discard events until one of the wanted type arrives
func waitForEvent(t *testing.T, ch <-chan Event, want EventType, within time.Duration) Event {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed while waiting for %s", want)
			}
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func recvNoEvent(t *testing.T, ch <-chan Event, avoid EventType, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Type == avoid {
				t.Fatalf("expected no %s within %v, but got: %+v", avoid, within, ev)
			}
		case <-deadline:
			return // good
		}
	}
}

func recvError(t *testing.T, ch <-chan error, within time.Duration) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(within):
		t.Fatalf("timed out waiting for reply")
		return nil // unreachable
	}
}

func recvView(t *testing.T, rm *Room, within time.Duration) View {
	t.Helper()
	reply := make(chan View, 1)
	rm.Inbox() <- GetState{Reply: reply}
	select {
	case v := <-reply:
		return v
	case <-time.After(within):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

func testSettings(maxPlayers int) game.RoomSettings {
	return game.RoomSettings{
		RoomName:   "test room",
		Mode:       game.ModeScoreMatch,
		MaxPlayers: maxPlayers,
		IsPublic:   true,
		MapID:      "steppe",
	}
}

func newTestRoom(t *testing.T, settings game.RoomSettings, opts Options) *Room {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewRoom(ctx, "TEST01", settings, zap.NewNop(), opts, nil, nil)
}

func join(t *testing.T, rm *Room, id game.PlayerID, name string) chan Event {
	t.Helper()
	out := make(chan Event, 32)
	reply := make(chan error, 1)
	rm.Inbox() <- Join{PlayerID: id, Name: name, Outbox: out, Reply: reply}
	if err := recvError(t, reply, time.Second); err != nil {
		t.Fatalf("join %d: %v", id, err)
	}
	return out
}

func sendExpect(t *testing.T, rm *Room, build func(chan error) Msg, want error) {
	t.Helper()
	reply := make(chan error, 1)
	rm.Inbox() <- build(reply)
	err := recvError(t, reply, time.Second)
	if want == nil && err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want != nil && err != want {
		t.Fatalf("want %v, got %v", want, err)
	}
}

func TestRoom_JoinBroadcastsAndVersions(t *testing.T) {
	rm := newTestRoom(t, testSettings(4), Options{})

	out1 := join(t, rm, 1, "anna")
	first, _ := recvEvent(t, out1, time.Second)
	if first.Type != EvtRoomSnapshot {
		t.Fatalf("joiner should get a snapshot first, got %s", first.Type)
	}
	if first.Settings == nil || first.Settings.MaxPlayers != 4 {
		t.Fatalf("snapshot settings missing: %+v", first.Settings)
	}

	join(t, rm, 2, "bert")
	ev := waitForEvent(t, out1, EvtPlayerJoined, time.Second)
	if ev.PlayerID != 2 {
		t.Fatalf("want player 2 join event, got %+v", ev)
	}
	if ev.Version <= first.Version {
		t.Fatalf("version must increase: %d -> %d", first.Version, ev.Version)
	}
}

func TestRoom_JoinRejections(t *testing.T) {
	settings := testSettings(2)
	settings.Password = "hunter2"
	rm := newTestRoom(t, settings, Options{})

	out := make(chan Event, 32)
	reply := make(chan error, 1)
	rm.Inbox() <- Join{PlayerID: 1, Name: "anna", Password: "wrong", Outbox: out, Reply: reply}
	if err := recvError(t, reply, time.Second); err != game.ErrBadPassword {
		t.Fatalf("want ErrBadPassword, got %v", err)
	}

	rm.Inbox() <- Join{PlayerID: 1, Name: "anna", Password: "hunter2", Outbox: out, Reply: reply}
	if err := recvError(t, reply, time.Second); err != nil {
		t.Fatalf("correct password rejected: %v", err)
	}
	rm.Inbox() <- Join{PlayerID: 2, Name: "bert", Password: "hunter2", Outbox: make(chan Event, 32), Reply: reply}
	if err := recvError(t, reply, time.Second); err != nil {
		t.Fatalf("second join rejected: %v", err)
	}

	rm.Inbox() <- Join{PlayerID: 3, Name: "cleo", Password: "hunter2", Outbox: make(chan Event, 32), Reply: reply}
	if err := recvError(t, reply, time.Second); err != game.ErrRoomFull {
		t.Fatalf("want ErrRoomFull, got %v", err)
	}
}

// Scenario: four-player room, three humans plus a CPU; the gate stays shut
// until every human is ready.
func TestRoom_ReadinessGateScenario(t *testing.T) {
	rm := newTestRoom(t, testSettings(4), Options{})

	join(t, rm, 1, "anna")
	join(t, rm, 2, "bert")
	join(t, rm, 3, "cleo")
	sendExpect(t, rm, func(r chan error) Msg {
		return AddCPU{PlayerID: 1, Difficulty: game.DifficultyNormal, SlotIndex: -1, Reply: r}
	}, nil)

	v := recvView(t, rm, time.Second)
	if !v.Slots[3].IsAI || !v.Slots[3].IsReady {
		t.Fatalf("slot 4 should hold a ready CPU: %+v", v.Slots[3])
	}

	sendExpect(t, rm, func(r chan error) Msg { return StartMatch{PlayerID: 1, Reply: r} }, game.ErrNotReady)

	for _, id := range []game.PlayerID{1, 2, 3} {
		id := id
		sendExpect(t, rm, func(r chan error) Msg { return SetReady{PlayerID: id, Ready: true, Reply: r} }, nil)
	}
	sendExpect(t, rm, func(r chan error) Msg { return StartMatch{PlayerID: 1, Reply: r} }, nil)

	v = recvView(t, rm, time.Second)
	if v.Phase != PhaseInMatch {
		t.Fatalf("want in_match after start with zero countdown, got %s", v.Phase)
	}
}

func TestRoom_SetReadyOnlySelf(t *testing.T) {
	rm := newTestRoom(t, testSettings(2), Options{})
	join(t, rm, 1, "anna")

	// The transport stamps messages with the connection's own id, so
	// readiness for an absent player is simply unknown.
	sendExpect(t, rm, func(r chan error) Msg { return SetReady{PlayerID: 2, Ready: true, Reply: r} }, game.ErrUnknownPlayer)
}

// Scenario: shrinking an 8-player room to 2 with 5 seated fails and leaves
// the roster unchanged.
func TestRoom_UpdateSettingsWouldDisplace(t *testing.T) {
	rm := newTestRoom(t, testSettings(8), Options{})
	for id := game.PlayerID(1); id <= 3; id++ {
		join(t, rm, id, "p")
	}
	for i := 0; i < 2; i++ {
		sendExpect(t, rm, func(r chan error) Msg {
			return AddCPU{PlayerID: 1, Difficulty: game.DifficultyEasy, SlotIndex: -1, Reply: r}
		}, nil)
	}

	next := testSettings(2)
	sendExpect(t, rm, func(r chan error) Msg {
		return UpdateSettings{PlayerID: 1, Settings: next, Reply: r}
	}, game.ErrWouldDisplacePlayers)

	v := recvView(t, rm, time.Second)
	if len(v.Slots) != 8 || v.Settings.MaxPlayers != 8 {
		t.Fatalf("roster must be unchanged: %d slots, max %d", len(v.Slots), v.Settings.MaxPlayers)
	}
	occupied := 0
	for _, s := range v.Slots {
		if s.Occupied() {
			occupied++
		}
	}
	if occupied != 5 {
		t.Fatalf("want 5 occupants untouched, got %d", occupied)
	}
}

func TestRoom_UpdateSettingsAuthorityOnly(t *testing.T) {
	rm := newTestRoom(t, testSettings(4), Options{})
	join(t, rm, 1, "anna")
	join(t, rm, 2, "bert")

	next := testSettings(6)
	sendExpect(t, rm, func(r chan error) Msg {
		return UpdateSettings{PlayerID: 2, Settings: next, Reply: r}
	}, game.ErrNotAuthority)

	sendExpect(t, rm, func(r chan error) Msg {
		return UpdateSettings{PlayerID: 1, Settings: next, Reply: r}
	}, nil)
	v := recvView(t, rm, time.Second)
	if v.Settings.MaxPlayers != 6 || len(v.Slots) != 6 {
		t.Fatalf("grow to 6 failed: %+v", v.Settings)
	}
}

// Scenario: a kick issued by a non-authority fails and the target stays.
func TestRoom_KickAuthorityOnly(t *testing.T) {
	rm := newTestRoom(t, testSettings(4), Options{})
	join(t, rm, 1, "anna")
	out2 := join(t, rm, 2, "bert")

	sendExpect(t, rm, func(r chan error) Msg { return Kick{PlayerID: 2, Target: 1, Reply: r} }, game.ErrNotAuthority)
	v := recvView(t, rm, time.Second)
	if v.Slots[0].PlayerID != 1 {
		t.Fatalf("target must keep its slot after rejected kick")
	}

	sendExpect(t, rm, func(r chan error) Msg { return Kick{PlayerID: 1, Target: 2, Reply: r} }, nil)
	ev := waitForEvent(t, out2, EvtKicked, time.Second)
	if ev.PlayerID != 2 {
		t.Fatalf("kicked notice should name the target: %+v", ev)
	}
	if _, ok := recvEvent(t, out2, time.Second); ok {
		t.Fatalf("kicked player's subscription should be closed")
	}
	v = recvView(t, rm, time.Second)
	if v.Slots[1].Occupied() {
		t.Fatalf("kicked player's slot should be cleared")
	}
}

// A kick target whose outbox is already full must not stall the loop: the
// terminal notice is dropped and the subscription closed instead.
func TestRoom_KickSurvivesFullOutbox(t *testing.T) {
	rm := newTestRoom(t, testSettings(4), Options{})
	join(t, rm, 1, "anna")

	// Room at capacity 2 events: the join snapshot plus the target's own
	// join broadcast fill it, and nothing drains it.
	out2 := make(chan Event, 2)
	reply := make(chan error, 1)
	rm.Inbox() <- Join{PlayerID: 2, Name: "bert", Outbox: out2, Reply: reply}
	if err := recvError(t, reply, time.Second); err != nil {
		t.Fatalf("join: %v", err)
	}

	sendExpect(t, rm, func(r chan error) Msg { return Kick{PlayerID: 1, Target: 2, Reply: r} }, nil)

	// The loop keeps serving after the kick.
	v := recvView(t, rm, time.Second)
	if v.Slots[1].Occupied() {
		t.Fatalf("kicked player's slot should be cleared")
	}

	// The overflowed subscription still ends; buffered events stay readable.
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-out2:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("kicked player's subscription should be closed")
		}
	}
}

// A rejected join is surfaced to everyone already seated, not just replied
// to the requester.
func TestRoom_RejectedJoinNotifiesRoom(t *testing.T) {
	settings := testSettings(2)
	settings.Password = "hunter2"
	rm := newTestRoom(t, settings, Options{})

	out1 := make(chan Event, 32)
	reply := make(chan error, 1)
	rm.Inbox() <- Join{PlayerID: 1, Name: "anna", Password: "hunter2", Outbox: out1, Reply: reply}
	if err := recvError(t, reply, time.Second); err != nil {
		t.Fatalf("join: %v", err)
	}

	rm.Inbox() <- Join{PlayerID: 2, Name: "mallory", Password: "wrong", Outbox: make(chan Event, 32), Reply: reply}
	if err := recvError(t, reply, time.Second); err != game.ErrBadPassword {
		t.Fatalf("want ErrBadPassword, got %v", err)
	}

	ev := waitForEvent(t, out1, EvtError, time.Second)
	if ev.Message == "" {
		t.Fatalf("room-wide error must carry a message: %+v", ev)
	}
}

func TestRoom_SnapshotsCarryAuthority(t *testing.T) {
	rm := newTestRoom(t, testSettings(4), Options{})
	out1 := join(t, rm, 10, "anna")
	first, _ := recvEvent(t, out1, time.Second)
	if first.HostID != 10 {
		t.Fatalf("first joiner is the authority: %+v", first)
	}

	out2 := join(t, rm, 20, "bert")
	snap := waitForEvent(t, out2, EvtRoomSnapshot, time.Second)
	if snap.HostID != 10 {
		t.Fatalf("snapshot must name the authority: %+v", snap)
	}

	rm.Inbox() <- Leave{PlayerID: 10}
	waitForEvent(t, out2, EvtPlayerLeft, time.Second)
	promoted := waitForEvent(t, out2, EvtRoomSnapshot, time.Second)
	if promoted.HostID != 20 {
		t.Fatalf("succession snapshot must name the new authority: %+v", promoted)
	}
}

func TestRoom_LeaveIsIdempotent(t *testing.T) {
	rm := newTestRoom(t, testSettings(4), Options{})
	join(t, rm, 1, "anna")
	join(t, rm, 2, "bert")

	rm.Inbox() <- Leave{PlayerID: 2}
	rm.Inbox() <- Leave{PlayerID: 2}
	rm.Inbox() <- Leave{PlayerID: 99}

	v := recvView(t, rm, time.Second)
	if v.NumClients != 1 || v.Slots[1].Occupied() {
		t.Fatalf("double leave must have no extra effect: %+v", v)
	}
}

func TestRoom_HostSuccessionLowestSlot(t *testing.T) {
	rm := newTestRoom(t, testSettings(4), Options{})
	join(t, rm, 10, "anna")
	join(t, rm, 20, "bert")
	join(t, rm, 30, "cleo")

	rm.Inbox() <- Leave{PlayerID: 10}
	v := recvView(t, rm, time.Second)
	if v.HostID != 20 {
		t.Fatalf("authority must pass to lowest remaining slot: want 20, got %d", v.HostID)
	}

	// The promoted host has authority immediately.
	sendExpect(t, rm, func(r chan error) Msg {
		return AddCPU{PlayerID: 20, Difficulty: game.DifficultyNormal, SlotIndex: -1, Reply: r}
	}, nil)
}

func TestRoom_ClosesWhenLastHumanLeaves(t *testing.T) {
	rm := newTestRoom(t, testSettings(4), Options{})
	join(t, rm, 1, "anna")
	out2 := join(t, rm, 2, "bert")

	rm.Inbox() <- Leave{PlayerID: 1}
	rm.Inbox() <- Leave{PlayerID: 2}

	// Channel closes once the room is gone.
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-out2:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("room should close after the last human leaves")
		}
	}
}

func TestRoom_StartCountdownAbortsWhenGateBreaks(t *testing.T) {
	rm := newTestRoom(t, testSettings(4), Options{StartCountdown: 250 * time.Millisecond})
	out1 := join(t, rm, 1, "anna")
	join(t, rm, 2, "bert")
	for _, id := range []game.PlayerID{1, 2} {
		id := id
		sendExpect(t, rm, func(r chan error) Msg { return SetReady{PlayerID: id, Ready: true, Reply: r} }, nil)
	}

	sendExpect(t, rm, func(r chan error) Msg { return StartMatch{PlayerID: 1, Reply: r} }, nil)
	waitForEvent(t, out1, EvtMatchStarting, time.Second)

	rm.Inbox() <- Leave{PlayerID: 2}

	// The countdown was invalidated; no match may start.
	recvNoEvent(t, out1, EvtMatchStarted, 500*time.Millisecond)
	v := recvView(t, rm, time.Second)
	if v.Phase != PhaseOpen {
		t.Fatalf("want open after aborted start, got %s", v.Phase)
	}
}

func TestRoom_JoinDuringMatchRejected(t *testing.T) {
	rm, _ := startedMatch(t, Options{})

	reply := make(chan error, 1)
	rm.Inbox() <- Join{PlayerID: 9, Name: "late", Outbox: make(chan Event, 32), Reply: reply}
	if err := recvError(t, reply, time.Second); err != game.ErrAlreadyStarted {
		t.Fatalf("want ErrAlreadyStarted, got %v", err)
	}
}

// startedMatch builds a two-player in-match room with a frozen clock and
// returns the first player's event stream, drained up to match start.
func startedMatch(t *testing.T, opts Options) (*Room, chan Event) {
	t.Helper()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	if opts.Now == nil {
		opts.Now = func() time.Time { return now }
	}
	rm := newTestRoom(t, testSettings(2), opts)
	out1 := join(t, rm, 1, "anna")
	join(t, rm, 2, "bert")
	for _, id := range []game.PlayerID{1, 2} {
		id := id
		sendExpect(t, rm, func(r chan error) Msg { return SetReady{PlayerID: id, Ready: true, Reply: r} }, nil)
	}
	sendExpect(t, rm, func(r chan error) Msg { return StartMatch{PlayerID: 1, Reply: r} }, nil)
	waitForEvent(t, out1, EvtMatchStarted, time.Second)
	return rm, out1
}

func shot(target game.PlayerID, loc match.HitLocation) match.ArrowShotData {
	return match.ArrowShotData{
		Origin:    match.Vec3{X: 0, Y: 1, Z: 0},
		Direction: match.Vec3{X: 0, Y: 0, Z: 1},
		Speed:     40,
		FiredAt:   0,
		ShooterID: 1,
		TargetID:  target,
		Location:  loc,
	}
}

// Scenario: a stale shot degrades to a broadcast miss with no score.
func TestRoom_StaleShotBecomesMiss(t *testing.T) {
	rm, out1 := startedMatch(t, Options{})

	s := shot(2, match.HitHeart)
	s.FiredAt = -time.Second
	rm.Inbox() <- ShotReport{Shot: s}

	ev := waitForEvent(t, out1, EvtHitResult, time.Second)
	if ev.Hit == nil || ev.Hit.IsValidHit || ev.Hit.Location != match.HitMiss || ev.Hit.ScoreAwarded != 0 {
		t.Fatalf("stale shot must broadcast an invalid miss: %+v", ev.Hit)
	}

	score := waitForEvent(t, out1, EvtScoreUpdate, time.Second)
	if score.Score.Score != 0 || score.Score.ShotCount != 1 {
		t.Fatalf("stale shot scores nothing but counts as fired: %+v", score.Score)
	}
}

// Scenario: a heart hit under default scoring awards 100 and bumps both
// counters.
func TestRoom_HeartHitScores(t *testing.T) {
	rm, out1 := startedMatch(t, Options{})

	rm.Inbox() <- ShotReport{Shot: shot(2, match.HitHeart)}

	ev := waitForEvent(t, out1, EvtHitResult, time.Second)
	if ev.Hit == nil || !ev.Hit.IsValidHit || ev.Hit.ScoreAwarded != 100 {
		t.Fatalf("want valid 100-point heart hit: %+v", ev.Hit)
	}
	score := waitForEvent(t, out1, EvtScoreUpdate, time.Second)
	if score.Score.Score != 100 || score.Score.HitCount != 1 || score.Score.ShotCount != 1 {
		t.Fatalf("scoreboard after heart hit: %+v", score.Score)
	}
}

func TestRoom_OutOfAmmoShotsStopScoring(t *testing.T) {
	rm, out1 := startedMatch(t, Options{StartingAmmo: 1})

	rm.Inbox() <- ShotReport{Shot: shot(2, match.HitArm)}
	first := waitForEvent(t, out1, EvtHitResult, time.Second)
	if !first.Hit.IsValidHit {
		t.Fatalf("first arrow should land: %+v", first.Hit)
	}

	rm.Inbox() <- ShotReport{Shot: shot(2, match.HitHeart)}
	second := waitForEvent(t, out1, EvtHitResult, time.Second)
	if second.Hit.IsValidHit || second.Hit.ScoreAwarded != 0 {
		t.Fatalf("empty quiver must degrade to a miss: %+v", second.Hit)
	}
}

type captureSink struct {
	stored chan []match.PlayerScore
}

func (s *captureSink) StoreMatch(_ context.Context, _ string, _ game.RoomSettings, standings []match.PlayerScore) error {
	s.stored <- standings
	return nil
}

func TestRoom_MatchEndArchivesResults(t *testing.T) {
	sink := &captureSink{stored: make(chan []match.PlayerScore, 1)}
	settings := testSettings(2)
	settings.ScoreGoal = 100
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	rm := NewRoom(ctx, "TEST02", settings, zap.NewNop(), Options{Now: func() time.Time { return now }}, sink, nil)

	out1 := join(t, rm, 1, "anna")
	join(t, rm, 2, "bert")
	for _, id := range []game.PlayerID{1, 2} {
		id := id
		sendExpect(t, rm, func(r chan error) Msg { return SetReady{PlayerID: id, Ready: true, Reply: r} }, nil)
	}
	sendExpect(t, rm, func(r chan error) Msg { return StartMatch{PlayerID: 1, Reply: r} }, nil)
	waitForEvent(t, out1, EvtMatchStarted, time.Second)

	rm.Inbox() <- ShotReport{Shot: shot(2, match.HitHeart)}

	select {
	case standings := <-sink.stored:
		if len(standings) != 2 || standings[0].Score != 100 {
			t.Fatalf("archived standings wrong: %+v", standings)
		}
	case <-time.After(time.Second):
		t.Fatalf("match end must reach the results sink")
	}
}

func TestRoom_ScoreGoalEndsMatch(t *testing.T) {
	settings := testSettings(2)
	settings.ScoreGoal = 150
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rm := newTestRoom(t, settings, Options{Now: func() time.Time { return now }})
	out1 := join(t, rm, 1, "anna")
	join(t, rm, 2, "bert")
	for _, id := range []game.PlayerID{1, 2} {
		id := id
		sendExpect(t, rm, func(r chan error) Msg { return SetReady{PlayerID: id, Ready: true, Reply: r} }, nil)
	}
	sendExpect(t, rm, func(r chan error) Msg { return StartMatch{PlayerID: 1, Reply: r} }, nil)
	waitForEvent(t, out1, EvtMatchStarted, time.Second)

	rm.Inbox() <- ShotReport{Shot: shot(2, match.HitHeart)} // 100
	rm.Inbox() <- ShotReport{Shot: shot(2, match.HitHead)}  // 150: goal

	ended := waitForEvent(t, out1, EvtMatchEnded, time.Second)
	if len(ended.Standings) != 2 {
		t.Fatalf("final standings must cover both players: %+v", ended.Standings)
	}
	if ended.Standings[0].PlayerID != 1 || ended.Standings[0].Score != 150 {
		t.Fatalf("winner first in standings: %+v", ended.Standings[0])
	}
}
