package room

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kkingfung/CavalryFight-sub004/internal/game"
	"github.com/kkingfung/CavalryFight-sub004/internal/match"
)

// ResultsSink archives a finished match. Implementations must be safe to
// call from a short-lived goroutine.
type ResultsSink interface {
	StoreMatch(ctx context.Context, joinCode string, settings game.RoomSettings, standings []match.PlayerScore) error
}

// Options tune match adjudication per room. Zero values fall back to the
// defaults below.
type Options struct {
	StartCountdown   time.Duration
	LatencyTolerance time.Duration
	OriginDrift      float64
	StartingAmmo     int // 0 = unlimited
	Arena            match.AABB
	Scoring          match.ScoringConfig

	// Now overrides the clock. Test-only.
	Now func() time.Time
}

func (o *Options) fill() {
	if o.LatencyTolerance <= 0 {
		o.LatencyTolerance = match.DefaultMaxLatencyTolerance
	}
	if o.OriginDrift <= 0 {
		o.OriginDrift = match.DefaultMaxOriginDrift
	}
	if o.Scoring == (match.ScoringConfig{}) {
		o.Scoring = match.DefaultScoringConfig()
	}
	if o.Arena == (match.AABB{}) {
		o.Arena = match.AABB{
			Min: match.Vec3{X: -500, Y: -100, Z: -500},
			Max: match.Vec3{X: 500, Y: 300, Z: 500},
		}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Room is the session authority for one join code: the only writer of its
// settings, roster and scoreboard. All mutation arrives on the inbox and is
// applied by a single loop; everything else sees versioned event broadcasts.
type Room struct {
	inbox chan Msg
	code  string
	log   *zap.Logger
	opts  Options

	settings game.RoomSettings
	roster   *game.Roster
	hostID   game.PlayerID
	phase    Phase
	version  int
	clients  map[game.PlayerID]chan Event

	board      *match.Scoreboard
	shotCtx    *match.Context
	positions  map[game.PlayerID]match.Vec3
	matchStart time.Time
	timerGen   int

	sink     ResultsSink
	onClosed func()

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRoom starts the authority loop. Settings must already be validated.
// onClosed fires exactly once, after the loop has stopped accepting messages.
func NewRoom(parent context.Context, code string, settings game.RoomSettings, log *zap.Logger, opts Options, sink ResultsSink, onClosed func()) *Room {
	opts.fill()
	ctx, cancel := context.WithCancel(parent)

	r := &Room{
		inbox:     make(chan Msg, 64),
		code:      code,
		log:       log.With(zap.String("room", code)),
		opts:      opts,
		settings:  settings,
		roster:    game.NewRoster(settings.MaxPlayers),
		phase:     PhaseOpen,
		clients:   make(map[game.PlayerID]chan Event),
		positions: make(map[game.PlayerID]match.Vec3),
		sink:      sink,
		onClosed:  onClosed,
		ctx:       ctx,
		cancel:    cancel,
	}
	go r.loop()
	return r
}

// Inbox is where transports and tests deliver messages. Reply channels must
// be buffered so the loop never blocks on a reply.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

func (r *Room) Code() string { return r.code }

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.closeRoom("server shutting down")
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				err := r.handleJoin(msg)
				msg.Reply <- err
				if err != nil {
					r.broadcastError("join rejected: " + err.Error())
				}
			case Leave:
				r.handleLeave(msg.PlayerID)
			case SetReady:
				msg.Reply <- r.handleSetReady(msg)
			case UpdateSettings:
				msg.Reply <- r.handleUpdateSettings(msg)
			case AddCPU:
				msg.Reply <- r.handleAddCPU(msg)
			case RemoveCPU:
				msg.Reply <- r.handleRemoveCPU(msg)
			case SetCPUDifficulty:
				msg.Reply <- r.handleSetCPUDifficulty(msg)
			case Kick:
				msg.Reply <- r.handleKick(msg)
			case StartMatch:
				msg.Reply <- r.handleStartMatch(msg)
			case PlayerMoved:
				r.handlePlayerMoved(msg)
			case ShotReport:
				r.handleShot(msg.Shot)
			case startTimerFired:
				if msg.gen == r.timerGen && r.phase == PhaseStarting {
					r.beginMatch()
				}
			case limitTimerFired:
				if msg.gen == r.timerGen && r.phase == PhaseInMatch {
					r.endMatch("time limit reached")
				}
			case GetState:
				msg.Reply <- r.view()
			case Shutdown:
				r.closeRoom("room shut down")
			}

			if r.phase == PhaseClosed {
				return
			}
		}
	}
}

func (r *Room) handleJoin(msg Join) error {
	switch r.phase {
	case PhaseStarting, PhaseInMatch:
		return game.ErrAlreadyStarted
	case PhaseClosed:
		return game.ErrRoomClosed
	}
	if r.settings.Password != "" && msg.Password != r.settings.Password {
		return game.ErrBadPassword
	}

	slot, err := r.roster.AddHuman(msg.PlayerID, msg.Name, msg.Preset, r.settings.Mode)
	if err != nil {
		return err
	}
	if r.hostID.IsEmpty() {
		r.hostID = msg.PlayerID
	}
	r.clients[msg.PlayerID] = msg.Outbox

	r.log.Info("player joined",
		zap.Uint64("player", uint64(msg.PlayerID)),
		zap.Int("slot", slot.SlotIndex))

	// The joiner gets the current snapshot immediately, everyone gets the
	// join event.
	msg.Outbox <- r.snapshotEvent(EvtRoomSnapshot)
	r.broadcastRosterChange(EvtPlayerJoined, msg.PlayerID)
	return nil
}

func (r *Room) handleLeave(id game.PlayerID) {
	if !r.roster.Remove(id) {
		return // idempotent
	}
	if out, ok := r.clients[id]; ok {
		close(out)
		delete(r.clients, id)
	}
	delete(r.positions, id)
	r.log.Info("player left", zap.Uint64("player", uint64(id)))
	r.broadcastRosterChange(EvtPlayerLeft, id)

	if id == r.hostID {
		r.promoteSuccessor()
		if r.phase == PhaseClosed {
			return
		}
	}
	if r.roster.HumanCount() == 0 {
		r.closeRoom("no players remain")
		return
	}
	if r.phase == PhaseStarting && !r.roster.CanStart() {
		r.abortStart()
	}
}

// promoteSuccessor hands authority to the human occupant with the lowest
// slot index; a room with no humans left closes.
func (r *Room) promoteSuccessor() {
	for i := range r.roster.Slots {
		if r.roster.Slots[i].PlayerID.IsHuman() {
			r.hostID = r.roster.Slots[i].PlayerID
			r.log.Info("authority promoted",
				zap.Uint64("player", uint64(r.hostID)),
				zap.Int("slot", i))
			r.broadcast(r.snapshotEvent(EvtRoomSnapshot))
			return
		}
	}
	r.closeRoom("authority left")
}

func (r *Room) handleSetReady(msg SetReady) error {
	if r.phase != PhaseOpen {
		return game.ErrAlreadyStarted
	}
	if err := r.roster.SetReady(msg.PlayerID, msg.Ready); err != nil {
		return err
	}
	ev := r.snapshotEvent(EvtReadyChanged)
	ev.PlayerID = msg.PlayerID
	ev.Ready = msg.Ready
	r.broadcast(ev)
	return nil
}

func (r *Room) handleUpdateSettings(msg UpdateSettings) error {
	if msg.PlayerID != r.hostID {
		return game.ErrNotAuthority
	}
	if r.phase != PhaseOpen {
		return game.ErrAlreadyStarted
	}
	next := msg.Settings
	if err := next.Validate(); err != nil {
		return err
	}
	if err := r.roster.Resize(next.MaxPlayers); err != nil {
		return err
	}
	r.settings = next
	ev := r.snapshotEvent(EvtSettingsChanged)
	r.broadcast(ev)
	return nil
}

func (r *Room) handleAddCPU(msg AddCPU) error {
	if msg.PlayerID != r.hostID {
		return game.ErrNotAuthority
	}
	if r.phase != PhaseOpen {
		return game.ErrAlreadyStarted
	}
	slot, err := r.roster.AddCPU(msg.Difficulty, msg.SlotIndex, r.settings.Mode)
	if err != nil {
		return err
	}
	r.broadcastRosterChange(EvtPlayerJoined, slot.PlayerID)
	return nil
}

func (r *Room) handleRemoveCPU(msg RemoveCPU) error {
	if msg.PlayerID != r.hostID {
		return game.ErrNotAuthority
	}
	if r.phase != PhaseOpen {
		return game.ErrAlreadyStarted
	}
	if msg.SlotIndex < 0 || msg.SlotIndex >= r.roster.Size() {
		return game.ErrInvalidSlotIndex
	}
	removed := r.roster.Slots[msg.SlotIndex].PlayerID
	if err := r.roster.RemoveCPUAt(msg.SlotIndex); err != nil {
		return err
	}
	r.broadcastRosterChange(EvtPlayerLeft, removed)
	return nil
}

func (r *Room) handleSetCPUDifficulty(msg SetCPUDifficulty) error {
	if msg.PlayerID != r.hostID {
		return game.ErrNotAuthority
	}
	if r.phase != PhaseOpen {
		return game.ErrAlreadyStarted
	}
	if err := r.roster.SetCPUDifficulty(msg.SlotIndex, msg.Difficulty); err != nil {
		return err
	}
	r.broadcast(r.snapshotEvent(EvtRoomSnapshot))
	return nil
}

func (r *Room) handleKick(msg Kick) error {
	if msg.PlayerID != r.hostID {
		return game.ErrNotAuthority
	}
	slot := r.roster.Find(msg.Target)
	if slot == nil {
		return game.ErrUnknownPlayer
	}
	if msg.Target == r.hostID {
		// The authority leaves, it does not kick itself.
		return game.ErrInvalidSlotIndex
	}
	if out, ok := r.clients[msg.Target]; ok {
		// Terminal notice is best-effort: a full outbox must never block
		// the loop, the subscription ends either way.
		select {
		case out <- Event{Type: EvtKicked, Version: r.version, PlayerID: msg.Target}:
		default:
		}
		close(out)
		delete(r.clients, msg.Target)
	}
	r.roster.Remove(msg.Target)
	delete(r.positions, msg.Target)
	r.log.Info("player kicked", zap.Uint64("player", uint64(msg.Target)))
	r.broadcastRosterChange(EvtPlayerLeft, msg.Target)
	return nil
}

func (r *Room) handleStartMatch(msg StartMatch) error {
	if msg.PlayerID != r.hostID {
		return game.ErrNotAuthority
	}
	if r.phase != PhaseOpen {
		return game.ErrAlreadyStarted
	}
	if !r.roster.CanStart() {
		return game.ErrNotReady
	}

	r.phase = PhaseStarting
	ev := r.snapshotEvent(EvtMatchStarting)
	ev.Countdown = int(r.opts.StartCountdown / time.Second)
	r.broadcast(ev)

	if r.opts.StartCountdown <= 0 {
		r.beginMatch()
		return nil
	}
	gen := r.nextTimerGen()
	r.afterFunc(r.opts.StartCountdown, startTimerFired{gen: gen})
	return nil
}

func (r *Room) abortStart() {
	r.nextTimerGen() // invalidate the pending countdown
	r.phase = PhaseOpen
	ev := r.snapshotEvent(EvtRoomSnapshot)
	ev.Message = "match start aborted"
	r.broadcast(ev)
}

func (r *Room) beginMatch() {
	r.phase = PhaseInMatch
	r.matchStart = r.opts.Now()

	ammo := r.opts.StartingAmmo
	if ammo <= 0 {
		ammo = -1 // unlimited
	}
	limit := time.Duration(r.settings.TimeLimit) * time.Second
	r.board = match.NewScoreboard(r.opts.Scoring, r.settings.Mode, r.settings.ScoreGoal, limit)
	for i := range r.roster.Slots {
		s := &r.roster.Slots[i]
		if s.Occupied() {
			r.board.AddPlayer(s.PlayerID, s.PlayerName, s.TeamIndex, ammo)
		}
	}

	r.shotCtx = &match.Context{
		Arena:               r.opts.Arena,
		MaxLatencyTolerance: r.opts.LatencyTolerance,
		MaxOriginDrift:      r.opts.OriginDrift,
		LastPosition: func(id game.PlayerID) (match.Vec3, bool) {
			p, ok := r.positions[id]
			return p, ok
		},
		Alive: func(id game.PlayerID) bool {
			return r.roster.Find(id) != nil
		},
		Clock: r.elapsed,
	}

	r.log.Info("match started",
		zap.String("mode", string(r.settings.Mode)),
		zap.Int("players", r.roster.OccupiedCount()))

	ev := r.snapshotEvent(EvtMatchStarted)
	ev.Standings = r.board.Standings()
	r.broadcast(ev)

	if limit > 0 {
		gen := r.nextTimerGen()
		r.afterFunc(limit, limitTimerFired{gen: gen})
	}
}

func (r *Room) elapsed() time.Duration {
	return r.opts.Now().Sub(r.matchStart)
}

func (r *Room) handlePlayerMoved(msg PlayerMoved) {
	if r.roster.Find(msg.PlayerID) == nil {
		return
	}
	r.positions[msg.PlayerID] = msg.Position
}

// handleShot is the full adjudication path: ammo, validation, scoring,
// aggregation, end-condition check. Rejections degrade to a broadcast miss
// so the match never stalls on a bad report.
func (r *Room) handleShot(shot match.ArrowShotData) {
	if r.phase != PhaseInMatch {
		return
	}

	result := match.CreateMiss(shot.ShooterID)
	switch {
	case !r.board.ConsumeArrow(shot.ShooterID):
		r.log.Debug("shot rejected",
			zap.Uint64("shooter", uint64(shot.ShooterID)),
			zap.Error(game.ErrOutOfAmmo))
	default:
		if err := match.Validate(r.shotCtx, &shot); err != nil {
			r.log.Debug("shot rejected",
				zap.Uint64("shooter", uint64(shot.ShooterID)),
				zap.Error(err))
			break
		}
		if !shot.TargetID.IsEmpty() && shot.Location != match.HitMiss {
			result = match.HitResult{
				ShooterID:    shot.ShooterID,
				TargetID:     shot.TargetID,
				Location:     shot.Location,
				ScoreAwarded: r.opts.Scoring.GetScore(shot.Location),
				HitPosition:  shot.HitPosition,
				HitNormal:    shot.HitNormal,
				IsValidHit:   true,
			}
		}
	}

	updated, ended := r.board.Record(result, r.elapsed())
	r.version++
	r.broadcast(Event{Type: EvtHitResult, Version: r.version, Phase: r.phase, Hit: &result})
	if updated.PlayerID == shot.ShooterID {
		r.broadcast(Event{Type: EvtScoreUpdate, Version: r.version, Phase: r.phase, Score: &updated})
	}
	if ended {
		r.endMatch("match goal reached")
	}
}

func (r *Room) endMatch(reason string) {
	r.board.Freeze()
	standings := r.board.Standings()
	r.log.Info("match ended", zap.String("reason", reason))

	r.version++
	r.broadcast(Event{
		Type:      EvtMatchEnded,
		Version:   r.version,
		Phase:     r.phase,
		Standings: standings,
		Message:   reason,
	})

	if r.sink != nil {
		code, settings := r.code, r.settings
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.sink.StoreMatch(ctx, code, settings, standings); err != nil {
				r.log.Warn("failed to archive match results", zap.Error(err))
			}
		}()
	}

	r.closeRoom("match complete")
}

func (r *Room) closeRoom(reason string) {
	if r.phase == PhaseClosed {
		return
	}
	r.version++
	r.broadcast(Event{Type: EvtRoomClosed, Version: r.version, Message: reason})
	for id, ch := range r.clients {
		close(ch)
		delete(r.clients, id)
	}
	r.phase = PhaseClosed
	r.nextTimerGen()
	r.cancel()
	r.log.Info("room closed", zap.String("reason", reason))
	if r.onClosed != nil {
		go r.onClosed()
	}
}

// nextTimerGen invalidates any outstanding timer fire.
func (r *Room) nextTimerGen() int {
	r.timerGen++
	return r.timerGen
}

// afterFunc delivers msg to the inbox after d, unless the room is gone by
// then. The generation check at the receiver drops stale fires.
func (r *Room) afterFunc(d time.Duration, msg Msg) {
	time.AfterFunc(d, func() {
		select {
		case r.inbox <- msg:
		case <-r.ctx.Done():
		}
	})
}

func (r *Room) snapshotEvent(t EventType) Event {
	r.version++
	return Event{
		Type:     t,
		Version:  r.version,
		Phase:    r.phase,
		HostID:   r.hostID,
		Settings: r.publicSettings(),
		Slots:    r.roster.Clone().Slots,
	}
}

// publicSettings copies settings with the password blanked; it never leaves
// the authority.
func (r *Room) publicSettings() *game.RoomSettings {
	s := r.settings
	s.Password = ""
	return &s
}

func (r *Room) broadcastRosterChange(t EventType, id game.PlayerID) {
	ev := r.snapshotEvent(t)
	ev.PlayerID = id
	r.broadcast(ev)
}

func (r *Room) broadcast(ev Event) {
	for id, ch := range r.clients {
		select {
		case ch <- ev:
			// ok
		default:
			// Client is slow/full - drop the subscription. The transport
			// notices the closed channel and issues the Leave.
			close(ch)
			delete(r.clients, id)
		}
	}
}

// broadcastError surfaces a room-wide-relevant rejection to everyone seated,
// on top of the synchronous reply the requester gets.
func (r *Room) broadcastError(msg string) {
	r.version++
	r.broadcast(Event{Type: EvtError, Version: r.version, Phase: r.phase, Message: msg})
}

func (r *Room) view() View {
	v := View{
		Version:    r.version,
		Phase:      r.phase,
		HostID:     r.hostID,
		NumClients: len(r.clients),
		Settings:   r.settings,
		Slots:      r.roster.Clone().Slots,
	}
	if r.board != nil {
		v.Standings = r.board.Standings()
	}
	return v
}
