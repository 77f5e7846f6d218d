package types

// Client -> Server (websocket, JSON; join happens in the handshake query:
// ?code=...&name=...&password=...&preset=...)
//
// set_ready:
//   ready: boolean
//
// update_settings (authority only):
//   settings: RoomSettings
//
// add_cpu (authority only):
//   difficulty: "easy" | "normal" | "hard" | "expert"
//   slot_index: number (omit for first empty slot; 0 addresses slot 0)
//
// remove_cpu (authority only):
//   slot_index: number
//
// set_cpu_difficulty (authority only):
//   slot_index: number
//   difficulty: "easy" | "normal" | "hard" | "expert"
//
// kick_player (authority only):
//   target_id: number
//
// start_match (authority only): {}
//
// leave: {}
//
// player_moved:
//   position: { x, y, z }
//
// shot_fired:
//   shot: ArrowShotData (shooter_id is overwritten server-side)

// Server -> Client
// Every room event carries:
//   type: "room_snapshot" | "player_joined" | "player_left" |
//         "settings_changed" | "ready_changed" | "match_starting" |
//         "match_started" | "hit_result" | "score_update" |
//         "match_ended" | "kicked" | "room_closed" | "error"
//   version: number (monotonic per room; later versions supersede earlier)
//
// Roster-shaped events additionally carry:
//   phase: "open" | "starting" | "in_match" | "closed"
//   host_id: number (the current authority)
//   settings: RoomSettings (password always blank)
//   slots: PlayerSlot[]
//
// hit_result:
//   hit: HitResult
//
// score_update:
//   score: PlayerScore
//
// match_ended:
//   standings: PlayerScore[] (sorted, final)
//   message: string
//
// error (room event, broadcast to everyone seated, e.g. a rejected join):
//   message: string
//
// Request rejections are addressed to the requester only:
//   type: "error"
//   error: string
