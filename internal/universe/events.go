// Package universe implements Universe: the process-singleton registry of
// live GameSystems, per spec.md §4.4. Grounded on
// original_source/game/universe.py (the three-variant event stream,
// create_game's retry-on-collision code generator) and
// original_source/app/world.py/app/game.py for the read-query/visibility
// rules the HTTP layer expects Universe to apply.
package universe

import (
	"github.com/codingarctic/loreshifter-runtime/internal/gamesys"
	"github.com/codingarctic/loreshifter-runtime/internal/store"
)

// Event is the closed three-variant set Universe emits, per spec.md §4.4.
type Event interface {
	isUniverseEvent()
}

type baseEvent struct{}

func (baseEvent) isUniverseEvent() {}

// NewWorldEvent fires after create_world.
type NewWorldEvent struct {
	baseEvent
	World *store.World
}

// WorldUpdateEvent fires after a world's fields change (update or
// soft-delete). A copy emits NewWorldEvent for the new row instead.
type WorldUpdateEvent struct {
	baseEvent
	World *store.World
}

// GameEvent wraps a single event forwarded up from one live GameSystem.
// WebSocketController extracts GameID from Inner to pick the fan-out set.
type GameEvent struct {
	baseEvent
	GameID int64
	Inner  gamesys.Event
}
