package distributed

import (
	"context"
	"encoding/json"

	"github.com/charmbracelet/log"

	"flotilla/internal/domain"
	"flotilla/internal/storage"
)

// BroadcastEmitter publishes store events on the broker so every relay can
// re-emit them locally. It is the emitter wired into the writer's database
// store.
type BroadcastEmitter struct {
	broker Broker
}

func NewBroadcastEmitter(broker Broker) *BroadcastEmitter {
	return &BroadcastEmitter{broker: broker}
}

func (e *BroadcastEmitter) Emit(event domain.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error("broadcast: cannot marshal event", "scope", event.Scope, "error", err)
		return
	}
	if err := e.broker.PublishEvent(context.Background(), data); err != nil {
		log.Error("broadcast: cannot publish event", "scope", event.Scope, "error", err)
	}
}

// Writer applies the command stream to the backing store, one command at a
// time in arrival order. Exactly one instance runs it, under the leadership
// lock; the store's emitter broadcasts the resulting events.
type Writer struct {
	store  storage.Store
	broker Broker
}

func NewWriter(store storage.Store, broker Broker) *Writer {
	return &Writer{store: store, broker: broker}
}

// Run consumes commands until ctx is done. A rejected command is logged and
// dropped: the relay already returned success to its caller, and replaying
// cannot make the store accept it.
func (w *Writer) Run(ctx context.Context) error {
	return w.broker.ConsumeCommands(ctx, w.apply)
}

func (w *Writer) apply(ctx context.Context, data []byte) {
	cmd, err := DecodeCommand(data)
	if err != nil {
		log.Error("writer: dropping undecodable command", "error", err)
		return
	}

	if err := cmd.Apply(ctx, w.store); err != nil {
		if storage.IsInconsistencyData(err) {
			log.Error("writer: command hit a data inconsistency", "command", cmd.CommandName(), "error", err)
			return
		}
		log.Warn("writer: command rejected", "command", cmd.CommandName(), "error", err)
	}
}
