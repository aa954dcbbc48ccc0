package callback

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSpawner queues tasks instead of running them so tests can inspect
// schedule order independently of completion order.
type recordingSpawner struct {
	mu    sync.Mutex
	tasks []func()
}

func (s *recordingSpawner) Spawn(task func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
}

func (s *recordingSpawner) runAll() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()

	for _, task := range tasks {
		task()
	}
}

func TestRegistry_Bind(t *testing.T) {
	registry := NewRegistry(InlineSpawner{}, zerolog.Nop())

	registry.Bind("greeting", func(json.RawMessage) {})
	registry.Bind("greeting", func(json.RawMessage) {})
	registry.Bind("farewell", func(json.RawMessage) {})
	registry.Bind("ignored", nil)

	assert.Equal(t, 2, registry.Count("greeting"))
	assert.Equal(t, 1, registry.Count("farewell"))
	assert.Equal(t, 0, registry.Count("ignored"))
	assert.Equal(t, []string{"farewell", "greeting"}, registry.Events())
}

func TestRegistry_Dispatch(t *testing.T) {
	t.Run("schedules_in_registration_order", func(t *testing.T) {
		spawner := &recordingSpawner{}
		registry := NewRegistry(spawner, zerolog.Nop())

		var order []string
		registry.Bind("tick", func(json.RawMessage) { order = append(order, "first") })
		registry.Bind("tick", func(json.RawMessage) { order = append(order, "second") })
		registry.Bind("tick", func(json.RawMessage) { order = append(order, "third") })

		scheduled := registry.Dispatch("tick", nil)
		assert.Equal(t, 3, scheduled)
		assert.Empty(t, order, "dispatch must not run callbacks itself")

		spawner.runAll()
		assert.Equal(t, []string{"first", "second", "third"}, order)
	})

	t.Run("passes_payload_and_bound_context", func(t *testing.T) {
		registry := NewRegistry(InlineSpawner{}, zerolog.Nop())

		type received struct {
			prefix string
			data   string
		}
		var got []received
		for _, prefix := range []string{"a", "b"} {
			prefix := prefix
			registry.Bind("evt", func(data json.RawMessage) {
				got = append(got, received{prefix: prefix, data: string(data)})
			})
		}

		registry.Dispatch("evt", json.RawMessage(`{"n":1}`))
		assert.Equal(t, []received{{"a", `{"n":1}`}, {"b", `{"n":1}`}}, got)
	})

	t.Run("unbound_event_is_ignored", func(t *testing.T) {
		spawner := &recordingSpawner{}
		registry := NewRegistry(spawner, zerolog.Nop())
		registry.Bind("other", func(json.RawMessage) {})

		assert.NotPanics(t, func() {
			assert.Equal(t, 0, registry.Dispatch("missing", json.RawMessage(`{}`)))
		})
		assert.Empty(t, spawner.tasks)
		assert.Equal(t, []string{"other"}, registry.Events())
	})

	t.Run("panicking_callback_is_isolated", func(t *testing.T) {
		registry := NewRegistry(InlineSpawner{}, zerolog.Nop())

		ran := false
		registry.Bind("boom", func(json.RawMessage) { panic("callback failure") })
		registry.Bind("boom", func(json.RawMessage) { ran = true })

		assert.NotPanics(t, func() {
			registry.Dispatch("boom", nil)
		})
		assert.True(t, ran, "later callbacks still run after an earlier one panics")
	})

	t.Run("does_not_wait_for_callbacks", func(t *testing.T) {
		registry := NewRegistry(GoSpawner{}, zerolog.Nop())

		release := make(chan struct{})
		finished := make(chan struct{})
		registry.Bind("slow", func(json.RawMessage) {
			<-release
			close(finished)
		})

		returned := make(chan struct{})
		go func() {
			registry.Dispatch("slow", nil)
			close(returned)
		}()

		select {
		case <-returned:
		case <-time.After(time.Second):
			t.Fatal("Dispatch blocked on a running callback")
		}

		close(release)
		select {
		case <-finished:
		case <-time.After(time.Second):
			t.Fatal("callback never completed")
		}
	})

	t.Run("bind_during_dispatch", func(t *testing.T) {
		registry := NewRegistry(InlineSpawner{}, zerolog.Nop())

		calls := 0
		registry.Bind("grow", func(json.RawMessage) {
			calls++
			registry.Bind("grow", func(json.RawMessage) { calls++ })
		})

		registry.Dispatch("grow", nil)
		require.Equal(t, 1, calls, "registrations added during dispatch apply to the next dispatch")
		assert.Equal(t, 2, registry.Count("grow"))
	})
}

func TestNewRegistry_DefaultSpawner(t *testing.T) {
	registry := NewRegistry(nil, zerolog.Nop())
	_, ok := registry.spawner.(GoSpawner)
	assert.True(t, ok)
}

func TestSpawnerFunc(t *testing.T) {
	var ran bool
	SpawnerFunc(func(task func()) { task() }).Spawn(func() { ran = true })
	assert.True(t, ran)
}
