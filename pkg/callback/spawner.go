package callback

// Spawner schedules a unit of work. Implementations must not block waiting
// for the task to complete.
type Spawner interface {
	Spawn(task func())
}

// SpawnerFunc adapts a function to the Spawner interface.
type SpawnerFunc func(task func())

// Spawn calls f(task).
func (f SpawnerFunc) Spawn(task func()) {
	f(task)
}

// GoSpawner runs every task on its own goroutine.
type GoSpawner struct{}

// Spawn starts task on a new goroutine.
func (GoSpawner) Spawn(task func()) {
	go task()
}

// InlineSpawner runs tasks synchronously on the caller's goroutine.
// Useful in tests where deterministic completion order is needed.
type InlineSpawner struct{}

// Spawn runs task immediately.
func (InlineSpawner) Spawn(task func()) {
	task()
}
