// Package forker implements the Go-native equivalent of spec.md §4.1: a
// dedicated child process ("the forker") whose sole job is to spawn and
// double-fork watch processes on behalf of the supervisor. Go cannot
// safely call bare fork() once the runtime has started goroutines, so
// the supervisor instead re-executes its own binary with a hidden argv[0]
// marker (see marker.go) to obtain the forker process, and the forker in
// turn re-execs itself a second time per spawn to perform the
// async-signal-safe half of the double fork before calling syscall.Exec.
package forker

// SpawnDescriptor is the builder-style, finalized-before-fork spawn
// description from Design Notes §9 ("Fork/exec ergonomics"): argv, cwd,
// env, stdio redirections, and credential change, resolved once in the
// forker before the fork so the forked child touches only
// already-resolved, async-signal-safe data before calling execve.
type SpawnDescriptor struct {
	WatchID   int32
	WatchName string

	Argv []string
	Dir  string
	Env  map[string]string

	UID string
	GID string

	LogFile   string
	ErrorFile string
	Proxy     bool // PID-1 + quiet=false: pass stdio through untouched

	// Stop, when true, marks this as a stop-command spawn: NYX_PID is set
	// to NyxPid in the child's environment and no PID handoff occurs.
	Stop   bool
	NyxPid int32
}

// Builder accumulates SpawnDescriptor fields with a fluent API, mirroring
// the config-to-exec.Cmd translation style used across the example
// corpus's process-supervision libraries.
type Builder struct {
	d SpawnDescriptor
}

func NewBuilder(watchID int32, watchName string) *Builder {
	return &Builder{d: SpawnDescriptor{WatchID: watchID, WatchName: watchName, Env: map[string]string{}}}
}

func (b *Builder) Argv(argv []string) *Builder {
	b.d.Argv = append([]string(nil), argv...)
	return b
}

func (b *Builder) Dir(dir string) *Builder {
	b.d.Dir = dir
	return b
}

func (b *Builder) Env(env map[string]string) *Builder {
	for k, v := range env {
		b.d.Env[k] = v
	}
	return b
}

func (b *Builder) Credentials(uid, gid string) *Builder {
	b.d.UID = uid
	b.d.GID = gid
	return b
}

func (b *Builder) Stdio(logFile, errorFile string, proxy bool) *Builder {
	b.d.LogFile = logFile
	b.d.ErrorFile = errorFile
	b.d.Proxy = proxy
	return b
}

func (b *Builder) AsStop(nyxPid int32) *Builder {
	b.d.Stop = true
	b.d.NyxPid = nyxPid
	return b
}

func (b *Builder) Build() SpawnDescriptor {
	return b.d
}
