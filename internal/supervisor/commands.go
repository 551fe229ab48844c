//go:build linux || darwin

package supervisor

import (
	"context"
	"time"

	"github.com/nyxproc/nyx/internal/audit"
	"github.com/nyxproc/nyx/internal/control"
	"github.com/nyxproc/nyx/internal/watch"
)

// handleCommand services one control.Command on the supervisor's single
// goroutine, translating it into watch.Machine calls and replying
// exactly once, per control.Command's contract.
func (s *Supervisor) handleCommand(cmd control.Command) {
	now := time.Now()
	s.recordAudit(cmd)

	switch cmd.Op {
	case control.OpStart:
		m, ok := s.machines[cmd.Watch]
		if !ok {
			cmd.Reply(control.Result{Err: control.ErrNotFound})
			return
		}
		m.RequestStart(now)
		cmd.Reply(control.Result{})

	case control.OpStop:
		m, ok := s.machines[cmd.Watch]
		if !ok {
			cmd.Reply(control.Result{Err: control.ErrNotFound})
			return
		}
		m.RequestStop(now)
		cmd.Reply(control.Result{})

	case control.OpReload:
		s.reload()
		cmd.Reply(control.Result{})

	case control.OpStatus:
		m, ok := s.machines[cmd.Watch]
		if !ok {
			cmd.Reply(control.Result{Err: control.ErrNotFound})
			return
		}
		cmd.Reply(control.Result{Status: toWatchStatus(cmd.Watch, m)})

	case control.OpList:
		statuses := make([]control.WatchStatus, 0, len(s.machines))
		for name, m := range s.machines {
			statuses = append(statuses, toWatchStatus(name, m))
		}
		cmd.Reply(control.Result{Statuses: statuses})

	case control.OpHistory:
		entries, err := s.historyStore.Recent(context.Background(), cmd.Watch, cmd.HistoryN)
		if err != nil {
			cmd.Reply(control.Result{Err: err})
			return
		}
		cmd.Reply(control.Result{Entries: entries})

	default:
		cmd.Reply(control.Result{Err: control.ErrNotFound})
	}
}

func toWatchStatus(name string, m *watch.Machine) control.WatchStatus {
	st := m.State()
	return control.WatchStatus{Name: name, Pid: st.Pid, Phase: st.Current.String()}
}

// auditableOps are the control operations that mutate supervisor state
// and are therefore worth an accountable, tamper-evident record; status
// queries are not audited.
var auditableOps = map[control.Op]string{
	control.OpStart:  "start",
	control.OpStop:   "stop",
	control.OpReload: "reload",
}

// recordAudit appends a tamper-evident record of a mutating control
// request to s.auditLog. A failure to append is logged but never blocks
// or fails the command itself: the audit trail is a supplementary
// record, not a gate on supervision.
func (s *Supervisor) recordAudit(cmd control.Command) {
	op, ok := auditableOps[cmd.Op]
	if !ok || s.auditLog == nil {
		return
	}
	if _, err := s.auditLog.RecordControlAction(audit.ControlAction{Op: op, Watch: cmd.Watch}); err != nil {
		s.log.Warn("supervisor: failed to append audit entry", "op", op, "watch", cmd.Watch, "error", err)
	}
}
