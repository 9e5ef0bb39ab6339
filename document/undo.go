package document

import "github.com/CursiveCrow/cadence"

// change is one direction of a transaction: map puts and deletes applied
// verbatim. Deletes run before puts so a change can replace an entry.
type change struct {
	putTasks []cadence.Task
	delTasks []string
	putDeps  []cadence.Dependency
	delDeps  []string
}

// txn pairs a change with its inverse. The redo side is what the mutation
// did; the undo side restores the values it displaced.
type txn struct {
	undo change
	redo change
}

// applyLocked commits a transaction's redo side, records it on the undo
// log, and drops any redo history. Changes are inverses of states that
// already passed validation, so they apply without re-checking.
func (p *Project) applyLocked(t txn) {
	p.applyChangeLocked(t.redo)
	p.undoLog = append(p.undoLog, t)
	p.redoLog = p.redoLog[:0]
}

func (p *Project) applyChangeLocked(c change) {
	for _, id := range c.delTasks {
		delete(p.tasks, id)
	}
	for _, id := range c.delDeps {
		delete(p.deps, id)
	}
	for _, t := range c.putTasks {
		p.tasks[t.ID] = t
	}
	for _, d := range c.putDeps {
		p.deps[d.ID] = d
	}
}

// Undo reverts the most recent mutation. It reports false when the log
// is empty.
func (p *Project) Undo() bool {
	p.mu.Lock()
	if len(p.undoLog) == 0 {
		p.mu.Unlock()
		return false
	}
	t := p.undoLog[len(p.undoLog)-1]
	p.undoLog = p.undoLog[:len(p.undoLog)-1]
	p.applyChangeLocked(t.undo)
	p.redoLog = append(p.redoLog, t)
	notify := p.notifyLocked()
	p.mu.Unlock()

	notify()
	return true
}

// Redo reapplies the most recently undone mutation. It reports false
// when there is nothing to redo.
func (p *Project) Redo() bool {
	p.mu.Lock()
	if len(p.redoLog) == 0 {
		p.mu.Unlock()
		return false
	}
	t := p.redoLog[len(p.redoLog)-1]
	p.redoLog = p.redoLog[:len(p.redoLog)-1]
	p.applyChangeLocked(t.redo)
	p.undoLog = append(p.undoLog, t)
	notify := p.notifyLocked()
	p.mu.Unlock()

	notify()
	return true
}

// CanUndo reports whether Undo would take effect.
func (p *Project) CanUndo() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.undoLog) > 0
}

// CanRedo reports whether Redo would take effect.
func (p *Project) CanRedo() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.redoLog) > 0
}
