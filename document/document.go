// Package document is the in-memory project store behind the timeline:
// per-project task and dependency maps with a transactional mutation API,
// a cycle-prevention gate on dependency edges, an undo log, and
// subscriptions that deliver complete snapshots after every change.
//
// Mutations are synchronous and atomic: a transaction's changes become
// visible to snapshots and subscribers all at once, or not at all.
package document

import (
	"sort"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/CursiveCrow/cadence"
)

// Registry maps project ids to their stores. Construct one at application
// start and pass it by reference to every component that needs it; there
// is no package-level instance.
type Registry struct {
	mu       sync.Mutex
	projects map[string]*Project
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{projects: make(map[string]*Project)}
}

// Project returns the store for the given project id, creating it on
// first use.
func (r *Registry) Project(id string) *Project {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok {
		p = newProject(id)
		r.projects[id] = p
	}
	return p
}

// ProjectIDs returns the ids of all known projects, sorted.
func (r *Registry) ProjectIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.projects))
	for id := range r.projects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// State is one complete view of a project's contents. Deliveries to
// subscribers and returns from State are deep copies the receiver owns.
type State struct {
	Tasks        map[string]cadence.Task
	Dependencies map[string]cadence.Dependency
	Staffs       []cadence.Staff
}

// Project is the mutable store for a single project. All methods are safe
// for concurrent use; subscriber callbacks run outside the store lock.
type Project struct {
	id string

	mu     sync.Mutex
	tasks  map[string]cadence.Task
	deps   map[string]cadence.Dependency
	staffs []cadence.Staff

	subs    map[int]func(State)
	nextSub int

	undoLog []txn
	redoLog []txn
}

func newProject(id string) *Project {
	return &Project{
		id:    id,
		tasks: make(map[string]cadence.Task),
		deps:  make(map[string]cadence.Dependency),
		subs:  make(map[int]func(State)),
	}
}

// ID returns the project id.
func (p *Project) ID() string {
	return p.id
}

// --- Snapshots and subscriptions ---

// Snapshot returns deep copies of the task and dependency maps.
func (p *Project) Snapshot() (map[string]cadence.Task, map[string]cadence.Dependency) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return copyTasks(p.tasks), copyDeps(p.deps)
}

// State returns a deep copy of the full project contents.
func (p *Project) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

func (p *Project) stateLocked() State {
	return State{
		Tasks:        copyTasks(p.tasks),
		Dependencies: copyDeps(p.deps),
		Staffs:       append([]cadence.Staff(nil), p.staffs...),
	}
}

// Subscribe registers fn and synchronously delivers the current state to
// it. After that, fn runs once per completed mutation, always with the
// complete state rather than a delta. The returned function unsubscribes.
func (p *Project) Subscribe(fn func(State)) func() {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	st := p.stateLocked()
	p.mu.Unlock()

	fn(st)
	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

// notifyLocked snapshots the state and subscriber list under the lock; the
// caller must invoke the returned function after unlocking.
func (p *Project) notifyLocked() func() {
	st := p.stateLocked()
	fns := make([]func(State), 0, len(p.subs))
	ids := make([]int, 0, len(p.subs))
	for id := range p.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		fns = append(fns, p.subs[id])
	}
	return func() {
		for _, fn := range fns {
			fn(st)
		}
	}
}

func copyTasks(src map[string]cadence.Task) map[string]cadence.Task {
	dst := make(map[string]cadence.Task, len(src))
	for id, t := range src {
		dst[id] = t
	}
	return dst
}

func copyDeps(src map[string]cadence.Dependency) map[string]cadence.Dependency {
	dst := make(map[string]cadence.Dependency, len(src))
	for id, d := range src {
		dst[id] = d
	}
	return dst
}

// --- Task mutations ---

// CreateTask validates and inserts a task, minting an id and timestamps
// when absent, and returns the stored value.
func (p *Project) CreateTask(task cadence.Task) (cadence.Task, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	task.ProjectID = p.id
	now := time.Now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	if err := validateTask(task); err != nil {
		return cadence.Task{}, err
	}

	p.mu.Lock()
	p.applyLocked(txn{
		redo: change{putTasks: []cadence.Task{task}},
		undo: change{delTasks: []string{task.ID}},
	})
	notify := p.notifyLocked()
	p.mu.Unlock()

	notify()
	return task, nil
}

// UpdateTask applies the non-nil fields of patch to the task. The
// resulting task is validated before the change is committed.
func (p *Project) UpdateTask(id string, patch cadence.TaskPatch) error {
	p.mu.Lock()
	old, ok := p.tasks[id]
	if !ok {
		p.mu.Unlock()
		return ErrTaskNotFound
	}
	next := applyPatch(old, patch)
	next.UpdatedAt = time.Now()
	if err := validateTask(next); err != nil {
		p.mu.Unlock()
		return err
	}
	p.applyLocked(txn{
		redo: change{putTasks: []cadence.Task{next}},
		undo: change{putTasks: []cadence.Task{old}},
	})
	notify := p.notifyLocked()
	p.mu.Unlock()

	notify()
	return nil
}

// DeleteTask removes a task and cascades away every dependency touching
// it, so no dangling edge is ever observable.
func (p *Project) DeleteTask(id string) error {
	p.mu.Lock()
	old, ok := p.tasks[id]
	if !ok {
		p.mu.Unlock()
		return ErrTaskNotFound
	}

	var removedIDs []string
	var removed []cadence.Dependency
	for depID, dep := range p.deps {
		if dep.SrcTaskID == id || dep.DstTaskID == id {
			removedIDs = append(removedIDs, depID)
			removed = append(removed, dep)
		}
	}
	p.applyLocked(txn{
		redo: change{delTasks: []string{id}, delDeps: removedIDs},
		undo: change{putTasks: []cadence.Task{old}, putDeps: removed},
	})
	notify := p.notifyLocked()
	p.mu.Unlock()

	notify()
	return nil
}

func applyPatch(task cadence.Task, patch cadence.TaskPatch) cadence.Task {
	if patch.Title != nil {
		task.Title = *patch.Title
	}
	if patch.Description != nil {
		task.Description = *patch.Description
	}
	if patch.Assignee != nil {
		task.Assignee = *patch.Assignee
	}
	if patch.Start != nil {
		task.Start = *patch.Start
	}
	if patch.DurationDays != nil {
		task.DurationDays = *patch.DurationDays
	}
	if patch.Status != nil {
		task.Status = *patch.Status
	}
	if patch.StaffID != nil {
		task.StaffID = *patch.StaffID
	}
	if patch.StaffLine != nil {
		task.StaffLine = *patch.StaffLine
	}
	if patch.ColorHex != nil {
		task.ColorHex = *patch.ColorHex
	}
	return task
}

// --- Dependency mutations ---

// CreateDependency validates and inserts a directed edge. Self-loops,
// missing endpoints, duplicate edges, and edges that would close a cycle
// are rejected with the matching sentinel error.
func (p *Project) CreateDependency(dep cadence.Dependency) (cadence.Dependency, error) {
	if dep.SrcTaskID == dep.DstTaskID {
		return cadence.Dependency{}, ErrSelfDependency
	}
	if dep.ID == "" {
		dep.ID = uuid.NewString()
	}
	dep.ProjectID = p.id
	now := time.Now()
	if dep.CreatedAt.IsZero() {
		dep.CreatedAt = now
	}
	dep.UpdatedAt = now
	if err := validateDependency(dep); err != nil {
		return cadence.Dependency{}, err
	}

	p.mu.Lock()
	if _, ok := p.tasks[dep.SrcTaskID]; !ok {
		p.mu.Unlock()
		return cadence.Dependency{}, ErrTaskNotFound
	}
	if _, ok := p.tasks[dep.DstTaskID]; !ok {
		p.mu.Unlock()
		return cadence.Dependency{}, ErrTaskNotFound
	}
	for _, existing := range p.deps {
		if existing.SrcTaskID == dep.SrcTaskID && existing.DstTaskID == dep.DstTaskID {
			p.mu.Unlock()
			return cadence.Dependency{}, ErrDuplicateDependency
		}
	}
	if p.wouldCycleLocked(dep.SrcTaskID, dep.DstTaskID) {
		p.mu.Unlock()
		return cadence.Dependency{}, ErrDependencyCycle
	}

	p.applyLocked(txn{
		redo: change{putDeps: []cadence.Dependency{dep}},
		undo: change{delDeps: []string{dep.ID}},
	})
	notify := p.notifyLocked()
	p.mu.Unlock()

	notify()
	return dep, nil
}

// DeleteDependency removes a single edge.
func (p *Project) DeleteDependency(id string) error {
	p.mu.Lock()
	old, ok := p.deps[id]
	if !ok {
		p.mu.Unlock()
		return ErrDependencyNotFound
	}
	p.applyLocked(txn{
		redo: change{delDeps: []string{id}},
		undo: change{putDeps: []cadence.Dependency{old}},
	})
	notify := p.notifyLocked()
	p.mu.Unlock()

	notify()
	return nil
}

// wouldCycleLocked reports whether adding src→dst would close a directed
// cycle. It builds the adjacency list over the proposed edge set and runs
// an iterative depth-first traversal with on-path vs processed marks; a
// revisit of an on-path node signals a cycle.
func (p *Project) wouldCycleLocked(src, dst string) bool {
	adj := make(map[string][]string, len(p.tasks))
	for _, d := range p.deps {
		adj[d.SrcTaskID] = append(adj[d.SrcTaskID], d.DstTaskID)
	}
	adj[src] = append(adj[src], dst)

	const (
		unvisited = iota
		onPath
		processed
	)
	marks := make(map[string]int, len(adj))

	type frame struct {
		node string
		next int
	}
	var stack []frame

	for start := range adj {
		if marks[start] != unvisited {
			continue
		}
		marks[start] = onPath
		stack = append(stack[:0], frame{node: start})

		for len(stack) > 0 {
			f := &stack[len(stack)-1]
			children := adj[f.node]
			if f.next < len(children) {
				child := children[f.next]
				f.next++
				switch marks[child] {
				case onPath:
					return true
				case unvisited:
					marks[child] = onPath
					stack = append(stack, frame{node: child})
				}
				continue
			}
			marks[f.node] = processed
			stack = stack[:len(stack)-1]
		}
	}
	return false
}

// --- Staffs ---

// SetStaffs replaces the project's staff list. Staff edits are not part
// of the undo log; subscribers still get notified.
func (p *Project) SetStaffs(staffs []cadence.Staff) {
	p.mu.Lock()
	p.staffs = append(p.staffs[:0], staffs...)
	notify := p.notifyLocked()
	p.mu.Unlock()
	notify()
}

// Staffs returns a copy of the project's staff list.
func (p *Project) Staffs() []cadence.Staff {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]cadence.Staff(nil), p.staffs...)
}

// --- Validation ---

func validateTask(t cadence.Task) error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.ID, validation.Required),
		validation.Field(&t.Title, validation.Required),
		validation.Field(&t.DurationDays, validation.Required, validation.Min(1)),
		validation.Field(&t.StaffID, validation.Required),
		validation.Field(&t.StaffLine, validation.Min(0)),
	)
}

func validateDependency(d cadence.Dependency) error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.ID, validation.Required),
		validation.Field(&d.SrcTaskID, validation.Required),
		validation.Field(&d.DstTaskID, validation.Required),
		validation.Field(&d.Type, validation.In(
			cadence.FinishToStart,
			cadence.StartToStart,
			cadence.FinishToFinish,
			cadence.StartToFinish,
		)),
	)
}
