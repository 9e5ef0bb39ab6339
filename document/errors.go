package document

import "errors"

// Mutation rejections. The store validates every transaction before
// applying it and reports the reason instead of silently dropping the
// request; callers for whom a dropped gesture is acceptable can log
// these and move on.
var (
	ErrTaskNotFound        = errors.New("document: task not found")
	ErrDependencyNotFound  = errors.New("document: dependency not found")
	ErrSelfDependency      = errors.New("document: dependency endpoints must differ")
	ErrDuplicateDependency = errors.New("document: dependency already exists")
	ErrDependencyCycle     = errors.New("document: dependency would create a cycle")
)
