// Package task layers declarative, dependency-ordered tasks on the engine.
//
// A task is a node with named prerequisites. Resolving a task first
// resolves everything it depends on, once, and passes their results to it
// as arguments, so the task's audit trail records where its inputs came
// from. A task that is revisited while still being resolved is a
// dependency cycle, reported with the path that closed it:
//
//	dependency cycle: a -> b -> a
package task
