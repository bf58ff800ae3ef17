// Package nodes maps the process names used in workflow documents to
// engine processes, and provides the builtin ones.
package nodes
