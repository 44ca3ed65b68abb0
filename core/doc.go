// Package core holds the entity graph mutation orchestrator: the Actions
// bound to one storage transaction, the post-commit task queue and the
// contracts storage, permission and redirection adapters implement. Adapters
// depend on this package; core never imports them.
package core
