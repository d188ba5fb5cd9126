// Package storage provides utilities shared across conversation store
// implementations: sentinel errors, tenant context helpers, and the merge
// rules every store applies when resolving a response key or changing the
// active tab.
//
// Store implementations (memory, postgres, sqlite) satisfy the
// transport.ConversationStore interface defined in pkg/transport/handler.go.
package storage
