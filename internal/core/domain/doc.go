// Package domain defines the panel's core entities and errors.
//
// The relay reads these types and never mutates them:
//
//   - User: panel account, including the subuser grants it holds
//   - Server: a workload hosted on a node
//   - Node: an agent endpoint and its shared secret
//   - APIKey: a programmatic credential stored by digest
//   - Session: server-side browser session
//   - Identity: the caller identity resolved for one connection
//   - Errors: coded errors and their close reasons
package domain
