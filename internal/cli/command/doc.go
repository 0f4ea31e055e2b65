// Package command provides the talorix-cli commands.
//
//   - root.go: application, global flags, repository access
//   - user.go: user add, grant, revoke, list
//   - node.go: node add, list
//   - server.go: server add, list
//   - apikey.go: apikey create, revoke, list
//
// Commands work directly on the storage backend named by the panel
// configuration. The badger backend holds an exclusive directory lock,
// so the panel must be stopped first; sqlite can be shared.
package command
