// Package cli provides the interactive matakeeper command-line client, the
// popup of the extension.
//
// It wires configuration, the agent client and an interactive REPL. Typical
// flow: resolve the active user, start a background connectivity watcher,
// and execute user commands until "exit".
//
// Key features:
//   - whoami / use / logout: inspect and switch the active user
//   - keys / users: key lookup and account discovery with diagnostics
//   - store-keys / unlock: create a sealed key pair, open it again
//   - get / set / sync: raw storage access and full synchronization
//   - export / settings: backups and extension settings
//
// When no active user resolves, the prompt shows the "no user" state and
// the user is asked to log in first.
//
// The REPL is started via App.Root(ctx), which blocks until the user exits.
package cli
