// Package command defines the vaultkv-cli commands.
//
//   - root.go: application, global flags, connection setup
//   - kv.go: put, get, delete, ping and hello
//   - shell.go: interactive shell over one connection
//
// Commands parse their arguments, call the server through the connection
// manager and print an output.Result in the selected format.
package command
