// Package ipc exposes the daemon over JSON-RPC on a Unix domain socket and
// ships the matching client used by the CLI.
//
// It owns socket lifecycle management, the request/response DTOs and the
// conversion between controller state and the flat wire representation.
// Run-active rejections travel as a response code and are turned back into
// conversion.ErrRunActive by the client.
package ipc
