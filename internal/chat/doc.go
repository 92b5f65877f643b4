// Package chat extends the base protocol with a multi-user chat room.
//
// The chat Protocol routes join, chat and leave and falls back to the base
// protocol for everything else, so a chat server still answers ping and
// echo. Chat lines are fanned out through the server to every other open
// connection and can be kept in a SQLite history that is replayed to new
// members.
package chat
