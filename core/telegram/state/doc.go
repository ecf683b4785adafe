// Package state provides a lightweight FSM/session manager for Telegram bots.
// It is intentionally domain-agnostic so it can be reused across bots: a
// session is a step marker plus string fields, stored in memory or Redis.
package state
