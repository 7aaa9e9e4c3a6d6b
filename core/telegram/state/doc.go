// Package state keeps per-chat conversation scratch in memory.
//
// Every access to a chat goes through Store.With, which holds that chat's lock
// for the duration of the callback, so updates from one chat are applied one at
// a time while different chats proceed in parallel. Idle entries are evicted
// after a TTL.
package state
