// Package session keeps client-side conversations between requests. A
// conversation is what a chat client would send back on its next request:
// user messages and final assistant replies, the latter carrying the State
// with their tool exchanges.
package session
