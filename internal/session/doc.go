// Package session gates the stream on the backend's authentication state.
//
// Client talks to the auth-status and logout endpoints. Gate polls auth
// status on a cron schedule, connects the stream while authenticated and
// tears it down, clearing cached data, when authentication is lost or the
// user logs out.
package session
