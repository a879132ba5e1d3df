// Package marzban is the panels.Client for the Marzban panel HTTP API.
//
// The client logs in as the sudo admin configured for the deployment, caches
// the bearer token, and refreshes it once when a request comes back 401.
// Transport failures and 5xx responses are retried with exponential backoff
// up to MaxRetries; any other error status is returned immediately.
//
// Every failure is a *panels.TransientAPIError wrapping one of
// panels.ErrAuth, panels.ErrNetwork or panels.ErrRejected.
//
// Endpoints used:
//
//	POST   /api/admin/token        form login, returns access_token
//	GET    /api/users?admin=       paginated user listing
//	PUT    /api/user/{username}    status changes
//	DELETE /api/user/{username}    user removal
//	PUT    /api/admin/{username}   delegated admin password rotation
package marzban
