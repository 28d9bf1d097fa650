// Package httpapi serves the JSON API: account registration and login,
// per-user todos, the window scheduler and operational endpoints.
//
// The listener runs under a supervisor restart loop. Handler-level settings
// (CORS, dev endpoints, pprof) are swapped in place on Reconfigure; address
// and timeout changes restart the listener.
package httpapi
