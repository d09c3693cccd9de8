// Package http implements the control API of the window arranger daemon.
//
// Lifecycle, current and live arrangements, memory slots, settings and the
// window host registry are exposed as JSON endpoints on gin. Domain errors
// map onto status codes: wrong running state 409, missing slot or index
// 404, malformed input or arrangement 400, app failures 502/504.
package http
