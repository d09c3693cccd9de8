// Command arrangerctl drives a running window arranger daemon over its
// control API and prints the answers as JSON.
//
// Usage:
//
//	arrangerctl start
//	arrangerctl save work 5
//	arrangerctl load work
//	arrangerctl -addr http://127.0.0.1:9000 slots
package main
