/*
Package resilience provides a circuit breaker for connecting to the
arranging app.

# Overview

Starting the arranger dials the app. When the app is not running every
start attempt would otherwise block for a full dial timeout; the breaker
fails fast after repeated failures and lets one probe through after a
cooldown.

# Usage

	breaker := resilience.New("app", resilience.Settings{
		Threshold: 3,
		Cooldown:  10 * time.Second,
	})

	conn, err := resilience.Execute(ctx, breaker, dial)

# Pattern

	Closed --[failures]-> Open --[cooldown]-> Half-Open --[success]-> Closed
	                                             |
	                                         [failure]
	                                             v
	                                            Open
*/
package resilience
