// Package transports registers all known client proxy transports.
// Import this package to make them available via proxy.New():
//
//	import _ "github.com/randalmurphal/fedkit/transports"
package transports

import (
	_ "github.com/randalmurphal/fedkit/inmemory"
	_ "github.com/randalmurphal/fedkit/rpc"
)
