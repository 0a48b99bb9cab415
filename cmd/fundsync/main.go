// fundsync keeps a signed-in user's funds state in sync with the dashboard
// backend over its realtime channel, falling back to polling.
//
// Usage:
//
//	fundsync run --config configs/fundsync.yaml
//	fundsync version
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
