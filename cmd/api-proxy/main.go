// Command api-proxy exposes the resilient client over HTTP: listings are
// streamed as NDJSON and batches of objects are fetched concurrently.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
