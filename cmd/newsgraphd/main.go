// Command newsgraphd runs the newsgraph extraction daemon with the default
// configuration lookup. Use `newsgraph run --config` to point at another file.
package main

import (
	"context"
	"log"

	"newsgraph/internal/config"
	"newsgraph/internal/daemonrun"
)

func main() {
	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{}); err != nil {
		log.Fatalf("newsgraphd: %v", err)
	}
}
