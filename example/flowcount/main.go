// Example flowcount counts unique plankton passing through a flow cell
// video, camera or image and exports the counts per species.
//
//	flowcount config init planktrack.yaml
//	flowcount run --config planktrack.yaml --source flow.mp4 --display
//	flowcount replay results/detections.jsonl
//	flowcount history --location "Pier 7"
package main

import (
	"context"
	"fmt"
	"github.com/swdee/go-planktrack/config"
	"os"
	"os/signal"
	"syscall"
)

func main() {

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v, err := config.NewViper()

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := rootCommand(v).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
