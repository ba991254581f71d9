package main

import (
	"flag"
	"fmt"
	"os"

	"raygrid/tools/replayplayer"
)

func main() {
	dir := flag.String("dir", "", "replay root to list bundles from")
	path := flag.String("path", "", "bundle directory or manifest.json to summarise")
	top := flag.Int("top", 10, "number of most struck obstacles to show")
	jsonFlag := flag.Bool("json", false, "emit JSON instead of human-readable output")
	flag.Parse()

	switch {
	case *path != "":
		summary, err := replayplayer.Summarize(*path, *top)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(2)
		}
		if *jsonFlag {
			emitJSON(summary)
			return
		}
		fmt.Printf("%s (seed %d)\n", summary.Dir, summary.Seed)
		fmt.Printf("  ticks: %d..%d  frames: %d\n", summary.FirstTick, summary.LastTick, summary.Frames)
		fmt.Printf("  obstacle hits: %d  boundary exits: %d  mean flight: %.1f ticks\n",
			summary.ObstacleHits, summary.BoundaryExits, summary.MeanFlight)
		for _, entry := range summary.TopObstacles {
			fmt.Printf("    obstacle %d: %d\n", entry.Index, entry.Hits)
		}
	case *dir != "":
		entries, err := replayplayer.List(*dir)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(2)
		}
		if *jsonFlag {
			emitJSON(entries)
			return
		}
		for _, entry := range entries {
			if !entry.Closed {
				fmt.Printf("%s (interrupted, created %s)\n", entry.Dir, entry.Manifest.CreatedAt)
				continue
			}
			fmt.Printf("%s (seed %d, closed %s)\n", entry.Dir, entry.Header.Seed, entry.Header.ClosedAt)
			fmt.Printf("  ticks: %d..%d  frames: %d  hits: %d  exits: %d  obstacles: %d\n",
				entry.Header.FirstTick, entry.Header.LastTick, entry.Header.Frames,
				entry.Hits, entry.Exits, entry.Header.Scene.Obstacles)
		}
	default:
		fmt.Fprintln(os.Stderr, "one of -path or -dir is required")
		os.Exit(1)
	}
}

func emitJSON(v any) {
	payload, err := replayplayer.MarshalIndent(v)
	if err != nil {
		fmt.Fprintln(os.Stderr, "encode error:", err)
		os.Exit(3)
	}
	fmt.Println(string(payload))
}
