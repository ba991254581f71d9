// Package replayplayer inspects replay bundles written by the raygrid host.
package replayplayer

import (
	"encoding/json"
	"fmt"
	"sort"

	"raygrid/internal/replay"
)

// ObstacleCount is how often one obstacle stopped the ray.
type ObstacleCount struct {
	Index int `json:"index"`
	Hits  int `json:"hits"`
}

// Summary condenses a bundle into the figures an operator looks at first.
type Summary struct {
	Dir           string                 `json:"dir"`
	Seed          uint64                 `json:"seed"`
	Scene         replay.SceneParameters `json:"scene"`
	FirstTick     uint64                 `json:"first_tick"`
	LastTick      uint64                 `json:"last_tick"`
	Frames        int                    `json:"frames"`
	ObstacleHits  int                    `json:"obstacle_hits"`
	BoundaryExits int                    `json:"boundary_exits"`
	MeanFlight    float64                `json:"mean_flight_ticks"`
	TopObstacles  []ObstacleCount        `json:"top_obstacles,omitempty"`
}

type terminalPayload struct {
	ObstacleIndex *int `json:"obstacle_index"`
}

// Summarize loads the bundle at path and tallies its terminal events. topN
// limits the per-obstacle table; zero keeps every struck obstacle.
func Summarize(path string, topN int) (Summary, error) {
	bundle, err := replay.Load(path)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{Dir: bundle.Dir, Frames: len(bundle.Frames)}
	if bundle.HasHeader {
		summary.Seed = bundle.Header.Seed
		summary.Scene = bundle.Header.Scene
		summary.FirstTick = bundle.Header.FirstTick
		summary.LastTick = bundle.Header.LastTick
	}

	perObstacle := make(map[int]int)
	var flights []uint64
	var previous uint64
	havePrevious := false
	//1.- Walk terminal events in order; the gap between two is one flight of the ray.
	for _, event := range bundle.Events {
		switch event.Type {
		case "hit_obstacle":
			summary.ObstacleHits++
			var payload terminalPayload
			if err := json.Unmarshal(event.Payload, &payload); err != nil {
				return Summary{}, fmt.Errorf("tick %d: %w", event.Tick, err)
			}
			if payload.ObstacleIndex != nil {
				perObstacle[*payload.ObstacleIndex]++
			}
		case "hit_boundary":
			summary.BoundaryExits++
		default:
			continue
		}
		if havePrevious && event.Tick > previous {
			flights = append(flights, event.Tick-previous)
		}
		previous, havePrevious = event.Tick, true
	}
	if len(flights) > 0 {
		var total uint64
		for _, f := range flights {
			total += f
		}
		summary.MeanFlight = float64(total) / float64(len(flights))
	}

	//2.- Rank obstacles by hits then index so output is stable.
	for index, hits := range perObstacle {
		summary.TopObstacles = append(summary.TopObstacles, ObstacleCount{Index: index, Hits: hits})
	}
	sort.Slice(summary.TopObstacles, func(i, j int) bool {
		a, b := summary.TopObstacles[i], summary.TopObstacles[j]
		if a.Hits != b.Hits {
			return a.Hits > b.Hits
		}
		return a.Index < b.Index
	})
	if topN > 0 && len(summary.TopObstacles) > topN {
		summary.TopObstacles = summary.TopObstacles[:topN]
	}
	return summary, nil
}
