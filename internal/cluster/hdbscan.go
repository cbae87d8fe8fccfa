package cluster

import (
	"fmt"
	"reflect"

	"github.com/humilityai/hdbscan"
)

// assignment is the result of the density clustering step: member indices
// per cluster plus the indices left as noise.
type assignment struct {
	clusters [][]int
	noise    []int
}

// runHDBSCAN clusters the vectors with cosine distance and returns member
// assignments. minClusterSize follows the configured value; points the
// algorithm leaves unassigned come back as noise.
func runHDBSCAN(vectors [][]float64, minClusterSize int) (assignment, error) {
	clustering, err := hdbscan.NewClustering(vectors, minClusterSize)
	if err != nil {
		return assignment{}, fmt.Errorf("create clustering: %w", err)
	}
	clustering = clustering.OutlierDetection()
	if err := clustering.Run(cosineDistance, hdbscan.VarianceScore, true); err != nil {
		return assignment{}, fmt.Errorf("run clustering: %w", err)
	}

	groups, err := extractClusterPoints(clustering)
	if err != nil {
		return assignment{}, err
	}

	var out assignment
	assigned := make(map[int]bool, len(vectors))
	for _, members := range groups {
		if len(members) == 0 {
			continue
		}
		out.clusters = append(out.clusters, members)
		for _, idx := range members {
			assigned[idx] = true
		}
	}
	for i := range vectors {
		if !assigned[i] {
			out.noise = append(out.noise, i)
		}
	}
	return out, nil
}

// extractClusterPoints reads member point indices out of the library's
// unexported cluster type via reflection. The Clusters field is exported
// but its element type is not. A missing field means the library's
// layout drifted under us; that must surface as an error rather than a
// silent empty result, which would collapse every run into one
// catch-all cluster.
func extractClusterPoints(clustering *hdbscan.Clustering) ([][]int, error) {
	v := reflect.ValueOf(clustering).Elem()
	clustersField := v.FieldByName("Clusters")
	if !clustersField.IsValid() || clustersField.Kind() != reflect.Slice {
		return nil, fmt.Errorf("hdbscan Clusters field not found; library layout changed")
	}

	out := make([][]int, 0, clustersField.Len())
	for i := 0; i < clustersField.Len(); i++ {
		c := clustersField.Index(i)
		if c.Kind() == reflect.Ptr {
			c = c.Elem()
		}
		pointsField := c.FieldByName("Points")
		if !pointsField.IsValid() || pointsField.Kind() != reflect.Slice {
			return nil, fmt.Errorf("hdbscan cluster Points field not found; library layout changed")
		}
		points := make([]int, pointsField.Len())
		for j := 0; j < pointsField.Len(); j++ {
			points[j] = int(pointsField.Index(j).Int())
		}
		out = append(out, points)
	}
	return out, nil
}
