package routing

import (
	"errors"
	"fmt"
)

// ErrEndpointUnmapped is matched by every UnmappedClusterError.
var ErrEndpointUnmapped = errors.New("endpoint not found for cluster")

// Table is the deployment routing configuration.
type Table struct {
	ProjectID     string            `yaml:"projectId"`
	ProjectNumber string            `yaml:"projectNumber"`
	Region        string            `yaml:"region"`
	Endpoints     map[string]string `yaml:"clusterToEndpointId"`
}

// Endpoint identifies the remote model serving one cluster.
type Endpoint struct {
	Cluster string `json:"cluster"`
	ID      string `json:"id"`
	Path    string `json:"path"`
}

// UnmappedClusterError names a cluster that has no endpoint.
type UnmappedClusterError struct {
	Cluster string
}

func (e *UnmappedClusterError) Error() string {
	return fmt.Sprintf("endpoint not found for cluster %q: add it to clusterToEndpointId", e.Cluster)
}

// Is lets errors.Is match ErrEndpointUnmapped.
func (e *UnmappedClusterError) Is(target error) bool {
	return target == ErrEndpointUnmapped
}

// Resolver maps cluster tags to endpoint resource paths.
type Resolver struct {
	project   string
	region    string
	endpoints map[string]string
}

// NewResolver copies table so later changes to it have no effect.
func NewResolver(table Table) *Resolver {
	project := table.ProjectNumber
	if project == "" {
		project = table.ProjectID
	}

	endpoints := make(map[string]string, len(table.Endpoints))
	for cluster, id := range table.Endpoints {
		endpoints[cluster] = id
	}

	return &Resolver{
		project:   project,
		region:    table.Region,
		endpoints: endpoints,
	}
}

// Resolve returns the endpoint for cluster. There is no fallback endpoint.
func (r *Resolver) Resolve(cluster string) (Endpoint, error) {
	id, ok := r.endpoints[cluster]
	if !ok || id == "" {
		return Endpoint{}, &UnmappedClusterError{Cluster: cluster}
	}

	return Endpoint{
		Cluster: cluster,
		ID:      id,
		Path:    fmt.Sprintf("projects/%s/locations/%s/endpoints/%s", r.project, r.region, id),
	}, nil
}

// Clusters returns the number of mapped clusters.
func (r *Resolver) Clusters() int {
	return len(r.endpoints)
}
