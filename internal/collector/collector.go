package collector

import "context"

// Collector polls one upstream source and publishes raw events onto
// the dispatcher. Collectors own all network I/O; nothing downstream
// of the dispatcher blocks on the network.
type Collector interface {
	Name() string
	Collect(ctx context.Context) error
}
