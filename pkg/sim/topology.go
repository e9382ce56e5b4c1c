package sim

import (
	"context"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	apis "github.com/cheeseonhead/bb-for-fun/pkg/api/v1alpha1"
	"github.com/cheeseonhead/bb-for-fun/pkg/port"
)

// Topology stands in for the external discovery component: it publishes
// the simulated host set on a port.
type Topology struct {
	host   *Host
	writer *port.Writer
	clock  clock.PassiveClock
}

func NewTopology(h *Host, w *port.Writer, clk clock.PassiveClock) *Topology {
	return &Topology{host: h, writer: w, clock: clk}
}

// PublishOnce publishes the current host set.
func (t *Topology) PublishOnce() error {
	return t.writer.Publish(&apis.NodeSet{
		Hosts:       t.host.HostIDs(),
		PublishedAt: t.clock.Now(),
	})
}

// Run republishes every interval until ctx is done.
func (t *Topology) Run(ctx context.Context, interval time.Duration) {
	wait.UntilWithContext(ctx, func(context.Context) {
		if err := t.PublishOnce(); err != nil {
			klog.Errorf("Failed to publish topology: %v", err)
		}
	}, interval)
}
