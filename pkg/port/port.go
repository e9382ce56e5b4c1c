// Package port is a latest-value channel between independently scheduled
// tasks. A port has at most one writer; readers see either nothing or the
// most recent record, never a history.
package port

import (
	"errors"
	"fmt"
	"sync"

	"k8s.io/klog/v2"

	apis "github.com/cheeseonhead/bb-for-fun/pkg/api/v1alpha1"
)

var (
	// ErrWriterClaimed is returned when a second writer claims a port.
	ErrWriterClaimed = errors.New("port already has a writer")
	// ErrMalformed means stored bytes did not decode into a valid record.
	ErrMalformed = errors.New("malformed record")
)

// Record is a versioned payload that can cross a port.
type Record interface {
	RecordKind() string
	Validate() error
}

// Port holds the latest encoded record.
type Port struct {
	name string

	mu      sync.RWMutex
	data    []byte
	owner   string
	claimed bool
}

func New(name string) *Port {
	return &Port{name: name}
}

func (p *Port) Name() string { return p.name }

// Claim hands out the port's only writer.
func (p *Port) Claim(owner string) (*Writer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.claimed {
		return nil, fmt.Errorf("%s: claimed by %s: %w", p.name, p.owner, ErrWriterClaimed)
	}
	p.claimed = true
	p.owner = owner
	return &Writer{port: p}, nil
}

// Read decodes the latest record into rec. It returns false when nothing
// has been published or the stored bytes are not a valid record of rec's
// kind; callers treat both as "no data yet".
func (p *Port) Read(rec Record) bool {
	p.mu.RLock()
	data := p.data
	p.mu.RUnlock()

	if data == nil {
		return false
	}
	if err := decode(data, rec); err != nil {
		klog.Warningf("Port %s: ignoring %s: %v", p.name, rec.RecordKind(), err)
		return false
	}
	return true
}

func (p *Port) store(data []byte) {
	p.mu.Lock()
	p.data = data
	p.mu.Unlock()
}

// Writer publishes to a port.
type Writer struct {
	port *Port
}

// Publish replaces the port's value with rec.
func (w *Writer) Publish(rec Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%s: invalid %s: %w", w.port.name, rec.RecordKind(), err)
	}
	data, err := encode(apis.APIVersion, rec)
	if err != nil {
		return fmt.Errorf("%s: encode %s: %w", w.port.name, rec.RecordKind(), err)
	}
	w.port.store(data)
	return nil
}

func decode(data []byte, rec Record) error {
	var env envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: envelope: %v", ErrMalformed, err)
	}
	if env.APIVersion != apis.APIVersion {
		return fmt.Errorf("%w: apiVersion %q", ErrMalformed, env.APIVersion)
	}
	if env.Kind != rec.RecordKind() {
		return fmt.Errorf("%w: kind %q", ErrMalformed, env.Kind)
	}
	if err := decMode.Unmarshal(env.Payload, rec); err != nil {
		return fmt.Errorf("%w: payload: %v", ErrMalformed, err)
	}
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
