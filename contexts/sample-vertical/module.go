// Package samplevertical wires the sample producer into one constructible
// Module, the way every other bounded context in this repository composes
// its module.go.
package samplevertical

import (
	"corehub/contexts/sample-vertical/application"
	"corehub/contexts/sample-vertical/ports"
)

// Module bundles the producer for a process (or test harness) to drive.
type Module struct {
	Producer *application.Producer
}

// Dependencies are the infra pieces the producer is built against.
type Dependencies struct {
	Writer ports.OutboxWriter
}

func NewModule(deps Dependencies) Module {
	return Module{Producer: application.NewProducer(deps.Writer)}
}
