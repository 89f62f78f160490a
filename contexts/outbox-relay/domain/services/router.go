package services

import (
	"fmt"

	"corehub/internal/shared/outbox"
)

// DefaultRouter implements the default routing rule from spec §4.3: one
// stream per vertical, named "events:<vertical>".
type DefaultRouter struct{}

func (DefaultRouter) StreamFor(row outbox.Row) string {
	return fmt.Sprintf("events:%s", row.Vertical)
}
