// Package id provides unique identifier generation for jobs.
package id

import (
	"fmt"

	"github.com/google/uuid"
)

// Generate creates a new unique job ID.
// Format: job-<uuid>
// Example: job-8f14e45f-ceea-467f-a9d2-91f6c3b7a1d0
func Generate() string {
	return fmt.Sprintf("job-%s", uuid.NewString())
}
