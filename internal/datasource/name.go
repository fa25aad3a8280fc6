package datasource

import (
	"time"

	"github.com/google/uuid"
)

// GenerateName returns a unique source name: ds_<UTC timestamp>_<8 hex chars>.
func GenerateName() string {
	return "ds_" + time.Now().UTC().Format("20060102150405") + "_" + uuid.NewString()[:8]
}
