package response

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewCorrelationID returns "<unix millis>-<12 hex chars>".
func NewCorrelationID() string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + random
}
