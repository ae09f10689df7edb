package webclient

import (
	"fmt"
	"strings"
	"time"

	"github.com/auditlab/auditoria/internal/logging"
)

// New constructs the named backend. An empty name selects nethttp.
func New(backend string, logger logging.Logger) (WebClient, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendNetHTTP:
		return NewNetHTTPClient(logger, nil), nil
	case BackendChromeDP:
		return NewChromeDPClient(2*time.Second, logger)
	default:
		return nil, fmt.Errorf("unknown webclient backend %q", backend)
	}
}
