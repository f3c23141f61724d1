// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// HTTPClient is shared by the upstream sync workers.
var HTTPClient = &http.Client{
	Timeout: 15 * time.Second,
}
