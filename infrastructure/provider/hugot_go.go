//go:build !ORT

package provider

import "github.com/knights-analytics/hugot"

// InferenceBackend names the runtime sentence-transformers models run on.
const InferenceBackend = "go"

func newHugotSession() (*hugot.Session, error) {
	return hugot.NewGoSession()
}
