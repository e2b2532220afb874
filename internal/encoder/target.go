package encoder

import (
	"net/url"
	"strings"

	"github.com/sharetube/studio/internal/fault"
)

var (
	ErrInvalidURL    = fault.New(fault.InvalidURL, "ingest url must be an rtmp or rtmps url")
	ErrMissingSecret = fault.New(fault.MissingSecret, "stream secret is required")
)

// Target is where one worker pushes its stream.
type Target struct {
	Platform     string
	IngestURL    string
	StreamSecret string
	// Bundle overrides the bundle picked from the platform tag.
	Bundle string
}

func (t Target) Validate() error {
	if strings.TrimSpace(t.IngestURL) == "" {
		return fault.WithMessage(ErrInvalidURL, "ingest url is required")
	}

	u, err := url.Parse(t.IngestURL)
	if err != nil {
		return fault.Wrap(ErrInvalidURL, err)
	}
	if (u.Scheme != "rtmp" && u.Scheme != "rtmps") || u.Host == "" {
		return ErrInvalidURL
	}

	if strings.TrimSpace(t.StreamSecret) == "" {
		return ErrMissingSecret
	}

	return nil
}

// Destination is <ingest>/<secret>.
func (t Target) Destination() (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	return strings.TrimRight(t.IngestURL, "/") + "/" + t.StreamSecret, nil
}
