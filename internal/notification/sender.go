package notification

import (
	"context"
	"io"
	stdlog "log"
	"slices"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/tphakala/qcline/internal/errors"
	"github.com/tphakala/qcline/internal/privacy"
)

// Sender delivers one rendered notification.
type Sender interface {
	Send(ctx context.Context, title, body string) error
}

// ShoutrrrSender sends via nicholas-fedor/shoutrrr. One router serves all
// configured service URLs.
type ShoutrrrSender struct {
	urls   []string
	sender *router.ServiceRouter
}

// NewShoutrrrSender validates urls and builds the router.
func NewShoutrrrSender(urls []string, timeout time.Duration) (*ShoutrrrSender, error) {
	if len(urls) == 0 {
		return nil, errors.Newf("at least one notification URL is required").
			Component("notification").
			Category(errors.CategoryValidation).
			Build()
	}

	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		// URLs carry tokens
		return nil, errors.New(privacy.WrapError(err)).
			Component("notification").
			Category(errors.CategoryValidation).
			Build()
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(stdlog.New(io.Discard, "", 0))

	return &ShoutrrrSender{urls: slices.Clone(urls), sender: sender}, nil
}

// Send implements Sender. The router applies its own timeout.
func (s *ShoutrrrSender) Send(_ context.Context, title, body string) error {
	params := stypes.Params{}
	if title != "" {
		params.SetTitle(title)
	}

	var errs []error
	for _, err := range s.sender.Send(body, &params) {
		if err != nil {
			errs = append(errs, privacy.WrapError(err))
		}
	}
	if len(errs) > 0 {
		return errors.New(errors.Join(errs...)).
			Component("notification").
			Category(errors.CategoryNotification).
			Context("targets", len(s.urls)).
			Build()
	}
	return nil
}
