package notify

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	apperrors "github.com/Proton-105/mintwatch/internal/errors"
	"github.com/Proton-105/mintwatch/pkg/logger"
)

const providerTwilio = "twilio"

// messageAPI is the slice of the Twilio REST API the sender uses.
type messageAPI interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// TwilioSender sends SMS through the Twilio Messages API.
type TwilioSender struct {
	api  messageAPI
	from string
	log  *slog.Logger
}

func NewTwilioSender(accountSID, authToken, from string, log *slog.Logger) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})

	return newTwilioSender(client.Api, from, log)
}

func newTwilioSender(api messageAPI, from string, log *slog.Logger) *TwilioSender {
	if log == nil {
		log = slog.Default()
	}

	return &TwilioSender{api: api, from: from, log: log}
}

// Send creates one message. The Twilio client has no context support, so a canceled
// ctx abandons the wait while the request itself finishes in the background.
func (s *TwilioSender) Send(ctx context.Context, to, body string) error {
	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	type reply struct {
		msg *openapi.ApiV2010Message
		err error
	}

	done := make(chan reply, 1)
	go func() {
		msg, err := s.api.CreateMessage(params)
		done <- reply{msg: msg, err: err}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case r := <-done:
		if r.err != nil {
			return classifyTwilioError(r.err)
		}

		attrs := []any{slog.String("to", logger.MaskPhone(to))}
		if r.msg != nil && r.msg.Sid != nil {
			attrs = append(attrs, slog.String("sid", *r.msg.Sid))
		}
		s.log.DebugContext(ctx, "sms accepted by twilio", attrs...)

		return nil
	}
}

// classifyTwilioError marks client-side rejections (bad number, unverified sender)
// as permanent; throttling and server-side failures may be retried.
func classifyTwilioError(err error) error {
	var restErr *twilioclient.TwilioRestError
	if errors.As(err, &restErr) {
		retryable := restErr.Status == http.StatusTooManyRequests || restErr.Status >= http.StatusInternalServerError
		return apperrors.NewDeliveryError(providerTwilio, err, retryable)
	}

	return apperrors.NewDeliveryError(providerTwilio, err, true)
}
