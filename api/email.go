package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"livetix/entities"

	"github.com/resend/resend-go/v2"
	"github.com/samber/lo"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type ResendClient struct {
	client *resend.Client
	from   string
}

func NewResendClient(apiKey string, from string) ResendClient {
	if apiKey == "" {
		panic("resend api key is empty")
	}

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	return ResendClient{
		client: resend.NewCustomClient(httpClient, apiKey),
		from:   from,
	}
}

func (c ResendClient) Send(ctx context.Context, email entities.Email) error {
	request := &resend.SendEmailRequest{
		From:    c.from,
		To:      []string{email.To},
		Subject: email.Subject,
		Html:    email.HTML,
		Attachments: lo.Map(email.Attachments, func(a entities.EmailAttachment, _ int) *resend.Attachment {
			return &resend.Attachment{
				Content:     a.Content,
				Filename:    a.Filename,
				ContentType: a.ContentType,
			}
		}),
		Tags: lo.MapToSlice(email.Tags, func(name, value string) resend.Tag {
			return resend.Tag{Name: name, Value: value}
		}),
	}

	_, err := c.client.Emails.SendWithContext(ctx, request)
	if err != nil {
		return fmt.Errorf("could not send email to %s: %w", email.To, err)
	}

	return nil
}
