// Package email delivers single messages through a transactional provider.
package email

import (
	"context"
	"fmt"
)

// Message is one provider send request.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
	Text    string
	ReplyTo string
	Tags    map[string]string
	Headers map[string]string
}

// Sender sends a message and returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// UnsubscribeHeaders returns the RFC 8058 one-click unsubscribe headers
// for url.
func UnsubscribeHeaders(url string) map[string]string {
	return map[string]string{
		"List-Unsubscribe":      "<" + url + ">",
		"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
	}
}

// ProviderError carries a provider code for transports whose client does
// not expose one. ErrorCode makes it classifiable like an AWS API error.
type ProviderError struct {
	Code string
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) ErrorCode() string { return e.Code }
