// Package errmsg turns failures into short user-facing text.
package errmsg

import (
	"context"
	"errors"
	"net"
	"net/url"
	"syscall"
)

// Catalog keys.
const (
	KeyNetwork            = "errors.network"
	KeyTimeout            = "errors.timeout"
	KeyGeneric            = "errors.generic"
	KeyUnexpectedResponse = "chat.unexpectedResponse"
	KeyDefaultGreeting    = "chat.greeting.default"
	KeyGreetingReset      = "chat.greeting.placeholder"
)

// Translator maps a catalog key to display text.
type Translator func(key string) string

// Kind is the coarse failure class used to pick a message.
type Kind int

const (
	KindGeneric Kind = iota
	KindNetwork
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	default:
		return "generic"
	}
}

// StatusCoder is implemented by HTTP errors that carry a response status.
type StatusCoder interface {
	HTTPStatusCode() int
}

// Classify decides whether err is a timeout, a network failure, or neither.
// Timeouts are checked first: a timed-out dial is reported as a timeout.
func Classify(err error) Kind {
	if err == nil {
		return KindGeneric
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		switch sc.HTTPStatusCode() {
		case 408, 504:
			return KindTimeout
		}
		return KindGeneric
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ENETUNREACH) {
		return KindNetwork
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return KindNetwork
	}
	return KindGeneric
}

// Resolve returns the translated message for err.
func Resolve(err error, translate Translator) string {
	if translate == nil {
		translate = English
	}
	switch Classify(err) {
	case KindTimeout:
		return translate(KeyTimeout)
	case KindNetwork:
		return translate(KeyNetwork)
	default:
		return translate(KeyGeneric)
	}
}

var english = map[string]string{
	KeyNetwork:            "I can't reach the server right now. Please check your connection and try again.",
	KeyTimeout:            "The server is taking too long to respond. Please try again in a moment.",
	KeyGeneric:            "Something went wrong. Please try again.",
	KeyUnexpectedResponse: "I received an unexpected response. Please try again.",
	KeyDefaultGreeting:    "Hi! I'm here to help you explore your archetype. What's on your mind?",
	KeyGreetingReset:      "Let's start fresh. What would you like to talk about?",
}

// English is the built-in catalog. Unknown keys come back unchanged.
func English(key string) string {
	if s, ok := english[key]; ok {
		return s
	}
	return key
}
