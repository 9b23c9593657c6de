package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors classify every failure the pipeline can surface. Components
// tag errors with these markers via Wrap; the governor and the chat shell
// classify them with errors.Is.
var (
	ErrLinkNotRecognized  = errors.New("link not recognized")
	ErrAuthRequired       = errors.New("authentication required")
	ErrPrivate            = errors.New("private or restricted")
	ErrNotFound           = errors.New("not found")
	ErrRateLimited        = errors.New("rate limited")
	ErrPartialFetch       = errors.New("partial fetch")
	ErrNoContent          = errors.New("no content")
	ErrTranscodeExhausted = errors.New("transcode exhausted")
	ErrTransferFailed     = errors.New("transfer failed")
	ErrBusy               = errors.New("busy")
	ErrExternalTool       = errors.New("external tool error")
	ErrTimeout            = errors.New("timeout")
	ErrTransient          = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

// UserMessage maps a job error onto the single user-visible message posted to
// the chat. Unknown errors collapse into a generic failure line so internal
// detail never leaks to the requester.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrLinkNotRecognized):
		return "That doesn't look like an Instagram link I can handle. Send a post, reel, story, or highlight link."
	case errors.Is(err, ErrAuthRequired):
		return "This content requires a logged-in session. Configure Instagram credentials and try again."
	case errors.Is(err, ErrPrivate):
		return "This account or post is private; I can't access it."
	case errors.Is(err, ErrNotFound):
		return "Content not found. It may have been deleted, or the link is wrong."
	case errors.Is(err, ErrRateLimited):
		return "Instagram is throttling requests right now. Wait a few minutes before trying again."
	case errors.Is(err, ErrNoContent):
		return "Nothing to download — no active items were found."
	case errors.Is(err, ErrTranscodeExhausted):
		return "The video is too large to send, even after compression."
	case errors.Is(err, ErrTransferFailed):
		return "Downloaded fine, but sending to Telegram failed. Try again later."
	case errors.Is(err, ErrBusy):
		return "I'm still working on your previous link. One at a time, please."
	case errors.Is(err, ErrTimeout):
		return "The operation took too long and was aborted. Try again later."
	default:
		return "Something went wrong while processing that link."
	}
}

// Retryable reports whether the failure is worth a later manual retry, used
// only for log hints. Nothing is retried automatically.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrTransferFailed),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrTransient):
		return true
	default:
		return false
	}
}
