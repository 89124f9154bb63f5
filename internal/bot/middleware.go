package bot

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"relaybot/internal/media"
	"relaybot/internal/throttle"
	"relaybot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger := log
					if req != nil && !req.Logger.IsZero() {
						logger = req.Logger
					}
					logger.Error("panic recovered",
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			logger := log
			if !req.Logger.IsZero() {
				logger = req.Logger
			}
			err := next(ctx, req)
			d := time.Since(start)

			fields := []logx.Field{
				logx.Int64("chat_id", req.ChatID),
				logx.Int64("from_id", req.FromID),
				logx.Duration("dur", d),
			}
			if err != nil {
				logger.Warn("request failed", append(fields, logx.Err(err))...)
			} else if d >= 750*time.Millisecond {
				logger.Info("request ok", fields...)
			} else {
				logger.Debug("request ok", fields...)
			}
			return err
		}
	}
}

// MWThrottle admits the request through the sliding-window gate. The first
// over-limit request in a window gets a warning reply; everything after that
// is dropped silently until the window resets.
func MWThrottle(gate *throttle.Gate, bucket, warnText string) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			d, err := gate.Admit(ctx, bucket, req.FromID)
			if err != nil {
				// store trouble must not lock users out
				req.Logger.Warn("throttle check failed", logx.Err(err))
				return next(ctx, req)
			}
			if d.Warn {
				return req.Reply(ctx, warnText)
			}
			if d.Throttled {
				return nil
			}
			return next(ctx, req)
		}
	}
}

// MWErrorReply translates taxonomy errors into user-facing replies. Anything
// outside the taxonomy is logged and answered with a generic failure text; the
// error stops here in both cases.
func MWErrorReply(texts ErrorTexts) Middleware {
	texts.applyDefaults()
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			err := next(ctx, req)
			if err == nil {
				return nil
			}

			var text string
			switch {
			case errors.Is(err, media.ErrWrongInput):
				text = texts.WrongInput
			case errors.Is(err, media.ErrAccountNotExist):
				text = texts.AccountNotExist
			case errors.Is(err, media.ErrAccountIsPrivate):
				text = texts.AccountIsPrivate
			case errors.Is(err, media.ErrEmptyResults):
				text = texts.EmptyResults
			case errors.Is(err, media.ErrProvider):
				text = texts.ProviderError
			default:
				req.Logger.Error("unrecognized handler fault", logx.Err(err))
				text = texts.Internal
			}
			return req.Reply(ctx, text)
		}
	}
}

// ErrorTexts are the user-facing translations of the error taxonomy.
type ErrorTexts struct {
	WrongInput       string
	EmptyResults     string
	AccountNotExist  string
	AccountIsPrivate string
	ProviderError    string
	Internal         string
}

func (t *ErrorTexts) applyDefaults() {
	if t.WrongInput == "" {
		t.WrongInput = "I can't make sense of that link or username."
	}
	if t.EmptyResults == "" {
		t.EmptyResults = "Nothing found, sorry."
	}
	if t.AccountNotExist == "" {
		t.AccountNotExist = "That account doesn't exist."
	}
	if t.AccountIsPrivate == "" {
		t.AccountIsPrivate = "That account is private."
	}
	if t.ProviderError == "" {
		t.ProviderError = "The upstream service is having a moment, try again later."
	}
	if t.Internal == "" {
		t.Internal = "Something went wrong on our side."
	}
}
