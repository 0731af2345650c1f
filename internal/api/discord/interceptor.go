package discord

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

var ErrNotInGuild = errors.New("command used outside a guild")

// Invocation is one command or button interaction.
type Invocation struct {
	Name      string // Command name or button custom ID
	GuildID   string
	ChannelID string
	UserID    string
	UserName  string
	Options   map[string]any
}

// HandlerFunc handles an invocation and returns the replies to send.
type HandlerFunc func(ctx context.Context, inv Invocation) ([]string, error)

// Interceptor wraps a HandlerFunc.
type Interceptor func(next HandlerFunc) HandlerFunc

// Chain applies interceptors so that the first one runs outermost.
func Chain(h HandlerFunc, interceptors ...Interceptor) HandlerFunc {
	for i := len(interceptors) - 1; i >= 0; i-- {
		h = interceptors[i](h)
	}
	return h
}

// NewGuildInterceptor rejects invocations that do not come from a guild.
func NewGuildInterceptor() Interceptor {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv Invocation) ([]string, error) {
			if inv.GuildID == "" || inv.UserID == "" {
				return nil, ErrNotInGuild
			}
			return next(ctx, inv)
		}
	}
}

// NewTimeoutInterceptor bounds the handler's context.
func NewTimeoutInterceptor(d time.Duration) Interceptor {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv Invocation) ([]string, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, inv)
		}
	}
}

// NewLoggingInterceptor logs every invocation and its outcome.
func NewLoggingInterceptor() Interceptor {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv Invocation) ([]string, error) {
			start := time.Now()
			replies, err := next(ctx, inv)
			if err != nil {
				zlog.Warn().Msgf("interaction failed: name=%s guild_id=%s user=%s duration=%v err=%v",
					inv.Name, inv.GuildID, inv.UserName, time.Since(start).Round(time.Millisecond), err)
			} else {
				zlog.Info().Msgf("interaction handled: name=%s guild_id=%s user=%s duration=%v",
					inv.Name, inv.GuildID, inv.UserName, time.Since(start).Round(time.Millisecond))
			}
			return replies, err
		}
	}
}

// NewRecoverInterceptor turns handler panics into errors.
func NewRecoverInterceptor() Interceptor {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv Invocation) (replies []string, err error) {
			defer func() {
				if r := recover(); r != nil {
					zlog.Error().Msgf("interaction handler panicked: name=%s err=%v", inv.Name, r)
					replies, err = nil, errors.Newf("handler panicked: %v", r)
				}
			}()
			return next(ctx, inv)
		}
	}
}
