package routing

import (
	"context"
	"log/slog"

	"github.com/neighborhoods/docker-oversip/proxy"
	"github.com/neighborhoods/docker-oversip/sip"
)

func responseAttrs(res *sip.Response) []slog.Attr {
	return []slog.Attr{
		slog.Any("status", res.Status),
		slog.String("reason", res.ReasonPhrase()),
	}
}

func logResponse(logger *slog.Logger, msg string) proxy.ResponseHandler {
	return func(ctx context.Context, res *sip.Response) {
		logger.LogAttrs(ctx, slog.LevelInfo, msg, responseAttrs(res)...)
	}
}

func logError(logger *slog.Logger, msg string) proxy.ErrorHandler {
	return func(ctx context.Context, status sip.ResponseStatus, reason string) {
		logger.LogAttrs(ctx, slog.LevelWarn, msg,
			slog.Any("status", status),
			slog.String("reason", reason),
		)
	}
}

// outboundFlowHandlers observe a request delivered to an Outbound client.
func outboundFlowHandlers(logger *slog.Logger) proxy.Handlers {
	return proxy.Handlers{
		OnSuccess: logResponse(logger, "incoming Outbound success response"),
		OnFailure: logResponse(logger, "incoming Outbound failure response"),
		OnError:   logError(logger, "incoming Outbound error"),
	}
}

// genericHandlers observe an initial request forwarded out.
func genericHandlers(logger *slog.Logger) proxy.Handlers {
	return proxy.Handlers{
		OnProvisional: logResponse(logger, "provisional response"),
		OnSuccess:     logResponse(logger, "success response"),
		OnFailure:     logResponse(logger, "failure response"),
		OnError:       logError(logger, "proxy error"),
		OnInviteTimeout: func(ctx context.Context) {
			logger.LogAttrs(ctx, slog.LevelWarn, "INVITE timeout, no final response before Timer C expires")
		},
	}
}

// registerHandlers drive the assertion state of the registering connection.
// A nil asserter leaves the assertion state untouched.
func registerHandlers(logger *slog.Logger, asserter UserAsserter) proxy.Handlers {
	return proxy.Handlers{
		OnSuccess: func(ctx context.Context, res *sip.Response) {
			logger.LogAttrs(ctx, slog.LevelDebug, "REGISTER success response", responseAttrs(res)...)
			// The registrar replies 2xx only to a REGISTER with credentials.
			if asserter != nil {
				asserter.AssertConnection(ctx, res)
			}
		},
		OnFailure: func(ctx context.Context, res *sip.Response) {
			logger.LogAttrs(ctx, slog.LevelDebug, "REGISTER failure response", responseAttrs(res)...)
			// Re-REGISTERs carry no PAI and get challenged, the assertion is
			// established again by the next REGISTER with credentials.
			if asserter != nil {
				asserter.RevokeAssertion(ctx, res)
			}
		},
	}
}
