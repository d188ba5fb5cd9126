package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/rhuss/trianswer/pkg/api"
)

// Logging returns middleware that emits one structured log entry per
// submission: request ID, conversation, mode, the created turn IDs, how long
// it took to record the pair, and the rejection reason if there was one.
//
// Generation keeps running after Submit returns, so the duration does not
// include upstream latency. Per-style outcomes are logged by the engine.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next TurnSubmitter) TurnSubmitter {
		return TurnSubmitterFunc(func(ctx context.Context, conversationID string, req *api.SubmitRequest) (*Submission, error) {
			start := time.Now()

			sub, err := next.Submit(ctx, conversationID, req)

			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.String("conversation_id", conversationID),
				slog.String("mode", string(req.Mode)),
				slog.Duration("duration", time.Since(start)),
			}

			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelWarn, "submission rejected", attrs...)
			} else {
				attrs = append(attrs,
					slog.String("user_turn_id", sub.User.ID),
					slog.String("assistant_turn_id", sub.Assistant.ID))
				logger.LogAttrs(ctx, slog.LevelInfo, "submission accepted", attrs...)
			}

			return sub, err
		})
	}
}
