package shipper

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"github.com/Nao-Mk2/aws-logs-shipper/internal/model"
)

// ErrTokenConflict marks an append rejected because the supplied sequence
// token no longer matches the stream's position. The cached token has been
// cleared; the caller should redeliver this destination's records on a
// later cycle, which will fetch a fresh token.
var ErrTokenConflict = errors.New("sequence token conflict")

// putBatch sends one batch to the stream, attaching the cached sequence
// token when present, and classifies the outcome:
//
//   - success: the returned next token overwrites the cache.
//   - already accepted: the batch content was recorded before; the token is
//     cleared and the call is a no-op success.
//   - invalid token: the token is cleared and ErrTokenConflict is returned.
//   - anything else: returned unchanged, cache untouched.
func (s *Shipper) putBatch(ctx context.Context, key model.DestinationKey, events []model.LogEvent) error {
	in := &cloudwatchlogs.PutLogEventsInput{
		LogGroupName:  aws.String(key.Group),
		LogStreamName: aws.String(key.Stream),
		LogEvents:     make([]types.InputLogEvent, 0, len(events)),
		SequenceToken: s.cache.token(key.Group, key.Stream),
	}
	for _, e := range events {
		in.LogEvents = append(in.LogEvents, types.InputLogEvent{
			Timestamp: aws.Int64(e.Timestamp.UnixMilli()),
			Message:   aws.String(e.Message),
		})
	}

	out, err := s.api.PutLogEvents(ctx, in)
	if err == nil {
		s.cache.setToken(key.Group, key.Stream, out.NextSequenceToken)
		return nil
	}

	var accepted *types.DataAlreadyAcceptedException
	if errors.As(err, &accepted) {
		// The service already recorded this exact batch. Swallow, but
		// clear the token so the next append starts from service truth.
		s.cache.clearToken(key.Group, key.Stream)
		s.log.Warn().Str("destination", key.String()).Int("events", len(events)).
			Msg("batch already accepted, skipping")
		return nil
	}
	var invalid *types.InvalidSequenceTokenException
	if errors.As(err, &invalid) {
		s.cache.clearToken(key.Group, key.Stream)
		return fmt.Errorf("put log events %s: %w", key, ErrTokenConflict)
	}
	return fmt.Errorf("put log events %s: %w", key, err)
}
