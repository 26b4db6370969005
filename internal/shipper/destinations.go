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

// maxDescribePages bounds pagination while searching for a group or stream.
// A misbehaving remote that always returns a continuation token would
// otherwise loop forever; hitting the cap is an error, not a miss.
const maxDescribePages = 200

// ensureDestination makes sure the destination exists, creating it when
// auto-creation is enabled. It returns false with a nil error when the
// destination is missing and must not be created; the caller drops the
// batch in that case.
func (s *Shipper) ensureDestination(ctx context.Context, key model.DestinationKey) (bool, error) {
	ok, err := s.ensureGroup(ctx, key.Group)
	if err != nil {
		return false, err
	}
	if !ok {
		if !s.autoCreate {
			return false, nil
		}
		if err := s.createGroup(ctx, key.Group); err != nil {
			return false, err
		}
	}
	ok, err = s.ensureStream(ctx, key.Group, key.Stream)
	if err != nil {
		return false, err
	}
	if !ok {
		if !s.autoCreate {
			return false, nil
		}
		if err := s.createStream(ctx, key.Group, key.Stream); err != nil {
			return false, err
		}
	}
	return true, nil
}

// ensureGroup reports whether the group exists, consulting the cache first
// and the remote listing once on a miss.
func (s *Shipper) ensureGroup(ctx context.Context, group string) (bool, error) {
	if s.cache.groupKnown(group) {
		return true, nil
	}
	var next *string
	for page := 0; page < maxDescribePages; page++ {
		out, err := s.api.DescribeLogGroups(ctx, &cloudwatchlogs.DescribeLogGroupsInput{
			LogGroupNamePrefix: aws.String(group),
			NextToken:          next,
		})
		if err != nil {
			return false, fmt.Errorf("describe log groups %q: %w", group, err)
		}
		for _, g := range out.LogGroups {
			if aws.ToString(g.LogGroupName) == group {
				s.cache.markGroup(group)
				return true, nil
			}
		}
		if out.NextToken == nil {
			return false, nil
		}
		next = out.NextToken
	}
	return false, fmt.Errorf("describe log groups %q: pagination exceeded %d pages", group, maxDescribePages)
}

// ensureStream reports whether the stream exists within a known group,
// following continuation tokens until an exact name match or exhaustion.
// On a match the stream's current upload sequence token is cached, which
// may be absent for a stream that has never been appended to.
func (s *Shipper) ensureStream(ctx context.Context, group, stream string) (bool, error) {
	if s.cache.streamKnown(group, stream) {
		return true, nil
	}
	var next *string
	for page := 0; page < maxDescribePages; page++ {
		out, err := s.api.DescribeLogStreams(ctx, &cloudwatchlogs.DescribeLogStreamsInput{
			LogGroupName:        aws.String(group),
			LogStreamNamePrefix: aws.String(stream),
			NextToken:           next,
		})
		if err != nil {
			return false, fmt.Errorf("describe log streams %s/%s: %w", group, stream, err)
		}
		for _, st := range out.LogStreams {
			if aws.ToString(st.LogStreamName) == stream {
				s.cache.markGroup(group)
				s.cache.markStream(group, stream, st.UploadSequenceToken)
				return true, nil
			}
		}
		if out.NextToken == nil {
			return false, nil
		}
		next = out.NextToken
	}
	return false, fmt.Errorf("describe log streams %s/%s: pagination exceeded %d pages", group, stream, maxDescribePages)
}

// createGroup creates the group, treating an AlreadyExists response as a
// benign race with a concurrent creator.
func (s *Shipper) createGroup(ctx context.Context, group string) error {
	_, err := s.api.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(group),
	})
	var exists *types.ResourceAlreadyExistsException
	if errors.As(err, &exists) {
		s.log.Warn().Str("group", group).Msg("log group already created concurrently")
		err = nil
	}
	if err != nil {
		return fmt.Errorf("create log group %q: %w", group, err)
	}
	s.cache.markGroup(group)
	return nil
}

func (s *Shipper) createStream(ctx context.Context, group, stream string) error {
	_, err := s.api.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(group),
		LogStreamName: aws.String(stream),
	})
	var exists *types.ResourceAlreadyExistsException
	if errors.As(err, &exists) {
		// Lost a race with a concurrent creator. Rediscover so the cache
		// picks up whatever token the winner may already have produced.
		s.log.Warn().Str("group", group).Str("stream", stream).Msg("log stream already created concurrently")
		found, derr := s.ensureStream(ctx, group, stream)
		if derr == nil && found {
			return nil
		}
		err = nil
	}
	if err != nil {
		return fmt.Errorf("create log stream %s/%s: %w", group, stream, err)
	}
	s.cache.markGroup(group)
	s.cache.markStream(group, stream, nil)
	return nil
}
