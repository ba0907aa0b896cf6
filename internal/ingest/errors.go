package ingest

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/fleet-motion/model"
)

var (
	// ErrInvalidReport marks a report rejected at the ingestion boundary.
	ErrInvalidReport = errors.New("invalid report")
	// ErrMissingField marks a report lacking a required field.
	ErrMissingField = errors.New("missing field")
	// ErrNotFound is returned when an entity has no estimate yet.
	ErrNotFound = errors.New("not found")
)

// ToStatusError maps ingest errors onto gRPC status codes. Errors that
// already carry a status pass through unchanged.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrInvalidReport), errors.Is(err, ErrMissingField),
		errors.Is(err, model.ErrFutureTimestamp):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
