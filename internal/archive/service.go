package archive

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"agrispy.dev/agrispy/internal/telemetry"
	"agrispy.dev/agrispy/pkg/metrics"
)

// Service implements ArchiveServer over a Repository.
type Service struct {
	logger  *slog.Logger
	repo    Repository
	metrics *metrics.ArchiveMetrics
}

// NewService creates a new Service instance. m is optional.
func NewService(logger *slog.Logger, repo Repository, m *metrics.ArchiveMetrics) (*Service, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if repo == nil {
		return nil, errors.New("repository cannot be nil")
	}

	return &Service{
		logger:  logger,
		repo:    repo,
		metrics: m,
	}, nil
}

// RecentReadings returns the newest readings, newest first.
func (s *Service) RecentReadings(ctx context.Context, req *structpb.Struct) (*structpb.ListValue, error) {
	const method = "RecentReadings"

	if s.metrics != nil {
		timer := prometheus.NewTimer(s.metrics.GRPCRequestDuration.WithLabelValues(method))
		defer timer.ObserveDuration()
	}

	limit, err := requestedLimit(req)
	if err != nil {
		s.count(method, "invalid_argument")
		return nil, err
	}

	readings, err := s.repo.Recent(ctx, limit)
	if err != nil {
		s.logger.Error("failed to fetch readings", "error", err)
		s.count(method, "error")
		return nil, status.Errorf(codes.Internal, "failed to fetch readings: %v", err)
	}

	values := make([]*structpb.Value, 0, len(readings))
	for _, r := range readings {
		st, err := EncodeRecord(r)
		if err != nil {
			s.count(method, "error")
			return nil, status.Errorf(codes.Internal, "failed to encode reading %d: %v", r.ID, err)
		}
		values = append(values, structpb.NewStructValue(st))
	}

	s.logger.Debug("fetched readings", "count", len(values), "limit", limit)
	s.count(method, "success")
	return &structpb.ListValue{Values: values}, nil
}

func (s *Service) count(method, status string) {
	if s.metrics != nil {
		s.metrics.GRPCRequestsTotal.WithLabelValues(method, status).Inc()
	}
}

// requestedLimit reads the optional "limit" field.
func requestedLimit(req *structpb.Struct) (int, error) {
	v, ok := req.GetFields()["limit"]
	if !ok {
		return ClampLimit(0), nil
	}

	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, status.Error(codes.InvalidArgument, "limit must be a number")
	}
	if n.NumberValue < 0 || n.NumberValue != math.Trunc(n.NumberValue) {
		return 0, status.Error(codes.InvalidArgument, "limit must be a non-negative integer")
	}
	return ClampLimit(int(math.Min(n.NumberValue, MaxRecentLimit))), nil
}

// EncodeRecord converts a stored reading to its wire Struct, adding its id.
func EncodeRecord(r ArchivedReading) (*structpb.Struct, error) {
	st, err := telemetry.ToStruct(r.Message())
	if err != nil {
		return nil, err
	}
	st.Fields["id"] = structpb.NewNumberValue(float64(r.ID))
	return st, nil
}

// DecodeRecord is the inverse of EncodeRecord.
func DecodeRecord(st *structpb.Struct) (ArchivedReading, error) {
	msg, err := telemetry.FromStruct(st)
	if err != nil {
		return ArchivedReading{}, err
	}
	r := NewArchivedReading(msg)
	r.ID = uint(st.GetFields()["id"].GetNumberValue())
	return r, nil
}

var _ ArchiveServer = (*Service)(nil)
