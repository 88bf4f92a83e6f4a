package fl

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoUpdates                 = errors.New("no updates provided for aggregation")
	ErrValidation                = errors.New("update failed validation")
	ErrTransport                 = errors.New("client did not receive the round")
	ErrInsufficientParticipation = errors.New("insufficient participation")
	ErrAggregationShape          = errors.New("aggregation shape mismatch")
	ErrPersistence               = errors.New("persistence failure")
	ErrUnknownAvailability       = errors.New("unknown availability")
	ErrUnknownRoundStatus        = errors.New("unknown round status")
)

// RejectReason names why a submission was not counted.
type RejectReason string

const (
	ReasonRoundMismatch  RejectReason = "round_mismatch"
	ReasonLayerSet       RejectReason = "layer_set_mismatch"
	ReasonLayerLength    RejectReason = "layer_length_mismatch"
	ReasonNonFinite      RejectReason = "non_finite_value"
	ReasonNonFiniteStat  RejectReason = "non_finite_metric"
	ReasonSampleCount    RejectReason = "invalid_sample_count"
	ReasonNotCollecting  RejectReason = "not_collecting"
	ReasonUnknownClient  RejectReason = "unknown_client"
	ReasonNotSelected    RejectReason = "not_selected"
	ReasonClientMismatch RejectReason = "client_mismatch"
)

// ValidationError is returned for a malformed, stale or mis-shaped update.
type ValidationError struct {
	Reason RejectReason
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}

	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Reason, e.Detail)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// InsufficientParticipationError fails a round whose deadline passed with
// fewer accepted updates than required.
type InsufficientParticipationError struct {
	Round    uint64
	Accepted int
	Required int
	Deadline time.Time
}

func (e *InsufficientParticipationError) Error() string {
	return fmt.Sprintf("round %d: %s: accepted %d of %d required updates by deadline %s",
		e.Round, ErrInsufficientParticipation, e.Accepted, e.Required, e.Deadline.Format(time.RFC3339))
}

func (e *InsufficientParticipationError) Is(target error) bool {
	return target == ErrInsufficientParticipation
}

// AggregationShapeError means an update reached the aggregator with a shape
// the validator should have rejected.
type AggregationShapeError struct {
	ClientID string
	Layer    string
	Want     int
	Got      int
}

func (e *AggregationShapeError) Error() string {
	return fmt.Sprintf("%s: client %q layer %q: want length %d, got %d",
		ErrAggregationShape, e.ClientID, e.Layer, e.Want, e.Got)
}

func (e *AggregationShapeError) Is(target error) bool {
	return target == ErrAggregationShape
}
