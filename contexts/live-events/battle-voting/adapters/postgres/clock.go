package postgresadapter

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SystemClock implements ports.Clock using wall-clock UTC time.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// UUIDGenerator issues random v4 vote ids.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID(context.Context) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
