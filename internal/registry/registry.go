package registry

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrResourceNotFound = errors.New("resource not found")
	ErrResourceRetired  = errors.New("resource is retired")
	ErrClientNotFound   = errors.New("client not found")
	ErrPatientNotFound  = errors.New("patient not found")
	ErrInvalidKind      = errors.New("invalid resource kind")
)

type ResourceKind string

const (
	KindPractitioner ResourceKind = "practitioner"
	KindRoom         ResourceKind = "room"
	KindEquipment    ResourceKind = "equipment"
)

func ParseKind(s string) (ResourceKind, error) {
	switch ResourceKind(s) {
	case KindPractitioner, KindRoom, KindEquipment:
		return ResourceKind(s), nil
	}
	return "", ErrInvalidKind
}

// Resource is any bookable entity subject to the no-overlap invariant.
// Retiring a resource blocks new bookings but keeps its history intact.
type Resource struct {
	ID        uuid.UUID
	Kind      ResourceKind
	Name      string
	Retired   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Client struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	Phone     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Patient struct {
	ID        uuid.UUID
	ClientID  uuid.UUID
	Name      string
	Species   string
	Deceased  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Directory is the lookup surface the booking core consumes. The ledger only
// ever reads through it; ownership of the underlying records lives elsewhere.
type Directory interface {
	GetResource(ctx context.Context, id uuid.UUID) (*Resource, error)
	GetClient(ctx context.Context, id uuid.UUID) (*Client, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
}

// Store extends Directory with the management operations the facade exposes.
type Store interface {
	Directory

	CreateResource(ctx context.Context, kind ResourceKind, name string) (*Resource, error)
	ListResources(ctx context.Context, kind *ResourceKind) ([]Resource, error)
	RetireResource(ctx context.Context, id uuid.UUID) error
}
