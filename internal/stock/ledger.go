package stock

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrInsufficientStock occurs when the source location holds fewer units
	// than the movement requests.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrDuplicateMovement indicates the client reference was already posted
	// for this kind of movement. The original movement is returned alongside.
	ErrDuplicateMovement = errors.New("duplicate movement")

	// ErrInvalidQuantity is returned for zero or negative quantities.
	ErrInvalidQuantity = errors.New("quantity must be positive")

	// ErrInvalidLocation is returned when a movement names a location it may
	// not use.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrInvalidSKU is returned for malformed product codes.
	ErrInvalidSKU = errors.New("invalid sku")

	// ErrInvalidReference is returned when the client reference is blank.
	ErrInvalidReference = errors.New("client reference is required")
)

// Locations. Production is the source of every unit and sold is the sink;
// both are bookkeeping locations and never hold physical stock.
const (
	LocationProduction = "production"
	LocationFactory    = "factory"
	LocationGodown     = "godown"
	LocationSold       = "sold"
)

// Movement kinds.
const (
	KindProduction = "production"
	KindTransfer   = "transfer"
	KindSale       = "sale"
)

// Movement is a balanced posting of Quantity units of SKU from one location
// to another.
type Movement struct {
	ID        string
	Kind      string
	ClientRef string
	SKU       string
	From      string
	To        string
	Quantity  int64
	CreatedBy string
	CreatedAt time.Time

	// Levels after the posting.
	FromLevel int64
	ToLevel   int64
}

// Level is the quantity of a SKU held at a location.
type Level struct {
	Location string
	SKU      string
	Quantity int64
}

// Ledger defines the contract implemented by stock backends.
type Ledger interface {
	// Move posts m. Only the production location may go negative.
	Move(ctx context.Context, m Movement) (Movement, error)
	Level(ctx context.Context, location, sku string) (int64, error)
	Levels(ctx context.Context) ([]Level, error)
}

func locationCode(location, sku string) string {
	return location + ":" + sku
}

func splitLocationCode(code string) (location, sku string) {
	location, sku, _ = strings.Cut(code, ":")
	return location, sku
}

func movementKey(kind, clientRef string) string {
	return kind + ":" + clientRef
}
