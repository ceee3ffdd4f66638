package garage

import "time"

// Vehicle is a registered garage vehicle paid for with credits.
type Vehicle struct {
	ID        int64
	OwnerID   string
	Name      string
	Model     string
	Plate     string
	Cost      int64
	CreatedAt time.Time
}

// RegisterInput carries the fields for registering a vehicle.
type RegisterInput struct {
	Name  string
	Model string
	Plate string
	Cost  int64
}
