package store

import "errors"

// ErrNotFound is returned when a requested device does not exist in the store.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface.
type Store interface {
	SaveDevice(dev *Device) error
	GetDevice(ieee string) (*Device, error)
	DeleteDevice(ieee string) error
	ListDevices() ([]*Device, error)

	// UpdateDevice atomically reads, modifies, and saves a device in a single
	// transaction. Returns ErrNotFound if the device does not exist.
	UpdateDevice(ieee string, fn func(dev *Device) error) error

	// UpsertDevice is UpdateDevice that starts from an empty Device with only
	// the address set when none is stored. It returns the saved device.
	UpsertDevice(ieee string, fn func(dev *Device) error) (*Device, error)

	Close() error
}
