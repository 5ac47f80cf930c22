package smbus

import "fmt"

var (
	// ErrDuplicateName rejects a registration whose name is already taken.
	ErrDuplicateName = fmt.Errorf("name already registered")
	// ErrNotFound reports an operation on an id or entity that is not registered.
	ErrNotFound = fmt.Errorf("not registered")
	// ErrAdapterFull rejects an attach once the adapter holds ClientMax clients.
	ErrAdapterFull = fmt.Errorf("adapter client table full")
	// ErrDuplicateAddress rejects an attach colliding with a client already
	// present on the same adapter.
	ErrDuplicateAddress = fmt.Errorf("bus address already taken on this adapter")
	// ErrInUse blocks unregistration while live references remain.
	ErrInUse = fmt.Errorf("still referenced")
	// ErrAddressOutOfRange reports a bus address above AddrMax.
	ErrAddressOutOfRange = fmt.Errorf("address outside 7-bit range")
	// ErrNotSupported reports a transaction the adapter cannot perform.
	ErrNotSupported = fmt.Errorf("transaction not supported by adapter")
	// ErrMissingData reports a nil payload for a kind that carries one.
	ErrMissingData = fmt.Errorf("transaction kind requires a data payload")
	// ErrClosed reports use of a registry after Close.
	ErrClosed = fmt.Errorf("registry closed")
)

// HookError reports a driver or algorithm callback that refused or failed
// during attach, detach or registration.
type HookError struct {
	Hook string // register_client, unregister_client, attach_adapter, detach_client
	Name string // owner of the hook
	Err  error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s hook of %s failed: %v", e.Hook, e.Name, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// TransferError carries a low-level access routine failure code through
// the dispatcher unchanged.
type TransferError struct {
	Code int
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer failed with code %#x", e.Code)
}
