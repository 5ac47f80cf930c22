// Package adapter contains bus adapters: hardware bridges that carry
// their own access routines and an in-memory mock for running without
// hardware.
package adapter

import (
	"github.com/renardein/smbus"
)

// needsData reports whether a transaction of this kind and direction
// carries a payload.
func needsData(kind smbus.Kind, dir smbus.Direction) bool {
	switch kind {
	case smbus.KindQuick:
		return false
	case smbus.KindByte:
		return dir == smbus.Read
	}
	return true
}
