//go:build !linux

package imu

import "fmt"

type Bus struct{}

func OpenBus(path string) (*Bus, error) {
	return nil, fmt.Errorf("imu: i2c bus %s unsupported on this OS (need linux)", path)
}

func (b *Bus) Close() error { return nil }

func (b *Bus) device(addr uint16) regIO { return unsupported{} }

type unsupported struct{}

func (unsupported) ReadRegU8(byte) (byte, error) { return 0, fmt.Errorf("imu: unsupported OS") }
func (unsupported) ReadReg(byte, []byte) error   { return fmt.Errorf("imu: unsupported OS") }
func (unsupported) WriteReg(byte, byte) error    { return fmt.Errorf("imu: unsupported OS") }
