// Package imu reads the buoy's own ICM-20948 over I2C: the accelerometer
// directly and the AK09916 magnetometer through the ICM-20948 bypass.
package imu

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"wavebuoy/internal/wave"
)

var sleep = time.Sleep

const (
	addrDefault = 0x68
	addrMag     = 0x0C

	regWhoAmI  = 0x00
	whoAmIVal  = 0xEA
	regBankSel = 0x7F

	// Bank 0.
	regUserCtrl   = 0x03
	regPwrMgmt1   = 0x06
	regPwrMgmt2   = 0x07
	bitReset      = 0x80
	regIntPinCfg  = 0x0F
	bitBypassEn   = 0x02
	regIntEnable  = 0x10
	regAccelXoutH = 0x2D

	// Bank 2.
	bank2           = 2
	regAccelSmplrt1 = 0x10
	regAccelSmplrt2 = 0x11
	regAccelConfig  = 0x14
	fsAccel4g       = 0x02 // ACCEL_FS_SEL=1
	accelBaseHz     = 1125.0

	// AK09916.
	regMagWIA2  = 0x01
	magWIA2Val  = 0x09
	regMagHXL   = 0x11
	regMagCntl2 = 0x31
	regMagCntl3 = 0x32
	magMode100  = 0x08
	magHOFL     = 0x08
	magScaleUT  = 0.15
)

type regIO interface {
	ReadRegU8(reg byte) (byte, error)
	ReadReg(reg byte, dst []byte) error
	WriteReg(reg, value byte) error
}

func DefaultAddress() uint16 { return addrDefault }

// Sensor produces wave.RawSample readings: acceleration in g and magnetic
// field in µT, both in the accelerometer's axes.
type Sensor struct {
	accel regIO
	mag   regIO
	bus   *Bus

	curBank    byte
	scaleAccel float64
	lastMag    [3]float32
}

// Open identifies and configures the ICM-20948 at addr on busPath, with the
// accelerometer output rate matched to samplePeriod.
func Open(busPath string, addr uint16, samplePeriod time.Duration) (*Sensor, error) {
	bus, err := OpenBus(busPath)
	if err != nil {
		return nil, fmt.Errorf("imu: open %s: %w", busPath, err)
	}
	s, err := newSensor(bus.device(addr), bus.device(addrMag), samplePeriod)
	if err != nil {
		_ = bus.Close()
		return nil, err
	}
	s.bus = bus
	return s, nil
}

func newSensor(accel, mag regIO, samplePeriod time.Duration) (*Sensor, error) {
	if accel == nil || mag == nil {
		return nil, fmt.Errorf("imu: device is nil")
	}
	s := &Sensor{accel: accel, mag: mag, curBank: 0xFF}

	who, err := accel.ReadRegU8(regWhoAmI)
	if err != nil {
		return nil, fmt.Errorf("icm20948: whoami read failed: %w", err)
	}
	if who != whoAmIVal {
		return nil, fmt.Errorf("icm20948: whoami=0x%02X want 0x%02X", who, whoAmIVal)
	}
	if err := s.initAccel(samplePeriod); err != nil {
		return nil, err
	}
	if err := s.initMag(); err != nil {
		return nil, err
	}
	return s, nil
}

// accelDivider returns ACCEL_SMPLRT_DIV for the output rate closest to
// 1/samplePeriod. The divider is 12 bits.
func accelDivider(samplePeriod time.Duration) uint16 {
	if samplePeriod <= 0 {
		return 0
	}
	div := accelBaseHz*samplePeriod.Seconds() - 1
	switch {
	case div < 0:
		return 0
	case div > 4095:
		return 4095
	}
	return uint16(math.Round(div))
}

func (s *Sensor) initAccel(samplePeriod time.Duration) error {
	if err := s.setBank(0); err != nil {
		return err
	}
	_ = s.accel.WriteReg(regIntEnable, 0x00)

	if err := s.accel.WriteReg(regPwrMgmt1, bitReset); err != nil {
		return fmt.Errorf("icm20948: reset failed: %w", err)
	}
	sleep(100 * time.Millisecond)
	// The reset returns the device to bank 0.
	s.curBank = 0

	// Wake with the auto-selected clock.
	if err := s.accel.WriteReg(regPwrMgmt1, 0x01); err != nil {
		return fmt.Errorf("icm20948: wake failed: %w", err)
	}
	sleep(10 * time.Millisecond)
	// Accelerometer on, gyro off.
	if err := s.accel.WriteReg(regPwrMgmt2, 0x07); err != nil {
		return fmt.Errorf("icm20948: power config failed: %w", err)
	}

	if err := s.setBank(bank2); err != nil {
		return err
	}
	div := accelDivider(samplePeriod)
	_ = s.accel.WriteReg(regAccelSmplrt1, byte(div>>8))
	_ = s.accel.WriteReg(regAccelSmplrt2, byte(div))
	if err := s.accel.WriteReg(regAccelConfig, fsAccel4g); err != nil {
		return fmt.Errorf("icm20948: accel config failed: %w", err)
	}

	if err := s.setBank(0); err != nil {
		return err
	}
	// Internal I2C master off, bypass on, so the AK09916 shows up on the bus.
	if err := s.accel.WriteReg(regUserCtrl, 0x00); err != nil {
		return fmt.Errorf("icm20948: user ctrl failed: %w", err)
	}
	if err := s.accel.WriteReg(regIntPinCfg, bitBypassEn); err != nil {
		return fmt.Errorf("icm20948: bypass enable failed: %w", err)
	}

	s.scaleAccel = 4.0 / 32768.0
	return nil
}

func (s *Sensor) initMag() error {
	wia, err := s.mag.ReadRegU8(regMagWIA2)
	if err != nil {
		return fmt.Errorf("ak09916: whoami read failed: %w", err)
	}
	if wia != magWIA2Val {
		return fmt.Errorf("ak09916: whoami=0x%02X want 0x%02X", wia, magWIA2Val)
	}
	if err := s.mag.WriteReg(regMagCntl3, 0x01); err != nil {
		return fmt.Errorf("ak09916: reset failed: %w", err)
	}
	sleep(10 * time.Millisecond)
	if err := s.mag.WriteReg(regMagCntl2, magMode100); err != nil {
		return fmt.Errorf("ak09916: mode failed: %w", err)
	}
	return nil
}

func (s *Sensor) setBank(bank byte) error {
	if s.curBank == bank {
		return nil
	}
	if err := s.accel.WriteReg(regBankSel, bank<<4); err != nil {
		return fmt.Errorf("icm20948: set bank %d failed: %w", bank, err)
	}
	s.curBank = bank
	return nil
}

// Read returns one reading. A magnetometer overflow keeps the previous field
// value.
func (s *Sensor) Read() (wave.RawSample, error) {
	if s == nil {
		return wave.RawSample{}, fmt.Errorf("imu: sensor is nil")
	}
	if err := s.setBank(0); err != nil {
		return wave.RawSample{}, err
	}

	var a [6]byte
	if err := s.accel.ReadReg(regAccelXoutH, a[:]); err != nil {
		return wave.RawSample{}, fmt.Errorf("icm20948: read accel failed: %w", err)
	}
	ax := int16(binary.BigEndian.Uint16(a[0:]))
	ay := int16(binary.BigEndian.Uint16(a[2:]))
	az := int16(binary.BigEndian.Uint16(a[4:]))

	// HXL..HZH, TMPS, ST2. Reading ST2 releases the data lock.
	var m [8]byte
	if err := s.mag.ReadReg(regMagHXL, m[:]); err != nil {
		return wave.RawSample{}, fmt.Errorf("ak09916: read field failed: %w", err)
	}
	if m[7]&magHOFL == 0 {
		hx := int16(binary.LittleEndian.Uint16(m[0:]))
		hy := int16(binary.LittleEndian.Uint16(m[2:]))
		hz := int16(binary.LittleEndian.Uint16(m[4:]))
		// AK09916 Y and Z point opposite to the accelerometer's.
		s.lastMag = [3]float32{
			float32(float64(hx) * magScaleUT),
			float32(-float64(hy) * magScaleUT),
			float32(-float64(hz) * magScaleUT),
		}
	}

	return wave.RawSample{
		Ax: float32(float64(ax) * s.scaleAccel),
		Ay: float32(float64(ay) * s.scaleAccel),
		Az: float32(float64(az) * s.scaleAccel),
		Mx: s.lastMag[0],
		My: s.lastMag[1],
		Mz: s.lastMag[2],
	}, nil
}

func (s *Sensor) Close() error {
	if s == nil || s.bus == nil {
		return nil
	}
	return s.bus.Close()
}
