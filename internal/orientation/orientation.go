package orientation

import (
	"math"
	"time"
)

// Quaternion is a unit rotation quaternion in the render frame
// (X forward, Y up, Z right).
type Quaternion struct {
	W float64 `json:"w"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Norm returns the quaternion magnitude. A healthy sample is within
// tolerance of 1.0.
func (q Quaternion) Norm() float64 {
	return math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
}

// ToEuler projects the quaternion to display angles in degrees:
// heading 0-360 around the up axis, roll around forward, pitch around
// right. Display only; rotation always uses the quaternion itself.
func (q Quaternion) ToEuler() (heading, roll, pitch float64) {
	w, x, y, z := q.W, q.X, q.Y, q.Z

	// Heading: rotation around Y (up).
	sinyCosp := 2 * (w*y + x*z)
	cosyCosp := 1 - 2*(y*y+z*z)
	heading = math.Atan2(sinyCosp, cosyCosp) * 180 / math.Pi
	if heading < 0 {
		heading += 360
	}

	// Pitch: rotation around Z (right), nose up/down.
	sinp := 2 * (w*z - x*y)
	if math.Abs(sinp) >= 1 {
		pitch = math.Copysign(90, sinp)
	} else {
		pitch = math.Asin(sinp) * 180 / math.Pi
	}

	// Roll: rotation around X (forward).
	sinrCosp := 2 * (w*x + y*z)
	cosrCosp := 1 - 2*(x*x+z*z)
	roll = math.Atan2(sinrCosp, cosrCosp) * 180 / math.Pi

	return heading, roll, pitch
}

// RotationMatrix returns the 4x4 rotation matrix in column-major order,
// ready for the web client's model transform.
func (q Quaternion) RotationMatrix() [16]float64 {
	w, x, y, z := q.W, q.X, q.Y, q.Z
	xx, yy, zz := x*x, y*y, z*z
	xy, xz, yz := x*y, x*z, y*z
	wx, wy, wz := w*x, w*y, w*z

	return [16]float64{
		1 - 2*(yy+zz), 2 * (xy + wz), 2 * (xz - wy), 0,
		2 * (xy - wz), 1 - 2*(xx+zz), 2 * (yz + wx), 0,
		2 * (xz + wy), 2 * (yz - wx), 1 - 2*(xx+yy), 0,
		0, 0, 0, 1,
	}
}

// Calibration is the sensor's self-reported per-subsystem calibration
// confidence, each score 0 (uncalibrated) to 3 (fully calibrated).
type Calibration struct {
	Sys   uint8 `json:"sys"`
	Gyro  uint8 `json:"gyro"`
	Accel uint8 `json:"accel"`
	Mag   uint8 `json:"mag"`
}

// IsCalibrated reports whether every subsystem reached full confidence.
func (c Calibration) IsCalibrated() bool {
	return c.Sys == 3 && c.Gyro == 3 && c.Accel == 3 && c.Mag == 3
}

// Sample is one immutable orientation reading: the quaternion, its
// Euler projection, the capture time and the calibration snapshot.
type Sample struct {
	Quat        Quaternion  `json:"quat"`
	Heading     float64     `json:"heading"`
	Roll        float64     `json:"roll"`
	Pitch       float64     `json:"pitch"`
	Time        time.Time   `json:"time"`
	Calibration Calibration `json:"calibration"`
}

// FromQuaternion builds a Sample, deriving the Euler projection.
func FromQuaternion(q Quaternion, t time.Time, cal Calibration) Sample {
	h, r, p := q.ToEuler()
	return Sample{
		Quat:        q,
		Heading:     h,
		Roll:        r,
		Pitch:       p,
		Time:        t,
		Calibration: cal,
	}
}

// Source is anything that can provide orientation samples over time:
// the real driver, the mock source, maybe a replay source later.
type Source interface {
	Next() (Sample, error)
}
