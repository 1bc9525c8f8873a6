package math

import (
	"encoding/binary"
	m "math"
)

const (
	/** @brief An approximate representation of PI. */
	K_PI float32 = 3.14159265358979323846
	/** @brief An approximate representation of PI multiplied by 2. */
	K_PI_2 float32 = 2.0 * K_PI
	/** @brief A multiplier used to convert degrees to radians. */
	K_DEG2RAD_MULTIPLIER float32 = K_PI / 180.0
	/** @brief Smallest positive number where 1.0 + FLOAT_EPSILON != 0 */
	K_FLOAT_EPSILON float32 = 1.192092896e-07
)

func ksin(x float32) float32 {
	return float32(m.Sin(float64(x)))
}

func kcos(x float32) float32 {
	return float32(m.Cos(float64(x)))
}

func ktan(x float32) float32 {
	return float32(m.Tan(float64(x)))
}

func ksqrt(x float32) float32 {
	return float32(m.Sqrt(float64(x)))
}

func kabs(x float32) float32 {
	return float32(m.Abs(float64(x)))
}

func NewVec3(x, y, z float32) Vec3 {
	return Vec3{x, y, z}
}

func NewVec3Up() Vec3 {
	return Vec3{0.0, 1.0, 0.0}
}

func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{v.X + other.X, v.Y + other.Y, v.Z + other.Z}
}

/**
 * @brief A point on the sphere of the given radius around the origin. yaw
 * rotates about +Y starting from +Z, pitch lifts towards +Y.
 */
func NewVec3Spherical(yaw, pitch, radius float32) Vec3 {
	return Vec3{
		X: radius * kcos(pitch) * ksin(yaw),
		Y: radius * ksin(pitch),
		Z: radius * kcos(pitch) * kcos(yaw),
	}
}

func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{v.X - other.X, v.Y - other.Y, v.Z - other.Z}
}

func (v Vec3) Length() float32 {
	return ksqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

/**
 * @brief Returns a unit length copy of the vector. The zero vector is
 * returned unchanged.
 */
func (v Vec3) Normalize() Vec3 {
	length := v.Length()
	if length == 0 {
		return v
	}
	return Vec3{v.X / length, v.Y / length, v.Z / length}
}

func (v Vec3) Dot(other Vec3) float32 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

func (v Vec3) Cross(other Vec3) Vec3 {
	return Vec3{
		v.Y*other.Z - v.Z*other.Y,
		v.Z*other.X - v.X*other.Z,
		v.X*other.Y - v.Y*other.X}
}

func (v Vec3) Compare(other Vec3, tolerance float32) bool {
	return kabs(v.X-other.X) <= tolerance &&
		kabs(v.Y-other.Y) <= tolerance &&
		kabs(v.Z-other.Z) <= tolerance
}

/**
 * @brief Transform v by m, treating v as a point (w = 1).
 */
func (v Vec3) Transform(mt Mat4) Vec3 {
	return Vec3{
		X: v.X*mt.Data[0] + v.Y*mt.Data[4] + v.Z*mt.Data[8] + mt.Data[12],
		Y: v.X*mt.Data[1] + v.Y*mt.Data[5] + v.Z*mt.Data[9] + mt.Data[13],
		Z: v.X*mt.Data[2] + v.Y*mt.Data[6] + v.Z*mt.Data[10] + mt.Data[14],
	}
}

func NewMat4Identity() Mat4 {
	out := Mat4{}
	out.Data[0] = 1.0
	out.Data[5] = 1.0
	out.Data[10] = 1.0
	out.Data[15] = 1.0
	return out
}

// Mul returns mt applied after other.
func (mt Mat4) Mul(other Mat4) Mat4 {
	out := Mat4{}
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			sum := float32(0)
			for i := 0; i < 4; i++ {
				sum += mt.Data[i*4+row] * other.Data[col*4+i]
			}
			out.Data[col*4+row] = sum
		}
	}
	return out
}

/**
 * @brief Creates and returns a perspective matrix with a Vulkan clip space
 * (depth in [0, 1], Y pointing down).
 *
 * @param fov_radians The vertical field of view in radians.
 * @param aspect_ratio Width over height.
 * @param near_clip The near clipping plane distance.
 * @param far_clip The far clipping plane distance.
 */
func NewMat4Perspective(fov_radians, aspect_ratio, near_clip, far_clip float32) Mat4 {
	half_tan_fov := ktan(fov_radians * 0.5)
	out := Mat4{}
	out.Data[0] = 1.0 / (aspect_ratio * half_tan_fov)
	out.Data[5] = -1.0 / half_tan_fov
	out.Data[10] = far_clip / (near_clip - far_clip)
	out.Data[11] = -1.0
	out.Data[14] = (far_clip * near_clip) / (near_clip - far_clip)
	return out
}

/**
 * @brief Creates and returns a view matrix looking at target from position.
 */
func NewMat4LookAt(position, target, up Vec3) Mat4 {
	z_axis := target.Sub(position).Normalize()
	x_axis := z_axis.Cross(up).Normalize()
	y_axis := x_axis.Cross(z_axis)

	out := Mat4{}
	out.Data[0] = x_axis.X
	out.Data[1] = y_axis.X
	out.Data[2] = -z_axis.X
	out.Data[4] = x_axis.Y
	out.Data[5] = y_axis.Y
	out.Data[6] = -z_axis.Y
	out.Data[8] = x_axis.Z
	out.Data[9] = y_axis.Z
	out.Data[10] = -z_axis.Z
	out.Data[12] = -x_axis.Dot(position)
	out.Data[13] = -y_axis.Dot(position)
	out.Data[14] = z_axis.Dot(position)
	out.Data[15] = 1.0
	return out
}

func NewMat4EulerY(angle_radians float32) Mat4 {
	out := NewMat4Identity()
	c := kcos(angle_radians)
	s := ksin(angle_radians)
	out.Data[0] = c
	out.Data[2] = -s
	out.Data[8] = s
	out.Data[10] = c
	return out
}

// PutBytes writes the matrix little endian into dst, which must hold 64 bytes.
func (mt Mat4) PutBytes(dst []byte) {
	for i, f := range mt.Data {
		binary.LittleEndian.PutUint32(dst[i*4:], m.Float32bits(f))
	}
}

func DegToRad(degrees float32) float32 {
	return degrees * K_DEG2RAD_MULTIPLIER
}
