package vec

import "math"

// Vec3 представляет трехмерный вектор с целочисленными координатами (координаты блока)
type Vec3 struct {
	X int
	Y int
	Z int
}

// Vec3Float представляет трехмерный вектор с плавающими координатами
type Vec3Float struct {
	X float64
	Y float64
	Z float64
}

// Floor возвращает координаты блока, в котором лежит точка
func (v Vec3Float) Floor() Vec3 {
	return Vec3{
		X: int(math.Floor(v.X)),
		Y: int(math.Floor(v.Y)),
		Z: int(math.Floor(v.Z)),
	}
}
