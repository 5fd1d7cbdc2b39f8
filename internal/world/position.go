package world

import (
	"fmt"

	"github.com/annel0/plotmines/internal/vec"
)

// Position точка в именованном регионе (мире). Неизменяема.
type Position struct {
	X      float64 `json:"x" bson:"x"`
	Y      float64 `json:"y" bson:"y"`
	Z      float64 `json:"z" bson:"z"`
	Region string  `json:"region" bson:"region"`
}

// NewPosition создаёт позицию
func NewPosition(x, y, z float64, region string) Position {
	return Position{X: x, Y: y, Z: z, Region: region}
}

// BlockPosition позиция блока с целочисленными координатами
func BlockPosition(v vec.Vec3, region string) Position {
	return Position{X: float64(v.X), Y: float64(v.Y), Z: float64(v.Z), Region: region}
}

// Block возвращает координаты блока, содержащего точку
func (p Position) Block() vec.Vec3 {
	return vec.Vec3Float{X: p.X, Y: p.Y, Z: p.Z}.Floor()
}

// Offset возвращает новую позицию, сдвинутую на (dx, dy, dz)
func (p Position) Offset(dx, dy, dz float64) Position {
	return Position{X: p.X + dx, Y: p.Y + dy, Z: p.Z + dz, Region: p.Region}
}

// SameRegion проверяет, что позиции лежат в одном регионе
func (p Position) SameRegion(other Position) bool {
	return p.Region == other.Region
}

func (p Position) String() string {
	return fmt.Sprintf("%s(%.1f, %.1f, %.1f)", p.Region, p.X, p.Y, p.Z)
}
