package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/annel0/plotmines/internal/vec"
	"github.com/annel0/plotmines/internal/world"
)

// MineHeight фиксированная высота шахты в блоках
const MineHeight = 20

var (
	// ErrInvalidTemplate неположительные размеры шаблона
	ErrInvalidTemplate = errors.New("invalid template dimensions")
	// ErrCrossRegion позиции из разных регионов
	ErrCrossRegion = errors.New("positions belong to different regions")
)

// Volume ограничивающий объём: две позиции в одном регионе, Min <= Max по каждой оси.
// Обе границы включительные.
type Volume struct {
	Min world.Position `json:"minimum" bson:"minimum"`
	Max world.Position `json:"maximum" bson:"maximum"`
}

// Normalize строит объём по двум произвольным углам
func Normalize(a, b world.Position) (Volume, error) {
	if !a.SameRegion(b) {
		return Volume{}, fmt.Errorf("%w: %q и %q", ErrCrossRegion, a.Region, b.Region)
	}

	return Volume{
		Min: world.NewPosition(math.Min(a.X, b.X), math.Min(a.Y, b.Y), math.Min(a.Z, b.Z), a.Region),
		Max: world.NewPosition(math.Max(a.X, b.X), math.Max(a.Y, b.Y), math.Max(a.Z, b.Z), a.Region),
	}, nil
}

// DeriveVolume вычисляет объём шахты по точке создания.
// План width x depth центрирован на блоке origin, шахта уходит вниз на MineHeight
// блоков и заканчивается прямо под точкой создания.
func DeriveVolume(origin world.Position, width, depth int) (Volume, error) {
	if width <= 0 || depth <= 0 {
		return Volume{}, fmt.Errorf("%w: width=%d depth=%d", ErrInvalidTemplate, width, depth)
	}

	b := origin.Block()
	low := vec.Vec3{
		X: b.X - width/2,
		Y: b.Y - MineHeight,
		Z: b.Z - depth/2,
	}
	high := vec.Vec3{
		X: low.X + width - 1,
		Y: b.Y - 1,
		Z: low.Z + depth - 1,
	}

	return Normalize(world.BlockPosition(low, origin.Region), world.BlockPosition(high, origin.Region))
}

// extent количество клеток по оси, не меньше нуля
func extent(lo, hi float64) int {
	n := int(math.Floor(hi-lo)) + 1
	if n < 0 {
		return 0
	}
	return n
}

// Size размеры объёма в блоках по осям
func (v Volume) Size() vec.Vec3 {
	return vec.Vec3{
		X: extent(v.Min.X, v.Max.X),
		Y: extent(v.Min.Y, v.Max.Y),
		Z: extent(v.Min.Z, v.Max.Z),
	}
}

// BlockCount количество блоков в объёме (границы включительно)
func BlockCount(v Volume) int {
	s := v.Size()
	return s.X * s.Y * s.Z
}

// IsEmpty не содержит ни одной клетки
func (v Volume) IsEmpty() bool {
	return BlockCount(v) == 0
}

// Region регион объёма
func (v Volume) Region() string {
	return v.Min.Region
}

// origin угловой блок, от которого идёт обход
func (v Volume) origin() vec.Vec3 {
	return v.Min.Block()
}

// ForEach обходит каждую клетку объёма ровно один раз.
// Количество вызовов fn всегда равно BlockCount(v).
func (v Volume) ForEach(fn func(pos world.Position)) {
	s := v.Size()
	o := v.origin()
	region := v.Region()

	for y := 0; y < s.Y; y++ {
		for x := 0; x < s.X; x++ {
			for z := 0; z < s.Z; z++ {
				fn(world.BlockPosition(vec.Vec3{X: o.X + x, Y: o.Y + y, Z: o.Z + z}, region))
			}
		}
	}
}

// ForEachFace обходит клетки шести граней объёма, каждую ровно один раз
func (v Volume) ForEachFace(fn func(pos world.Position)) {
	s := v.Size()
	if s.X == 0 || s.Y == 0 || s.Z == 0 {
		return
	}
	o := v.origin()
	region := v.Region()
	at := func(x, y, z int) {
		fn(world.BlockPosition(vec.Vec3{X: o.X + x, Y: o.Y + y, Z: o.Z + z}, region))
	}

	for y := 0; y < s.Y; y++ {
		capLayer := y == 0 || y == s.Y-1
		for x := 0; x < s.X; x++ {
			if capLayer || x == 0 || x == s.X-1 {
				for z := 0; z < s.Z; z++ {
					at(x, y, z)
				}
				continue
			}
			at(x, y, 0)
			if s.Z > 1 {
				at(x, y, s.Z-1)
			}
		}
	}
}

// FaceCount количество клеток на гранях
func FaceCount(v Volume) int {
	s := v.Size()
	if s.X == 0 || s.Y == 0 || s.Z == 0 {
		return 0
	}
	inner := max(s.X-2, 0) * max(s.Y-2, 0) * max(s.Z-2, 0)
	return BlockCount(v) - inner
}

// Interior часть объёма, которая перезаполняется при сбросе:
// стены по X/Z и пол исключены, верхний слой остаётся открытым.
// Для узких шахт (меньше 3 по X или Z) результат пустой.
func (v Volume) Interior() Volume {
	return Volume{
		Min: v.Min.Offset(1, 1, 1),
		Max: v.Max.Offset(-1, 0, -1),
	}
}

// Contains попадает ли блок позиции в объём
func (v Volume) Contains(pos world.Position) bool {
	if pos.Region != v.Region() {
		return false
	}
	s := v.Size()
	o := v.origin()
	b := pos.Block()
	return b.X >= o.X && b.X < o.X+s.X &&
		b.Y >= o.Y && b.Y < o.Y+s.Y &&
		b.Z >= o.Z && b.Z < o.Z+s.Z
}

func (v Volume) String() string {
	return fmt.Sprintf("%s..%s", v.Min, v.Max)
}
