package world

import (
	"strings"
	"sync"
)

// Material идентификатор материала блока (например, "DIAMOND_ORE")
type Material string

// Базовые материалы
const (
	Air          Material = "AIR"
	Stone        Material = "STONE"
	Cobblestone  Material = "COBBLESTONE"
	Bedrock      Material = "BEDROCK"
	Dirt         Material = "DIRT"
	CoalOre      Material = "COAL_ORE"
	IronOre      Material = "IRON_ORE"
	GoldOre      Material = "GOLD_ORE"
	RedstoneOre  Material = "REDSTONE_ORE"
	LapisOre     Material = "LAPIS_ORE"
	DiamondOre   Material = "DIAMOND_ORE"
	EmeraldOre   Material = "EMERALD_ORE"
	Beacon       Material = "BEACON"
	EndPortal    Material = "END_PORTAL_FRAME"
	Glass        Material = "GLASS"
	DeepslateOre Material = "DEEPSLATE_DIAMOND_ORE"
)

var (
	registryMu sync.RWMutex
	registry   = map[Material]struct{}{}
)

func init() {
	for _, m := range []Material{
		Air, Stone, Cobblestone, Bedrock, Dirt, CoalOre, IronOre, GoldOre,
		RedstoneOre, LapisOre, DiamondOre, EmeraldOre, Beacon, EndPortal, Glass, DeepslateOre,
	} {
		RegisterMaterial(m)
	}
}

// RegisterMaterial добавляет материал в реестр
func RegisterMaterial(m Material) {
	registryMu.Lock()
	registry[NormalizeMaterial(m)] = struct{}{}
	registryMu.Unlock()
}

// IsKnownMaterial проверяет, зарегистрирован ли материал
func IsKnownMaterial(m Material) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[NormalizeMaterial(m)]
	return ok
}

// NormalizeMaterial приводит имя материала к каноническому виду: "diamond ore" -> "DIAMOND_ORE"
func NormalizeMaterial(m Material) Material {
	s := strings.ToUpper(strings.TrimSpace(string(m)))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.TrimPrefix(s, "MINECRAFT:")
	return Material(s)
}

// IsAir пустой ли материал
func (m Material) IsAir() bool {
	return m == "" || NormalizeMaterial(m) == Air
}
