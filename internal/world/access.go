package world

// BlockWriter примитив записи блока в мир.
// Вызовы синхронные, идемпотентные и не возвращают ошибок для координат в мире.
type BlockWriter interface {
	SetBlock(pos Position, material Material)
}

// BlockReader примитив чтения материала блока
type BlockReader interface {
	GetBlockMaterial(pos Position) Material
}

// BlockAccess объединяет чтение и запись
type BlockAccess interface {
	BlockWriter
	BlockReader
}
