package utils

// DynBuffer is a flat scratch buffer that grows on demand and never shrinks,
// so repeated communication rounds with varying payload sizes reuse one
// allocation. Cells() exposes only the active region.
type DynBuffer[T any] struct {
	store  []T
	active int
}

func NewDynBuffer[T any](size int) (db *DynBuffer[T]) {
	db = &DynBuffer[T]{
		store:  make([]T, size),
		active: size,
	}
	return
}

// Resize sets the active length, growing the backing store only when the
// request exceeds every previous allocation.
func (db *DynBuffer[T]) Resize(size int) {
	if size > cap(db.store) {
		grown := make([]T, size)
		copy(grown, db.store[:db.active])
		db.store = grown
	}
	db.store = db.store[:cap(db.store)]
	db.active = size
}

func (db *DynBuffer[T]) Add(item T) {
	if db.active == cap(db.store) {
		db.store = append(db.store, item)
		db.active = len(db.store)
		return
	}
	db.store = db.store[:db.active+1]
	db.store[db.active] = item
	db.active++
}

func (db *DynBuffer[T]) Cells() []T {
	return db.store[:db.active]
}

func (db *DynBuffer[T]) Len() int {
	return db.active
}

func (db *DynBuffer[T]) Capacity() int {
	return cap(db.store)
}

func (db *DynBuffer[T]) Reset() {
	db.active = 0
	db.store = db.store[:0]
}
