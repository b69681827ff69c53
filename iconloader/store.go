package iconloader

import (
	"github.com/ShoshinNikita/gameicons/gameicons"
)

// iconStore maps title ids to decoded icons. Once an icon is stored, it is never replaced.
// It must be accessed only under [Loader.mu].
type iconStore struct {
	icons map[gameicons.TitleID]gameicons.Icon
}

func newIconStore() iconStore {
	return iconStore{
		icons: make(map[gameicons.TitleID]gameicons.Icon),
	}
}

func (s *iconStore) get(id gameicons.TitleID) (gameicons.Icon, bool) {
	icon, ok := s.icons[id]
	return icon, ok
}

// insert stores the icon if there is no icon for this id yet. It returns the stored icon.
func (s *iconStore) insert(id gameicons.TitleID, icon gameicons.Icon) gameicons.Icon {
	if existing, ok := s.icons[id]; ok {
		return existing
	}
	s.icons[id] = icon
	return icon
}

func (s *iconStore) len() int {
	return len(s.icons)
}

// requestQueue is a FIFO queue of title ids. Duplicates are allowed.
// It must be accessed only under [Loader.mu].
type requestQueue struct {
	ids []gameicons.TitleID
}

func (q *requestQueue) push(id gameicons.TitleID) {
	q.ids = append(q.ids, id)
}

// pop must be called only for a non-empty queue.
func (q *requestQueue) pop() gameicons.TitleID {
	id := q.ids[0]
	q.ids = q.ids[1:]
	if len(q.ids) == 0 {
		// Release the underlying array.
		q.ids = nil
	}
	return id
}

func (q *requestQueue) len() int {
	return len(q.ids)
}

// clear drops all ids and returns their number.
func (q *requestQueue) clear() int {
	n := len(q.ids)
	q.ids = nil
	return n
}
